package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 定义模拟器的配置结构
// 使用 mapstructure 标签来映射配置文件中的字段
type Config struct {
	WES         WESConfig       `mapstructure:"wes"`          // 目标 WES 地址与鉴权
	Database    DatabaseConfig  `mapstructure:"database"`     // WES 持久化状态的只读连接
	Toggles     Toggles         `mapstructure:"toggles"`      // 各驱动开关（启动初值）
	Schedule    ScheduleConfig  `mapstructure:"schedule"`     // 各驱动的触发周期
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`    // 调度器并发度
	StationPool PoolConfig      `mapstructure:"station_pool"` // 工作站任务池
	Arrival     BatchConfig     `mapstructure:"arrival"`      // 容器到站批量
	Acceptance  BatchConfig     `mapstructure:"acceptance"`   // 入库验收批量
	Picking     PickingConfig   `mapstructure:"picking"`      // 拣选驱动
	Control     ControlConfig   `mapstructure:"control"`      // 控制面 HTTP
	Journal     JournalConfig   `mapstructure:"journal"`      // 命令日志文件
	Log         LogConfig       `mapstructure:"log"`

	v *viper.Viper
}

type WESConfig struct {
	Host             string `mapstructure:"host"`
	APIPort          int    `mapstructure:"api_port"`     // 命令接口端口 (api/execute, inbound/...)
	StationPort      int    `mapstructure:"station_port"` // 工作站接口端口 (api?stationCode=)
	APIKey           string `mapstructure:"api_key"`
	ConnectTimeoutMs int    `mapstructure:"connect_timeout_ms"`
	RequestTimeoutMs int    `mapstructure:"request_timeout_ms"`
	BreakerFailures  uint32 `mapstructure:"breaker_failures"` // 连续传输失败多少次后熔断
	BreakerOpenMs    int    `mapstructure:"breaker_open_ms"`  // 熔断后多久进入半开
}

// APIBaseURL 命令接口基地址
func (c WESConfig) APIBaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.APIPort)
}

// StationBaseURL 工作站接口基地址
func (c WESConfig) StationBaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Host, c.StationPort)
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // mysql 或 sqlite3
	DSN    string `mapstructure:"dsn"`
}

// ScheduleConfig 各任务的触发周期（毫秒）
type ScheduleConfig struct {
	ContainerArrivedMs    int `mapstructure:"container_arrived"`
	CreateInboundOrderMs  int `mapstructure:"create_inbound_order"`
	CreateOutboundOrderMs int `mapstructure:"create_outbound_order"`
	InboundAcceptanceMs   int `mapstructure:"inbound_acceptance"`
	CompleteAcceptOrderMs int `mapstructure:"complete_accept_order"`
	PickingMs             int `mapstructure:"picking"`
}

type SchedulerConfig struct {
	Workers int `mapstructure:"workers"`
}

type PoolConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type BatchConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

type PickingConfig struct {
	StationRule string `mapstructure:"station_rule"` // expr 表达式，为空则所有非离线工作站
	PauseMinMs  int    `mapstructure:"pause_min_ms"`
	PauseMaxMs  int    `mapstructure:"pause_max_ms"`
}

type ControlConfig struct {
	Listen string `mapstructure:"listen"`
}

type JournalConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Ms 毫秒整数转 Duration
func Ms(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// LoadConfig 加载配置
// path 为空时在当前目录和 ./config 下查找 config.yaml，找不到文件时只使用默认值和环境变量
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // 配置文件名称 (不带扩展名)
		v.SetConfigType("yaml")   // 配置文件类型
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	// 环境变量覆盖，例如 WESSIM_WES_HOST
	v.SetEnvPrefix("WESSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.v = v

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("wes.host", "localhost")
	v.SetDefault("wes.api_port", 9010)
	v.SetDefault("wes.station_port", 9040)
	v.SetDefault("wes.api_key", "")
	v.SetDefault("wes.connect_timeout_ms", 3000)
	v.SetDefault("wes.request_timeout_ms", 10000)
	v.SetDefault("wes.breaker_failures", 5)
	v.SetDefault("wes.breaker_open_ms", 10000)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "")

	// 与原 mock 服务一致，所有驱动默认关闭
	v.SetDefault("toggles.container_arrived", false)
	v.SetDefault("toggles.create_inbound_order", false)
	v.SetDefault("toggles.create_outbound_order", false)
	v.SetDefault("toggles.inbound_acceptance", false)
	v.SetDefault("toggles.complete_accept_order", false)
	v.SetDefault("toggles.picking", false)

	v.SetDefault("schedule.container_arrived", 3000)
	v.SetDefault("schedule.create_inbound_order", 10000)
	v.SetDefault("schedule.create_outbound_order", 5000)
	v.SetDefault("schedule.inbound_acceptance", 1000)
	v.SetDefault("schedule.complete_accept_order", 3000)
	v.SetDefault("schedule.picking", 1000)

	v.SetDefault("scheduler.workers", 10)
	v.SetDefault("station_pool.workers", 16)
	v.SetDefault("station_pool.queue_size", 1000)
	v.SetDefault("arrival.batch_size", 30)
	v.SetDefault("acceptance.batch_size", 30)

	v.SetDefault("picking.station_rule", "")
	v.SetDefault("picking.pause_min_ms", 10)
	v.SetDefault("picking.pause_max_ms", 50)

	v.SetDefault("control.listen", ":8081")
	v.SetDefault("journal.path", "")
	v.SetDefault("log.level", "info")
}

// DriverJobs 调度器上注册的驱动任务数，每个任务同一时刻只占一个并发位
const DriverJobs = 6

func (c *Config) validate() error {
	if c.Scheduler.Workers < DriverJobs {
		return fmt.Errorf("scheduler.workers 不能小于驱动任务数 %d, 得到 %d", DriverJobs, c.Scheduler.Workers)
	}
	if c.StationPool.Workers <= 0 || c.StationPool.QueueSize < 0 {
		return fmt.Errorf("station_pool 配置非法: workers=%d queue_size=%d", c.StationPool.Workers, c.StationPool.QueueSize)
	}
	if c.Picking.PauseMaxMs < c.Picking.PauseMinMs {
		return fmt.Errorf("picking.pause_max_ms (%d) 小于 pause_min_ms (%d)", c.Picking.PauseMaxMs, c.Picking.PauseMinMs)
	}
	for name, ms := range map[string]int{
		"container_arrived":     c.Schedule.ContainerArrivedMs,
		"create_inbound_order":  c.Schedule.CreateInboundOrderMs,
		"create_outbound_order": c.Schedule.CreateOutboundOrderMs,
		"inbound_acceptance":    c.Schedule.InboundAcceptanceMs,
		"complete_accept_order": c.Schedule.CompleteAcceptOrderMs,
		"picking":               c.Schedule.PickingMs,
	} {
		if ms <= 0 {
			return fmt.Errorf("schedule.%s 必须大于 0, 得到 %d", name, ms)
		}
	}
	return nil
}

// WatchToggles 监听配置文件变化，只热更新 toggles 段
// 其余配置项需要重启才生效
// 只有文件里的 toggles 段真的变了才覆盖运行时开关，编辑文件其他部分不会撤销控制面的修改
func (c *Config) WatchToggles(store *ToggleStore, logger *slog.Logger) bool {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return false
	}
	r := &toggleReloader{last: c.Toggles, store: store, logger: logger}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		var t Toggles
		if err := c.v.UnmarshalKey("toggles", &t); err != nil {
			logger.Warn("重新加载开关失败", "file", e.Name, "error", err)
			return
		}
		r.apply(e.Name, t)
	})
	c.v.WatchConfig()
	return true
}

// toggleReloader 记住上一次从文件读到的 toggles 段
type toggleReloader struct {
	last   Toggles
	store  *ToggleStore
	logger *slog.Logger
}

func (r *toggleReloader) apply(file string, t Toggles) bool {
	if t == r.last {
		r.logger.Debug("配置文件变更但 toggles 段未变，保留运行时开关", "file", file)
		return false
	}
	r.last = t
	r.store.Set(t)
	r.logger.Info("配置文件变更，开关已更新", "file", file, "toggles", t)
	return true
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 定义 Prometheus 监控指标
var (
	// DriverTicksTotal 计数器：各任务 tick 次数
	// 按结果分类: ok / error / disabled / panic
	DriverTicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wessim_driver_ticks_total",
		Help: "The total number of driver ticks by outcome",
	}, []string{"job", "outcome"})

	// DriverTickDuration 直方图：单次 tick 耗时
	DriverTickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wessim_driver_tick_duration_seconds",
		Help:    "Time spent in one driver tick",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	// CommandsTotal 计数器：下发给 WES 的命令，按命令类型和结果分类
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wessim_wes_commands_total",
		Help: "The total number of commands issued to the WES",
	}, []string{"command", "outcome"})

	// CommandDuration 直方图：WES 调用耗时
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wessim_wes_command_duration_seconds",
		Help:    "Latency of WES command calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"command"})

	// StationPoolQueued 仪表盘：工作站任务池排队数量
	StationPoolQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wessim_station_pool_queued",
		Help: "The number of station tasks waiting in the bounded queue",
	})

	// StationPoolCallerRuns 计数器：队列饱和后在提交方同步执行的任务数
	StationPoolCallerRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wessim_station_pool_caller_runs_total",
		Help: "Station tasks executed inline because the queue was saturated",
	})

	// StationTaskPanics 计数器：被隔离的工作站任务 panic
	StationTaskPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wessim_station_task_panics_total",
		Help: "Recovered panics inside per-station tasks",
	})

	// OutsideContainerCacheSize 仪表盘：库外容器缓存条目数
	OutsideContainerCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wessim_outside_container_cache_size",
		Help: "The number of cached outside-pool containers",
	})

	// WESBreakerState 仪表盘：各熔断器状态 (0 关闭, 1 半开, 2 打开)
	// 工作站接口的熔断器名形如 station-view/5
	WESBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wessim_wes_breaker_state",
		Help: "Circuit breaker state per WES endpoint family or per station (0 closed, 1 half-open, 2 open)",
	}, []string{"breaker"})
)

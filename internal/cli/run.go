package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wes-simulator/internal/config"
	"wes-simulator/internal/driver"
	"wes-simulator/internal/engine"
	"wes-simulator/internal/event"
	"wes-simulator/internal/handlers"
	"wes-simulator/internal/persistence"
	"wes-simulator/internal/store"
	"wes-simulator/internal/web"
	"wes-simulator/internal/wes"
)

// NewRunCommand 创建 run 子命令：启动所有驱动和控制面
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the simulator",
		Long: `Start every driver on its own cadence plus the control plane.

Drivers stay idle until their toggle is switched on, either in config.yaml
(hot reloaded) or through the control plane. The last change wins: editing
the toggles section of the file overrides earlier control plane updates,
while edits to other sections of the file leave them alone.

  wes-sim toggles set picking=true
  curl -X POST localhost:8081/mock/config/all`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(rootOpts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "加载配置失败", err)
			}
			logger := newLogger(cfg.Log.Level, rootOpts.Verbose)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return Run(ctx, cfg, logger)
		},
	}
}

// App 组装好的模拟器
type App struct {
	Toggles    *config.ToggleStore
	Scheduler  *engine.Scheduler
	Pool       *engine.StationPool
	Containers *store.ContainerCache
	Hub        *web.Hub
	Activity   *web.ActivityTracker
	Control    http.Handler

	store   *store.Store
	journal *persistence.Journal
}

// Build 按配置连接数据库、创建客户端和驱动，并注册调度任务
func Build(cfg *config.Config, logger *slog.Logger) (*App, error) {
	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	st.SetLogger(logger)
	app := &App{store: st}

	bus := event.NewBus()
	app.Hub = web.NewHub(logger)
	app.Activity = web.NewActivityTracker(app.Hub, 200)

	var journal handlers.CommandJournal
	if cfg.Journal.Path != "" {
		j, err := persistence.OpenJournal(cfg.Journal.Path)
		if err != nil {
			st.Close()
			return nil, err
		}
		app.journal = j
		journal = j
	}
	handlers.RegisterEventHandlers(bus, app.Activity, journal, logger)

	client := wes.NewClient(wes.OptionsFromConfig(cfg.WES), bus, logger)
	app.Containers = store.NewContainerCache(st)
	app.Pool = engine.NewStationPool(cfg.StationPool.Workers, cfg.StationPool.QueueSize, logger)

	picking, err := driver.NewPickingDriver(st, client, app.Pool, driver.PickingOptions{
		StationRule: cfg.Picking.StationRule,
		PauseMin:    config.Ms(cfg.Picking.PauseMinMs),
		PauseMax:    config.Ms(cfg.Picking.PauseMaxMs),
	}, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	drivers := driver.Set{
		Arrival:    driver.NewArrivalDriver(st, client, cfg.Arrival.BatchSize, logger),
		Acceptance: driver.NewAcceptanceDriver(st, app.Containers, client, cfg.Acceptance.BatchSize, logger),
		Creation:   driver.NewCreationDriver(st, client, logger),
		Picking:    picking,
	}

	app.Toggles = config.NewToggleStore(cfg.Toggles)
	if cfg.WatchToggles(app.Toggles, logger) {
		logger.Info("已开启配置文件热更新")
	}
	app.Scheduler = engine.NewScheduler(app.Toggles, cfg.Scheduler.Workers, bus, logger)
	for _, job := range drivers.Jobs(cfg.Schedule) {
		if err := app.Scheduler.Register(job); err != nil {
			app.Close()
			return nil, err
		}
	}

	app.Control = web.NewControlRouter(web.ControlDeps{
		Toggles:    app.Toggles,
		Containers: app.Containers,
		Activity:   app.Activity,
		Hub:        app.Hub,
		Logger:     logger,
	})
	return app, nil
}

// Close 释放任务池、命令日志和数据库连接
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.journal != nil {
		a.journal.Close()
	}
	if a.store != nil {
		a.store.Close()
	}
}

// Run 构建并运行模拟器直到 ctx 取消
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	app, err := Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("初始化模拟器失败: %w", err)
	}
	defer app.Close()

	logger.Info("=== WES 模拟器启动 ===",
		"wes_api", cfg.WES.APIBaseURL(),
		"wes_station", cfg.WES.StationBaseURL(),
		"control", cfg.Control.Listen,
		"toggles", app.Toggles.Snapshot(),
	)

	server := &http.Server{Addr: cfg.Control.Listen, Handler: app.Control}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.Scheduler.Start(gctx)
		return nil
	})
	g.Go(func() error {
		app.Hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("控制面启动", "listen", cfg.Control.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("控制面启动失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("模拟器已停止")
	return err
}

// wes-stub 是一个内存版 WES，监听与真实 WES 相同的两个端口，便于本地联调模拟器
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"wes-simulator/internal/config"
	"wes-simulator/internal/types"
	"wes-simulator/internal/wesstub"
)

type options struct {
	configPath string
	stations   int
	slots      int
	advanceMs  int
	failRate   float64
}

func main() {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "wes-stub",
		Short:         "In-memory WES for local runs of wes-sim",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "wes-sim config.yaml, only the wes section is used")
	cmd.Flags().IntVar(&opts.stations, "stations", 3, "number of work stations, ids start at 1")
	cmd.Flags().IntVar(&opts.slots, "slots", 4, "put wall slots per station")
	cmd.Flags().IntVar(&opts.advanceMs, "advance-ms", 2000, "how often idle slots get orders and arrived containers leave")
	cmd.Flags().Float64Var(&opts.failRate, "fail-rate", 0, "probability that a command returns a business failure")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(parent context.Context, opts *options) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "wes-stub")
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return err
	}

	seeds := make([]wesstub.StationSeed, opts.stations)
	for i := range seeds {
		seeds[i] = wesstub.StationSeed{
			ID:      types.StationID(i + 1),
			Slots:   opts.slots,
			SkuCode: fmt.Sprintf("SKU-%03d", i+1),
		}
	}
	stub := wesstub.New(wesstub.Options{APIKey: cfg.WES.APIKey, FailRate: opts.failRate}, seeds, logger)
	handler := stub.Handler()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	servers := []*http.Server{
		{Addr: fmt.Sprintf(":%d", cfg.WES.APIPort), Handler: handler},
		{Addr: fmt.Sprintf(":%d", cfg.WES.StationPort), Handler: handler},
	}
	logger.Info("=== WES 桩服务启动 ===", "api", servers[0].Addr, "station", servers[1].Addr, "stations", opts.stations)

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("监听 %s 失败: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(config.Ms(opts.advanceMs))
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				stub.Advance()
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, srv := range servers {
			srv.Shutdown(shutdownCtx)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("WES 桩服务已停止", "commands", stub.Commands())
	return err
}

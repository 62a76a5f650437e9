package cli

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"wes-simulator/internal/config"
	"wes-simulator/internal/store"
	"wes-simulator/internal/types"
)

// InspectReport inspect 子命令的输出
type InspectReport struct {
	Bootstrap    store.Bootstrap        `json:"bootstrap"`
	WorkStations []types.StationSummary `json:"work_stations"`
	Containers   int                    `json:"outside_containers"`
}

// NewInspectCommand 创建 inspect 子命令：打印模拟器能从 WES 数据库读到的基础数据
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "inspect",
		Short:         "Show the reference data the simulator reads from the WES database",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(rootOpts.ConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "加载配置失败", err)
			}
			st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
			if err != nil {
				return WrapExitError(ExitCommandError, "连接数据库失败", err)
			}
			defer st.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			report, err := Inspect(ctx, st)
			if err != nil {
				return WrapExitError(ExitFailure, "查询失败", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

// Inspect 汇总基础数据、工作站和库外容器数量
func Inspect(ctx context.Context, st *store.Store) (InspectReport, error) {
	var report InspectReport
	b, err := st.Bootstrap(ctx)
	if err != nil {
		return report, err
	}
	report.Bootstrap = b
	if report.WorkStations, err = st.WorkStations(ctx); err != nil {
		return report, err
	}
	containers, err := st.OutsideContainers(ctx)
	if err != nil {
		return report, err
	}
	report.Containers = len(containers)
	return report, nil
}

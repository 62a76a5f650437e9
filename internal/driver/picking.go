package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"

	"wes-simulator/internal/fsm"
	"wes-simulator/internal/types"
	"wes-simulator/internal/wes"
)

// StationLister 列出工作站
type StationLister interface {
	WorkStations(ctx context.Context) ([]types.StationSummary, error)
}

// PickingWES 拣选驱动用到的 WES 能力
type PickingWES interface {
	StationViewer
	StationInput(ctx context.Context, id types.StationID, code wes.StationAPICode, body any) wes.Result
}

// Submitter 工作站任务池
type Submitter interface {
	Submit(ctx context.Context, name string, task func(ctx context.Context)) bool
}

// PickingOptions 拣选驱动参数
type PickingOptions struct {
	// StationRule expr 表达式，变量 id/code/status/mode，为空表示所有非离线工作站
	StationRule string
	PauseMin    time.Duration
	PauseMax    time.Duration
}

type tapRequest struct {
	PutWallSlotCode string `json:"putWallSlotCode"`
}

// PickingDriver 模拟工作站操作员推进播种墙格口
// 每个工作站一个任务提交到任务池，tick 等所有工作站处理完才返回
type PickingDriver struct {
	stations StationLister
	wes      PickingWES
	pool     Submitter
	table    *fsm.Table
	rule     *vm.Program
	opts     PickingOptions
	newID    func() string
	sleep    func(ctx context.Context, d time.Duration)
	logger   *slog.Logger
}

// NewPickingDriver 创建拣选驱动，工作站规则编译失败时返回错误
func NewPickingDriver(stations StationLister, client PickingWES, pool Submitter, opts PickingOptions, logger *slog.Logger) (*PickingDriver, error) {
	d := &PickingDriver{
		stations: stations,
		wes:      client,
		pool:     pool,
		table:    fsm.NewPutWallTable(),
		opts:     opts,
		newID:    newUUID,
		sleep:    sleepCtx,
		logger:   logger.With("component", "picking-driver"),
	}
	if opts.StationRule != "" {
		program, err := expr.Compile(opts.StationRule, expr.Env(stationEnv(types.StationSummary{})), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("工作站规则编译失败: %w", err)
		}
		d.rule = program
	}
	return d, nil
}

func stationEnv(st types.StationSummary) map[string]interface{} {
	return map[string]interface{}{
		"id":     int64(st.ID),
		"code":   st.Code,
		"status": string(st.Status),
		"mode":   st.Mode,
	}
}

// Tick 快照一次工作站列表并为每个可操作的工作站派发任务
func (d *PickingDriver) Tick(ctx context.Context) error {
	all, err := d.stations.WorkStations(ctx)
	if err != nil {
		return fmt.Errorf("读取工作站失败: %w", err)
	}
	eligible := d.filter(all)
	if len(eligible) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, st := range eligible {
		wg.Add(1)
		d.pool.Submit(ctx, fmt.Sprintf("station-%d", st.ID), func(ctx context.Context) {
			defer wg.Done()
			d.work(ctx, st)
		})
	}
	wg.Wait()
	return nil
}

// filter 去掉离线工作站和不满足规则的工作站
func (d *PickingDriver) filter(all []types.StationSummary) []types.StationSummary {
	eligible := make([]types.StationSummary, 0, len(all))
	for _, st := range all {
		if st.Status == types.StationOffline {
			continue
		}
		if d.rule != nil {
			out, err := expr.Run(d.rule, stationEnv(st))
			if err != nil {
				d.logger.Warn("工作站规则执行失败", "station_id", st.ID, "error", err)
				continue
			}
			if ok, _ := out.(bool); !ok {
				continue
			}
		}
		eligible = append(eligible, st)
	}
	return eligible
}

// work 处理单个工作站：按格口状态表发送操作员输入
func (d *PickingDriver) work(ctx context.Context, st types.StationSummary) {
	logger := d.logger.With("station_id", st.ID)

	view, err := d.wes.StationView(ctx, st.ID)
	if err != nil {
		logger.Warn("读取工作站视图失败", "error", err)
		return
	}
	if !view.Status.Actionable() {
		logger.Debug("工作站不可操作", "status", view.Status)
		return
	}

	bound := false
	for _, slot := range view.PutWallSlots() {
		if ctx.Err() != nil {
			return
		}
		action, err := d.table.Action(slot.PutWallSlotStatus)
		if err != nil {
			logger.Warn("未知的格口状态", "slot_code", slot.PutWallSlotCode, "error", err)
			continue
		}

		switch action {
		case fsm.ActionBindContainer:
			// 先扫格口，再扫一个新的周转容器完成绑定
			d.send(ctx, logger, st.ID, wes.StationInput, slot.PutWallSlotCode)
			d.send(ctx, logger, st.ID, wes.StationInput, d.newID())
		case fsm.ActionTapSlot:
			d.send(ctx, logger, st.ID, wes.StationTapPutWallSlot, tapRequest{PutWallSlotCode: slot.PutWallSlotCode})
		case fsm.ActionScanBarcode:
			bound = true
		}
	}

	if !bound {
		return
	}
	if sku := view.FirstPickingSkuCode(); sku != "" {
		d.send(ctx, logger, st.ID, wes.StationScanBarcode, sku)
	}
}

// send 发送一条操作员命令，失败只记录日志，之后停顿一段模拟操作时间
func (d *PickingDriver) send(ctx context.Context, logger *slog.Logger, id types.StationID, code wes.StationAPICode, body any) {
	if res := d.wes.StationInput(ctx, id, code, body); !res.OK {
		logger.Warn("工作站命令失败", "api_code", code, "error", res.Err)
	}
	d.sleep(ctx, d.pause())
}

func (d *PickingDriver) pause() time.Duration {
	lo, hi := int(d.opts.PauseMin), int(d.opts.PauseMax)
	if hi <= lo {
		return d.opts.PauseMin
	}
	return time.Duration(randBetween(lo, hi+1))
}

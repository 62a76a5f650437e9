package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"wes-simulator/internal/store"
	"wes-simulator/internal/types"
	"wes-simulator/internal/wes"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// call 一次记录下来的 WES 调用，Body 统一转成 JSON 便于断言
type call struct {
	Station types.StationID
	Command string
	Body    string
}

// fakeWES 按脚本返回视图并记录命令
type fakeWES struct {
	mu      sync.Mutex
	views   map[types.StationID]*types.StationView
	fail    map[string]bool // 按命令名失败
	calls   []call
	inbound []acceptRequest
}

func newFakeWES() *fakeWES {
	return &fakeWES{views: make(map[types.StationID]*types.StationView), fail: make(map[string]bool)}
}

func (f *fakeWES) record(station types.StationID, command string, body any) wes.Result {
	data, _ := json.Marshal(body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{Station: station, Command: command, Body: string(data)})
	if f.fail[command] {
		return wes.Result{StatusCode: 200, Code: "1", Err: fmt.Errorf("%s rejected", command)}
	}
	return wes.Result{OK: true, StatusCode: 200, Code: "0"}
}

func (f *fakeWES) StationView(ctx context.Context, id types.StationID) (*types.StationView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	view, ok := f.views[id]
	if !ok {
		return nil, wes.ErrStationUnavailable
	}
	return view, nil
}

func (f *fakeWES) Execute(ctx context.Context, apiType string, body any) wes.Result {
	return f.record(0, apiType, body)
}

func (f *fakeWES) AcceptInbound(ctx context.Context, body any) wes.Result {
	f.mu.Lock()
	f.inbound = append(f.inbound, body.(acceptRequest))
	f.mu.Unlock()
	return f.record(0, "INBOUND_ACCEPT", body)
}

func (f *fakeWES) CompleteAcceptOrder(ctx context.Context, id int64) wes.Result {
	return f.record(0, "ACCEPT_ORDER_COMPLETE", id)
}

func (f *fakeWES) StationInput(ctx context.Context, id types.StationID, code wes.StationAPICode, body any) wes.Result {
	return f.record(id, string(code), body)
}

func (f *fakeWES) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeWES) commands() []string {
	var out []string
	for _, c := range f.Calls() {
		out = append(out, c.Command)
	}
	return out
}

// fakeState 内存中的 WES 持久化状态
type fakeState struct {
	tasks        []types.TransportTask
	orders       []types.InboundOrder
	skus         map[string]int64 // warehouse/sku -> id
	acceptOrders []types.AcceptOrder
	stations     []types.StationSummary
	sampleSkus   []types.SkuRow
	sampleStock  []types.StockRow
	err          error
}

func (s *fakeState) PendingTransportTasks(ctx context.Context, limit int) ([]types.TransportTask, error) {
	if len(s.tasks) > limit {
		return s.tasks[:limit], s.err
	}
	return s.tasks, s.err
}

func (s *fakeState) AcceptableInboundOrders(ctx context.Context, limit int) ([]types.InboundOrder, error) {
	return s.orders, s.err
}

func (s *fakeState) SkuID(ctx context.Context, skuCode, warehouseCode string) (int64, error) {
	id, ok := s.skus[warehouseCode+"/"+skuCode]
	if !ok {
		return 0, store.ErrNotFound
	}
	return id, nil
}

func (s *fakeState) NewAcceptOrders(ctx context.Context, limit int) ([]types.AcceptOrder, error) {
	if len(s.acceptOrders) > limit {
		return s.acceptOrders[:limit], s.err
	}
	return s.acceptOrders, s.err
}

func (s *fakeState) WorkStations(ctx context.Context) ([]types.StationSummary, error) {
	return s.stations, s.err
}

func (s *fakeState) SampleSkus(ctx context.Context) ([]types.SkuRow, error) {
	return s.sampleSkus, s.err
}

func (s *fakeState) SampleStock(ctx context.Context) ([]types.StockRow, error) {
	return s.sampleStock, s.err
}

// fakeContainers 固定返回第一个容器
type fakeContainers struct {
	items []types.OutsideContainer
}

func (c *fakeContainers) Pick(ctx context.Context) (types.OutsideContainer, bool, error) {
	if len(c.items) == 0 {
		return types.OutsideContainer{}, false, nil
	}
	return c.items[0], true, nil
}

// goPool 每个任务一个 goroutine，并记录任务运行期间同时处理的工作站
type goPool struct{}

func (goPool) Submit(ctx context.Context, name string, task func(ctx context.Context)) bool {
	go task(ctx)
	return true
}

func noSleep(context.Context, time.Duration) {}

// stationView 构造一个工作站视图
func stationView(id types.StationID, status types.StationStatus, slots ...types.PutWallSlot) *types.StationView {
	return &types.StationView{
		WorkStationID: id,
		Status:        status,
		WorkLocationArea: &types.WorkLocationArea{WorkLocationViews: []types.WorkLocation{
			{WorkLocationCode: "WL-1", Enable: true, WorkLocationSlots: []types.WorkLocationSlot{{SlotCode: "LOC-1"}}},
		}},
		PutWallArea: &types.PutWallArea{PutWallViews: []types.PutWall{{PutWallCode: "PW-1", PutWallSlots: slots}}},
	}
}

func slot(code string, status types.PutWallSlotStatus) types.PutWallSlot {
	return types.PutWallSlot{PutWallSlotCode: code, PutWallSlotStatus: status}
}

package driver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wes-simulator/internal/engine"
	"wes-simulator/internal/types"
	"wes-simulator/internal/wes"
)

func newPickingDriver(t *testing.T, state *fakeState, client PickingWES, pool Submitter, rule string) *PickingDriver {
	t.Helper()
	d, err := NewPickingDriver(state, client, pool, PickingOptions{StationRule: rule}, discardLogger())
	require.NoError(t, err)
	d.sleep = noSleep
	d.newID = func() string { return "TC-NEW" }
	return d
}

func online(id types.StationID) types.StationSummary {
	return types.StationSummary{ID: id, Code: "WS", Status: types.StationOnline}
}

func TestPicking_SlotActions(t *testing.T) {
	client := newFakeWES()
	view := stationView(1, types.StationOnline,
		slot("S-IDLE", types.SlotIdle),
		slot("S-WB", types.SlotWaitingBinding),
		slot("S-D", types.SlotDispatch),
		slot("S-WS", types.SlotWaitingSeal),
	)
	client.views[1] = view
	state := &fakeState{stations: []types.StationSummary{online(1)}}

	require.NoError(t, newPickingDriver(t, state, client, goPool{}, "").Tick(context.Background()))

	assert.Equal(t, []call{
		{Station: 1, Command: "INPUT", Body: `"S-WB"`},
		{Station: 1, Command: "INPUT", Body: `"TC-NEW"`},
		{Station: 1, Command: "TAP_PUT_WALL_SLOT", Body: `{"putWallSlotCode":"S-D"}`},
		{Station: 1, Command: "TAP_PUT_WALL_SLOT", Body: `{"putWallSlotCode":"S-WS"}`},
	}, client.Calls())
}

func TestPicking_BoundScansOncePerStation(t *testing.T) {
	client := newFakeWES()
	view := stationView(1, types.StationOnline, slot("S1", types.SlotBound), slot("S2", types.SlotBound))
	view.SkuArea = &types.SkuArea{PickingViews: []types.SkuTaskInfo{
		{SkuMainData: &types.SkuMainData{SkuCode: "SKU-1"}},
		{SkuMainData: &types.SkuMainData{SkuCode: "SKU-2"}},
	}}
	client.views[1] = view
	// 没有待拣任务时不扫码
	client.views[2] = stationView(2, types.StationOnline, slot("S1", types.SlotBound))
	state := &fakeState{stations: []types.StationSummary{online(1), online(2)}}

	require.NoError(t, newPickingDriver(t, state, client, goPool{}, "").Tick(context.Background()))
	assert.Equal(t, []call{{Station: 1, Command: string(wes.StationScanBarcode), Body: `"SKU-1"`}}, client.Calls())
}

func TestPicking_SkipsOfflineStations(t *testing.T) {
	client := newFakeWES()
	client.views[1] = stationView(1, types.StationOnline, slot("S1", types.SlotDispatch))
	// 列表里在线但视图显示离线
	client.views[2] = stationView(2, types.StationOffline, slot("S1", types.SlotDispatch))
	client.views[3] = stationView(3, types.StationOnline, slot("S1", types.SlotDispatch))
	offline := online(3)
	offline.Status = types.StationOffline
	state := &fakeState{stations: []types.StationSummary{online(1), online(2), offline, online(4)}}

	require.NoError(t, newPickingDriver(t, state, client, goPool{}, "").Tick(context.Background()))
	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, types.StationID(1), calls[0].Station)
}

func TestPicking_CommandFailureDoesNotAbortStation(t *testing.T) {
	client := newFakeWES()
	client.fail["INPUT"] = true
	client.views[1] = stationView(1, types.StationOnline, slot("S1", types.SlotWaitingBinding), slot("S2", types.SlotDispatch))
	state := &fakeState{stations: []types.StationSummary{online(1)}}

	require.NoError(t, newPickingDriver(t, state, client, goPool{}, "").Tick(context.Background()))
	assert.Equal(t, []string{"INPUT", "INPUT", "TAP_PUT_WALL_SLOT"}, client.commands())
}

func TestPicking_UnknownSlotStatusSkipped(t *testing.T) {
	client := newFakeWES()
	client.views[1] = stationView(1, types.StationOnline, slot("S1", "MYSTERY"), slot("S2", types.SlotWaitingSeal))
	state := &fakeState{stations: []types.StationSummary{online(1)}}

	require.NoError(t, newPickingDriver(t, state, client, goPool{}, "").Tick(context.Background()))
	assert.Equal(t, []string{"TAP_PUT_WALL_SLOT"}, client.commands())
}

func TestPicking_StationRule(t *testing.T) {
	client := newFakeWES()
	for id := types.StationID(1); id <= 3; id++ {
		client.views[id] = stationView(id, types.StationOnline, slot("S1", types.SlotDispatch))
	}
	paused := online(3)
	paused.Status = types.StationPaused
	state := &fakeState{stations: []types.StationSummary{online(1), online(2), paused}}

	d := newPickingDriver(t, state, client, goPool{}, `status == "ONLINE" && id >= 2`)
	require.NoError(t, d.Tick(context.Background()))
	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, types.StationID(2), calls[0].Station)
}

func TestPicking_InvalidRule(t *testing.T) {
	_, err := NewPickingDriver(&fakeState{}, newFakeWES(), goPool{}, PickingOptions{StationRule: "id +"}, discardLogger())
	assert.Error(t, err)

	_, err = NewPickingDriver(&fakeState{}, newFakeWES(), goPool{}, PickingOptions{StationRule: `code`}, discardLogger())
	assert.Error(t, err, "规则结果必须是布尔值")
}

// slowWES 记录同一时刻正在处理的工作站
type slowWES struct {
	*fakeWES
	mu       sync.Mutex
	inflight map[types.StationID]int
	overlap  atomic.Bool
}

func (s *slowWES) StationInput(ctx context.Context, id types.StationID, code wes.StationAPICode, body any) wes.Result {
	s.mu.Lock()
	s.inflight[id]++
	if s.inflight[id] > 1 {
		s.overlap.Store(true)
	}
	s.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	s.mu.Lock()
	s.inflight[id]--
	s.mu.Unlock()
	return s.fakeWES.StationInput(ctx, id, code, body)
}

func TestPicking_TickWaitsForAllStationsAndNeverOverlaps(t *testing.T) {
	base := newFakeWES()
	var stations []types.StationSummary
	for id := types.StationID(1); id <= 8; id++ {
		base.views[id] = stationView(id, types.StationOnline, slot("S1", types.SlotDispatch), slot("S2", types.SlotWaitingSeal))
		stations = append(stations, online(id))
	}
	client := &slowWES{fakeWES: base, inflight: make(map[types.StationID]int)}
	pool := engine.NewStationPool(4, 2, discardLogger())
	defer pool.Close()

	d := newPickingDriver(t, &fakeState{stations: stations}, client, pool, "")
	// 连续多次 tick，模拟调度器串行触发
	for i := 0; i < 3; i++ {
		require.NoError(t, d.Tick(context.Background()))
		assert.Len(t, base.Calls(), (i+1)*16, "tick 返回时所有工作站都应处理完")
	}
	assert.False(t, client.overlap.Load())
}

// panicWES 对指定工作站的视图读取 panic
type panicWES struct {
	*fakeWES
	bad types.StationID
}

func (p *panicWES) StationView(ctx context.Context, id types.StationID) (*types.StationView, error) {
	if id == p.bad {
		panic("corrupted view")
	}
	return p.fakeWES.StationView(ctx, id)
}

func TestPicking_StationPanicIsolated(t *testing.T) {
	base := newFakeWES()
	base.views[2] = stationView(2, types.StationOnline, slot("S1", types.SlotDispatch))
	pool := engine.NewStationPool(2, 4, discardLogger())
	defer pool.Close()

	state := &fakeState{stations: []types.StationSummary{online(1), online(2)}}
	d := newPickingDriver(t, state, &panicWES{fakeWES: base, bad: 1}, pool, "")

	done := make(chan error, 1)
	go func() { done <- d.Tick(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("工作站 panic 导致 tick 无法结束")
	}
	assert.Equal(t, []string{"TAP_PUT_WALL_SLOT"}, base.commands())
}

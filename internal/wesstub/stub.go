// Package wesstub 提供一个内存版 WES，用于本地联调和端到端测试
// 它只实现模拟器会调用的接口，格口状态按播种墙状态表推进
package wesstub

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"wes-simulator/internal/fsm"
	"wes-simulator/internal/types"
)

// StationSeed 初始化一个工作站
type StationSeed struct {
	ID      types.StationID
	Code    string
	Status  types.StationStatus
	Slots   int    // 播种墙格口数
	SkuCode string // 拣选区展示的第一个商品
}

// Options 桩服务参数
type Options struct {
	APIKey   string  // 非空时校验 X-API-KEY
	FailRate float64 // 命令随机返回业务失败的概率
}

type station struct {
	view        types.StationView
	pendingSlot string // 已扫格口码、等待扫周转箱的格口
}

// Stub 内存 WES
type Stub struct {
	opts   Options
	table  *fsm.Table
	logger *slog.Logger

	mu       sync.Mutex
	stations map[types.StationID]*station
	commands map[string]int
	rng      *rand.Rand
}

// New 创建桩服务
func New(opts Options, seeds []StationSeed, logger *slog.Logger) *Stub {
	s := &Stub{
		opts:     opts,
		table:    fsm.NewPutWallTable(),
		logger:   logger.With("component", "wes-stub"),
		stations: make(map[types.StationID]*station),
		commands: make(map[string]int),
		rng:      rand.New(rand.NewSource(rand.Int63())),
	}
	for _, seed := range seeds {
		s.stations[seed.ID] = &station{view: newView(seed)}
	}
	return s
}

func newView(seed StationSeed) types.StationView {
	code := seed.Code
	if code == "" {
		code = fmt.Sprintf("ST-%d", seed.ID)
	}
	status := seed.Status
	if status == "" {
		status = types.StationOnline
	}
	slots := make([]types.PutWallSlot, seed.Slots)
	for i := range slots {
		slots[i] = types.PutWallSlot{
			ID:                int64(seed.ID)*1000 + int64(i+1),
			WorkStationID:     seed.ID,
			PutWallSlotCode:   fmt.Sprintf("%s-S%02d", code, i+1),
			PutWallSlotStatus: types.SlotIdle,
		}
	}
	view := types.StationView{
		WorkStationID: seed.ID,
		StationCode:   code,
		Status:        status,
		Mode:          "PICKING",
		WorkLocationArea: &types.WorkLocationArea{WorkLocationViews: []types.WorkLocation{{
			WorkLocationCode:  code + "-WL1",
			Enable:            true,
			WorkLocationSlots: []types.WorkLocationSlot{{SlotCode: code + "-LOC1"}},
		}}},
		PutWallArea: &types.PutWallArea{
			PutWallDisplayStyle: "SPLIT",
			PutWallViews:        []types.PutWall{{PutWallCode: code + "-PW1", PutWallSlots: slots}},
		},
	}
	if seed.SkuCode != "" {
		view.SkuArea = &types.SkuArea{
			PickType:     "ORDER",
			PickingViews: []types.SkuTaskInfo{{SkuMainData: &types.SkuMainData{ID: 1, SkuCode: seed.SkuCode}}},
		}
	}
	return view
}

// Handler 返回同时承载命令接口和工作站接口的路由
func (s *Stub) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.auth)

	router.GET("/api", s.getStation)
	router.PUT("/api", s.stationInput)
	router.POST("/api/execute", s.execute)
	router.POST("/inbound/plan/accept", s.plain("INBOUND_ACCEPT"))
	router.POST("/inbound/accept/completeById", s.plain("ACCEPT_ORDER_COMPLETE"))
	return router
}

func (s *Stub) auth(c *gin.Context) {
	if s.opts.APIKey != "" && c.GetHeader("X-API-KEY") != s.opts.APIKey {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "401", "message": "invalid api key"})
		return
	}
	c.Next()
}

// Commands 返回各命令的累计调用次数
func (s *Stub) Commands() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.commands))
	for k, v := range s.commands {
		out[k] = v
	}
	return out
}

// View 返回工作站视图的副本
func (s *Stub) View(id types.StationID) (types.StationView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stations[id]
	if !ok {
		return types.StationView{}, false
	}
	data, _ := json.Marshal(st.view)
	var cp types.StationView
	_ = json.Unmarshal(data, &cp)
	return cp, true
}

// Advance 模拟 WES 自身的推进：空闲格口分配订单，已到站容器离站
func (s *Stub) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.stations {
		s.eachSlot(st, func(slot *types.PutWallSlot) {
			if slot.PutWallSlotStatus == types.SlotIdle {
				s.transition(st, slot)
			}
		})
		if area := st.view.WorkLocationArea; area != nil {
			for i := range area.WorkLocationViews {
				for j := range area.WorkLocationViews[i].WorkLocationSlots {
					area.WorkLocationViews[i].WorkLocationSlots[j].ArrivedContainer = nil
				}
			}
		}
	}
}

func (s *Stub) getStation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("stationCode"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "400", "message": "invalid stationCode"})
		return
	}
	view, ok := s.View(types.StationID(id))
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Stub) stationInput(c *gin.Context) {
	id, err := strconv.ParseInt(c.Query("stationCode"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "400", "message": "invalid stationCode"})
		return
	}
	apiCode := c.Query("apiCode")
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "400", "message": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[apiCode]++
	st, ok := s.stations[types.StationID(id)]
	if !ok {
		c.JSON(http.StatusOK, gin.H{"code": "404", "message": "station not found"})
		return
	}
	if s.injectFailure() {
		c.JSON(http.StatusOK, gin.H{"code": "500", "message": "injected failure"})
		return
	}

	switch apiCode {
	case "INPUT":
		var code string
		if err := json.Unmarshal(body, &code); err != nil {
			c.JSON(http.StatusOK, gin.H{"code": "400", "message": "INPUT body must be a JSON string"})
			return
		}
		err = s.input(st, code)
	case "TAP_PUT_WALL_SLOT":
		var req struct {
			PutWallSlotCode string `json:"putWallSlotCode"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			c.JSON(http.StatusOK, gin.H{"code": "400", "message": err.Error()})
			return
		}
		err = s.tap(st, req.PutWallSlotCode)
	case "SCAN_BARCODE":
		err = s.scan(st)
	default:
		err = fmt.Errorf("unknown apiCode %q", apiCode)
	}
	if err != nil {
		s.logger.Debug("工作站输入被拒绝", "station_id", id, "api_code", apiCode, "error", err)
		c.JSON(http.StatusOK, gin.H{"code": "1", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": "0"})
}

// input 第一次扫等待绑定的格口码，第二次扫周转箱码完成绑定
func (s *Stub) input(st *station, code string) error {
	if st.pendingSlot == "" {
		slot := s.findSlot(st, code)
		if slot == nil || slot.PutWallSlotStatus != types.SlotWaitingBinding {
			return fmt.Errorf("slot %q is not waiting for binding", code)
		}
		st.pendingSlot = code
		return nil
	}
	slot := s.findSlot(st, st.pendingSlot)
	st.pendingSlot = ""
	if slot == nil || slot.PutWallSlotStatus != types.SlotWaitingBinding {
		return fmt.Errorf("pending slot no longer waiting for binding")
	}
	slot.TransferContainerCode = code
	return s.transition(st, slot)
}

func (s *Stub) tap(st *station, code string) error {
	slot := s.findSlot(st, code)
	if slot == nil {
		return fmt.Errorf("slot %q not found", code)
	}
	action, err := s.table.Action(slot.PutWallSlotStatus)
	if err != nil {
		return err
	}
	if action != fsm.ActionTapSlot {
		return fmt.Errorf("slot %q in %s cannot be tapped", code, slot.PutWallSlotStatus)
	}
	if slot.PutWallSlotStatus == types.SlotWaitingSeal {
		slot.TransferContainerCode = ""
	}
	return s.transition(st, slot)
}

// scan 一次扫码推进所有已绑定格口
func (s *Stub) scan(st *station) error {
	moved := 0
	var err error
	s.eachSlot(st, func(slot *types.PutWallSlot) {
		if slot.PutWallSlotStatus == types.SlotBound && err == nil {
			err = s.transition(st, slot)
			moved++
		}
	})
	if err != nil {
		return err
	}
	if moved == 0 {
		return fmt.Errorf("no bound slot to pick into")
	}
	return nil
}

func (s *Stub) transition(st *station, slot *types.PutWallSlot) error {
	next, err := s.table.Next(slot.PutWallSlotStatus)
	if err != nil {
		return err
	}
	s.logger.Debug("格口状态推进", "station_id", st.view.WorkStationID, "slot_code", slot.PutWallSlotCode,
		"from", slot.PutWallSlotStatus, "to", next)
	slot.PutWallSlotStatus = next
	return nil
}

func (s *Stub) eachSlot(st *station, fn func(slot *types.PutWallSlot)) {
	if st.view.PutWallArea == nil {
		return
	}
	walls := st.view.PutWallArea.PutWallViews
	for i := range walls {
		for j := range walls[i].PutWallSlots {
			fn(&walls[i].PutWallSlots[j])
		}
	}
}

func (s *Stub) findSlot(st *station, code string) *types.PutWallSlot {
	var found *types.PutWallSlot
	s.eachSlot(st, func(slot *types.PutWallSlot) {
		if found == nil && slot.PutWallSlotCode == code {
			found = slot
		}
	})
	return found
}

func (s *Stub) execute(c *gin.Context) {
	apiType := c.Query("apiType")
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "400", "message": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[apiType]++
	if s.injectFailure() {
		c.JSON(http.StatusOK, gin.H{"code": "500", "message": "injected failure"})
		return
	}
	if apiType == "CONTAINER_ARRIVE" {
		if err := s.arrive(body); err != nil {
			c.JSON(http.StatusOK, gin.H{"code": "1", "message": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"code": "0"})
}

// arrive 把容器放到请求指定的工作位上
func (s *Stub) arrive(body []byte) error {
	var req struct {
		WorkStationID    types.StationID   `json:"workStationId"`
		WorkLocationCode string            `json:"workLocationCode"`
		ContainerDetails []json.RawMessage `json:"containerDetails"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return err
	}
	st, ok := s.stations[req.WorkStationID]
	if !ok || st.view.WorkLocationArea == nil {
		return fmt.Errorf("station %d not found", req.WorkStationID)
	}
	if len(req.ContainerDetails) == 0 {
		return fmt.Errorf("no container in arrival")
	}
	views := st.view.WorkLocationArea.WorkLocationViews
	for i := range views {
		if views[i].WorkLocationCode != req.WorkLocationCode || len(views[i].WorkLocationSlots) == 0 {
			continue
		}
		views[i].WorkLocationSlots[0].ArrivedContainer = req.ContainerDetails[0]
		return nil
	}
	return fmt.Errorf("work location %q not found", req.WorkLocationCode)
}

func (s *Stub) plain(command string) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.commands[command]++
		if s.injectFailure() {
			c.JSON(http.StatusOK, gin.H{"code": "500", "message": "injected failure"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": "0"})
	}
}

// injectFailure 调用方需持有 s.mu
func (s *Stub) injectFailure() bool {
	return s.opts.FailRate > 0 && s.rng.Float64() < s.opts.FailRate
}

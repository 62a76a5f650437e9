package types

import (
	"encoding/json"
	"strings"
	"time"
)

// StationID 工作站 ID，与 WES 中 w_work_station.id 对应
type StationID int64

// StationStatus 工作站运行状态
type StationStatus string

const (
	StationOnline  StationStatus = "ONLINE"
	StationPaused  StationStatus = "PAUSED"
	StationOffline StationStatus = "OFFLINE"
)

// Actionable 只有在线或暂停的工作站才允许模拟器下发动作
func (s StationStatus) Actionable() bool {
	return s == StationOnline || s == StationPaused
}

// PutWallSlotStatus 播种墙格口状态
// 固定流转顺序: IDLE -> WAITING_BINDING -> BOUND -> DISPATCH -> WAITING_SEAL -> IDLE
type PutWallSlotStatus string

const (
	SlotIdle           PutWallSlotStatus = "IDLE"
	SlotWaitingBinding PutWallSlotStatus = "WAITING_BINDING"
	SlotBound          PutWallSlotStatus = "BOUND"
	SlotDispatch       PutWallSlotStatus = "DISPATCH"
	SlotWaitingSeal    PutWallSlotStatus = "WAITING_SEAL"
)

// TaskKind 容器搬运任务类型
type TaskKind string

const (
	TaskInbound    TaskKind = "INBOUND"
	TaskOutbound   TaskKind = "OUTBOUND"
	TaskRelocation TaskKind = "RELOCATION"
)

// StationSummary 持久化状态中的工作站记录（不含实时视图）
type StationSummary struct {
	ID     StationID
	Code   string
	Status StationStatus
	Mode   string
}

// StationView 通过 GET /api?stationCode= 实时拉取的工作站视图
// 每次读取都重新构造，驱动不跨 tick 缓存
type StationView struct {
	WorkStationID    StationID         `json:"workStationId"`
	StationCode      string            `json:"stationCode"`
	Status           StationStatus     `json:"workStationStatus"`
	Mode             string            `json:"workStationMode"`
	WorkLocationArea *WorkLocationArea `json:"workLocationArea,omitempty"`
	SkuArea          *SkuArea          `json:"skuArea,omitempty"`
	PutWallArea      *PutWallArea      `json:"putWallArea,omitempty"`
}

type WorkLocationArea struct {
	WorkLocationViews []WorkLocation `json:"workLocationViews"`
}

// WorkLocation 工作位，包含若干物理槽位
type WorkLocation struct {
	WorkLocationCode  string             `json:"workLocationCode"`
	Enable            bool               `json:"enable"`
	WorkLocationSlots []WorkLocationSlot `json:"workLocationSlots"`
}

// WorkLocationSlot 工作位槽位，ArrivedContainer 非空表示已有容器到达
type WorkLocationSlot struct {
	SlotCode         string          `json:"slotCode"`
	ArrivedContainer json.RawMessage `json:"arrivedContainer,omitempty"`
}

// Occupied 槽位上是否已有容器
func (s WorkLocationSlot) Occupied() bool {
	raw := strings.TrimSpace(string(s.ArrivedContainer))
	return raw != "" && raw != "null"
}

type SkuArea struct {
	PickType     string        `json:"pickType"`
	PickingViews []SkuTaskInfo `json:"pickingViews"`
}

type SkuTaskInfo struct {
	SkuMainData *SkuMainData `json:"skuMainDataDTO"`
}

type SkuMainData struct {
	ID      int64  `json:"id"`
	SkuCode string `json:"skuCode"`
	SkuName string `json:"skuName,omitempty"`
}

type PutWallArea struct {
	PutWallDisplayStyle string    `json:"putWallDisplayStyle"`
	PutWallViews        []PutWall `json:"putWallViews"`
}

type PutWall struct {
	PutWallCode  string        `json:"putWallCode"`
	PutWallSlots []PutWallSlot `json:"putWallSlots"`
}

// PutWallSlot 播种墙格口
type PutWallSlot struct {
	ID                    int64             `json:"id"`
	WorkStationID         StationID         `json:"workStationId"`
	PutWallSlotCode       string            `json:"putWallSlotCode"`
	PutWallSlotStatus     PutWallSlotStatus `json:"putWallSlotStatus"`
	TransferContainerCode string            `json:"transferContainerCode,omitempty"`
}

// WorkLocations 返回视图中的工作位，区域缺失时返回 nil
func (v *StationView) WorkLocations() []WorkLocation {
	if v == nil || v.WorkLocationArea == nil {
		return nil
	}
	return v.WorkLocationArea.WorkLocationViews
}

// Occupied 任意工作位槽位上有容器即视为已占用
func (v *StationView) Occupied() bool {
	for _, loc := range v.WorkLocations() {
		for _, slot := range loc.WorkLocationSlots {
			if slot.Occupied() {
				return true
			}
		}
	}
	return false
}

// ArrivalTarget 计算容器到站上报的放置位置:
// locationCode 取第一个启用且有槽位的工作位的首个槽位编码，
// workLocationCode 取声明顺序上第一个启用的工作位编码
func (v *StationView) ArrivalTarget() (locationCode, workLocationCode string) {
	for _, loc := range v.WorkLocations() {
		if !loc.Enable || len(loc.WorkLocationSlots) == 0 {
			continue
		}
		if code := loc.WorkLocationSlots[0].SlotCode; code != "" {
			locationCode = code
			break
		}
	}
	for _, loc := range v.WorkLocations() {
		if loc.Enable && loc.WorkLocationCode != "" {
			workLocationCode = loc.WorkLocationCode
			break
		}
	}
	return locationCode, workLocationCode
}

// PutWallSlots 按声明顺序展开所有播种墙的格口
func (v *StationView) PutWallSlots() []PutWallSlot {
	if v == nil || v.PutWallArea == nil {
		return nil
	}
	var slots []PutWallSlot
	for _, wall := range v.PutWallArea.PutWallViews {
		slots = append(slots, wall.PutWallSlots...)
	}
	return slots
}

// FirstPickingSkuCode 拣选区第一个待拣任务的 SKU 编码，没有则返回空串
func (v *StationView) FirstPickingSkuCode() string {
	if v == nil || v.SkuArea == nil || len(v.SkuArea.PickingViews) == 0 {
		return ""
	}
	first := v.SkuArea.PickingViews[0]
	if first.SkuMainData == nil {
		return ""
	}
	return first.SkuMainData.SkuCode
}

// TransportTask 状态为 NEW 的容器搬运任务
type TransportTask struct {
	TaskCode      string
	ContainerCode string
	ContainerFace string
	Destinations  []StationID
	Kind          TaskKind
	// DestinationsErr destinations 列无法解析时非 nil，只有出库任务需要目标工作站
	DestinationsErr error
}

// InboundOrderDetail 入库计划单明细
type InboundOrderDetail struct {
	ID          int64
	SkuCode     string
	QtyPlanned  int
	QtyAccepted int
	QtyAbnormal int
}

// Remaining 剩余待验收数量 = 计划 - 已验收 - 异常
func (d InboundOrderDetail) Remaining() int {
	return d.QtyPlanned - d.QtyAccepted - d.QtyAbnormal
}

// InboundOrder 处于 NEW/ACCEPTING 的入库计划单，附带一条待验收明细
type InboundOrder struct {
	ID              int64
	WarehouseCode   string
	CustomerOrderNo string
	Detail          InboundOrderDetail
}

// OutsideContainer 库外容器池中的容器
type OutsideContainer struct {
	ID               int64
	Code             string
	SpecCode         string
	SlotCodes        []string
	EmptySlotNum     int
	WarehouseAreaID  int64
	WarehouseLogicID int64
}

// DefaultWorkStationID 区域 ID 和逻辑区 ID 都缺失时的兜底工作站
const DefaultWorkStationID int64 = 1

// WorkStationID 兜底链: 库区 ID -> 逻辑区 ID -> 默认值
func (c OutsideContainer) WorkStationID() int64 {
	if c.WarehouseAreaID != 0 {
		return c.WarehouseAreaID
	}
	if c.WarehouseLogicID != 0 {
		return c.WarehouseLogicID
	}
	return DefaultWorkStationID
}

// AcceptOrder WES 在验收时生成的验收单
type AcceptOrder struct {
	ID int64
}

// SkuRow 商品主数据抽样行
type SkuRow struct {
	WarehouseCode string `json:"warehouseCode"`
	OwnerCode     string `json:"ownerCode"`
	SkuCode       string `json:"skuCode"`
}

// StockRow 有可用库存的批次库存抽样行
type StockRow struct {
	SkuCode       string `json:"skuCode"`
	OwnerCode     string `json:"ownerCode"`
	WarehouseCode string `json:"warehouseCode"`
	AvailableQty  int    `json:"availableQty"`
}

// CommandRecord 一次下发到 WES 的命令记录，用于事件、日志和命令日志文件
type CommandRecord struct {
	Time     time.Time `json:"time"`
	Driver   string    `json:"driver,omitempty"`
	TraceID  string    `json:"trace_id,omitempty"`
	Command  string    `json:"command"`
	Target   string    `json:"target,omitempty"`
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	Duration float64   `json:"duration_seconds"`
}

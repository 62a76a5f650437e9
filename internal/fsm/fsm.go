package fsm

import (
	"fmt"

	"wes-simulator/internal/types"
)

// Action 定义模拟操作员针对某个格口状态需要提供的输入
type Action string

const (
	ActionNone          Action = "NONE"              // 无需操作
	ActionBindContainer Action = "BIND_CONTAINER"    // 先扫格口码，再扫新周转箱码
	ActionTapSlot       Action = "TAP_PUT_WALL_SLOT" // 拍灯
	ActionScanBarcode   Action = "SCAN_BARCODE"      // 扫拣选商品条码
)

// Table 播种墙格口的显式状态转移表
// 转移本身由 WES 完成，模拟器只查表决定该提供哪种操作员输入
type Table struct {
	// transitions 定义状态转移: 当前状态 -> WES 处理输入后的下一状态
	transitions map[types.PutWallSlotStatus]types.PutWallSlotStatus
	// actions 定义每个状态需要的操作员输入
	actions map[types.PutWallSlotStatus]Action
}

// NewPutWallTable 构造固定流程 IDLE -> WAITING_BINDING -> BOUND -> DISPATCH -> WAITING_SEAL -> IDLE
func NewPutWallTable() *Table {
	t := &Table{
		transitions: make(map[types.PutWallSlotStatus]types.PutWallSlotStatus),
		actions:     make(map[types.PutWallSlotStatus]Action),
	}
	t.addTransition(types.SlotIdle, types.SlotWaitingBinding, ActionNone)
	t.addTransition(types.SlotWaitingBinding, types.SlotBound, ActionBindContainer)
	t.addTransition(types.SlotBound, types.SlotDispatch, ActionScanBarcode)
	t.addTransition(types.SlotDispatch, types.SlotWaitingSeal, ActionTapSlot)
	t.addTransition(types.SlotWaitingSeal, types.SlotIdle, ActionTapSlot)
	return t
}

func (t *Table) addTransition(from, to types.PutWallSlotStatus, action Action) {
	t.transitions[from] = to
	t.actions[from] = action
}

// Known 状态是否属于固定流程
func (t *Table) Known(s types.PutWallSlotStatus) bool {
	_, ok := t.transitions[s]
	return ok
}

// Action 返回状态对应的操作员输入，未知状态返回错误
func (t *Table) Action(s types.PutWallSlotStatus) (Action, error) {
	action, ok := t.actions[s]
	if !ok {
		return ActionNone, fmt.Errorf("invalid put wall slot status: %q", s)
	}
	return action, nil
}

// Next 返回 WES 接受输入后格口应到达的状态
func (t *Table) Next(s types.PutWallSlotStatus) (types.PutWallSlotStatus, error) {
	next, ok := t.transitions[s]
	if !ok {
		return s, fmt.Errorf("invalid transition: no successor for put wall slot status %q", s)
	}
	return next, nil
}

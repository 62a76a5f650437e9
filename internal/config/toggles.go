package config

import "sync/atomic"

// Toggles 每个驱动一个开关，tick 开始时读取一次快照
// JSON 字段名沿用控制面 /mock/config 的约定
type Toggles struct {
	ContainerArrived    bool `mapstructure:"container_arrived" json:"openMockContainerArrived"`
	CreateInboundOrder  bool `mapstructure:"create_inbound_order" json:"openMockCreateInboundPlanOrder"`
	CreateOutboundOrder bool `mapstructure:"create_outbound_order" json:"openMockCreateOutboundPlanOrder"`
	InboundAcceptance   bool `mapstructure:"inbound_acceptance" json:"openMockInboundOrderAcceptance"`
	CompleteAcceptOrder bool `mapstructure:"complete_accept_order" json:"openMockCompleteAcceptOrder"`
	Picking             bool `mapstructure:"picking" json:"openMockPicking"`
}

// AllOn 所有驱动打开
func AllOn() Toggles {
	return Toggles{
		ContainerArrived:    true,
		CreateInboundOrder:  true,
		CreateOutboundOrder: true,
		InboundAcceptance:   true,
		CompleteAcceptOrder: true,
		Picking:             true,
	}
}

// TogglePatch 部分更新，nil 字段保持不变
type TogglePatch struct {
	ContainerArrived    *bool `json:"openMockContainerArrived"`
	CreateInboundOrder  *bool `json:"openMockCreateInboundPlanOrder"`
	CreateOutboundOrder *bool `json:"openMockCreateOutboundPlanOrder"`
	InboundAcceptance   *bool `json:"openMockInboundOrderAcceptance"`
	CompleteAcceptOrder *bool `json:"openMockCompleteAcceptOrder"`
	Picking             *bool `json:"openMockPicking"`
}

// Apply 将补丁应用到 t 的副本上
func (p TogglePatch) Apply(t Toggles) Toggles {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&t.ContainerArrived, p.ContainerArrived)
	set(&t.CreateInboundOrder, p.CreateInboundOrder)
	set(&t.CreateOutboundOrder, p.CreateOutboundOrder)
	set(&t.InboundAcceptance, p.InboundAcceptance)
	set(&t.CompleteAcceptOrder, p.CompleteAcceptOrder)
	set(&t.Picking, p.Picking)
	return t
}

// ToggleStore 进程内唯一的可变配置
// 读取返回不可变副本，写入整体替换，不会出现部分更新可见的问题
type ToggleStore struct {
	current atomic.Pointer[Toggles]
}

// NewToggleStore 创建一个以 initial 为初值的开关存储
func NewToggleStore(initial Toggles) *ToggleStore {
	s := &ToggleStore{}
	s.current.Store(&initial)
	return s
}

// Snapshot 返回当前开关的副本
func (s *ToggleStore) Snapshot() Toggles {
	return *s.current.Load()
}

// Set 整体替换开关
func (s *ToggleStore) Set(t Toggles) {
	s.current.Store(&t)
}

// Update 基于当前值原子地计算新值，返回更新后的快照
func (s *ToggleStore) Update(fn func(Toggles) Toggles) Toggles {
	for {
		old := s.current.Load()
		next := fn(*old)
		if s.current.CompareAndSwap(old, &next) {
			return next
		}
	}
}

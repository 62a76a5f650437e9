package event

import (
	"sync"

	"wes-simulator/internal/types"
)

// EventType 定义事件的类型
type EventType string

// 定义模拟器发布的所有事件类型
const (
	TickStarted   EventType = "TickStarted"   // 任务 tick 开始
	TickCompleted EventType = "TickCompleted" // 任务 tick 正常结束
	TickFailed    EventType = "TickFailed"    // 任务 tick 返回错误或 panic
	TickSkipped   EventType = "TickSkipped"   // 开关关闭，本次 tick 不做任何动作
	CommandIssued EventType = "CommandIssued" // 一条命令已发往 WES（无论成功与否）
)

// Event 结构体定义了事件的数据负载
type Event struct {
	Type     EventType            // 事件类型
	Job      string               // 关联的任务名称
	TraceID  string               // tick 的 Trace ID
	Command  *types.CommandRecord // 命令记录 (仅 CommandIssued)
	Duration float64              // tick 耗时，秒 (仅 tick 结束事件)
	Error    error                // 错误信息 (仅失败事件)
}

// Handler 是事件处理函数的签名
type Handler func(e Event)

// Bus 是一个简单的内存事件总线
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus 创建一个新的事件总线实例
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe 订阅一个特定类型的事件
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish 发布一个事件，所有订阅了该事件类型的处理器都将被异步调用
// nil 总线上发布是空操作，便于测试中省略
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, handler := range b.handlers[e.Type] {
		go handler(e)
	}
}

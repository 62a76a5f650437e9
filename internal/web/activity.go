package web

import (
	"sync"
	"time"

	"wes-simulator/internal/types"
)

// JobStatus 某个任务最近一次 tick 的结果
type JobStatus struct {
	Job       string    `json:"job"`
	Outcome   string    `json:"outcome"` // running / ok / error / disabled
	TraceID   string    `json:"trace_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Duration  float64   `json:"duration_seconds"`
	Ticks     int64     `json:"ticks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ActivitySnapshot 活动快照，最近的命令按时间先后排列
type ActivitySnapshot struct {
	Jobs     map[string]JobStatus  `json:"jobs"`
	Commands []types.CommandRecord `json:"recent_commands"`
}

// ActivityTracker 记录各任务的最近 tick 和最近的命令，并通过 Hub 推送
type ActivityTracker struct {
	mu       sync.RWMutex
	jobs     map[string]JobStatus
	commands []types.CommandRecord // 环形缓冲
	next     int
	full     bool
	hub      *Hub
	now      func() time.Time
}

// NewActivityTracker 创建活动追踪器，capacity 为保留的命令条数
func NewActivityTracker(hub *Hub, capacity int) *ActivityTracker {
	if capacity <= 0 {
		capacity = 100
	}
	return &ActivityTracker{
		jobs:     make(map[string]JobStatus),
		commands: make([]types.CommandRecord, capacity),
		hub:      hub,
		now:      time.Now,
	}
}

// RecordTick 更新任务状态；outcome 为 running 时累加 tick 次数
func (a *ActivityTracker) RecordTick(job, outcome, traceID string, duration float64, err error) {
	a.mu.Lock()
	status := a.jobs[job]
	status.Job = job
	status.Outcome = outcome
	status.TraceID = traceID
	status.Duration = duration
	status.Error = ""
	if err != nil {
		status.Error = err.Error()
	}
	if outcome == "running" {
		status.Ticks++
	}
	status.UpdatedAt = a.now()
	a.jobs[job] = status
	a.mu.Unlock()

	a.hub.Broadcast(map[string]interface{}{"type": "tick", "job": status})
}

// RecordCommand 追加一条命令记录，超出容量时覆盖最旧的
func (a *ActivityTracker) RecordCommand(rec types.CommandRecord) {
	a.mu.Lock()
	a.commands[a.next] = rec
	a.next = (a.next + 1) % len(a.commands)
	if a.next == 0 {
		a.full = true
	}
	a.mu.Unlock()

	a.hub.Broadcast(map[string]interface{}{"type": "command", "command": rec})
}

// Snapshot 返回当前状态的副本
func (a *ActivityTracker) Snapshot() ActivitySnapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := ActivitySnapshot{Jobs: make(map[string]JobStatus, len(a.jobs))}
	for name, status := range a.jobs {
		snap.Jobs[name] = status
	}
	if a.full {
		snap.Commands = append(snap.Commands, a.commands[a.next:]...)
	}
	snap.Commands = append(snap.Commands, a.commands[:a.next]...)
	return snap
}

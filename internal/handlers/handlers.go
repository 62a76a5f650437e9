package handlers

import (
	"log/slog"

	"wes-simulator/internal/event"
	"wes-simulator/internal/types"
	"wes-simulator/internal/web"
)

// CommandJournal 命令日志的追加接口
type CommandJournal interface {
	Append(rec types.CommandRecord) error
}

// RegisterEventHandlers 将所有事件处理器注册到事件总线
// 驱动和客户端只发布事件，UI 和命令日志各自订阅
// 失败的 tick 和命令由调度器和客户端自行记录日志，这里不再重复
// activity 和 journal 可以为 nil
func RegisterEventHandlers(bus *event.Bus, activity *web.ActivityTracker, journal CommandJournal, logger *slog.Logger) {
	// --- Web UI 处理器 ---
	if activity != nil {
		bus.Subscribe(event.TickStarted, func(e event.Event) {
			activity.RecordTick(e.Job, "running", e.TraceID, 0, nil)
		})
		bus.Subscribe(event.TickCompleted, func(e event.Event) {
			activity.RecordTick(e.Job, "ok", e.TraceID, e.Duration, nil)
		})
		bus.Subscribe(event.TickFailed, func(e event.Event) {
			activity.RecordTick(e.Job, "error", e.TraceID, e.Duration, e.Error)
		})
		bus.Subscribe(event.TickSkipped, func(e event.Event) {
			activity.RecordTick(e.Job, "disabled", "", 0, nil)
		})
		bus.Subscribe(event.CommandIssued, func(e event.Event) {
			if e.Command != nil {
				activity.RecordCommand(*e.Command)
			}
		})
	}

	// --- 命令日志处理器 ---
	if journal != nil {
		bus.Subscribe(event.CommandIssued, func(e event.Event) {
			if e.Command == nil {
				return
			}
			if err := journal.Append(*e.Command); err != nil {
				logger.Error("写入命令日志失败", "error", err, "command", e.Command.Command)
			}
		})
	}
}

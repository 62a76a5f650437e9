package engine

import (
	"context"
	"log/slog"
	"sync"

	"wes-simulator/internal/metrics"
)

// StationPool 工作站任务池：有界队列 + 固定数量 worker
// 队列满时任务在提交方 goroutine 同步执行，形成背压而不是丢弃任务
type StationPool struct {
	tasks  chan func()
	wg     sync.WaitGroup
	once   sync.Once
	logger *slog.Logger
}

// NewStationPool 创建并启动任务池
func NewStationPool(workers, queueSize int, logger *slog.Logger) *StationPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &StationPool{
		tasks:  make(chan func(), queueSize),
		logger: logger.With("component", "station-pool"),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *StationPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		metrics.StationPoolQueued.Dec()
		task()
	}
}

// Submit 提交一个工作站任务，任务内的 panic 被捕获并记录
// 返回 false 表示队列已满，任务已在当前 goroutine 执行完毕
func (p *StationPool) Submit(ctx context.Context, name string, task func(ctx context.Context)) bool {
	guarded := func() {
		defer func() {
			if r := recover(); r != nil {
				metrics.StationTaskPanics.Inc()
				p.logger.Error("工作站任务 panic", "task", name, "panic", r)
			}
		}()
		task(ctx)
	}

	metrics.StationPoolQueued.Inc()
	select {
	case p.tasks <- guarded:
		return true
	default:
		metrics.StationPoolQueued.Dec()
	}

	metrics.StationPoolCallerRuns.Inc()
	p.logger.Warn("任务队列已满，在提交方执行", "task", name)
	guarded()
	return false
}

// Close 停止接收任务并等待已排队任务执行完
func (p *StationPool) Close() {
	p.once.Do(func() { close(p.tasks) })
	p.wg.Wait()
}

package engine

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wes-simulator/internal/config"
	"wes-simulator/internal/event"
	"wes-simulator/internal/metrics"
	"wes-simulator/internal/util"
)

// Job 一个按固定周期触发的驱动任务
type Job struct {
	Name     string
	Interval time.Duration
	// Enabled 根据本次 tick 的开关快照判断是否执行
	Enabled func(config.Toggles) bool
	Run     func(ctx context.Context) error
}

// Scheduler 按各自周期触发驱动任务
// 同一个任务的 tick 不会重叠：任务执行完才重新入堆，慢 tick 只会推迟自己的下一次触发
// 并发位不少于任务数，因此一个任务的慢 tick 不会占用其他任务的并发位
type Scheduler struct {
	mu      sync.Mutex
	queue   jobQueue      // 按到期时间排序的任务堆
	wake    chan struct{} // 新任务注册时唤醒调度循环
	workers int           // 同时执行的 tick 上限，也是可注册的任务数上限
	jobs    int           // 已注册任务数
	wg      sync.WaitGroup
	toggles *config.ToggleStore
	bus     *event.Bus
	logger  *slog.Logger
}

// NewScheduler 创建一个新的 Scheduler 实例
func NewScheduler(toggles *config.ToggleStore, workers int, bus *event.Bus, logger *slog.Logger) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		queue:   make(jobQueue, 0),
		wake:    make(chan struct{}, 1),
		workers: workers,
		toggles: toggles,
		bus:     bus,
		logger:  logger.With("component", "scheduler"),
	}
}

// Register 注册任务，首次触发在一个周期之后
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("任务定义不完整: %q", job.Name)
	}
	if job.Interval <= 0 {
		return fmt.Errorf("任务 %s 周期必须大于 0", job.Name)
	}
	s.mu.Lock()
	if s.jobs >= s.workers {
		s.mu.Unlock()
		return fmt.Errorf("任务 %s 超出并发上限: workers=%d", job.Name, s.workers)
	}
	heap.Push(&s.queue, &jobItem{job: &job, due: time.Now().Add(job.Interval)})
	s.jobs++
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.logger.Info("注册任务", "job", job.Name, "interval", job.Interval.String())
	return nil
}

// Start 启动调度循环，阻塞直到 ctx 取消且所有进行中的 tick 结束
func (s *Scheduler) Start(ctx context.Context) {
	workerPool := make(chan struct{}, s.workers)
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	defer s.wg.Wait()

	for {
		s.mu.Lock()
		wait := time.Hour
		if s.queue.Len() > 0 {
			wait = time.Until(s.queue[0].due)
		}
		if wait <= 0 {
			item := heap.Pop(&s.queue).(*jobItem)
			s.mu.Unlock()

			// 获取 worker 凭证（控制并发数）
			select {
			case workerPool <- struct{}{}:
			case <-ctx.Done():
				return
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer func() { <-workerPool }()
				s.tick(ctx, item.job)
				s.reschedule(item)
			}()
			continue
		}
		s.mu.Unlock()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			s.logger.Info("调度器停止，等待进行中的任务结束")
			return
		case <-timer.C:
		case <-s.wake:
		}
	}
}

// reschedule tick 结束后把任务放回堆中
func (s *Scheduler) reschedule(item *jobItem) {
	s.mu.Lock()
	item.due = nextDue(item.due, item.job.Interval, time.Now())
	heap.Push(&s.queue, item)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// tick 执行一次任务，错误和 panic 都在这里终止，不会影响调度循环
func (s *Scheduler) tick(ctx context.Context, job *Job) {
	if ctx.Err() != nil {
		return
	}
	toggles := s.toggles.Snapshot()
	if job.Enabled != nil && !job.Enabled(toggles) {
		metrics.DriverTicksTotal.WithLabelValues(job.Name, "disabled").Inc()
		s.bus.Publish(event.Event{Type: event.TickSkipped, Job: job.Name})
		return
	}

	// 生成 Trace ID 并注入 Context，同一次 tick 内的所有调用共享
	traceID := util.NewTraceID()
	tickCtx := util.ContextWithDriver(util.ContextWithTraceID(ctx, traceID), job.Name)
	logger := s.logger.With("job", job.Name, "trace_id", traceID)

	s.bus.Publish(event.Event{Type: event.TickStarted, Job: job.Name, TraceID: traceID})
	start := time.Now()
	err := runGuarded(tickCtx, job.Run)
	duration := time.Since(start).Seconds()
	metrics.DriverTickDuration.WithLabelValues(job.Name).Observe(duration)

	if err != nil {
		metrics.DriverTicksTotal.WithLabelValues(job.Name, "error").Inc()
		logger.Error("任务 tick 失败", "error", err, "duration_seconds", duration)
		s.bus.Publish(event.Event{Type: event.TickFailed, Job: job.Name, TraceID: traceID, Duration: duration, Error: err})
		return
	}
	metrics.DriverTicksTotal.WithLabelValues(job.Name, "ok").Inc()
	logger.Debug("任务 tick 完成", "duration_seconds", duration)
	s.bus.Publish(event.Event{Type: event.TickCompleted, Job: job.Name, TraceID: traceID, Duration: duration})
}

// runGuarded 执行 fn 并把 panic 转换为错误
func runGuarded(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

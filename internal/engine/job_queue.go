package engine

import "time"

// jobItem 是调度堆中的元素，记录任务下一次到期时间
type jobItem struct {
	job   *Job
	due   time.Time // 下一次触发时间
	index int       // 元素在堆中的索引
}

// jobQueue 实现了 heap.Interface，按到期时间排序的最小堆
type jobQueue []*jobItem

func (q jobQueue) Len() int { return len(q) }

// Less 到期早的先出；同时到期按名称排序保证顺序稳定
func (q jobQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].job.Name < q[j].job.Name
	}
	return q[i].due.Before(q[j].due)
}

func (q jobQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *jobQueue) Push(x interface{}) {
	item := x.(*jobItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *jobQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // 避免内存泄漏
	item.index = -1
	*q = old[0 : n-1]
	return item
}

// nextDue 从上一个到期时间按周期对齐，跳过执行期间错过的时间点
func nextDue(prev time.Time, interval time.Duration, now time.Time) time.Time {
	next := prev.Add(interval)
	if !next.After(now) {
		missed := now.Sub(prev) / interval
		next = prev.Add((missed + 1) * interval)
	}
	return next
}

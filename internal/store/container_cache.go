package store

import (
	"context"
	"math/rand/v2"
	"sync"

	"wes-simulator/internal/metrics"
	"wes-simulator/internal/types"
)

// ContainerSource 库外容器的数据来源
type ContainerSource interface {
	OutsideContainers(ctx context.Context) ([]types.OutsideContainer, error)
}

// ContainerCache 库外容器池的惰性缓存
// 首次使用时加载，之后保持不变直到显式 Refresh；空结果不缓存
type ContainerCache struct {
	src ContainerSource

	mu     sync.Mutex
	loaded bool
	items  []types.OutsideContainer

	// pick 从 n 个候选中选一个下标，测试可替换
	pick func(n int) int
}

// NewContainerCache 创建容器缓存
func NewContainerCache(src ContainerSource) *ContainerCache {
	return &ContainerCache{src: src, pick: rand.IntN}
}

// SetPicker 替换随机选择函数
func (c *ContainerCache) SetPicker(pick func(n int) int) {
	c.mu.Lock()
	c.pick = pick
	c.mu.Unlock()
}

// Pick 随机返回一个有空格口的库外容器，池为空时 ok 为 false
func (c *ContainerCache) Pick(ctx context.Context) (types.OutsideContainer, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		items, err := c.src.OutsideContainers(ctx)
		if err != nil {
			return types.OutsideContainer{}, false, err
		}
		if len(items) > 0 {
			c.items = items
			c.loaded = true
		}
		metrics.OutsideContainerCacheSize.Set(float64(len(c.items)))
	}
	if len(c.items) == 0 {
		return types.OutsideContainer{}, false, nil
	}
	return c.items[c.pick(len(c.items))], true, nil
}

// Refresh 丢弃缓存，下次 Pick 时重新加载
func (c *ContainerCache) Refresh() {
	c.mu.Lock()
	c.loaded = false
	c.items = nil
	c.mu.Unlock()
	metrics.OutsideContainerCacheSize.Set(0)
}

// Size 当前缓存的容器数
func (c *ContainerCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

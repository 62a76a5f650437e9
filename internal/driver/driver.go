// Package driver 实现模拟器的各个驱动：容器到站、入库验收、订单生成、工作站拣选
// 每个驱动只依赖自己需要的窄接口，测试时用假实现替换
package driver

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"wes-simulator/internal/types"
	"wes-simulator/internal/wes"
)

// StationViewer 读取工作站实时视图
type StationViewer interface {
	StationView(ctx context.Context, id types.StationID) (*types.StationView, error)
}

// CommandExecutor 调用 api/execute 命令接口
type CommandExecutor interface {
	Execute(ctx context.Context, apiType string, body any) wes.Result
}

// newUUID 默认的标识生成器
func newUUID() string {
	return uuid.New().String()
}

// sleepCtx 等待 d 或 ctx 取消
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// randBetween 返回 [lo, hi) 内的随机数，hi <= lo 时返回 lo
func randBetween(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rand.IntN(hi-lo)
}

package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wes-simulator/internal/store"
	"wes-simulator/internal/types"
	"wes-simulator/internal/wes"
)

const (
	defaultContainerFace = "FRONT"
	batchOperator        = "SYSTEM_SCHEDULER"
)

// InboundReader 入库验收需要的只读查询
type InboundReader interface {
	AcceptableInboundOrders(ctx context.Context, limit int) ([]types.InboundOrder, error)
	SkuID(ctx context.Context, skuCode, warehouseCode string) (int64, error)
	NewAcceptOrders(ctx context.Context, limit int) ([]types.AcceptOrder, error)
}

// ContainerPicker 从库外容器池中取一个容器
type ContainerPicker interface {
	Pick(ctx context.Context) (types.OutsideContainer, bool, error)
}

// AcceptanceWES 验收相关命令
type AcceptanceWES interface {
	AcceptInbound(ctx context.Context, body any) wes.Result
	CompleteAcceptOrder(ctx context.Context, acceptOrderID int64) wes.Result
}

type acceptRequest struct {
	InboundPlanOrderID       int64           `json:"inboundPlanOrderId"`
	InboundPlanOrderDetailID int64           `json:"inboundPlanOrderDetailId"`
	WarehouseCode            string          `json:"warehouseCode"`
	QtyAccepted              int             `json:"qtyAccepted"`
	SkuID                    int64           `json:"skuId"`
	TargetContainerID        int64           `json:"targetContainerId"`
	TargetContainerCode      string          `json:"targetContainerCode"`
	TargetContainerSpecCode  string          `json:"targetContainerSpecCode"`
	TargetContainerSlotCode  string          `json:"targetContainerSlotCode"`
	TargetContainerFace      string          `json:"targetContainerFace"`
	WorkStationID            int64           `json:"workStationId"`
	BatchAttributes          batchAttributes `json:"batchAttributes"`
}

type batchAttributes struct {
	BatchNo  string `json:"batchNo"`
	Operator string `json:"operator"`
}

// AcceptanceDriver 模拟收货员：为入库单分配库外容器并验收，再关闭验收单
type AcceptanceDriver struct {
	orders     InboundReader
	containers ContainerPicker
	wes        AcceptanceWES
	batchSize  int
	now        func() time.Time
	logger     *slog.Logger
}

// NewAcceptanceDriver 创建入库验收驱动
func NewAcceptanceDriver(orders InboundReader, containers ContainerPicker, client AcceptanceWES, batchSize int, logger *slog.Logger) *AcceptanceDriver {
	return &AcceptanceDriver{
		orders:     orders,
		containers: containers,
		wes:        client,
		batchSize:  batchSize,
		now:        time.Now,
		logger:     logger.With("component", "acceptance-driver"),
	}
}

// Accept 每个入库单取一条待验收明细，按剩余数量一次性验收
func (d *AcceptanceDriver) Accept(ctx context.Context) error {
	orders, err := d.orders.AcceptableInboundOrders(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("读取入库单失败: %w", err)
	}
	if len(orders) == 0 {
		d.logger.Debug("没有待验收的入库单")
		return nil
	}

	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return err
		}
		logger := d.logger.With("order_id", order.ID, "detail_id", order.Detail.ID)

		remaining := order.Detail.Remaining()
		if remaining <= 0 {
			continue
		}

		skuID, err := d.orders.SkuID(ctx, order.Detail.SkuCode, order.WarehouseCode)
		if errors.Is(err, store.ErrNotFound) {
			logger.Warn("SKU 不存在，跳过入库单", "sku_code", order.Detail.SkuCode, "warehouse_code", order.WarehouseCode)
			continue
		}
		if err != nil {
			logger.Warn("查询 SKU 失败，跳过入库单", "error", err)
			continue
		}

		container, ok, err := d.containers.Pick(ctx)
		if err != nil {
			return fmt.Errorf("读取库外容器失败: %w", err)
		}
		if !ok {
			// 容器池全局共享，后续订单同样取不到
			logger.Warn("没有可用的库外容器，本次 tick 结束", "warehouse_code", order.WarehouseCode)
			return nil
		}
		if len(container.SlotCodes) == 0 {
			logger.Warn("容器没有格口，跳过入库单", "container_code", container.Code)
			continue
		}

		req := acceptRequest{
			InboundPlanOrderID:       order.ID,
			InboundPlanOrderDetailID: order.Detail.ID,
			WarehouseCode:            order.WarehouseCode,
			QtyAccepted:              remaining,
			SkuID:                    skuID,
			TargetContainerID:        container.ID,
			TargetContainerCode:      container.Code,
			TargetContainerSpecCode:  container.SpecCode,
			TargetContainerSlotCode:  container.SlotCodes[0],
			TargetContainerFace:      defaultContainerFace,
			WorkStationID:            container.WorkStationID(),
			BatchAttributes: batchAttributes{
				BatchNo:  fmt.Sprintf("BATCH_%d", d.now().UnixMilli()),
				Operator: batchOperator,
			},
		}
		if res := d.wes.AcceptInbound(ctx, req); !res.OK {
			logger.Warn("验收失败", "container_code", container.Code, "error", res.Err)
			continue
		}
		logger.Info("验收完成", "qty", remaining, "container_code", container.Code, "slot_code", req.TargetContainerSlotCode)
	}
	return nil
}

// Complete 关闭一个 NEW 状态的验收单，失败时等下一次 tick 自然重试
func (d *AcceptanceDriver) Complete(ctx context.Context) error {
	orders, err := d.orders.NewAcceptOrders(ctx, 1)
	if err != nil {
		return fmt.Errorf("读取验收单失败: %w", err)
	}
	if len(orders) == 0 {
		d.logger.Debug("没有待完成的验收单")
		return nil
	}

	id := orders[0].ID
	if res := d.wes.CompleteAcceptOrder(ctx, id); !res.OK {
		d.logger.Warn("完成验收单失败", "accept_order_id", id, "error", res.Err)
		return nil
	}
	d.logger.Info("验收单已完成", "accept_order_id", id)
	return nil
}

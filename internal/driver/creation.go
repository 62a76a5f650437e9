package driver

import (
	"context"
	"fmt"
	"log/slog"

	"wes-simulator/internal/types"
	"wes-simulator/internal/wes"
)

// CatalogSampler 抽样商品和库存
type CatalogSampler interface {
	SampleSkus(ctx context.Context) ([]types.SkuRow, error)
	SampleStock(ctx context.Context) ([]types.StockRow, error)
}

type inboundDetail struct {
	types.SkuRow
	QtyRestocked int `json:"qtyRestocked"`
}

type inboundOrderRequest struct {
	CustomerOrderNo string          `json:"customerOrderNo"`
	LpnCode         string          `json:"lpnCode"`
	WarehouseCode   string          `json:"warehouseCode"`
	StorageType     string          `json:"storageType"`
	Details         []inboundDetail `json:"details"`
}

type outboundDetail struct {
	SkuCode       string `json:"skuCode"`
	OwnerCode     string `json:"ownerCode"`
	WarehouseCode string `json:"warehouseCode"`
	QtyRequired   int    `json:"qtyRequired"`
}

type outboundOrderRequest struct {
	CustomerOrderNo string           `json:"customerOrderNo"`
	WarehouseCode   string           `json:"warehouseCode"`
	ShortOutbound   bool             `json:"shortOutbound"`
	Details         []outboundDetail `json:"details"`
}

// CreationDriver 负载生成：按抽样数据创建入库和出库订单
type CreationDriver struct {
	catalog CatalogSampler
	wes     CommandExecutor
	newID   func() string
	intn    func(lo, hi int) int
	logger  *slog.Logger
}

// NewCreationDriver 创建订单生成驱动
func NewCreationDriver(catalog CatalogSampler, client CommandExecutor, logger *slog.Logger) *CreationDriver {
	return &CreationDriver{
		catalog: catalog,
		wes:     client,
		newID:   newUUID,
		intn:    randBetween,
		logger:  logger.With("component", "creation-driver"),
	}
}

// CreateInbound 创建一张入库计划单，每行数量在 [1, 1000) 内随机
func (d *CreationDriver) CreateInbound(ctx context.Context) error {
	skus, err := d.catalog.SampleSkus(ctx)
	if err != nil {
		return fmt.Errorf("抽样商品失败: %w", err)
	}
	if len(skus) == 0 {
		return nil
	}

	details := make([]inboundDetail, 0, len(skus))
	for _, sku := range skus {
		details = append(details, inboundDetail{SkuRow: sku, QtyRestocked: d.intn(1, 1000)})
	}
	req := inboundOrderRequest{
		CustomerOrderNo: d.newID(),
		LpnCode:         d.newID(),
		WarehouseCode:   skus[0].WarehouseCode,
		StorageType:     "STORAGE",
		Details:         details,
	}
	if res := d.wes.Execute(ctx, wes.APIOrderInboundCreate, req); !res.OK {
		d.logger.Warn("创建入库单失败", "customer_order_no", req.CustomerOrderNo, "error", res.Err)
		return nil
	}
	d.logger.Info("入库单已创建", "customer_order_no", req.CustomerOrderNo, "lines", len(details))
	return nil
}

// CreateOutbound 创建一张出库计划单，可用量为 1 时需求为 1，否则在 [1, 100) 内随机
func (d *CreationDriver) CreateOutbound(ctx context.Context) error {
	stock, err := d.catalog.SampleStock(ctx)
	if err != nil {
		return fmt.Errorf("抽样库存失败: %w", err)
	}
	if len(stock) == 0 {
		return nil
	}

	details := make([]outboundDetail, 0, len(stock))
	for _, row := range stock {
		qty := 1
		if row.AvailableQty != 1 {
			qty = d.intn(1, 100)
		}
		details = append(details, outboundDetail{
			SkuCode:       row.SkuCode,
			OwnerCode:     row.OwnerCode,
			WarehouseCode: row.WarehouseCode,
			QtyRequired:   qty,
		})
	}
	req := outboundOrderRequest{
		CustomerOrderNo: d.newID(),
		WarehouseCode:   stock[0].WarehouseCode,
		ShortOutbound:   true,
		Details:         details,
	}
	if res := d.wes.Execute(ctx, wes.APIOrderOutboundCreate, req); !res.OK {
		d.logger.Warn("创建出库单失败", "customer_order_no", req.CustomerOrderNo, "error", res.Err)
		return nil
	}
	d.logger.Info("出库单已创建", "customer_order_no", req.CustomerOrderNo, "lines", len(details))
	return nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync/atomic"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"wes-simulator/internal/types"
)

// ErrNotFound 查询未命中，调用方应跳过当前实体而不是失败
var ErrNotFound = errors.New("not found")

// Store 对 WES 持久化状态的只读查询
// 每个方法返回一次新的快照，从不写库
type Store struct {
	db       *sql.DB
	skuCount atomic.Int64 // m_sku_main_data 行数，首次查询后缓存
	logger   *slog.Logger
}

// Open 打开 WES 数据库连接，driver 为 mysql 或 sqlite3
func Open(driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == "sqlite3" {
		// SQLite 只支持单写者，限制连接数避免 SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	return New(db), nil
}

// New 基于已有连接构造 Store
func New(db *sql.DB) *Store {
	return &Store{db: db, logger: slog.Default().With("component", "store")}
}

// SetLogger 替换跳过坏数据行时使用的日志
func (s *Store) SetLogger(logger *slog.Logger) {
	s.logger = logger.With("component", "store")
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PendingTransportTasks 读取至多 limit 条状态为 NEW 的容器搬运任务
func (s *Store) PendingTransportTasks(ctx context.Context, limit int) ([]types.TransportTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT container_code, container_face, destinations, task_code, container_task_type
		FROM e_container_task
		WHERE task_status = 'NEW'
		ORDER BY id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query container tasks: %w", err)
	}
	defer rows.Close()

	var tasks []types.TransportTask
	for rows.Next() {
		var (
			containerCode, face, destinations, taskCode, kind sql.NullString
		)
		if err := rows.Scan(&containerCode, &face, &destinations, &taskCode, &kind); err != nil {
			return nil, fmt.Errorf("scan container task: %w", err)
		}
		task := types.TransportTask{
			TaskCode:      taskCode.String,
			ContainerCode: containerCode.String,
			ContainerFace: face.String,
			Kind:          types.TaskKind(kind.String),
		}
		// 坏的 destinations 不影响同批其他任务，也不影响不需要目标站的任务
		task.Destinations, task.DestinationsErr = parseStationIDs(destinations.String)
		if task.DestinationsErr != nil {
			task.DestinationsErr = fmt.Errorf("task %s destinations: %w", task.TaskCode, task.DestinationsErr)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate container tasks: %w", err)
	}
	return tasks, nil
}

// AcceptableInboundOrders 读取至多 limit 个仍有待验收明细的 NEW/ACCEPTING 入库单
// 每个订单附带第一条剩余数量大于 0 的明细
func (s *Store) AcceptableInboundOrders(ctx context.Context, limit int) ([]types.InboundOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.warehouse_code, o.customer_order_no
		FROM w_inbound_plan_order o
		WHERE o.inbound_plan_order_status IN ('NEW', 'ACCEPTING')
		  AND EXISTS (
		    SELECT 1 FROM w_inbound_plan_order_detail d
		    WHERE d.inbound_plan_order_id = o.id
		      AND COALESCE(d.qty_accepted, 0) < d.qty_restocked - COALESCE(d.qty_abnormal, 0))
		ORDER BY o.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query inbound orders: %w", err)
	}

	var orders []types.InboundOrder
	for rows.Next() {
		var (
			o               types.InboundOrder
			customerOrderNo sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.WarehouseCode, &customerOrderNo); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan inbound order: %w", err)
		}
		o.CustomerOrderNo = customerOrderNo.String
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate inbound orders: %w", err)
	}
	// 先释放连接再查明细，sqlite 只有一个连接
	rows.Close()

	result := make([]types.InboundOrder, 0, len(orders))
	for _, o := range orders {
		detail, err := s.pendingDetail(ctx, o.ID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		o.Detail = detail
		result = append(result, o)
	}
	return result, nil
}

func (s *Store) pendingDetail(ctx context.Context, orderID int64) (types.InboundOrderDetail, error) {
	var d types.InboundOrderDetail
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sku_code, qty_restocked, COALESCE(qty_accepted, 0), COALESCE(qty_abnormal, 0)
		FROM w_inbound_plan_order_detail
		WHERE inbound_plan_order_id = ?
		  AND COALESCE(qty_accepted, 0) < qty_restocked - COALESCE(qty_abnormal, 0)
		ORDER BY id
		LIMIT 1`, orderID).Scan(&d.ID, &d.SkuCode, &d.QtyPlanned, &d.QtyAccepted, &d.QtyAbnormal)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrNotFound
	}
	if err != nil {
		return d, fmt.Errorf("query inbound order %d detail: %w", orderID, err)
	}
	return d, nil
}

// SkuID 按仓库和 SKU 编码查 SKU ID，未找到返回 ErrNotFound
func (s *Store) SkuID(ctx context.Context, skuCode, warehouseCode string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM m_sku_main_data WHERE sku_code = ? AND warehouse_code = ?`,
		skuCode, warehouseCode).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("sku %s in warehouse %s: %w", skuCode, warehouseCode, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("query sku id: %w", err)
	}
	return id, nil
}

// OutsideContainers 查询库外且仍有空格口的容器
func (s *Store) OutsideContainers(ctx context.Context) ([]types.OutsideContainer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, container_code, container_spec_code, container_slots,
		       empty_slot_num, warehouse_area_id, warehouse_logic_id
		FROM w_container
		WHERE container_status = 'OUT_SIDE' AND empty_slot_num > 0
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query outside containers: %w", err)
	}
	defer rows.Close()

	var containers []types.OutsideContainer
	for rows.Next() {
		var (
			c               types.OutsideContainer
			spec, slots     sql.NullString
			areaID, logicID sql.NullInt64
		)
		if err := rows.Scan(&c.ID, &c.Code, &spec, &slots, &c.EmptySlotNum, &areaID, &logicID); err != nil {
			return nil, fmt.Errorf("scan container: %w", err)
		}
		codes, err := parseSlotCodes(slots.String)
		if err != nil {
			s.logger.Warn("跳过格口数据损坏的容器", "container_code", c.Code, "error", err)
			continue
		}
		c.SpecCode = spec.String
		c.SlotCodes = codes
		c.WarehouseAreaID = areaID.Int64
		c.WarehouseLogicID = logicID.Int64
		containers = append(containers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate containers: %w", err)
	}
	return containers, nil
}

// NewAcceptOrders 读取至多 limit 个状态为 NEW 的验收单
func (s *Store) NewAcceptOrders(ctx context.Context, limit int) ([]types.AcceptOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM w_accept_order
		WHERE accept_order_status = 'NEW'
		ORDER BY id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query accept orders: %w", err)
	}
	defer rows.Close()

	var orders []types.AcceptOrder
	for rows.Next() {
		var o types.AcceptOrder
		if err := rows.Scan(&o.ID); err != nil {
			return nil, fmt.Errorf("scan accept order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accept orders: %w", err)
	}
	return orders, nil
}

// WorkStations 读取所有工作站记录
func (s *Store) WorkStations(ctx context.Context) ([]types.StationSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, station_code, work_station_status, work_station_mode
		FROM w_work_station
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query work stations: %w", err)
	}
	defer rows.Close()

	var stations []types.StationSummary
	for rows.Next() {
		var (
			st                 types.StationSummary
			code, status, mode sql.NullString
		)
		if err := rows.Scan(&st.ID, &code, &status, &mode); err != nil {
			return nil, fmt.Errorf("scan work station: %w", err)
		}
		st.Code = code.String
		st.Status = types.StationStatus(status.String)
		st.Mode = mode.String
		stations = append(stations, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate work stations: %w", err)
	}
	return stations, nil
}

// SampleSkus 在商品主数据上随机取一个 10~99 行的窗口
func (s *Store) SampleSkus(ctx context.Context) ([]types.SkuRow, error) {
	count, err := s.countSku(ctx)
	if err != nil {
		return nil, err
	}
	n := rand.IntN(90) + 10
	offset := rand.IntN(max(1, int(count)-n))

	rows, err := s.db.QueryContext(ctx, `
		SELECT warehouse_code, owner_code, sku_code
		FROM m_sku_main_data
		ORDER BY id
		LIMIT ? OFFSET ?`, n, offset)
	if err != nil {
		return nil, fmt.Errorf("query sku window: %w", err)
	}
	defer rows.Close()

	var skus []types.SkuRow
	for rows.Next() {
		var (
			r     types.SkuRow
			owner sql.NullString
		)
		if err := rows.Scan(&r.WarehouseCode, &owner, &r.SkuCode); err != nil {
			return nil, fmt.Errorf("scan sku: %w", err)
		}
		r.OwnerCode = owner.String
		skus = append(skus, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate skus: %w", err)
	}
	return skus, nil
}

func (s *Store) countSku(ctx context.Context) (int64, error) {
	if n := s.skuCount.Load(); n > 0 {
		return n, nil
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(id) FROM m_sku_main_data`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count skus: %w", err)
	}
	s.skuCount.Store(n)
	return n, nil
}

// SampleStock 在有可用库存的批次库存上随机取一个 10~999 行的窗口
func (s *Store) SampleStock(ctx context.Context) ([]types.StockRow, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(id) FROM w_sku_batch_stock WHERE available_qty > 0`).Scan(&total); err != nil {
		return nil, fmt.Errorf("count sku batch stock: %w", err)
	}
	if total == 0 {
		return nil, nil
	}
	n := rand.IntN(990) + 10
	offset := rand.IntN(max(1, int(total)-n))

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.sku_code, m.owner_code, m.warehouse_code, b.available_qty
		FROM w_sku_batch_stock b
		INNER JOIN m_sku_main_data m ON b.sku_id = m.id
		WHERE b.available_qty > 0
		ORDER BY b.id
		LIMIT ? OFFSET ?`, n, offset)
	if err != nil {
		return nil, fmt.Errorf("query sku batch stock: %w", err)
	}
	defer rows.Close()

	var stock []types.StockRow
	for rows.Next() {
		var (
			r     types.StockRow
			owner sql.NullString
		)
		if err := rows.Scan(&r.SkuCode, &owner, &r.WarehouseCode, &r.AvailableQty); err != nil {
			return nil, fmt.Errorf("scan sku batch stock: %w", err)
		}
		r.OwnerCode = owner.String
		stock = append(stock, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sku batch stock: %w", err)
	}
	return stock, nil
}

// Bootstrap 基础数据行：第一个仓库、第一个库区、第一个容器规格
type Bootstrap struct {
	WarehouseCode     string
	WarehouseAreaID   int64
	ContainerSpecCode string
}

// Bootstrap 读取基础数据，缺失的项保持零值
func (s *Store) Bootstrap(ctx context.Context) (Bootstrap, error) {
	var b Bootstrap
	queries := []struct {
		sql  string
		dest any
	}{
		{`SELECT warehouse_code FROM m_warehouse_main_data ORDER BY id LIMIT 1`, &b.WarehouseCode},
		{`SELECT id FROM w_warehouse_area ORDER BY id LIMIT 1`, &b.WarehouseAreaID},
		{`SELECT container_spec_code FROM w_container_spec WHERE container_type = 'CONTAINER' ORDER BY id LIMIT 1`, &b.ContainerSpecCode},
	}
	for _, q := range queries {
		err := s.db.QueryRowContext(ctx, q.sql).Scan(q.dest)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return b, fmt.Errorf("query bootstrap: %w", err)
		}
	}
	return b, nil
}

// parseStationIDs 解析 destinations JSON 数组，兼容数字和字符串两种元素
func parseStationIDs(raw string) ([]types.StationID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	ids := make([]types.StationID, 0, len(items))
	for _, item := range items {
		text := strings.Trim(string(item), `"`)
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid station id %s: %w", item, err)
		}
		ids = append(ids, types.StationID(id))
	}
	return ids, nil
}

// parseSlotCodes 解析 container_slots JSON，按顺序取出 containerSlotCode
func parseSlotCodes(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	var slots []struct {
		ContainerSlotCode string `json:"containerSlotCode"`
	}
	if err := json.Unmarshal([]byte(raw), &slots); err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(slots))
	for _, slot := range slots {
		if slot.ContainerSlotCode != "" {
			codes = append(codes, slot.ContainerSlotCode)
		}
	}
	return codes, nil
}

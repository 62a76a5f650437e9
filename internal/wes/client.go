// Package wes 封装对 WES 的全部 HTTP 调用：工作站视图读取和命令下发
package wes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"wes-simulator/internal/config"
	"wes-simulator/internal/event"
	"wes-simulator/internal/metrics"
	"wes-simulator/internal/types"
	"wes-simulator/internal/util"
)

var (
	// ErrStationUnavailable 工作站视图缺失或无法解析
	ErrStationUnavailable = errors.New("station unavailable")
	// ErrCircuitOpen 该接口族的熔断器处于打开状态，调用未发出
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// Command API 类型 (api/execute?apiType=)
const (
	APIContainerArrive           = "CONTAINER_ARRIVE"
	APIContainerTaskStatusReport = "CONTAINER_TASK_STATUS_REPORT"
	APIOrderInboundCreate        = "ORDER_INBOUND_CREATE"
	APIOrderOutboundCreate       = "ORDER_OUTBOUND_CREATE"
)

// StationAPICode 工作站操作接口编码 (api?apiCode=)
type StationAPICode string

const (
	StationInput          StationAPICode = "INPUT"
	StationTapPutWallSlot StationAPICode = "TAP_PUT_WALL_SLOT"
	StationScanBarcode    StationAPICode = "SCAN_BARCODE"
)

// 熔断器按接口族划分，工作站接口族再按工作站划分
const (
	familyStationView  = "station-view"
	familyStationInput = "station-input"
	familyExecute      = "execute"
	familyInbound      = "inbound"
)

// Result 一次命令调用的归一化结果
type Result struct {
	OK         bool
	StatusCode int
	Code       string // 响应体中的 code 字段
	Err        error
}

// Options 客户端参数
type Options struct {
	APIBaseURL      string
	StationBaseURL  string
	APIKey          string
	ConnectTimeout  time.Duration
	RequestTimeout  time.Duration
	BreakerFailures uint32
	BreakerOpen     time.Duration
}

// OptionsFromConfig 从 wes 配置段构造客户端参数
func OptionsFromConfig(c config.WESConfig) Options {
	return Options{
		APIBaseURL:      c.APIBaseURL(),
		StationBaseURL:  c.StationBaseURL(),
		APIKey:          c.APIKey,
		ConnectTimeout:  config.Ms(c.ConnectTimeoutMs),
		RequestTimeout:  config.Ms(c.RequestTimeoutMs),
		BreakerFailures: c.BreakerFailures,
		BreakerOpen:     config.Ms(c.BreakerOpenMs),
	}
}

// Client WES HTTP 客户端，并发安全，所有驱动共用一个实例
type Client struct {
	apiBase     string
	stationBase string
	apiKey      string
	http        *http.Client
	breakerOpts Options
	mu          sync.Mutex
	breakers    map[string]*gobreaker.CircuitBreaker
	bus         *event.Bus
	logger      *slog.Logger
}

// NewClient 创建 WES 客户端，bus 可以为 nil
func NewClient(opts Options, bus *event.Bus, logger *slog.Logger) *Client {
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerOpen <= 0 {
		opts.BreakerOpen = 10 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.ConnectTimeout > 0 {
		transport.DialContext = (&net.Dialer{Timeout: opts.ConnectTimeout}).DialContext
	}

	return &Client{
		apiBase:     opts.APIBaseURL,
		stationBase: opts.StationBaseURL,
		apiKey:      opts.APIKey,
		http:        &http.Client{Timeout: opts.RequestTimeout, Transport: transport},
		breakerOpts: opts,
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
		bus:         bus,
		logger:      logger.With("component", "wes-client"),
	}
}

// breaker 按名称取熔断器，不存在时创建
// 工作站接口按工作站划分，一个工作站异常不影响其他工作站
func (c *Client) breaker(name string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[name]; ok {
		return cb
	}
	opts := c.breakerOpts
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     opts.BreakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("熔断器状态变化", "name", name, "from", from.String(), "to", to.String())
			metrics.WESBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	c.breakers[name] = cb
	return cb
}

func stationBreaker(family string, id types.StationID) string {
	return family + "/" + strconv.FormatInt(int64(id), 10)
}

// response 传输层结果，只有传输错误和 5xx 计入熔断
type response struct {
	status int
	body   []byte
}

func (c *Client) roundTrip(ctx context.Context, breaker, method, target string, body []byte) (response, error) {
	out, err := c.breaker(breaker).Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("X-API-KEY", c.apiKey)
		}
		// 将 Trace ID 放入 HTTP Header 中，实现跨服务追踪
		if traceID, ok := util.TraceIDFromContext(ctx); ok {
			req.Header.Set("X-Trace-ID", traceID)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("读取响应失败: %w", err)
		}
		r := response{status: resp.StatusCode, body: data}
		if resp.StatusCode >= http.StatusInternalServerError {
			return r, fmt.Errorf("WES 服务错误: %d", resp.StatusCode)
		}
		return r, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return response{}, fmt.Errorf("%s: %w", breaker, ErrCircuitOpen)
	}
	r, _ := out.(response)
	return r, err
}

// StationView 读取工作站实时视图
// 响应缺失、非 2xx 或无法解析都返回 ErrStationUnavailable
func (c *Client) StationView(ctx context.Context, id types.StationID) (*types.StationView, error) {
	target := c.stationBase + "/api?" + url.Values{"stationCode": {strconv.FormatInt(int64(id), 10)}}.Encode()
	resp, err := c.roundTrip(ctx, stationBreaker(familyStationView, id), http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("station %d: %w: %w", id, ErrStationUnavailable, err)
	}
	if resp.status < 200 || resp.status >= 300 || len(bytes.TrimSpace(resp.body)) == 0 {
		return nil, fmt.Errorf("station %d: %w: status %d", id, ErrStationUnavailable, resp.status)
	}
	var view types.StationView
	if err := json.Unmarshal(resp.body, &view); err != nil {
		return nil, fmt.Errorf("station %d: %w: %v", id, ErrStationUnavailable, err)
	}
	return &view, nil
}

// Execute 调用 api/execute 通用命令接口
func (c *Client) Execute(ctx context.Context, apiType string, body any) Result {
	target := c.apiBase + "/api/execute?" + url.Values{"apiType": {apiType}}.Encode()
	return c.command(ctx, familyExecute, apiType, apiType, http.MethodPost, target, body)
}

// AcceptInbound 提交一条入库验收
func (c *Client) AcceptInbound(ctx context.Context, body any) Result {
	return c.command(ctx, familyInbound, "INBOUND_ACCEPT", "", http.MethodPost, c.apiBase+"/inbound/plan/accept", body)
}

// CompleteAcceptOrder 按 ID 完成验收单
func (c *Client) CompleteAcceptOrder(ctx context.Context, acceptOrderID int64) Result {
	id := strconv.FormatInt(acceptOrderID, 10)
	target := c.apiBase + "/inbound/accept/completeById?" + url.Values{"acceptOrderId": {id}}.Encode()
	return c.command(ctx, familyInbound, "ACCEPT_ORDER_COMPLETE", id, http.MethodPost, target, nil)
}

// StationInput 向工作站发送一次操作员输入
// body 按 JSON 编码，字符串编码后是 JSON 字符串字面量
func (c *Client) StationInput(ctx context.Context, id types.StationID, code StationAPICode, body any) Result {
	station := strconv.FormatInt(int64(id), 10)
	target := c.stationBase + "/api?" + url.Values{"stationCode": {station}, "apiCode": {string(code)}}.Encode()
	return c.command(ctx, stationBreaker(familyStationInput, id), string(code), station, http.MethodPut, target, body)
}

// command 发送命令并归一化结果，同时记录指标、日志和 CommandIssued 事件
func (c *Client) command(ctx context.Context, breaker, command, target, method, endpoint string, body any) Result {
	start := time.Now()
	logger := c.logger.With("command", command)
	if target != "" {
		logger = logger.With("target", target)
	}
	if traceID, ok := util.TraceIDFromContext(ctx); ok {
		logger = logger.With("trace_id", traceID)
	}

	var payload []byte
	var result Result
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			result = Result{Err: fmt.Errorf("编码请求体失败: %w", err)}
		}
	}
	if result.Err == nil {
		resp, err := c.roundTrip(ctx, breaker, method, endpoint, payload)
		if err != nil {
			result = Result{StatusCode: resp.status, Err: err}
		} else {
			result = evaluate(resp.status, resp.body)
		}
	}

	elapsed := time.Since(start)
	outcome := "ok"
	if !result.OK {
		outcome = "error"
		logger.Warn("WES 命令失败", "status", result.StatusCode, "code", result.Code, "error", result.Err)
	} else {
		logger.Debug("WES 命令成功", "status", result.StatusCode)
	}
	metrics.CommandsTotal.WithLabelValues(command, outcome).Inc()
	metrics.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())

	record := types.CommandRecord{
		Time:     start,
		Driver:   util.DriverFromContext(ctx),
		Command:  command,
		Target:   target,
		OK:       result.OK,
		Duration: elapsed.Seconds(),
	}
	record.TraceID, _ = util.TraceIDFromContext(ctx)
	if result.Err != nil {
		record.Error = result.Err.Error()
	}
	c.bus.Publish(event.Event{Type: event.CommandIssued, Job: record.Driver, TraceID: record.TraceID, Command: &record})
	return result
}

// evaluate 判定命令是否成功: 2xx 且 (响应体为空 或 code == "0")
func evaluate(status int, body []byte) Result {
	r := Result{StatusCode: status}
	if status < 200 || status >= 300 {
		r.Err = fmt.Errorf("WES 返回非成功状态: %d", status)
		return r
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		r.OK = true
		return r
	}

	var envelope struct {
		Code    json.RawMessage `json:"code"`
		Message string          `json:"message"`
		Msg     string          `json:"msg"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		r.Err = fmt.Errorf("无法解析响应体: %w", err)
		return r
	}
	r.Code = codeString(envelope.Code)
	if r.Code == "0" {
		r.OK = true
		return r
	}
	msg := envelope.Message
	if msg == "" {
		msg = envelope.Msg
	}
	r.Err = fmt.Errorf("WES 业务失败: code=%q message=%q", r.Code, msg)
	return r
}

// codeString 兼容字符串和数字两种 code
func codeString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

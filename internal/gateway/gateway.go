// Package gateway 是后端 REST API 的类型化门面：每个操作恰好一次 HTTP 请求，
// 失败统一为 *Error（transport / status / decode），不做重试。
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/pkg/marketspec"
	"github.com/betbot/tradedash/pkg/ratelimit"
	sdkhttp "github.com/betbot/tradedash/pkg/sdk/http"
)

var log = logrus.WithField("module", "gateway")

// Op 操作名，用于日志、指标和 mock 计数
type Op string

const (
	OpSummary        Op = "summary"
	OpPositions      Op = "positions"
	OpTrades         Op = "trades"
	OpMarketData     Op = "market_data"
	OpListStrategies Op = "list_strategies"
	OpCreateStrategy Op = "create_strategy"
	OpUpdateStrategy Op = "update_strategy"
	OpToggleStrategy Op = "toggle_strategy"
	OpDeleteStrategy Op = "delete_strategy"
)

// Portfolio 组合轮询用到的读接口
type Portfolio interface {
	Summary(ctx context.Context) (*domain.PortfolioSummary, error)
	Positions(ctx context.Context) ([]domain.Position, error)
	Trades(ctx context.Context, limit int) ([]domain.Trade, error)
}

// Market 行情读接口
type Market interface {
	MarketData(ctx context.Context, key marketspec.Key, limit int) ([]domain.MarketDataBar, error)
}

// Strategies 策略读写接口
type Strategies interface {
	ListStrategies(ctx context.Context) ([]domain.Strategy, error)
	CreateStrategy(ctx context.Context, in domain.StrategyInput) (*domain.MutationResult, error)
	UpdateStrategy(ctx context.Context, id int64, in domain.StrategyInput) (*domain.MutationResult, error)
	SetStrategyActive(ctx context.Context, id int64, active bool) (*domain.MutationResult, error)
	DeleteStrategy(ctx context.Context, id int64) error
}

// Gateway 全部操作
type Gateway interface {
	Portfolio
	Market
	Strategies
}

// Client 基于 HTTP 的 Gateway 实现
type Client struct {
	http    *sdkhttp.Client
	limiter ratelimit.RateLimiter
}

// Option 客户端选项
type Option func(*Client)

// WithRateLimiter 所有操作共享一个限速器，等待受请求 ctx 控制
func WithRateLimiter(l ratelimit.RateLimiter) Option {
	return func(c *Client) {
		if l != nil {
			c.limiter = l
		}
	}
}

// WithTransport 替换底层 RoundTripper
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.http.SetTransport(rt) }
}

// New 创建网关客户端。timeout 是单次 HTTP 请求的兜底超时
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		http:    sdkhttp.NewClient(baseURL, timeout),
		limiter: ratelimit.Unlimited{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

var _ Gateway = (*Client)(nil)

func (c *Client) Summary(ctx context.Context) (*domain.PortfolioSummary, error) {
	var out *domain.PortfolioSummary
	if err := c.do(ctx, OpSummary, http.MethodGet, "portfolio/summary", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, &Error{Kind: KindDecode, Op: OpSummary, Err: errors.New("empty summary")}
	}
	return out, nil
}

func (c *Client) Positions(ctx context.Context) ([]domain.Position, error) {
	out := []domain.Position{}
	if err := c.do(ctx, OpPositions, http.MethodGet, "portfolio/positions", nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (c *Client) Trades(ctx context.Context, limit int) ([]domain.Trade, error) {
	out := []domain.Trade{}
	opt := &sdkhttp.RequestOptions{Params: map[string]any{"limit": limit}}
	if err := c.do(ctx, OpTrades, http.MethodGet, "portfolio/trades", opt, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (c *Client) MarketData(ctx context.Context, key marketspec.Key, limit int) ([]domain.MarketDataBar, error) {
	out := []domain.MarketDataBar{}
	opt := &sdkhttp.RequestOptions{
		PathParams: map[string]string{"symbol": key.Symbol},
		Params: map[string]any{
			"exchange":  key.Exchange,
			"timeframe": key.Timeframe.String(),
			"limit":     limit,
		},
	}
	if err := c.do(ctx, OpMarketData, http.MethodGet, "market-data/{symbol}", opt, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (c *Client) ListStrategies(ctx context.Context) ([]domain.Strategy, error) {
	out := []domain.Strategy{}
	if err := c.do(ctx, OpListStrategies, http.MethodGet, "strategies", nil, &out); err != nil {
		return nil, err
	}
	return nonNil(out), nil
}

func (c *Client) CreateStrategy(ctx context.Context, in domain.StrategyInput) (*domain.MutationResult, error) {
	var out domain.MutationResult
	opt := &sdkhttp.RequestOptions{Data: in}
	if err := c.do(ctx, OpCreateStrategy, http.MethodPost, "strategies", opt, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateStrategy(ctx context.Context, id int64, in domain.StrategyInput) (*domain.MutationResult, error) {
	var out domain.MutationResult
	opt := &sdkhttp.RequestOptions{Data: in, PathParams: idParam(id)}
	if err := c.do(ctx, OpUpdateStrategy, http.MethodPut, "strategies/{id}", opt, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SetStrategyActive(ctx context.Context, id int64, active bool) (*domain.MutationResult, error) {
	var out domain.MutationResult
	opt := &sdkhttp.RequestOptions{
		Data:       map[string]bool{"is_active": active},
		PathParams: idParam(id),
	}
	if err := c.do(ctx, OpToggleStrategy, http.MethodPatch, "strategies/{id}", opt, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteStrategy(ctx context.Context, id int64) error {
	opt := &sdkhttp.RequestOptions{PathParams: idParam(id)}
	return c.do(ctx, OpDeleteStrategy, http.MethodDelete, "strategies/{id}", opt, nil)
}

// do 发请求并分类失败。out 为 nil 时忽略响应体；
// 写操作允许空 body。
func (c *Client) do(ctx context.Context, op Op, method, path string, opt *sdkhttp.RequestOptions, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}

	resp, err := c.http.DoRequest(ctx, method, path, opt)
	if err != nil {
		log.WithError(err).WithField("op", op).Debug("request failed")
		return &Error{Kind: KindTransport, Op: op, Err: err}
	}
	entry := log.WithFields(logrus.Fields{
		"op":         op,
		"status":     resp.StatusCode,
		"request_id": resp.RequestID,
		"took":       resp.Duration,
	})
	if !resp.IsSuccess() {
		entry.Debug("non-2xx response")
		return &Error{
			Kind:      KindStatus,
			Op:        op,
			Status:    resp.StatusCode,
			Body:      truncate(resp.Body),
			RequestID: resp.RequestID,
		}
	}
	entry.Debug("ok")

	if out == nil {
		return nil
	}
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 && method != http.MethodGet {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Kind: KindDecode, Op: op, RequestID: resp.RequestID, Err: err}
	}
	return nil
}

func idParam(id int64) map[string]string {
	return map[string]string{"id": strconv.FormatInt(id, 10)}
}

// nonNil JSON null 也视为空列表
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

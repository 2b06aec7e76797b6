package gateway

import (
	"context"
	"sync"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/pkg/marketspec"
)

// MockRequest 记录一次写操作
type MockRequest struct {
	Op     Op
	ID     int64
	Active bool
	Input  domain.StrategyInput
}

// Mock 内存网关（测试与离线演示用）。
// 策略列表是有状态的：写操作成功后再 List 能看到变化。
type Mock struct {
	mu sync.Mutex

	// Response data
	SummaryResponse   *domain.PortfolioSummary
	PositionsResponse []domain.Position
	TradesResponse    []domain.Trade
	MarketResponse    map[marketspec.Key][]domain.MarketDataBar
	Strategies        []domain.Strategy

	// SummaryFn 非空时按调用序号（从 1 开始）生成 summary
	SummaryFn func(n int) *domain.PortfolioSummary

	// OnCall 在应答前调用，可阻塞以模拟慢请求，返回错误则该次调用失败
	OnCall func(ctx context.Context, op Op, n int) error

	// Call tracking
	Calls    map[Op]int
	Requests []MockRequest

	// Error injection
	ErrorOnNext map[Op]error
	Errors      map[Op]error

	nextID int64
}

// NewMock creates a new mock gateway
func NewMock() *Mock {
	return &Mock{
		MarketResponse: make(map[marketspec.Key][]domain.MarketDataBar),
		Calls:          make(map[Op]int),
		ErrorOnNext:    make(map[Op]error),
		Errors:         make(map[Op]error),
	}
}

var _ Gateway = (*Mock)(nil)

func (m *Mock) trackCall(ctx context.Context, op Op) (int, error) {
	m.mu.Lock()
	m.Calls[op]++
	n := m.Calls[op]
	var injected error
	if err, ok := m.ErrorOnNext[op]; ok {
		delete(m.ErrorOnNext, op)
		injected = err
	} else if err, ok := m.Errors[op]; ok {
		injected = err
	}
	hook := m.OnCall
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, op, n); err != nil {
			return n, err
		}
	}
	if injected != nil {
		return n, injected
	}
	if err := ctx.Err(); err != nil {
		return n, &Error{Kind: KindTransport, Op: op, Err: err}
	}
	return n, nil
}

// CallCount 线程安全地读取调用次数
func (m *Mock) CallCount(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[op]
}

// Mutations 返回写操作记录的副本
func (m *Mock) Mutations() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockRequest(nil), m.Requests...)
}

// SetSummary 并发安全地替换 summary 应答
func (m *Mock) SetSummary(s *domain.PortfolioSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SummaryResponse = s
}

func (m *Mock) Summary(ctx context.Context) (*domain.PortfolioSummary, error) {
	n, err := m.trackCall(ctx, OpSummary)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SummaryFn != nil {
		return m.SummaryFn(n), nil
	}
	if m.SummaryResponse == nil {
		return &domain.PortfolioSummary{}, nil
	}
	s := *m.SummaryResponse
	return &s, nil
}

func (m *Mock) Positions(ctx context.Context) ([]domain.Position, error) {
	if _, err := m.trackCall(ctx, OpPositions); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Position{}, m.PositionsResponse...), nil
}

func (m *Mock) Trades(ctx context.Context, limit int) ([]domain.Trade, error) {
	if _, err := m.trackCall(ctx, OpTrades); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]domain.Trade{}, m.TradesResponse...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Mock) MarketData(ctx context.Context, key marketspec.Key, limit int) ([]domain.MarketDataBar, error) {
	if _, err := m.trackCall(ctx, OpMarketData); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	bars := m.MarketResponse[key]
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return append([]domain.MarketDataBar{}, bars...), nil
}

func (m *Mock) ListStrategies(ctx context.Context) ([]domain.Strategy, error) {
	if _, err := m.trackCall(ctx, OpListStrategies); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Strategy{}, m.Strategies...), nil
}

func (m *Mock) CreateStrategy(ctx context.Context, in domain.StrategyInput) (*domain.MutationResult, error) {
	if _, err := m.trackCall(ctx, OpCreateStrategy); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, MockRequest{Op: OpCreateStrategy, Input: in})
	for _, s := range m.Strategies {
		if s.ID > m.nextID {
			m.nextID = s.ID
		}
	}
	m.nextID++
	m.Strategies = append(m.Strategies, domain.Strategy{
		ID:          m.nextID,
		Name:        in.Name,
		Description: in.Description,
		Parameters:  in.Parameters,
		IsActive:    true,
	})
	return &domain.MutationResult{ID: m.nextID}, nil
}

func (m *Mock) UpdateStrategy(ctx context.Context, id int64, in domain.StrategyInput) (*domain.MutationResult, error) {
	if _, err := m.trackCall(ctx, OpUpdateStrategy); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, MockRequest{Op: OpUpdateStrategy, ID: id, Input: in})
	i := m.find(id)
	if i < 0 {
		return nil, &Error{Kind: KindStatus, Op: OpUpdateStrategy, Status: 404, Body: `{"detail":"Strategy not found"}`}
	}
	m.Strategies[i].Name = in.Name
	m.Strategies[i].Description = in.Description
	m.Strategies[i].Parameters = in.Parameters
	return &domain.MutationResult{ID: id}, nil
}

func (m *Mock) SetStrategyActive(ctx context.Context, id int64, active bool) (*domain.MutationResult, error) {
	if _, err := m.trackCall(ctx, OpToggleStrategy); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, MockRequest{Op: OpToggleStrategy, ID: id, Active: active})
	i := m.find(id)
	if i < 0 {
		return nil, &Error{Kind: KindStatus, Op: OpToggleStrategy, Status: 404, Body: `{"detail":"Strategy not found"}`}
	}
	m.Strategies[i].IsActive = active
	return &domain.MutationResult{ID: id, IsActive: &active}, nil
}

func (m *Mock) DeleteStrategy(ctx context.Context, id int64) error {
	if _, err := m.trackCall(ctx, OpDeleteStrategy); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, MockRequest{Op: OpDeleteStrategy, ID: id})
	i := m.find(id)
	if i < 0 {
		return &Error{Kind: KindStatus, Op: OpDeleteStrategy, Status: 404, Body: `{"detail":"Strategy not found"}`}
	}
	m.Strategies = append(m.Strategies[:i], m.Strategies[i+1:]...)
	return nil
}

func (m *Mock) find(id int64) int {
	for i, s := range m.Strategies {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// FailNext 并发安全地让下一次 op 调用失败
func (m *Mock) FailNext(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorOnNext[op] = err
}

// SetError 并发安全地设置（err 为 nil 时清除）持续失败
func (m *Mock) SetError(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.Errors, op)
		return
	}
	m.Errors[op] = err
}

// SetMarket 并发安全地替换某个窗口的行情应答
func (m *Mock) SetMarket(key marketspec.Key, bars []domain.MarketDataBar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarketResponse[key] = bars
}

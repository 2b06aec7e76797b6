package dashboard

import (
	"context"
	"time"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/poller"
	"github.com/betbot/tradedash/internal/strategies"
	"github.com/betbot/tradedash/pkg/marketspec"
)

// Snapshot 仪表板快照数据，由各数据源回调拼装后推给 UI
type Snapshot struct {
	Title string

	// 组合
	View       *domain.ViewModel
	LastReport poller.Report
	HasReport  bool

	// 行情
	ChartKey     marketspec.Key
	Chart        *poller.ChartView
	ChartLoading bool

	// 策略
	Strategies strategies.Snapshot

	// 最近一次错误（展示在底栏）
	LastError   string
	LastErrorAt time.Time
}

func (s *Snapshot) clone() *Snapshot {
	if s == nil {
		return &Snapshot{}
	}
	c := *s
	c.View = s.View.Clone()
	if s.Chart != nil {
		chart := *s.Chart
		c.Chart = &chart
	}
	c.Strategies.Strategies = append([]domain.Strategy{}, s.Strategies.Strategies...)
	return &c
}

// Actions 界面触发的操作。调用发生在 tea.Cmd 的 goroutine 中，可以阻塞
type Actions interface {
	Refresh(ctx context.Context) error
	SetTimeframe(tf marketspec.Timeframe)
	Toggle(ctx context.Context, id int64, current bool) error
	Delete(ctx context.Context, id int64) error
	Save(ctx context.Context, mode strategies.Mode, id int64, in domain.StrategyInput) error
}

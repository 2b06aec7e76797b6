package reconcile

import (
	"sync"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/pkg/marketspec"
)

// ChartResult 一次行情请求的结果
type ChartResult struct {
	Generation domain.Generation
	Key        marketspec.Key
	Bars       []domain.MarketDataBar
	Err        error
}

// ChartSnapshot 当前展示的行情数据
type ChartSnapshot struct {
	Generation domain.Generation
	Key        marketspec.Key
	Bars       []domain.MarketDataBar
}

// SeriesCell 行情展示单元。
// 发布条件：成功 且 代次 >= floor 且 代次 > 当前展示代次。
// 窗口切换时调用 Supersede 抬高 floor，旧窗口的迟到结果被丢弃。
type SeriesCell struct {
	mu      sync.Mutex
	floor   domain.Generation
	current *ChartSnapshot
}

// NewSeriesCell 创建空单元
func NewSeriesCell() *SeriesCell {
	return &SeriesCell{}
}

// Supersede 抬高 floor（单调，不会回退）
func (c *SeriesCell) Supersede(gen domain.Generation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen > c.floor {
		c.floor = gen
	}
}

// Floor 当前 floor
func (c *SeriesCell) Floor() domain.Generation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.floor
}

// Publish 尝试安装行情结果
func (c *SeriesCell) Publish(res ChartResult) Decision {
	if res.Err != nil {
		return Failed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if res.Generation < c.floor {
		return Superseded
	}
	if c.current != nil && res.Generation <= c.current.Generation {
		return Stale
	}
	c.current = &ChartSnapshot{
		Generation: res.Generation,
		Key:        res.Key,
		Bars:       append([]domain.MarketDataBar{}, res.Bars...),
	}
	return Published
}

// Current 当前快照副本；尚未发布时 ok=false
func (c *SeriesCell) Current() (ChartSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ChartSnapshot{}, false
	}
	s := *c.current
	s.Bars = append([]domain.MarketDataBar{}, c.current.Bars...)
	return s, true
}

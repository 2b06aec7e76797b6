package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/gateway"
	"github.com/betbot/tradedash/internal/observe"
	"github.com/betbot/tradedash/internal/reconcile"
	"github.com/betbot/tradedash/internal/series"
	"github.com/betbot/tradedash/pkg/marketspec"
	"github.com/betbot/tradedash/pkg/syncgroup"
)

// ChartView 已发布的行情及其图表序列
type ChartView struct {
	Generation domain.Generation
	Key        marketspec.Key
	Bars       []domain.MarketDataBar
	Series     series.Series
}

// ChartOptions 行情加载参数
type ChartOptions struct {
	Limit          int           // 默认 100
	RequestTimeout time.Duration // 默认 10s
	Sink           observe.Sink
	OnUpdate       func(ChartView) // 发布成功后调用（在请求 goroutine 中）
	OnLoading      func(marketspec.Key)
}

// ChartLoader 窗口（symbol/exchange/timeframe）变化时重新加载行情。
// 每次加载分配新代次并抬高 floor，旧窗口的迟到结果被丢弃。
type ChartLoader struct {
	gw   gateway.Market
	cell *reconcile.SeriesCell
	opts ChartOptions

	gen atomic.Uint64

	// mu 保护 key/stopped，并与发布互斥，Stop 返回后不再有写入
	mu      sync.Mutex
	key     marketspec.Key
	hasKey  bool
	stopped bool
	view    *ChartView

	group *syncgroup.SyncGroup
}

// NewChartLoader 创建行情加载器
func NewChartLoader(gw gateway.Market, opts ChartOptions) *ChartLoader {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.Sink == nil {
		opts.Sink = observe.Nop{}
	}
	return &ChartLoader{
		gw:    gw,
		cell:  reconcile.NewSeriesCell(),
		opts:  opts,
		group: syncgroup.NewSyncGroup(),
	}
}

// SetKey 切换窗口并发起加载；窗口未变化时不做任何事。返回分配的代次（未发起时为 0）
func (c *ChartLoader) SetKey(key marketspec.Key) domain.Generation {
	c.mu.Lock()
	if c.stopped || (c.hasKey && c.key == key) {
		c.mu.Unlock()
		return 0
	}
	c.key, c.hasKey = key, true
	gen := c.nextLocked()
	c.mu.Unlock()
	c.start(gen, key)
	return gen
}

// Refresh 对当前窗口重新加载
func (c *ChartLoader) Refresh() domain.Generation {
	c.mu.Lock()
	if c.stopped || !c.hasKey {
		c.mu.Unlock()
		return 0
	}
	key := c.key
	gen := c.nextLocked()
	c.mu.Unlock()
	c.start(gen, key)
	return gen
}

// Key 当前窗口
func (c *ChartLoader) Key() (marketspec.Key, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key, c.hasKey
}

// View 最近发布的行情视图
func (c *ChartLoader) View() (ChartView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view == nil {
		return ChartView{}, false
	}
	return *c.view, true
}

// Stop 停止接收结果。在途请求继续完成但结果被丢弃
func (c *ChartLoader) Stop() {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()
}

// Wait 等待在途请求结束
func (c *ChartLoader) Wait() {
	c.group.Wait()
}

// nextLocked 分配代次并抬高 floor。与读写 key 在同一把锁内完成，
// 代次顺序因此与窗口切换顺序一致
func (c *ChartLoader) nextLocked() domain.Generation {
	gen := domain.Generation(c.gen.Add(1))
	c.cell.Supersede(gen)
	return gen
}

func (c *ChartLoader) start(gen domain.Generation, key marketspec.Key) {
	c.opts.Sink.Cycle(observe.SourceChart, gen, observe.Issued)
	// 已被更新的窗口取代时不再提示加载中
	if c.opts.OnLoading != nil && c.cell.Floor() == gen {
		c.opts.OnLoading(key)
	}
	c.group.Go(func() { c.fetch(gen, key) })
}

func (c *ChartLoader) fetch(gen domain.Generation, key marketspec.Key) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
	defer cancel()
	bars, err := c.gw.MarketData(ctx, key, c.opts.Limit)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		c.opts.Sink.Cycle(observe.SourceChart, gen, observe.Discarded)
		return
	}
	decision := c.cell.Publish(reconcile.ChartResult{Generation: gen, Key: key, Bars: bars, Err: err})
	var view *ChartView
	if decision == reconcile.Published {
		if !series.Ascending(bars) {
			log.WithField("key", key.String()).Warn("market data is not in ascending time order")
		}
		view = &ChartView{
			Generation: gen,
			Key:        key,
			Bars:       bars,
			Series:     series.Transform(key, bars),
		}
		c.view = view
	}
	c.mu.Unlock()

	switch decision {
	case reconcile.Published:
		c.opts.Sink.Cycle(observe.SourceChart, gen, observe.Published)
		if c.opts.OnUpdate != nil {
			c.opts.OnUpdate(*view)
		}
	case reconcile.Superseded:
		c.opts.Sink.Cycle(observe.SourceChart, gen, observe.Superseded)
	case reconcile.Stale:
		c.opts.Sink.Cycle(observe.SourceChart, gen, observe.Discarded)
	case reconcile.Failed:
		c.opts.Sink.Cycle(observe.SourceChart, gen, observe.Failed)
		c.opts.Sink.Failure(observe.SourceChart, string(gateway.OpMarketData), err)
	}
}

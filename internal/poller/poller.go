// Package poller 驱动组合数据的定时轮询与行情数据的按需加载。
//
// 每个周期在发起时分配严格递增的代次；周期之间允许重叠，
// 谁能展示由 reconcile 的代次规则决定。Stop 之后迟到的结果一律丢弃。
package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/gateway"
	"github.com/betbot/tradedash/internal/observe"
	"github.com/betbot/tradedash/internal/reconcile"
	"github.com/betbot/tradedash/pkg/sigchan"
	"github.com/betbot/tradedash/pkg/syncgroup"
)

var log = logrus.WithField("module", "poller")

// ErrAlreadyStarted Start 只能调用一次
var ErrAlreadyStarted = errors.New("poller already started")

// State 轮询状态
type State int32

const (
	Idle State = iota
	Polling
	Success
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	case Success:
		return "success"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Report 一个周期结束时的报告
type Report struct {
	Generation domain.Generation
	State      State
	Decision   reconcile.Decision
	Err        error
	Duration   time.Duration
}

// Options 轮询参数
type Options struct {
	Interval       time.Duration // 默认 5s
	RequestTimeout time.Duration // 每个周期的截止时间，默认 10s
	TradesLimit    int           // 默认 10
	Sink           observe.Sink
	OnCycle        func(Report) // 在轮询循环中调用，不要阻塞
}

func (o *Options) withDefaults() {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	if o.TradesLimit <= 0 {
		o.TradesLimit = 10
	}
	if o.Sink == nil {
		o.Sink = observe.Nop{}
	}
}

type cycleOutcome struct {
	res     reconcile.CycleResult
	started time.Time
}

// Poller 组合轮询器
type Poller struct {
	gw   gateway.Portfolio
	rec  *reconcile.Reconciler
	opts Options

	gen      atomic.Uint64
	inflight atomic.Int32
	last     atomic.Int32 // 最近一次完成周期的 State

	refresh *sigchan.Chan
	results chan cycleOutcome
	done    chan struct{}

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once

	loopGroup  *syncgroup.SyncGroup
	fetchGroup *syncgroup.SyncGroup
}

// New 创建轮询器
func New(gw gateway.Portfolio, rec *reconcile.Reconciler, opts Options) *Poller {
	opts.withDefaults()
	return &Poller{
		gw:         gw,
		rec:        rec,
		opts:       opts,
		refresh:    sigchan.New(1),
		results:    make(chan cycleOutcome),
		done:       make(chan struct{}),
		loopGroup:  syncgroup.NewSyncGroup(),
		fetchGroup: syncgroup.NewSyncGroup(),
	}
}

// Start 立即发起一个周期，之后每个 Interval 发起一次。非阻塞
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	if ctx == nil {
		ctx = context.Background()
	}
	p.loopGroup.Go(func() { p.loop(ctx) })
	return nil
}

// Refresh 请求一个额外周期（非阻塞，多次请求会合并）
func (p *Poller) Refresh() {
	p.refresh.Emit()
}

// Stop 停止定时器并等待循环退出。在途请求不会被中止，它们的结果会被丢弃
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.done) })
	p.loopGroup.Wait()
}

// Wait 等待所有在途请求结束（Stop 之后用于测试与退出清理）
func (p *Poller) Wait() {
	p.fetchGroup.Wait()
}

// State 当前状态：有在途周期时为 Polling
func (p *Poller) State() State {
	if p.stopped() {
		return Idle
	}
	if p.inflight.Load() > 0 {
		return Polling
	}
	return State(p.last.Load())
}

// Generation 最近发起的代次
func (p *Poller) Generation() domain.Generation {
	return domain.Generation(p.gen.Load())
}

func (p *Poller) stopped() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *Poller) loop(ctx context.Context) {
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.issue()
	for {
		select {
		case <-p.done:
			return
		case <-ctx.Done():
			p.stopOnce.Do(func() { close(p.done) })
			return
		case <-ticker.C:
			p.issue()
		case <-p.refresh.C():
			p.issue()
		case out := <-p.results:
			p.apply(out)
		}
	}
}

// issue 分配代次并发起一个周期，不等待结果
func (p *Poller) issue() {
	gen := domain.Generation(p.gen.Add(1))
	p.inflight.Add(1)
	p.opts.Sink.Cycle(observe.SourcePortfolio, gen, observe.Issued)
	p.fetchGroup.Go(func() { p.fetch(gen) })
}

// fetch 并发拉取三个数据源。截止时间独立于生命周期 ctx：
// Stop 不中止请求，只丢弃结果。
func (p *Poller) fetch(gen domain.Generation) {
	started := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), p.opts.RequestTimeout)
	defer cancel()

	res := reconcile.CycleResult{Generation: gen}
	// 任一数据源失败则整个周期失败，取消其余请求
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res.Summary, res.SummaryErr = p.gw.Summary(gctx)
		return res.SummaryErr
	})
	g.Go(func() error {
		res.Positions, res.PositionsErr = p.gw.Positions(gctx)
		return res.PositionsErr
	})
	g.Go(func() error {
		res.Trades, res.TradesErr = p.gw.Trades(gctx, p.opts.TradesLimit)
		return res.TradesErr
	})
	_ = g.Wait()

	select {
	case p.results <- cycleOutcome{res: res, started: started}:
	case <-p.done:
		p.inflight.Add(-1)
		log.WithField("generation", gen).Debug("late result after stop dropped")
	}
}

// apply 在循环 goroutine 中执行，是唯一写展示状态的地方
func (p *Poller) apply(out cycleOutcome) {
	p.inflight.Add(-1)
	gen := out.res.Generation
	if p.stopped() {
		p.opts.Sink.Cycle(observe.SourcePortfolio, gen, observe.Discarded)
		return
	}

	decision := p.rec.Publish(out.res)
	report := Report{
		Generation: gen,
		Decision:   decision,
		Duration:   time.Since(out.started),
	}
	switch decision {
	case reconcile.Published:
		report.State = Success
		p.opts.Sink.Cycle(observe.SourcePortfolio, gen, observe.Published)
	case reconcile.Stale:
		report.State = Success
		p.opts.Sink.Cycle(observe.SourcePortfolio, gen, observe.Discarded)
	default:
		report.State = Failed
		report.Err = out.res.Cause()
		p.opts.Sink.Cycle(observe.SourcePortfolio, gen, observe.Failed)
		p.reportFailures(out.res)
	}
	p.last.Store(int32(report.State))
	if p.opts.OnCycle != nil {
		p.opts.OnCycle(report)
	}
}

func (p *Poller) reportFailures(res reconcile.CycleResult) {
	failures := []struct {
		op  gateway.Op
		err error
	}{
		{gateway.OpSummary, res.SummaryErr},
		{gateway.OpPositions, res.PositionsErr},
		{gateway.OpTrades, res.TradesErr},
	}
	primary := false
	for _, f := range failures {
		if f.err != nil && !errors.Is(f.err, context.Canceled) {
			primary = true
		}
	}
	for _, f := range failures {
		// 被兄弟请求失败连带取消的不重复上报
		if f.err == nil || (primary && errors.Is(f.err, context.Canceled)) {
			continue
		}
		p.opts.Sink.Failure(observe.SourcePortfolio, string(f.op), f.err)
	}
}

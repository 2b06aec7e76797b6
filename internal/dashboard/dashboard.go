// Package dashboard 是终端看板：订阅组合视图、行情与策略列表，渲染为 Bubble Tea 界面。
// 非终端环境下退化为定期写日志。
package dashboard

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/poller"
	"github.com/betbot/tradedash/internal/reconcile"
	"github.com/betbot/tradedash/internal/strategies"
	"github.com/betbot/tradedash/pkg/marketspec"
)

var log = logrus.WithField("module", "dashboard")

// ErrNotAttached 数据源还没有挂上
var ErrNotAttached = errors.New("dashboard: sources not attached")

// Sources 看板驱动的数据源
type Sources struct {
	Poller      *poller.Poller
	Chart       *poller.ChartLoader
	Coordinator *strategies.Coordinator
}

// Dashboard 看板
type Dashboard struct {
	mu sync.RWMutex

	opts     Options
	src      Sources
	snapshot *Snapshot
	updateCh chan *Snapshot

	program       *tea.Program
	programDone   chan struct{}
	exitCallback  func()
	stopRequested bool
	headless      bool
}

// New 创建看板。数据源通过 Attach 挂上（数据源的回调需要先拿到看板）
func New(opts Options) *Dashboard {
	opts.withDefaults()
	return &Dashboard{
		opts:        opts,
		snapshot:    &Snapshot{Title: opts.Title},
		updateCh:    make(chan *Snapshot, 10),
		programDone: make(chan struct{}),
	}
}

// Attach 挂上数据源
func (d *Dashboard) Attach(src Sources) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.src = src
	if src.Chart != nil {
		if key, ok := src.Chart.Key(); ok {
			d.snapshot.ChartKey = key
		}
	}
}

func (d *Dashboard) SetExitCallback(callback func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exitCallback = callback
}

// Watch 订阅 reconciler 的发布，直到 ctx 结束
func (d *Dashboard) Watch(ctx context.Context, rec *reconcile.Reconciler) {
	ch, cancel := rec.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case vm, ok := <-ch:
				if !ok {
					return
				}
				d.OnView(vm)
			}
		}
	}()
}

// OnView 组合视图发布
func (d *Dashboard) OnView(vm *domain.ViewModel) {
	d.update(func(s *Snapshot) {
		// 订阅端已经只推最新值，这里再按代次兜底
		if s.View != nil && vm != nil && vm.Generation <= s.View.Generation {
			return
		}
		s.View = vm
	})
}

// OnCycle 组合周期结束
func (d *Dashboard) OnCycle(rep poller.Report) {
	d.update(func(s *Snapshot) {
		s.LastReport = rep
		s.HasReport = true
		if rep.Err != nil {
			s.LastError = rep.Err.Error()
			s.LastErrorAt = time.Now()
		}
	})
}

// OnChartLoading 行情开始加载
func (d *Dashboard) OnChartLoading(key marketspec.Key) {
	d.update(func(s *Snapshot) {
		s.ChartKey = key
		s.ChartLoading = true
	})
}

// OnChart 行情发布
func (d *Dashboard) OnChart(v poller.ChartView) {
	d.update(func(s *Snapshot) {
		s.Chart = &v
		s.ChartLoading = v.Key != s.ChartKey
	})
}

// OnStrategies 策略列表更新
func (d *Dashboard) OnStrategies(snap strategies.Snapshot) {
	d.update(func(s *Snapshot) {
		s.Strategies = snap
	})
}

// OnError 记录一条错误到底栏
func (d *Dashboard) OnError(err error) {
	if err == nil {
		return
	}
	d.update(func(s *Snapshot) {
		s.LastError = err.Error()
		s.LastErrorAt = time.Now()
	})
}

// update 修改快照并推送副本；channel 满时丢掉最旧的
func (d *Dashboard) update(fn func(s *Snapshot)) {
	d.mu.Lock()
	fn(d.snapshot)
	snap := d.snapshot.clone()
	d.mu.Unlock()

	for {
		select {
		case d.updateCh <- snap:
			return
		default:
		}
		select {
		case <-d.updateCh:
		default:
		}
	}
}

// GetSnapshot 当前快照副本
func (d *Dashboard) GetSnapshot() *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot.clone()
}

// Refresh 立即刷新组合、行情与策略列表
func (d *Dashboard) Refresh(ctx context.Context) error {
	src := d.sources()
	if src.Poller == nil {
		return ErrNotAttached
	}
	src.Poller.Refresh()
	if src.Chart != nil {
		src.Chart.Refresh()
	}
	if src.Coordinator != nil {
		if _, err := src.Coordinator.List(ctx); err != nil {
			return err
		}
	}
	return nil
}

// SetTimeframe 切换图表周期
func (d *Dashboard) SetTimeframe(tf marketspec.Timeframe) {
	src := d.sources()
	if src.Chart == nil {
		return
	}
	key, ok := src.Chart.Key()
	if !ok {
		d.mu.RLock()
		key = d.snapshot.ChartKey
		d.mu.RUnlock()
	}
	src.Chart.SetKey(key.WithTimeframe(tf))
}

func (d *Dashboard) Toggle(ctx context.Context, id int64, current bool) error {
	c := d.sources().Coordinator
	if c == nil {
		return ErrNotAttached
	}
	_, err := c.ToggleActive(ctx, id, current)
	d.OnError(err)
	return err
}

// Delete 界面已完成 y/n 确认
func (d *Dashboard) Delete(ctx context.Context, id int64) error {
	c := d.sources().Coordinator
	if c == nil {
		return ErrNotAttached
	}
	_, err := c.Delete(ctx, id, strategies.Always(true))
	d.OnError(err)
	return err
}

func (d *Dashboard) Save(ctx context.Context, mode strategies.Mode, id int64, in domain.StrategyInput) error {
	c := d.sources().Coordinator
	if c == nil {
		return ErrNotAttached
	}
	return strategies.Submit(ctx, c, mode, id, in)
}

var _ Actions = (*Dashboard)(nil)

func (d *Dashboard) sources() Sources {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.src
}

// Start 启动界面（非阻塞）。stdout 不是终端时改为写日志
func (d *Dashboard) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.program != nil || d.headless {
		return nil
	}

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		d.headless = true
		go d.logLoop(ctx)
		return nil
	}

	m := newModel(d.updateCh, d, d.opts)
	d.program = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("Dashboard UI panic: %v", r)
			}
			close(d.programDone)
		}()
		if _, err := d.program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			log.Errorf("Dashboard UI error: %v", err)
		}

		d.mu.RLock()
		stopRequested := d.stopRequested
		cb := d.exitCallback
		d.mu.RUnlock()
		if !stopRequested && cb != nil {
			cb()
		}
	}()
	return nil
}

// logLoop 无终端时，每次视图代次变化写一行摘要
func (d *Dashboard) logLoop(ctx context.Context) {
	var last domain.Generation
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-d.updateCh:
			vm := snap.View
			if vm == nil || vm.Summary == nil || vm.Generation == last {
				continue
			}
			last = vm.Generation
			f := d.opts.Formatter
			log.WithFields(logrus.Fields{
				"generation": vm.Generation,
				"positions":  len(vm.Positions),
				"trades":     len(vm.Trades),
				"strategies": len(snap.Strategies.Strategies),
			}).Infof("portfolio %s (P&L %s)", f.Currency(vm.Summary.TotalValue), f.Currency(vm.Summary.UnrealizedPnL))
		}
	}
}

// Stop 退出界面
func (d *Dashboard) Stop() {
	d.mu.Lock()
	program := d.program
	d.stopRequested = true
	d.mu.Unlock()

	if program != nil {
		program.Quit()
		select {
		case <-d.programDone:
		case <-time.After(1 * time.Second):
		}
	}
}

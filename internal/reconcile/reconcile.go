// Package reconcile 持有当前展示的 ViewModel，按代次决定是否接受新结果。
//
// 规则：三个数据源全部成功且代次严格大于当前展示代次才发布；
// 失败或过期的结果直接丢弃，已展示的数据不会被清空。
package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/betbot/tradedash/internal/domain"
)

// Decision 一次发布尝试的结果
type Decision int

const (
	Published Decision = iota + 1
	// Stale 成功但代次不新于当前展示
	Stale
	// Failed 至少一个数据源失败
	Failed
	// Superseded 行情窗口已切换
	Superseded
)

func (d Decision) String() string {
	switch d {
	case Published:
		return "published"
	case Stale:
		return "stale"
	case Failed:
		return "failed"
	case Superseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// CycleResult 一个组合轮询周期的三路结果
type CycleResult struct {
	Generation domain.Generation

	Summary    *domain.PortfolioSummary
	SummaryErr error

	Positions    []domain.Position
	PositionsErr error

	Trades    []domain.Trade
	TradesErr error
}

// Err 合并三路错误，全部成功时为 nil
func (r CycleResult) Err() error {
	return errors.Join(r.SummaryErr, r.PositionsErr, r.TradesErr)
}

// Cause 周期失败的主因：去掉被兄弟请求失败连带取消的错误。
// 三路都是取消时退回 Err
func (r CycleResult) Cause() error {
	var primary []error
	for _, err := range []error{r.SummaryErr, r.PositionsErr, r.TradesErr} {
		if err != nil && !errors.Is(err, context.Canceled) {
			primary = append(primary, err)
		}
	}
	if len(primary) == 0 {
		return r.Err()
	}
	return errors.Join(primary...)
}

// OK 三路都成功
func (r CycleResult) OK() bool {
	return r.SummaryErr == nil && r.PositionsErr == nil && r.TradesErr == nil && r.Summary != nil
}

// Reconciler 拥有展示状态单元。读者通过 Current 拿到不可变快照
type Reconciler struct {
	current atomic.Pointer[domain.ViewModel]

	subsMu sync.Mutex
	subs   map[int]chan *domain.ViewModel
	nextID int
}

// New 创建空的 Reconciler（尚无展示数据）
func New() *Reconciler {
	return &Reconciler{subs: make(map[int]chan *domain.ViewModel)}
}

// Current 当前展示快照；首次发布前为 nil。返回值不与内部共享
func (r *Reconciler) Current() *domain.ViewModel {
	return r.current.Load().Clone()
}

// Generation 当前展示代次，未发布时为 0
func (r *Reconciler) Generation() domain.Generation {
	if vm := r.current.Load(); vm != nil {
		return vm.Generation
	}
	return 0
}

// Publish 按代次规则尝试安装一个周期结果。
// 并发发布者通过 CAS 串行化，重复发布同一代次是 no-op。
func (r *Reconciler) Publish(res CycleResult) Decision {
	if !res.OK() {
		return Failed
	}
	next := &domain.ViewModel{
		Summary:    cloneSummary(res.Summary),
		Positions:  append([]domain.Position{}, res.Positions...),
		Trades:     append([]domain.Trade{}, res.Trades...),
		Generation: res.Generation,
	}
	for {
		cur := r.current.Load()
		if cur != nil && res.Generation <= cur.Generation {
			return Stale
		}
		if r.current.CompareAndSwap(cur, next) {
			r.notify()
			return Published
		}
	}
}

// Subscribe 订阅发布事件。channel 只保留最新一个快照；
// 调用返回的 cancel 取消订阅并关闭 channel
func (r *Reconciler) Subscribe() (<-chan *domain.ViewModel, func()) {
	ch := make(chan *domain.ViewModel, 1)
	r.subsMu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subsMu.Lock()
			delete(r.subs, id)
			r.subsMu.Unlock()
			close(ch)
		})
	}
}

// notify 总是推送当前值而不是刚安装的值，并发发布时订阅者也不会看到回退
func (r *Reconciler) notify() {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	if len(r.subs) == 0 {
		return
	}
	latest := r.current.Load()
	for _, ch := range r.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- latest.Clone():
		default:
		}
	}
}

func cloneSummary(s *domain.PortfolioSummary) *domain.PortfolioSummary {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

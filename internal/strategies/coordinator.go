// Package strategies 管理策略列表：写操作经网关提交，成功后无条件重新拉取列表。
// 不做乐观更新，缓存只由 List 的结果写入。
package strategies

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/gateway"
	"github.com/betbot/tradedash/internal/metrics"
	"github.com/betbot/tradedash/internal/observe"
	"github.com/betbot/tradedash/pkg/syncgroup"
)

var log = logrus.WithField("module", "strategies")

// Confirmer 删除前的交互确认
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc 函数形式的 Confirmer
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Always 固定回答
type Always bool

func (a Always) Confirm(context.Context, string) (bool, error) { return bool(a), nil }

// Snapshot 缓存快照
type Snapshot struct {
	Generation domain.Generation
	Loaded     bool
	Strategies []domain.Strategy
}

// Options 协调器参数
type Options struct {
	Registry        *Registry
	Sink            observe.Sink
	RequestTimeout  time.Duration // 默认 10s
	RefreshInterval time.Duration // 定时重新拉取，0 关闭
	OnChange        func(Snapshot)
}

// Coordinator 策略写操作协调器，拥有策略缓存
type Coordinator struct {
	gw   gateway.Strategies
	opts Options

	gen atomic.Uint64

	mu   sync.Mutex
	snap Snapshot

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	group     *syncgroup.SyncGroup
}

// NewCoordinator 创建协调器
func NewCoordinator(gw gateway.Strategies, opts Options) *Coordinator {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Sink == nil {
		opts.Sink = observe.Nop{}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &Coordinator{
		gw:    gw,
		opts:  opts,
		snap:  Snapshot{Strategies: []domain.Strategy{}},
		done:  make(chan struct{}),
		group: syncgroup.NewSyncGroup(),
	}
}

// Start 立即拉取一次，之后按 RefreshInterval 定时拉取。非阻塞
func (c *Coordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}
		c.group.Go(func() { c.loop(ctx) })
	})
}

// Stop 停止定时拉取，之后到达的列表不再写入缓存
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	c.group.Wait()
}

func (c *Coordinator) loop(ctx context.Context) {
	_, _ = c.List(ctx)
	if c.opts.RefreshInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.opts.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = c.List(ctx)
		}
	}
}

func (c *Coordinator) stopped() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Strategies 缓存副本
func (c *Coordinator) Strategies() []domain.Strategy {
	return c.Snapshot().Strategies
}

// Snapshot 缓存快照副本
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.snap
	s.Strategies = append([]domain.Strategy{}, c.snap.Strategies...)
	return s
}

// Find 按 id 查缓存
func (c *Coordinator) Find(id int64) (domain.Strategy, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.snap.Strategies {
		if s.ID == id {
			return s, true
		}
	}
	return domain.Strategy{}, false
}

// List 拉取列表并写入缓存。较早发起的请求晚到时不会覆盖较新的列表
func (c *Coordinator) List(ctx context.Context) ([]domain.Strategy, error) {
	gen := domain.Generation(c.gen.Add(1))
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	list, err := c.gw.ListStrategies(ctx)
	if err != nil {
		c.opts.Sink.Failure(observe.SourceStrategies, string(gateway.OpListStrategies), err)
		return nil, err
	}
	if c.install(gen, list) {
		c.opts.Sink.Cycle(observe.SourceStrategies, gen, observe.Published)
	} else {
		c.opts.Sink.Cycle(observe.SourceStrategies, gen, observe.Discarded)
	}
	return list, nil
}

func (c *Coordinator) install(gen domain.Generation, list []domain.Strategy) bool {
	c.mu.Lock()
	if c.stopped() || (c.snap.Loaded && gen <= c.snap.Generation) {
		c.mu.Unlock()
		return false
	}
	c.snap = Snapshot{
		Generation: gen,
		Loaded:     true,
		Strategies: append([]domain.Strategy{}, list...),
	}
	snap := c.snap
	snap.Strategies = append([]domain.Strategy{}, list...)
	c.mu.Unlock()

	if c.opts.OnChange != nil {
		c.opts.OnChange(snap)
	}
	return true
}

// Validate 提交前的本地校验
func (c *Coordinator) Validate(in domain.StrategyInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Problems: []string{"name is required"}}
	}
	return c.opts.Registry.ForName(in.Name).Validate(in.Parameters)
}

func normalize(in domain.StrategyInput) domain.StrategyInput {
	in.Name = strings.TrimSpace(in.Name)
	if strings.TrimSpace(in.Parameters) == "" {
		in.Parameters = domain.DefaultParameters
	}
	return in
}

// Create 新建策略
func (c *Coordinator) Create(ctx context.Context, in domain.StrategyInput) (*domain.MutationResult, error) {
	in = normalize(in)
	if err := c.Validate(in); err != nil {
		c.opts.Sink.Failure(observe.SourceStrategies, string(gateway.OpCreateStrategy), err)
		return nil, err
	}
	return c.mutate(ctx, gateway.OpCreateStrategy, func(ctx context.Context) (*domain.MutationResult, error) {
		return c.gw.CreateStrategy(ctx, in)
	})
}

// Update 编辑策略
func (c *Coordinator) Update(ctx context.Context, id int64, in domain.StrategyInput) (*domain.MutationResult, error) {
	in = normalize(in)
	if err := c.Validate(in); err != nil {
		c.opts.Sink.Failure(observe.SourceStrategies, string(gateway.OpUpdateStrategy), err)
		return nil, err
	}
	return c.mutate(ctx, gateway.OpUpdateStrategy, func(ctx context.Context) (*domain.MutationResult, error) {
		return c.gw.UpdateStrategy(ctx, id, in)
	})
}

// ToggleActive 提交 !current。current 取自调用时展示的值
func (c *Coordinator) ToggleActive(ctx context.Context, id int64, current bool) (*domain.MutationResult, error) {
	return c.mutate(ctx, gateway.OpToggleStrategy, func(ctx context.Context) (*domain.MutationResult, error) {
		return c.gw.SetStrategyActive(ctx, id, !current)
	})
}

// Delete 先确认，确认为否时不发请求，返回 (false, nil)
func (c *Coordinator) Delete(ctx context.Context, id int64, confirm Confirmer) (bool, error) {
	if confirm == nil {
		confirm = Always(false)
	}
	ok, err := confirm.Confirm(ctx, c.deletePrompt(id))
	if err != nil {
		c.opts.Sink.Failure(observe.SourceStrategies, string(gateway.OpDeleteStrategy), err)
		return false, err
	}
	if !ok {
		log.WithField("id", id).Debug("delete cancelled")
		return false, nil
	}
	_, err = c.mutate(ctx, gateway.OpDeleteStrategy, func(ctx context.Context) (*domain.MutationResult, error) {
		return &domain.MutationResult{ID: id}, c.gw.DeleteStrategy(ctx, id)
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Coordinator) deletePrompt(id int64) string {
	if s, ok := c.Find(id); ok {
		return fmt.Sprintf("Are you sure you want to delete strategy %q?", s.Name)
	}
	return fmt.Sprintf("Are you sure you want to delete strategy #%d?", id)
}

// mutate 执行写操作；成功后重新拉取列表。重新拉取失败不影响写操作的结果
func (c *Coordinator) mutate(ctx context.Context, op gateway.Op, fn func(context.Context) (*domain.MutationResult, error)) (*domain.MutationResult, error) {
	reqCtx, cancel := c.withTimeout(ctx)
	res, err := fn(reqCtx)
	cancel()
	if err != nil {
		c.opts.Sink.Failure(observe.SourceStrategies, string(op), err)
		return nil, err
	}
	metrics.StrategyMutations.Add(1)
	log.WithField("op", op).Info("strategy mutation succeeded")

	if _, err := c.List(ctx); err != nil {
		log.WithError(err).Warn("re-list after mutation failed")
	}
	return res, nil
}

func (c *Coordinator) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, c.opts.RequestTimeout)
}

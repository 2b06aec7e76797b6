package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/pkg/marketspec"
)

func okCycle(gen domain.Generation) CycleResult {
	return CycleResult{
		Generation: gen,
		Summary:    &domain.PortfolioSummary{TotalValue: float64(gen)},
		Positions:  []domain.Position{{ID: int64(gen)}},
		Trades:     []domain.Trade{{ID: int64(gen)}},
	}
}

func TestPublishFirstCycle(t *testing.T) {
	r := New()
	require.Nil(t, r.Current())
	require.Equal(t, Published, r.Publish(okCycle(1)))

	vm := r.Current()
	require.Equal(t, domain.Generation(1), vm.Generation)
	require.Equal(t, 1.0, vm.Summary.TotalValue)
}

func TestStragglerIsDiscarded(t *testing.T) {
	r := New()
	require.Equal(t, Published, r.Publish(okCycle(5)))
	require.Equal(t, Stale, r.Publish(okCycle(4)))
	require.Equal(t, domain.Generation(5), r.Generation())
	require.Equal(t, 5.0, r.Current().Summary.TotalValue)
}

func TestRepublishSameGenerationIsNoop(t *testing.T) {
	r := New()
	require.Equal(t, Published, r.Publish(okCycle(3)))
	before := r.Current()

	dup := okCycle(3)
	dup.Summary.TotalValue = 999
	require.Equal(t, Stale, r.Publish(dup))
	require.Equal(t, before, r.Current())
}

func TestPartialFailureKeepsPrevious(t *testing.T) {
	r := New()
	require.Equal(t, Published, r.Publish(okCycle(1)))

	for _, mutate := range []func(*CycleResult){
		func(c *CycleResult) { c.SummaryErr = errors.New("summary down") },
		func(c *CycleResult) { c.PositionsErr = errors.New("positions down") },
		func(c *CycleResult) { c.TradesErr = errors.New("trades down") },
		func(c *CycleResult) { c.Summary = nil },
	} {
		c := okCycle(2)
		mutate(&c)
		require.Equal(t, Failed, r.Publish(c))
		vm := r.Current()
		require.Equal(t, domain.Generation(1), vm.Generation)
		require.Len(t, vm.Positions, 1)
		require.Equal(t, int64(1), vm.Positions[0].ID)
	}

	c := okCycle(2)
	c.TradesErr = errors.New("boom")
	require.ErrorContains(t, c.Err(), "boom")
	require.NoError(t, okCycle(2).Err())
}

func TestCauseSkipsSiblingCancellation(t *testing.T) {
	status := errors.New("positions: http status 500")
	c := okCycle(2)
	c.SummaryErr = fmt.Errorf("summary: %w", context.Canceled)
	c.PositionsErr = status
	c.TradesErr = context.Canceled
	require.Equal(t, status.Error(), c.Cause().Error())
	require.ErrorIs(t, c.Cause(), status)
	require.NotErrorIs(t, c.Cause(), context.Canceled)

	// 只有取消时保留原始错误
	c = okCycle(3)
	c.TradesErr = context.Canceled
	require.ErrorIs(t, c.Cause(), context.Canceled)
	require.NoError(t, okCycle(4).Cause())
}

func TestPublishedSlicesAreCopied(t *testing.T) {
	r := New()
	c := okCycle(1)
	require.Equal(t, Published, r.Publish(c))
	c.Positions[0].ID = 42
	c.Summary.TotalValue = 42
	require.Equal(t, int64(1), r.Current().Positions[0].ID)
	require.Equal(t, 1.0, r.Current().Summary.TotalValue)

	vm := r.Current()
	vm.Trades[0].ID = 77
	require.Equal(t, int64(1), r.Current().Trades[0].ID)
}

func TestEmptyListsPublish(t *testing.T) {
	r := New()
	c := okCycle(1)
	c.Positions = nil
	c.Trades = []domain.Trade{}
	require.Equal(t, Published, r.Publish(c))
	require.NotNil(t, r.Current().Positions)
	require.Empty(t, r.Current().Positions)
}

// 任意顺序、任意并发地发布，最终展示的一定是成功结果中的最大代次，
// 且观察到的代次序列单调不减
func TestMonotonicUnderConcurrentPublish(t *testing.T) {
	for round := 0; round < 20; round++ {
		r := New()
		ch, cancel := r.Subscribe()

		gens := rand.Perm(200)
		var wg sync.WaitGroup
		for _, g := range gens {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				c := okCycle(domain.Generation(g + 1))
				if g%7 == 0 {
					c.PositionsErr = errors.New("flaky")
				}
				r.Publish(c)
			}(g)
		}

		var last domain.Generation
		regressed := false
		done := make(chan struct{})
		go func() {
			defer close(done)
			for vm := range ch {
				if vm.Generation < last {
					regressed = true
				}
				last = vm.Generation
			}
		}()
		wg.Wait()

		// 200 对应 g=199，199%7 != 0，一定成功
		require.Equal(t, domain.Generation(200), r.Generation())
		cancel()
		<-done
		require.False(t, regressed, "subscriber observed a generation regression")
	}
}

func TestSubscribeReceivesLatest(t *testing.T) {
	r := New()
	ch, cancel := r.Subscribe()
	defer cancel()

	r.Publish(okCycle(1))
	r.Publish(okCycle(2))
	vm := <-ch
	require.Equal(t, domain.Generation(2), vm.Generation)

	cancel()
	cancel()
	_, open := <-ch
	require.False(t, open)
}

func TestSeriesCellSupersede(t *testing.T) {
	k1, _ := marketspec.New("BTCUSDT", "binance", "1h")
	k2 := k1.WithTimeframe(marketspec.Timeframe5m)
	c := NewSeriesCell()

	_, ok := c.Current()
	require.False(t, ok)

	// 第 1 代请求 k1，随后切换到 k2（第 2 代），k1 的结果迟到
	c.Supersede(2)
	require.Equal(t, Superseded, c.Publish(ChartResult{Generation: 1, Key: k1, Bars: []domain.MarketDataBar{{Close: 1}}}))
	_, ok = c.Current()
	require.False(t, ok)

	require.Equal(t, Published, c.Publish(ChartResult{Generation: 2, Key: k2, Bars: []domain.MarketDataBar{{Close: 2}}}))
	snap, ok := c.Current()
	require.True(t, ok)
	require.Equal(t, k2, snap.Key)
	require.Equal(t, 2.0, snap.Bars[0].Close)

	require.Equal(t, Stale, c.Publish(ChartResult{Generation: 2, Key: k2}))
	require.Equal(t, Failed, c.Publish(ChartResult{Generation: 3, Key: k2, Err: errors.New("x")}))

	c.Supersede(1)
	require.Equal(t, domain.Generation(2), c.Floor())
}

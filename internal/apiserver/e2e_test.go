package apiserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/gateway"
	"github.com/betbot/tradedash/internal/poller"
	"github.com/betbot/tradedash/internal/reconcile"
	"github.com/betbot/tradedash/internal/strategies"
	"github.com/betbot/tradedash/pkg/marketspec"
)

func seededClient(t *testing.T) *gateway.Client {
	t.Helper()
	s, srv := newTestServer(t)
	require.NoError(t, s.Seed(context.Background()))
	return gateway.New(srv.URL+"/api/v1/", 2*time.Second)
}

func TestGatewayReadsSeededData(t *testing.T) {
	c := seededClient(t)
	ctx := context.Background()

	sum, err := c.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, sum.PositionsCount)
	require.Equal(t, DefaultCashBalance, sum.CashBalance)

	trades, err := c.Trades(ctx, 2)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	require.True(t, trades[0].ExecutedAt.After(trades[1].ExecutedAt.Time))

	key, err := marketspec.New("btcusdt", "BINANCE", "1h")
	require.NoError(t, err)
	bars, err := c.MarketData(ctx, key, 100)
	require.NoError(t, err)
	require.Len(t, bars, 100)
	for i := 1; i < len(bars); i++ {
		require.True(t, bars[i].Timestamp.After(bars[i-1].Timestamp.Time))
	}
}

func TestGatewayStatusErrors(t *testing.T) {
	c := seededClient(t)
	_, err := c.SetStrategyActive(context.Background(), 999, true)
	var ge *gateway.Error
	require.True(t, errors.As(err, &ge))
	require.Equal(t, gateway.KindStatus, ge.Kind)
	require.Equal(t, 404, ge.Status)
	require.Contains(t, ge.Body, "Strategy not found")
	require.NotEmpty(t, ge.RequestID)
}

func TestPollerAgainstServer(t *testing.T) {
	c := seededClient(t)
	rec := reconcile.New()
	p := poller.New(c, rec, poller.Options{Interval: time.Hour, TradesLimit: 10})
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() {
		p.Stop()
		p.Wait()
	})

	require.Eventually(t, func() bool { return rec.Current() != nil }, 5*time.Second, 10*time.Millisecond)
	vm := rec.Current()
	require.Equal(t, domain.Generation(1), vm.Generation)
	require.Len(t, vm.Positions, 3)
	require.Len(t, vm.Trades, 4)
}

func TestCoordinatorAgainstServer(t *testing.T) {
	c := seededClient(t)
	ctx := context.Background()
	coord := strategies.NewCoordinator(c, strategies.Options{})
	t.Cleanup(coord.Stop)

	list, err := coord.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	first := list[0]
	require.True(t, first.IsActive)

	// 切换两次回到原状态
	_, err = coord.ToggleActive(ctx, first.ID, first.IsActive)
	require.NoError(t, err)
	got, ok := coord.Find(first.ID)
	require.True(t, ok)
	require.False(t, got.IsActive)
	_, err = coord.ToggleActive(ctx, first.ID, got.IsActive)
	require.NoError(t, err)
	got, _ = coord.Find(first.ID)
	require.True(t, got.IsActive)

	res, err := coord.Create(ctx, domain.StrategyInput{Name: "Scalper", Description: "fast"})
	require.NoError(t, err)
	require.Positive(t, res.ID)
	require.Len(t, coord.Strategies(), 4)

	_, err = coord.Create(ctx, domain.StrategyInput{Name: "Scalper"})
	require.True(t, gateway.IsStatus(err))

	deleted, err := coord.Delete(ctx, res.ID, strategies.Always(false))
	require.NoError(t, err)
	require.False(t, deleted)
	require.Len(t, coord.Strategies(), 4)

	deleted, err = coord.Delete(ctx, res.ID, strategies.Always(true))
	require.NoError(t, err)
	require.True(t, deleted)
	require.Len(t, coord.Strategies(), 3)
}

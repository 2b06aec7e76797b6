package strategies

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/gateway"
	"github.com/betbot/tradedash/internal/observe"
)

func seeded() *gateway.Mock {
	m := gateway.NewMock()
	m.Strategies = []domain.Strategy{
		{ID: 1, Name: "Momentum Strategy", Parameters: `{"short_window": 10}`, IsActive: true},
		{ID: 2, Name: "Mean Reversion", Parameters: `{}`, IsActive: false},
	}
	return m
}

func newCoordinator(t *testing.T, m *gateway.Mock) (*Coordinator, *observe.Recorder) {
	sink := &observe.Recorder{}
	c := NewCoordinator(m, Options{Sink: sink})
	t.Cleanup(c.Stop)
	return c, sink
}

func TestListFillsCache(t *testing.T) {
	m := seeded()
	c, _ := newCoordinator(t, m)
	require.False(t, c.Snapshot().Loaded)
	require.NotNil(t, c.Strategies())

	list, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)

	snap := c.Snapshot()
	require.True(t, snap.Loaded)
	require.Equal(t, domain.Generation(1), snap.Generation)
	s, ok := c.Find(2)
	require.True(t, ok)
	require.Equal(t, "Mean Reversion", s.Name)
}

func TestToggleRoundTrip(t *testing.T) {
	m := seeded()
	c, _ := newCoordinator(t, m)
	_, err := c.List(context.Background())
	require.NoError(t, err)

	s, _ := c.Find(1)
	_, err = c.ToggleActive(context.Background(), s.ID, s.IsActive)
	require.NoError(t, err)

	muts := m.Mutations()
	require.Len(t, muts, 1)
	require.Equal(t, gateway.OpToggleStrategy, muts[0].Op)
	require.False(t, muts[0].Active)
	require.Equal(t, 2, m.CallCount(gateway.OpListStrategies))

	s, _ = c.Find(1)
	require.False(t, s.IsActive)

	_, err = c.ToggleActive(context.Background(), s.ID, s.IsActive)
	require.NoError(t, err)
	s, _ = c.Find(1)
	require.True(t, s.IsActive)
}

func TestDeleteCancelled(t *testing.T) {
	m := seeded()
	c, _ := newCoordinator(t, m)
	_, err := c.List(context.Background())
	require.NoError(t, err)

	var prompt string
	deleted, err := c.Delete(context.Background(), 1, ConfirmFunc(func(_ context.Context, p string) (bool, error) {
		prompt = p
		return false, nil
	}))
	require.NoError(t, err)
	require.False(t, deleted)
	require.Contains(t, prompt, "Momentum Strategy")
	require.Zero(t, m.CallCount(gateway.OpDeleteStrategy))
	require.Len(t, c.Strategies(), 2)

	// nil Confirmer 视为拒绝
	deleted, err = c.Delete(context.Background(), 1, nil)
	require.NoError(t, err)
	require.False(t, deleted)
	require.Zero(t, m.CallCount(gateway.OpDeleteStrategy))
}

func TestDeleteConfirmerErrorIsReported(t *testing.T) {
	m := seeded()
	c, sink := newCoordinator(t, m)
	boom := errors.New("stdin closed")
	deleted, err := c.Delete(context.Background(), 1, ConfirmFunc(func(context.Context, string) (bool, error) {
		return false, boom
	}))
	require.ErrorIs(t, err, boom)
	require.False(t, deleted)
	require.Zero(t, m.CallCount(gateway.OpDeleteStrategy))

	failures := sink.Failures()
	require.Len(t, failures, 1)
	require.Equal(t, string(gateway.OpDeleteStrategy), failures[0].Op)
	require.ErrorIs(t, failures[0].Err, boom)
}

func TestDeleteConfirmed(t *testing.T) {
	m := seeded()
	c, _ := newCoordinator(t, m)
	deleted, err := c.Delete(context.Background(), 2, Always(true))
	require.NoError(t, err)
	require.True(t, deleted)
	require.Equal(t, 1, m.CallCount(gateway.OpDeleteStrategy))
	require.Len(t, c.Strategies(), 1)
	_, ok := c.Find(2)
	require.False(t, ok)
}

func TestMutationFailureKeepsCache(t *testing.T) {
	m := seeded()
	c, sink := newCoordinator(t, m)
	_, err := c.List(context.Background())
	require.NoError(t, err)
	before := c.Snapshot()

	_, err = c.Update(context.Background(), 99, domain.StrategyInput{Name: "Ghost", Parameters: "{}"})
	require.Error(t, err)
	require.Equal(t, 404, gateway.StatusCode(err))

	require.Equal(t, before, c.Snapshot())
	require.Equal(t, 1, m.CallCount(gateway.OpListStrategies))

	failures := sink.Failures()
	require.Len(t, failures, 1)
	require.Equal(t, string(gateway.OpUpdateStrategy), failures[0].Op)
}

func TestRelistFailureDoesNotFailMutation(t *testing.T) {
	m := seeded()
	c, sink := newCoordinator(t, m)
	m.FailNext(gateway.OpListStrategies, &gateway.Error{Kind: gateway.KindTransport, Op: gateway.OpListStrategies})

	res, err := c.Create(context.Background(), domain.StrategyInput{Name: "Breakout"})
	require.NoError(t, err)
	require.Equal(t, int64(3), res.ID)
	require.False(t, c.Snapshot().Loaded)
	require.Len(t, sink.Failures(), 1)
}

func TestLocalValidationIssuesNoRequest(t *testing.T) {
	m := seeded()
	c, sink := newCoordinator(t, m)

	cases := []domain.StrategyInput{
		{Name: "", Parameters: "{}"},
		{Name: "Momentum Fast", Parameters: `{"short_window": 0}`},
		{Name: "Momentum Fast", Parameters: `{"rsi_overbought": 150}`},
		{Name: "Anything", Parameters: `[1, 2]`},
		{Name: "Anything", Parameters: `{not json`},
	}
	for _, in := range cases {
		_, err := c.Create(context.Background(), in)
		require.ErrorIs(t, err, ErrInvalidInput, "input %+v", in)
	}
	require.Zero(t, m.CallCount(gateway.OpCreateStrategy))
	require.Len(t, sink.Failures(), len(cases))

	_, err := c.Update(context.Background(), 1, domain.StrategyInput{Name: "Momentum", Parameters: `{"long_window": -1}`})
	require.ErrorIs(t, err, ErrInvalidInput)
	require.Zero(t, m.CallCount(gateway.OpUpdateStrategy))
}

func TestCreateDefaultsParameters(t *testing.T) {
	m := seeded()
	c, _ := newCoordinator(t, m)
	_, err := c.Create(context.Background(), domain.StrategyInput{Name: "  Grid  ", Parameters: "  "})
	require.NoError(t, err)

	muts := m.Mutations()
	require.Len(t, muts, 1)
	require.Equal(t, "Grid", muts[0].Input.Name)
	require.Equal(t, domain.DefaultParameters, muts[0].Input.Parameters)
	require.Len(t, c.Strategies(), 3)
}

func TestOlderListDoesNotOverwriteNewer(t *testing.T) {
	m := seeded()
	release := make(chan struct{})
	m.OnCall = func(ctx context.Context, op gateway.Op, n int) error {
		if op == gateway.OpListStrategies && n == 1 {
			<-release
		}
		return nil
	}
	c, sink := newCoordinator(t, m)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = c.List(context.Background())
	}()
	require.Eventually(t, func() bool { return m.CallCount(gateway.OpListStrategies) == 1 }, time.Second, 5*time.Millisecond)

	_, err := c.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.Generation(2), c.Snapshot().Generation)

	close(release)
	wg.Wait()
	require.Equal(t, domain.Generation(2), c.Snapshot().Generation)
	require.Equal(t, 1, sink.Count(observe.SourceStrategies, observe.Discarded))
}

func TestPeriodicRefresh(t *testing.T) {
	m := seeded()
	changes := make(chan Snapshot, 16)
	c := NewCoordinator(m, Options{
		RefreshInterval: 20 * time.Millisecond,
		OnChange: func(s Snapshot) {
			select {
			case changes <- s:
			default:
			}
		},
	})
	c.Start(context.Background())
	require.Eventually(t, func() bool { return m.CallCount(gateway.OpListStrategies) >= 3 }, 2*time.Second, 5*time.Millisecond)
	c.Stop()

	first := <-changes
	require.True(t, first.Loaded)
	require.Len(t, first.Strategies, 2)

	// 停止后的列表结果不再写入
	gen := c.Snapshot().Generation
	_, err := c.List(context.Background())
	require.NoError(t, err)
	require.Equal(t, gen, c.Snapshot().Generation)
}

package observe

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/betbot/tradedash/internal/gateway"
	"github.com/betbot/tradedash/internal/metrics"
)

func TestLogSinkCountsByKind(t *testing.T) {
	s := NewLogSink()

	transport := metrics.GatewayErrorsTransport.Value()
	status := metrics.GatewayErrorsStatus.Value()
	decode := metrics.GatewayErrorsDecode.Value()
	other := metrics.OtherErrors.Value()
	strat := metrics.StrategyFailures.Value()

	s.Failure(SourcePortfolio, "summary", &gateway.Error{Kind: gateway.KindTransport, Op: gateway.OpSummary, Err: errors.New("refused")})
	s.Failure(SourcePortfolio, "positions", &gateway.Error{Kind: gateway.KindStatus, Op: gateway.OpPositions, Status: 500})
	s.Failure(SourceChart, "market_data", &gateway.Error{Kind: gateway.KindDecode, Op: gateway.OpMarketData, Err: errors.New("bad json")})
	s.Failure(SourceStrategies, "create", errors.New("invalid parameters"))
	s.Failure(SourceStrategies, "noop", nil)

	require.Equal(t, transport+1, metrics.GatewayErrorsTransport.Value())
	require.Equal(t, status+1, metrics.GatewayErrorsStatus.Value())
	require.Equal(t, decode+1, metrics.GatewayErrorsDecode.Value())
	require.Equal(t, other+1, metrics.OtherErrors.Value())
	require.Equal(t, strat+1, metrics.StrategyFailures.Value())
}

func TestLogSinkCycleCounters(t *testing.T) {
	s := NewLogSink()
	published := metrics.CyclesPublished.Value()
	discarded := metrics.CyclesDiscarded.Value()
	superseded := metrics.ChartSuperseded.Value()

	s.Cycle(SourcePortfolio, 1, Published)
	s.Cycle(SourcePortfolio, 2, Discarded)
	s.Cycle(SourceChart, 3, Superseded)

	require.Equal(t, published+1, metrics.CyclesPublished.Value())
	require.Equal(t, discarded+1, metrics.CyclesDiscarded.Value())
	require.Equal(t, superseded+1, metrics.ChartSuperseded.Value())
}

func TestRecorderForwards(t *testing.T) {
	inner := &Recorder{}
	r := &Recorder{Next: inner}
	r.Cycle(SourceChart, 4, Issued)
	r.Failure(SourceChart, "market_data", errors.New("x"))

	require.Len(t, r.Events(), 2)
	require.Len(t, inner.Events(), 2)
	require.Len(t, r.Failures(), 1)
	require.Equal(t, 1, r.Count(SourceChart, Issued))
	require.Equal(t, 0, r.Count(SourceChart, Failed))
}

package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimestampNaiveIsLocal(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-01T14:05:09.123456"`), &ts))
	require.Equal(t, time.Local, ts.Location())
	require.Equal(t, 14, ts.Hour())
	require.Equal(t, 5, ts.Minute())
	require.Equal(t, 9, ts.Second())
}

func TestTimestampVariants(t *testing.T) {
	for _, in := range []string{
		`"2024-03-01T14:05:09Z"`,
		`"2024-03-01T14:05:09+02:00"`,
		`"2024-03-01 14:05:09"`,
		`"2024-03-01"`,
	} {
		var ts Timestamp
		require.NoError(t, json.Unmarshal([]byte(in), &ts), in)
		require.False(t, ts.IsZero(), in)
	}

	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	require.True(t, ts.IsZero())

	require.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
	require.Error(t, json.Unmarshal([]byte(`12`), &ts))
}

func TestTradeDecode(t *testing.T) {
	body := `{"id":7,"symbol":"TEVA","exchange":"TASE","side":"sell","quantity":10,"price":42.5,"commission":1.2,"strategy":"momentum","executed_at":"2024-03-01T10:00:00"}`
	var tr Trade
	require.NoError(t, json.Unmarshal([]byte(body), &tr))
	require.Equal(t, SideSell, tr.Side)
	require.InDelta(t, 425.0, tr.Notional(), 1e-9)

	require.Error(t, json.Unmarshal([]byte(`{"side":"HOLD"}`), &tr))
}

func TestStrategyNullMetrics(t *testing.T) {
	var s Strategy
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"name":"m","is_active":true,"parameters":"{}","performance_metrics":null}`), &s))
	require.False(t, s.HasMetrics())
	require.Nil(t, s.PerformanceMetrics)
}

func TestPnLPercent(t *testing.T) {
	require.InDelta(t, 10.0, PnLPercent(100, 50, 20), 1e-9)
	require.Equal(t, 0.0, PnLPercent(100, 50, 0))
	require.Equal(t, 0.0, PnLPercent(100, 0, 5))
}

func TestViewModelCloneIsIndependent(t *testing.T) {
	vm := &ViewModel{
		Summary:    &PortfolioSummary{TotalValue: 1},
		Positions:  []Position{{ID: 1}},
		Generation: 3,
	}
	c := vm.Clone()
	c.Summary.TotalValue = 2
	c.Positions[0].ID = 9
	require.Equal(t, 1.0, vm.Summary.TotalValue)
	require.Equal(t, int64(1), vm.Positions[0].ID)
	require.Equal(t, Generation(3), c.Generation)
}

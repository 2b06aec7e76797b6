package strategies

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/betbot/tradedash/internal/domain"
)

func TestKind(t *testing.T) {
	require.Equal(t, "momentum", Kind("Momentum Strategy"))
	require.Equal(t, "grid", Kind("  grid"))
	require.Equal(t, "", Kind("   "))
}

func TestRegistryMomentumSchema(t *testing.T) {
	r := NewRegistry()
	require.Equal(t, []string{"momentum"}, r.List())

	v := r.ForName("Momentum Strategy")
	require.NoError(t, v.Validate(`{"short_window": 10, "long_window": 30, "rsi_period": 14, "rsi_oversold": 30, "rsi_overbought": 70}`))
	require.NoError(t, v.Validate(""))

	err := v.Validate(`{"short_window": 0}`)
	require.ErrorIs(t, err, ErrInvalidInput)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.NotEmpty(t, ve.Problems)
}

func TestRegistryFallbackRequiresObject(t *testing.T) {
	r := NewRegistry()
	v := r.ForName("Custom")
	require.NoError(t, v.Validate(`{"anything": [1, 2, 3]}`))
	require.ErrorIs(t, v.Validate(`"text"`), ErrInvalidInput)
	require.ErrorIs(t, v.Validate(`{`), ErrInvalidInput)
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()
	v, err := NewValidator([]byte(`{"type": "object", "required": ["levels"]}`))
	require.NoError(t, err)
	require.NoError(t, r.Register("Grid", v))
	require.Error(t, r.Register("grid", v))
	require.Error(t, r.Register("", v))

	got, ok := r.Get("grid")
	require.True(t, ok)
	require.ErrorIs(t, got.Validate(`{}`), ErrInvalidInput)
	require.NoError(t, r.ForName("Grid Bot").Validate(`{"levels": 5}`))
}

func TestLoadValidatorAsDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "params.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"type": "object", "additionalProperties": false}`), 0o644))

	v, err := LoadValidator(path)
	require.NoError(t, err)
	r := NewRegistry()
	r.SetDefault(v)
	require.ErrorIs(t, r.ForName("Custom").Validate(`{"x": 1}`), ErrInvalidInput)
	require.NoError(t, r.ForName("Custom").Validate(`{}`))

	_, err = LoadValidator("")
	require.Error(t, err)
	_, err = LoadValidator(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))
	_, err = LoadValidator(path)
	require.Error(t, err)
}

func metricsStrategy(raw string) domain.Strategy {
	return domain.Strategy{ID: 1, Name: "Momentum", PerformanceMetrics: &raw}
}

func TestMetricsExtraction(t *testing.T) {
	s := metricsStrategy(`{"total_return": 12.5, "win_rate": 0.6, "total_trades": 42, "live": true, "curve": [1, 2, 3]}`)
	values, err := Metrics(s, nil)
	require.NoError(t, err)
	require.Len(t, values, len(DefaultMetricFields))

	byLabel := map[string]MetricValue{}
	for _, v := range values {
		byLabel[v.Label] = v
	}
	require.Equal(t, "12.5", byLabel["Total Return"].Value)
	require.Equal(t, "0.6", byLabel["Win Rate"].Value)
	require.Equal(t, "42", byLabel["Trades"].Value)
	require.Equal(t, "-", byLabel["Sharpe Ratio"].Value)
	require.Error(t, byLabel["Sharpe Ratio"].Err)

	fields := MetricFieldsFromConfig(map[string]string{"Second": "$.curve[1]", "Live": "$.live", "Curve": "$.curve"})
	require.Equal(t, "Curve", fields[0].Label)
	values, err = Metrics(s, fields)
	require.NoError(t, err)
	require.Equal(t, "1", values[0].Value)
	require.Equal(t, "true", values[1].Value)
	require.Equal(t, "2", values[2].Value)
}

func TestMetricsMissingOrInvalid(t *testing.T) {
	_, err := Metrics(domain.Strategy{}, nil)
	require.ErrorIs(t, err, ErrNoMetrics)
	_, err = Metrics(metricsStrategy(""), nil)
	require.ErrorIs(t, err, ErrNoMetrics)
	_, err = Metrics(metricsStrategy("not json"), nil)
	require.Error(t, err)

	out, err := PrettyMetrics(metricsStrategy(`{"a":1}`))
	require.NoError(t, err)
	require.Equal(t, "{\n  \"a\": 1\n}", out)
	out, err = PrettyMetrics(metricsStrategy("plain"))
	require.NoError(t, err)
	require.Equal(t, "plain", out)
}

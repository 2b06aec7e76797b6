package main

import (
	"bytes"
	"context"
	"flag"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/strategies"
)

func TestPromptConfirmer(t *testing.T) {
	var out bytes.Buffer
	confirm := promptConfirmer(strings.NewReader("y\nno\n\nYES\n"), &out)
	ctx := context.Background()

	want := []bool{true, false, false, true}
	for i, w := range want {
		got, err := confirm(ctx, "Delete?")
		require.NoError(t, err)
		require.Equal(t, w, got, "answer %d", i)
	}
	require.Contains(t, out.String(), "Delete? [y/N]: ")

	// EOF 视为否
	got, err := confirm(ctx, "Delete?")
	require.NoError(t, err)
	require.False(t, got)
}

func TestParseID(t *testing.T) {
	f := flag.NewFlagSet("x", flag.ContinueOnError)
	require.NoError(t, f.Parse([]string{"42"}))
	id, err := parseID(f)
	require.NoError(t, err)
	require.Equal(t, int64(42), id)

	for _, args := range [][]string{{}, {"abc"}, {"0"}, {"1", "2"}} {
		f := flag.NewFlagSet("x", flag.ContinueOnError)
		require.NoError(t, f.Parse(args))
		_, err := parseID(f)
		require.Error(t, err, args)
	}
}

func TestPrintStrategies(t *testing.T) {
	metrics := `{"total_return": 12.5, "win_rate": 0.6}`
	list := []domain.Strategy{
		{ID: 1, Name: "Momentum Strategy", IsActive: true, PerformanceMetrics: &metrics},
		{ID: 2, Name: "Breakout"},
	}
	var out bytes.Buffer
	printStrategies(&out, list, true, []strategies.MetricField{{Label: "Total Return", Path: "$.total_return"}})
	s := out.String()
	require.Contains(t, s, "Momentum Strategy")
	require.Contains(t, s, "active")
	require.Contains(t, s, "inactive")
	require.Contains(t, s, "Total Return")
	require.Contains(t, s, "12.5")
	require.Contains(t, s, strategies.ErrNoMetrics.Error())
}

func TestPrintStrategiesTableLayout(t *testing.T) {
	list := []domain.Strategy{{ID: 7, Name: "Grid", IsActive: true, Description: "levels"}}
	var out bytes.Buffer
	printStrategies(&out, list, false, nil)
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	// 上边框、表头、表头分隔线、一行数据、下边框
	require.Len(t, lines, 5)
	require.Contains(t, lines[1], "DESCRIPTION")
	require.Contains(t, lines[3], "Grid")
	require.Contains(t, lines[3], "levels")
	require.NotContains(t, out.String(), "Total Return")
}

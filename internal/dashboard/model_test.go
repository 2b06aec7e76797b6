package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/poller"
	"github.com/betbot/tradedash/internal/series"
	"github.com/betbot/tradedash/internal/strategies"
	"github.com/betbot/tradedash/pkg/marketspec"
)

type call struct {
	op      string
	id      int64
	current bool
	mode    strategies.Mode
	in      domain.StrategyInput
	tf      marketspec.Timeframe
}

type fakeActions struct {
	mu      sync.Mutex
	calls   []call
	saveErr error
}

func (f *fakeActions) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeActions) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeActions) Refresh(context.Context) error {
	f.record(call{op: "refresh"})
	return nil
}

func (f *fakeActions) SetTimeframe(tf marketspec.Timeframe) {
	f.record(call{op: "timeframe", tf: tf})
}

func (f *fakeActions) Toggle(_ context.Context, id int64, current bool) error {
	f.record(call{op: "toggle", id: id, current: current})
	return nil
}

func (f *fakeActions) Delete(_ context.Context, id int64) error {
	f.record(call{op: "delete", id: id})
	return nil
}

func (f *fakeActions) Save(_ context.Context, mode strategies.Mode, id int64, in domain.StrategyInput) error {
	f.record(call{op: "save", mode: mode, id: id, in: in})
	return f.saveErr
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(model)
	require.True(t, ok)
	return nm, cmd
}

// exec 执行命令并把结果消息送回模型
func exec(t *testing.T, m model, cmd tea.Cmd) model {
	t.Helper()
	require.NotNil(t, cmd)
	m, _ = press(t, m, cmd())
	return m
}

func testSnapshot() *Snapshot {
	key, _ := marketspec.New("BTCUSDT", "binance", "1h")
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.Local)
	bars := []domain.MarketDataBar{
		{Timestamp: domain.TS(base), Close: 100},
		{Timestamp: domain.TS(base.Add(time.Hour)), Close: 110},
	}
	metrics := `{"total_return": 12.5}`
	return &Snapshot{
		Title: "Test",
		View: &domain.ViewModel{
			Generation: 3,
			Summary: &domain.PortfolioSummary{
				TotalValue:    1234.5,
				CashBalance:   1000,
				UnrealizedPnL: -20,
			},
			Positions: []domain.Position{{Symbol: "BTCUSDT", Exchange: "binance", Quantity: 0.5, PnLPercentage: -3.5}},
			Trades:    []domain.Trade{{Symbol: "ETHUSDT", Side: domain.SideSell, Quantity: 1, Price: 2000}},
		},
		ChartKey: key,
		Chart:    &poller.ChartView{Key: key, Bars: bars, Series: series.Transform(key, bars)},
		Strategies: strategies.Snapshot{
			Loaded: true,
			Strategies: []domain.Strategy{
				{ID: 1, Name: "Momentum Strategy", IsActive: true, PerformanceMetrics: &metrics},
				{ID: 2, Name: "Mean Reversion", IsActive: false},
			},
		},
	}
}

func newTestModel(t *testing.T) (model, *fakeActions) {
	fa := &fakeActions{}
	m := newModel(make(chan *Snapshot), fa, Options{})
	m, _ = press(t, m, updateMsg{snapshot: testSnapshot()})
	return m, fa
}

func TestPortfolioView(t *testing.T) {
	m, _ := newTestModel(t)
	out := m.View()
	require.Contains(t, out, "₪1,234.50")
	require.Contains(t, out, "-₪20.00")
	require.Contains(t, out, "-3.50%")
	require.Contains(t, out, "BTCUSDT")
	require.Contains(t, out, "ETHUSDT")
	require.Contains(t, out, "Gen: 3")
}

func TestPortfolioLoading(t *testing.T) {
	m := newModel(make(chan *Snapshot), &fakeActions{}, Options{})
	require.Contains(t, m.View(), "Loading portfolio")
}

func TestTabSwitching(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	require.Equal(t, tabStrategies, m.tab)
	require.Contains(t, m.View(), "Momentum Strategy")

	m, _ = press(t, m, runes("3"))
	require.Equal(t, tabChart, m.tab)
	require.Contains(t, m.View(), "BTCUSDT (binance) - 1h")

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	require.Equal(t, tabStrategies, m.tab)
}

func TestRefreshKey(t *testing.T) {
	m, fa := newTestModel(t)
	m, cmd := press(t, m, runes("r"))
	m = exec(t, m, cmd)
	require.Equal(t, "refresh", fa.Calls()[0].op)
	require.Equal(t, "refresh ok", m.status)
}

func TestToggleSendsDisplayedState(t *testing.T) {
	m, fa := newTestModel(t)
	m, _ = press(t, m, runes("2"))
	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	exec(t, m, cmd)

	calls := fa.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, call{op: "toggle", id: 1, current: true}, calls[0])

	m, _ = press(t, m, runes("j"))
	m, cmd = press(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	exec(t, m, cmd)
	require.Equal(t, call{op: "toggle", id: 2, current: false}, fa.Calls()[1])
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	m, fa := newTestModel(t)
	m, _ = press(t, m, runes("2"))
	m, _ = press(t, m, runes("d"))
	require.NotNil(t, m.pendingDelete)
	require.Contains(t, m.View(), `delete strategy "Momentum Strategy"`)

	m, cmd := press(t, m, runes("n"))
	require.Nil(t, cmd)
	require.Nil(t, m.pendingDelete)
	require.Empty(t, fa.Calls())
	require.Equal(t, "delete cancelled", m.status)

	m, _ = press(t, m, runes("d"))
	m, cmd = press(t, m, runes("y"))
	exec(t, m, cmd)
	require.Equal(t, []call{{op: "delete", id: 1}}, fa.Calls())
}

func TestEditorDialog(t *testing.T) {
	m, fa := newTestModel(t)
	m, _ = press(t, m, runes("2"))
	m, _ = press(t, m, runes("n"))
	require.True(t, m.editor.IsOpen())
	require.Contains(t, m.View(), "Add New Strategy")

	// 编辑框打开时 q 是输入而不是退出
	m, cmd := press(t, m, runes("Grid q"))
	require.Nil(t, cmd)
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = press(t, m, runes("levels"))
	require.Equal(t, "Grid", m.editor.Draft.Name)
	require.Equal(t, "levels", m.editor.Draft.Description)
	require.Equal(t, domain.DefaultParameters, m.editor.Draft.Parameters)

	// 保存失败：对话框保持打开
	fa.saveErr = errors.New("status 500")
	m, cmd = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.True(t, m.saving)
	m = exec(t, m, cmd)
	require.True(t, m.editor.IsOpen())
	require.Contains(t, m.View(), "status 500")

	fa.saveErr = nil
	m, cmd = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m = exec(t, m, cmd)
	require.False(t, m.editor.IsOpen())
	require.Equal(t, "strategy saved", m.status)

	calls := fa.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, strategies.Creating, calls[1].mode)
	require.Equal(t, "Grid", calls[1].in.Name)
}

func TestEditExistingAndCancel(t *testing.T) {
	m, fa := newTestModel(t)
	m, _ = press(t, m, runes("2"))
	m, _ = press(t, m, runes("j"))
	m, _ = press(t, m, runes("e"))
	require.Equal(t, strategies.Editing, m.editor.Mode())
	require.Equal(t, int64(2), m.editor.EditingID())
	require.Contains(t, m.View(), "Edit Strategy")

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	require.False(t, m.editor.IsOpen())
	require.Empty(t, fa.Calls())
}

func TestMetricsPane(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = press(t, m, runes("2"))
	m, _ = press(t, m, runes("m"))
	out := m.View()
	require.Contains(t, out, "Metrics: Momentum Strategy")
	require.Contains(t, out, "12.5")
}

func TestChartTimeframeKeys(t *testing.T) {
	m, fa := newTestModel(t)
	m, _ = press(t, m, runes("3"))
	m, _ = press(t, m, runes("]"))
	m, _ = press(t, m, runes("["))
	calls := fa.Calls()
	require.Len(t, calls, 2)
	require.Equal(t, marketspec.Timeframe1d, calls[0].tf)
	require.Equal(t, marketspec.Timeframe5m, calls[1].tf)

	m, _ = press(t, m, runes("c"))
	out := m.View()
	require.Contains(t, out, "not implemented")
	require.Contains(t, out, "Change:")
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := press(t, m, runes("q"))
	require.NotNil(t, cmd)
	_, ok := cmd().(tea.QuitMsg)
	require.True(t, ok)
}

func TestSelectionClampedOnShrink(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = press(t, m, runes("2"))
	m, _ = press(t, m, runes("j"))
	require.Equal(t, 1, m.selected)

	snap := testSnapshot()
	snap.Strategies.Strategies = snap.Strategies.Strategies[:1]
	m, _ = press(t, m, updateMsg{snapshot: snap})
	require.Equal(t, 0, m.selected)
	require.True(t, strings.Contains(m.View(), "Momentum Strategy"))
}

func TestWaitForUpdateTakesLatest(t *testing.T) {
	ch := make(chan *Snapshot, 3)
	m := newModel(ch, &fakeActions{}, Options{})
	ch <- &Snapshot{Title: "a"}
	ch <- &Snapshot{Title: "b"}
	ch <- &Snapshot{Title: "c"}
	msg := m.waitForUpdate()()
	require.Equal(t, "c", msg.(updateMsg).snapshot.Title)
}

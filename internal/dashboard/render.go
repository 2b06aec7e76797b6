package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/format"
	"github.com/betbot/tradedash/internal/series"
	"github.com/betbot/tradedash/internal/strategies"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	activeTabStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("39")).Padding(0, 1)
	tabStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Padding(0, 1)
	gainStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	lossStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	selectedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("226"))
)

func panel(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("39")).
		Padding(0, 1)
}

func signed(v float64, text string) string {
	switch format.Signed(v) {
	case format.Gain:
		return gainStyle.Render(text)
	case format.Loss:
		return lossStyle.Render(text)
	default:
		return text
	}
}

func (m model) View() string {
	width := m.width - 4
	if width < 80 {
		width = 80
	}
	var body string
	switch {
	case m.pendingDelete != nil:
		body = m.renderConfirm(width)
	case m.editor.IsOpen():
		body = m.renderEditor(width)
	default:
		switch m.tab {
		case tabStrategies:
			body = m.renderStrategies(width)
		case tabChart:
			body = m.renderChart(width)
		default:
			body = m.renderPortfolio(width)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.renderTabs(), body, m.renderFooter())
}

func (m model) renderHeader() string {
	snap := m.snapshot
	title := snap.Title
	if strings.TrimSpace(title) == "" {
		title = m.opts.Title
	}
	state := "waiting"
	if snap.HasReport {
		state = snap.LastReport.State.String()
	}
	gen := domain.Generation(0)
	if snap.View != nil {
		gen = snap.View.Generation
	}
	return headerStyle.Render(fmt.Sprintf("%s | Poll: %s | Gen: %d | Time: %s",
		title, state, gen, time.Now().Format("15:04:05")))
}

func (m model) renderTabs() string {
	parts := make([]string, 0, len(tabNames))
	for i, name := range tabNames {
		label := fmt.Sprintf("%d %s", i+1, name)
		if tab(i) == m.tab {
			parts = append(parts, activeTabStyle.Render(label))
		} else {
			parts = append(parts, tabStyle.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m model) renderFooter() string {
	help := "tab switch | r refresh | q quit"
	switch {
	case m.pendingDelete != nil:
		help = "y confirm | n cancel"
	case m.editor.IsOpen():
		help = "tab next field | enter save | esc cancel"
	case m.tab == tabStrategies:
		help += " | n new | e edit | space toggle | d delete | m metrics"
	case m.tab == tabChart:
		help += " | [ ] timeframe | c chart type"
	}
	lines := []string{dimStyle.Render(help)}
	if m.status != "" {
		lines = append(lines, m.status)
	}
	if m.snapshot.LastError != "" {
		lines = append(lines, lossStyle.Render(fmt.Sprintf("last error %s: %s",
			m.snapshot.LastErrorAt.Format("15:04:05"), m.snapshot.LastError)))
	}
	return strings.Join(lines, "\n")
}

func (m model) renderPortfolio(width int) string {
	vm := m.snapshot.View
	if vm == nil || vm.Summary == nil {
		return panel(width).Render("Loading portfolio...")
	}
	f := m.opts.Formatter
	s := vm.Summary

	var lines []string
	lines = append(lines, titleStyle.Render("Summary"))
	lines = append(lines, strings.Repeat("─", width-4))
	lines = append(lines, fmt.Sprintf("Total Value: %s   Cash: %s   Market Value: %s",
		f.Currency(s.TotalValue), f.Currency(s.CashBalance), f.Currency(s.MarketValue)))
	lines = append(lines, fmt.Sprintf("Unrealized P&L: %s   Positions: %d   Updated: %s",
		signed(s.UnrealizedPnL, f.Currency(s.UnrealizedPnL)), s.PositionsCount, formatTime(s.UpdatedAt, "2006-01-02 15:04:05")))
	lines = append(lines, "")

	lines = append(lines, titleStyle.Render("Positions"))
	lines = append(lines, strings.Repeat("─", width-4))
	if len(vm.Positions) == 0 {
		lines = append(lines, dimStyle.Render("No open positions"))
	} else {
		lines = append(lines, fmt.Sprintf("%-10s %-9s %10s %14s %14s %14s %14s %9s",
			"Symbol", "Exchange", "Qty", "Avg Price", "Current", "Value", "P&L", "P&L %"))
		for _, p := range vm.Positions {
			lines = append(lines, fmt.Sprintf("%-10s %-9s %10s %14s %14s %14s %s %s",
				p.Symbol, p.Exchange, format.Quantity(p.Quantity),
				f.Currency(p.AvgPrice), f.Currency(p.CurrentPrice), f.Currency(p.MarketValue),
				signed(p.UnrealizedPnL, fmt.Sprintf("%14s", f.Currency(p.UnrealizedPnL))),
				signed(p.PnLPercentage, fmt.Sprintf("%9s", f.Percentage(p.PnLPercentage)))))
		}
	}
	lines = append(lines, "")

	lines = append(lines, titleStyle.Render("Recent Trades"))
	lines = append(lines, strings.Repeat("─", width-4))
	if len(vm.Trades) == 0 {
		lines = append(lines, dimStyle.Render("No trades"))
	} else {
		lines = append(lines, fmt.Sprintf("%-19s %-10s %-4s %10s %14s %14s %s",
			"Time", "Symbol", "Side", "Qty", "Price", "Notional", "Strategy"))
		for _, t := range vm.Trades {
			side := string(t.Side)
			if t.Side == domain.SideBuy {
				side = gainStyle.Render(fmt.Sprintf("%-4s", side))
			} else {
				side = lossStyle.Render(fmt.Sprintf("%-4s", side))
			}
			strategy := t.Strategy
			if strategy == "" {
				strategy = format.Placeholder
			}
			lines = append(lines, fmt.Sprintf("%-19s %-10s %s %10s %14s %14s %s",
				formatTime(t.ExecutedAt, "2006-01-02 15:04:05"), t.Symbol, side,
				format.Quantity(t.Quantity), f.Currency(t.Price), f.Currency(t.Notional()), strategy))
		}
	}
	return panel(width).Render(strings.Join(lines, "\n"))
}

func (m model) renderStrategies(width int) string {
	snap := m.snapshot.Strategies
	if !snap.Loaded {
		return panel(width).Render("Loading strategies...")
	}
	var lines []string
	lines = append(lines, titleStyle.Render("Strategies"))
	lines = append(lines, strings.Repeat("─", width-4))
	if len(snap.Strategies) == 0 {
		lines = append(lines, dimStyle.Render("No strategies. Press n to add one."))
		return panel(width).Render(strings.Join(lines, "\n"))
	}
	for i, s := range snap.Strategies {
		status := lossStyle.Render("Inactive")
		if s.IsActive {
			status = gainStyle.Render("Active  ")
		}
		metrics := ""
		if s.HasMetrics() {
			metrics = dimStyle.Render("[View Metrics]")
		}
		line := fmt.Sprintf("%-24s %s  %-36s %s", truncate(s.Name, 24), status, truncate(s.Description, 36), metrics)
		if i == m.selected {
			line = selectedStyle.Render("> ") + line
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}

	if s, ok := m.current(); ok && m.showMetrics {
		lines = append(lines, "")
		lines = append(lines, titleStyle.Render("Metrics: "+s.Name))
		lines = append(lines, strings.Repeat("─", width-4))
		values, err := strategies.Metrics(s, m.opts.MetricFields)
		if err != nil {
			lines = append(lines, dimStyle.Render(err.Error()))
		}
		for _, v := range values {
			lines = append(lines, fmt.Sprintf("%-16s %s", v.Label+":", v.Value))
		}
	}
	return panel(width).Render(strings.Join(lines, "\n"))
}

func (m model) renderEditor(width int) string {
	e := m.editor
	var lines []string
	lines = append(lines, titleStyle.Render(e.Title()))
	lines = append(lines, strings.Repeat("─", width-4))
	fields := []struct {
		label string
		value string
	}{
		{"Strategy Name", e.Draft.Name},
		{"Description", e.Draft.Description},
		{"Parameters (JSON)", e.Draft.Parameters},
	}
	for i, fld := range fields {
		label := fmt.Sprintf("%-18s", fld.label+":")
		value := fld.value
		if i == m.field {
			label = selectedStyle.Render(label)
			value += "█"
		}
		lines = append(lines, label+" "+value)
	}
	if m.saving {
		lines = append(lines, "", warnStyle.Render("Saving..."))
	}
	if e.Err != nil {
		lines = append(lines, "", lossStyle.Render("Error: "+e.Err.Error()))
	}
	return panel(width).Render(strings.Join(lines, "\n"))
}

func (m model) renderConfirm(width int) string {
	s := m.pendingDelete
	text := fmt.Sprintf("Are you sure you want to delete strategy %q? (y/n)", s.Name)
	return panel(width).Render(warnStyle.Render(text))
}

func (m model) renderChart(width int) string {
	snap := m.snapshot
	var lines []string
	title := snap.ChartKey.String()
	if snap.Chart != nil {
		title = snap.Chart.Series.Title
	}
	if snap.ChartLoading {
		title += dimStyle.Render("  loading...")
	}
	lines = append(lines, titleStyle.Render(title))
	lines = append(lines, strings.Repeat("─", width-4))
	if m.candle {
		lines = append(lines, warnStyle.Render("Candlestick chart is not implemented, showing line chart."))
	}
	if snap.Chart == nil {
		lines = append(lines, dimStyle.Render("No market data yet"))
		return panel(width).Render(strings.Join(lines, "\n"))
	}

	s := snap.Chart.Series
	lines = append(lines, series.Plot(s, width-4, m.opts.ChartHeight, nil))
	if lo, hi, ok := s.Bounds(); ok {
		stats := fmt.Sprintf("%s  Low: %.2f  High: %.2f  Last: %.2f", s.Label, lo, hi, s.Values[len(s.Values)-1])
		if pct, ok := s.Change(); ok {
			stats += "  Change: " + signed(pct, format.Percentage(pct))
		}
		lines = append(lines, "", stats)
	}
	return panel(width).Render(strings.Join(lines, "\n"))
}

func formatTime(ts domain.Timestamp, layout string) string {
	if ts.IsZero() {
		return format.Placeholder
	}
	return ts.Local().Format(layout)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

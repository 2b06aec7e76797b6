package apiserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/tradedash/internal/domain"
)

const (
	defaultTradesLimit = 50
	maxQueryLimit      = 1000
)

type portfolioRow struct {
	ID          int64
	Name        string
	CashBalance float64
	UpdatedAt   time.Time
}

type positionRow struct {
	ID           int64
	PortfolioID  int64
	Symbol       string
	Exchange     string
	Quantity     float64
	AvgPrice     float64
	CurrentPrice float64
}

// valued 市值与未实现盈亏用 decimal 计算，避免浮点累计误差
func (p positionRow) valued() domain.Position {
	qty := decimal.NewFromFloat(p.Quantity)
	avg := decimal.NewFromFloat(p.AvgPrice)
	cur := decimal.NewFromFloat(p.CurrentPrice)

	marketValue := qty.Mul(cur)
	unrealized := cur.Sub(avg).Mul(qty)
	pct := decimal.Zero
	if cost := avg.Mul(qty); qty.IsPositive() && !cost.IsZero() {
		pct = unrealized.Div(cost).Mul(decimal.NewFromInt(100))
	}
	return domain.Position{
		ID:            p.ID,
		Symbol:        p.Symbol,
		Exchange:      p.Exchange,
		Quantity:      p.Quantity,
		AvgPrice:      p.AvgPrice,
		CurrentPrice:  p.CurrentPrice,
		MarketValue:   marketValue.InexactFloat64(),
		UnrealizedPnL: unrealized.InexactFloat64(),
		PnLPercentage: pct.Round(6).InexactFloat64(),
	}
}

func (s *Server) getFirstPortfolio(ctx context.Context) (*portfolioRow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, cash_balance, updated_at FROM portfolios ORDER BY id LIMIT 1`)
	var p portfolioRow
	var updated string
	if err := row.Scan(&p.ID, &p.Name, &p.CashBalance, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}

func (s *Server) createPortfolio(ctx context.Context, name string, cash float64) (*portfolioRow, error) {
	now := time.Now()
	var id int64
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`
INSERT INTO portfolios(name, cash_balance, created_at, updated_at) VALUES(?, ?, ?, ?) RETURNING id`),
		name, cash, formatTime(now), formatTime(now)).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert portfolio: %w", err)
	}
	return &portfolioRow{ID: id, Name: name, CashBalance: cash, UpdatedAt: now}, nil
}

// ensurePortfolio 没有组合时自动创建默认组合
func (s *Server) ensurePortfolio(ctx context.Context) (*portfolioRow, error) {
	p, err := s.getFirstPortfolio(ctx)
	if err != nil || p != nil {
		return p, err
	}
	return s.createPortfolio(ctx, "Main Portfolio", DefaultCashBalance)
}

func (s *Server) listPositions(ctx context.Context, portfolioID int64) ([]positionRow, error) {
	q := `SELECT id, portfolio_id, symbol, exchange, quantity, avg_price, current_price FROM positions`
	var args []any
	if portfolioID > 0 {
		q += ` WHERE portfolio_id = ?`
		args = append(args, portfolioID)
	}
	q += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []positionRow
	for rows.Next() {
		var p positionRow
		if err := rows.Scan(&p.ID, &p.PortfolioID, &p.Symbol, &p.Exchange, &p.Quantity, &p.AvgPrice, &p.CurrentPrice); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Server) insertPosition(ctx context.Context, p positionRow) (int64, error) {
	now := formatTime(time.Now())
	var id int64
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`
INSERT INTO positions(portfolio_id, symbol, exchange, quantity, avg_price, current_price, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		p.PortfolioID, p.Symbol, p.Exchange, p.Quantity, p.AvgPrice, p.CurrentPrice, now, now).Scan(&id)
	return id, err
}

func (s *Server) listTrades(ctx context.Context, limit int) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
SELECT id, symbol, exchange, side, quantity, price, commission, strategy, executed_at
FROM trades ORDER BY executed_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.Trade{}
	for rows.Next() {
		var t domain.Trade
		var side, executed string
		if err := rows.Scan(&t.ID, &t.Symbol, &t.Exchange, &side, &t.Quantity, &t.Price, &t.Commission, &t.Strategy, &executed); err != nil {
			return nil, err
		}
		t.Side = domain.Side(side)
		t.ExecutedAt = domain.TS(parseTime(executed))
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Server) insertTrade(ctx context.Context, portfolioID int64, t domain.Trade) (int64, error) {
	executed := t.ExecutedAt.Time
	if executed.IsZero() {
		executed = time.Now()
	}
	var id int64
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(`
INSERT INTO trades(portfolio_id, symbol, exchange, side, quantity, price, commission, strategy, executed_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		portfolioID, t.Symbol, t.Exchange, string(t.Side), t.Quantity, t.Price, t.Commission, t.Strategy, formatTime(executed)).Scan(&id)
	return id, err
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := s.ensurePortfolio(ctx)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	positions, err := s.listPositions(ctx, p.ID)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}

	marketValue := decimal.Zero
	unrealized := decimal.Zero
	for _, row := range positions {
		v := row.valued()
		marketValue = marketValue.Add(decimal.NewFromFloat(v.MarketValue))
		unrealized = unrealized.Add(decimal.NewFromFloat(v.UnrealizedPnL))
	}
	cash := decimal.NewFromFloat(p.CashBalance)

	writeJSON(w, 200, domain.PortfolioSummary{
		PortfolioID:    p.ID,
		TotalValue:     cash.Add(marketValue).InexactFloat64(),
		CashBalance:    p.CashBalance,
		MarketValue:    marketValue.InexactFloat64(),
		UnrealizedPnL:  unrealized.InexactFloat64(),
		PositionsCount: len(positions),
		UpdatedAt:      domain.TS(p.UpdatedAt),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rows, err := s.listPositions(ctx, 0)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	out := make([]domain.Position, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.valued())
	}
	writeJSON(w, 200, out)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultTradesLimit)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	out, err := s.listTrades(ctx, limit)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, out)
}

// queryLimit 解析 limit 查询参数，范围 1..maxQueryLimit
func queryLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxQueryLimit {
		return 0, fmt.Errorf("limit must be an integer in 1..%d", maxQueryLimit)
	}
	return n, nil
}

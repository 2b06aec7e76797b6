package apiserver

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/pkg/marketspec"
)

const defaultBarsLimit = 100

type barsKey struct {
	key   marketspec.Key
	limit int
}

// listBars 取最近 limit 根，按时间升序返回
func (s *Server) listBars(ctx context.Context, key marketspec.Key, limit int) ([]domain.MarketDataBar, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(`
SELECT symbol, ts, open_price, high_price, low_price, close_price, volume
FROM market_data WHERE symbol = ? AND exchange = ? AND timeframe = ?
ORDER BY ts DESC LIMIT ?`), key.Symbol, key.Exchange, key.Timeframe.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.MarketDataBar{}
	for rows.Next() {
		var b domain.MarketDataBar
		var ts string
		if err := rows.Scan(&b.Symbol, &ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, err
		}
		b.Timestamp = domain.TS(parseTime(ts))
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Server) insertBars(ctx context.Context, key marketspec.Key, bars []domain.MarketDataBar) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	q := s.dialect.rebind(`
INSERT INTO market_data(symbol, exchange, timeframe, ts, open_price, high_price, low_price, close_price, volume)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for _, b := range bars {
		if _, err := tx.ExecContext(ctx, q, key.Symbol, key.Exchange, key.Timeframe.String(),
			formatTime(b.Timestamp.Time), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if s.bars != nil {
		s.bars.Clear()
	}
	return nil
}

func (s *Server) handleMarketData(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	exchange := strings.TrimSpace(q.Get("exchange"))
	if exchange == "" {
		writeError(w, 400, "exchange is required")
		return
	}
	timeframe := q.Get("timeframe")
	if timeframe == "" {
		timeframe = string(marketspec.Timeframe1h)
	}
	key, err := marketspec.New(pathParam(r, "symbol"), exchange, timeframe)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	limit, err := queryLimit(r, defaultBarsLimit)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}

	ck := barsKey{key: key, limit: limit}
	if s.bars != nil {
		if out, ok := s.bars.Get(ck); ok {
			writeJSON(w, 200, out)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	out, err := s.listBars(ctx, key, limit)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	if s.bars != nil {
		s.bars.Set(ck, out, 0)
	}
	writeJSON(w, 200, out)
}

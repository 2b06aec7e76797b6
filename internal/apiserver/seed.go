package apiserver

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/pkg/marketspec"
)

type seedInstrument struct {
	symbol   string
	exchange string
	price    float64
}

var seedInstruments = []seedInstrument{
	{"BTCUSDT", "binance", 64000},
	{"TEVA", "tase", 52.3},
	{"AAPL", "nasdaq", 189.5},
}

// SeedBars 每个周期生成的 K 线数量
const SeedBars = 200

// Seed 写入演示数据；已有策略时视为已初始化，直接返回
func (s *Server) Seed(ctx context.Context) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM strategies`).Scan(&n); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if n > 0 {
		log.Info("seed skipped, data already present")
		return nil
	}

	p, err := s.ensurePortfolio(ctx)
	if err != nil {
		return fmt.Errorf("seed portfolio: %w", err)
	}

	rng := rand.New(rand.NewSource(42))
	now := time.Now().UTC().Truncate(time.Minute)

	last := map[string]float64{}
	for _, inst := range seedInstruments {
		for _, tf := range marketspec.Timeframes {
			key := marketspec.Key{Symbol: inst.symbol, Exchange: inst.exchange, Timeframe: tf}
			bars := randomWalk(rng, inst.price, now, tf, SeedBars)
			if err := s.insertBars(ctx, key, bars); err != nil {
				return fmt.Errorf("seed bars %s: %w", key, err)
			}
			if tf == marketspec.Timeframe1m {
				last[inst.symbol] = bars[len(bars)-1].Close
			}
		}
	}

	positions := []positionRow{
		{Symbol: "BTCUSDT", Exchange: "binance", Quantity: 0.25, AvgPrice: 61500},
		{Symbol: "TEVA", Exchange: "tase", Quantity: 400, AvgPrice: 55.1},
		{Symbol: "AAPL", Exchange: "nasdaq", Quantity: 30, AvgPrice: 181.2},
	}
	for _, pos := range positions {
		pos.PortfolioID = p.ID
		pos.CurrentPrice = last[pos.Symbol]
		if _, err := s.insertPosition(ctx, pos); err != nil {
			return fmt.Errorf("seed position %s: %w", pos.Symbol, err)
		}
	}

	trades := []domain.Trade{
		{Symbol: "BTCUSDT", Exchange: "binance", Side: domain.SideBuy, Quantity: 0.25, Price: 61500, Commission: 15.4, Strategy: "Momentum Strategy"},
		{Symbol: "TEVA", Exchange: "tase", Side: domain.SideBuy, Quantity: 500, Price: 55.1, Commission: 6.9, Strategy: "Mean Reversion"},
		{Symbol: "TEVA", Exchange: "tase", Side: domain.SideSell, Quantity: 100, Price: 57.8, Commission: 1.45, Strategy: "Mean Reversion"},
		{Symbol: "AAPL", Exchange: "nasdaq", Side: domain.SideBuy, Quantity: 30, Price: 181.2, Commission: 2.7},
	}
	for i, t := range trades {
		t.ExecutedAt = domain.TS(now.Add(-time.Duration(len(trades)-i) * 3 * time.Hour))
		if _, err := s.insertTrade(ctx, p.ID, t); err != nil {
			return fmt.Errorf("seed trade: %w", err)
		}
	}

	momentumMetrics := `{"total_return": 12.4, "win_rate": 0.58, "sharpe_ratio": 1.35, "max_drawdown": -6.2, "total_trades": 41}`
	reversionMetrics := `{"total_return": -2.1, "win_rate": 0.47, "sharpe_ratio": 0.4, "max_drawdown": -9.8, "total_trades": 17}`
	seeds := []struct {
		in      domain.StrategyInput
		active  bool
		metrics *string
	}{
		{domain.StrategyInput{
			Name:        "Momentum Strategy",
			Description: "Moving average crossover confirmed by RSI",
			Parameters:  `{"short_window": 10, "long_window": 30, "rsi_period": 14, "rsi_oversold": 30, "rsi_overbought": 70}`,
		}, true, &momentumMetrics},
		{domain.StrategyInput{
			Name:        "Mean Reversion",
			Description: "Fades moves beyond two standard deviations",
			Parameters:  `{"lookback": 20, "z_entry": 2.0}`,
		}, false, &reversionMetrics},
		{domain.StrategyInput{
			Name:        "Breakout",
			Description: "Enters on range breakouts",
			Parameters:  domain.DefaultParameters,
		}, false, nil},
	}
	for _, st := range seeds {
		if _, err := s.insertStrategy(ctx, st.in, st.active, st.metrics); err != nil {
			return fmt.Errorf("seed strategy %q: %w", st.in.Name, err)
		}
	}
	log.Infof("seeded portfolio %d with %d positions, %d trades, %d strategies", p.ID, len(positions), len(trades), len(seeds))
	return nil
}

// randomWalk 生成以 end 结束、按时间升序的 n 根 K 线
func randomWalk(rng *rand.Rand, start float64, end time.Time, tf marketspec.Timeframe, n int) []domain.MarketDataBar {
	step := tf.Duration()
	first := end.Truncate(step).Add(-time.Duration(n-1) * step)
	price := start
	out := make([]domain.MarketDataBar, 0, n)
	for i := 0; i < n; i++ {
		open := price
		drift := rng.NormFloat64() * 0.0005 * math.Sqrt(step.Minutes())
		closePrice := math.Max(open*(1+drift), 0.01)
		high := math.Max(open, closePrice) * (1 + rng.Float64()*0.002)
		low := math.Min(open, closePrice) * (1 - rng.Float64()*0.002)
		out = append(out, domain.MarketDataBar{
			Timestamp: domain.TS(first.Add(time.Duration(i) * step)),
			Open:      round2(open),
			High:      round2(high),
			Low:       round2(low),
			Close:     round2(closePrice),
			Volume:    float64(100 + rng.Intn(10000)),
		})
		price = closePrice
	}
	return out
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

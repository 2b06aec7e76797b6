package domain

// PortfolioSummary 组合概览，一经产生不再修改
type PortfolioSummary struct {
	PortfolioID    int64     `json:"portfolio_id"`
	TotalValue     float64   `json:"total_value"`
	CashBalance    float64   `json:"cash_balance"`
	MarketValue    float64   `json:"market_value"`
	UnrealizedPnL  float64   `json:"unrealized_pnl"`
	PositionsCount int       `json:"positions_count"`
	UpdatedAt      Timestamp `json:"updated_at"`
}

// Position 持仓，每个轮询周期整体替换
type Position struct {
	ID            int64   `json:"id"`
	Symbol        string  `json:"symbol"`
	Exchange      string  `json:"exchange"`
	Quantity      float64 `json:"quantity"`
	AvgPrice      float64 `json:"avg_price"`
	CurrentPrice  float64 `json:"current_price"`
	MarketValue   float64 `json:"market_value"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	PnLPercentage float64 `json:"pnl_percentage"`
}

// PnLPercent 未实现盈亏百分比；数量或成本为 0 时返回 0
func PnLPercent(unrealized, avgPrice, quantity float64) float64 {
	cost := avgPrice * quantity
	if quantity <= 0 || cost == 0 {
		return 0
	}
	return unrealized / cost * 100
}

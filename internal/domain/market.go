package domain

// MarketDataBar 一根 K 线，列表按时间升序
type MarketDataBar struct {
	Symbol    string    `json:"symbol,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Package series 把行情 K 线转换为图表数据：本地时间标签 + 收盘价序列。
package series

import (
	"fmt"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/pkg/marketspec"
)

// LabelLayout 标签格式（本地时区的时:分:秒）
const LabelLayout = "15:04:05"

// Series 图表数据，Labels 与 Values 一一对应
type Series struct {
	Title     string
	Label     string
	Labels    []string
	Values    []float64
	Timeframe marketspec.Timeframe
}

// Len 点数
func (s Series) Len() int { return len(s.Values) }

// Transform 不排序、不过滤：输入顺序即输出顺序。
// 空输入返回空（非 nil）切片。
func Transform(key marketspec.Key, bars []domain.MarketDataBar) Series {
	s := Series{
		Title:     fmt.Sprintf("%s (%s) - %s", key.Symbol, key.Exchange, key.Timeframe),
		Label:     key.Symbol + " Price",
		Labels:    make([]string, 0, len(bars)),
		Values:    make([]float64, 0, len(bars)),
		Timeframe: key.Timeframe,
	}
	for _, b := range bars {
		s.Labels = append(s.Labels, b.Timestamp.Local().Format(LabelLayout))
		s.Values = append(s.Values, b.Close)
	}
	return s
}

// Ascending 时间戳是否非递减
func Ascending(bars []domain.MarketDataBar) bool {
	for i := 1; i < len(bars); i++ {
		if bars[i].Timestamp.Before(bars[i-1].Timestamp.Time) {
			return false
		}
	}
	return true
}

// Bounds 最小/最大值；空序列 ok=false
func (s Series) Bounds() (lo, hi float64, ok bool) {
	if len(s.Values) == 0 {
		return 0, 0, false
	}
	lo, hi = s.Values[0], s.Values[0]
	for _, v := range s.Values[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi, true
}

// Change 首尾变化百分比；不足两个点或首值为 0 时 ok=false
func (s Series) Change() (pct float64, ok bool) {
	if len(s.Values) < 2 || s.Values[0] == 0 {
		return 0, false
	}
	first, last := s.Values[0], s.Values[len(s.Values)-1]
	return (last - first) / first * 100, true
}

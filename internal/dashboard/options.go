package dashboard

import (
	"github.com/betbot/tradedash/internal/format"
	"github.com/betbot/tradedash/internal/strategies"
)

// Options 控制看板的展示参数
type Options struct {
	// Title UI 标题（header 左侧展示）
	Title string
	// Formatter 货币/百分比格式，默认 ILS
	Formatter *format.Formatter
	// MetricFields 绩效面板展示的字段
	MetricFields []strategies.MetricField
	// ChartHeight 折线图行数，默认 12
	ChartHeight int
}

func (o *Options) withDefaults() {
	if o.Title == "" {
		o.Title = "Trading Dashboard"
	}
	if o.Formatter == nil {
		o.Formatter = format.MustNew(format.DefaultCurrency)
	}
	if len(o.MetricFields) == 0 {
		o.MetricFields = strategies.DefaultMetricFields
	}
	if o.ChartHeight <= 0 {
		o.ChartHeight = 12
	}
}

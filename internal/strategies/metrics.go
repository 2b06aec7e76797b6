package strategies

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/PaesslerAG/jsonpath"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/format"
)

// MetricField 展示名 + jsonpath
type MetricField struct {
	Label string
	Path  string
}

// MetricValue 提取结果；路径不存在时 Value 为占位符
type MetricValue struct {
	Label string
	Value string
	Err   error
}

// DefaultMetricFields 未配置时展示的字段
var DefaultMetricFields = []MetricField{
	{Label: "Total Return", Path: "$.total_return"},
	{Label: "Win Rate", Path: "$.win_rate"},
	{Label: "Sharpe Ratio", Path: "$.sharpe_ratio"},
	{Label: "Max Drawdown", Path: "$.max_drawdown"},
	{Label: "Trades", Path: "$.total_trades"},
}

// MetricFieldsFromConfig 配置（展示名 -> jsonpath）转为按展示名排序的字段列表
func MetricFieldsFromConfig(cfg map[string]string) []MetricField {
	if len(cfg) == 0 {
		return DefaultMetricFields
	}
	out := make([]MetricField, 0, len(cfg))
	for label, path := range cfg {
		out = append(out, MetricField{Label: label, Path: path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// Metrics 从 performance_metrics 中提取字段
func Metrics(s domain.Strategy, fields []MetricField) ([]MetricValue, error) {
	if !s.HasMetrics() {
		return nil, ErrNoMetrics
	}
	var doc any
	if err := json.Unmarshal([]byte(*s.PerformanceMetrics), &doc); err != nil {
		return nil, fmt.Errorf("strategy %d: parse performance metrics: %w", s.ID, err)
	}
	if len(fields) == 0 {
		fields = DefaultMetricFields
	}

	out := make([]MetricValue, 0, len(fields))
	for _, f := range fields {
		mv := MetricValue{Label: f.Label, Value: format.Placeholder}
		v, err := jsonpath.Get(f.Path, doc)
		if err != nil {
			mv.Err = err
			out = append(out, mv)
			continue
		}
		// 通配路径返回列表，取第一个
		if list, ok := v.([]any); ok {
			if len(list) == 0 {
				out = append(out, mv)
				continue
			}
			v = list[0]
		}
		mv.Value = metricString(v)
		out = append(out, mv)
	}
	return out, nil
}

// PrettyMetrics 缩进后的原始 JSON；不是 JSON 时原样返回
func PrettyMetrics(s domain.Strategy) (string, error) {
	if !s.HasMetrics() {
		return "", ErrNoMetrics
	}
	var doc any
	if err := json.Unmarshal([]byte(*s.PerformanceMetrics), &doc); err != nil {
		return *s.PerformanceMetrics, nil
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func metricString(v any) string {
	switch x := v.(type) {
	case nil:
		return format.Placeholder
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

package series

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/guptarohit/asciigraph"
)

// Plot 把序列画成字符折线图，纵轴保留两位小数。
// yLabel 格式化图下方的区间说明（可为 nil）；横轴给出首尾时间标签。
func Plot(s Series, width, height int, yLabel func(float64) string) string {
	if yLabel == nil {
		yLabel = func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
	}
	lo, hi, ok := s.Bounds()
	if !ok || width < 2 || height < 2 {
		return "no data"
	}

	// 纵轴刻度宽度 + " ┤"
	axisW := utf8.RuneCountInString(strconv.FormatFloat(hi, 'f', 2, 64))
	if n := utf8.RuneCountInString(strconv.FormatFloat(lo, 'f', 2, 64)); n > axisW {
		axisW = n
	}
	axisW += 3
	plotW := width - axisW
	if plotW < 2 {
		plotW = 2
	}

	values := s.Values
	if len(values) == 1 {
		values = []float64{values[0], values[0]}
	}
	graph := asciigraph.Plot(values,
		asciigraph.Height(height-1),
		asciigraph.Width(plotW),
		asciigraph.Precision(2),
		asciigraph.Caption(yLabel(lo)+" ~ "+yLabel(hi)),
	)

	if len(s.Labels) == 0 {
		return graph
	}
	var b strings.Builder
	b.WriteString(graph)
	b.WriteByte('\n')
	first, last := s.Labels[0], s.Labels[len(s.Labels)-1]
	b.WriteString(strings.Repeat(" ", axisW))
	b.WriteString(first)
	if len(s.Labels) > 1 {
		gap := plotW - utf8.RuneCountInString(first) - utf8.RuneCountInString(last)
		if gap < 1 {
			gap = 1
		}
		b.WriteString(strings.Repeat(" ", gap))
		b.WriteString(last)
	}
	return b.String()
}

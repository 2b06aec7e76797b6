// Package format 把原始数值转成展示字符串：货币与带符号百分比。
package format

import (
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Placeholder 非有限数值（NaN/Inf）或缺失值的占位符
const Placeholder = "-"

// DefaultCurrency 默认展示币种
const DefaultCurrency = "ILS"

// Formatter 固定币种的格式化器
type Formatter struct {
	code      string
	fraction  int32
	formatter *money.Formatter
}

// New 按 ISO 4217 代码创建格式化器
func New(code string) (*Formatter, error) {
	cur := money.GetCurrency(code)
	if cur == nil {
		return nil, fmt.Errorf("unknown currency %q", code)
	}
	return &Formatter{
		code:      cur.Code,
		fraction:  int32(cur.Fraction),
		formatter: cur.Formatter(),
	}, nil
}

// MustNew 同 New，未知币种 panic（仅用于常量币种）
func MustNew(code string) *Formatter {
	f, err := New(code)
	if err != nil {
		panic(err)
	}
	return f
}

// Code 币种代码
func (f *Formatter) Code() string { return f.code }

// Currency 按币种小数位四舍五入后输出，如 ₪1,234.50 / -₪12.00
func (f *Formatter) Currency(v float64) string {
	if !finite(v) {
		return Placeholder
	}
	minor := decimal.NewFromFloat(v).Round(f.fraction).Shift(f.fraction)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return f.formatLarge(minor)
	}
	return f.formatter.Format(minor.IntPart())
}

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// formatLarge 超出 int64 的金额：按 go-money 的模板与分隔符在十进制字符串上排版
func (f *Formatter) formatLarge(minor decimal.Decimal) string {
	mf := f.formatter
	digits := minor.Abs().StringFixed(0)
	if len(digits) <= mf.Fraction {
		digits = strings.Repeat("0", mf.Fraction-len(digits)+1) + digits
	}
	intLen := len(digits) - mf.Fraction
	var b strings.Builder
	for i := 0; i < intLen; i++ {
		if i > 0 && mf.Thousand != "" && (intLen-i)%3 == 0 {
			b.WriteString(mf.Thousand)
		}
		b.WriteByte(digits[i])
	}
	if mf.Fraction > 0 {
		b.WriteString(mf.Decimal)
		b.WriteString(digits[intLen:])
	}
	out := strings.Replace(mf.Template, "1", b.String(), 1)
	out = strings.Replace(out, "$", mf.Grapheme, 1)
	if minor.Sign() < 0 {
		out = "-" + out
	}
	return out
}

// CurrencyPtr summary 缺失时显示占位符
func (f *Formatter) CurrencyPtr(v *float64) string {
	if v == nil {
		return Placeholder
	}
	return f.Currency(*v)
}

// Percentage 两位小数的带符号百分比。四舍五入后为 0 的值（含 -0）按非负处理："+0.00%"
func (f *Formatter) Percentage(v float64) string {
	return Percentage(v)
}

var defaultFormatter = MustNew(DefaultCurrency)

// Currency 使用默认币种格式化
func Currency(v float64) string {
	return defaultFormatter.Currency(v)
}

// Percentage 见 Formatter.Percentage
func Percentage(v float64) string {
	if !finite(v) {
		return Placeholder
	}
	d := decimal.NewFromFloat(v).Round(2)
	s := d.StringFixed(2)
	if d.Sign() >= 0 {
		return "+" + strings.TrimPrefix(s, "-") + "%"
	}
	return s + "%"
}

// Sign 盈亏着色用的符号分类
type Sign int

const (
	Flat Sign = iota
	Gain
	Loss
)

// Signed 返回数值的符号分类，非有限值归为 Flat
func Signed(v float64) Sign {
	switch {
	case !finite(v), v == 0:
		return Flat
	case v > 0:
		return Gain
	default:
		return Loss
	}
}

// Quantity 数量展示：整数不带小数，否则最多 4 位
func Quantity(v float64) string {
	if !finite(v) {
		return Placeholder
	}
	return decimal.NewFromFloat(v).Round(4).String()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

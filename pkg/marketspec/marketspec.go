package marketspec

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Timeframe 表示 K 线周期。
// 支持：1m / 5m / 1h / 1d
type Timeframe string

const (
	Timeframe1m Timeframe = "1m"
	Timeframe5m Timeframe = "5m"
	Timeframe1h Timeframe = "1h"
	Timeframe1d Timeframe = "1d"
)

// Timeframes 按从小到大排列，TUI 用它做周期切换
var Timeframes = []Timeframe{Timeframe1m, Timeframe5m, Timeframe1h, Timeframe1d}

func ParseTimeframe(v string) (Timeframe, error) {
	s := strings.ToLower(strings.TrimSpace(v))
	switch s {
	case "1m", "1min", "1minute":
		return Timeframe1m, nil
	case "5m", "5min", "5mins", "5minutes":
		return Timeframe5m, nil
	case "1h", "1hour", "60m", "60min":
		return Timeframe1h, nil
	case "1d", "1day", "24h", "d":
		return Timeframe1d, nil
	default:
		return "", fmt.Errorf("unsupported timeframe %q (supported: 1m/5m/1h/1d)", v)
	}
}

func (t Timeframe) String() string { return string(t) }

func (t Timeframe) Duration() time.Duration {
	switch t {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return time.Hour
	}
}

// Next 返回下一个周期（循环）；step 为负时向前。
func (t Timeframe) Next(step int) Timeframe {
	idx := 0
	for i, tf := range Timeframes {
		if tf == t {
			idx = i
			break
		}
	}
	n := len(Timeframes)
	return Timeframes[((idx+step)%n+n)%n]
}

// Key 标识一次行情请求窗口：symbol + exchange + timeframe。
type Key struct {
	Symbol    string // e.g. "BTCUSDT"
	Exchange  string // e.g. "binance"
	Timeframe Timeframe
}

var (
	symbolRe   = regexp.MustCompile(`^[A-Z0-9][A-Z0-9._-]*$`)
	exchangeRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
)

// New 规范化并校验行情窗口。symbol 统一大写，exchange 统一小写。
func New(symbol, exchange, timeframe string) (Key, error) {
	tf, err := ParseTimeframe(timeframe)
	if err != nil {
		return Key{}, err
	}
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if !symbolRe.MatchString(s) {
		return Key{}, fmt.Errorf("invalid symbol %q", symbol)
	}
	e := strings.ToLower(strings.TrimSpace(exchange))
	if !exchangeRe.MatchString(e) {
		return Key{}, fmt.Errorf("invalid exchange %q", exchange)
	}
	return Key{Symbol: s, Exchange: e, Timeframe: tf}, nil
}

// WithTimeframe 返回只替换周期的新窗口
func (k Key) WithTimeframe(tf Timeframe) Key {
	k.Timeframe = tf
	return k
}

func (k Key) String() string {
	return fmt.Sprintf("%s (%s) - %s", k.Symbol, k.Exchange, k.Timeframe)
}

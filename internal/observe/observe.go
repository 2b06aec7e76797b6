// Package observe 收集同步引擎的运行事件：周期结果与失败。
package observe

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/gateway"
	"github.com/betbot/tradedash/internal/metrics"
)

// Source 事件来源
type Source string

const (
	SourcePortfolio  Source = "portfolio"
	SourceChart      Source = "chart"
	SourceStrategies Source = "strategies"
)

// Outcome 周期结局
type Outcome int

const (
	Issued Outcome = iota
	Published
	// Discarded 成功但代次不新于当前展示（乱序到达）或已 teardown
	Discarded
	Failed
	// Superseded 行情窗口已切换，旧请求结果作废
	Superseded
)

func (o Outcome) String() string {
	switch o {
	case Issued:
		return "issued"
	case Published:
		return "published"
	case Discarded:
		return "discarded"
	case Failed:
		return "failed"
	case Superseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Sink 观测接收端
type Sink interface {
	Cycle(src Source, gen domain.Generation, outcome Outcome)
	Failure(src Source, op string, err error)
}

// LogSink logrus + expvar
type LogSink struct {
	log *logrus.Entry
}

// NewLogSink 默认观测端
func NewLogSink() *LogSink {
	return &LogSink{log: logrus.WithField("module", "observe")}
}

func (s *LogSink) Cycle(src Source, gen domain.Generation, outcome Outcome) {
	switch src {
	case SourcePortfolio:
		switch outcome {
		case Issued:
			metrics.CyclesIssued.Add(1)
		case Published:
			metrics.CyclesPublished.Add(1)
		case Discarded:
			metrics.CyclesDiscarded.Add(1)
		case Failed:
			metrics.CyclesFailed.Add(1)
		}
	case SourceChart:
		switch outcome {
		case Issued:
			metrics.ChartLoads.Add(1)
		case Failed:
			metrics.ChartFailures.Add(1)
		case Superseded, Discarded:
			metrics.ChartSuperseded.Add(1)
		}
	}
	s.log.WithFields(logrus.Fields{"source": src, "generation": gen}).Debugf("cycle %s", outcome)
}

func (s *LogSink) Failure(src Source, op string, err error) {
	if err == nil {
		return
	}
	if src == SourceStrategies {
		metrics.StrategyFailures.Add(1)
	}
	fields := logrus.Fields{"source": src, "op": op}

	var ge *gateway.Error
	kind := gateway.KindOf(err)
	switch kind {
	case gateway.KindTransport:
		metrics.GatewayErrorsTransport.Add(1)
	case gateway.KindStatus:
		metrics.GatewayErrorsStatus.Add(1)
		fields["status"] = gateway.StatusCode(err)
	case gateway.KindDecode:
		metrics.GatewayErrorsDecode.Add(1)
	default:
		metrics.OtherErrors.Add(1)
	}
	if kind != 0 {
		fields["kind"] = kind.String()
		if errors.As(err, &ge) && ge.RequestID != "" {
			fields["request_id"] = ge.RequestID
		}
	}
	s.log.WithFields(fields).WithError(err).Warn("operation failed")
}

// Event 记录的事件
type Event struct {
	Source     Source
	Generation domain.Generation
	Outcome    Outcome
	Op         string
	Err        error
}

// Recorder 内存记录（测试用），同时转发给 Next（可为 nil）
type Recorder struct {
	mu     sync.Mutex
	events []Event
	Next   Sink
}

func (r *Recorder) Cycle(src Source, gen domain.Generation, outcome Outcome) {
	r.mu.Lock()
	r.events = append(r.events, Event{Source: src, Generation: gen, Outcome: outcome})
	r.mu.Unlock()
	if r.Next != nil {
		r.Next.Cycle(src, gen, outcome)
	}
}

func (r *Recorder) Failure(src Source, op string, err error) {
	r.mu.Lock()
	r.events = append(r.events, Event{Source: src, Outcome: Failed, Op: op, Err: err})
	r.mu.Unlock()
	if r.Next != nil {
		r.Next.Failure(src, op, err)
	}
}

// Events 事件副本
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Failures 只返回带错误的事件
func (r *Recorder) Failures() []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Err != nil {
			out = append(out, e)
		}
	}
	return out
}

// Count 统计某来源某结局的周期事件（不含 Failure 调用）
func (r *Recorder) Count(src Source, outcome Outcome) int {
	n := 0
	for _, e := range r.Events() {
		if e.Source == src && e.Outcome == outcome && e.Err == nil {
			n++
		}
	}
	return n
}

// Nop 丢弃一切
type Nop struct{}

func (Nop) Cycle(Source, domain.Generation, Outcome) {}
func (Nop) Failure(Source, string, error)            {}

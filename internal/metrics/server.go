package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "metrics")

// SyncStats 同步引擎计数汇总
type SyncStats struct {
	CyclesIssued    int64 `json:"cycles_issued"`
	CyclesPublished int64 `json:"cycles_published"`
	CyclesFailed    int64 `json:"cycles_failed"`
	CyclesDiscarded int64 `json:"cycles_discarded"`
	ChartLoads      int64 `json:"chart_loads"`
	ChartFailures   int64 `json:"chart_failures"`
	GatewayErrors   int64 `json:"gateway_errors"`
	// 已发布占已发起的比例，没有周期时为 0
	PublishRatio float64 `json:"publish_ratio"`
}

// Snapshot 读取当前计数
func Snapshot() SyncStats {
	st := SyncStats{
		CyclesIssued:    CyclesIssued.Value(),
		CyclesPublished: CyclesPublished.Value(),
		CyclesFailed:    CyclesFailed.Value(),
		CyclesDiscarded: CyclesDiscarded.Value(),
		ChartLoads:      ChartLoads.Value(),
		ChartFailures:   ChartFailures.Value(),
		GatewayErrors:   GatewayErrorsTransport.Value() + GatewayErrorsStatus.Value() + GatewayErrorsDecode.Value(),
	}
	if st.CyclesIssued > 0 {
		st.PublishRatio = float64(st.CyclesPublished) / float64(st.CyclesIssued)
	}
	return st
}

func handleSync(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(Snapshot())
}

// Handler 返回 /debug/vars、/debug/sync 与 /debug/pprof 的处理器
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/debug/sync", handleSync)

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// StartAsync 在 listenAddr 上启动调试服务，ctx 结束时关闭
func StartAsync(ctx context.Context, listenAddr string) (*http.Server, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: Handler(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("metrics server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Infof("metrics listening on %s", ln.Addr())
	return srv, nil
}

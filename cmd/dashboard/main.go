package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/betbot/tradedash/internal/dashboard"
	"github.com/betbot/tradedash/internal/format"
	"github.com/betbot/tradedash/internal/gateway"
	"github.com/betbot/tradedash/internal/metrics"
	"github.com/betbot/tradedash/internal/observe"
	"github.com/betbot/tradedash/internal/poller"
	"github.com/betbot/tradedash/internal/reconcile"
	"github.com/betbot/tradedash/internal/strategies"
	"github.com/betbot/tradedash/pkg/config"
	"github.com/betbot/tradedash/pkg/logger"
	"github.com/betbot/tradedash/pkg/ratelimit"
	"github.com/betbot/tradedash/pkg/shutdown"
)

func main() {
	// .env 可选，缺失时只用真实环境变量
	_ = godotenv.Load()

	configPath := flag.String("config", "", "配置文件路径（支持 .yaml, .yml, .json）")
	title := flag.String("title", "", "看板标题")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// 终端被 TUI 占用时日志只写文件
	interactive := term.IsTerminal(int(os.Stdout.Fd()))
	logFile := cfg.LogFile
	if logFile == "" && interactive {
		logFile = "logs/dashboard.log"
	}
	if err := logger.Init(logger.Config{
		Level:         cfg.LogLevel,
		OutputFile:    logFile,
		MaxSize:       100,
		MaxBackups:    3,
		MaxAge:        7,
		Compress:      true,
		ConsoleOutput: !interactive,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	log := logrus.WithField("module", "main")

	if err := run(cfg, *title, log); err != nil {
		log.Errorf("dashboard exited: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, title string, log *logrus.Entry) error {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsListen != "" {
		if _, err := metrics.StartAsync(rootCtx, cfg.MetricsListen); err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		log.Infof("metrics listening on %s", cfg.MetricsListen)
	}

	chartKey, err := cfg.ChartKey()
	if err != nil {
		return err
	}
	formatter, err := format.New(cfg.Currency)
	if err != nil {
		return err
	}
	registry := strategies.NewRegistry()
	if cfg.Strategies.ParametersSchema != "" {
		v, err := strategies.LoadValidator(cfg.Strategies.ParametersSchema)
		if err != nil {
			return err
		}
		registry.SetDefault(v)
	}

	gw := gateway.New(cfg.API.BaseURL, cfg.API.RequestTimeout,
		gateway.WithRateLimiter(ratelimit.PerSecond(cfg.API.RateLimitPerSec)))
	sink := observe.NewLogSink()

	d := dashboard.New(dashboard.Options{
		Title:        title,
		Formatter:    formatter,
		MetricFields: strategies.MetricFieldsFromConfig(cfg.Strategies.MetricsFields),
	})
	rec := reconcile.New()
	p := poller.New(gw, rec, poller.Options{
		Interval:       cfg.Poll.Interval,
		RequestTimeout: cfg.API.RequestTimeout,
		TradesLimit:    cfg.Poll.TradesLimit,
		Sink:           sink,
		OnCycle:        d.OnCycle,
	})
	chart := poller.NewChartLoader(gw, poller.ChartOptions{
		Limit:          cfg.Chart.Limit,
		RequestTimeout: cfg.API.RequestTimeout,
		Sink:           sink,
		OnUpdate:       d.OnChart,
		OnLoading:      d.OnChartLoading,
	})
	coord := strategies.NewCoordinator(gw, strategies.Options{
		Registry:        registry,
		Sink:            sink,
		RequestTimeout:  cfg.API.RequestTimeout,
		RefreshInterval: cfg.Strategies.RefreshInterval,
		OnChange:        d.OnStrategies,
	})
	d.Attach(dashboard.Sources{Poller: p, Chart: chart, Coordinator: coord})
	d.SetExitCallback(cancel)

	sm := shutdown.NewManager()
	sm.OnShutdown("dashboard", func(context.Context) { d.Stop() })
	sm.OnShutdown("poller", func(context.Context) {
		p.Stop()
		p.Wait()
	})
	sm.OnShutdown("chart", func(context.Context) {
		chart.Stop()
		chart.Wait()
	})
	sm.OnShutdown("strategies", func(context.Context) { coord.Stop() })

	d.Watch(rootCtx, rec)
	if err := p.Start(rootCtx); err != nil {
		return err
	}
	chart.SetKey(chartKey)
	coord.Start(rootCtx)
	if err := d.Start(rootCtx); err != nil {
		return err
	}
	log.Infof("dashboard started: api=%s poll=%s chart=%s", cfg.API.BaseURL, cfg.Poll.Interval, chartKey)

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	select {
	case sig := <-stopCh:
		log.Infof("received %s", sig)
	case <-rootCtx.Done():
	}
	cancel()

	ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	sm.Shutdown(ctx)
	return nil
}

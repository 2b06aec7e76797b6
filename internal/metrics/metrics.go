package metrics

import "expvar"

var (
	CyclesIssued    = expvar.NewInt("cycles_issued")
	CyclesPublished = expvar.NewInt("cycles_published")
	CyclesFailed    = expvar.NewInt("cycles_failed")
	CyclesDiscarded = expvar.NewInt("cycles_discarded")

	ChartLoads      = expvar.NewInt("chart_loads")
	ChartFailures   = expvar.NewInt("chart_failures")
	ChartSuperseded = expvar.NewInt("chart_superseded")

	StrategyMutations = expvar.NewInt("strategy_mutations")
	StrategyFailures  = expvar.NewInt("strategy_failures")

	GatewayErrorsTransport = expvar.NewInt("gateway_errors_transport")
	GatewayErrorsStatus    = expvar.NewInt("gateway_errors_status")
	GatewayErrorsDecode    = expvar.NewInt("gateway_errors_decode")
	// 非网关错误（本地校验等）
	OtherErrors = expvar.NewInt("other_errors")
)

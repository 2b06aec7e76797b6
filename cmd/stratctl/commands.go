package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/subcommands"

	"github.com/betbot/tradedash/internal/domain"
	"github.com/betbot/tradedash/internal/gateway"
	"github.com/betbot/tradedash/internal/strategies"
	"github.com/betbot/tradedash/pkg/config"
	"github.com/betbot/tradedash/pkg/logger"
	"github.com/betbot/tradedash/pkg/ratelimit"
)

var commands = []subcommands.Command{
	&listCmd{},
	&createCmd{},
	&updateCmd{},
	&toggleCmd{},
	&deleteCmd{},
}

// session 建好协调器并拉取一次列表
func session(ctx context.Context) (*strategies.Coordinator, *config.Config, error) {
	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		return nil, nil, err
	}
	if *apiURL != "" {
		cfg.API.BaseURL = *apiURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	level := "warn"
	if *verbose {
		level = "debug"
	}
	if err := logger.Init(logger.Config{Level: level, ConsoleOutput: true}); err != nil {
		return nil, nil, err
	}

	registry := strategies.NewRegistry()
	if cfg.Strategies.ParametersSchema != "" {
		v, err := strategies.LoadValidator(cfg.Strategies.ParametersSchema)
		if err != nil {
			return nil, nil, err
		}
		registry.SetDefault(v)
	}
	gw := gateway.New(cfg.API.BaseURL, cfg.API.RequestTimeout,
		gateway.WithRateLimiter(ratelimit.PerSecond(cfg.API.RateLimitPerSec)))
	coord := strategies.NewCoordinator(gw, strategies.Options{
		Registry:       registry,
		RequestTimeout: cfg.API.RequestTimeout,
	})
	if _, err := coord.List(ctx); err != nil {
		return nil, nil, err
	}
	return coord, cfg, nil
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return subcommands.ExitFailure
}

func parseID(f *flag.FlagSet) (int64, error) {
	if f.NArg() != 1 {
		return 0, fmt.Errorf("expected exactly one strategy id")
	}
	id, err := strconv.ParseInt(f.Arg(0), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid strategy id %q", f.Arg(0))
	}
	return id, nil
}

// promptConfirmer 从 in 读一行 y/n，默认否
func promptConfirmer(in io.Reader, out io.Writer) strategies.ConfirmFunc {
	reader := bufio.NewReader(in)
	return func(_ context.Context, prompt string) (bool, error) {
		fmt.Fprintf(out, "%s [y/N]: ", prompt)
		line, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}

type listCmd struct {
	metrics bool
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list strategies" }
func (*listCmd) Usage() string {
	return `list [-metrics]

  Lists all strategies with their active state. With -metrics the performance
  metrics configured under strategies.metrics_fields are printed too.
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.metrics, "metrics", false, "print performance metrics")
}

func (c *listCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	coord, cfg, err := session(ctx)
	if err != nil {
		return fail(err)
	}
	printStrategies(os.Stdout, coord.Strategies(), c.metrics, strategies.MetricFieldsFromConfig(cfg.Strategies.MetricsFields))
	return subcommands.ExitSuccess
}

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func printStrategies(out io.Writer, list []domain.Strategy, withMetrics bool, fields []strategies.MetricField) {
	if len(fields) == 0 {
		fields = strategies.DefaultMetricFields
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderRow(false).
		StyleFunc(func(_, _ int) lipgloss.Style { return cellStyle }).
		Headers("ID", "NAME", "STATUS", "DESCRIPTION")
	for _, s := range list {
		status := "inactive"
		if s.IsActive {
			status = "active"
		}
		t.Row(strconv.FormatInt(s.ID, 10), s.Name, status, s.Description)
		if !withMetrics {
			continue
		}
		values, err := strategies.Metrics(s, fields)
		if err != nil {
			t.Row("", "  "+err.Error(), "", "")
			continue
		}
		for _, v := range values {
			t.Row("", "  "+v.Label, v.Value, "")
		}
	}
	fmt.Fprintln(out, t.Render())
}

type createCmd struct {
	name        string
	description string
	parameters  string
}

func (*createCmd) Name() string     { return "create" }
func (*createCmd) Synopsis() string { return "create a strategy" }
func (*createCmd) Usage() string {
	return `create -name <name> [-description <text>] [-parameters <json>]
`
}

func (c *createCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "strategy name (required)")
	f.StringVar(&c.description, "description", "", "description")
	f.StringVar(&c.parameters, "parameters", domain.DefaultParameters, "parameters as JSON text")
}

func (c *createCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if strings.TrimSpace(c.name) == "" {
		fmt.Fprintln(os.Stderr, "Error: -name is required")
		return subcommands.ExitUsageError
	}
	coord, _, err := session(ctx)
	if err != nil {
		return fail(err)
	}
	res, err := coord.Create(ctx, domain.StrategyInput{Name: c.name, Description: c.description, Parameters: c.parameters})
	if err != nil {
		return fail(err)
	}
	fmt.Printf("created strategy %d\n", res.ID)
	return subcommands.ExitSuccess
}

type updateCmd struct {
	name        string
	description string
	parameters  string
}

func (*updateCmd) Name() string     { return "update" }
func (*updateCmd) Synopsis() string { return "edit a strategy" }
func (*updateCmd) Usage() string {
	return `update [-name <name>] [-description <text>] [-parameters <json>] <id>

  Only the flags given are changed; the rest keep their current values.
`
}

func (c *updateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "new name")
	f.StringVar(&c.description, "description", "", "new description")
	f.StringVar(&c.parameters, "parameters", "", "new parameters as JSON text")
}

func (c *updateCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id, err := parseID(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	coord, _, err := session(ctx)
	if err != nil {
		return fail(err)
	}
	current, ok := coord.Find(id)
	if !ok {
		return fail(fmt.Errorf("strategy %d not found", id))
	}

	in := domain.StrategyInput{Name: current.Name, Description: current.Description, Parameters: current.Parameters}
	f.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "name":
			in.Name = c.name
		case "description":
			in.Description = c.description
		case "parameters":
			in.Parameters = c.parameters
		}
	})
	if _, err := coord.Update(ctx, id, in); err != nil {
		return fail(err)
	}
	fmt.Printf("updated strategy %d\n", id)
	return subcommands.ExitSuccess
}

type toggleCmd struct{}

func (*toggleCmd) Name() string     { return "toggle" }
func (*toggleCmd) Synopsis() string { return "activate or deactivate a strategy" }
func (*toggleCmd) Usage() string {
	return `toggle <id>
`
}

func (*toggleCmd) SetFlags(*flag.FlagSet) {}

func (*toggleCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id, err := parseID(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	coord, _, err := session(ctx)
	if err != nil {
		return fail(err)
	}
	current, ok := coord.Find(id)
	if !ok {
		return fail(fmt.Errorf("strategy %d not found", id))
	}
	if _, err := coord.ToggleActive(ctx, id, current.IsActive); err != nil {
		return fail(err)
	}
	state := "active"
	if s, ok := coord.Find(id); ok && !s.IsActive {
		state = "inactive"
	}
	fmt.Printf("strategy %d is now %s\n", id, state)
	return subcommands.ExitSuccess
}

type deleteCmd struct {
	yes bool
}

func (*deleteCmd) Name() string     { return "delete" }
func (*deleteCmd) Synopsis() string { return "delete a strategy" }
func (*deleteCmd) Usage() string {
	return `delete [-yes] <id>

  Asks for confirmation on stdin unless -yes is given.
`
}

func (c *deleteCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "skip the confirmation prompt")
}

func (c *deleteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	id, err := parseID(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	coord, _, err := session(ctx)
	if err != nil {
		return fail(err)
	}
	var confirm strategies.Confirmer = promptConfirmer(os.Stdin, os.Stdout)
	if c.yes {
		confirm = strategies.Always(true)
	}
	deleted, err := coord.Delete(ctx, id, confirm)
	if err != nil {
		return fail(err)
	}
	if !deleted {
		fmt.Println("delete cancelled")
		return subcommands.ExitSuccess
	}
	fmt.Printf("deleted strategy %d\n", id)
	return subcommands.ExitSuccess
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/compresr/agent-pipeline/budget"
	"github.com/compresr/agent-pipeline/config"
	"github.com/compresr/agent-pipeline/store"
)

func runStatusCommand(args []string) {
	flags, _, ok := parseCommon(args)
	if !ok {
		fmt.Print(`Usage: agentpipe status [-c config] [-t tenant] [-a agent]

Reads the budget counters and prints current spend against every configured
limit, plus a linear month-end forecast when a monthly limit is set.
`)
		return
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kv, cleanup := openStore(ctx, cfg)
	defer cleanup()

	query := budget.NewQuery(kv, budget.WithQueryNamespace(cfg.Namespace))
	tracker := budget.NewTracker(query, cfg.Budget.Defaults,
		budget.WithTenantOverrides(cfg.Budget.Tenants))

	resolved, err := tracker.ResolveConfig(flags.tenantID, nil)
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}

	report, err := query.Status(ctx, flags.agentType, flags.tenantID, resolved,
		budget.NewLinearForecaster(query))
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}

	tenant := flags.tenantID
	if tenant == "" {
		tenant = "(untenanted)"
	}
	printInfo("budget status for tenant " + tenant)

	if len(report.Dimensions) == 0 {
		fmt.Println("  no limits configured")
	}
	for _, d := range report.Dimensions {
		target := string(d.Scope)
		if d.AgentType != "" {
			target += ":" + d.AgentType
		}
		fmt.Printf("  %-8s %-22s %10.4f / %-10.4f (%5.1f%%)\n",
			d.Period, target+" "+string(d.Dimension), d.Current, d.Limit, d.PercentUsed)
	}

	if f := report.Forecast; f != nil {
		fmt.Printf("  forecast: %.4f by day %d (spend to date %.4f, day %d)\n",
			f.ProjectedSpend, f.DaysInMonth, f.SpendToDate, f.DayOfMonth)
		if f.OverBudget {
			printWarn("projected spend exceeds the monthly limit")
		}
	}
}

// openStore connects to Redis when configured, otherwise falls back to an
// empty in-memory store (which reads all counters as zero).
func openStore(ctx context.Context, cfg *config.Config) (store.KV, func()) {
	if cfg.Store.RedisAddr == "" {
		printWarn("no redis_addr configured: reading from an empty in-memory store")
		return store.NewMemory(), func() {}
	}

	redis, err := store.NewRedis(ctx, cfg.Store.RedisAddr)
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	return redis, func() { _ = redis.Close() }
}

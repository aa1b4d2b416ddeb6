package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/compresr/agent-pipeline/config"
	"github.com/compresr/agent-pipeline/record"
)

func runStatsCommand(args []string) {
	flags, rest, ok := parseCommon(args)
	if !ok {
		fmt.Print(`Usage: agentpipe stats -a <agent> [-c config] [-t tenant] [--since <duration>]

Aggregates execution history for one agent type: call counts, success rate,
cache hits, tokens, and total cost.
`)
		return
	}

	var since time.Duration
	for i := 0; i < len(rest); i++ {
		if rest[i] == "--since" && i+1 < len(rest) {
			d, err := time.ParseDuration(rest[i+1])
			if err != nil {
				printError("--since: " + err.Error())
				os.Exit(1)
			}
			since = d
			i++
		}
	}

	if flags.agentType == "" {
		printError("--agent is required")
		os.Exit(1)
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	if cfg.Recording.SQLitePath == "" {
		printError("recording.sqlite_path is not configured: history lives in process memory only")
		os.Exit(1)
	}

	db, err := record.NewSQLiteStore(cfg.Recording.SQLitePath)
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	filters := record.Filters{TenantID: flags.tenantID}
	if since > 0 {
		filters.Since = time.Now().Add(-since)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := db.StatsFor(ctx, flags.agentType, filters)
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}

	printInfo("execution stats for agent " + flags.agentType)
	fmt.Printf("  executions:   %d (%d ok, %d failed, %d cache hits)\n",
		stats.Count, stats.SuccessCount, stats.ErrorCount, stats.CacheHits)
	fmt.Printf("  tokens:       %d in / %d out\n", stats.InputTokens, stats.OutputTokens)
	fmt.Printf("  total cost:   $%.4f\n", stats.TotalCostUSD)
	fmt.Printf("  avg duration: %.0f ms\n", stats.AvgDurationMs)
}

package main

import (
	"fmt"
	"os"

	"github.com/compresr/agent-pipeline/config"
)

func runValidateCommand(args []string) {
	flags, _, ok := parseCommon(args)
	if !ok {
		fmt.Print(`Usage: agentpipe validate [-c config]

Loads the config file, applies defaults, and reports the registered agents
and budget posture. Exits non-zero on any validation error.
`)
		return
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}

	printInfo("config ok: " + flags.configPath)
	fmt.Printf("  namespace: %s\n", cfg.Namespace)

	if cfg.Store.RedisAddr != "" {
		fmt.Printf("  store:     redis %s\n", cfg.Store.RedisAddr)
	} else {
		fmt.Println("  store:     in-memory (single process only)")
		printWarn("counters will not be shared across processes")
	}

	posture := "disabled"
	if cfg.Budget.Defaults.Enabled {
		posture = string(cfg.Budget.Defaults.Enforcement)
		if posture == "" {
			posture = "none"
		}
	}
	fmt.Printf("  budget:    %s (%d tenant overrides)\n", posture, len(cfg.Budget.Tenants))

	fmt.Printf("  agents:    %d registered\n", len(cfg.Agents))
	for _, a := range cfg.Agents {
		agent, ok := cfg.AgentByName(a.Name)
		if !ok {
			continue
		}
		line := fmt.Sprintf("    - %-16s %-14s model=%s", agent.Name, "("+string(agent.Type)+")", agent.Model)
		if len(agent.FallbackModels) > 0 {
			line += fmt.Sprintf(" fallbacks=%v", agent.FallbackModels)
		}
		if agent.CacheEnabled {
			line += fmt.Sprintf(" cache=%s", agent.CacheTTL)
		}
		fmt.Println(line)
	}
}

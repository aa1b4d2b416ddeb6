// Command agentpipe is the operational CLI for the agent pipeline: it
// validates configuration, reports per-tenant budget status, and summarizes
// execution history. The pipeline itself is a library; this binary only
// reads what a running deployment wrote to the shared stores.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		runValidateCommand(os.Args[2:])
	case "status":
		runStatusCommand(os.Args[2:])
	case "stats":
		runStatsCommand(os.Args[2:])
	case "-h", "--help", "help":
		printHelp()
	default:
		printError("unknown command: " + os.Args[1])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Print(`Usage: agentpipe <command> [options]

Commands:
  validate   Check a pipeline config file and print the registered agents
  status     Show budget status for a tenant (spend, limits, forecast)
  stats      Summarize execution history for an agent type

Common options:
  -c, --config <path>   Config file (default: pipeline.yaml)
  -t, --tenant <id>     Tenant id (default: untenanted)

Run 'agentpipe <command> --help' for command-specific options.
`)
}

func printInfo(msg string) {
	fmt.Printf("\033[0;34m[INFO]\033[0m %s\n", msg)
}

func printWarn(msg string) {
	fmt.Printf("\033[1;33m[WARN]\033[0m %s\n", msg)
}

func printError(msg string) {
	fmt.Printf("\033[0;31m[ERROR]\033[0m %s\n", msg)
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	configPath string
	tenantID   string
	agentType  string
}

// parseCommon consumes the shared flags and returns the leftovers. A false
// second return means help was requested.
func parseCommon(args []string) (commonFlags, []string, bool) {
	flags := commonFlags{configPath: "pipeline.yaml"}
	var rest []string

	i := 0
	for i < len(args) {
		switch args[i] {
		case "-h", "--help":
			return flags, nil, false
		case "-c", "--config":
			if i+1 >= len(args) {
				printError("--config requires a value")
				os.Exit(1)
			}
			flags.configPath = args[i+1]
			i += 2
		case "-t", "--tenant":
			if i+1 >= len(args) {
				printError("--tenant requires a value")
				os.Exit(1)
			}
			flags.tenantID = args[i+1]
			i += 2
		case "-a", "--agent":
			if i+1 >= len(args) {
				printError("--agent requires a value")
				os.Exit(1)
			}
			flags.agentType = args[i+1]
			i += 2
		default:
			rest = append(rest, args[i])
			i++
		}
	}
	return flags, rest, true
}

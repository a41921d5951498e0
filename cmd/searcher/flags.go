package main

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/backrunner/pkg/optimizer"
	"github.com/ava-labs/backrunner/pkg/scheduler"
)

func triggerConfigFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "trigger-config",
		Aliases:  []string{"t"},
		Usage:    "Path to the YAML file describing trigger configs",
		EnvVars:  []string{"TRIGGER_CONFIG"},
		Required: true,
	}
}

func checkConfigFlags() []cli.Flag {
	return []cli.Flag{triggerConfigFlag()}
}

// runFlags returns all CLI flags for the searcher run command.
// Sink, gas history and ClickHouse settings are read from their own
// environment variables by the respective packages.
func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose logging",
			EnvVars: []string{"VERBOSE"},
			Value:   false,
		},
		&cli.Uint64Flag{
			Name:    "evm-chain-id",
			Aliases: []string{"C"},
			Usage:   "The EVM chain ID, used as a metrics label",
			EnvVars: []string{"EVM_CHAIN_ID"},
			Value:   8453,
		},
		&cli.StringFlag{
			Name:     "rpc-url",
			Aliases:  []string{"r"},
			Usage:    "RPC URL of a node exposing debug_traceCall",
			EnvVars:  []string{"RPC_URL"},
			Required: true,
		},
		&cli.StringFlag{
			Name:    "block-tag",
			Usage:   "Base block simulations run on",
			EnvVars: []string{"BLOCK_TAG"},
			Value:   "latest",
		},
		&cli.StringFlag{
			Name:     "flashblocks-url",
			Aliases:  []string{"f"},
			Usage:    "Websocket URL of the flashblocks stream",
			EnvVars:  []string{"FLASHBLOCKS_WS_URL"},
			Required: true,
		},
		triggerConfigFlag(),
		&cli.IntFlag{
			Name:    "events-ch-capacity",
			Usage:   "Buffer between the flashblocks stream and the accumulator",
			EnvVars: []string{"EVENTS_CH_CAPACITY"},
			Value:   256,
		},
		&cli.IntFlag{
			Name:    "max-concurrency",
			Aliases: []string{"c"},
			Usage:   "Maximum number of concurrently running searches (0 for unbounded)",
			EnvVars: []string{"MAX_CONCURRENCY"},
			Value:   64,
		},
		&cli.DurationFlag{
			Name:    "deadline",
			Usage:   "Default time budget of one search",
			EnvVars: []string{"SEARCH_DEADLINE"},
			Value:   scheduler.DefaultDeadline,
		},
		&cli.IntFlag{
			Name:    "max-iterations",
			Usage:   "Default probe budget of one search",
			EnvVars: []string{"MAX_ITERATIONS"},
			Value:   optimizer.DefaultMaxIterations,
		},
		&cli.Uint64Flag{
			Name:    "gas-limit",
			Usage:   "Cumulative probe gas budget of one search before gas history scaling (0 for unlimited)",
			EnvVars: []string{"SEARCH_GAS_LIMIT"},
			Value:   scheduler.DefaultGasLimit,
		},
		&cli.StringFlag{
			Name:    "strategy",
			Usage:   "Default sampling strategy (multiples, logfrac or hybrid)",
			EnvVars: []string{"SEARCH_STRATEGY"},
			Value:   string(optimizer.DefaultStrategy),
		},
		&cli.Float64Flag{
			Name:    "refine-fraction",
			Usage:   "Initial refinement radius as a fraction of the search range",
			EnvVars: []string{"REFINE_FRACTION"},
			Value:   optimizer.DefaultRefineFraction,
		},
		&cli.Uint64Flag{
			Name:    "probe-gas",
			Usage:   "Gas limit of a single probe call",
			EnvVars: []string{"PROBE_GAS"},
			Value:   optimizer.DefaultProbeGas,
		},
		&cli.BoolFlag{
			Name:    "skip-gap-recovered",
			Usage:   "Do not search on snapshots built across a sequence gap",
			EnvVars: []string{"SKIP_GAP_RECOVERED"},
		},
		&cli.BoolFlag{
			Name:    "record-results",
			Usage:   "Write every search result to ClickHouse",
			EnvVars: []string{"RECORD_RESULTS"},
		},
		&cli.DurationFlag{
			Name:    "stall-watchdog-interval",
			Usage:   "How often the window stall watchdog checks progress",
			EnvVars: []string{"STALL_WATCHDOG_INTERVAL"},
			Value:   5 * time.Second,
		},
		&cli.DurationFlag{
			Name:    "max-stall",
			Usage:   "How long the window may go without progress before it is reported stalled",
			EnvVars: []string{"MAX_STALL"},
			Value:   30 * time.Second,
		},
		&cli.StringFlag{
			Name:    "metrics-host",
			Usage:   "Host for Prometheus metrics server (empty for all interfaces)",
			EnvVars: []string{"METRICS_HOST"},
			Value:   "",
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Aliases: []string{"m"},
			Usage:   "Port for Prometheus metrics server",
			EnvVars: []string{"METRICS_PORT"},
			Value:   9090,
		},
		&cli.StringFlag{
			Name:    "environment",
			Usage:   "Deployment environment for metrics labels (e.g., 'production', 'staging')",
			EnvVars: []string{"ENVIRONMENT"},
			Value:   "",
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "Cloud region for metrics labels (e.g., 'us-east-1')",
			EnvVars: []string{"REGION"},
			Value:   "",
		},
		&cli.StringFlag{
			Name:    "cloud-provider",
			Usage:   "Cloud provider for metrics labels (e.g., 'aws', 'gcp')",
			EnvVars: []string{"CLOUD_PROVIDER"},
			Value:   "",
		},
	}
}

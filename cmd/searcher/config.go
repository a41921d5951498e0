package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ava-labs/backrunner/pkg/optimizer"
	"github.com/ava-labs/backrunner/pkg/scheduler"
)

// Config holds all flag driven configuration for the searcher.
type Config struct {
	// Application settings
	Verbose bool

	// Chain settings
	EVMChainID     uint64
	RPCURL         string
	BlockTag       string
	FlashblocksURL string

	// Search settings
	TriggerConfigPath string
	EventsCap         int
	Scheduler         scheduler.Config
	RecordResults     bool

	// Watchdog settings
	StallWatchdogInterval time.Duration
	MaxStall              time.Duration

	// Metrics settings
	MetricsHost   string
	MetricsPort   int
	Environment   string
	Region        string
	CloudProvider string
}

// MetricsAddr returns the formatted metrics address
func (c *Config) MetricsAddr() string {
	return fmt.Sprintf("%s:%d", c.MetricsHost, c.MetricsPort)
}

// buildConfig builds a Config from CLI context flags
func buildConfig(c *cli.Context) (*Config, error) {
	strategy, err := optimizer.ParseStrategy(c.String("strategy"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Verbose:           c.Bool("verbose"),
		EVMChainID:        c.Uint64("evm-chain-id"),
		RPCURL:            c.String("rpc-url"),
		BlockTag:          c.String("block-tag"),
		FlashblocksURL:    c.String("flashblocks-url"),
		TriggerConfigPath: c.String("trigger-config"),
		EventsCap:         c.Int("events-ch-capacity"),
		Scheduler: scheduler.Config{
			Deadline:         c.Duration("deadline"),
			MaxConcurrency:   c.Int("max-concurrency"),
			MaxIterations:    c.Int("max-iterations"),
			GasLimit:         c.Uint64("gas-limit"),
			Strategy:         strategy,
			RefineFraction:   c.Float64("refine-fraction"),
			ProbeGas:         c.Uint64("probe-gas"),
			SkipGapRecovered: c.Bool("skip-gap-recovered"),
		},
		RecordResults:         c.Bool("record-results"),
		StallWatchdogInterval: c.Duration("stall-watchdog-interval"),
		MaxStall:              c.Duration("max-stall"),
		MetricsHost:           c.String("metrics-host"),
		MetricsPort:           c.Int("metrics-port"),
		Environment:           c.String("environment"),
		Region:                c.String("region"),
		CloudProvider:         c.String("cloud-provider"),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.EventsCap < 0 {
		errs = append(errs, fmt.Errorf("events-ch-capacity must not be negative, got %d", c.EventsCap))
	}
	if c.Scheduler.MaxConcurrency < 0 {
		errs = append(errs, fmt.Errorf("max-concurrency must not be negative, got %d", c.Scheduler.MaxConcurrency))
	}
	if c.Scheduler.Deadline <= 0 {
		errs = append(errs, fmt.Errorf("deadline must be positive, got %s", c.Scheduler.Deadline))
	}
	if c.Scheduler.MaxIterations <= 0 {
		errs = append(errs, fmt.Errorf("max-iterations must be positive, got %d", c.Scheduler.MaxIterations))
	}
	if f := c.Scheduler.RefineFraction; f <= 0 || f > 1 {
		errs = append(errs, fmt.Errorf("refine-fraction must be in (0, 1], got %v", f))
	}
	if c.StallWatchdogInterval <= 0 {
		errs = append(errs, fmt.Errorf("stall-watchdog-interval must be positive, got %s", c.StallWatchdogInterval))
	}
	if c.MaxStall <= 0 {
		errs = append(errs, fmt.Errorf("max-stall must be positive, got %s", c.MaxStall))
	}
	return errors.Join(errs...)
}

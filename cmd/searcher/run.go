package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/backrunner/internal/engine/geth"
	"github.com/ava-labs/backrunner/pkg/blockwindow"
	"github.com/ava-labs/backrunner/pkg/clickhouse"
	"github.com/ava-labs/backrunner/pkg/data/clickhouse/results"
	"github.com/ava-labs/backrunner/pkg/gashistory"
	"github.com/ava-labs/backrunner/pkg/kafka"
	"github.com/ava-labs/backrunner/pkg/metrics"
	"github.com/ava-labs/backrunner/pkg/scheduler"
	"github.com/ava-labs/backrunner/pkg/source"
	"github.com/ava-labs/backrunner/pkg/submission"
	"github.com/ava-labs/backrunner/pkg/trigger"
	"github.com/ava-labs/backrunner/pkg/types"
	"github.com/ava-labs/backrunner/pkg/utils"
)

const shutdownTimeout = 5 * time.Second

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"evmChainID", cfg.EVMChainID,
		"rpcURL", cfg.RPCURL,
		"blockTag", cfg.BlockTag,
		"flashblocksURL", cfg.FlashblocksURL,
		"triggerConfig", cfg.TriggerConfigPath,
		"maxConcurrency", cfg.Scheduler.MaxConcurrency,
		"deadline", cfg.Scheduler.Deadline,
		"maxIterations", cfg.Scheduler.MaxIterations,
		"gasLimit", cfg.Scheduler.GasLimit,
		"strategy", cfg.Scheduler.Strategy,
		"skipGapRecovered", cfg.Scheduler.SkipGapRecovered,
		"recordResults", cfg.RecordResults,
		"metricsAddr", cfg.MetricsAddr(),
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)

	triggers, err := trigger.LoadConfigs(cfg.TriggerConfigPath)
	if err != nil {
		return err
	}
	sugar.Infow("loaded trigger configs", "count", len(triggers))

	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, metrics.Labels{
		EVMChainID:    cfg.EVMChainID,
		Environment:   cfg.Environment,
		Region:        cfg.Region,
		CloudProvider: cfg.CloudProvider,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec, err := geth.New(ctx, cfg.RPCURL, geth.WithMetrics(m), geth.WithBlockTag(cfg.BlockTag))
	if err != nil {
		return fmt.Errorf("failed to create execution client: %w", err)
	}
	defer exec.Close()

	gasHistory, gasCfg, closeGasHistory, err := setupGasHistory(ctx, sugar, m)
	if err != nil {
		return err
	}
	defer closeGasHistory()

	sink, producer, closeSinks, err := setupSinks(ctx, sugar, m)
	if err != nil {
		return err
	}
	defer closeSinks()

	opts := []scheduler.Option{
		scheduler.WithMetrics(m),
		scheduler.WithGasHistory(gasHistory),
		scheduler.WithSink(sink),
	}
	if cfg.RecordResults {
		recorder, closeRecorder, err := setupRecorder(ctx, sugar)
		if err != nil {
			return err
		}
		defer closeRecorder()
		opts = append(opts, scheduler.WithRecorder(recorder))
	}

	schedCfg := cfg.Scheduler
	schedCfg.TargetGas = gasCfg.TargetGas
	sched, err := scheduler.New(sugar, schedCfg, exec, opts...)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	acc, err := blockwindow.NewAccumulator(sugar, exec, sched.Handler(triggers), blockwindow.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("failed to create accumulator: %w", err)
	}

	srcCfg, err := source.LoadConfig()
	if err != nil {
		return err
	}
	srcCfg.URL = cfg.FlashblocksURL
	src, err := source.NewClient(sugar, srcCfg, source.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("failed to create flashblocks client: %w", err)
	}

	window := acc.Window()
	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, metrics.WithReadiness(func() error {
		return window.Ready(cfg.MaxStall)
	}))
	metricsErrCh := metricsServer.Start()
	sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())

	events := make(chan types.UpdateEvent, cfg.EventsCap)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return src.Subscribe(gctx, events)
	})
	g.Go(func() error {
		return acc.Run(gctx, events)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-metricsErrCh:
			if err != nil {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		}
	})
	if producer != nil {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case err, ok := <-producer.Errors():
				if !ok {
					return nil
				}
				return err
			}
		})
	}
	go blockwindow.StartStallWatchdog(gctx, sugar, window, cfg.StallWatchdogInterval, cfg.MaxStall)

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		sugar.Infow("exiting due to context cancellation")
		err = nil
	} else if err != nil {
		sugar.Errorw("run failed", "error", err)
	}

	sugar.Info("waiting for in-flight searches")
	sched.Wait()

	sugar.Info("shutting down metrics server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("metrics server shutdown error", "error", err)
	}

	sugar.Info("shutdown complete")
	return err
}

// setupGasHistory builds the gas history cache on the configured backend.
func setupGasHistory(
	ctx context.Context,
	sugar *zap.SugaredLogger,
	m *metrics.Metrics,
) (*gashistory.Cache, gashistory.Config, func(), error) {
	cfg, err := gashistory.LoadConfig()
	if err != nil {
		return nil, cfg, nil, err
	}

	var (
		store   gashistory.Store
		cleanup func()
	)
	switch cfg.Backend {
	case "memory":
		mem := gashistory.NewMemoryStore()
		store, cleanup = mem, mem.Close
	case "redis":
		client := redis.NewClient(cfg.RedisOptions())
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, cfg, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		rs, err := gashistory.NewRedisStore(client)
		if err != nil {
			_ = client.Close()
			return nil, cfg, nil, err
		}
		store, cleanup = rs, func() { _ = client.Close() }
	default:
		return nil, cfg, nil, fmt.Errorf("invalid gas history backend %q: must be memory or redis", cfg.Backend)
	}

	cache, err := gashistory.NewCache(sugar, store,
		gashistory.WithMetrics(m),
		gashistory.WithNamespace(cfg.Namespace),
		gashistory.WithTTL(cfg.TTL),
		gashistory.WithAlpha(cfg.Alpha),
	)
	if err != nil {
		cleanup()
		return nil, cfg, nil, fmt.Errorf("failed to create gas history cache: %w", err)
	}
	sugar.Infow("gas history ready",
		"backend", cfg.Backend,
		"namespace", cfg.Namespace,
		"ttl", cfg.TTL,
		"alpha", cfg.Alpha,
		"targetGas", cfg.TargetGas,
	)
	return cache, cfg, cleanup, nil
}

// setupSinks builds the enabled result sinks. producer is nil unless Kafka is enabled.
func setupSinks(
	ctx context.Context,
	sugar *zap.SugaredLogger,
	m *metrics.Metrics,
) (submission.Sink, *kafka.Producer, func(), error) {
	cfg, err := submission.LoadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	var (
		sinks    submission.Fanout
		producer *kafka.Producer
		closers  []func()
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Enabled(submission.SinkKafka) {
		kcfg, err := kafka.LoadProducerConfig()
		if err != nil {
			return nil, nil, nil, err
		}
		producer, err = kafka.NewProducer(ctx, kcfg.ConfigMap(), sugar)
		if err != nil {
			return nil, nil, nil, err
		}
		closers = append(closers, func() { producer.Close(*kcfg.FlushTimeout) })

		if kcfg.CreateTopic {
			if err := ensureTopic(ctx, sugar, producer, kcfg.TopicConfig()); err != nil {
				cleanup()
				return nil, nil, nil, err
			}
		}

		ks, err := submission.NewKafkaSink(sugar, producer, kcfg.Topic, submission.WithKafkaMetrics(m))
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		sinks = append(sinks, ks)
		sugar.Infow("kafka sink enabled", "topic", kcfg.Topic, "brokers", kcfg.BootstrapServers)
	}

	if cfg.Enabled(submission.SinkNATS) {
		conn, err := submission.ConnectNATS(cfg.NATSURL, sugar)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		closers = append(closers, func() { _ = conn.Drain() })

		var publisher submission.Publisher = conn
		if cfg.NATSJetStream {
			js, err := conn.JetStream()
			if err != nil {
				cleanup()
				return nil, nil, nil, fmt.Errorf("failed to create jetstream context: %w", err)
			}
			publisher = submission.JetStreamPublisher{JS: js}
		}

		ns, err := submission.NewNATSSink(sugar, publisher, cfg.NATSSubjectPrefix, submission.WithNATSMetrics(m))
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		sinks = append(sinks, ns)
		sugar.Infow("nats sink enabled",
			"url", cfg.NATSURL,
			"subjectPrefix", cfg.NATSSubjectPrefix,
			"jetstream", cfg.NATSJetStream,
		)
	}

	if len(sinks) == 0 {
		sugar.Warn("no result sinks enabled, profitable results will only be logged")
	}
	return sinks, producer, cleanup, nil
}

func ensureTopic(ctx context.Context, sugar *zap.SugaredLogger, producer *kafka.Producer, topic kafka.TopicConfig) error {
	admin, err := producer.Admin()
	if err != nil {
		return err
	}
	defer admin.Close()
	if err := kafka.EnsureTopic(ctx, admin, topic, sugar); err != nil {
		return fmt.Errorf("failed to ensure kafka topic exists: %w", err)
	}
	return nil
}

// setupRecorder connects to ClickHouse and prepares the results table.
func setupRecorder(ctx context.Context, sugar *zap.SugaredLogger) (*results.Repository, func(), error) {
	cfg, err := clickhouse.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	client, err := clickhouse.New(ctx, cfg, sugar)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create ClickHouse client: %w", err)
	}
	cleanup := func() { _ = client.Close() }

	repo, err := results.NewRepository(client, cfg.ResultsTable)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if err := repo.CreateTable(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	sugar.Infow("recording search results", "database", cfg.Database, "table", cfg.ResultsTable)
	return repo, cleanup, nil
}

// checkConfig validates the trigger config file without connecting anywhere.
func checkConfig(c *cli.Context) error {
	triggers, err := trigger.LoadConfigs(c.String("trigger-config"))
	if err != nil {
		return err
	}
	for _, t := range triggers {
		fmt.Fprintf(c.App.Writer, "%s\ttarget=%s\taddresses=%d\tselectors=%d\tstorageKeys=%d\tstrategy=%s\n",
			t.ID,
			t.TargetContract.Hex(),
			len(t.WatchedAddresses),
			len(t.WatchedSelectors),
			len(t.WatchedStorageKeys),
			t.Strategy,
		)
	}
	fmt.Fprintf(c.App.Writer, "%d trigger configs ok\n", len(triggers))
	return nil
}

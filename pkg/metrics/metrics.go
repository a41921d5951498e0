package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "searcher"

	// Status label values for success/error metrics
	StatusSuccess = "success"
	StatusError   = "error"

	Window     = "window"
	Search     = "search"
	GasHistory = "gas_history"
	Submission = "submission"
	Source     = "source"
)

// Update outcome label values.
const (
	OutcomeApplied     = "applied"
	OutcomeDuplicate   = "duplicate"
	OutcomeGap         = "gap"
	OutcomeNewBlock    = "new_block"
	OutcomeNewBlockGap = "new_block_gap"
	OutcomeStale       = "stale"
)

// Search task outcome label values.
const (
	TaskCompleted = "completed"
	TaskTimeout   = "timeout"
	TaskPanic     = "panic"
)

// Gas history lookup label values.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupError = "error"
)

// Transaction status label values.
const (
	TxOK          = "ok"
	TxFailed      = "failed"
	TxUndecodable = "undecodable"
)

// Labels holds constant labels applied to all metrics.
// These are useful for distinguishing metrics from multiple searcher instances.
type Labels struct {
	EVMChainID    uint64 // EVM chain ID (e.g., 8453 for Base mainnet)
	Environment   string // Deployment environment (e.g., "production", "staging", "development")
	Region        string // Cloud region (e.g., "us-east-1", "eu-west-1")
	CloudProvider string // Cloud provider (e.g., "aws", "oci", "gcp")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.EVMChainID != 0 {
		labels["evm_chain_id"] = strconv.FormatUint(l.EVMChainID, 10)
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	if l.CloudProvider != "" {
		labels["cloud_provider"] = l.CloudProvider
	}
	return labels
}

type Metrics struct {
	// Block window state
	blockNumber    prometheus.Gauge
	windowIndex    prometheus.Gauge
	windowAccounts prometheus.Gauge
	windowTxs      prometheus.Gauge

	// Accumulator counters
	updates       *prometheus.CounterVec // by outcome
	txs           *prometheus.CounterVec // by status
	applyDuration prometheus.Histogram
	errors        *prometheus.CounterVec

	// RPC metrics
	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	rpcInFlight prometheus.Gauge

	// Trigger metrics
	triggers *prometheus.CounterVec // by config

	// Search task metrics
	tasks          *prometheus.CounterVec // by outcome
	tasksInFlight  prometheus.Gauge
	searchDuration prometheus.Histogram
	probes         prometheus.Counter
	probeGas       prometheus.Counter
	profitable     prometheus.Counter

	// Gas history metrics
	gasLookups *prometheus.CounterVec // by result
	gasUpdates *prometheus.CounterVec // by status

	// Submission metrics
	submissions        *prometheus.CounterVec // by sink, status
	submissionDuration *prometheus.HistogramVec

	// Update source metrics
	sourceMessages   *prometheus.CounterVec // by status
	sourceReconnects prometheus.Counter
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
// For metrics with constant labels (e.g., evm_chain_id), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}

	return newMetrics(reg)
}

// Buckets cover typical simulation latencies: 1ms, 5ms, 10ms, 25ms, 50ms,
// 100ms, 250ms, 500ms, 1s, 2.5s, 5s, 10s
var latencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		blockNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "block_number",
			Help:      "Block number of the live window",
		}),
		windowIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "index",
			Help:      "Last applied sequence index of the live window",
		}),
		windowAccounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "accounts",
			Help:      "Number of accounts touched in the live window",
		}),
		windowTxs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "transactions",
			Help:      "Number of transactions in the live window",
		}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "updates_total",
			Help:      "Total update events by outcome",
		}, []string{"outcome"}),
		txs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "transactions_total",
			Help:      "Total transactions executed into the window by status",
		}, []string{"status"}),
		applyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Window,
			Name:      "apply_duration_seconds",
			Help:      "Time to apply a single update event",
			Buckets:   latencyBuckets,
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total errors by type",
		}, []string{"type"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Total RPC calls by method and status",
		}, []string{"method", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "RPC call duration in seconds",
			Buckets:   latencyBuckets,
		}, []string{"method"}),
		rpcInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "rpc",
			Name:      "in_flight",
			Help:      "Number of RPC calls currently in progress",
		}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "triggers_total",
			Help:      "Total trigger matches by config",
		}, []string{"config"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Search,
			Name:      "tasks_total",
			Help:      "Total search tasks by outcome",
		}, []string{"outcome"}),
		tasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Search,
			Name:      "tasks_in_flight",
			Help:      "Number of search tasks currently running",
		}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Search,
			Name:      "duration_seconds",
			Help:      "Wall time of a single search task",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		probes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Search,
			Name:      "probes_total",
			Help:      "Total probe simulations",
		}),
		probeGas: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Search,
			Name:      "probe_gas_total",
			Help:      "Total simulated gas spent by probes",
		}),
		profitable: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Search,
			Name:      "profitable_total",
			Help:      "Total search results with positive profit",
		}),
		gasLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: GasHistory,
			Name:      "lookups_total",
			Help:      "Total gas history lookups by result (hit/miss/error)",
		}, []string{"result"}),
		gasUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: GasHistory,
			Name:      "updates_total",
			Help:      "Total gas history updates by status",
		}, []string{"status"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Submission,
			Name:      "results_total",
			Help:      "Total results handed to a sink by sink and status",
		}, []string{"sink", "status"}),
		submissionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Submission,
			Name:      "duration_seconds",
			Help:      "Time to hand a result to a sink",
			Buckets:   latencyBuckets,
		}, []string{"sink"}),
		sourceMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Source,
			Name:      "messages_total",
			Help:      "Total messages received from the update source by status",
		}, []string{"status"}),
		sourceReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Source,
			Name:      "reconnects_total",
			Help:      "Total reconnect attempts to the update source",
		}),
	}

	err := errors.Join(
		reg.Register(m.blockNumber),
		reg.Register(m.windowIndex),
		reg.Register(m.windowAccounts),
		reg.Register(m.windowTxs),
		reg.Register(m.updates),
		reg.Register(m.txs),
		reg.Register(m.applyDuration),
		reg.Register(m.errors),
		reg.Register(m.rpcCalls),
		reg.Register(m.rpcDuration),
		reg.Register(m.rpcInFlight),
		reg.Register(m.triggers),
		reg.Register(m.tasks),
		reg.Register(m.tasksInFlight),
		reg.Register(m.searchDuration),
		reg.Register(m.probes),
		reg.Register(m.probeGas),
		reg.Register(m.profitable),
		reg.Register(m.gasLookups),
		reg.Register(m.gasUpdates),
		reg.Register(m.submissions),
		reg.Register(m.submissionDuration),
		reg.Register(m.sourceMessages),
		reg.Register(m.sourceReconnects),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// Error type constants for non-RPC errors (RPC errors are tracked via rpcCalls{status="error"}).
const (
	ErrTypeStaleBlock  = "stale_block"
	ErrTypeDecode      = "decode"
	ErrTypeRecorder    = "recorder"
	ErrTypeCacheUpdate = "cache_update"
)

// IncError increments the error counter for the given error type.
func (m *Metrics) IncError(errType string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(errType).Inc()
}

// RecordUpdate records the outcome of applying one update event.
func (m *Metrics) RecordUpdate(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(outcome).Inc()
	m.applyDuration.Observe(durationSeconds)
}

// UpdateWindowMetrics updates block window state gauges.
func (m *Metrics) UpdateWindowMetrics(blockNumber, index uint64, accounts, txs int) {
	if m == nil {
		return
	}
	m.blockNumber.Set(float64(blockNumber))
	m.windowIndex.Set(float64(index))
	m.windowAccounts.Set(float64(accounts))
	m.windowTxs.Set(float64(txs))
}

// AddTransactions records transactions executed into the window by status.
func (m *Metrics) AddTransactions(status string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.txs.WithLabelValues(status).Add(float64(count))
}

// IncRPCInFlight increments the in-flight RPC gauge.
func (m *Metrics) IncRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Inc()
}

// DecRPCInFlight decrements the in-flight RPC gauge.
func (m *Metrics) DecRPCInFlight() {
	if m == nil {
		return
	}
	m.rpcInFlight.Dec()
}

// RecordRPCCall records an RPC call outcome.
func (m *Metrics) RecordRPCCall(method string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.rpcCalls.WithLabelValues(method, status).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// IncTrigger records a trigger match for a config.
func (m *Metrics) IncTrigger(configID string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(configID).Inc()
}

// IncTasksInFlight increments the in-flight search task gauge.
func (m *Metrics) IncTasksInFlight() {
	if m == nil {
		return
	}
	m.tasksInFlight.Inc()
}

// DecTasksInFlight decrements the in-flight search task gauge.
func (m *Metrics) DecTasksInFlight() {
	if m == nil {
		return
	}
	m.tasksInFlight.Dec()
}

// RecordSearch records a finished search task.
func (m *Metrics) RecordSearch(outcome string, durationSeconds float64, probes int, gasUsed uint64, profitable bool) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(outcome).Inc()
	m.searchDuration.Observe(durationSeconds)
	m.probes.Add(float64(probes))
	m.probeGas.Add(float64(gasUsed))
	if profitable {
		m.profitable.Inc()
	}
}

// RecordGasLookup records a gas history lookup result (hit/miss/error).
func (m *Metrics) RecordGasLookup(result string) {
	if m == nil {
		return
	}
	m.gasLookups.WithLabelValues(result).Inc()
}

// RecordGasUpdate records a gas history write.
// Pass nil error for successful writes, non-nil for failures.
func (m *Metrics) RecordGasUpdate(err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.gasUpdates.WithLabelValues(status).Inc()
}

// RecordSubmission records a result hand-off to a sink with duration.
func (m *Metrics) RecordSubmission(sink string, err error, durationSeconds float64) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.submissions.WithLabelValues(sink, status).Inc()
	m.submissionDuration.WithLabelValues(sink).Observe(durationSeconds)
}

// RecordSourceMessage records a message received from the update source.
// Pass nil error for decoded messages, non-nil for decode failures.
func (m *Metrics) RecordSourceMessage(err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	m.sourceMessages.WithLabelValues(status).Inc()
}

// IncSourceReconnects increments the update source reconnect counter.
func (m *Metrics) IncSourceReconnects() {
	if m == nil {
		return
	}
	m.sourceReconnects.Inc()
}

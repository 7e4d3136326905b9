package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ShellInvocations counts external command executions by outcome
	// (ok, nonzero_exit, timeout, not_found).
	ShellInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capgate",
			Name:      "shell_invocations_total",
			Help:      "Total number of external command invocations by outcome",
		},
		[]string{"command", "outcome"},
	)

	// WorkflowPhaseTransitions counts phase transitions per workflow.
	WorkflowPhaseTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capgate",
			Name:      "workflow_phase_transitions_total",
			Help:      "Total number of workflow phase transitions",
		},
		[]string{"workflow", "phase"},
	)

	// WorkflowPhaseDuration observes how long each phase takes.
	WorkflowPhaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "capgate",
			Name:      "workflow_phase_duration_seconds",
			Help:      "Duration of each workflow phase in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"workflow", "phase"},
	)

	// TeardownFailures counts teardown steps that failed to unwind cleanly.
	TeardownFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capgate",
			Name:      "teardown_failures_total",
			Help:      "Total number of teardown steps that failed",
		},
		[]string{"workflow", "step"},
	)

	// CredentialsCaptured counts portal credential submissions, never the
	// credential values themselves.
	CredentialsCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capgate",
			Name:      "credentials_captured_total",
			Help:      "Total number of credential submissions captured by the captive portal",
		},
		[]string{"workflow"},
	)

	// CredentialVerifications counts verification attempts by result.
	CredentialVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "capgate",
			Name:      "credential_verifications_total",
			Help:      "Total number of credential verification attempts by result",
		},
		[]string{"workflow", "result"},
	)

	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// Idempotent and safe to call multiple times.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.MustRegister(ShellInvocations)
		prometheus.DefaultRegisterer.MustRegister(WorkflowPhaseTransitions)
		prometheus.DefaultRegisterer.MustRegister(WorkflowPhaseDuration)
		prometheus.DefaultRegisterer.MustRegister(TeardownFailures)
		prometheus.DefaultRegisterer.MustRegister(CredentialsCaptured)
		prometheus.DefaultRegisterer.MustRegister(CredentialVerifications)
	})
}

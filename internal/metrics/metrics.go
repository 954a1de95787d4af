// Package metrics provides Prometheus metrics for uwflow. uwflow is a
// short-lived process, so metrics live in their own registry and are
// exported as a node-exporter textfile at exit rather than served.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every uwflow metric.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

// ─── Invocations ────────────────────────────────────────────────────────────

// Invocations counts Execute calls by driver, task and outcome
// (ok, failed, dry_run).
var Invocations = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "uwflow",
	Name:      "invocations_total",
	Help:      "Total task invocations.",
}, []string{"driver", "task", "outcome"})

// InvocationDuration tracks wall time of Execute calls in seconds.
var InvocationDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "uwflow",
	Name:      "invocation_duration_seconds",
	Help:      "Task invocation duration in seconds.",
	Buckets:   []float64{0.01, 0.1, 1, 10, 60, 300, 1800, 3600, 4 * 3600},
}, []string{"driver", "task"})

// ─── Task Graph ─────────────────────────────────────────────────────────────

// TaskStates counts graph nodes by their final state.
var TaskStates = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "uwflow",
	Name:      "task_states_total",
	Help:      "Task graph nodes by final state.",
}, []string{"driver", "state"})

// ─── Execution ──────────────────────────────────────────────────────────────

// Launches counts executable launches by mode (direct, batch).
var Launches = factory.NewCounterVec(prometheus.CounterOpts{
	Namespace: "uwflow",
	Name:      "launches_total",
	Help:      "Total executable launches.",
}, []string{"driver", "mode"})

// LastExitCode is the exit status of the latest launch per driver.
var LastExitCode = factory.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "uwflow",
	Name:      "last_exit_code",
	Help:      "Exit status of the most recent launch.",
}, []string{"driver"})

// WriteTextfile writes the registry to path in the Prometheus text format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}

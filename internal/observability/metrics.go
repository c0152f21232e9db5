package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report scheduling and workflow
// activity.
type Metrics struct {
	WorkflowRuns         *prometheus.CounterVec
	WorkflowStepFailures *prometheus.CounterVec
	ScheduleOps          *prometheus.CounterVec
	Compensations        *prometheus.CounterVec
	RunsActive           prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. The collectors are created only once to
// avoid duplicate registration panics when components are instantiated
// multiple times (e.g. in unit tests).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// The caller is responsible for supplying a fresh registry when unique metric
// names are required (for example in tests). Registration errors panic, which
// mirrors promauto semantics and surfaces configuration bugs early.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	workflowRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notra",
			Subsystem: "workflow",
			Name:      "runs_total",
			Help:      "Workflow runs by terminal outcome.",
		},
		[]string{"outcome"},
	)
	stepFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notra",
			Subsystem: "workflow",
			Name:      "step_failures_total",
			Help:      "Unhandled workflow step errors.",
		},
		[]string{"step"},
	)
	scheduleOps := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notra",
			Subsystem: "scheduler",
			Name:      "remote_ops_total",
			Help:      "Remote schedule registry operations by kind and status.",
		},
		[]string{"op", "status"},
	)
	compensations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "notra",
			Subsystem: "scheduler",
			Name:      "compensations_total",
			Help:      "Schedule compensation attempts by outcome.",
		},
		[]string{"outcome"},
	)
	runsActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "notra",
			Subsystem: "workflow",
			Name:      "runs_active",
			Help:      "Workflow runs currently executing.",
		},
	)

	m := &Metrics{
		WorkflowRuns:         workflowRuns,
		WorkflowStepFailures: stepFailures,
		ScheduleOps:          scheduleOps,
		Compensations:        compensations,
		RunsActive:           runsActive,
	}

	collectors := []prometheus.Collector{workflowRuns, stepFailures, scheduleOps, compensations, runsActive}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch existing := already.ExistingCollector.(type) {
				case *prometheus.CounterVec:
					switch collector {
					case workflowRuns:
						m.WorkflowRuns = existing
					case stepFailures:
						m.WorkflowStepFailures = existing
					case scheduleOps:
						m.ScheduleOps = existing
					case compensations:
						m.Compensations = existing
					}
				case prometheus.Gauge:
					if collector == runsActive {
						m.RunsActive = existing
					}
				}
				continue
			}
			panic(err)
		}
	}

	return m
}

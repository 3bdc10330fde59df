package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "hfsm"
	subsystem = "machine"
)

// Collector records transition activity for one or more machines. A nil
// *Collector is valid and records nothing.
type Collector struct {
	transitions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	replaced    *prometheus.CounterVec
	faults      *prometheus.CounterVec
	inFlight    *prometheus.GaugeVec
}

func New(registerer prometheus.Registerer) *Collector {
	factory := promauto.With(registerer)
	return &Collector{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transitions_total",
			Help:      "Completed transitions by source leaf and target state",
		}, []string{"machine", "from", "to"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transition_duration_seconds",
			Help:      "Time from the start of the exit activities to the last structural entry",
			Buckets:   []float64{.001, .01, .05, .1, .25, .5, 1, 2, 5},
		}, []string{"machine"}),
		replaced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pending_replaced_total",
			Help:      "Pending transition requests overwritten before they ran",
		}, []string{"machine"}),
		faults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "faults_total",
			Help:      "Transitions aborted, by phase",
		}, []string{"machine", "phase"}),
		inFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "in_flight",
			Help:      "1 while a transition is in flight",
		}, []string{"machine"}),
	}
}

func (c *Collector) Transition(machine, from, to string, took time.Duration) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(machine, from, to).Inc()
	c.duration.WithLabelValues(machine).Observe(took.Seconds())
}

func (c *Collector) Replaced(machine string) {
	if c == nil {
		return
	}
	c.replaced.WithLabelValues(machine).Inc()
}

func (c *Collector) Fault(machine, phase string) {
	if c == nil {
		return
	}
	c.faults.WithLabelValues(machine, phase).Inc()
}

func (c *Collector) InFlight(machine string, inFlight bool) {
	if c == nil {
		return
	}
	value := 0.0
	if inFlight {
		value = 1
	}
	c.inFlight.WithLabelValues(machine).Set(value)
}

package engine

import "github.com/prometheus/client_golang/prometheus"

const namespace = "lifecycle"

// Metrics exposes engine activity to prometheus. A nil *Metrics records nothing.
type Metrics struct {
	startedTotal   *prometheus.CounterVec
	failuresTotal  *prometheus.CounterVec
	cancelledTotal prometheus.Counter
	replacedTotal  prometheus.Counter
	deliveredTotal prometheus.Counter
	droppedTotal   prometheus.Counter
	running        prometheus.Gauge
}

// NewMetrics creates the engine collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		startedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "effects_started_total",
				Help:      "Total number of effects started, by kind",
			},
			[]string{"kind"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "effect_failures_total",
				Help:      "Total number of failed effect executions, by kind",
			},
			[]string{"kind"},
		),
		cancelledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "effects_cancelled_total",
			Help:      "Total number of running effects stopped by cancellation",
		}),
		replacedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "effects_replaced_total",
			Help:      "Total number of running effects replaced by a restart under the same token",
		}),
		deliveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_delivered_total",
			Help:      "Total number of effect actions dispatched",
		}),
		droppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_dropped_total",
			Help:      "Total number of effect actions dropped because their effect was no longer registered",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "effects_running",
			Help:      "Number of effects currently registered",
		}),
	}
	reg.MustRegister(
		m.startedTotal,
		m.failuresTotal,
		m.cancelledTotal,
		m.replacedTotal,
		m.deliveredTotal,
		m.droppedTotal,
		m.running,
	)
	return m
}

func (m *Metrics) started(k kind) {
	if m != nil {
		m.startedTotal.WithLabelValues(string(k)).Inc()
	}
}

func (m *Metrics) failed(k kind) {
	if m != nil {
		m.failuresTotal.WithLabelValues(string(k)).Inc()
	}
}

func (m *Metrics) cancelled(n int) {
	if m != nil && n > 0 {
		m.cancelledTotal.Add(float64(n))
		m.running.Sub(float64(n))
	}
}

func (m *Metrics) replaced() {
	if m != nil {
		m.replacedTotal.Inc()
	}
}

func (m *Metrics) register() {
	if m != nil {
		m.running.Inc()
	}
}

func (m *Metrics) unregister() {
	if m != nil {
		m.running.Dec()
	}
}

func (m *Metrics) delivered() {
	if m != nil {
		m.deliveredTotal.Inc()
	}
}

func (m *Metrics) dropped() {
	if m != nil {
		m.droppedTotal.Inc()
	}
}

func (m *Metrics) StartedTotal() *prometheus.CounterVec  { return m.startedTotal }
func (m *Metrics) FailuresTotal() *prometheus.CounterVec { return m.failuresTotal }
func (m *Metrics) CancelledTotal() prometheus.Counter    { return m.cancelledTotal }
func (m *Metrics) ReplacedTotal() prometheus.Counter     { return m.replacedTotal }
func (m *Metrics) DeliveredTotal() prometheus.Counter    { return m.deliveredTotal }
func (m *Metrics) DroppedTotal() prometheus.Counter      { return m.droppedTotal }
func (m *Metrics) Running() prometheus.Gauge             { return m.running }

package resilience

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status is the derived health state of an operation class, or of the
// system overall (spec §4.E: "Status is derived from the rolling error
// rate").
type Status string

const (
	StatusHealthy  Status = "Healthy"
	StatusWarning  Status = "Warning"
	StatusCritical Status = "Critical"
)

const rollingWindow = 100 // samples kept per class for the error-rate/latency window

// classMetrics is the rolling per-class counters spec §4.E names:
// "total operations, successful operations, failed operations, latency
// histogram, recent error list".
type classMetrics struct {
	mu sync.Mutex

	total      int64
	successful int64
	failed     int64

	// outcomes is a fixed-size ring of the most recent call outcomes,
	// used to compute the rolling error rate spec §4.E's status
	// thresholds key off, independent of all-time totals.
	outcomes []bool // true = success
	cursor   int

	recentErrors []string // bounded ring of the last few error strings, newest last
	latencies    prometheus.Histogram
	total1       prometheus.Counter
	success1     prometheus.Counter
	failed1      prometheus.Counter
}

func newClassMetrics(reg *prometheus.Registry, class string) *classMetrics {
	cm := &classMetrics{outcomes: make([]bool, 0, rollingWindow)}
	if reg == nil {
		return cm
	}
	labels := prometheus.Labels{"class": class}
	cm.latencies = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   "acs",
		Subsystem:   "resilience",
		Name:        "operation_latency_seconds",
		Help:        "Latency of guarded operations by operation class.",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: labels,
	})
	cm.total1 = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "acs", Subsystem: "resilience", Name: "operations_total",
		Help: "Total guarded operations attempted.", ConstLabels: labels,
	})
	cm.success1 = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "acs", Subsystem: "resilience", Name: "operations_successful_total",
		Help: "Guarded operations that succeeded.", ConstLabels: labels,
	})
	cm.failed1 = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "acs", Subsystem: "resilience", Name: "operations_failed_total",
		Help: "Guarded operations that failed.", ConstLabels: labels,
	})
	reg.MustRegister(cm.latencies, cm.total1, cm.success1, cm.failed1)
	return cm
}

func (m *classMetrics) record(success bool, latency time.Duration, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	if success {
		m.successful++
	} else {
		m.failed++
		m.recentErrors = append(m.recentErrors, errMsg)
		if len(m.recentErrors) > 10 {
			m.recentErrors = m.recentErrors[len(m.recentErrors)-10:]
		}
	}

	if len(m.outcomes) < rollingWindow {
		m.outcomes = append(m.outcomes, success)
	} else {
		m.outcomes[m.cursor] = success
		m.cursor = (m.cursor + 1) % rollingWindow
	}

	if m.latencies != nil {
		m.latencies.Observe(latency.Seconds())
		m.total1.Inc()
		if success {
			m.success1.Inc()
		} else {
			m.failed1.Inc()
		}
	}
}

// errorRateLocked returns the rolling error rate and sample count that
// statusFor keys off; the caller holds m.mu.
func (m *classMetrics) errorRateLocked() (rate float64, samples int) {
	samples = len(m.outcomes)
	if samples == 0 {
		return 0, 0
	}
	failures := 0
	for _, ok := range m.outcomes {
		if !ok {
			failures++
		}
	}
	return float64(failures) / float64(samples), samples
}

// ClassReport is a point-in-time snapshot of one operation class's health.
type ClassReport struct {
	Class           string
	Status          Status
	BreakerState    BreakerState
	Total           int64
	Successful      int64
	Failed          int64
	RollingErrRate  float64
	RecentErrors    []string
}

func statusFor(errRate float64, samples int) Status {
	if samples < 10 {
		return StatusHealthy
	}
	switch {
	case errRate >= 0.25:
		return StatusCritical
	case errRate >= 0.10:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

// Health aggregates per-class metrics and exposes the overall, worst-of
// status (spec §4.E: "Overall health is the worst class status").
type Health struct {
	mu       sync.Mutex
	classes  map[string]*classMetrics
	registry *prometheus.Registry
	breakers *breakerRegistry
}

func newHealth(registry *prometheus.Registry, breakers *breakerRegistry) *Health {
	return &Health{
		classes:  make(map[string]*classMetrics),
		registry: registry,
		breakers: breakers,
	}
}

func (h *Health) metricsFor(class string) *classMetrics {
	h.mu.Lock()
	defer h.mu.Unlock()
	cm, ok := h.classes[class]
	if !ok {
		cm = newClassMetrics(h.registry, class)
		h.classes[class] = cm
	}
	return cm
}

func (h *Health) record(class string, success bool, latency time.Duration, err error) {
	cm := h.metricsFor(class)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	cm.record(success, latency, msg)
}

// Report returns a snapshot for every operation class observed so far.
func (h *Health) Report() []ClassReport {
	h.mu.Lock()
	classes := make([]string, 0, len(h.classes))
	for c := range h.classes {
		classes = append(classes, c)
	}
	h.mu.Unlock()

	out := make([]ClassReport, 0, len(classes))
	for _, class := range classes {
		out = append(out, h.classReport(class))
	}
	return out
}

func (h *Health) classReport(class string) ClassReport {
	cm := h.metricsFor(class)
	cm.mu.Lock()
	rate, _ := cm.errorRateLocked()
	samples := len(cm.outcomes)
	report := ClassReport{
		Class:          class,
		Total:          cm.total,
		Successful:     cm.successful,
		Failed:         cm.failed,
		RollingErrRate: rate,
		RecentErrors:   append([]string(nil), cm.recentErrors...),
	}
	cm.mu.Unlock()

	report.Status = statusFor(rate, samples)
	if h.breakers != nil {
		report.BreakerState = h.breakers.State(class)
	}
	return report
}

// Overall reports the worst status across every observed class, or
// Healthy if none have been observed yet.
func (h *Health) Overall() Status {
	worst := StatusHealthy
	for _, r := range h.Report() {
		if rank(r.Status) > rank(worst) {
			worst = r.Status
		}
	}
	return worst
}

func rank(s Status) int {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

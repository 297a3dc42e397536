// Copyright 2022 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package scheduler

import "github.com/prometheus/client_golang/prometheus"

// MetricsRecorder observes Scheduler activity. It is deliberately narrow —
// three counters and a gauge — since the core Scheduler contract is silent
// on observability and treats it as an external collaborator; none of the
// five schedulers calls these methods itself. Instrumented callers wrap a
// Scheduler with InstrumentedScheduler to get them called automatically;
// Runner also reports the live count to the recorder it is given.
type MetricsRecorder interface {
	ObserveStart(variant Variant)
	ObserveFire(variant Variant, count int)
	ObserveCancel(variant Variant, ok bool)
	ObserveSize(variant Variant, size int)
}

// PrometheusMetrics is the production MetricsRecorder, registered against a
// caller-supplied prometheus.Registerer (for example
// prometheus.DefaultRegisterer, or a fresh prometheus.NewRegistry() in tests).
type PrometheusMetrics struct {
	started   *prometheus.CounterVec
	fired     *prometheus.CounterVec
	cancelled *prometheus.CounterVec
	live      *prometheus.GaugeVec
}

// NewPrometheusMetrics constructs and registers the scheduler's metric
// family under reg. Panics if registration fails (e.g. a duplicate
// collector), matching the package's fail-fast stance on setup errors.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	m := &PrometheusMetrics{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedkit",
			Name:      "timers_started_total",
			Help:      "Timers armed via Start, by variant.",
		}, []string{"variant"}),
		fired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedkit",
			Name:      "timers_fired_total",
			Help:      "Timer actions invoked, by variant.",
		}, []string{"variant"}),
		cancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "schedkit",
			Name:      "timers_cancelled_total",
			Help:      "Successful Cancel calls, by variant.",
		}, []string{"variant"}),
		live: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "schedkit",
			Name:      "timers_live",
			Help:      "Live (armed, not yet fired or cancelled) timers, by variant.",
		}, []string{"variant"}),
	}
	reg.MustRegister(m.started, m.fired, m.cancelled, m.live)
	return m
}

func (m *PrometheusMetrics) ObserveStart(v Variant) {
	m.started.WithLabelValues(v.String()).Inc()
}

func (m *PrometheusMetrics) ObserveFire(v Variant, count int) {
	if count > 0 {
		m.fired.WithLabelValues(v.String()).Add(float64(count))
	}
}

func (m *PrometheusMetrics) ObserveCancel(v Variant, ok bool) {
	if ok {
		m.cancelled.WithLabelValues(v.String()).Inc()
	}
}

func (m *PrometheusMetrics) ObserveSize(v Variant, size int) {
	m.live.WithLabelValues(v.String()).Set(float64(size))
}

// InstrumentedScheduler wraps a Scheduler, reporting every operation to a
// MetricsRecorder without altering the wrapped Scheduler's semantics — a
// decorator, not a sixth variant.
type InstrumentedScheduler struct {
	Scheduler
	metrics MetricsRecorder
}

// Instrument wraps s so every Start/Cancel/Tick call is also reported to m.
func Instrument(s Scheduler, m MetricsRecorder) *InstrumentedScheduler {
	return &InstrumentedScheduler{Scheduler: s, metrics: m}
}

func (i *InstrumentedScheduler) Start(durationMs uint64, action Action) uint64 {
	id := i.Scheduler.Start(durationMs, action)
	i.metrics.ObserveStart(i.Scheduler.Variant())
	i.metrics.ObserveSize(i.Scheduler.Variant(), i.Scheduler.Size())
	return id
}

func (i *InstrumentedScheduler) Cancel(timerID uint64) bool {
	ok := i.Scheduler.Cancel(timerID)
	i.metrics.ObserveCancel(i.Scheduler.Variant(), ok)
	i.metrics.ObserveSize(i.Scheduler.Variant(), i.Scheduler.Size())
	return ok
}

func (i *InstrumentedScheduler) Tick(nowMs int64) int {
	fired := i.Scheduler.Tick(nowMs)
	i.metrics.ObserveFire(i.Scheduler.Variant(), fired)
	i.metrics.ObserveSize(i.Scheduler.Variant(), i.Scheduler.Size())
	return fired
}

// Package metrics exposes the master's synchronization state to Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"masterclock/datamodel/cycle"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/sirupsen/logrus"
)

const namespace = "masterclock"

// Exchange results
const (
	ExchangeOK             = "ok"
	ExchangeTimeout        = "timeout"
	ExchangeTransportError = "transport_error"
)

type Metrics struct {
	registry *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	exchanges     *prometheus.CounterVec
	latency       prometheus.Histogram
	averageOffset prometheus.Gauge
	adjustments   prometheus.Counter
	slaves        prometheus.Gauge
	datagrams     *prometheus.CounterVec
	decodeErrors  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Synchronization cycles by outcome.",
		}, []string{"outcome"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time spent in one synchronization cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "request_time exchanges by result.",
		}, []string{"result"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_latency_milliseconds",
			Help:      "Estimated one-way latency (half the round trip) of successful exchanges.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		averageOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "average_offset_milliseconds",
			Help:      "Average offset broadcast in the last synced cycle.",
		}),
		adjustments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adjustments_sent_total",
			Help:      "adjust_time messages sent.",
		}),
		slaves: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slaves",
			Help:      "Slaves currently held in the registry.",
		}),
		datagrams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagrams_received_total",
			Help:      "Inbound datagrams by decoded message type.",
		}, []string{"type"}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Inbound datagrams dropped because they could not be decoded.",
		}),
	}

	m.registry.MustRegister(
		m.cycles, m.cycleDuration, m.exchanges, m.latency, m.averageOffset,
		m.adjustments, m.slaves, m.datagrams, m.decodeErrors,
	)

	return m
}

func (m *Metrics) ObserveCycle(r *cycle.Report) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(string(r.Outcome)).Inc()
	m.cycleDuration.Observe(r.Duration.Seconds())
	m.adjustments.Add(float64(r.Adjusted))
	if r.Outcome == cycle.OutcomeSynced {
		m.averageOffset.Set(float64(r.AverageOffset))
	}
}

func (m *Metrics) ObserveExchange(result string, latencyMillis int64) {
	if m == nil {
		return
	}
	m.exchanges.WithLabelValues(result).Inc()
	if result == ExchangeOK {
		m.latency.Observe(float64(latencyMillis))
	}
}

func (m *Metrics) ObserveDatagram(kind string) {
	if m == nil {
		return
	}
	m.datagrams.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveDecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

func (m *Metrics) SetSlaves(n int) {
	if m == nil {
		return
	}
	m.slaves.Set(float64(n))
}

func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on address until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, address string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warnf("metrics: shutdown error: %v", err)
		}
	}()

	log.Infof("Prometheus metrics available on %s/metrics", address)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

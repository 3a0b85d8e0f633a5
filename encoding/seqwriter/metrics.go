package seqwriter

import (
	"github.com/grailbio/seqio/encoding/format"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "seqio"

// Metrics holds the Prometheus counters updated by writers. All counters are
// labeled by output kind.
type Metrics struct {
	Batches *prometheus.CounterVec
	Records *prometheus.CounterVec
	Bytes   *prometheus.CounterVec
	Errors  *prometheus.CounterVec
}

// NewMetrics creates writer metrics and registers them with reg, if reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "writer_batches_total",
				Help:      "Total batches written.",
			},
			[]string{"kind"},
		),
		Records: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "writer_records_total",
				Help:      "Total records written.",
			},
			[]string{"kind"},
		),
		Bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "writer_bytes_total",
				Help:      "Total encoded bytes written.",
			},
			[]string{"kind"},
		),
		Errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "writer_errors_total",
				Help:      "Total failed writes.",
			},
			[]string{"kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Batches, m.Records, m.Bytes, m.Errors)
	}
	return m
}

// observe adds a written batch. It is a no-op on a nil receiver.
func (m *Metrics) observe(kind format.Kind, records, bytes int) {
	if m == nil {
		return
	}
	label := kind.String()
	m.Batches.WithLabelValues(label).Inc()
	m.Records.WithLabelValues(label).Add(float64(records))
	m.Bytes.WithLabelValues(label).Add(float64(bytes))
}

func (m *Metrics) failed(kind format.Kind) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(kind.String()).Inc()
}

// Package metrics holds the prometheus collectors exported on /metrics.
// A nil collector set is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Scan batch results.
const (
	BatchProcessed    = "processed"
	BatchInvalid      = "invalid"
	BatchUnauthorized = "unauthorized"
)

// Per-tag outcomes.
const (
	TagUpdated     = "updated"
	TagToggled     = "toggled"
	TagTransferred = "transferred"
	TagCreated     = "created"
	TagFailed      = "failed"
	TagRejected    = "rejected"
)

// Association results.
const (
	AssociationSuccess  = "success"
	AssociationConflict = "conflict"
	AssociationOverride = "override"
	AssociationError    = "error"
)

// RFIDMetrics records scan ingestion and association activity.
type RFIDMetrics struct {
	batches       *prometheus.CounterVec
	tags          *prometheus.CounterVec
	associations  *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

// NewRFIDMetrics registers the RFID collectors on reg.
func NewRFIDMetrics(reg prometheus.Registerer) *RFIDMetrics {
	if reg == nil {
		return &RFIDMetrics{}
	}
	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rfid_scan_batches_total",
		Help: "Scan batches received from devices.",
	}, []string{"result"})
	tags := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rfid_tags_processed_total",
		Help: "Tag sightings reconciled, by outcome.",
	}, []string{"outcome"})
	associations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rfid_associations_total",
		Help: "Tag to item association attempts, by result.",
	}, []string{"result"})
	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "rfid_scan_batch_seconds",
		Help:    "Time spent reconciling one scan batch.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(batches, tags, associations, batchDuration)
	return &RFIDMetrics{
		batches:       batches,
		tags:          tags,
		associations:  associations,
		batchDuration: batchDuration,
	}
}

// ObserveBatch counts one batch and, for processed batches, records its duration.
func (m *RFIDMetrics) ObserveBatch(result string, duration time.Duration) {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.WithLabelValues(normalizeLabel(result)).Inc()
	if result == BatchProcessed {
		m.batchDuration.Observe(duration.Seconds())
	}
}

func (m *RFIDMetrics) IncTag(outcome string) {
	if m == nil || m.tags == nil {
		return
	}
	m.tags.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *RFIDMetrics) IncAssociation(result string) {
	if m == nil || m.associations == nil {
		return
	}
	m.associations.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

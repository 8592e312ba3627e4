package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder receives operational signals from the encryption layer, the
// decryption cache and the audit logger.
type Recorder interface {
	// RecordOperation counts one cipher operation (encrypt, decrypt_string,
	// decrypt_number) and observes its duration.
	RecordOperation(operation string, err error, duration time.Duration)
	// RecordDoubleEncryption counts inputs that were already ciphertext.
	RecordDoubleEncryption()
	// RecordUnwrap counts extra decryption layers peeled off a value.
	RecordUnwrap()
	// RecordFieldFallback counts record fields that fell back to a zero value.
	RecordFieldFallback(model, field string)
	RecordCacheLookup(hit bool)
	RecordCacheEviction(reason string)
	RecordAuditEvent(action, severity string)
	RecordAuditDropped(reason string)
}

// NoOpRecorder discards everything.
type NoOpRecorder struct{}

func (NoOpRecorder) RecordOperation(string, error, time.Duration) {}
func (NoOpRecorder) RecordDoubleEncryption()                      {}
func (NoOpRecorder) RecordUnwrap()                                {}
func (NoOpRecorder) RecordFieldFallback(string, string)           {}
func (NoOpRecorder) RecordCacheLookup(bool)                       {}
func (NoOpRecorder) RecordCacheEviction(string)                   {}
func (NoOpRecorder) RecordAuditEvent(string, string)              {}
func (NoOpRecorder) RecordAuditDropped(string)                    {}

// Registry holds the prometheus collectors for the module.
type Registry struct {
	registry *prometheus.Registry

	OperationsTotal        *prometheus.CounterVec
	OperationDuration      *prometheus.HistogramVec
	DoubleEncryptionsTotal prometheus.Counter
	UnwrapsTotal           prometheus.Counter
	FieldFallbacksTotal    *prometheus.CounterVec
	CacheLookupsTotal      *prometheus.CounterVec
	CacheEvictionsTotal    *prometheus.CounterVec
	AuditEventsTotal       *prometheus.CounterVec
	AuditDroppedTotal      *prometheus.CounterVec
}

// NewRegistry creates a registry backed by a fresh prometheus.Registry.
func NewRegistry() *Registry {
	return NewRegistryWith(prometheus.NewRegistry())
}

// NewRegistryWith registers the collectors on reg. It panics if they are
// already registered there.
func NewRegistryWith(reg *prometheus.Registry) *Registry {
	factory := promauto.With(reg)
	return &Registry{
		registry: reg,
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldcrypt_operations_total",
				Help: "Cipher operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldcrypt_operation_duration_seconds",
				Help:    "Cipher operation latency",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
			},
			[]string{"operation"},
		),
		DoubleEncryptionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldcrypt_double_encryption_total",
				Help: "Encrypt calls whose input was already a ciphertext token",
			},
		),
		UnwrapsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "fieldcrypt_unwraps_total",
				Help: "Additional encryption layers removed during decryption",
			},
		),
		FieldFallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldcrypt_field_fallbacks_total",
				Help: "Record fields replaced by a zero value after a decryption failure",
			},
			[]string{"model", "field"},
		),
		CacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldcrypt_cache_lookups_total",
				Help: "Decryption cache lookups by result",
			},
			[]string{"result"},
		),
		CacheEvictionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldcrypt_cache_evictions_total",
				Help: "Decryption cache entries removed by reason",
			},
			[]string{"reason"},
		),
		AuditEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldcrypt_audit_events_total",
				Help: "Audit events emitted by action and severity",
			},
			[]string{"action", "severity"},
		),
		AuditDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldcrypt_audit_dropped_total",
				Help: "Audit events not delivered to a handler by reason",
			},
			[]string{"reason"},
		),
	}
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the registry in the prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Registry) RecordOperation(operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.OperationsTotal.WithLabelValues(operation, status).Inc()
	r.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (r *Registry) RecordDoubleEncryption() {
	r.DoubleEncryptionsTotal.Inc()
}

func (r *Registry) RecordUnwrap() {
	r.UnwrapsTotal.Inc()
}

func (r *Registry) RecordFieldFallback(model, field string) {
	r.FieldFallbacksTotal.WithLabelValues(model, field).Inc()
}

func (r *Registry) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.CacheLookupsTotal.WithLabelValues(result).Inc()
}

func (r *Registry) RecordCacheEviction(reason string) {
	r.CacheEvictionsTotal.WithLabelValues(reason).Inc()
}

func (r *Registry) RecordAuditEvent(action, severity string) {
	r.AuditEventsTotal.WithLabelValues(action, severity).Inc()
}

func (r *Registry) RecordAuditDropped(reason string) {
	r.AuditDroppedTotal.WithLabelValues(reason).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors shared by the chat pipeline
type Metrics struct {
	Tenants          prometheus.Gauge
	Ingestions       *prometheus.CounterVec
	IngestedRows     prometheus.Counter
	Queries          *prometheus.CounterVec
	Translations     *prometheus.CounterVec
	EngineDuration   *prometheus.HistogramVec
	WorkersInFlight  prometheus.Gauge
	RemoteCallErrors prometheus.Counter
}

// New registers the collectors with reg. A nil reg keeps them unregistered, which is what tests want.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Tenants: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "gigapi_chat",
			Name:      "tenant_stores",
			Help:      "Number of open tenant stores.",
		}),
		Ingestions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gigapi_chat",
			Name:      "ingestions_total",
			Help:      "Total number of table ingestions by outcome.",
		}, []string{"outcome"}),
		IngestedRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gigapi_chat",
			Name:      "ingested_rows_total",
			Help:      "Total number of records written into tenant tables.",
		}),
		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gigapi_chat",
			Name:      "queries_total",
			Help:      "Total number of chat queries by outcome.",
		}, []string{"outcome"}),
		Translations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gigapi_chat",
			Name:      "translations_total",
			Help:      "Total number of question translations by path.",
		}, []string{"source"}),
		EngineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gigapi_chat",
			Name:      "engine_call_duration_seconds",
			Help:      "Time spent in embedded engine calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		WorkersInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "gigapi_chat",
			Name:      "engine_workers_in_flight",
			Help:      "Engine calls currently holding a worker slot.",
		}),
		RemoteCallErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "gigapi_chat",
			Name:      "rpc_errors_total",
			Help:      "Total number of failed remote procedure calls.",
		}),
	}
}

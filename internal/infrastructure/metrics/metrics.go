package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequests counts HTTP responses by route and status code
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formula_gateway_http_requests_total",
			Help: "Total HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "code"},
	)

	// InferenceDuration observes model backend latency
	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formula_gateway_inference_duration_seconds",
			Help:    "Latency of model generate calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"model", "outcome"},
	)

	// CacheLookups counts recognition cache hits and misses
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formula_gateway_cache_lookups_total",
			Help: "Recognition cache lookups by result",
		},
		[]string{"result"},
	)

	// QueueActive is the number of inference calls holding a slot
	QueueActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "formula_gateway_queue_active",
			Help: "Inference calls currently running",
		},
	)

	// QueueWaiting is the number of inference calls waiting for a slot
	QueueWaiting = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "formula_gateway_queue_waiting",
			Help: "Inference calls waiting for a slot",
		},
	)

	// QueueRejected counts calls turned away by admission control
	QueueRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formula_gateway_queue_rejected_total",
			Help: "Inference calls rejected by admission control",
		},
		[]string{"reason"},
	)

	// ModelLoaded is 1 for each model handle acquired at startup
	ModelLoaded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "formula_gateway_model_loaded",
			Help: "Whether a model handle was acquired (1) or not (0)",
		},
		[]string{"role", "model"},
	)
)

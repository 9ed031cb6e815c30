package choro

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FramesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parcelview_frames_total",
		Help: "Total frame-loop ticks",
	})
	FrameDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "parcelview_frame_duration_ms",
		Help:    "Frame tick duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 33, 50, 100, 200, 500},
	})
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "parcelview_sessions_active",
		Help: "Live sessions",
	})
	LabelRecomputesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parcelview_label_recomputes_total",
		Help: "Total label placement passes",
	})
	LabelRecomputeDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "parcelview_label_recompute_duration_ms",
		Help:    "Label placement duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000},
	})
	LabelsPlaced = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "parcelview_labels_placed",
		Help:    "Labels emitted per placement pass",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
	})
	PersistWritesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parcelview_persist_writes_total",
		Help: "Total debounced camera-state writes",
	})
	StateDecodeFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parcelview_state_decode_fallbacks_total",
		Help: "Total persisted-state decodes that fell back to the default view",
	})
	ViewPublishesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parcelview_view_publishes_total",
		Help: "Total view-state publishes",
	})
	PublishErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "parcelview_publish_errors_total",
		Help: "Total failed MQTT publishes",
	})
	InputFramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parcelview_input_frames_total",
		Help: "Input frames received by kind",
	}, []string{"kind"})
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "parcelview_http_requests_total",
		Help: "HTTP requests by path",
	}, []string{"path"})
)

func init() {
	prometheus.MustRegister(FramesTotal)
	prometheus.MustRegister(FrameDurationMs)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(LabelRecomputesTotal)
	prometheus.MustRegister(LabelRecomputeDurationMs)
	prometheus.MustRegister(LabelsPlaced)
	prometheus.MustRegister(PersistWritesTotal)
	prometheus.MustRegister(StateDecodeFallbacksTotal)
	prometheus.MustRegister(ViewPublishesTotal)
	prometheus.MustRegister(PublishErrorsTotal)
	prometheus.MustRegister(InputFramesTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
}

// MetricsHandler exposes the registered metrics for scraping.
func MetricsHandler() http.Handler { return promhttp.Handler() }

package ipcam

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Skip reasons
const (
	skipDetect = "detect"
	skipEncode = "encode"
)

// Metrics relay and session counters. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	framesCaptured  prometheus.Counter
	framesDelivered prometheus.Counter
	framesSkipped   *prometheus.CounterVec
	detections      *prometheus.CounterVec
	sessionsActive  prometheus.Gauge
	sessionsTotal   prometheus.Counter
	pipeline        prometheus.Histogram
}

// NewMetrics creates collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ipcam_frames_captured_total",
			Help: "Frames read from the camera",
		}),
		framesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ipcam_frames_delivered_total",
			Help: "Frames handed to a sink",
		}),
		framesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipcam_frames_skipped_total",
			Help: "Frames dropped by the relay, by reason",
		}, []string{"reason"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ipcam_detections_total",
			Help: "Detected objects, by class",
		}, []string{"class"}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ipcam_sessions_active",
			Help: "Connected stream clients",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ipcam_sessions_total",
			Help: "Stream clients accepted since start",
		}),
		pipeline: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ipcam_frame_pipeline_seconds",
			Help:    "Read to delivery latency of one frame",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
	}
	m.registry.MustRegister(
		m.framesCaptured,
		m.framesDelivered,
		m.framesSkipped,
		m.detections,
		m.sessionsActive,
		m.sessionsTotal,
		m.pipeline,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) frameCaptured() {
	if m != nil {
		m.framesCaptured.Inc()
	}
}

func (m *Metrics) frameDelivered(detections []Detection, started time.Time) {
	if m == nil {
		return
	}
	m.framesDelivered.Inc()
	m.pipeline.Observe(time.Since(started).Seconds())
	for _, d := range detections {
		m.detections.WithLabelValues(d.ClassName).Inc()
	}
}

func (m *Metrics) frameSkipped(reason string) {
	if m != nil {
		m.framesSkipped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) sessionOpened() {
	if m != nil {
		m.sessionsTotal.Inc()
		m.sessionsActive.Inc()
	}
}

func (m *Metrics) sessionClosed() {
	if m != nil {
		m.sessionsActive.Dec()
	}
}

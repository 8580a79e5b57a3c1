// Package metrics exposes Prometheus collectors for the synthesis gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Audio byte directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

var (
	// Request metrics
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_clone_http_requests_total",
		Help: "Total number of HTTP requests by route and status code",
	}, []string{"route", "code"})

	// Synthesis metrics
	synthesisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_clone_synthesis_total",
		Help: "Total number of synthesis calls by source and outcome",
	}, []string{"source", "outcome"})

	synthesisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_clone_synthesis_duration_seconds",
		Help:    "End-to-end synthesis latency including the wait for the engine",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"source"})

	// Engine metrics
	guardWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_clone_engine_wait_seconds",
		Help:    "Time spent waiting for exclusive access to the engine",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
	})

	engineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_clone_engine_duration_seconds",
		Help:    "Time spent inside the inference engine",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
	})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_clone_engine_queue_depth",
		Help: "Number of synthesis calls waiting for the engine",
	})

	engineBusy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_clone_engine_busy",
		Help: "1 while a synthesis holds the engine",
	})

	// Audio metrics
	audioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_clone_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest counts a finished HTTP request.
func RecordHTTPRequest(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// RecordSynthesis records the outcome and latency of a synthesis call.
func RecordSynthesis(source, outcome string, duration time.Duration) {
	synthesisTotal.WithLabelValues(source, outcome).Inc()
	synthesisDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveGuardWait records how long a call queued for the engine.
func ObserveGuardWait(d time.Duration) {
	guardWait.Observe(d.Seconds())
}

// ObserveEngine records time spent inside the engine.
func ObserveEngine(d time.Duration) {
	engineDuration.Observe(d.Seconds())
}

// SetQueueDepth updates the number of waiting calls.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}

// SetEngineBusy flags whether the engine is in use.
func SetEngineBusy(busy bool) {
	if busy {
		engineBusy.Set(1)

		return
	}

	engineBusy.Set(0)
}

// RecordAudioBytes records audio bytes received or sent.
func RecordAudioBytes(direction string, n int) {
	audioBytes.WithLabelValues(direction).Add(float64(n))
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type PrometheusRecorder struct {
	counters  *prometheus.CounterVec
	histogram *prometheus.HistogramVec
}

// NewPrometheusRecorder registers and returns payment counters and stage
// latency histograms under the phantompay namespace.
func NewPrometheusRecorder() Recorder {
	counters := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "phantompay",
			Name:      "events_total",
			Help:      "payment flow event counters",
		},
		[]string{"type", "stage", "token"},
	)

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "phantompay",
			Name:      "stage_latency_seconds",
			Help:      "payment stage latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage", "token"},
	)

	prometheus.MustRegister(counters, histogram)

	return &PrometheusRecorder{
		counters:  counters,
		histogram: histogram,
	}
}

func (p *PrometheusRecorder) IncCounter(name string, labels map[string]string) {
	p.counters.With(prometheus.Labels{
		"type":  name,
		"stage": labels["stage"],
		"token": labels["token"],
	}).Inc()
}

func (p *PrometheusRecorder) ObserveLatency(name string, d time.Duration, labels map[string]string) {
	p.histogram.With(prometheus.Labels{
		"stage": name,
		"token": labels["token"],
	}).Observe(d.Seconds())
}

package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	modelLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "npud",
			Subsystem: "model",
			Name:      "loads_total",
			Help:      "Model loads by result",
		},
		[]string{"result"},
	)

	modelLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "npud",
			Subsystem: "model",
			Name:      "load_duration_seconds",
			Help:      "Time to load a model onto the accelerator",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40, 80},
		},
	)

	promptTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "npud",
			Subsystem: "generate",
			Name:      "prompt_tokens_total",
			Help:      "Prompt tokens prefilled",
		},
		[]string{"model"},
	)

	generatedTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "npud",
			Subsystem: "generate",
			Name:      "generated_tokens_total",
			Help:      "Tokens generated",
		},
		[]string{"model"},
	)

	prefillDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "npud",
			Subsystem: "generate",
			Name:      "prefill_duration_seconds",
			Help:      "Prefill time per request",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	decodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "npud",
			Subsystem: "generate",
			Name:      "decode_duration_seconds",
			Help:      "Decode time per request",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"model"},
	)

	stopReasonsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "npud",
			Subsystem: "generate",
			Name:      "stops_total",
			Help:      "Finished generations by stop reason",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(modelLoadsTotal, modelLoadDuration, promptTokensTotal,
		generatedTokensTotal, prefillDuration, decodeDuration, stopReasonsTotal)
}

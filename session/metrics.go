package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "callbridge_sessions_active",
		Help: "Currently connected call sessions.",
	})
	metricSessionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callbridge_sessions_total",
		Help: "Call sessions accepted since start.",
	})
	metricTurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callbridge_turns_total",
		Help: "Model turns by terminal status.",
	}, []string{"status"})
	metricBargeIn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callbridge_barge_in_total",
		Help: "Interruptions executed because the caller spoke over a turn.",
	})
	metricBargeInSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callbridge_barge_in_suppressed_total",
		Help: "Speech-started events that did not interrupt, by guard.",
	}, []string{"guard"})
	metricAudioFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callbridge_audio_frames_total",
		Help: "Audio frames relayed, by direction.",
	}, []string{"direction"})
	metricToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callbridge_tool_calls_total",
		Help: "Tool invocations, by outcome.",
	}, []string{"outcome"})
	metricToolLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "callbridge_tool_seconds",
		Help:    "Tool handler execution time in seconds.",
		Buckets: prometheus.DefBuckets,
	})
	metricStaleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callbridge_stale_events_total",
		Help: "Events carrying a response id other than the active turn's.",
	}, []string{"type"})
)

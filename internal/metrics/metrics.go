package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agent_calls_active",
		Help: "Currently active call sessions",
	})

	CallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_calls_total",
		Help: "Total calls processed",
	})

	CallOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_call_outcomes_total",
		Help: "Terminal call outcomes",
	}, []string{"outcome"})

	CallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agent_call_duration_seconds",
		Help:    "Call duration from start to finalization",
		Buckets: []float64{15, 30, 60, 120, 180, 300, 600, 900},
	})

	ResponseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "agent_response_latency_seconds",
		Help:    "Latency from end of user speech to first agent response",
		Buckets: []float64{0.2, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0, 5.0},
	})

	ToolCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agent_tool_call_duration_seconds",
		Help:    "Per-tool invocation latency",
		Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
	}, []string{"tool"})

	CallCost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agent_call_cost_usd_total",
		Help: "Accumulated provider cost across completed calls",
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_errors_total",
		Help: "Error counts by component",
	}, []string{"component", "error_type"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "agent_breaker_state",
		Help: "Circuit breaker state per dependency (0 closed, 1 half-open, 2 open)",
	}, []string{"dependency"})

	BreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agent_breaker_trips_total",
		Help: "Times a breaker transitioned to open",
	}, []string{"dependency"})
)

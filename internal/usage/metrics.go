package usage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Event is one timestamped occurrence during a call.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
}

// CallMetrics accumulates resource usage for one active call.
// All counters are monotonically non-decreasing; mutation goes through the
// Tracker so access stays serialized.
type CallMetrics struct {
	CallID    string
	StartTime time.Time

	STTSeconds      float64
	TTSCharacters   int
	LLMInputTokens  int
	LLMOutputTokens int

	ToolCalls         int
	ToolCallDurations []time.Duration

	FirstResponseLatency float64 // seconds, zero until first response
	AvgResponseLatency   float64 // seconds, running mean
	ResponseCount        int

	Events []Event
}

// Performance summarizes latency behavior of a finished call.
type Performance struct {
	FirstResponseLatency float64 `json:"first_response_latency"`
	AvgResponseLatency   float64 `json:"avg_response_latency"`
	TotalResponses       int     `json:"total_responses"`
	AvgToolCallSeconds   float64 `json:"avg_tool_call_seconds"`
}

// Counters holds the raw usage totals of a finished call.
type Counters struct {
	STTSeconds      float64 `json:"stt_seconds"`
	LLMInputTokens  int     `json:"llm_input_tokens"`
	LLMOutputTokens int     `json:"llm_output_tokens"`
	TTSCharacters   int     `json:"tts_characters"`
	ToolCalls       int     `json:"tool_calls"`
}

// CompletedCall is the immutable record emitted exactly once per finalized
// call. Its shape is the stable contract for downstream reporting.
type CompletedCall struct {
	CallID      string      `json:"call_id"`
	Outcome     string      `json:"outcome"`
	Cost        Breakdown   `json:"cost"`
	Usage       Counters    `json:"usage"`
	Performance Performance `json:"performance"`
	DurationSec float64     `json:"duration_seconds"`
}

// Tracker is the process-wide registry of per-call metrics.
// Safe for concurrent use by multiple call tasks; the live and completed
// sets are disjoint and a call ID maps to at most one live accumulator.
type Tracker struct {
	mu        sync.Mutex
	active    map[string]*CallMetrics
	completed []CompletedCall
	now       func() time.Time
}

// NewTracker creates an empty metrics tracker.
func NewTracker() *Tracker {
	return &Tracker{
		active: make(map[string]*CallMetrics),
		now:    time.Now,
	}
}

// StartCall registers a new live accumulator for callID.
// Fails if the call is already being tracked.
func (t *Tracker) StartCall(callID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.active[callID]; ok {
		return fmt.Errorf("call %s already tracked", callID)
	}
	t.active[callID] = &CallMetrics{
		CallID:    callID,
		StartTime: t.now(),
	}
	slog.Info("started tracking call metrics", "call_id", callID)
	return nil
}

// RecordEvent appends a timestamped event. No-op for unknown call IDs so
// post-finalization stragglers cannot fail the caller.
func (t *Tracker) RecordEvent(callID, eventType string, data map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recordEventLocked(callID, eventType, data)
}

func (t *Tracker) recordEventLocked(callID, eventType string, data map[string]any) {
	m, ok := t.active[callID]
	if !ok {
		return
	}
	m.Events = append(m.Events, Event{Timestamp: t.now(), Type: eventType, Data: data})
}

// UpdateSTT adds transcribed audio seconds.
func (t *Tracker) UpdateSTT(callID string, seconds float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.active[callID]; ok {
		m.STTSeconds += seconds
	}
}

// UpdateLLM adds token usage from one reasoning step.
func (t *Tracker) UpdateLLM(callID string, inputTokens, outputTokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.active[callID]; ok {
		m.LLMInputTokens += inputTokens
		m.LLMOutputTokens += outputTokens
	}
}

// UpdateTTS adds synthesized characters and records an agent_speaking event.
func (t *Tracker) UpdateTTS(callID string, characters int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.active[callID]; ok {
		m.TTSCharacters += characters
		t.recordEventLocked(callID, "agent_speaking", map[string]any{"characters": characters})
	}
}

// RecordToolCall counts one tool invocation with its duration.
func (t *Tracker) RecordToolCall(callID, toolName string, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m, ok := t.active[callID]; ok {
		m.ToolCalls++
		m.ToolCallDurations = append(m.ToolCallDurations, duration)
		t.recordEventLocked(callID, "tool_call", map[string]any{
			"tool_name": toolName,
			"duration":  duration.Seconds(),
		})
	}
}

// RecordResponseLatency records one response latency in seconds.
// The first latency is kept as first_response_latency; subsequent ones
// update the running mean.
func (t *Tracker) RecordResponseLatency(callID string, latency float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.active[callID]
	if !ok {
		return
	}
	if m.ResponseCount == 0 {
		m.FirstResponseLatency = latency
		slog.Info("first response latency", "call_id", callID, "latency_s", latency)
	}
	total := m.AvgResponseLatency*float64(m.ResponseCount) + latency
	m.ResponseCount++
	m.AvgResponseLatency = total / float64(m.ResponseCount)
}

// EndCall finalizes the call, removes it from the live set, and appends the
// completed record. The second call for the same ID reports ok=false and has
// no effect, so duplicate finalization is safe.
func (t *Tracker) EndCall(callID, outcome string) (CompletedCall, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	m, ok := t.active[callID]
	if !ok {
		return CompletedCall{}, false
	}
	delete(t.active, callID)

	endedAt := t.now()
	record := CompletedCall{
		CallID:  callID,
		Outcome: outcome,
		Cost:    CalculateCost(m, endedAt),
		Usage: Counters{
			STTSeconds:      round1(m.STTSeconds),
			LLMInputTokens:  m.LLMInputTokens,
			LLMOutputTokens: m.LLMOutputTokens,
			TTSCharacters:   m.TTSCharacters,
			ToolCalls:       m.ToolCalls,
		},
		Performance: Performance{
			FirstResponseLatency: round2(m.FirstResponseLatency),
			AvgResponseLatency:   round2(m.AvgResponseLatency),
			TotalResponses:       m.ResponseCount,
			AvgToolCallSeconds:   round2(avgToolSeconds(m.ToolCallDurations)),
		},
		DurationSec: round1(endedAt.Sub(m.StartTime).Seconds()),
	}
	t.completed = append(t.completed, record)

	slog.Info("call metrics summary",
		"call_id", callID,
		"outcome", outcome,
		"duration_min", record.Cost.DurationMinutes,
		"total_cost", record.Cost.Total,
		"cost_per_minute", record.Cost.PerMinute,
		"tool_calls", record.Usage.ToolCalls,
		"first_response_s", record.Performance.FirstResponseLatency,
		"avg_response_s", record.Performance.AvgResponseLatency)

	return record, true
}

// Active returns the number of live calls.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Completed returns a copy of all finalized call records.
func (t *Tracker) Completed() []CompletedCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]CompletedCall, len(t.completed))
	copy(out, t.completed)
	return out
}

// Stats aggregates cost across all completed calls.
type Stats struct {
	TotalCalls           int     `json:"total_calls"`
	TotalCost            float64 `json:"total_cost"`
	TotalDurationMinutes float64 `json:"total_duration_minutes"`
	AvgCostPerMinute     float64 `json:"avg_cost_per_minute"`
	AvgCostPerCall       float64 `json:"avg_cost_per_call"`
}

// Stats returns aggregate statistics over completed calls.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.completed) == 0 {
		return Stats{}
	}

	var cost, minutes float64
	for _, c := range t.completed {
		cost += c.Cost.Total
		minutes += c.Cost.DurationMinutes
	}
	perMinute := 0.0
	if minutes > 0 {
		perMinute = cost / minutes
	}
	return Stats{
		TotalCalls:           len(t.completed),
		TotalCost:            round4(cost),
		TotalDurationMinutes: round2(minutes),
		AvgCostPerMinute:     round4(perMinute),
		AvgCostPerCall:       round4(cost / float64(len(t.completed))),
	}
}

func avgToolSeconds(durations []time.Duration) float64 {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total.Seconds() / float64(len(durations))
}

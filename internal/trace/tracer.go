package trace

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/callvox/salesagent/internal/usage"
)

const maxIOLen = 500

// sink is the persistence surface the tracer writes to. *Store satisfies
// it against PostgreSQL.
type sink interface {
	CreateTrace(id, callID, phone, metadata string) error
	EndTrace(id, outcome, metadata string, totalCost float64) error
	CreateGeneration(g Generation) error
	UpdateGeneration(g Generation) error
	CreateSpan(sp Span) error
}

type traceMsg struct {
	kind string // "gen_create", "gen_update", "span", "end"
	gen  Generation
	span Span
	// end fields
	outcome   string
	metadata  string
	totalCost float64
}

// Tracer records the observability timeline of one call, writing
// asynchronously via a buffered channel so call handling never blocks on
// the database. All methods are nil-safe (no-op on nil receiver), which is
// how the system degrades when tracing is not configured. Recording after
// End is a no-op, never a panic.
type Tracer struct {
	store   sink
	traceID string
	ch      chan traceMsg
	done    chan struct{}
	endOnce sync.Once

	mu      sync.Mutex
	closed  bool
	openGen string
}

// New creates a tracer for one call. Returns nil when store is nil, so
// callers can thread a disabled tracer through without branching.
func New(store *Store, callID, phone string) *Tracer {
	if store == nil {
		return nil
	}
	return newTracer(store, callID, phone)
}

func newTracer(store sink, callID, phone string) *Tracer {
	t := &Tracer{
		store:   store,
		traceID: uuid.NewString(),
		ch:      make(chan traceMsg, 64),
		done:    make(chan struct{}),
	}
	if err := store.CreateTrace(t.traceID, callID, phone, ""); err != nil {
		slog.Warn("trace create failed, tracing disabled for call", "call_id", callID, "error", err)
		return nil
	}
	go t.drain()
	return t
}

func (t *Tracer) drain() {
	defer close(t.done)
	for msg := range t.ch {
		t.handle(msg)
	}
}

func (t *Tracer) handle(m traceMsg) {
	handlers := map[string]func() error{
		"gen_create": func() error { return t.store.CreateGeneration(m.gen) },
		"gen_update": func() error { return t.store.UpdateGeneration(m.gen) },
		"span":       func() error { return t.store.CreateSpan(m.span) },
		"end":        func() error { return t.store.EndTrace(t.traceID, m.outcome, m.metadata, m.totalCost) },
	}
	fn, ok := handlers[m.kind]
	if !ok {
		return
	}
	if err := fn(); err != nil {
		slog.Warn("trace write failed", "kind", m.kind, "error", err)
	}
}

// send enqueues under the same lock End closes under, so a late recording
// drops instead of hitting a closed channel.
func (t *Tracer) send(m traceMsg) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.ch <- m
}

// RecordSTT records one transcription with its estimated cost.
func (t *Tracer) RecordSTT(transcript string, audioSeconds float64, duration time.Duration) {
	if t == nil {
		return
	}
	t.send(traceMsg{
		kind: "span",
		span: Span{
			ID:         uuid.NewString(),
			TraceID:    t.traceID,
			Kind:       "stt",
			Name:       "transcription",
			StartedAt:  time.Now().Add(-duration),
			DurationMs: float64(duration.Milliseconds()),
			Output:     truncate(transcript, maxIOLen),
			Cost:       usage.STTCost(audioSeconds),
			Status:     "ok",
		},
	})
}

// StartGeneration opens a model turn and returns its ID for EndGeneration.
// At most one generation is open at a time; an unfinished predecessor is
// closed as abandoned before the new one opens.
func (t *Tracer) StartGeneration(model, input string) string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ""
	}
	if t.openGen != "" {
		slog.Warn("generation left open, closing as abandoned", "trace_id", t.traceID, "generation_id", t.openGen)
		t.ch <- traceMsg{kind: "gen_update", gen: Generation{ID: t.openGen, Status: "abandoned"}}
	}
	id := uuid.NewString()
	t.openGen = id
	t.ch <- traceMsg{
		kind: "gen_create",
		gen: Generation{
			ID:        id,
			TraceID:   t.traceID,
			Model:     model,
			Input:     truncate(input, maxIOLen),
			StartedAt: time.Now(),
		},
	}
	return id
}

// EndGeneration closes a model turn with its output and token usage.
func (t *Tracer) EndGeneration(genID, output string, inputTokens, outputTokens int, duration time.Duration) {
	if t == nil || genID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if t.openGen == genID {
		t.openGen = ""
	}
	t.ch <- traceMsg{
		kind: "gen_update",
		gen: Generation{
			ID:           genID,
			Output:       truncate(output, maxIOLen),
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			Cost:         usage.LLMCost(inputTokens, outputTokens),
			DurationMs:   float64(duration.Milliseconds()),
			Status:       "completed",
		},
	}
}

// RecordTTS records one synthesis with its estimated cost.
func (t *Tracer) RecordTTS(text string, characters int, duration time.Duration) {
	if t == nil {
		return
	}
	t.send(traceMsg{
		kind: "span",
		span: Span{
			ID:         uuid.NewString(),
			TraceID:    t.traceID,
			Kind:       "tts",
			Name:       "synthesis",
			StartedAt:  time.Now().Add(-duration),
			DurationMs: float64(duration.Milliseconds()),
			Input:      truncate(text, maxIOLen),
			Cost:       usage.TTSCost(characters),
			Status:     "ok",
		},
	})
}

// RecordTool records one tool invocation.
func (t *Tracer) RecordTool(name, args, result string, duration time.Duration, callErr error) {
	if t == nil {
		return
	}
	sp := Span{
		ID:         uuid.NewString(),
		TraceID:    t.traceID,
		Kind:       "tool",
		Name:       name,
		StartedAt:  time.Now().Add(-duration),
		DurationMs: float64(duration.Milliseconds()),
		Input:      truncate(args, maxIOLen),
		Output:     truncate(result, maxIOLen),
		Status:     "ok",
	}
	if callErr != nil {
		sp.Status = "error"
		sp.Error = truncate(callErr.Error(), maxIOLen)
	}
	t.send(traceMsg{kind: "span", span: sp})
}

// End finalizes the trace, drains pending writes, and stops the background
// goroutine. Safe to call multiple times; only the first call has effect.
// Recordings arriving after End are dropped.
func (t *Tracer) End(outcome, metadata string, totalCost float64) {
	if t == nil {
		return
	}
	t.endOnce.Do(func() {
		t.mu.Lock()
		t.ch <- traceMsg{kind: "end", outcome: outcome, metadata: metadata, totalCost: totalCost}
		t.closed = true
		close(t.ch)
		t.mu.Unlock()
		<-t.done
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

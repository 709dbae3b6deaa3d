package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/callvox/salesagent/internal/engine"
	"github.com/callvox/salesagent/internal/metrics"
	"github.com/callvox/salesagent/internal/resilience"
	"github.com/callvox/salesagent/internal/room"
	"github.com/callvox/salesagent/internal/trace"
	"github.com/callvox/salesagent/internal/usage"
)

// State is the call session lifecycle state.
type State string

const (
	StateInitializing          State = "initializing"
	StateConnecting            State = "connecting"
	StateWaitingForParticipant State = "waiting_for_participant"
	StateActive                State = "active"
	StateFinalizing            State = "finalizing"
	StateCompleted             State = "completed"
	StateTimedOut              State = "timed_out"
	StateErrored               State = "errored"
)

// Outcomes recorded on finalization.
const (
	OutcomeCompleted = "completed"
	OutcomeTimedOut  = "timed_out"
	OutcomeErrored   = "errored"
)

// ToolInvoker routes a named tool call to the tool layer. The session does
// not interpret tool semantics, only their name, duration, and outcome.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// Config assembles one call session. Room, Engine, and Tracker are
// required; Tracer may be nil when tracing is disabled.
type Config struct {
	CallID       string
	SystemPrompt string
	Model        string
	Room         room.Client
	Engine       engine.Engine
	Tracker      *usage.Tracker
	Tracer       *trace.Tracer
	RoomBreaker  *resilience.Breaker
	RetryPolicy  resilience.Policy
	Tools        ToolInvoker
	Utterances   <-chan engine.Utterance
	JoinTimeout  time.Duration
	MaxDuration  time.Duration
}

func (c *Config) validate() error {
	if c.Room == nil {
		return fmt.Errorf("session needs a room client")
	}
	if c.Engine == nil {
		return fmt.Errorf("session needs a conversation engine")
	}
	if c.Tracker == nil {
		return fmt.Errorf("session needs a metrics tracker")
	}
	if c.CallID == "" {
		c.CallID = uuid.NewString()
	}
	if c.RoomBreaker == nil {
		c.RoomBreaker = resilience.NewBreaker(resilience.BreakerConfig{Name: "room"})
	}
	if c.RetryPolicy == (resilience.Policy{}) {
		c.RetryPolicy = resilience.DefaultPolicy()
	}
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 5 * time.Minute
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	return nil
}

// Session drives one call from connection to finalization.
type Session struct {
	cfg Config

	mu    sync.Mutex
	state State

	finalOnce sync.Once
	outcome   string
	record    usage.CompletedCall
}

// NewSession validates cfg and builds a session in the initializing state.
func NewSession(cfg Config) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Session{cfg: cfg, state: StateInitializing}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	slog.Info("call state", "call_id", s.cfg.CallID, "state", next)
}

// Outcome returns the terminal outcome, empty until finalized.
func (s *Session) Outcome() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// Record returns the completed-call record produced at finalization.
func (s *Session) Record() usage.CompletedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// Run executes the call lifecycle and returns the terminal outcome.
// Finalization runs exactly once on every path, including panics in the
// event loop, because it is deferred from here.
func (s *Session) Run(ctx context.Context) (string, error) {
	if err := s.cfg.Tracker.StartCall(s.cfg.CallID); err != nil {
		return "", fmt.Errorf("call %s: %w", s.cfg.CallID, err)
	}
	metrics.CallsTotal.Inc()
	metrics.CallsActive.Inc()

	if s.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.MaxDuration)
		defer cancel()
	}

	outcome, runErr := OutcomeErrored, error(nil)
	defer func() { s.finalize(outcome) }()

	if err := s.connect(ctx); err != nil {
		runErr = err
		return outcome, runErr
	}

	participant, err := s.waitForParticipant(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = OutcomeTimedOut
			slog.Warn("no participant joined before timeout", "call_id", s.cfg.CallID)
			return outcome, nil
		}
		runErr = err
		return outcome, runErr
	}
	slog.Info("call active", "call_id", s.cfg.CallID, "participant", participant.Identity)

	if err := s.active(ctx); err != nil {
		runErr = err
		return outcome, runErr
	}

	outcome = OutcomeCompleted
	return outcome, nil
}

// connect joins the media room with retry, each attempt guarded by the
// room breaker. A fast-failing open breaker is not retried.
func (s *Session) connect(ctx context.Context) error {
	s.setState(StateConnecting)
	err := resilience.Retry(ctx, s.cfg.RetryPolicy, func(ctx context.Context) error {
		return s.cfg.RoomBreaker.Do(ctx, s.cfg.Room.Connect)
	})
	if err != nil {
		metrics.Errors.WithLabelValues("room", "connect").Inc()
		return fmt.Errorf("room connect: %w", err)
	}
	return nil
}

func (s *Session) waitForParticipant(ctx context.Context) (*room.Participant, error) {
	s.setState(StateWaitingForParticipant)
	joinCtx, cancel := context.WithTimeout(ctx, s.cfg.JoinTimeout)
	defer cancel()

	p, err := s.cfg.Room.WaitForParticipant(joinCtx)
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			metrics.Errors.WithLabelValues("room", "join").Inc()
		}
		return nil, err
	}
	return p, nil
}

// active runs the conversation event loop, feeding usage, metrics, and
// trace from engine events.
func (s *Session) active(ctx context.Context) error {
	s.setState(StateActive)

	info := room.ParseCallInfo(s.cfg.Room.Metadata())
	call := engine.Call{
		ID:           s.cfg.CallID,
		Phone:        info.Phone,
		SystemPrompt: s.cfg.SystemPrompt,
		Utterances:   s.cfg.Utterances,
	}

	events, err := s.cfg.Engine.Run(ctx, call)
	if err != nil {
		metrics.Errors.WithLabelValues("engine", "start").Inc()
		return fmt.Errorf("engine start: %w", err)
	}

	tracker := s.cfg.Tracker
	tracer := s.cfg.Tracer
	left := s.cfg.Room.ParticipantLeft()
	var lastSpeech time.Time
	var genID string
	var genStart time.Time

	for {
		select {
		case identity := <-left:
			slog.Info("participant left, ending call", "call_id", s.cfg.CallID, "identity", identity)
			tracker.RecordEvent(s.cfg.CallID, "participant_left", map[string]any{"identity": identity})
			go drainEvents(events)
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case engine.EventSpeechRecognized:
				lastSpeech = time.Now()
				tracker.UpdateSTT(s.cfg.CallID, ev.AudioSeconds)
				tracker.RecordEvent(s.cfg.CallID, "user_speaking", map[string]any{"text_len": len(ev.Text)})
				tracer.RecordSTT(ev.Text, ev.AudioSeconds, ev.Duration)

			case engine.EventReasoningStarted:
				genStart = time.Now()
				genID = tracer.StartGeneration(s.cfg.Model, "")

			case engine.EventReasoningEnded:
				tracker.UpdateLLM(s.cfg.CallID, ev.InputTokens, ev.OutputTokens)
				tracer.EndGeneration(genID, ev.Text, ev.InputTokens, ev.OutputTokens, time.Since(genStart))
				genID = ""

			case engine.EventToolRequested:
				s.invokeTool(ctx, ev)

			case engine.EventSpeechSynthesized:
				tracker.UpdateTTS(s.cfg.CallID, ev.Characters)
				tracer.RecordTTS(ev.Text, ev.Characters, ev.Duration)
				if !lastSpeech.IsZero() {
					latency := time.Since(lastSpeech).Seconds()
					tracker.RecordResponseLatency(s.cfg.CallID, latency)
					metrics.ResponseLatency.Observe(latency)
					lastSpeech = time.Time{}
				}

			case engine.EventCompleted:
				// cancellation and max-duration expiry end the call normally
				if ev.Err != nil && !errors.Is(ev.Err, context.Canceled) && !errors.Is(ev.Err, context.DeadlineExceeded) {
					metrics.Errors.WithLabelValues("engine", "run").Inc()
					return fmt.Errorf("engine: %w", ev.Err)
				}
			}
		}
	}
}

// drainEvents unblocks the engine once the session stops consuming,
// answering any in-flight tool request so its goroutine can finish. The
// engine winds down on its own when the room disconnect closes the
// utterance stream.
func drainEvents(events <-chan engine.Event) {
	for ev := range events {
		if ev.Kind == engine.EventToolRequested && ev.Reply != nil {
			ev.Reply <- engine.ToolResult{Err: context.Canceled}
		}
	}
}

// invokeTool routes one tool request to the tool layer, records its name,
// duration, and outcome, and replies to the engine.
func (s *Session) invokeTool(ctx context.Context, ev engine.Event) {
	start := time.Now()
	var result string
	var err error
	if s.cfg.Tools == nil {
		err = fmt.Errorf("no tool layer configured")
	} else {
		result, err = s.cfg.Tools.Invoke(ctx, ev.Tool, ev.ToolArgs)
	}
	elapsed := time.Since(start)

	s.cfg.Tracker.RecordToolCall(s.cfg.CallID, ev.Tool, elapsed)
	metrics.ToolCallDuration.WithLabelValues(ev.Tool).Observe(elapsed.Seconds())
	s.cfg.Tracer.RecordTool(ev.Tool, string(ev.ToolArgs), result, elapsed, err)
	if err != nil {
		metrics.Errors.WithLabelValues("tools", ev.Tool).Inc()
	}

	if ev.Reply != nil {
		ev.Reply <- engine.ToolResult{Value: result, Err: err}
	}
}

// finalize runs the teardown path exactly once: close out usage, end the
// trace, disconnect the room, settle gauges.
func (s *Session) finalize(outcome string) {
	s.finalOnce.Do(func() {
		s.setState(StateFinalizing)

		record, ok := s.cfg.Tracker.EndCall(s.cfg.CallID, outcome)
		if ok {
			metrics.CallDuration.Observe(record.DurationSec)
			metrics.CallCost.Add(record.Cost.Total)
		}
		metrics.CallOutcomes.WithLabelValues(outcome).Inc()
		metrics.CallsActive.Dec()

		s.cfg.Tracer.End(outcome, s.cfg.Room.Metadata(), record.Cost.Total)

		if err := s.cfg.Room.Disconnect(); err != nil {
			slog.Warn("room disconnect failed", "call_id", s.cfg.CallID, "error", err)
		}

		s.mu.Lock()
		s.outcome = outcome
		s.record = record
		switch outcome {
		case OutcomeCompleted:
			s.state = StateCompleted
		case OutcomeTimedOut:
			s.state = StateTimedOut
		default:
			s.state = StateErrored
		}
		s.mu.Unlock()

		slog.Info("call finalized", "call_id", s.cfg.CallID, "outcome", outcome, "cost", record.Cost.Total)
	})
}

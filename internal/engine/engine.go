package engine

import (
	"context"
	"encoding/json"
	"time"
)

// EventKind discriminates conversation events.
type EventKind string

const (
	EventSpeechRecognized  EventKind = "speech_recognized"
	EventReasoningStarted  EventKind = "reasoning_started"
	EventReasoningEnded    EventKind = "reasoning_ended"
	EventToolRequested     EventKind = "tool_requested"
	EventSpeechSynthesized EventKind = "speech_synthesized"
	EventCompleted         EventKind = "completed"
)

// ToolResult is the consumer's answer to a tool request.
type ToolResult struct {
	Value string
	Err   error
}

// Event is one step of the conversation timeline. Field usage depends on
// Kind: recognized speech carries Text and AudioSeconds, reasoning end
// carries Text and token counts. A tool request carries Tool/ToolArgs and
// a Reply channel the consumer must answer on; the engine blocks on it.
type Event struct {
	Kind         EventKind
	Text         string
	AudioSeconds float64
	InputTokens  int
	OutputTokens int
	Characters   int
	Duration     time.Duration
	Tool         string
	ToolArgs     json.RawMessage
	Reply        chan<- ToolResult
	Err          error
}

// Utterance is one user speech segment delivered by the transcription
// layer.
type Utterance struct {
	Text         string
	AudioSeconds float64
	Duration     time.Duration // transcription latency
}

// Call is everything the engine needs to converse on one call. The engine
// does not invoke tools itself; it requests them over the event stream.
type Call struct {
	ID           string
	Phone        string
	SystemPrompt string
	Utterances   <-chan Utterance
}

// Engine runs the conversation loop for one call and reports progress as
// events. The returned channel closes after EventCompleted, or when ctx is
// cancelled.
type Engine interface {
	Run(ctx context.Context, call Call) (<-chan Event, error)
}

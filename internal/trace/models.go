package trace

import "time"

// Trace represents one voice call end to end.
type Trace struct {
	ID              string     `json:"id"`
	CallID          string     `json:"call_id"`
	Phone           string     `json:"phone,omitempty"`
	Metadata        string     `json:"metadata,omitempty"`
	Outcome         string     `json:"outcome,omitempty"`
	TotalCost       float64    `json:"total_cost,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	GenerationCount int        `json:"generation_count,omitempty"`
}

// Generation represents one language-model turn within a call.
type Generation struct {
	ID           string    `json:"id"`
	TraceID      string    `json:"trace_id"`
	Model        string    `json:"model"`
	Input        string    `json:"input,omitempty"`
	Output       string    `json:"output,omitempty"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	StartedAt    time.Time `json:"started_at"`
	DurationMs   float64   `json:"duration_ms,omitempty"`
	Status       string    `json:"status"`
}

// Span represents a non-generation observation: a transcription, a
// synthesis, or a tool invocation.
type Span struct {
	ID         string    `json:"id"`
	TraceID    string    `json:"trace_id"`
	Kind       string    `json:"kind"` // "stt", "tts", "tool"
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Input      string    `json:"input,omitempty"`
	Output     string    `json:"output,omitempty"`
	Cost       float64   `json:"cost"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"

	"github.com/callvox/salesagent/internal/resilience"
)

const maxToolRounds = 4

// ModelEngine converses via the openai-agents-go SDK. A nil provider lets
// the SDK use its default OpenAI client from the environment.
type ModelEngine struct {
	provider  agents.ModelProvider
	model     string
	maxTokens int
	breaker   *resilience.Breaker

	// injectable for tests
	generateFn func(ctx context.Context, systemPrompt, input string) (string, int, int, time.Duration, error)
}

// NewModelEngine creates an engine for the given model. breaker guards
// every model call and may not be nil.
func NewModelEngine(provider agents.ModelProvider, model string, maxTokens int, breaker *resilience.Breaker) *ModelEngine {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if maxTokens <= 0 {
		maxTokens = 300
	}
	e := &ModelEngine{provider: provider, model: model, maxTokens: maxTokens, breaker: breaker}
	e.generateFn = e.generate
	return e
}

// Run drives the conversation until the utterance stream closes or ctx is
// cancelled. Events are emitted in timeline order; the channel closes after
// the final EventCompleted.
func (e *ModelEngine) Run(ctx context.Context, call Call) (<-chan Event, error) {
	if call.Utterances == nil {
		return nil, fmt.Errorf("call %s has no utterance source", call.ID)
	}

	events := make(chan Event, 16)
	go func() {
		defer close(events)
		e.loop(ctx, call, events)
	}()
	return events, nil
}

func (e *ModelEngine) loop(ctx context.Context, call Call, events chan<- Event) {
	var history strings.Builder

	for {
		select {
		case <-ctx.Done():
			events <- Event{Kind: EventCompleted, Err: ctx.Err()}
			return
		case utt, ok := <-call.Utterances:
			if !ok {
				events <- Event{Kind: EventCompleted}
				return
			}
			events <- Event{
				Kind:         EventSpeechRecognized,
				Text:         utt.Text,
				AudioSeconds: utt.AudioSeconds,
				Duration:     utt.Duration,
			}
			history.WriteString("Usuario: " + utt.Text + "\n")

			reply, err := e.respondWithTools(ctx, call, &history, events)
			if err != nil {
				events <- Event{Kind: EventCompleted, Err: err}
				return
			}
			if reply == "" {
				continue
			}
			history.WriteString("Carolina: " + reply + "\n")
			events <- Event{
				Kind:       EventSpeechSynthesized,
				Text:       reply,
				Characters: len(reply),
			}
		}
	}
}

// respondWithTools runs model turns until the model produces speech instead
// of a tool directive. Tool directives are handed to the event consumer and
// the engine waits for the result before the next turn.
func (e *ModelEngine) respondWithTools(ctx context.Context, call Call, history *strings.Builder, events chan<- Event) (string, error) {
	for round := 0; round <= maxToolRounds; round++ {
		events <- Event{Kind: EventReasoningStarted}
		output, inTok, outTok, duration, err := e.generateFn(ctx, call.SystemPrompt, history.String())
		if err != nil {
			return "", err
		}
		events <- Event{
			Kind:         EventReasoningEnded,
			Text:         output,
			InputTokens:  inTok,
			OutputTokens: outTok,
			Duration:     duration,
		}

		directive, isTool := parseToolDirective(output)
		if !isTool {
			return output, nil
		}

		result, err := e.requestTool(ctx, directive, events)
		if err != nil {
			return "", err
		}
		if result.Err != nil {
			slog.Warn("tool call failed", "call_id", call.ID, "tool", directive.Tool, "error", result.Err)
			history.WriteString(fmt.Sprintf("[herramienta %s falló: %v]\n", directive.Tool, result.Err))
			continue
		}
		history.WriteString(fmt.Sprintf("[resultado de %s: %s]\n", directive.Tool, result.Value))
	}
	return "", fmt.Errorf("tool rounds exceeded %d on call %s", maxToolRounds, call.ID)
}

// requestTool emits a tool request and blocks until the consumer replies or
// ctx is cancelled.
func (e *ModelEngine) requestTool(ctx context.Context, d toolDirective, events chan<- Event) (ToolResult, error) {
	reply := make(chan ToolResult, 1)
	events <- Event{
		Kind:     EventToolRequested,
		Tool:     d.Tool,
		ToolArgs: d.Args,
		Reply:    reply,
	}
	select {
	case res := <-reply:
		return res, nil
	case <-ctx.Done():
		return ToolResult{}, ctx.Err()
	}
}

// generate runs one model turn and returns the output with estimated token
// usage. Streaming responses carry no usage counts, so tokens are estimated
// from text length.
func (e *ModelEngine) generate(ctx context.Context, systemPrompt, input string) (string, int, int, time.Duration, error) {
	agent := agents.New("assistant").
		WithInstructions(systemPrompt).
		WithModel(e.model).
		WithModelSettings(modelsettings.ModelSettings{
			MaxTokens: param.NewOpt(int64(e.maxTokens)),
		})

	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   e.provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	var textBuf strings.Builder
	start := time.Now()

	err := e.breaker.Do(ctx, func(ctx context.Context) error {
		events, errCh, err := runner.RunStreamedChan(ctx, agent, input)
		if err != nil {
			return fmt.Errorf("llm stream start: %w", err)
		}
		for ev := range events {
			raw, ok := ev.(agents.RawResponsesStreamEvent)
			if !ok {
				continue
			}
			if raw.Data.Type != "response.output_text.delta" {
				continue
			}
			textBuf.WriteString(raw.Data.Delta)
		}
		if streamErr := <-errCh; streamErr != nil {
			return fmt.Errorf("llm stream: %w", streamErr)
		}
		return nil
	})
	if err != nil {
		return "", 0, 0, 0, err
	}

	output := textBuf.String()
	return output, estimateTokens(systemPrompt + input), estimateTokens(output), time.Since(start), nil
}

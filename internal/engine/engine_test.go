package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/callvox/salesagent/internal/resilience"
)

func TestParseToolDirective(t *testing.T) {
	d, ok := parseToolDirective(`{"tool": "qualify_lead", "args": {"capital_usd": 2000}}`)
	if !ok {
		t.Fatal("expected directive to parse")
	}
	if d.Tool != "qualify_lead" {
		t.Errorf("expected qualify_lead, got %q", d.Tool)
	}

	if _, ok := parseToolDirective("Hola, soy Carolina."); ok {
		t.Error("plain speech must not parse as directive")
	}
	if _, ok := parseToolDirective(`{"args": {}}`); ok {
		t.Error("directive without tool name must not parse")
	}
	if _, ok := parseToolDirective(`  {"tool": "x"}  `); !ok {
		t.Error("surrounding whitespace must be tolerated")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := estimateTokens(""); got != 0 {
		t.Errorf("empty text: expected 0, got %d", got)
	}
	if got := estimateTokens("abc"); got != 1 {
		t.Errorf("short text: expected 1, got %d", got)
	}
	if got := estimateTokens("abcdefgh"); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
}

func newScriptedEngine(outputs []string) *ModelEngine {
	e := NewModelEngine(nil, "gpt-4o-mini", 300, resilience.NewBreaker(resilience.BreakerConfig{Name: "model"}))
	i := 0
	e.generateFn = func(context.Context, string, string) (string, int, int, time.Duration, error) {
		out := outputs[i%len(outputs)]
		i++
		return out, 10, 5, 50 * time.Millisecond, nil
	}
	return e
}

// collect drains the event stream, answering tool requests with result so
// the engine does not block waiting on a reply.
func collect(t *testing.T, events <-chan Event, result ToolResult) []Event {
	t.Helper()
	var all []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return all
			}
			all = append(all, ev)
			if ev.Kind == EventToolRequested {
				ev.Reply <- result
			}
		case <-timeout:
			t.Fatal("timed out collecting events")
		}
	}
}

func TestRun_SpeechTurn(t *testing.T) {
	e := newScriptedEngine([]string{"Hola, soy Carolina. ¿Cómo estás?"})

	utterances := make(chan Utterance, 1)
	utterances <- Utterance{Text: "Hola", AudioSeconds: 1.5}
	close(utterances)

	events, err := e.Run(context.Background(), Call{ID: "c1", Utterances: utterances})
	if err != nil {
		t.Fatal(err)
	}
	all := collect(t, events, ToolResult{})

	wantKinds := []EventKind{
		EventSpeechRecognized,
		EventReasoningStarted,
		EventReasoningEnded,
		EventSpeechSynthesized,
		EventCompleted,
	}
	if len(all) != len(wantKinds) {
		t.Fatalf("expected %d events, got %d: %+v", len(wantKinds), len(all), all)
	}
	for i, want := range wantKinds {
		if all[i].Kind != want {
			t.Errorf("event %d: expected %s, got %s", i, want, all[i].Kind)
		}
	}
	if all[0].AudioSeconds != 1.5 {
		t.Errorf("recognized speech must carry audio seconds, got %v", all[0].AudioSeconds)
	}
	if all[3].Characters == 0 {
		t.Error("synthesized speech must carry character count")
	}
	if all[4].Err != nil {
		t.Errorf("clean completion must carry no error, got %v", all[4].Err)
	}
}

func TestRun_ToolRound(t *testing.T) {
	e := newScriptedEngine([]string{
		`{"tool": "recommend_account_type", "args": {"capital": 2000}}`,
		"Te recomiendo la cuenta Raw Spreads.",
	})

	utterances := make(chan Utterance, 1)
	utterances <- Utterance{Text: "Tengo 2000 dólares", AudioSeconds: 2}
	close(utterances)

	events, err := e.Run(context.Background(), Call{ID: "c1", Utterances: utterances})
	if err != nil {
		t.Fatal(err)
	}
	all := collect(t, events, ToolResult{Value: `{"recommended_account":"Raw Spreads"}`})

	var toolEvents, synthEvents int
	for _, ev := range all {
		switch ev.Kind {
		case EventToolRequested:
			toolEvents++
			if ev.Tool != "recommend_account_type" {
				t.Errorf("unexpected tool: %s", ev.Tool)
			}
			var args struct {
				Capital float64 `json:"capital"`
			}
			if err := json.Unmarshal(ev.ToolArgs, &args); err != nil || args.Capital != 2000 {
				t.Errorf("tool request must carry args, got %s (%v)", ev.ToolArgs, err)
			}
		case EventSpeechSynthesized:
			synthEvents++
		}
	}
	if toolEvents != 1 {
		t.Errorf("expected 1 tool request, got %d", toolEvents)
	}
	if synthEvents != 1 {
		t.Errorf("expected 1 synthesized reply, got %d", synthEvents)
	}
}

func TestRun_ToolFailureRecoversWithSpeech(t *testing.T) {
	e := newScriptedEngine([]string{
		`{"tool": "get_lead_history", "args": {}}`,
		"No encuentro tu historial, pero cuéntame de tu experiencia.",
	})

	utterances := make(chan Utterance, 1)
	utterances <- Utterance{Text: "Hola"}
	close(utterances)

	events, err := e.Run(context.Background(), Call{ID: "c1", Utterances: utterances})
	if err != nil {
		t.Fatal(err)
	}
	all := collect(t, events, ToolResult{Err: errors.New("database unavailable")})

	last := all[len(all)-1]
	if last.Kind != EventCompleted || last.Err != nil {
		t.Fatalf("tool failure must not end the call, got %s err=%v", last.Kind, last.Err)
	}
	var synth int
	for _, ev := range all {
		if ev.Kind == EventSpeechSynthesized {
			synth++
		}
	}
	if synth != 1 {
		t.Errorf("expected a spoken recovery, got %d synth events", synth)
	}
}

func TestRun_GenerateErrorCompletesWithError(t *testing.T) {
	e := NewModelEngine(nil, "gpt-4o-mini", 300, resilience.NewBreaker(resilience.BreakerConfig{Name: "model"}))
	boom := errors.New("backend down")
	e.generateFn = func(context.Context, string, string) (string, int, int, time.Duration, error) {
		return "", 0, 0, 0, boom
	}

	utterances := make(chan Utterance, 1)
	utterances <- Utterance{Text: "Hola"}
	close(utterances)

	events, err := e.Run(context.Background(), Call{ID: "c1", Utterances: utterances})
	if err != nil {
		t.Fatal(err)
	}
	all := collect(t, events, ToolResult{})

	last := all[len(all)-1]
	if last.Kind != EventCompleted {
		t.Fatalf("expected completed last, got %s", last.Kind)
	}
	if !errors.Is(last.Err, boom) {
		t.Errorf("expected backend error on completion, got %v", last.Err)
	}
}

func TestRun_RequiresUtteranceSource(t *testing.T) {
	e := newScriptedEngine([]string{"hola"})
	if _, err := e.Run(context.Background(), Call{ID: "c1"}); err == nil {
		t.Error("expected error without utterance source")
	}
}

package usage

import (
	"math"
	"testing"
	"time"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func newTestTracker() (*Tracker, *time.Time) {
	t := NewTracker()
	clock := time.Unix(1700000000, 0)
	t.now = func() time.Time { return clock }
	return t, &clock
}

func TestSTTCost_TwoMinutes(t *testing.T) {
	if got := STTCost(120); !approx(got, 0.012) {
		t.Errorf("120s of audio: expected $0.012, got %v", got)
	}
}

func TestCalculateCost_SumIdentity(t *testing.T) {
	m := &CallMetrics{
		StartTime:       time.Unix(1700000000, 0),
		STTSeconds:      120,
		LLMInputTokens:  200000,
		LLMOutputTokens: 100000,
		TTSCharacters:   40000,
	}
	b := CalculateCost(m, m.StartTime.Add(2*time.Minute))

	if !approx(b.STT, 0.012) {
		t.Errorf("stt: expected 0.012, got %v", b.STT)
	}
	// 200000*0.15/1M + 100000*0.60/1M = 0.03 + 0.06
	if !approx(b.LLM, 0.09) {
		t.Errorf("llm: expected 0.09, got %v", b.LLM)
	}
	// 40000 * 15/1M
	if !approx(b.TTS, 0.6) {
		t.Errorf("tts: expected 0.6, got %v", b.TTS)
	}
	if !approx(b.Total, round4(b.STT+b.LLM+b.TTS)) {
		t.Errorf("total %v must equal stt+llm+tts %v", b.Total, b.STT+b.LLM+b.TTS)
	}
	if !approx(b.DurationMinutes, 2.0) {
		t.Errorf("duration: expected 2.0, got %v", b.DurationMinutes)
	}
	if !approx(b.PerMinute, round4(b.Total/2)) {
		t.Errorf("per-minute: expected %v, got %v", round4(b.Total/2), b.PerMinute)
	}
}

func TestCalculateCost_ZeroDuration(t *testing.T) {
	start := time.Unix(1700000000, 0)
	m := &CallMetrics{StartTime: start, TTSCharacters: 1000}
	b := CalculateCost(m, start)

	if b.PerMinute != 0 {
		t.Errorf("zero-duration call must report cost_per_minute 0, got %v", b.PerMinute)
	}
	if b.Total == 0 {
		t.Error("expected nonzero total from tts usage")
	}
}

func TestCalculateCost_Deterministic(t *testing.T) {
	m := &CallMetrics{
		StartTime:       time.Unix(1700000000, 0),
		STTSeconds:      37.5,
		LLMInputTokens:  12345,
		LLMOutputTokens: 6789,
		TTSCharacters:   910,
	}
	end := m.StartTime.Add(93 * time.Second)
	if CalculateCost(m, end) != CalculateCost(m, end) {
		t.Error("identical inputs must produce identical breakdowns")
	}
}

func TestTracker_StartCallDuplicate(t *testing.T) {
	tr, _ := newTestTracker()
	if err := tr.StartCall("c1"); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := tr.StartCall("c1"); err == nil {
		t.Error("expected error starting an already-tracked call")
	}
	if tr.Active() != 1 {
		t.Errorf("expected 1 active call, got %d", tr.Active())
	}
}

func TestTracker_ResponseLatencies(t *testing.T) {
	tr, _ := newTestTracker()
	if err := tr.StartCall("c1"); err != nil {
		t.Fatal(err)
	}

	for _, l := range []float64{1.0, 2.0, 3.0} {
		tr.RecordResponseLatency("c1", l)
	}

	record, ok := tr.EndCall("c1", "completed")
	if !ok {
		t.Fatal("expected live call to finalize")
	}
	if !approx(record.Performance.FirstResponseLatency, 1.0) {
		t.Errorf("first latency: expected 1.0, got %v", record.Performance.FirstResponseLatency)
	}
	if !approx(record.Performance.AvgResponseLatency, 2.0) {
		t.Errorf("avg latency: expected 2.0, got %v", record.Performance.AvgResponseLatency)
	}
	if record.Performance.TotalResponses != 3 {
		t.Errorf("expected 3 responses, got %d", record.Performance.TotalResponses)
	}
}

func TestTracker_EndCallIdempotent(t *testing.T) {
	tr, clock := newTestTracker()
	if err := tr.StartCall("c1"); err != nil {
		t.Fatal(err)
	}
	tr.UpdateSTT("c1", 60)
	*clock = clock.Add(time.Minute)

	first, ok := tr.EndCall("c1", "completed")
	if !ok {
		t.Fatal("first end must succeed")
	}
	if first.CallID != "c1" || first.Outcome != "completed" {
		t.Errorf("unexpected record: %+v", first)
	}

	second, ok := tr.EndCall("c1", "completed")
	if ok {
		t.Error("second end must report ok=false")
	}
	if second != (CompletedCall{}) {
		t.Errorf("second end must return zero record, got %+v", second)
	}
	if got := len(tr.Completed()); got != 1 {
		t.Errorf("expected exactly 1 completed record, got %d", got)
	}
}

func TestTracker_UpdatesIgnoreUnknownCall(t *testing.T) {
	tr, _ := newTestTracker()

	tr.UpdateSTT("ghost", 10)
	tr.UpdateLLM("ghost", 1, 1)
	tr.UpdateTTS("ghost", 5)
	tr.RecordToolCall("ghost", "qualify_lead", time.Second)
	tr.RecordResponseLatency("ghost", 1.5)
	tr.RecordEvent("ghost", "user_speaking", nil)

	if tr.Active() != 0 {
		t.Errorf("unknown-call updates must not create state, active=%d", tr.Active())
	}
}

func TestTracker_ToolCallsAndEvents(t *testing.T) {
	tr, clock := newTestTracker()
	if err := tr.StartCall("c1"); err != nil {
		t.Fatal(err)
	}
	tr.RecordToolCall("c1", "qualify_lead", 2*time.Second)
	tr.RecordToolCall("c1", "schedule_callback", 4*time.Second)
	tr.UpdateTTS("c1", 150)
	*clock = clock.Add(30 * time.Second)

	record, ok := tr.EndCall("c1", "completed")
	if !ok {
		t.Fatal("expected finalization")
	}
	if record.Usage.ToolCalls != 2 {
		t.Errorf("expected 2 tool calls, got %d", record.Usage.ToolCalls)
	}
	if !approx(record.Performance.AvgToolCallSeconds, 3.0) {
		t.Errorf("expected avg tool duration 3s, got %v", record.Performance.AvgToolCallSeconds)
	}
	if record.Usage.TTSCharacters != 150 {
		t.Errorf("expected 150 tts characters, got %d", record.Usage.TTSCharacters)
	}
}

func TestTracker_Stats(t *testing.T) {
	tr, clock := newTestTracker()

	for _, id := range []string{"c1", "c2"} {
		if err := tr.StartCall(id); err != nil {
			t.Fatal(err)
		}
		tr.UpdateSTT(id, 60)
	}
	*clock = clock.Add(time.Minute)
	if _, ok := tr.EndCall("c1", "completed"); !ok {
		t.Fatal("c1 end failed")
	}
	*clock = clock.Add(time.Minute)
	if _, ok := tr.EndCall("c2", "completed"); !ok {
		t.Fatal("c2 end failed")
	}

	stats := tr.Stats()
	if stats.TotalCalls != 2 {
		t.Errorf("expected 2 calls, got %d", stats.TotalCalls)
	}
	if !approx(stats.TotalDurationMinutes, 3.0) {
		t.Errorf("expected 3 total minutes, got %v", stats.TotalDurationMinutes)
	}
	if !approx(stats.TotalCost, 0.012) {
		t.Errorf("expected total cost 0.012, got %v", stats.TotalCost)
	}
	if !approx(stats.AvgCostPerCall, 0.006) {
		t.Errorf("expected 0.006 per call, got %v", stats.AvgCostPerCall)
	}
}

func TestStats_Empty(t *testing.T) {
	tr, _ := newTestTracker()
	if got := tr.Stats(); got != (Stats{}) {
		t.Errorf("expected zero stats with no completed calls, got %+v", got)
	}
}

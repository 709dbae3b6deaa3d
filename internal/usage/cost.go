package usage

import (
	"math"
	"time"
)

// Per-unit prices (USD), OpenAI pricing as of 2025.
const (
	STTPricePerMinute   = 0.006             // whisper, per minute of audio
	LLMInputTokenPrice  = 0.150 / 1_000_000 // gpt-4o-mini input
	LLMOutputTokenPrice = 0.600 / 1_000_000 // gpt-4o-mini output
	TTSCharacterPrice   = 15.00 / 1_000_000 // tts-1, per character
	TTSHDCharacterPrice = 30.00 / 1_000_000 // tts-1-hd, per character
)

// Breakdown is an itemized cost report for one call.
// Currency values are rounded to 4 decimal places, durations to 2.
type Breakdown struct {
	STT             float64 `json:"stt"`
	LLM             float64 `json:"llm"`
	TTS             float64 `json:"tts"`
	Total           float64 `json:"total"`
	DurationMinutes float64 `json:"duration_minutes"`
	PerMinute       float64 `json:"cost_per_minute"`
}

// STTCost returns the speech-to-text cost for the given audio seconds.
func STTCost(audioSeconds float64) float64 {
	return audioSeconds / 60 * STTPricePerMinute
}

// LLMCost returns the language-model cost for the given token counts.
func LLMCost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)*LLMInputTokenPrice + float64(outputTokens)*LLMOutputTokenPrice
}

// TTSCost returns the speech-synthesis cost for the given character count.
func TTSCost(characters int) float64 {
	return float64(characters) * TTSCharacterPrice
}

// CalculateCost maps a metrics snapshot to its cost breakdown.
// Pure and reproducible: identical inputs always yield identical outputs.
// Cost-per-minute is 0 for zero-duration calls.
func CalculateCost(m *CallMetrics, endedAt time.Time) Breakdown {
	stt := STTCost(m.STTSeconds)
	llm := LLMCost(m.LLMInputTokens, m.LLMOutputTokens)
	tts := TTSCost(m.TTSCharacters)
	total := stt + llm + tts

	minutes := endedAt.Sub(m.StartTime).Minutes()
	perMinute := 0.0
	if minutes > 0 {
		perMinute = total / minutes
	}

	return Breakdown{
		STT:             round4(stt),
		LLM:             round4(llm),
		TTS:             round4(tts),
		Total:           round4(total),
		DurationMinutes: round2(minutes),
		PerMinute:       round4(perMinute),
	}
}

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round1(v float64) float64 { return math.Round(v*10) / 10 }

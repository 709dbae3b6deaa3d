package crm

import "strings"

// Classifications assigned by Score.
const (
	ClassHot  = "HOT"
	ClassWarm = "WARM"
	ClassCold = "COLD"
)

// Next actions paired with each classification.
const (
	ActionImmediateHandoff = "immediate_handoff"
	ActionScheduleCallback = "schedule_callback"
	ActionWhatsAppFollowup = "whatsapp_followup"
)

// Qualification is the input gathered during the conversation.
type Qualification struct {
	CapitalUSD float64  `json:"capital_usd"`
	Experience string   `json:"experience"` // "principiante", "intermedio", "avanzado"
	Urgency    string   `json:"urgency"`    // "alta", "media", "baja"
	PainPoints []string `json:"pain_points"`
}

// ScoreResult is the outcome of scoring a lead.
type ScoreResult struct {
	Score          int    `json:"score"`
	Classification string `json:"classification"`
	NextAction     string `json:"next_action"`
}

// Score rates a lead 0-100 from its qualification data.
// Capital contributes up to 40 points, experience and urgency up to 20
// each, pain points up to 20.
func Score(q Qualification) ScoreResult {
	score := 0

	switch {
	case q.CapitalUSD >= 5000:
		score += 40
	case q.CapitalUSD >= 1000:
		score += 30
	case q.CapitalUSD >= 200:
		score += 20
	case q.CapitalUSD >= 5:
		score += 10
	}

	switch strings.ToLower(strings.TrimSpace(q.Experience)) {
	case "avanzado":
		score += 20
	case "intermedio":
		score += 15
	case "principiante":
		score += 10
	}

	switch strings.ToLower(strings.TrimSpace(q.Urgency)) {
	case "alta":
		score += 20
	case "media":
		score += 10
	case "baja":
		score += 5
	}

	switch {
	case len(q.PainPoints) >= 3:
		score += 20
	case len(q.PainPoints) >= 1:
		score += 10
	}

	result := ScoreResult{Score: score}
	switch {
	case score >= 70:
		result.Classification = ClassHot
		result.NextAction = ActionImmediateHandoff
	case score >= 40:
		result.Classification = ClassWarm
		result.NextAction = ActionScheduleCallback
	default:
		result.Classification = ClassCold
		result.NextAction = ActionWhatsAppFollowup
	}
	return result
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/callvox/salesagent/internal/crm"
	"github.com/callvox/salesagent/internal/resilience"
)

// CRMTools exposes lead persistence as callable tools. Every database
// access goes through the database circuit breaker so a failing CRM cannot
// stall live calls.
type CRMTools struct {
	store   *crm.Store
	breaker *resilience.Breaker
	phone   string // caller's phone, bound per call
}

// NewCRMTools binds the CRM tools to one call's phone number.
func NewCRMTools(store *crm.Store, breaker *resilience.Breaker, phone string) *CRMTools {
	return &CRMTools{store: store, breaker: breaker, phone: phone}
}

func (c *CRMTools) resolvePhone(override string) string {
	if override != "" {
		return override
	}
	return c.phone
}

// LeadHistory is what the agent sees about a returning caller.
type LeadHistory struct {
	Known bool       `json:"known"`
	Lead  *crm.Lead  `json:"lead,omitempty"`
	Notes []crm.Note `json:"notes,omitempty"`
}

// GetLeadHistory fetches the lead record and recent notes for the caller.
func (c *CRMTools) GetLeadHistory(ctx context.Context, phone string) (LeadHistory, error) {
	phone = c.resolvePhone(phone)
	if phone == "" {
		return LeadHistory{}, fmt.Errorf("no phone number for lead lookup")
	}

	var history LeadHistory
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		lead, err := c.store.GetLead(ctx, phone)
		if err != nil {
			return err
		}
		if lead == nil {
			return nil
		}
		notes, err := c.store.RecentNotes(ctx, phone, 5)
		if err != nil {
			return err
		}
		history = LeadHistory{Known: true, Lead: lead, Notes: notes}
		return nil
	})
	if err != nil {
		return LeadHistory{}, err
	}
	return history, nil
}

// SaveNote stores a free-text observation about the conversation.
func (c *CRMTools) SaveNote(ctx context.Context, phone, note string) error {
	phone = c.resolvePhone(phone)
	if phone == "" {
		return fmt.Errorf("no phone number for note")
	}
	return c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.store.SaveNote(ctx, phone, note)
	})
}

// QualifyLead scores the qualification data and upserts the lead record.
func (c *CRMTools) QualifyLead(ctx context.Context, phone, name string, q crm.Qualification) (crm.ScoreResult, error) {
	phone = c.resolvePhone(phone)
	if phone == "" {
		return crm.ScoreResult{}, fmt.Errorf("no phone number for qualification")
	}

	result := crm.Score(q)
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		return c.store.UpsertLead(ctx, crm.Lead{
			Phone:          phone,
			Name:           name,
			CapitalUSD:     q.CapitalUSD,
			Experience:     q.Experience,
			Urgency:        q.Urgency,
			PainPoints:     q.PainPoints,
			Score:          result.Score,
			Classification: result.Classification,
			NextAction:     result.NextAction,
		})
	})
	if err != nil {
		return crm.ScoreResult{}, err
	}
	return result, nil
}

// ScheduleCallback books a follow-up call.
func (c *CRMTools) ScheduleCallback(ctx context.Context, phone string, at time.Time, notes string) (int64, error) {
	phone = c.resolvePhone(phone)
	if phone == "" {
		return 0, fmt.Errorf("no phone number for callback")
	}

	var id int64
	err := c.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		id, err = c.store.ScheduleCallback(ctx, phone, at, notes)
		return err
	})
	return id, err
}

// RegisterCRM wires the CRM tools into a registry.
func RegisterCRM(r *Registry, c *CRMTools) {
	type historyArgs struct {
		Phone string `json:"phone,omitempty"`
	}
	type noteArgs struct {
		Phone string `json:"phone,omitempty"`
		Note  string `json:"note"`
	}
	type qualifyArgs struct {
		Phone      string   `json:"phone,omitempty"`
		Name       string   `json:"name,omitempty"`
		CapitalUSD float64  `json:"capital_usd"`
		Experience string   `json:"experience"`
		Urgency    string   `json:"urgency"`
		PainPoints []string `json:"pain_points,omitempty"`
	}
	type callbackArgs struct {
		Phone       string `json:"phone,omitempty"`
		ScheduledAt string `json:"scheduled_at"` // RFC 3339
		Notes       string `json:"notes,omitempty"`
	}

	r.Register("get_lead_history", func(ctx context.Context, args json.RawMessage) (any, error) {
		a, err := decode[historyArgs](args)
		if err != nil {
			return nil, err
		}
		return c.GetLeadHistory(ctx, a.Phone)
	})
	r.Register("save_conversation_note", func(ctx context.Context, args json.RawMessage) (any, error) {
		a, err := decode[noteArgs](args)
		if err != nil {
			return nil, err
		}
		if err := c.SaveNote(ctx, a.Phone, a.Note); err != nil {
			return nil, err
		}
		return map[string]string{"status": "saved"}, nil
	})
	r.Register("qualify_lead", func(ctx context.Context, args json.RawMessage) (any, error) {
		a, err := decode[qualifyArgs](args)
		if err != nil {
			return nil, err
		}
		return c.QualifyLead(ctx, a.Phone, a.Name, crm.Qualification{
			CapitalUSD: a.CapitalUSD,
			Experience: a.Experience,
			Urgency:    a.Urgency,
			PainPoints: a.PainPoints,
		})
	})
	r.Register("schedule_callback", func(ctx context.Context, args json.RawMessage) (any, error) {
		a, err := decode[callbackArgs](args)
		if err != nil {
			return nil, err
		}
		at, err := time.Parse(time.RFC3339, a.ScheduledAt)
		if err != nil {
			return nil, fmt.Errorf("scheduled_at must be RFC 3339: %w", err)
		}
		id, err := c.ScheduleCallback(ctx, a.Phone, at, a.Notes)
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "scheduled", "callback_id": id}, nil
	})
}

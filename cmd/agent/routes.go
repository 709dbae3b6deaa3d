package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callvox/salesagent/internal/crm"
	"github.com/callvox/salesagent/internal/engine"
	"github.com/callvox/salesagent/internal/orchestrator"
	"github.com/callvox/salesagent/internal/prompts"
	"github.com/callvox/salesagent/internal/resilience"
	"github.com/callvox/salesagent/internal/room"
	"github.com/callvox/salesagent/internal/tools"
	"github.com/callvox/salesagent/internal/trace"
	"github.com/callvox/salesagent/internal/usage"
)

const defaultTraceListLimit = 20

type deps struct {
	cfg         config
	tracker     *usage.Tracker
	engine      engine.Engine
	traceStore  *trace.Store
	crmStore    *crm.Store
	roomBreaker *resilience.Breaker
	dbBreaker   *resilience.Breaker
	callCtx     context.Context
	calls       *sync.WaitGroup
}

// registerRoutes wires all HTTP endpoints to the shared mux.
func registerRoutes(mux *http.ServeMux, d *deps) {
	mux.HandleFunc("/health", handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/calls", d.handleStartCall)
	mux.HandleFunc("GET /api/calls/stats", d.handleCallStats)
	registerTraceRoutes(mux, d.traceStore)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (d *deps) handleStartCall(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Room     string `json:"room"`
		Phone    string `json:"phone"`
		LeadName string `json:"lead_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if d.tracker.Active() >= d.cfg.maxConcurrentCalls {
		http.Error(w, "at capacity", http.StatusServiceUnavailable)
		return
	}

	callID := uuid.NewString()
	roomName := req.Room
	if roomName == "" {
		roomName = "sales-call-" + callID[:8]
	}

	issuer := room.TokenIssuer{APIKey: d.cfg.roomAPIKey, APISecret: d.cfg.roomAPISecret, TTL: time.Hour}
	metadata, _ := json.Marshal(room.CallInfo{Phone: req.Phone, LeadName: req.LeadName})

	agentToken, err := issuer.JoinToken(roomName, "agent-"+callID[:8], string(metadata))
	if err != nil {
		slog.Error("agent token", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	clientToken, err := issuer.JoinToken(roomName, req.Phone, string(metadata))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	roomClient := room.NewWSClient(d.cfg.roomWSURL, agentToken)

	registry := tools.NewRegistry()
	tools.RegisterForex(registry)
	tools.RegisterKnowledge(registry)
	if d.crmStore != nil {
		tools.RegisterCRM(registry, tools.NewCRMTools(d.crmStore, d.dbBreaker, req.Phone))
	}

	systemPrompt := prompts.ForCall(d.cfg.systemPrompt, registry.Names())
	if history := d.leadSummary(r.Context(), req.Phone); history != "" {
		systemPrompt += "\n\n" + prompts.LeadContext(history)
	}

	session, err := orchestrator.NewSession(orchestrator.Config{
		CallID:       callID,
		SystemPrompt: systemPrompt,
		Model:        d.cfg.model,
		Room:         roomClient,
		Engine:       d.engine,
		Tracker:      d.tracker,
		Tracer:       trace.New(d.traceStore, callID, req.Phone),
		RoomBreaker:  d.roomBreaker,
		Tools:        registry,
		Utterances:   bridgeTranscripts(roomClient),
		JoinTimeout:  d.cfg.joinTimeout,
		MaxDuration:  d.cfg.maxCallDuration,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// the call outlives this request, so it runs under the server-wide call
	// context instead of the request's
	d.calls.Add(1)
	go func() {
		defer d.calls.Done()
		if outcome, err := session.Run(d.callCtx); err != nil {
			slog.Error("call failed", "call_id", callID, "outcome", outcome, "error", err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{
		"call_id":  callID,
		"room":     roomName,
		"join_url": room.JoinURL(d.cfg.frontendURL, roomName, clientToken),
	})
}

// leadSummary assembles what the CRM already knows about phone, so the
// persona opens the call informed instead of cold. Unavailable history is
// not fatal; the call proceeds without it.
func (d *deps) leadSummary(ctx context.Context, phone string) string {
	if d.crmStore == nil || phone == "" {
		return ""
	}
	var lead *crm.Lead
	var notes []crm.Note
	err := d.dbBreaker.Do(ctx, func(ctx context.Context) error {
		var err error
		if lead, err = d.crmStore.GetLead(ctx, phone); err != nil {
			return err
		}
		notes, err = d.crmStore.RecentNotes(ctx, phone, 3)
		return err
	})
	if err != nil {
		slog.Warn("lead history unavailable", "phone", phone, "error", err)
		return ""
	}
	if lead == nil && len(notes) == 0 {
		return ""
	}

	var b strings.Builder
	if lead != nil {
		fmt.Fprintf(&b, "- %s: capital %.0f USD, experiencia %s, clasificación %s\n",
			lead.Name, lead.CapitalUSD, lead.Experience, lead.Classification)
	}
	for _, n := range notes {
		fmt.Fprintf(&b, "- Nota (%s): %s\n", n.CreatedAt.Format("2006-01-02"), n.Note)
	}
	return strings.TrimRight(b.String(), "\n")
}

// bridgeTranscripts adapts the room's transcript stream to the engine's
// utterance source.
func bridgeTranscripts(rc *room.WSClient) <-chan engine.Utterance {
	out := make(chan engine.Utterance, 32)
	go func() {
		defer close(out)
		for t := range rc.Transcripts() {
			out <- engine.Utterance{Text: t.Text, AudioSeconds: t.AudioSeconds}
		}
	}()
	return out
}

func (d *deps) handleCallStats(w http.ResponseWriter, r *http.Request) {
	stats := d.tracker.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"active": d.tracker.Active(),
		"totals": stats,
	})
}

func registerTraceRoutes(mux *http.ServeMux, store *trace.Store) {
	mux.HandleFunc("GET /api/traces", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		limit := queryInt(r, "limit", defaultTraceListLimit)
		offset := queryInt(r, "offset", 0)
		traces, total, err := store.ListTraces(limit, offset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"traces": traces, "total": total})
	})

	mux.HandleFunc("GET /api/traces/{id}", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		tr, gens, spans, err := store.GetTrace(r.PathValue("id"))
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"trace": tr, "generations": gens, "spans": spans})
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

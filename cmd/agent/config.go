package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/callvox/salesagent/internal/env"
	"github.com/callvox/salesagent/internal/prompts"
)

type config struct {
	port               string
	model              string
	maxTokens          int
	openaiKey          string
	systemPrompt       string
	roomWSURL          string
	roomAPIKey         string
	roomAPISecret      string
	frontendURL        string
	traceDatabaseURL   string
	crmDatabaseURL     string
	joinTimeout        time.Duration
	maxCallDuration    time.Duration
	maxConcurrentCalls int
}

func loadConfig() config {
	return config{
		port:               env.Str("AGENT_PORT", "8080"),
		model:              env.Str("OPENAI_MODEL", "gpt-4o-mini"),
		maxTokens:          env.Int("LLM_MAX_TOKENS", 300),
		openaiKey:          env.Str("OPENAI_API_KEY", ""),
		systemPrompt:       env.Str("SYSTEM_PROMPT", prompts.SalesSystem),
		roomWSURL:          env.Str("ROOM_WS_URL", "ws://localhost:7880/ws"),
		roomAPIKey:         env.Str("ROOM_API_KEY", ""),
		roomAPISecret:      env.Str("ROOM_API_SECRET", ""),
		frontendURL:        env.Str("FRONTEND_URL", "http://localhost:3000"),
		traceDatabaseURL:   env.Str("TRACE_DATABASE_URL", ""),
		crmDatabaseURL:     env.Str("CRM_DATABASE_URL", ""),
		joinTimeout:        env.Dur("JOIN_TIMEOUT", 5*time.Minute),
		maxCallDuration:    env.Dur("MAX_CALL_DURATION", 30*time.Minute),
		maxConcurrentCalls: env.Int("MAX_CONCURRENT_CALLS", 20),
	}
}

// validate reports missing required settings. No call may be attempted
// without room and model-backend credentials, so startup fails instead.
func (c config) validate() error {
	var missing []string
	if c.roomAPIKey == "" {
		missing = append(missing, "ROOM_API_KEY")
	}
	if c.roomAPISecret == "" {
		missing = append(missing, "ROOM_API_SECRET")
	}
	if c.openaiKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

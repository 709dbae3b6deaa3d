// Command roomlink mints a join link for a prospect, for sending over
// WhatsApp or SMS ahead of a scheduled call.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/callvox/salesagent/internal/env"
	"github.com/callvox/salesagent/internal/room"
)

func main() {
	_ = godotenv.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	phone := flag.String("phone", "", "prospect phone number (required)")
	name := flag.String("name", "", "prospect name")
	roomName := flag.String("room", "", "room name (default: generated)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token validity")
	flag.Parse()

	if *phone == "" {
		fmt.Fprintln(os.Stderr, "usage: roomlink -phone +5255... [-name Ana] [-room sales-call-x]")
		os.Exit(2)
	}

	issuer := room.TokenIssuer{
		APIKey:    env.Str("ROOM_API_KEY", ""),
		APISecret: env.Str("ROOM_API_SECRET", ""),
		TTL:       *ttl,
	}
	frontend := env.Str("FRONTEND_URL", "http://localhost:3000")

	rn := *roomName
	if rn == "" {
		rn = "sales-call-" + uuid.NewString()[:8]
	}

	metadata, _ := json.Marshal(room.CallInfo{Phone: *phone, LeadName: *name})
	token, err := issuer.JoinToken(rn, *phone, string(metadata))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	fmt.Println(room.JoinURL(frontend, rn, token))
}

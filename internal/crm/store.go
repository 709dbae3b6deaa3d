package crm

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Lead is a prospect record keyed by phone number.
type Lead struct {
	Phone          string    `json:"phone"`
	Name           string    `json:"name,omitempty"`
	CapitalUSD     float64   `json:"capital_usd"`
	Experience     string    `json:"experience,omitempty"`
	Urgency        string    `json:"urgency,omitempty"`
	PainPoints     []string  `json:"pain_points,omitempty"`
	Score          int       `json:"score"`
	Classification string    `json:"classification,omitempty"`
	NextAction     string    `json:"next_action,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Note is one free-text observation captured mid-call.
type Note struct {
	ID        int64     `json:"id"`
	Phone     string    `json:"phone"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// Callback is a scheduled follow-up call.
type Callback struct {
	ID          int64     `json:"id"`
	Phone       string    `json:"phone"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Notes       string    `json:"notes,omitempty"`
	Status      string    `json:"status"`
}

// Store persists leads, notes, and callbacks to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to the CRM database at connStr and applies migrations.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("crm open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("crm ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("crm migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS crm_schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM crm_schema_version`)
	if err = row.Scan(&current); err != nil {
		return err
	}

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	for i := current + 1; i < len(entries); i++ {
		data, readErr := migrationFS.ReadFile("migrations/" + entries[i].Name())
		if readErr != nil {
			return fmt.Errorf("read migration %d: %w", i, readErr)
		}
		if _, execErr := db.Exec(string(data)); execErr != nil {
			return fmt.Errorf("migration %d: %w", i, execErr)
		}
		if _, execErr := db.Exec(`INSERT INTO crm_schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetLead returns the lead for phone, or nil when unknown.
func (s *Store) GetLead(ctx context.Context, phone string) (*Lead, error) {
	var l Lead
	var painPoints string
	err := s.db.QueryRowContext(ctx,
		`SELECT phone, name, capital_usd, experience, urgency, pain_points, score, classification, next_action, created_at, updated_at
		 FROM leads WHERE phone = $1`, phone,
	).Scan(&l.Phone, &l.Name, &l.CapitalUSD, &l.Experience, &l.Urgency, &painPoints,
		&l.Score, &l.Classification, &l.NextAction, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	if painPoints != "" {
		l.PainPoints = strings.Split(painPoints, "|")
	}
	return &l, nil
}

// RecentNotes returns the latest notes for phone, newest first.
func (s *Store) RecentNotes(ctx context.Context, phone string, limit int) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phone, note, created_at FROM conversation_notes
		 WHERE phone = $1 ORDER BY created_at DESC LIMIT $2`, phone, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var n Note
		if err = rows.Scan(&n.ID, &n.Phone, &n.Note, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// SaveNote appends a conversation note for phone.
func (s *Store) SaveNote(ctx context.Context, phone, note string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_notes (phone, note) VALUES ($1, $2)`, phone, note,
	)
	if err != nil {
		return fmt.Errorf("save note: %w", err)
	}
	return nil
}

// UpsertLead saves the qualification result, overwriting any prior record
// for the same phone.
func (s *Store) UpsertLead(ctx context.Context, l Lead) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (phone, name, capital_usd, experience, urgency, pain_points, score, classification, next_action, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (phone) DO UPDATE SET
			name = EXCLUDED.name,
			capital_usd = EXCLUDED.capital_usd,
			experience = EXCLUDED.experience,
			urgency = EXCLUDED.urgency,
			pain_points = EXCLUDED.pain_points,
			score = EXCLUDED.score,
			classification = EXCLUDED.classification,
			next_action = EXCLUDED.next_action,
			updated_at = now()`,
		l.Phone, l.Name, l.CapitalUSD, l.Experience, l.Urgency,
		strings.Join(l.PainPoints, "|"), l.Score, l.Classification, l.NextAction,
	)
	if err != nil {
		return fmt.Errorf("upsert lead: %w", err)
	}
	return nil
}

// ScheduleCallback records a pending follow-up call.
func (s *Store) ScheduleCallback(ctx context.Context, phone string, at time.Time, notes string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO callbacks (phone, scheduled_at, notes) VALUES ($1, $2, $3) RETURNING id`,
		phone, at.UTC(), notes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("schedule callback: %w", err)
	}
	return id, nil
}

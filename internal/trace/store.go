package trace

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const maxTraces = 500

// Store persists call traces to PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to a PostgreSQL trace database at connStr.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("trace open: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace ping: %w", err)
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return err
	}

	var current int
	row := db.QueryRow(`SELECT COALESCE(MAX(version), -1) FROM schema_version`)
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
		if _, execErr := db.Exec(`INSERT INTO schema_version (version) VALUES ($1)`, i); execErr != nil {
			return fmt.Errorf("migration %d record: %w", i, execErr)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTrace inserts a new trace and prunes old ones.
func (s *Store) CreateTrace(id, callID, phone, metadata string) error {
	_, err := s.db.Exec(
		`INSERT INTO traces (id, call_id, phone, metadata, started_at) VALUES ($1, $2, $3, $4, $5)`,
		id, callID, phone, metadata, time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`DELETE FROM traces WHERE id NOT IN (SELECT id FROM traces ORDER BY started_at DESC LIMIT $1)`,
		maxTraces,
	)
	return err
}

// EndTrace sets the trace's terminal fields.
func (s *Store) EndTrace(id, outcome, metadata string, totalCost float64) error {
	_, err := s.db.Exec(
		`UPDATE traces SET ended_at = $1, outcome = $2, metadata = $3, total_cost = $4 WHERE id = $5`,
		time.Now().UTC(), outcome, metadata, totalCost, id,
	)
	return err
}

// CreateGeneration inserts a running generation.
func (s *Store) CreateGeneration(g Generation) error {
	_, err := s.db.Exec(
		`INSERT INTO generations (id, trace_id, model, input, started_at, status) VALUES ($1, $2, $3, $4, $5, 'running')`,
		g.ID, g.TraceID, g.Model, g.Input, g.StartedAt.UTC(),
	)
	return err
}

// UpdateGeneration sets a generation's final fields.
func (s *Store) UpdateGeneration(g Generation) error {
	_, err := s.db.Exec(
		`UPDATE generations SET output = $1, input_tokens = $2, output_tokens = $3, cost = $4, duration_ms = $5, status = $6 WHERE id = $7`,
		g.Output, g.InputTokens, g.OutputTokens, g.Cost, g.DurationMs, g.Status, g.ID,
	)
	return err
}

// CreateSpan inserts a span.
func (s *Store) CreateSpan(sp Span) error {
	_, err := s.db.Exec(
		`INSERT INTO spans (id, trace_id, kind, name, started_at, duration_ms, input, output, cost, status, error_msg)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sp.ID, sp.TraceID, sp.Kind, sp.Name, sp.StartedAt.UTC(),
		sp.DurationMs, sp.Input, sp.Output, sp.Cost, sp.Status, sp.Error,
	)
	return err
}

// ListTraces returns traces ordered newest first, with generation counts.
func (s *Store) ListTraces(limit, offset int) ([]Trace, int, error) {
	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM traces`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(`
		SELECT t.id, t.call_id, t.phone, t.metadata, t.outcome, t.total_cost, t.started_at, t.ended_at,
		       COUNT(g.id) as generation_count
		FROM traces t
		LEFT JOIN generations g ON g.trace_id = t.id
		GROUP BY t.id
		ORDER BY t.started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var traces []Trace
	for rows.Next() {
		var tr Trace
		var endedAt sql.NullTime
		if err = rows.Scan(&tr.ID, &tr.CallID, &tr.Phone, &tr.Metadata, &tr.Outcome, &tr.TotalCost, &tr.StartedAt, &endedAt, &tr.GenerationCount); err != nil {
			return nil, 0, err
		}
		if endedAt.Valid {
			tr.EndedAt = &endedAt.Time
		}
		traces = append(traces, tr)
	}
	return traces, total, rows.Err()
}

// GetTrace returns a single trace with its generations and spans.
func (s *Store) GetTrace(id string) (*Trace, []Generation, []Span, error) {
	var tr Trace
	var endedAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, call_id, phone, metadata, outcome, total_cost, started_at, ended_at FROM traces WHERE id = $1`, id,
	).Scan(&tr.ID, &tr.CallID, &tr.Phone, &tr.Metadata, &tr.Outcome, &tr.TotalCost, &tr.StartedAt, &endedAt)
	if err != nil {
		return nil, nil, nil, err
	}
	if endedAt.Valid {
		tr.EndedAt = &endedAt.Time
	}

	rows, err := s.db.Query(
		`SELECT id, trace_id, model, input, output, input_tokens, output_tokens, cost, started_at, duration_ms, status
		 FROM generations WHERE trace_id = $1 ORDER BY started_at ASC`, id,
	)
	if err != nil {
		return nil, nil, nil, err
	}
	defer rows.Close()

	var gens []Generation
	for rows.Next() {
		var g Generation
		if err = rows.Scan(&g.ID, &g.TraceID, &g.Model, &g.Input, &g.Output, &g.InputTokens, &g.OutputTokens, &g.Cost, &g.StartedAt, &g.DurationMs, &g.Status); err != nil {
			return nil, nil, nil, err
		}
		gens = append(gens, g)
	}
	if err = rows.Err(); err != nil {
		return nil, nil, nil, err
	}

	spanRows, err := s.db.Query(
		`SELECT id, trace_id, kind, name, started_at, duration_ms, input, output, cost, status, error_msg
		 FROM spans WHERE trace_id = $1 ORDER BY started_at ASC`, id,
	)
	if err != nil {
		return nil, nil, nil, err
	}
	defer spanRows.Close()

	var spans []Span
	for spanRows.Next() {
		var sp Span
		if err = spanRows.Scan(&sp.ID, &sp.TraceID, &sp.Kind, &sp.Name, &sp.StartedAt, &sp.DurationMs, &sp.Input, &sp.Output, &sp.Cost, &sp.Status, &sp.Error); err != nil {
			return nil, nil, nil, err
		}
		spans = append(spans, sp)
	}
	return &tr, gens, spans, spanRows.Err()
}

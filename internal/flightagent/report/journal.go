package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/autopeer-io/flightpeer/internal/flightagent/session"
)

// timeFormat is fixed width so that stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned by Journal.Get for an unknown session id.
var ErrNotFound = errors.New("session not found")

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	vehicle_id  TEXT NOT NULL,
	utterance   TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	failure     TEXT NOT NULL,
	executed    INTEGER NOT NULL,
	report      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS sessions_started_at ON sessions (started_at);
`

var _ Reporter = (*Journal)(nil)

// Journal keeps finished sessions in a sqlite database.
type Journal struct {
	db *sql.DB
}

// Entry is one row of the journal listing.
type Entry struct {
	ID         string
	VehicleID  string
	Utterance  string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    session.Outcome
	Failure    session.FailureKind
	Executed   int
}

// OpenJournal opens or creates the journal at path.
func OpenJournal(path string) (*Journal, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) Report(ctx context.Context, r *session.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	_, err = j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO sessions (id, vehicle_id, utterance, started_at, finished_at, outcome, failure, executed, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.VehicleID, r.Utterance,
		r.StartedAt.UTC().Format(timeFormat), r.FinishedAt.UTC().Format(timeFormat),
		string(r.Outcome), string(r.Failure), len(r.Executed()), string(data))
	if err != nil {
		return fmt.Errorf("insert session %s: %w", r.ID, err)
	}
	return nil
}

// List returns the most recent sessions first. limit <= 0 returns all of them.
func (j *Journal) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, vehicle_id, utterance, started_at, finished_at, outcome, failure, executed
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			started, finished string
			outcome, failure  string
		)
		if err := rows.Scan(&e.ID, &e.VehicleID, &e.Utterance, &started, &finished, &outcome, &failure, &e.Executed); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		e.StartedAt, _ = time.Parse(timeFormat, started)
		e.FinishedAt, _ = time.Parse(timeFormat, finished)
		e.Outcome = session.Outcome(outcome)
		e.Failure = session.FailureKind(failure)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Get returns the full report of one session.
func (j *Journal) Get(ctx context.Context, id string) (*session.Report, error) {
	var data string
	err := j.db.QueryRowContext(ctx, `SELECT report FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query session %s: %w", id, err)
	}

	r := &session.Report{}
	if err := json.Unmarshal([]byte(data), r); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return r, nil
}

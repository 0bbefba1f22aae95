package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run summarises one collection run.
type Run struct {
	ID             string    `json:"id"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
	City           string    `json:"city"`
	Clubs          int       `json:"clubs"`
	Events         int       `json:"events"`
	FilteredEvents int       `json:"filtered_events"`
	AllFile        string    `json:"all_file"`
	CityFile       string    `json:"city_file,omitempty"`
}

// NewRun starts a run record with a fresh ID.
func NewRun(city string, startedAt time.Time) Run {
	return Run{ID: uuid.NewString(), City: city, StartedAt: startedAt.UTC()}
}

// Store encapsulates access to the run archive.
type Store struct {
	db *sql.DB
}

// NewStore constructs a run archive data access object.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init applies the schema.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			completed_at TEXT NOT NULL,
			city TEXT NOT NULL,
			clubs INTEGER NOT NULL,
			events INTEGER NOT NULL,
			filtered_events INTEGER NOT NULL,
			all_file TEXT NOT NULL,
			city_file TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply archive schema: %w", err)
		}
	}
	return nil
}

// SaveRun stores or replaces a run.
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(id, started_at, completed_at, city, clubs, events, filtered_events, all_file, city_file)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET completed_at = excluded.completed_at,
			clubs = excluded.clubs, events = excluded.events,
			filtered_events = excluded.filtered_events,
			all_file = excluded.all_file, city_file = excluded.city_file`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.CompletedAt.UTC().Format(time.RFC3339Nano),
		run.City, run.Clubs, run.Events, run.FilteredEvents,
		run.AllFile, nullString(run.CityFile),
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, completed_at, city, clubs, events, filtered_events, all_file, city_file
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			run                Run
			started, completed string
			cityFile           sql.NullString
		)
		if err := rows.Scan(&run.ID, &started, &completed, &run.City, &run.Clubs,
			&run.Events, &run.FilteredEvents, &run.AllFile, &cityFile); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if run.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, fmt.Errorf("parse started_at of run %s: %w", run.ID, err)
		}
		if run.CompletedAt, err = time.Parse(time.RFC3339Nano, completed); err != nil {
			return nil, fmt.Errorf("parse completed_at of run %s: %w", run.ID, err)
		}
		run.CityFile = cityFile.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter runs: %w", err)
	}
	return runs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

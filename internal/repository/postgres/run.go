// Package postgres persists campaign run history.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Run is one completed (or attempted) campaign run.
type Run struct {
	ID            string    `json:"id"`
	CampaignID    int64     `json:"campaign_id"`
	CampaignName  string    `json:"campaign_name"`
	Status        string    `json:"status"`
	Total         int64     `json:"total"`
	Sent          int64     `json:"sent"`
	Opened        int64     `json:"opened"`
	Clicked       int64     `json:"clicked"`
	SubmittedData int64     `json:"submitted_data"`
	Reported      int64     `json:"reported"`
	AffectedCount int       `json:"affected_count"`
	ResultsPath   string    `json:"results_path"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
}

// RunRepo stores run history in PostgreSQL.
type RunRepo struct{ db *sql.DB }

// NewRunRepo creates a Postgres-backed run repository.
func NewRunRepo(db *sql.DB) *RunRepo { return &RunRepo{db: db} }

// Open connects to the run-history database and verifies the
// connection.
func Open(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the run-history table when it does not exist.
func (r *RunRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS campaign_runs (
			id             UUID PRIMARY KEY,
			campaign_id    BIGINT NOT NULL,
			campaign_name  TEXT NOT NULL,
			status         TEXT NOT NULL,
			total          BIGINT NOT NULL DEFAULT 0,
			sent           BIGINT NOT NULL DEFAULT 0,
			opened         BIGINT NOT NULL DEFAULT 0,
			clicked        BIGINT NOT NULL DEFAULT 0,
			submitted_data BIGINT NOT NULL DEFAULT 0,
			reported       BIGINT NOT NULL DEFAULT 0,
			affected_count INT NOT NULL DEFAULT 0,
			results_path   TEXT NOT NULL DEFAULT '',
			started_at     TIMESTAMPTZ NOT NULL,
			finished_at    TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating campaign_runs table: %w", err)
	}
	return nil
}

// Record inserts one run row.
func (r *RunRepo) Record(ctx context.Context, run Run) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_runs (
			id, campaign_id, campaign_name, status,
			total, sent, opened, clicked, submitted_data, reported,
			affected_count, results_path, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		run.ID, run.CampaignID, run.CampaignName, run.Status,
		run.Total, run.Sent, run.Opened, run.Clicked, run.SubmittedData, run.Reported,
		run.AffectedCount, run.ResultsPath, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", run.ID, err)
	}
	return nil
}

// ListRecent returns the most recent runs, newest first.
func (r *RunRepo) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, campaign_id, campaign_name, status,
		       total, sent, opened, clicked, submitted_data, reported,
		       affected_count, results_path, started_at, finished_at
		FROM campaign_runs
		ORDER BY finished_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(
			&run.ID, &run.CampaignID, &run.CampaignName, &run.Status,
			&run.Total, &run.Sent, &run.Opened, &run.Clicked, &run.SubmittedData, &run.Reported,
			&run.AffectedCount, &run.ResultsPath, &run.StartedAt, &run.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

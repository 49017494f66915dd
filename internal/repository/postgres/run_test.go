package postgres

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	finished := started.Add(6 * time.Hour)

	mock.ExpectExec("INSERT INTO campaign_runs").
		WithArgs(
			"3f1c8e0a-0000-0000-0000-000000000001", int64(42), "Phishing Test 2026-03", "Completed",
			int64(120), int64(120), int64(40), int64(11), int64(3), int64(2),
			12, "results/clicked_2026-03.csv", started, finished,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRunRepo(db)
	err = repo.Record(context.Background(), Run{
		ID:            "3f1c8e0a-0000-0000-0000-000000000001",
		CampaignID:    42,
		CampaignName:  "Phishing Test 2026-03",
		Status:        "Completed",
		Total:         120,
		Sent:          120,
		Opened:        40,
		Clicked:       11,
		SubmittedData: 3,
		Reported:      2,
		AffectedCount: 12,
		ResultsPath:   "results/clicked_2026-03.csv",
		StartedAt:     started,
		FinishedAt:    finished,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "campaign_id", "campaign_name", "status",
		"total", "sent", "opened", "clicked", "submitted_data", "reported",
		"affected_count", "results_path", "started_at", "finished_at",
	}).AddRow(
		"3f1c8e0a-0000-0000-0000-000000000001", 42, "Phishing Test 2026-03", "Completed",
		120, 120, 40, 11, 3, 2, 12, "results/clicked_2026-03.csv", started, started.Add(6*time.Hour),
	).AddRow(
		"3f1c8e0a-0000-0000-0000-000000000002", 41, "Phishing Test 2026-02", "Completed",
		118, 118, 35, 9, 2, 1, 10, "results/clicked_2026-02.csv", started.AddDate(0, -1, 0), started.AddDate(0, -1, 0).Add(5*time.Hour),
	)

	mock.ExpectQuery("SELECT (.+) FROM campaign_runs").
		WithArgs(20).
		WillReturnRows(rows)

	repo := NewRunRepo(db)
	runs, err := repo.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "Phishing Test 2026-03", runs[0].CampaignName)
	assert.Equal(t, int64(11), runs[0].Clicked)
	assert.Equal(t, 10, runs[1].AffectedCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS campaign_runs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewRunRepo(db)
	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/pumpradar/internal/persistence"
)

func newMockRepo(t *testing.T) (persistence.AlertRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAlertRepo(sqlx.NewDb(db, "postgres"), time.Second), mock
}

func TestAlertRepo_Migrate(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS alert_journal").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepo_Insert(t *testing.T) {
	repo, mock := newMockRepo(t)
	ts := time.Date(2025, 9, 7, 10, 0, 0, 0, time.UTC)
	rec := persistence.AlertRecord{
		ID:           "a-1",
		Timestamp:    ts,
		Symbol:       "SOLUSDT",
		DetectorKind: "pump",
		FinalScore:   81,
		Payload:      []byte(`{"symbol":"SOLUSDT"}`),
	}

	mock.ExpectExec("INSERT INTO alert_journal").
		WithArgs("a-1", ts, "SOLUSDT", "pump", 81.0, "", "", rec.Payload).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Insert(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepo_InsertRequiresID(t *testing.T) {
	repo, mock := newMockRepo(t)

	err := repo.Insert(context.Background(), persistence.AlertRecord{Symbol: "SOLUSDT"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepo_InsertWrapsDriverError(t *testing.T) {
	repo, mock := newMockRepo(t)
	boom := errors.New("connection reset")

	mock.ExpectExec("INSERT INTO alert_journal").WillReturnError(boom)

	err := repo.Insert(context.Background(), persistence.AlertRecord{ID: "a-2", Symbol: "SOLUSDT"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestAlertRepo_ListBySymbol(t *testing.T) {
	repo, mock := newMockRepo(t)
	from := time.Date(2025, 9, 7, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)
	ts := from.Add(2 * time.Hour)

	rows := sqlmock.NewRows([]string{
		"id", "ts", "symbol", "detector_kind", "final_score", "classification", "strength", "payload", "created_at",
	}).AddRow("a-1", ts, "SOLUSDT", "volume_anomaly", 0.0, "bullish_breakout", "strong", []byte(`{}`), ts)

	mock.ExpectQuery("SELECT id, ts, symbol, detector_kind").
		WithArgs("SOLUSDT", from, to, 10).
		WillReturnRows(rows)

	records, err := repo.ListBySymbol(context.Background(), "SOLUSDT", persistence.TimeRange{From: from, To: to}, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "volume_anomaly", records[0].DetectorKind)
	assert.Equal(t, "bullish_breakout", records[0].Classification)
	assert.Equal(t, "strong", records[0].Strength)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAlertRepo_RejectsInvertedRange(t *testing.T) {
	repo, _ := newMockRepo(t)
	now := time.Now()
	tr := persistence.TimeRange{From: now, To: now.Add(-time.Minute)}

	_, err := repo.ListBySymbol(context.Background(), "SOLUSDT", tr, 10)
	assert.ErrorIs(t, err, persistence.ErrInvalidRange)

	_, err = repo.CountByKind(context.Background(), tr)
	assert.ErrorIs(t, err, persistence.ErrInvalidRange)
}

func TestAlertRepo_CountByKind(t *testing.T) {
	repo, mock := newMockRepo(t)
	from := time.Date(2025, 9, 7, 0, 0, 0, 0, time.UTC)
	to := from.Add(time.Hour)

	mock.ExpectQuery("SELECT detector_kind, COUNT").
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows([]string{"detector_kind", "count"}).
			AddRow("pump", int64(3)).
			AddRow("volume_anomaly", int64(7)))

	counts, err := repo.CountByKind(context.Background(), persistence.TimeRange{From: from, To: to})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"pump": 3, "volume_anomaly": 7}, counts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/sawpanic/pumpradar/internal/persistence"
)

const schema = `
CREATE TABLE IF NOT EXISTS alert_journal (
	id             TEXT PRIMARY KEY,
	ts             TIMESTAMPTZ NOT NULL,
	symbol         TEXT NOT NULL,
	detector_kind  TEXT NOT NULL,
	final_score    DOUBLE PRECISION NOT NULL DEFAULT 0,
	classification TEXT NOT NULL DEFAULT '',
	strength       TEXT NOT NULL DEFAULT '',
	payload        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS alert_journal_symbol_ts ON alert_journal (symbol, ts DESC);
CREATE INDEX IF NOT EXISTS alert_journal_kind_ts ON alert_journal (detector_kind, ts DESC)`

// alertRepo implements persistence.AlertRepo for PostgreSQL
type alertRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// Open connects to dsn with the lib/pq driver
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// NewAlertRepo creates a new PostgreSQL alert journal
func NewAlertRepo(db *sqlx.DB, timeout time.Duration) persistence.AlertRepo {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &alertRepo{db: db, timeout: timeout}
}

func (r *alertRepo) Migrate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate alert journal: %w", err)
	}
	return nil
}

func (r *alertRepo) Insert(ctx context.Context, rec persistence.AlertRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if rec.ID == "" {
		return fmt.Errorf("alert record for %s has no id", rec.Symbol)
	}

	query := `
		INSERT INTO alert_journal
		(id, ts, symbol, detector_kind, final_score, classification, strength, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Timestamp, rec.Symbol, rec.DetectorKind,
		rec.FinalScore, rec.Classification, rec.Strength, rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", rec.ID, err)
	}
	return nil
}

// ListBySymbol retrieves journal entries for a symbol, newest first
func (r *alertRepo) ListBySymbol(ctx context.Context, symbol string, tr persistence.TimeRange, limit int) ([]persistence.AlertRecord, error) {
	if !tr.Valid() {
		return nil, persistence.ErrInvalidRange
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, ts, symbol, detector_kind, final_score, classification, strength, payload, created_at
		FROM alert_journal
		WHERE symbol = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts DESC
		LIMIT $4`

	var records []persistence.AlertRecord
	if err := r.db.SelectContext(ctx, &records, query, symbol, tr.From, tr.To, limit); err != nil {
		return nil, fmt.Errorf("failed to query alerts by symbol: %w", err)
	}
	return records, nil
}

// CountByKind returns journal counts grouped by detector kind
func (r *alertRepo) CountByKind(ctx context.Context, tr persistence.TimeRange) (map[string]int64, error) {
	if !tr.Valid() {
		return nil, persistence.ErrInvalidRange
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT detector_kind, COUNT(*)
		FROM alert_journal
		WHERE ts >= $1 AND ts <= $2
		GROUP BY detector_kind
		ORDER BY detector_kind`

	rows, err := r.db.QueryxContext(ctx, query, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by kind: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var kind string
		var count int64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan kind count: %w", err)
		}
		counts[kind] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return counts, nil
}

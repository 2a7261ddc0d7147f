package persistence

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRange is returned for queries whose window ends before it starts
var ErrInvalidRange = errors.New("persistence: time range ends before it starts")

// TimeRange is an inclusive time window for journal queries
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Valid reports whether To is not before From
func (tr TimeRange) Valid() bool {
	return !tr.To.Before(tr.From)
}

// Contains reports whether t lies inside the window
func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.From) && !t.After(tr.To)
}

// AlertRecord is one emitted alert as stored in the journal. Payload holds the
// full JSON document handed to sinks; the other columns exist for querying.
type AlertRecord struct {
	ID             string    `json:"id" db:"id"`
	Timestamp      time.Time `json:"ts" db:"ts"`
	Symbol         string    `json:"symbol" db:"symbol"`
	DetectorKind   string    `json:"detector_kind" db:"detector_kind"`
	FinalScore     float64   `json:"final_score" db:"final_score"`
	Classification string    `json:"classification" db:"classification"`
	Strength       string    `json:"strength" db:"strength"`
	Payload        []byte    `json:"payload" db:"payload"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// AlertRepo is the append-only alert journal
type AlertRepo interface {
	// Migrate creates the journal table and indexes if missing
	Migrate(ctx context.Context) error

	// Insert appends a record; inserting an existing ID is a no-op
	Insert(ctx context.Context, rec AlertRecord) error

	// ListBySymbol returns the newest records for symbol inside tr
	ListBySymbol(ctx context.Context, symbol string, tr TimeRange, limit int) ([]AlertRecord, error)

	// CountByKind groups journal entries inside tr by detector kind
	CountByKind(ctx context.Context, tr TimeRange) (map[string]int64, error)
}

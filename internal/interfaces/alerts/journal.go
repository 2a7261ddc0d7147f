package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	core "github.com/sawpanic/pumpradar/internal/alerts"
	"github.com/sawpanic/pumpradar/internal/persistence"
)

// JournalSink appends every alert to the persistent journal
type JournalSink struct {
	repo persistence.AlertRepo
}

// NewJournalSink wraps an alert repository
func NewJournalSink(repo persistence.AlertRepo) *JournalSink {
	return &JournalSink{repo: repo}
}

func (s *JournalSink) Deliver(ctx context.Context, p core.Payload) error {
	rec, err := recordFromPayload(p)
	if err != nil {
		return err
	}
	return s.repo.Insert(ctx, rec)
}

func recordFromPayload(p core.Payload) (persistence.AlertRecord, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return persistence.AlertRecord{}, fmt.Errorf("encode alert %s: %w", p.ID, err)
	}
	return persistence.AlertRecord{
		ID:             p.ID,
		Timestamp:      p.Timestamp,
		Symbol:         p.Symbol,
		DetectorKind:   string(p.DetectorKind),
		FinalScore:     p.FinalScore,
		Classification: p.Classification,
		Strength:       p.Strength,
		Payload:        body,
	}, nil
}

package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu       sync.Mutex
	payloads []Payload
	err      error
}

func (s *recordingSink) Deliver(_ context.Context, p Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	return s.err
}

func (s *recordingSink) all() []Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Payload(nil), s.payloads...)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
}

func TestGateEmitsOncePerCooldownWindow(t *testing.T) {
	clk := newClock()
	sink := &recordingSink{}
	gate := NewGate(NewMemoryCooldowns(), sink, 2*time.Hour, WithGateClock(clk.Now))

	// a qualifying scan every 5 minutes for 10 hours
	emittedAt := []time.Time{}
	for i := 0; i < 120; i++ {
		if gate.TryAlert(context.Background(), "AAAUSDT", DetectorPump, Payload{FinalScore: 85}) {
			emittedAt = append(emittedAt, clk.Now())
		}
		clk.Advance(5 * time.Minute)
	}
	gate.Wait()

	require.Len(t, emittedAt, 5)
	for i := 1; i < len(emittedAt); i++ {
		assert.GreaterOrEqual(t, emittedAt[i].Sub(emittedAt[i-1]), 2*time.Hour)
	}
	assert.Len(t, sink.all(), 5)
	assert.Equal(t, GateStats{Emitted: 5, Suppressed: 115}, gate.Stats())
}

func TestGateKeysByDetectorKind(t *testing.T) {
	sink := &recordingSink{}
	gate := NewGate(NewMemoryCooldowns(), sink, time.Hour)

	assert.True(t, gate.TryAlert(context.Background(), "AAAUSDT", DetectorPump, Payload{}))
	assert.True(t, gate.TryAlert(context.Background(), "AAAUSDT", DetectorVolumeAnomaly, Payload{}))
	assert.True(t, gate.TryAlert(context.Background(), "BBBUSDT", DetectorPump, Payload{}))
	assert.False(t, gate.TryAlert(context.Background(), "AAAUSDT", DetectorPump, Payload{}))
	gate.Wait()

	payloads := sink.all()
	require.Len(t, payloads, 3)
	for _, p := range payloads {
		assert.NotEmpty(t, p.ID)
		assert.False(t, p.Timestamp.IsZero())
	}
}

func TestGateConcurrentCallersEmitOnce(t *testing.T) {
	sink := &recordingSink{}
	gate := NewGate(NewMemoryCooldowns(), sink, time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	emitted := 0
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if gate.TryAlert(context.Background(), "AAAUSDT", DetectorVolumeAnomaly, Payload{}) {
				mu.Lock()
				emitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	gate.Wait()

	assert.Equal(t, 1, emitted)
	assert.Len(t, sink.all(), 1)
}

func TestGateSinkErrorsDoNotAffectDecision(t *testing.T) {
	sink := &recordingSink{err: errors.New("webhook down")}
	gate := NewGate(NewMemoryCooldowns(), sink, time.Hour)

	assert.True(t, gate.TryAlert(context.Background(), "AAAUSDT", DetectorPump, Payload{}))
	gate.Wait()
	assert.False(t, gate.TryAlert(context.Background(), "AAAUSDT", DetectorPump, Payload{}))
}

type brokenStore struct{}

func (brokenStore) TryAcquire(context.Context, Key, time.Time, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func TestGateFailsClosedOnStoreError(t *testing.T) {
	sink := &recordingSink{}
	var decisions []bool
	gate := NewGate(brokenStore{}, sink, time.Hour, WithDecisionHook(func(_ DetectorKind, emitted bool) {
		decisions = append(decisions, emitted)
	}))

	assert.False(t, gate.TryAlert(context.Background(), "AAAUSDT", DetectorPump, Payload{}))
	gate.Wait()
	assert.Empty(t, sink.all())
	assert.Equal(t, int64(1), gate.Stats().Failed)
	assert.Equal(t, []bool{false}, decisions)
}

func TestMemoryCooldownSweep(t *testing.T) {
	clk := newClock()
	store := NewMemoryCooldowns()
	gate := NewGate(store, &recordingSink{}, time.Hour, WithGateClock(clk.Now))

	gate.TryAlert(context.Background(), "AAAUSDT", DetectorPump, Payload{})
	clk.Advance(30 * time.Minute)
	gate.TryAlert(context.Background(), "BBBUSDT", DetectorPump, Payload{})
	gate.Wait()

	clk.Advance(45 * time.Minute)
	assert.Equal(t, 1, gate.Sweep())
	assert.Equal(t, 1, store.Len())

	_, ok := store.LastAlertAt(Key{Symbol: "BBBUSDT", Kind: DetectorPump})
	assert.True(t, ok)
}

func TestRedisCooldowns(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisCooldowns(db, "")
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	key := Key{Symbol: "AAAUSDT", Kind: DetectorPump}

	mock.ExpectSetNX("pumpradar:cooldown:pump:AAAUSDT", now.UnixMilli(), time.Hour).SetVal(true)
	mock.ExpectSetNX("pumpradar:cooldown:pump:AAAUSDT", now.UnixMilli(), time.Hour).SetVal(false)
	mock.ExpectSetNX("pumpradar:cooldown:pump:AAAUSDT", now.UnixMilli(), time.Hour).SetErr(errors.New("READONLY"))

	ok, err := store.TryAcquire(context.Background(), key, now, time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.TryAcquire(context.Background(), key, now, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.TryAcquire(context.Background(), key, now, time.Hour)
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

package candidates

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var testTimeouts = Timeouts{Layer1Detected: 45 * time.Minute, Layer2Confirmed: 4 * time.Hour}

func TestUpsertCreatesThenRefreshes(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(testTimeouts, WithClock(clock.Now))

	c, created := s.Upsert("AAAUSDT", 61)
	require.True(t, created)
	assert.Equal(t, Layer1Detected, c.Stage)
	assert.Equal(t, 61.0, c.Layer1Score)

	_, err := s.Advance("AAAUSDT", Layer1Detected, Layer2Confirmed, 70)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	c, created = s.Upsert("AAAUSDT", 95)
	assert.False(t, created)
	assert.Equal(t, Layer2Confirmed, c.Stage, "re-detection never resets the stage")
	assert.Equal(t, 61.0, c.Layer1Score, "re-detection never overwrites scores")
	assert.Equal(t, 70.0, c.Layer2Score)
	assert.Equal(t, clock.Now(), c.LastUpdatedAt)
	assert.Equal(t, 1, c.Refreshes)
	assert.Equal(t, 1, s.Len())
}

func TestAdvanceIsForwardOnly(t *testing.T) {
	s := NewStore(testTimeouts)
	s.Upsert("AAAUSDT", 65)

	_, err := s.Advance("AAAUSDT", Layer1Detected, Layer3Validated, 80)
	assert.ErrorIs(t, err, ErrInvalidAdvance, "stages cannot be skipped")

	_, err = s.Advance("AAAUSDT", Layer2Confirmed, Layer1Detected, 80)
	assert.ErrorIs(t, err, ErrInvalidAdvance)

	_, err = s.Advance("AAAUSDT", Layer2Confirmed, Layer3Validated, 80)
	assert.ErrorIs(t, err, ErrStageMismatch)

	_, err = s.Advance("MISSING", Layer1Detected, Layer2Confirmed, 80)
	assert.ErrorIs(t, err, ErrNotFound)

	c, err := s.Advance("AAAUSDT", Layer1Detected, Layer2Confirmed, 72)
	require.NoError(t, err)
	c, err = s.Advance("AAAUSDT", Layer2Confirmed, Layer3Validated, 68)
	require.NoError(t, err)
	assert.True(t, c.Complete())
	assert.Equal(t, 72.0, c.Layer2Score)
	assert.Equal(t, 68.0, c.Layer3Score)
}

func TestCandidateExpiresAfterStageTimeout(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(testTimeouts, WithClock(clock.Now))
	s.Upsert("SLOWUSDT", 62)
	s.Upsert("FASTUSDT", 80)

	clock.Advance(30 * time.Minute)
	s.Upsert("FASTUSDT", 80)
	assert.Empty(t, s.Sweep())

	clock.Advance(20 * time.Minute)
	expired := s.Sweep()
	require.Len(t, expired, 1)
	assert.Equal(t, "SLOWUSDT", expired[0].Symbol)
	assert.Equal(t, Expired, expired[0].Stage)

	_, ok := s.Get("SLOWUSDT")
	assert.False(t, ok, "expired candidate is evicted")
	_, ok = s.Get("FASTUSDT")
	assert.True(t, ok)
}

func TestLayer2ConfirmedUsesItsOwnTimeout(t *testing.T) {
	clock := newFakeClock()
	s := NewStore(testTimeouts, WithClock(clock.Now))
	s.Upsert("AAAUSDT", 62)
	_, err := s.Advance("AAAUSDT", Layer1Detected, Layer2Confirmed, 70)
	require.NoError(t, err)

	clock.Advance(time.Hour)
	_, ok := s.ExpireIfStale("AAAUSDT", Layer2Confirmed)
	assert.False(t, ok)

	clock.Advance(3*time.Hour + time.Second)
	c, ok := s.ExpireIfStale("AAAUSDT", Layer2Confirmed)
	require.True(t, ok)
	assert.Equal(t, Expired, c.Stage)
	assert.Equal(t, 0, s.Len())
}

func TestStaleCandidateIsReplacedOnUpsert(t *testing.T) {
	clock := newFakeClock()
	var transitions []Transition
	s := NewStore(testTimeouts, WithClock(clock.Now), WithObserver(func(tr Transition) {
		transitions = append(transitions, tr)
	}))

	first, _ := s.Upsert("AAAUSDT", 61)
	clock.Advance(time.Hour)
	second, created := s.Upsert("AAAUSDT", 90)

	assert.True(t, created)
	assert.Equal(t, 90.0, second.Layer1Score)
	assert.True(t, second.FirstSeenAt.After(first.FirstSeenAt))
	require.Len(t, transitions, 3)
	assert.Equal(t, Expired, transitions[1].To)
	assert.Equal(t, "timeout", transitions[1].Reason)
}

func TestExpireMatchesStage(t *testing.T) {
	s := NewStore(testTimeouts)
	s.Upsert("AAAUSDT", 61)

	_, ok := s.Expire("AAAUSDT", Layer2Confirmed, "failed")
	assert.False(t, ok)

	c, ok := s.Expire("AAAUSDT", Layer1Detected, "failed")
	require.True(t, ok)
	assert.Equal(t, Expired, c.Stage)
	assert.Equal(t, 0, s.Len())
}

func TestListAndCounts(t *testing.T) {
	s := NewStore(testTimeouts)
	for _, sym := range []string{"CCCUSDT", "AAAUSDT", "BBBUSDT"} {
		s.Upsert(sym, 61)
	}
	_, err := s.Advance("BBBUSDT", Layer1Detected, Layer2Confirmed, 65)
	require.NoError(t, err)

	l1 := s.List(Layer1Detected)
	require.Len(t, l1, 2)
	assert.Equal(t, "AAAUSDT", l1[0].Symbol)
	assert.Equal(t, "CCCUSDT", l1[1].Symbol)
	assert.Len(t, s.List(0), 3)

	counts := s.Counts()
	assert.Equal(t, 2, counts[Layer1Detected])
	assert.Equal(t, 1, counts[Layer2Confirmed])
}

// Random interleavings of detections, promotions, expiries and clock moves
// must never move a live candidate backwards.
func TestStageNeverRegresses(t *testing.T) {
	clock := newFakeClock()
	var mu sync.Mutex
	last := make(map[string]Stage)
	violations := 0

	s := NewStore(testTimeouts, WithClock(clock.Now), WithObserver(func(tr Transition) {
		mu.Lock()
		defer mu.Unlock()
		prev, tracked := last[tr.Symbol]
		switch {
		case tr.From == 0:
			if tracked && prev != Expired {
				violations++
			}
		case tr.To <= tr.From:
			violations++
		case tracked && prev != tr.From:
			violations++
		}
		last[tr.Symbol] = tr.To
	}))

	rng := rand.New(rand.NewSource(7))
	symbols := []string{"AUSDT", "BUSDT", "CUSDT", "DUSDT"}
	for i := 0; i < 5000; i++ {
		sym := symbols[rng.Intn(len(symbols))]
		switch rng.Intn(6) {
		case 0:
			s.Upsert(sym, 60+rng.Float64()*40)
		case 1:
			s.Advance(sym, Layer1Detected, Layer2Confirmed, rng.Float64()*100)
		case 2:
			s.Advance(sym, Layer2Confirmed, Layer3Validated, rng.Float64()*100)
		case 3:
			s.Expire(sym, Layer3Validated, "evaluated")
		case 4:
			clock.Advance(time.Duration(rng.Intn(90)) * time.Minute)
		case 5:
			s.Sweep()
		}
	}
	assert.Zero(t, violations)
}

func TestConcurrentUpsertsKeepOneCandidatePerSymbol(t *testing.T) {
	s := NewStore(testTimeouts)
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := make(map[string]int)

	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				sym := fmt.Sprintf("S%02dUSDT", i%50)
				if _, ok := s.Upsert(sym, 61); ok {
					mu.Lock()
					created[sym]++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, s.Len())
	for sym, n := range created {
		assert.Equal(t, 1, n, sym)
	}
}

package candidates

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

var (
	ErrNotFound       = errors.New("candidate not found")
	ErrStageMismatch  = errors.New("candidate stage changed")
	ErrInvalidAdvance = errors.New("invalid stage transition")
)

// Candidate is a symbol tracked through the pump pipeline
type Candidate struct {
	Symbol         string    `json:"symbol"`
	Stage          Stage     `json:"stage"`
	Layer1Score    float64   `json:"layer1_score"`
	Layer2Score    float64   `json:"layer2_score"`
	Layer3Score    float64   `json:"layer3_score"`
	FirstSeenAt    time.Time `json:"first_seen_at"`
	LastUpdatedAt  time.Time `json:"last_updated_at"`
	StageEnteredAt time.Time `json:"stage_entered_at"`
	Refreshes      int       `json:"refreshes"`
}

// Complete reports whether all three layer scores are present
func (c Candidate) Complete() bool {
	return c.Stage == Layer3Validated
}

// Transition records a stage change
type Transition struct {
	Symbol string    `json:"symbol"`
	From   Stage     `json:"from"`
	To     Stage     `json:"to"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// Timeouts bound how long a candidate may wait at a stage, measured from its
// last update.
type Timeouts struct {
	Layer1Detected  time.Duration
	Layer2Confirmed time.Duration
}

func (t Timeouts) forStage(s Stage) time.Duration {
	switch s {
	case Layer1Detected:
		return t.Layer1Detected
	case Layer2Confirmed:
		return t.Layer2Confirmed
	}
	return 0
}

type shard struct {
	mu sync.Mutex
	m  map[string]*Candidate
}

// Store holds at most one live candidate per symbol. Mutations lock only the
// shard owning the symbol, so scans of different symbols never contend on a
// global lock.
type Store struct {
	shards   [shardCount]*shard
	timeouts Timeouts
	now      func() time.Time
	observer func(Transition)
}

// Option configures a Store
type Option func(*Store)

// WithClock injects the time source
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithObserver receives every stage transition, including creation (From 0)
// and expiry. It is called outside shard locks.
func WithObserver(fn func(Transition)) Option {
	return func(s *Store) { s.observer = fn }
}

// NewStore creates an empty store
func NewStore(timeouts Timeouts, opts ...Option) *Store {
	s := &Store{timeouts: timeouts, now: time.Now}
	for i := range s.shards {
		s.shards[i] = &shard{m: make(map[string]*Candidate)}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) shardFor(symbol string) *shard {
	return s.shards[xxhash.Sum64String(symbol)%shardCount]
}

func (s *Store) notify(t Transition) {
	if s.observer != nil {
		s.observer(t)
	}
}

func (s *Store) stale(c *Candidate, now time.Time) bool {
	timeout := s.timeouts.forStage(c.Stage)
	return timeout > 0 && now.Sub(c.LastUpdatedAt) > timeout
}

// Upsert records a Layer1 detection. A new symbol gets a Layer1Detected
// candidate; a tracked symbol only has LastUpdatedAt refreshed, keeping its
// stage and scores. A tracked candidate already past its timeout is replaced.
func (s *Store) Upsert(symbol string, layer1Score float64) (Candidate, bool) {
	sh := s.shardFor(symbol)
	now := s.now()

	sh.mu.Lock()
	var transitions []Transition
	if c, ok := sh.m[symbol]; ok {
		if !s.stale(c, now) {
			c.LastUpdatedAt = now
			c.Refreshes++
			out := *c
			sh.mu.Unlock()
			return out, false
		}
		transitions = append(transitions, Transition{Symbol: symbol, From: c.Stage, To: Expired, Reason: "timeout", At: now})
	}
	c := &Candidate{
		Symbol:         symbol,
		Stage:          Layer1Detected,
		Layer1Score:    layer1Score,
		FirstSeenAt:    now,
		LastUpdatedAt:  now,
		StageEnteredAt: now,
	}
	sh.m[symbol] = c
	out := *c
	sh.mu.Unlock()

	transitions = append(transitions, Transition{Symbol: symbol, To: Layer1Detected, At: now})
	for _, t := range transitions {
		s.notify(t)
	}
	return out, true
}

// Advance moves a candidate from one stage to the next, recording the score
// of the layer that promoted it. It fails if the candidate is gone or no
// longer at from, so a fetch done without the lock cannot clobber a
// concurrent transition.
func (s *Store) Advance(symbol string, from, to Stage, score float64) (Candidate, error) {
	if to != from+1 || to > Layer3Validated {
		return Candidate{}, fmt.Errorf("%w: %s -> %s", ErrInvalidAdvance, from, to)
	}

	sh := s.shardFor(symbol)
	now := s.now()

	sh.mu.Lock()
	c, ok := sh.m[symbol]
	if !ok {
		sh.mu.Unlock()
		return Candidate{}, fmt.Errorf("%s: %w", symbol, ErrNotFound)
	}
	if c.Stage != from {
		stage := c.Stage
		sh.mu.Unlock()
		return Candidate{}, fmt.Errorf("%s at %s, want %s: %w", symbol, stage, from, ErrStageMismatch)
	}
	switch to {
	case Layer2Confirmed:
		c.Layer2Score = score
	case Layer3Validated:
		c.Layer3Score = score
	}
	c.Stage = to
	c.LastUpdatedAt = now
	c.StageEnteredAt = now
	out := *c
	sh.mu.Unlock()

	s.notify(Transition{Symbol: symbol, From: from, To: to, At: now})
	return out, nil
}

// Expire terminates and evicts the candidate if it is still at stage. A zero
// stage matches any.
func (s *Store) Expire(symbol string, stage Stage, reason string) (Candidate, bool) {
	sh := s.shardFor(symbol)
	now := s.now()

	sh.mu.Lock()
	c, ok := sh.m[symbol]
	if !ok || (stage != 0 && c.Stage != stage) {
		sh.mu.Unlock()
		return Candidate{}, false
	}
	delete(sh.m, symbol)
	from := c.Stage
	out := *c
	sh.mu.Unlock()

	out.Stage = Expired
	out.LastUpdatedAt = now
	s.notify(Transition{Symbol: symbol, From: from, To: Expired, Reason: reason, At: now})
	return out, true
}

// ExpireIfStale evicts the candidate if it sits at stage past its timeout
func (s *Store) ExpireIfStale(symbol string, stage Stage) (Candidate, bool) {
	sh := s.shardFor(symbol)
	now := s.now()

	sh.mu.Lock()
	c, ok := sh.m[symbol]
	if !ok || c.Stage != stage || !s.stale(c, now) {
		sh.mu.Unlock()
		return Candidate{}, false
	}
	delete(sh.m, symbol)
	out := *c
	sh.mu.Unlock()

	out.Stage = Expired
	s.notify(Transition{Symbol: symbol, From: stage, To: Expired, Reason: "timeout", At: now})
	return out, true
}

// Sweep evicts every candidate past its stage timeout
func (s *Store) Sweep() []Candidate {
	now := s.now()
	var expired []Candidate
	var transitions []Transition

	for _, sh := range s.shards {
		sh.mu.Lock()
		for sym, c := range sh.m {
			if !s.stale(c, now) {
				continue
			}
			delete(sh.m, sym)
			transitions = append(transitions, Transition{Symbol: sym, From: c.Stage, To: Expired, Reason: "timeout", At: now})
			out := *c
			out.Stage = Expired
			expired = append(expired, out)
		}
		sh.mu.Unlock()
	}

	for _, t := range transitions {
		s.notify(t)
	}
	return expired
}

// Get returns a copy of the candidate for symbol
func (s *Store) Get(symbol string) (Candidate, bool) {
	sh := s.shardFor(symbol)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	c, ok := sh.m[symbol]
	if !ok {
		return Candidate{}, false
	}
	return *c, true
}

// List returns copies of candidates at stage, ordered by symbol. A zero stage
// lists all.
func (s *Store) List(stage Stage) []Candidate {
	var out []Candidate
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, c := range sh.m {
			if stage == 0 || c.Stage == stage {
				out = append(out, *c)
			}
		}
		sh.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Len returns the number of tracked candidates
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.m)
		sh.mu.Unlock()
	}
	return n
}

// Counts returns tracked candidates per stage
func (s *Store) Counts() map[Stage]int {
	counts := make(map[Stage]int)
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, c := range sh.m {
			counts[c.Stage]++
		}
		sh.mu.Unlock()
	}
	return counts
}

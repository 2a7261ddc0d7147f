package alerts

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// GateStats counts gate decisions
type GateStats struct {
	Emitted    int64 `json:"emitted"`
	Suppressed int64 `json:"suppressed"`
	Failed     int64 `json:"failed"` // cooldown store errors
}

// Gate is the single path from detectors to the sink. It deduplicates alerts
// per symbol and detector kind within the cooldown window.
type Gate struct {
	store      CooldownStore
	sink       Sink
	window     time.Duration
	now        func() time.Time
	onDecision func(kind DetectorKind, emitted bool)

	deliveries sync.WaitGroup
	emitted    atomic.Int64
	suppressed atomic.Int64
	failed     atomic.Int64
}

// GateOption configures a Gate
type GateOption func(*Gate)

// WithGateClock injects the time source
func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) { g.now = now }
}

// WithDecisionHook observes every emit/suppress decision
func WithDecisionHook(fn func(kind DetectorKind, emitted bool)) GateOption {
	return func(g *Gate) { g.onDecision = fn }
}

// NewGate creates an alert gate
func NewGate(store CooldownStore, sink Sink, window time.Duration, opts ...GateOption) *Gate {
	g := &Gate{store: store, sink: sink, window: window, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TryAlert emits p unless (symbol, kind) alerted within the cooldown window.
// Suppression is silent. Delivery runs in the background and its errors are
// only logged.
func (g *Gate) TryAlert(ctx context.Context, symbol string, kind DetectorKind, p Payload) bool {
	now := g.now()
	ok, err := g.store.TryAcquire(ctx, Key{Symbol: symbol, Kind: kind}, now, g.window)
	if err != nil {
		// fail closed
		g.failed.Add(1)
		log.Error().Err(err).Str("symbol", symbol).Str("detector", string(kind)).Msg("Cooldown store failed, alert dropped")
		g.decided(kind, false)
		return false
	}
	if !ok {
		g.suppressed.Add(1)
		log.Debug().Str("symbol", symbol).Str("detector", string(kind)).Msg("Alert suppressed by cooldown")
		g.decided(kind, false)
		return false
	}

	p.Symbol = symbol
	p.DetectorKind = kind
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Timestamp.IsZero() {
		p.Timestamp = now
	}

	g.emitted.Add(1)
	g.decided(kind, true)

	g.deliveries.Add(1)
	go func() {
		defer g.deliveries.Done()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := g.sink.Deliver(dctx, p); err != nil {
			log.Warn().Err(err).Str("alert_id", p.ID).Str("symbol", symbol).Msg("Alert delivery failed")
		}
	}()
	return true
}

func (g *Gate) decided(kind DetectorKind, emitted bool) {
	if g.onDecision != nil {
		g.onDecision(kind, emitted)
	}
}

// Wait blocks until in-flight deliveries finish
func (g *Gate) Wait() {
	g.deliveries.Wait()
}

// Sweep evicts elapsed cooldowns when the store keeps them in memory
func (g *Gate) Sweep() int {
	if m, ok := g.store.(*MemoryCooldowns); ok {
		return m.Sweep(g.now(), g.window)
	}
	return 0
}

// Stats returns decision counters
func (g *Gate) Stats() GateStats {
	return GateStats{
		Emitted:    g.emitted.Load(),
		Suppressed: g.suppressed.Load(),
		Failed:     g.failed.Load(),
	}
}

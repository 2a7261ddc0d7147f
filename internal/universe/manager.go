package universe

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/pumpradar/internal/config"
	"github.com/sawpanic/pumpradar/internal/data/interfaces"
)

// TickerSource supplies the 24h statistics used by the liquidity filter.
type TickerSource interface {
	GetTicker24h(ctx context.Context, symbol string) (interfaces.Ticker24h, error)
}

// Snapshot is an immutable view of the eligible symbols.
type Snapshot struct {
	Symbols     []string  `json:"symbols"`
	RefreshedAt time.Time `json:"refreshed_at"`
	Version     int       `json:"version"`
	Excluded    int       `json:"excluded"`
	Illiquid    int       `json:"illiquid"`
}

// Manager maintains the scan universe. Scans read the last published snapshot
// and never wait for a refresh in progress.
type Manager struct {
	lister  interfaces.SymbolLister
	tickers TickerSource
	cfg     config.UniverseConfig
	exclude []*regexp.Regexp
	workers int
	now     func() time.Time

	refreshMu sync.Mutex
	mu        sync.RWMutex
	snapshot  Snapshot
}

// NewManager compiles the exclusion policy. lister may be nil when the
// configuration names an explicit symbol list.
func NewManager(lister interfaces.SymbolLister, tickers TickerSource, cfg config.UniverseConfig, workers int) (*Manager, error) {
	if lister == nil && len(cfg.Symbols) == 0 {
		return nil, errors.New("universe needs a symbol lister or an explicit symbol list")
	}
	exclude := make([]*regexp.Regexp, 0, len(cfg.Exclude))
	for _, p := range cfg.Exclude {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid exclusion pattern %q: %w", p, err)
		}
		exclude = append(exclude, re)
	}
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		lister:  lister,
		tickers: tickers,
		cfg:     cfg,
		exclude: exclude,
		workers: workers,
		now:     time.Now,
	}, nil
}

// Snapshot returns the last published universe
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Symbols returns the current eligible symbols. The slice must not be modified.
func (m *Manager) Symbols() []string {
	return m.Snapshot().Symbols
}

// Excluded reports whether symbol matches the exclusion policy
func (m *Manager) Excluded(symbol string) bool {
	for _, re := range m.exclude {
		if re.MatchString(symbol) {
			return true
		}
	}
	return false
}

// Refresh rebuilds the universe and publishes it. On failure the previous
// snapshot stays in place.
func (m *Manager) Refresh(ctx context.Context) (Snapshot, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	raw := m.cfg.Symbols
	if len(raw) == 0 {
		listed, err := m.lister.ListSymbols(ctx, m.cfg.QuoteAsset)
		if err != nil {
			return m.Snapshot(), fmt.Errorf("list symbols: %w", err)
		}
		raw = listed
	}

	seen := make(map[string]bool, len(raw))
	candidates := make([]string, 0, len(raw))
	excluded := 0
	for _, s := range raw {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		if m.Excluded(s) {
			excluded++
			continue
		}
		candidates = append(candidates, s)
	}

	eligible, illiquid, err := m.filterLiquidity(ctx, candidates)
	if err != nil {
		return m.Snapshot(), err
	}

	m.mu.Lock()
	m.snapshot = Snapshot{
		Symbols:     eligible,
		RefreshedAt: m.now(),
		Version:     m.snapshot.Version + 1,
		Excluded:    excluded,
		Illiquid:    illiquid,
	}
	snap := m.snapshot
	m.mu.Unlock()

	log.Info().
		Int("symbols", len(snap.Symbols)).
		Int("excluded", excluded).
		Int("illiquid", illiquid).
		Int("version", snap.Version).
		Msg("Universe refreshed")
	return snap, nil
}

// filterLiquidity keeps symbols whose 24h quote volume meets the minimum,
// preserving input order. A zero minimum disables the filter.
func (m *Manager) filterLiquidity(ctx context.Context, symbols []string) ([]string, int, error) {
	if m.cfg.MinQuoteVolume <= 0 || m.tickers == nil {
		return symbols, 0, nil
	}

	keep := make([]bool, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for i, s := range symbols {
		i, s := i, s
		g.Go(func() error {
			t, err := m.tickers.GetTicker24h(gctx, s)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Debug().Err(err).Str("symbol", s).Msg("Ticker unavailable, dropping from universe")
				return nil
			}
			keep[i] = t.QuoteVolume >= m.cfg.MinQuoteVolume
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("liquidity filter: %w", err)
	}

	out := make([]string, 0, len(symbols))
	for i, s := range symbols {
		if keep[i] {
			out = append(out, s)
		}
	}
	return out, len(symbols) - len(out), nil
}

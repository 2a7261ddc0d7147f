package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/pumpradar/internal/alerts"
	"github.com/sawpanic/pumpradar/internal/application/scan"
	"github.com/sawpanic/pumpradar/internal/candidates"
	"github.com/sawpanic/pumpradar/internal/config"
	"github.com/sawpanic/pumpradar/internal/data/interfaces"
	"github.com/sawpanic/pumpradar/internal/datasources"
	"github.com/sawpanic/pumpradar/internal/domain/pump"
	"github.com/sawpanic/pumpradar/internal/domain/volume"
	"github.com/sawpanic/pumpradar/internal/net/ratelimit"
	"github.com/sawpanic/pumpradar/internal/scheduler"
	"github.com/sawpanic/pumpradar/internal/universe"
)

var (
	ErrAlreadyWatching = errors.New("watch already running")
	ErrNotWatching     = errors.New("watch not running")
	ErrUnknownProfile  = errors.New("unknown sensitivity profile")
)

// Telemetry receives the watcher's operational signals
type Telemetry interface {
	scan.Recorder
	ObserveFetch(op string, elapsed time.Duration, err error)
	ObserveLimiterWait(d time.Duration)
	ObserveAlert(kind alerts.DetectorKind, emitted bool)
	ObserveTransition(t candidates.Transition)
	ObserveJob(res scheduler.JobResult)
}

// Deps are the external collaborators of a Watcher
type Deps struct {
	Source    interfaces.MarketDataSource // required
	Lister    interfaces.SymbolLister     // optional when the universe names its symbols
	Sink      alerts.Sink                 // required
	Cooldowns alerts.CooldownStore        // defaults to in-memory
	Activity  pump.ActivityScorer         // defaults to the candle heuristic
	Telemetry Telemetry
	Now       func() time.Time
}

// Watcher is the control surface of the scanner. It owns every shared
// structure for the process lifetime: the rate limiter, the candidate store,
// the alert gate and the scheduler driving the scans.
type Watcher struct {
	cfg       config.Config
	now       func() time.Time
	telemetry Telemetry

	limiter  *ratelimit.Limiter
	source   *datasources.GuardedSource
	universe *universe.Manager
	store    *candidates.Store
	gate     *alerts.Gate
	engine   *scan.Engine
	sched    *scheduler.Scheduler

	lifecycle sync.Mutex // serializes StartWatch and StopWatch

	mu      sync.Mutex
	reports map[scan.Job]scan.TickReport
	skipped map[string]int64
	failed  int64
}

// NewWatcher validates cfg and wires the pipeline. Nothing runs until
// StartWatch.
func NewWatcher(cfg *config.Config, deps Deps) (*Watcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Source == nil {
		return nil, errors.New("watcher: market data source is required")
	}
	if deps.Sink == nil {
		return nil, errors.New("watcher: alert sink is required")
	}
	if deps.Cooldowns == nil {
		deps.Cooldowns = alerts.NewMemoryCooldowns()
	}
	if deps.Activity == nil {
		deps.Activity = pump.NewCandleActivityScorer()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	w := &Watcher{
		cfg:       *cfg,
		now:       deps.Now,
		telemetry: deps.Telemetry,
		reports:   make(map[scan.Job]scan.TickReport),
		skipped:   make(map[string]int64),
	}

	w.limiter = ratelimit.NewWindowLimiter(cfg.Provider.RequestsPerWindow, cfg.Provider.Window, cfg.Provider.Burst)
	w.source = datasources.NewGuardedSource(deps.Source, w.limiter, cfg.Provider)

	storeOpts := []candidates.Option{candidates.WithClock(deps.Now)}
	gateOpts := []alerts.GateOption{alerts.WithGateClock(deps.Now)}
	if t := deps.Telemetry; t != nil {
		w.limiter.OnWait(t.ObserveLimiterWait)
		w.source.SetObserver(t.ObserveFetch)
		storeOpts = append(storeOpts, candidates.WithObserver(t.ObserveTransition))
		gateOpts = append(gateOpts, alerts.WithDecisionHook(t.ObserveAlert))
	}

	var err error
	if w.universe, err = universe.NewManager(deps.Lister, w.source, cfg.Universe, cfg.Workers); err != nil {
		return nil, err
	}
	w.store = candidates.NewStore(candidates.Timeouts{
		Layer1Detected:  cfg.Layer1.StageTimeout,
		Layer2Confirmed: cfg.Layer2.StageTimeout,
	}, storeOpts...)
	w.gate = alerts.NewGate(deps.Cooldowns, deps.Sink, cfg.Cooldown, gateOpts...)

	if w.engine, err = buildEngine(cfg, deps, w); err != nil {
		return nil, err
	}
	if w.sched, err = w.buildScheduler(); err != nil {
		return nil, err
	}
	return w, nil
}

func buildEngine(cfg *config.Config, deps Deps, w *Watcher) (*scan.Engine, error) {
	l1 := pump.DefaultLayer1Config()
	l1.Threshold = cfg.Layer1.Threshold
	l2 := pump.DefaultLayer2Config()
	l2.Threshold = cfg.Layer2.Threshold
	l3 := pump.DefaultLayer3Config()
	l3.Threshold = cfg.Layer3.Threshold

	agg, err := pump.NewAggregator(pump.Weights{
		Layer1: cfg.Weights.Layer1,
		Layer2: cfg.Weights.Layer2,
		Layer3: cfg.Weights.Layer3,
	}, cfg.AlertThreshold)
	if err != nil {
		return nil, err
	}

	profile, err := ResolveProfile(cfg.Volume.Profile, cfg.Volume.Custom)
	if err != nil {
		return nil, err
	}

	fetch := [3]scan.LayerFetch{}
	for i, lc := range []config.LayerConfig{cfg.Layer1, cfg.Layer2, cfg.Layer3} {
		tf, err := interfaces.ParseTimeframe(lc.Timeframe)
		if err != nil {
			return nil, fmt.Errorf("layer%d: %w", i+1, err)
		}
		fetch[i] = scan.LayerFetch{Timeframe: tf, Candles: lc.Candles}
	}
	volumeTFs := make([]interfaces.Timeframe, 0, len(cfg.Volume.Timeframes))
	for _, s := range cfg.Volume.Timeframes {
		tf, err := interfaces.ParseTimeframe(s)
		if err != nil {
			return nil, fmt.Errorf("volume: %w", err)
		}
		volumeTFs = append(volumeTFs, tf)
	}

	layer1 := pump.NewLayer1Scorer(l1)
	layer2 := pump.NewLayer2Scorer(l2, deps.Activity)
	layer3 := pump.NewLayer3Scorer(l3)
	if err := checkCandleWindows(cfg, layer1.MinCandles(), layer2.MinCandles(), layer3.MinCandles()); err != nil {
		return nil, err
	}

	var recorder scan.Recorder
	if deps.Telemetry != nil {
		recorder = deps.Telemetry
	}

	return scan.NewEngine(scan.Deps{
		Source:     w.source,
		Universe:   w.universe,
		Store:      w.store,
		Gate:       w.gate,
		Aggregator: agg,
		Layer1:     layer1,
		Layer2:     layer2,
		Layer3:     layer3,
		Detector: volume.NewDetector(volume.Config{
			ZMin:         cfg.Volume.ZMin,
			MinSamples:   cfg.Volume.MinSamples,
			PriceMovePct: cfg.Volume.PriceMovePct,
		}),
		Profile:          profile,
		Fetch:            fetch,
		VolumeTimeframes: volumeTFs,
		Workers:          cfg.Workers,
		Recorder:         recorder,
		Now:              deps.Now,
	})
}

// checkCandleWindows rejects layers whose fetch window is shorter than their
// scorer needs; such a layer would skip every symbol on every tick.
func checkCandleWindows(cfg *config.Config, need1, need2, need3 int) error {
	var errs []error
	for i, lc := range []struct {
		candles, need int
	}{{cfg.Layer1.Candles, need1}, {cfg.Layer2.Candles, need2}, {cfg.Layer3.Candles, need3}} {
		if lc.candles < lc.need {
			errs = append(errs, fmt.Errorf("layer%d.candles %d below the %d the scorer needs", i+1, lc.candles, lc.need))
		}
	}
	if len(errs) > 0 {
		return &config.ConfigurationError{Err: errors.Join(errs...)}
	}
	return nil
}

func (w *Watcher) buildScheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(w.cfg.GracePeriod, scheduler.WithClock(w.now), scheduler.WithResultHook(w.onJobResult))

	jobs := []scheduler.Job{
		{Name: string(scan.JobLayer1), Interval: w.cfg.Layer1.Interval, Immediate: true, Run: w.tick(w.engine.RunLayer1)},
		{Name: string(scan.JobLayer2), Interval: w.cfg.Layer2.Interval, Run: w.tick(w.engine.RunLayer2)},
		{Name: string(scan.JobLayer3), Interval: w.cfg.Layer3.Interval, Run: w.tick(w.engine.RunLayer3)},
		{Name: string(scan.JobVolume), Interval: w.cfg.Volume.Interval, Immediate: true, Run: w.tick(w.runVolume)},
		{Name: string(scan.JobUniverse), Interval: w.cfg.Universe.RefreshInterval, Run: w.refreshUniverse},
	}
	for _, j := range jobs {
		if err := s.Add(j); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (w *Watcher) tick(run func(context.Context) (scan.TickReport, error)) scheduler.Task {
	return func(ctx context.Context) error {
		rep, err := run(ctx)
		w.record(rep)
		return err
	}
}

// runVolume also bounds cooldown memory; the volume job ticks most often
// after Layer1 and every alert kind shares the gate.
func (w *Watcher) runVolume(ctx context.Context) (scan.TickReport, error) {
	rep, err := w.engine.RunVolume(ctx)
	if n := w.gate.Sweep(); n > 0 {
		log.Debug().Int("evicted", n).Msg("Expired alert cooldowns evicted")
	}
	return rep, err
}

func (w *Watcher) refreshUniverse(ctx context.Context) error {
	_, err := w.universe.Refresh(ctx)
	return err
}

func (w *Watcher) record(rep scan.TickReport) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reports[rep.Job] = rep
	for reason, n := range rep.Skipped {
		w.skipped[reason] += int64(n)
	}
}

func (w *Watcher) onJobResult(res scheduler.JobResult) {
	if !res.Success && !strings.Contains(res.Error, context.Canceled.Error()) {
		w.mu.Lock()
		w.failed++
		w.mu.Unlock()
	}
	if w.telemetry != nil {
		w.telemetry.ObserveJob(res)
	}
}

// StartWatch refreshes the universe if it was never loaded and starts every
// periodic scan. The scans outlive ctx; only StopWatch ends them.
func (w *Watcher) StartWatch(ctx context.Context) error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if w.sched.Running() {
		return ErrAlreadyWatching
	}
	if w.universe.Snapshot().Version == 0 {
		if _, err := w.universe.Refresh(ctx); err != nil {
			return fmt.Errorf("initial universe refresh: %w", err)
		}
	}
	if err := w.sched.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	log.Info().
		Int("symbols", len(w.universe.Symbols())).
		Str("profile", w.engine.Profile().Name).
		Msg("Watch started")
	return nil
}

// StopWatch halts the timers, lets in-flight fetches drain within the grace
// period and waits for queued alert deliveries.
func (w *Watcher) StopWatch() error {
	w.lifecycle.Lock()
	defer w.lifecycle.Unlock()

	if !w.sched.Running() {
		return ErrNotWatching
	}
	err := w.sched.Stop()
	w.gate.Wait()
	if errors.Is(err, scheduler.ErrDrainTimeout) {
		log.Warn().Err(err).Msg("Watch stopped after cancelling in-flight scans")
		return nil
	}
	log.Info().Msg("Watch stopped")
	return err
}

// Running reports whether periodic scans are active
func (w *Watcher) Running() bool {
	return w.sched.Running()
}

// ManualScan scores one symbol immediately without touching pipeline state
func (w *Watcher) ManualScan(ctx context.Context, symbol string) (scan.ManualResult, error) {
	return w.engine.ManualScan(ctx, symbol)
}

// SetSensitivityProfile switches the volume detector to a preset, or to the
// configured custom values when name is "custom".
func (w *Watcher) SetSensitivityProfile(name string) error {
	p, err := ResolveProfile(name, w.cfg.Volume.Custom)
	if err != nil {
		return err
	}
	return w.SetCustomProfile(p)
}

// SetCustomProfile switches the volume detector to arbitrary values
func (w *Watcher) SetCustomProfile(p volume.Profile) error {
	if err := w.engine.SetProfile(p); err != nil {
		return err
	}
	log.Info().
		Str("profile", p.Name).
		Float64("multiplier", p.Multiplier).
		Float64("min_increase_pct", p.MinIncreasePct).
		Int("lookback", p.Lookback).
		Msg("Sensitivity profile changed")
	return nil
}

// Profile returns the active sensitivity profile
func (w *Watcher) Profile() volume.Profile {
	return w.engine.Profile()
}

// RefreshUniverse forces a universe refresh outside the schedule
func (w *Watcher) RefreshUniverse(ctx context.Context) (universe.Snapshot, error) {
	return w.universe.Refresh(ctx)
}

// Candidates lists tracked candidates, optionally filtered by stage
func (w *Watcher) Candidates(stage candidates.Stage) []candidates.Candidate {
	return w.store.List(stage)
}

// CandidateCounts returns tracked candidates per stage
func (w *Watcher) CandidateCounts() map[candidates.Stage]int {
	return w.store.Counts()
}

// UniverseSize returns the number of symbols in the current snapshot
func (w *Watcher) UniverseSize() int {
	return len(w.universe.Symbols())
}

// ResolveProfile maps a profile name to its values
func ResolveProfile(name string, custom config.ProfileValues) (volume.Profile, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "custom" {
		p := volume.Profile{
			Name:           "custom",
			Multiplier:     custom.Multiplier,
			MinIncreasePct: custom.MinIncreasePct,
			Lookback:       custom.Lookback,
		}
		return p, p.Validate()
	}
	if p, ok := volume.ProfileByName(name); ok {
		return p, nil
	}
	return volume.Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrNotRunning     = errors.New("scheduler not running")
	ErrDrainTimeout   = errors.New("in-flight jobs did not finish within the grace period")
)

// Task is the work a job performs on each tick
type Task func(ctx context.Context) error

// Job is a periodic task
type Job struct {
	Name      string
	Interval  time.Duration
	Immediate bool // run once as soon as the scheduler starts
	Run       Task
}

// JobResult is the outcome of one run
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// JobStatus reports one job's counters
type JobStatus struct {
	Name       string        `json:"name"`
	Interval   time.Duration `json:"interval"`
	Running    bool          `json:"running"`
	LastRun    time.Time     `json:"last_run,omitempty"`
	LastResult *JobResult    `json:"last_result,omitempty"`
	Runs       int64         `json:"runs"`
	Failures   int64         `json:"failures"`
	Overlaps   int64         `json:"overlaps"` // ticks skipped because the previous run was still going
}

// Status represents scheduler status
type Status struct {
	Running   bool          `json:"running"`
	StartedAt time.Time     `json:"started_at,omitempty"`
	Uptime    time.Duration `json:"uptime"`
	Jobs      []JobStatus   `json:"jobs"`
}

type jobState struct {
	Job
	running  atomic.Bool
	runs     atomic.Int64
	failures atomic.Int64
	overlaps atomic.Int64

	mu   sync.Mutex
	last *JobResult
}

// Scheduler drives each job from its own ticker. A tick that lands while the
// job's previous run is still in flight is skipped, never queued.
type Scheduler struct {
	grace    time.Duration
	now      func() time.Time
	onResult func(JobResult)

	mu         sync.Mutex
	jobs       []*jobState
	running    bool
	startedAt  time.Time
	tickCancel context.CancelFunc
	workCancel context.CancelFunc
	loops      sync.WaitGroup
	inflight   sync.WaitGroup
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock injects the time source used for results
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithResultHook observes every finished run
func WithResultHook(fn func(JobResult)) Option {
	return func(s *Scheduler) { s.onResult = fn }
}

// New creates a scheduler whose Stop waits up to grace for in-flight runs
func New(grace time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{grace: grace, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a job. Jobs cannot be added while running.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return errors.New("job needs a name and a task")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	for _, j := range s.jobs {
		if j.Name == job.Name {
			return fmt.Errorf("job %s already registered", job.Name)
		}
	}
	s.jobs = append(s.jobs, &jobState{Job: job})
	return nil
}

// Start launches every job loop and returns immediately. Cancelling ctx
// halts the tickers and cancels running work.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	workCtx, workCancel := context.WithCancel(ctx)
	tickCtx, tickCancel := context.WithCancel(workCtx)
	s.running = true
	s.startedAt = s.now()
	s.workCancel = workCancel
	s.tickCancel = tickCancel

	for _, j := range s.jobs {
		s.loops.Add(1)
		go s.loop(tickCtx, workCtx, j)
	}

	log.Info().Int("jobs", len(s.jobs)).Msg("Scheduler starting")
	return nil
}

// Stop halts every ticker, then waits up to the grace period for in-flight
// runs before cancelling them.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	tickCancel, workCancel := s.tickCancel, s.workCancel
	s.mu.Unlock()

	tickCancel()
	s.loops.Wait()

	drained := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(drained)
	}()

	var err error
	select {
	case <-drained:
	case <-time.After(s.grace):
		err = ErrDrainTimeout
		log.Warn().Dur("grace", s.grace).Msg("Cancelling in-flight jobs")
		workCancel()
		<-drained
	}
	workCancel()

	log.Info().Msg("Scheduler stopped")
	return err
}

// Running reports whether the scheduler is started
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// GetStatus returns current scheduler status
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	st := Status{Running: s.running, StartedAt: s.startedAt}
	jobs := append([]*jobState(nil), s.jobs...)
	s.mu.Unlock()

	if st.Running {
		st.Uptime = s.now().Sub(st.StartedAt)
	}
	for _, j := range jobs {
		js := JobStatus{
			Name:     j.Name,
			Interval: j.Interval,
			Running:  j.running.Load(),
			Runs:     j.runs.Load(),
			Failures: j.failures.Load(),
			Overlaps: j.overlaps.Load(),
		}
		j.mu.Lock()
		if j.last != nil {
			last := *j.last
			js.LastResult = &last
			js.LastRun = last.StartTime
		}
		j.mu.Unlock()
		st.Jobs = append(st.Jobs, js)
	}
	sort.Slice(st.Jobs, func(a, b int) bool { return st.Jobs[a].Name < st.Jobs[b].Name })
	return st
}

// LastRuns maps job name to the start of its latest run
func (s *Scheduler) LastRuns() map[string]time.Time {
	out := make(map[string]time.Time)
	for _, js := range s.GetStatus().Jobs {
		if !js.LastRun.IsZero() {
			out[js.Name] = js.LastRun
		}
	}
	return out
}

func (s *Scheduler) loop(tickCtx, workCtx context.Context, j *jobState) {
	defer s.loops.Done()

	if j.Immediate {
		s.fire(workCtx, j)
	}

	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-tickCtx.Done():
			return
		case <-ticker.C:
			s.fire(workCtx, j)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, j *jobState) {
	if !j.running.CompareAndSwap(false, true) {
		j.overlaps.Add(1)
		log.Debug().Str("job", j.Name).Msg("Previous run still in flight, skipping tick")
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer j.running.Store(false)
		s.execute(ctx, j)
	}()
}

func (s *Scheduler) execute(ctx context.Context, j *jobState) {
	start := s.now()
	err := runSafely(ctx, j.Run)
	end := s.now()

	res := JobResult{
		JobName:   j.Name,
		StartTime: start,
		EndTime:   end,
		Duration:  end.Sub(start),
		Success:   err == nil,
	}
	j.runs.Add(1)
	if err != nil {
		res.Error = err.Error()
		j.failures.Add(1)
		if !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("job", j.Name).Msg("Job failed")
		}
	}

	j.mu.Lock()
	j.last = &res
	j.mu.Unlock()

	if s.onResult != nil {
		s.onResult(res)
	}
}

func runSafely(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return task(ctx)
}

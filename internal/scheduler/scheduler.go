// Package scheduler runs the pipeline stages on their own cadences.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Farenheit/internal/domain/models"
	domrepo "Farenheit/internal/domain/repository"
	applogger "Farenheit/pkg/logger"
)

// ErrStageRunning is returned when a stage is already running here or on
// another instance holding its lock.
var ErrStageRunning = errors.New("stage already running")

// StageFunc is a stage entry point.
type StageFunc func(ctx context.Context) (*models.StageSummary, error)

// Stage is one schedulable pipeline stage.
type Stage struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      StageFunc
}

type Config struct {
	LockTTL     time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	RunOnStart  bool
}

type Scheduler struct {
	cfg     Config
	stages  map[string]Stage
	order   []string
	running map[string]*sync.Mutex
	runs    domrepo.JobRunStore
	locker  domrepo.Locker
	metrics domrepo.Metrics
	l       *applogger.Logger
	now     func() time.Time

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

type Option func(*Scheduler)

// WithLocker adds a cross-instance lock on top of the in-process one.
func WithLocker(l domrepo.Locker) Option { return func(s *Scheduler) { s.locker = l } }

func WithMetrics(m domrepo.Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

func WithLogger(l *applogger.Logger) Option { return func(s *Scheduler) { s.l = l } }

func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

func New(cfg Config, runs domrepo.JobRunStore, stages []Stage, opts ...Option) *Scheduler {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.BackoffMax < cfg.BackoffBase {
		cfg.BackoffMax = cfg.BackoffBase
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 3 * time.Hour
	}
	s := &Scheduler{
		cfg:     cfg,
		stages:  make(map[string]Stage, len(stages)),
		running: make(map[string]*sync.Mutex, len(stages)),
		runs:    runs,
		now:     time.Now,
	}
	for _, st := range stages {
		s.stages[st.Name] = st
		s.order = append(s.order, st.Name)
		s.running[st.Name] = &sync.Mutex{}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches one ticker loop per stage.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, name := range s.order {
		st := s.stages[name]
		if st.Interval <= 0 {
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, st)
	}
	if s.l != nil {
		s.l.Info("scheduler started", applogger.Strings("stages", s.order))
	}
}

// Stop cancels running stages and waits for the loops to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, st Stage) {
	defer s.wg.Done()
	ticker := time.NewTicker(st.Interval)
	defer ticker.Stop()

	if s.cfg.RunOnStart {
		s.fire(ctx, st)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fire(ctx, st)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, st Stage) {
	if _, err := s.RunStage(ctx, st.Name); err != nil && s.l != nil {
		if errors.Is(err, ErrStageRunning) {
			s.l.Info("stage skipped, previous run still active", applogger.String("stage", st.Name))
			return
		}
		s.l.Error("stage failed", applogger.String("stage", st.Name), applogger.Error(err))
	}
}

// RunStage runs a stage now, retrying job-level failures with exponential
// backoff. Every attempt is recorded as a JobRun.
func (s *Scheduler) RunStage(ctx context.Context, name string) (*models.StageSummary, error) {
	st, ok := s.stages[name]
	if !ok {
		return nil, fmt.Errorf("stage %q: %w", name, models.ErrNotFound)
	}
	mu := s.running[name]
	if !mu.TryLock() {
		return nil, ErrStageRunning
	}
	defer mu.Unlock()

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, "stage:"+name, s.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire %s lock: %w", name, err)
		}
		if !ok {
			return nil, ErrStageRunning
		}
		defer release()
	}

	var (
		sum *models.StageSummary
		err error
	)
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		sum, err = s.attempt(ctx, st, attempt)
		if err == nil {
			return sum, nil
		}
		if attempt == s.cfg.MaxAttempts || ctx.Err() != nil {
			break
		}
		wait := s.backoff(attempt)
		if s.l != nil {
			s.l.Warn("stage attempt failed, retrying",
				applogger.String("stage", name),
				applogger.Int("attempt", attempt),
				applogger.Duration("backoff_ms", wait),
				applogger.Error(err),
			)
		}
		select {
		case <-ctx.Done():
			return sum, errors.Join(err, ctx.Err())
		case <-time.After(wait):
		}
	}
	return sum, fmt.Errorf("stage %s: %w", name, err)
}

func (s *Scheduler) attempt(parent context.Context, st Stage, attempt int) (*models.StageSummary, error) {
	run := models.NewJobRun(st.Name, attempt, s.now())
	s.record(parent, run, false)

	ctx := parent
	if st.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, st.Timeout)
		defer cancel()
	}

	start := time.Now()
	sum, err := st.Run(ctx)
	records := 0
	if sum != nil {
		records = sum.Records
	}
	run.Finish(s.now(), records, err)
	s.record(parent, run, true)

	if s.metrics != nil {
		s.metrics.RecordStageRun(st.Name, string(run.Status), time.Since(start).Seconds())
		if err != nil {
			s.metrics.RecordError("stage_" + st.Name)
		}
	}
	if err == nil && s.l != nil {
		fields := []applogger.Field{
			applogger.String("stage", st.Name),
			applogger.Int("attempt", attempt),
			applogger.Duration("duration_ms", time.Since(start)),
		}
		if sum != nil {
			fields = append(fields,
				applogger.Any("counts", sum.Counts),
				applogger.Int("ok", sum.Units.OK),
				applogger.Int("skipped", sum.Units.Skipped),
				applogger.Int("failed", sum.Units.Failed),
			)
		}
		s.l.Info("stage complete", fields...)
	}
	return sum, err
}

// record writes run bookkeeping; failures are logged and never fail the stage.
func (s *Scheduler) record(parent context.Context, run *models.JobRun, finished bool) {
	if s.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), 5*time.Second)
	defer cancel()
	var err error
	if finished {
		err = s.runs.Finish(ctx, run)
	} else {
		err = s.runs.Create(ctx, run)
	}
	if err != nil && s.l != nil {
		s.l.Warn("job run bookkeeping failed",
			applogger.String("stage", run.JobType),
			applogger.String("run_id", run.ID.String()),
			applogger.Error(err),
		)
	}
}

func (s *Scheduler) backoff(attempt int) time.Duration {
	d := s.cfg.BackoffBase << (attempt - 1)
	if d <= 0 || d > s.cfg.BackoffMax {
		return s.cfg.BackoffMax
	}
	return d
}

// Stages returns the registered stage names in registration order.
func (s *Scheduler) Stages() []string {
	return append([]string(nil), s.order...)
}

package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"Farenheit/internal/domain/models"
	"Farenheit/internal/repository"
	svccache "Farenheit/internal/service/cache"
	pkgcache "Farenheit/pkg/cache"
)

func okSummary(stage string) *models.StageSummary {
	s := models.NewStageSummary(stage, time.Now())
	s.Done(time.Now(), 3)
	return s
}

func flaky(failures int32) (StageFunc, *int32) {
	var calls int32
	return func(ctx context.Context) (*models.StageSummary, error) {
		if atomic.AddInt32(&calls, 1) <= failures {
			return nil, errors.New("store unreachable")
		}
		return okSummary("collect"), nil
	}, &calls
}

func testConfig() Config {
	return Config{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMax: 2 * time.Millisecond}
}

func TestRunStageRetriesAndRecordsRuns(t *testing.T) {
	runs := repository.NewMemoryJobRunStore()
	fn, calls := flaky(2)
	s := New(testConfig(), runs, []Stage{{Name: "collect", Timeout: time.Second, Run: fn}})

	sum, err := s.RunStage(context.Background(), "collect")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Records != 3 || atomic.LoadInt32(calls) != 3 {
		t.Fatalf("records=%d calls=%d", sum.Records, *calls)
	}
	got := runs.Runs()
	if len(got) != 3 {
		t.Fatalf("expected 3 job runs, got %d", len(got))
	}
	wantStatus := []models.JobStatus{models.JobFailed, models.JobFailed, models.JobSuccess}
	for i, r := range got {
		if r.Status != wantStatus[i] || r.Attempt != i+1 || r.FinishedAt == nil {
			t.Fatalf("run %d = %+v", i, r)
		}
	}
	if got[0].ErrorMsg == "" || got[2].RecordsCollected != 3 {
		t.Fatalf("unexpected bookkeeping %+v", got)
	}
}

func TestRunStageGivesUpAfterMaxAttempts(t *testing.T) {
	runs := repository.NewMemoryJobRunStore()
	fn, calls := flaky(10)
	s := New(testConfig(), runs, []Stage{{Name: "predict", Run: fn}})

	if _, err := s.RunStage(context.Background(), "predict"); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(calls) != 3 || len(runs.Runs()) != 3 {
		t.Fatalf("calls=%d runs=%d", *calls, len(runs.Runs()))
	}
}

func TestRunStageSkipsWhileRunning(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := New(testConfig(), nil, []Stage{{Name: "alert", Run: func(ctx context.Context) (*models.StageSummary, error) {
		close(started)
		<-release
		return okSummary("alert"), nil
	}}})

	done := make(chan error, 1)
	go func() {
		_, err := s.RunStage(context.Background(), "alert")
		done <- err
	}()
	<-started
	if _, err := s.RunStage(context.Background(), "alert"); !errors.Is(err, ErrStageRunning) {
		t.Fatalf("expected ErrStageRunning, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
}

func TestRunStageHonoursSharedLock(t *testing.T) {
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	locker := svccache.NewLocker(mem)

	held, ok, err := locker.Acquire(context.Background(), "stage:retain", time.Minute)
	if err != nil || !ok {
		t.Fatalf("pre-acquire: ok=%v err=%v", ok, err)
	}

	var calls int32
	s := New(testConfig(), nil, []Stage{{Name: "retain", Run: func(ctx context.Context) (*models.StageSummary, error) {
		atomic.AddInt32(&calls, 1)
		return okSummary("retain"), nil
	}}}, WithLocker(locker))

	if _, err := s.RunStage(context.Background(), "retain"); !errors.Is(err, ErrStageRunning) {
		t.Fatalf("expected ErrStageRunning, got %v", err)
	}
	held()
	if _, err := s.RunStage(context.Background(), "retain"); err != nil {
		t.Fatalf("run after release: %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestRunStageTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.MaxAttempts = 1
	s := New(cfg, nil, []Stage{{Name: "recommend", Timeout: 5 * time.Millisecond, Run: func(ctx context.Context) (*models.StageSummary, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}})
	if _, err := s.RunStage(context.Background(), "recommend"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestStartFiresOnInterval(t *testing.T) {
	var calls int32
	s := New(testConfig(), nil, []Stage{{Name: "collect", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) (*models.StageSummary, error) {
		atomic.AddInt32(&calls, 1)
		return okSummary("collect"), nil
	}}})
	s.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&calls) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	s.Stop()
	if atomic.LoadInt32(&calls) < 2 {
		t.Fatalf("stage fired %d times", calls)
	}
}

func TestUnknownStage(t *testing.T) {
	s := New(testConfig(), nil, nil)
	if _, err := s.RunStage(context.Background(), "nope"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	s := New(Config{BackoffBase: time.Second, BackoffMax: 3 * time.Second}, nil, nil)
	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second, 3 * time.Second}
	for i, w := range want {
		if got := s.backoff(i + 1); got != w {
			t.Fatalf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Farenheit/internal/domain/models"
	domrepo "Farenheit/internal/domain/repository"
	applogger "Farenheit/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// StageOptions carries what every pipeline stage shares.
type StageOptions struct {
	Concurrency int
	UnitTimeout time.Duration
	Now         func() time.Time
	Logger      *applogger.Logger
	Metrics     domrepo.Metrics
}

func (o StageOptions) normalize() StageOptions {
	if o.Concurrency < 1 {
		o.Concurrency = 1
	}
	if o.UnitTimeout <= 0 {
		o.UnitTimeout = 45 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Metrics == nil {
		o.Metrics = nopMetrics{}
	}
	return o
}

// runUnits executes fn for every item with bounded fan-out and a per-unit
// timeout. Unit failures never abort the run; cancellation of ctx stops
// launching new units and is returned.
func runUnits[T fmt.Stringer](ctx context.Context, o StageOptions, stage string, items []T, fn func(context.Context, T) models.UnitResult) ([]models.UnitResult, error) {
	results := make([]models.UnitResult, len(items))
	launched := 0

	var g errgroup.Group
	g.SetLimit(o.Concurrency)
	for i, it := range items {
		if ctx.Err() != nil {
			break
		}
		launched = i + 1
		g.Go(func() error {
			uctx, cancel := context.WithTimeout(ctx, o.UnitTimeout)
			defer cancel()
			results[i] = fn(uctx, it)
			if results[i].Unit == "" {
				results[i].Unit = it.String()
			}
			return nil
		})
	}
	_ = g.Wait()
	results = results[:launched]

	for _, r := range results {
		o.Metrics.RecordUnit(stage, r.Outcome.String())
		if r.Outcome == models.OutcomeFailed && o.Logger != nil {
			o.Logger.Warn("unit failed",
				applogger.String("stage", stage),
				applogger.String("unit", r.Unit),
				applogger.Error(r.Err),
			)
		}
	}
	return results, ctx.Err()
}

// ErrAllUnitsFailed marks a stage run in which every attempted unit failed.
// It usually means a shared dependency (store, price source) is down, so the
// run is reported as failed and retried instead of counted as a success.
var ErrAllUnitsFailed = errors.New("all units failed")

// finish tallies unit results into sum and closes it.
func finish(sum *models.StageSummary, results []models.UnitResult, runErr error, now time.Time, records int) (*models.StageSummary, error) {
	var firstErr error
	for _, r := range results {
		sum.Units.Add(r)
		if firstErr == nil && r.Outcome == models.OutcomeFailed {
			firstErr = r.Err
		}
	}
	if runErr == nil && sum.Units.Failed > 0 && sum.Units.OK == 0 {
		runErr = fmt.Errorf("%s: %w (%d units)", sum.Stage, ErrAllUnitsFailed, sum.Units.Failed)
		if firstErr != nil {
			runErr = fmt.Errorf("%w: %w", runErr, firstErr)
		}
	}
	if runErr != nil {
		sum.FinishedAt = now
		sum.Records = records
		sum.Status = models.JobFailed
		return sum, runErr
	}
	sum.Done(now, records)
	return sum, nil
}

type nopMetrics struct{}

func (nopMetrics) RecordStageRun(string, string, float64) {}
func (nopMetrics) RecordUnit(string, string) {}
func (nopMetrics) RecordObservationsStored(string, int) {}
func (nopMetrics) RecordPredictionUpserted(string, bool) {}
func (nopMetrics) RecordAlertTriggered() {}
func (nopMetrics) RecordSignal(string) {}
func (nopMetrics) RecordError(string) {}
func (nopMetrics) RecordLatency(string, float64) {}

// seriesUnit is one route/departure/cabin triple.
type seriesUnit struct {
	route     models.Route
	departure time.Time
	cabin     models.CabinClass
}

func (u seriesUnit) String() string {
	return fmt.Sprintf("%s/%s/%s", u.route.Code(), u.departure.Format("2006-01-02"), u.cabin)
}

// expandUnits crosses routes, cabins and departure offsets (in days from today).
func expandUnits(routes []models.Route, cabins []models.CabinClass, today time.Time, offsets []int) []seriesUnit {
	units := make([]seriesUnit, 0, len(routes)*len(cabins)*len(offsets))
	for _, r := range routes {
		for _, c := range cabins {
			for _, d := range offsets {
				units = append(units, seriesUnit{route: r, departure: today.AddDate(0, 0, d), cabin: c})
			}
		}
	}
	return units
}

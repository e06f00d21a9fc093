package models

import "time"

// Pipeline stage names.
const (
	StageCollect   = "collect"
	StagePredict   = "predict"
	StageRecommend = "recommend"
	StageAlert     = "alert"
	StageRetain    = "retain"
)

// Outcome tags a per-unit result.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "failed"
	}
}

// UnitResult is the outcome of one unit of stage work (a route/date/cabin
// triple, an alert, ...). Failures stay local to the unit.
type UnitResult struct {
	Unit    string
	Outcome Outcome
	Reason  string
	Err     error
}

func UnitOK(unit string) UnitResult { return UnitResult{Unit: unit, Outcome: OutcomeOK} }

func UnitSkipped(unit, reason string) UnitResult {
	return UnitResult{Unit: unit, Outcome: OutcomeSkipped, Reason: reason}
}

func UnitFailed(unit string, err error) UnitResult {
	return UnitResult{Unit: unit, Outcome: OutcomeFailed, Err: err}
}

// Tally aggregates unit results.
type Tally struct {
	OK      int `json:"ok"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Add counts r.
func (t *Tally) Add(r UnitResult) {
	switch r.Outcome {
	case OutcomeOK:
		t.OK++
	case OutcomeSkipped:
		t.Skipped++
	default:
		t.Failed++
	}
}

// Total returns the number of units seen.
func (t Tally) Total() int { return t.OK + t.Skipped + t.Failed }

// StageSummary is what every stage entry point returns.
type StageSummary struct {
	Stage      string         `json:"stage"`
	Status     JobStatus      `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Counts     map[string]int `json:"counts"`
	Units      Tally          `json:"units"`
	// Records is the count stored on the JobRun row.
	Records int `json:"records"`
}

// NewStageSummary starts a summary for stage.
func NewStageSummary(stage string, now time.Time) *StageSummary {
	return &StageSummary{
		Stage:     stage,
		Status:    JobRunning,
		StartedAt: now,
		Counts:    map[string]int{},
	}
}

// Inc adds n to a named counter.
func (s *StageSummary) Inc(key string, n int) { s.Counts[key] += n }

// Done marks the summary finished.
func (s *StageSummary) Done(now time.Time, records int) {
	s.FinishedAt = now
	s.Records = records
	s.Status = JobSuccess
}

package migrate

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"
)

// Status is the result of loading one entity.
type Status string

const (
	StatusCreated Status = "created"
	StatusUpdated Status = "updated"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "error"
)

// Outcome is the result of one entity write. Stages return outcomes instead
// of stopping on the first failure.
type Outcome struct {
	Key    string
	Status Status
	Reason string
	Err    error
}

func skipped(key, reason string) Outcome {
	return Outcome{Key: key, Status: StatusSkipped, Reason: reason}
}

func failed(key string, err error) Outcome {
	return Outcome{Key: key, Status: StatusFailed, Err: err}
}

// Issue is a skipped or failed entity as persisted in the report.
type Issue struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// StageReport counts the outcomes of one stage.
type StageReport struct {
	Stage      string  `json:"stage"`
	Created    int     `json:"created"`
	Updated    int     `json:"updated"`
	Skipped    int     `json:"skipped"`
	Errors     int     `json:"errors"`
	DurationMS int64   `json:"duration_ms"`
	Skips      []Issue `json:"skips,omitempty"`
	Failures   []Issue `json:"failures,omitempty"`
}

// Fold adds outcomes to the stage counters.
func (s *StageReport) Fold(outcomes []Outcome) {
	for _, o := range outcomes {
		switch o.Status {
		case StatusCreated:
			s.Created++
		case StatusUpdated:
			s.Updated++
		case StatusSkipped:
			s.Skipped++
			s.Skips = append(s.Skips, Issue{Key: o.Key, Reason: o.Reason})
		case StatusFailed:
			s.Errors++
			s.Failures = append(s.Failures, Issue{Key: o.Key, Reason: fmt.Sprint(o.Err)})
		}
	}
}

// Report is the result of one load run.
type Report struct {
	RunID        string        `json:"run_id"`
	Backend      string        `json:"backend"`
	DryRun       bool          `json:"dry_run"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Stages       []StageReport `json:"stages"`
	Errors       int           `json:"errors"`
	Revalidation string        `json:"revalidation,omitempty"`
	IDs          *LoadContext  `json:"-"`
}

// Failed reports whether any entity failed to load.
func (r *Report) Failed() bool { return r.Errors > 0 }

// Stage returns the report of the named stage, or nil.
func (r *Report) Stage(name string) *StageReport {
	for i := range r.Stages {
		if r.Stages[i].Stage == name {
			return &r.Stages[i]
		}
	}
	return nil
}

// WriteTable prints the per-stage summary table.
func (r *Report) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tCREATED\tUPDATED\tSKIPPED\tERRORS\tDURATION")
	for _, s := range r.Stages {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n", s.Stage, s.Created, s.Updated, s.Skipped, s.Errors,
			(time.Duration(s.DurationMS) * time.Millisecond).String())
	}
	fmt.Fprintf(tw, "total errors\t\t\t\t%d\t\n", r.Errors)
	return tw.Flush()
}

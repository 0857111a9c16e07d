package sweep

import (
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/pfemlab/pfemrun/internal/fsutil"
	"github.com/pfemlab/pfemrun/internal/runner"
)

// AggregateFile is the summary written into the sweep output directory.
const AggregateFile = "sweep.json"

// Status is the outcome of one sweep run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusSkipped   Status = "skipped" // never started because the sweep was cancelled
)

// RunRecord is the outcome of one grid point.
type RunRecord struct {
	Index      int                   `json:"index"`
	Name       string                `json:"name"`
	Assignment map[string]string     `json:"assignment"`
	Dir        string                `json:"dir"`
	Status     Status                `json:"status"`
	Success    bool                  `json:"success"`
	ExitCode   int                   `json:"exit_code"`
	Outputs    []string              `json:"outputs,omitempty"`
	Summary    *runner.ResultSummary `json:"result_summary,omitempty"`
	Error      string                `json:"error,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
}

// Aggregate is the persisted sweep summary. Runs are ordered by index and
// hold only grid points that have finished.
type Aggregate struct {
	SweepID     string      `json:"sweep_id"`
	Fingerprint string      `json:"fingerprint"`
	Chapter     string      `json:"chapter"`
	Program     string      `json:"program"`
	BaseCase    string      `json:"base_case"`
	BaseInput   string      `json:"base_input"`
	OutDir      string      `json:"out_dir"`
	Params      []Param     `json:"params"`
	Total       int         `json:"total"`
	Succeeded   int         `json:"succeeded"`
	Failed      int         `json:"failed"`
	Skipped     int         `json:"skipped"`
	Complete    bool        `json:"complete"`
	Runs        []RunRecord `json:"runs"`
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at,omitempty"`
}

func (a *Aggregate) add(rec RunRecord) {
	i := sort.Search(len(a.Runs), func(i int) bool { return a.Runs[i].Index >= rec.Index })
	a.Runs = append(a.Runs, RunRecord{})
	copy(a.Runs[i+1:], a.Runs[i:])
	a.Runs[i] = rec

	switch rec.Status {
	case StatusSucceeded:
		a.Succeeded++
	case StatusSkipped:
		a.Skipped++
	default:
		a.Failed++
	}
}

// FailedRuns returns the records of runs that did not succeed or skip.
func (a *Aggregate) FailedRuns() []RunRecord {
	var out []RunRecord
	for _, r := range a.Runs {
		if r.Status == StatusFailed || r.Status == StatusTimeout {
			out = append(out, r)
		}
	}
	return out
}

// write persists the aggregate atomically, so a crash leaves the last
// completed state readable.
func (a *Aggregate) write(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, append(data, '\n'), 0o644)
}

// ReadAggregate loads a persisted aggregate.
func ReadAggregate(path string) (*Aggregate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a Aggregate
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

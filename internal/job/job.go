package job

import (
	"time"

	"leadflow/internal/dataset"
	"leadflow/internal/workflow"
)

// ─────────────────────────────────────────────────────────────
// Job — one execution attempt of a workflow
// ─────────────────────────────────────────────────────────────

// Status is the lifecycle state of a job or of a single block within it.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	// StatusSkipped marks blocks after a failed or cancelled one. Jobs
	// themselves are never skipped.
	StatusSkipped Status = "skipped"
)

// Terminal reports whether a job in this status can still change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// StepState is the per-block portion of a job's progress record.
type StepState struct {
	Status       Status         `json:"status"`
	RowsAffected int            `json:"rowsAffected"`
	OutputPath   string         `json:"outputPath,omitempty"`
	Preview      []dataset.Row  `json:"preview,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	ErrorDetails map[string]any `json:"errorDetails,omitempty"`
}

// Preview is a bounded sample of a job's final dataset.
type Preview struct {
	Columns []string      `json:"columns"`
	Rows    []dataset.Row `json:"rows"`
}

// Job records one run of a workflow. Blocks is a snapshot taken at
// submission time; editing the workflow later never affects a running job.
// The store owns every Job after creation and hands out copies only.
type Job struct {
	ID         string                 `json:"id"`
	WorkflowID string                 `json:"workflowId"`
	Blocks     []workflow.BlockConfig `json:"blocks"`

	Status      Status               `json:"status"`
	CurrentStep int                  `json:"currentStep"` // block index; -1 before the first block starts
	StepStates  map[string]StepState `json:"stepStates"`  // block id → state

	CreatedAt  time.Time  `json:"createdAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`

	ErrorMessage string         `json:"errorMessage,omitempty"`
	ErrorDetails map[string]any `json:"errorDetails,omitempty"`

	OutputPath    string   `json:"outputPath,omitempty"`
	ResultPreview *Preview `json:"resultPreview,omitempty"`

	// Set by RequestCancel while running; observed by the executor at the
	// next block boundary. Not serialized.
	cancelRequested bool
}

// clone returns a deep copy so readers never observe executor writes.
func (j *Job) clone() *Job {
	cp := *j
	cp.Blocks = workflow.CloneBlocks(j.Blocks)
	cp.StepStates = make(map[string]StepState, len(j.StepStates))
	for id, st := range j.StepStates {
		st.Preview = cloneRows(st.Preview)
		st.ErrorDetails = cloneDetails(st.ErrorDetails)
		cp.StepStates[id] = st
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.FinishedAt != nil {
		t := *j.FinishedAt
		cp.FinishedAt = &t
	}
	cp.ErrorDetails = cloneDetails(j.ErrorDetails)
	if j.ResultPreview != nil {
		cp.ResultPreview = &Preview{
			Columns: append([]string(nil), j.ResultPreview.Columns...),
			Rows:    cloneRows(j.ResultPreview.Rows),
		}
	}
	return &cp
}

func cloneRows(rows []dataset.Row) []dataset.Row {
	if rows == nil {
		return nil
	}
	out := make([]dataset.Row, len(rows))
	for i, r := range rows {
		cp := make(dataset.Row, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

func cloneDetails(d map[string]any) map[string]any {
	if d == nil {
		return nil
	}
	cp := make(map[string]any, len(d))
	for k, v := range d {
		cp[k] = v
	}
	return cp
}

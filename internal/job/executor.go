package job

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"leadflow/internal/block"
	"leadflow/internal/dataset"
	"leadflow/internal/workflow"
)

// ─────────────────────────────────────────────────────────────
// Executor — drives one job through its block sequence
// ─────────────────────────────────────────────────────────────

// Executor runs jobs. It is the only writer of a job's record while the job
// is running, and it never lets a block failure or panic escape: everything
// folds into job and step state fields.
type Executor struct {
	store *Store
	rc    *block.RunContext
}

// NewExecutor creates an executor bound to a store and a run context.
func NewExecutor(store *Store, rc *block.RunContext) *Executor {
	return &Executor{store: store, rc: rc}
}

// Execute runs one job to a terminal state. Callers schedule it on its own
// goroutine; it returns when the job is terminal (or was cancelled before it
// started).
func (e *Executor) Execute(ctx context.Context, jobID string) {
	j := e.store.snapshot(jobID)
	if j == nil || j.Status != StatusPending {
		// Cancelled (or deleted) before the goroutine got scheduled.
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	e.store.bindCancel(jobID, cancel)
	defer e.store.unbindCancel(jobID)

	// pending → running, unless a cancel won the race first.
	started := false
	now := time.Now()
	e.store.update(jobID, func(j *Job) {
		if j.Status == StatusPending {
			j.Status = StatusRunning
			j.StartedAt = &now
			started = true
		}
	})
	if !started {
		return
	}
	log.Printf("executor: job %s started (%d blocks)", jobID, len(j.Blocks))

	var ds *dataset.Dataset
	var lastOutput string

	for i, cfg := range j.Blocks {
		if e.store.isCancelRequested(jobID) {
			e.finishCancelled(jobID, j.Blocks, i, false)
			return
		}

		e.store.update(jobID, func(j *Job) {
			j.CurrentStep = i
			st := j.StepStates[cfg.ID]
			st.Status = StatusRunning
			j.StepStates[cfg.ID] = st
		})

		res, err := e.runBlock(runCtx, cfg, ds)
		if err != nil {
			if e.store.isCancelRequested(jobID) {
				// The block was interrupted mid-run, not genuinely failed.
				e.finishCancelled(jobID, j.Blocks, i, true)
				return
			}
			e.finishFailed(jobID, j.Blocks, i, err)
			return
		}

		e.store.update(jobID, func(j *Job) {
			st := j.StepStates[cfg.ID]
			st.Status = StatusCompleted
			st.RowsAffected = res.RowsAffected
			st.OutputPath = res.OutputPath
			st.Preview = res.Preview
			j.StepStates[cfg.ID] = st
		})

		ds = res.Output
		if res.OutputPath != "" {
			lastOutput = res.OutputPath
		}
	}

	now = time.Now()
	e.store.update(jobID, func(j *Job) {
		j.Status = StatusCompleted
		j.FinishedAt = &now
		j.OutputPath = lastOutput
		if ds.Len() > 0 {
			j.ResultPreview = &Preview{
				Columns: append([]string(nil), ds.Columns...),
				Rows:    ds.Preview(5),
			}
		}
	})
	log.Printf("executor: job %s completed", jobID)
}

// runBlock instantiates and runs one block, converting panics into errors
// with the stack captured for ErrorDetails.
func (e *Executor) runBlock(ctx context.Context, cfg workflow.BlockConfig, in *dataset.Dataset) (res *block.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &block.RunError{
				Msg:     fmt.Sprintf("block %s panicked: %v", cfg.Type, r),
				Details: map[string]any{"stack": string(debug.Stack())},
			}
		}
	}()

	runner, err := block.Get(cfg.Type)
	if err != nil {
		return nil, err
	}
	return runner.Run(ctx, in, block.Params(cfg.Params), e.rc)
}

// finishFailed marks block i failed, the rest skipped, and the job failed.
func (e *Executor) finishFailed(jobID string, blocks []workflow.BlockConfig, i int, cause error) {
	msg, details := errorFields(cause)
	now := time.Now()
	e.store.update(jobID, func(j *Job) {
		st := j.StepStates[blocks[i].ID]
		st.Status = StatusFailed
		st.ErrorMessage = msg
		st.ErrorDetails = details
		j.StepStates[blocks[i].ID] = st

		markRemaining(j, blocks, i+1, StatusSkipped)

		j.Status = StatusFailed
		j.ErrorMessage = msg
		j.ErrorDetails = details
		j.FinishedAt = &now
	})
	log.Printf("executor: job %s failed at block %s: %s", jobID, blocks[i].ID, msg)
}

// finishCancelled finalizes a cancelled job. When interrupted is true the
// current block was observed cancelled mid-run and is marked cancelled;
// otherwise it never started and is skipped along with the rest.
func (e *Executor) finishCancelled(jobID string, blocks []workflow.BlockConfig, i int, interrupted bool) {
	now := time.Now()
	e.store.update(jobID, func(j *Job) {
		first := i
		if interrupted {
			st := j.StepStates[blocks[i].ID]
			st.Status = StatusCancelled
			j.StepStates[blocks[i].ID] = st
			first = i + 1
		}
		markRemaining(j, blocks, first, StatusSkipped)

		j.Status = StatusCancelled
		j.FinishedAt = &now
	})
	log.Printf("executor: job %s cancelled at block %d", jobID, i)
}

func markRemaining(j *Job, blocks []workflow.BlockConfig, from int, status Status) {
	for k := from; k < len(blocks); k++ {
		st := j.StepStates[blocks[k].ID]
		st.Status = status
		j.StepStates[blocks[k].ID] = st
	}
}

// errorFields splits an error into the user-facing message and structured
// details recorded alongside it.
func errorFields(err error) (string, map[string]any) {
	var runErr *block.RunError
	if errors.As(err, &runErr) && runErr.Details != nil {
		return runErr.Msg, runErr.Details
	}
	return err.Error(), map[string]any{"error": fmt.Sprintf("%+v", err)}
}

package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"leadflow/internal/block"
	"leadflow/internal/filestore"
	"leadflow/internal/job"
	"leadflow/internal/service"
	"leadflow/internal/storage"
	"leadflow/internal/workflow"
)

// ─────────────────────────────────────────────────────────────
// WorkflowService tests — full stack on a temp dir, no network
// ─────────────────────────────────────────────────────────────

func newTestService(t *testing.T) (*service.WorkflowService, *service.MockEmitter, *filestore.FileStore) {
	t.Helper()

	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	files, err := filestore.New(filepath.Join(dir, "uploads"), filepath.Join(dir, "outputs"))
	if err != nil {
		t.Fatalf("filestore: %v", err)
	}

	jobs := job.NewStore()
	executor := job.NewExecutor(jobs, &block.RunContext{Files: files, MaxConcurrent: 2})
	emitter := &service.MockEmitter{}
	svc := service.NewWorkflowService(
		storage.NewWorkflowStore(db),
		storage.NewRunLogStore(db),
		jobs, executor, files, emitter,
	)
	t.Cleanup(svc.Stop)
	return svc, emitter, files
}

func uploadCSV(t *testing.T, files *filestore.FileStore, content string) string {
	t.Helper()
	name, err := files.SaveUpload("leads.csv", strings.NewReader(content))
	if err != nil {
		t.Fatalf("save upload: %v", err)
	}
	return name
}

func waitTerminalJob(t *testing.T, svc *service.WorkflowService, jobID string) *job.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, err := svc.GetJob(jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if j.Status.Terminal() {
			return j
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state", jobID)
	return nil
}

// waitFor polls cond until it holds or the deadline passes. Run logs and
// events land slightly after the job turns terminal.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWorkflowService_CreateDefaultsName(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	wf, err := svc.CreateWorkflow(ctx, service.WorkflowInput{
		Blocks: []workflow.BlockConfig{{ID: "b1", Type: "read_csv"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if wf.Name != "Workflow 1" {
		t.Errorf("name = %q, want Workflow 1", wf.Name)
	}
	if wf.TriggerType != workflow.TriggerManual {
		t.Errorf("trigger type = %q, want manual", wf.TriggerType)
	}

	wf2, err := svc.CreateWorkflow(ctx, service.WorkflowInput{
		Blocks: []workflow.BlockConfig{{ID: "b1", Type: "read_csv"}},
	})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if wf2.Name != "Workflow 2" {
		t.Errorf("second name = %q, want Workflow 2", wf2.Name)
	}
}

func TestWorkflowService_CreateRejectsDuplicateBlockIDs(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateWorkflow(context.Background(), service.WorkflowInput{
		Name: "dupes",
		Blocks: []workflow.BlockConfig{
			{ID: "b1", Type: "read_csv"},
			{ID: "b1", Type: "save_csv"},
		},
	})
	if err == nil {
		t.Fatal("expected validation error for duplicate block ids")
	}
}

func TestWorkflowService_RunEndToEnd(t *testing.T) {
	svc, emitter, files := newTestService(t)
	ctx := context.Background()

	input := uploadCSV(t, files, "name,age\nAda,36\nGrace,30\nAlan,41\n")
	wf, err := svc.CreateWorkflow(ctx, service.WorkflowInput{
		Name: "pipeline",
		Blocks: []workflow.BlockConfig{
			{ID: "b1", Type: "read_csv", Params: map[string]any{"path": input}},
			{ID: "b2", Type: "filter", Params: map[string]any{"column": "age", "operator": "gte", "value": "36"}},
			{ID: "b3", Type: "save_csv", Params: map[string]any{"path": "seniors.csv"}},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	j, err := svc.RunWorkflow(ctx, wf.ID, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if j.Status != job.StatusPending {
		t.Errorf("returned job status = %q, want pending", j.Status)
	}

	done := waitTerminalJob(t, svc, j.ID)
	if done.Status != job.StatusCompleted {
		t.Fatalf("job status = %q (%s), want completed", done.Status, done.ErrorMessage)
	}
	if done.OutputPath == "" {
		t.Error("expected an output path on the completed job")
	}

	waitFor(t, "run log", func() bool {
		logs, err := svc.ListRunLogs(wf.ID)
		return err == nil && len(logs) == 1
	})
	logs, _ := svc.ListRunLogs(wf.ID)
	if logs[0].Status != "completed" {
		t.Errorf("run log status = %q", logs[0].Status)
	}
	if logs[0].JobID != j.ID {
		t.Errorf("run log job id = %q, want %q", logs[0].JobID, j.ID)
	}

	waitFor(t, "job:completed event", func() bool {
		for _, e := range emitter.Events() {
			if e.Event == "job:completed" {
				return true
			}
		}
		return false
	})

	outputs, err := svc.ListOutputs()
	if err != nil {
		t.Fatalf("list outputs: %v", err)
	}
	if len(outputs) != 1 || outputs[0] != "seniors.csv" {
		t.Errorf("outputs = %v, want [seniors.csv]", outputs)
	}
}

func TestWorkflowService_RunInputFileOverride(t *testing.T) {
	svc, _, files := newTestService(t)
	ctx := context.Background()

	wf, err := svc.CreateWorkflow(ctx, service.WorkflowInput{
		Name: "override",
		Blocks: []workflow.BlockConfig{
			{ID: "b1", Type: "read_csv", Params: map[string]any{"path": "does-not-exist.csv"}},
			{ID: "b2", Type: "save_csv", Params: map[string]any{"path": "copy.csv"}},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	input := uploadCSV(t, files, "name\nAda\n")
	j, err := svc.RunWorkflow(ctx, wf.ID, input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	done := waitTerminalJob(t, svc, j.ID)
	if done.Status != job.StatusCompleted {
		t.Fatalf("job status = %q (%s), want completed", done.Status, done.ErrorMessage)
	}

	// The stored workflow keeps its original path.
	stored, err := svc.GetWorkflow(wf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Blocks[0].Params["path"] != "does-not-exist.csv" {
		t.Errorf("stored path mutated to %v", stored.Blocks[0].Params["path"])
	}
}

func TestWorkflowService_InputFileRequiresReadCSV(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	wf, err := svc.CreateWorkflow(ctx, service.WorkflowInput{
		Name: "no-reader",
		Blocks: []workflow.BlockConfig{
			{ID: "b1", Type: "filter", Params: map[string]any{"column": "x", "operator": "equals", "value": "1"}},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.RunWorkflow(ctx, wf.ID, "input.csv"); err == nil {
		t.Fatal("expected error when overriding input on a workflow without read_csv")
	}
}

func TestWorkflowService_RunUnknownWorkflow(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.RunWorkflow(context.Background(), "nope", "")
	if !errors.Is(err, storage.ErrWorkflowNotFound) {
		t.Fatalf("err = %v, want ErrWorkflowNotFound", err)
	}
}

func TestWorkflowService_FailedRunRecordsLog(t *testing.T) {
	svc, emitter, _ := newTestService(t)
	ctx := context.Background()

	wf, err := svc.CreateWorkflow(ctx, service.WorkflowInput{
		Name: "broken",
		Blocks: []workflow.BlockConfig{
			{ID: "b1", Type: "read_csv", Params: map[string]any{"path": "missing.csv"}},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	j, err := svc.RunWorkflow(ctx, wf.ID, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	done := waitTerminalJob(t, svc, j.ID)
	if done.Status != job.StatusFailed {
		t.Fatalf("job status = %q, want failed", done.Status)
	}

	waitFor(t, "failed run log", func() bool {
		logs, err := svc.ListRunLogs(wf.ID)
		return err == nil && len(logs) == 1 && logs[0].Status == "failed"
	})
	logs, _ := svc.ListRunLogs(wf.ID)
	if logs[0].Error == "" {
		t.Error("expected an error message on the failed run log")
	}

	waitFor(t, "job:failed event", func() bool {
		for _, e := range emitter.Events() {
			if e.Event == "job:failed" {
				return true
			}
		}
		return false
	})
}

func TestWorkflowService_UpdateRevalidatesBlocks(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	wf, err := svc.CreateWorkflow(ctx, service.WorkflowInput{
		Name:   "v1",
		Blocks: []workflow.BlockConfig{{ID: "b1", Type: "read_csv"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = svc.UpdateWorkflow(ctx, wf.ID, service.WorkflowInput{
		Name: "v2",
		Blocks: []workflow.BlockConfig{
			{ID: "b1", Type: "read_csv"},
			{ID: "b1", Type: "save_csv"},
		},
	})
	if err == nil {
		t.Fatal("expected validation error on update with duplicate ids")
	}

	// Valid update goes through.
	updated, err := svc.UpdateWorkflow(ctx, wf.ID, service.WorkflowInput{
		Name:   "v2",
		Blocks: []workflow.BlockConfig{{ID: "b1", Type: "read_csv"}},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "v2" {
		t.Errorf("name = %q, want v2", updated.Name)
	}
}

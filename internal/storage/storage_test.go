package storage

import (
	"path/filepath"
	"testing"
	"time"

	"leadflow/internal/workflow"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "leadflow.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleWorkflow() *workflow.Workflow {
	return &workflow.Workflow{
		Name: "Lead pipeline",
		Blocks: []workflow.BlockConfig{
			{ID: "b1", Type: "read_csv", Params: map[string]any{"path": "in.csv"}},
			{ID: "b2", Type: "filter", Params: map[string]any{"column": "age", "operator": "gt", "value": "30"}},
		},
	}
}

func TestWorkflowStore_CRUD(t *testing.T) {
	s := NewWorkflowStore(newTestDB(t))

	w := sampleWorkflow()
	if err := s.Create(w); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if w.ID == "" {
		t.Fatal("expected id assigned")
	}
	if w.TriggerType != workflow.TriggerManual {
		t.Errorf("expected manual trigger default, got %q", w.TriggerType)
	}

	got, err := s.Get(w.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Lead pipeline" || len(got.Blocks) != 2 {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.Blocks[1].Params["operator"] != "gt" {
		t.Errorf("params not preserved: %v", got.Blocks[1].Params)
	}

	got.Name = "Renamed"
	got.Blocks = got.Blocks[:1]
	if err := s.Update(got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	again, _ := s.Get(w.ID)
	if again.Name != "Renamed" || len(again.Blocks) != 1 {
		t.Errorf("update not persisted: %+v", again)
	}
	if !again.UpdatedAt.After(again.CreatedAt) {
		t.Error("expected updated_at bumped")
	}

	if err := s.Delete(w.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(w.ID); err != ErrWorkflowNotFound {
		t.Errorf("expected ErrWorkflowNotFound after delete, got %v", err)
	}
}

func TestWorkflowStore_NotFound(t *testing.T) {
	s := NewWorkflowStore(newTestDB(t))
	if _, err := s.Get("nope"); err != ErrWorkflowNotFound {
		t.Errorf("Get: expected ErrWorkflowNotFound, got %v", err)
	}
	if err := s.Update(&workflow.Workflow{ID: "nope"}); err != ErrWorkflowNotFound {
		t.Errorf("Update: expected ErrWorkflowNotFound, got %v", err)
	}
	if err := s.Delete("nope"); err != ErrWorkflowNotFound {
		t.Errorf("Delete: expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestWorkflowStore_ListEnabledTriggered(t *testing.T) {
	s := NewWorkflowStore(newTestDB(t))

	manual := sampleWorkflow()
	if err := s.Create(manual); err != nil {
		t.Fatal(err)
	}
	scheduled := sampleWorkflow()
	scheduled.TriggerType = workflow.TriggerSchedule
	scheduled.TriggerConfig = "0 * * * *"
	scheduled.Enabled = true
	if err := s.Create(scheduled); err != nil {
		t.Fatal(err)
	}
	disabled := sampleWorkflow()
	disabled.TriggerType = workflow.TriggerFileWatch
	disabled.TriggerConfig = "/tmp/in.csv"
	if err := s.Create(disabled); err != nil {
		t.Fatal(err)
	}

	got, err := s.ListEnabledTriggered()
	if err != nil {
		t.Fatalf("ListEnabledTriggered: %v", err)
	}
	if len(got) != 1 || got[0].ID != scheduled.ID {
		t.Errorf("expected only the enabled scheduled workflow, got %+v", got)
	}
}

func TestRunLogStore(t *testing.T) {
	db := newTestDB(t)
	s := NewRunLogStore(db)

	start := time.Now().Add(-time.Minute)
	for i, status := range []string{"completed", "failed", "completed"} {
		fin := start.Add(time.Duration(i) * time.Second)
		st := start
		l := &RunLog{
			JobID:      "job",
			WorkflowID: "wf-1",
			StartedAt:  &st,
			FinishedAt: &fin,
			Status:     status,
		}
		if err := s.Create(l); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	logs, err := s.ListByWorkflow("wf-1", 2)
	if err != nil {
		t.Fatalf("ListByWorkflow: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected limit applied, got %d", len(logs))
	}
	if logs[0].Status != "completed" || logs[1].Status != "failed" {
		t.Errorf("expected newest first, got %v then %v", logs[0].Status, logs[1].Status)
	}

	if other, _ := s.ListByWorkflow("wf-2", 10); len(other) != 0 {
		t.Errorf("expected no logs for other workflow, got %d", len(other))
	}
}

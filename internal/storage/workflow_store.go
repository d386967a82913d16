package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"leadflow/internal/workflow"
)

// ErrWorkflowNotFound is returned for lookups of unknown workflow ids.
var ErrWorkflowNotFound = fmt.Errorf("workflow not found")

// WorkflowStore implements persistence for workflow definitions.
type WorkflowStore struct {
	db *DB
}

// NewWorkflowStore creates a new WorkflowStore.
func NewWorkflowStore(db *DB) *WorkflowStore {
	return &WorkflowStore{db: db}
}

// Create inserts a workflow, assigning id and timestamps.
func (s *WorkflowStore) Create(w *workflow.Workflow) error {
	now := time.Now()
	w.ID = uuid.New().String()
	w.CreatedAt = now
	w.UpdatedAt = now
	if w.TriggerType == "" {
		w.TriggerType = workflow.TriggerManual
	}

	blocks, err := json.Marshal(w.Blocks)
	if err != nil {
		return fmt.Errorf("encode blocks: %w", err)
	}

	_, err = s.db.conn.Exec(
		`INSERT INTO workflows (id, name, description, blocks, trigger_type, trigger_config, enabled, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.Description, string(blocks),
		w.TriggerType, w.TriggerConfig, w.Enabled,
		w.CreatedAt, w.UpdatedAt,
	)
	return err
}

// Get returns one workflow by id.
func (s *WorkflowStore) Get(id string) (*workflow.Workflow, error) {
	row := s.db.conn.QueryRow(
		`SELECT id, name, description, blocks, trigger_type, trigger_config, enabled, created_at, updated_at
		 FROM workflows WHERE id = ?`, id,
	)
	w, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, ErrWorkflowNotFound
	}
	return w, err
}

// Update rewrites a workflow definition and bumps updated_at.
func (s *WorkflowStore) Update(w *workflow.Workflow) error {
	w.UpdatedAt = time.Now()
	blocks, err := json.Marshal(w.Blocks)
	if err != nil {
		return fmt.Errorf("encode blocks: %w", err)
	}

	res, err := s.db.conn.Exec(
		`UPDATE workflows SET name=?, description=?, blocks=?, trigger_type=?, trigger_config=?, enabled=?, updated_at=?
		 WHERE id=?`,
		w.Name, w.Description, string(blocks),
		w.TriggerType, w.TriggerConfig, w.Enabled,
		w.UpdatedAt, w.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

// Delete removes a workflow and its run logs.
func (s *WorkflowStore) Delete(id string) error {
	if _, err := s.db.conn.Exec(`DELETE FROM run_logs WHERE workflow_id = ?`, id); err != nil {
		return err
	}
	res, err := s.db.conn.Exec(`DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

// List returns all workflows, oldest first.
func (s *WorkflowStore) List() ([]workflow.Workflow, error) {
	return s.query(`SELECT id, name, description, blocks, trigger_type, trigger_config, enabled, created_at, updated_at
		 FROM workflows ORDER BY created_at ASC`)
}

// ListEnabledTriggered returns enabled workflows with a schedule or
// file_watch trigger, for the watcher rebuild.
func (s *WorkflowStore) ListEnabledTriggered() ([]workflow.Workflow, error) {
	return s.query(`SELECT id, name, description, blocks, trigger_type, trigger_config, enabled, created_at, updated_at
		 FROM workflows WHERE enabled = 1 AND trigger_type IN ('schedule', 'file_watch')
		 ORDER BY created_at ASC`)
}

func (s *WorkflowStore) query(q string, args ...any) ([]workflow.Workflow, error) {
	rows, err := s.db.conn.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workflow.Workflow
	for rows.Next() {
		w, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(r rowScanner) (*workflow.Workflow, error) {
	w := &workflow.Workflow{}
	var blocks string
	if err := r.Scan(
		&w.ID, &w.Name, &w.Description, &blocks,
		&w.TriggerType, &w.TriggerConfig, &w.Enabled,
		&w.CreatedAt, &w.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(blocks), &w.Blocks); err != nil {
		return nil, fmt.Errorf("decode blocks for workflow %s: %w", w.ID, err)
	}
	return w, nil
}

package storage

import (
	"time"

	"github.com/google/uuid"
)

// RunLog is the durable record of one finished job. Jobs live in memory and
// vanish on restart; run logs keep the history.
type RunLog struct {
	ID         string     `json:"id"`
	JobID      string     `json:"jobId"`
	WorkflowID string     `json:"workflowId"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	OutputPath string     `json:"outputPath,omitempty"`
}

// RunLogStore persists run logs.
type RunLogStore struct {
	db *DB
}

// NewRunLogStore creates a new RunLogStore.
func NewRunLogStore(db *DB) *RunLogStore {
	return &RunLogStore{db: db}
}

// Create inserts a run log, assigning its id.
func (s *RunLogStore) Create(l *RunLog) error {
	l.ID = uuid.New().String()
	_, err := s.db.conn.Exec(
		`INSERT INTO run_logs (id, job_id, workflow_id, started_at, finished_at, status, error, output_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.JobID, l.WorkflowID, l.StartedAt, l.FinishedAt, l.Status, l.Error, l.OutputPath,
	)
	return err
}

// ListByWorkflow returns the most recent run logs for a workflow.
func (s *RunLogStore) ListByWorkflow(workflowID string, limit int) ([]RunLog, error) {
	rows, err := s.db.conn.Query(
		`SELECT id, job_id, workflow_id, started_at, finished_at, status, error, output_path
		 FROM run_logs WHERE workflow_id = ? ORDER BY finished_at DESC LIMIT ?`,
		workflowID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []RunLog
	for rows.Next() {
		var l RunLog
		if err := rows.Scan(&l.ID, &l.JobID, &l.WorkflowID, &l.StartedAt, &l.FinishedAt, &l.Status, &l.Error, &l.OutputPath); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

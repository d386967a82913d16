package service

import (
	"context"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"leadflow/internal/block"
	"leadflow/internal/filestore"
	"leadflow/internal/job"
	"leadflow/internal/storage"
	"leadflow/internal/workflow"
)

// ─────────────────────────────────────────────────────────────
// Workflow Service — business logic for workflows and jobs
// ─────────────────────────────────────────────────────────────

// WorkflowService manages workflow definitions, job execution,
// scheduling, and file watching.
type WorkflowService struct {
	workflows *storage.WorkflowStore
	runLogs   *storage.RunLogStore
	jobs      *job.Store
	executor  *job.Executor
	files     *filestore.FileStore
	emitter   EventEmitter
	running   runningGuard

	// watcher / cron lifecycle
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewWorkflowService creates a WorkflowService ready for use.
func NewWorkflowService(
	workflows *storage.WorkflowStore,
	runLogs *storage.RunLogStore,
	jobs *job.Store,
	executor *job.Executor,
	files *filestore.FileStore,
	emitter EventEmitter,
) *WorkflowService {
	return &WorkflowService{
		workflows: workflows,
		runLogs:   runLogs,
		jobs:      jobs,
		executor:  executor,
		files:     files,
		emitter:   emitter,
	}
}

// ── Workflow CRUD ──────────────────────────────────────────

type WorkflowInput struct {
	Name          string                 `json:"name"`
	Description   string                 `json:"description"`
	Blocks        []workflow.BlockConfig `json:"blocks"`
	TriggerType   string                 `json:"triggerType"`
	TriggerConfig string                 `json:"triggerConfig"`
	Enabled       bool                   `json:"enabled"`
}

func (s *WorkflowService) CreateWorkflow(ctx context.Context, input WorkflowInput) (*workflow.Workflow, error) {
	if err := workflow.Validate(input.Blocks); err != nil {
		return nil, err
	}

	name := input.Name
	if name == "" {
		existing, err := s.workflows.List()
		if err != nil {
			return nil, fmt.Errorf("list workflows: %w", err)
		}
		name = workflow.NextDefaultName(existing)
	}

	wf := &workflow.Workflow{
		Name:          name,
		Description:   input.Description,
		Blocks:        workflow.CloneBlocks(input.Blocks),
		TriggerType:   input.TriggerType,
		TriggerConfig: input.TriggerConfig,
		Enabled:       input.Enabled,
	}
	if wf.TriggerType == "" {
		wf.TriggerType = workflow.TriggerManual
	}

	if err := s.workflows.Create(wf); err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	s.RestartWatchers(ctx)
	return wf, nil
}

func (s *WorkflowService) GetWorkflow(id string) (*workflow.Workflow, error) {
	return s.workflows.Get(id)
}

func (s *WorkflowService) ListWorkflows() ([]workflow.Workflow, error) {
	return s.workflows.List()
}

func (s *WorkflowService) UpdateWorkflow(ctx context.Context, id string, input WorkflowInput) (*workflow.Workflow, error) {
	if err := workflow.Validate(input.Blocks); err != nil {
		return nil, err
	}

	wf, err := s.workflows.Get(id)
	if err != nil {
		return nil, err
	}
	if input.Name != "" {
		wf.Name = input.Name
	}
	wf.Description = input.Description
	wf.Blocks = workflow.CloneBlocks(input.Blocks)
	wf.TriggerType = input.TriggerType
	wf.TriggerConfig = input.TriggerConfig
	wf.Enabled = input.Enabled
	if wf.TriggerType == "" {
		wf.TriggerType = workflow.TriggerManual
	}

	if err := s.workflows.Update(wf); err != nil {
		return nil, err
	}
	s.emitter.Emit(ctx, "workflow:updated", map[string]string{"workflowId": wf.ID})
	s.RestartWatchers(ctx)
	return wf, nil
}

func (s *WorkflowService) DeleteWorkflow(ctx context.Context, id string) error {
	err := s.workflows.Delete(id)
	if err == nil {
		s.RestartWatchers(ctx)
	}
	return err
}

// ── Run ────────────────────────────────────────────────────

// RunWorkflow starts a job for the given workflow and returns it in
// pending state; execution continues on a background goroutine. If
// inputFile is non-empty it overrides the path of the workflow's
// first read_csv block for this run only.
func (s *WorkflowService) RunWorkflow(ctx context.Context, workflowID, inputFile string) (*job.Job, error) {
	wf, err := s.workflows.Get(workflowID)
	if err != nil {
		return nil, err
	}

	blocks := workflow.CloneBlocks(wf.Blocks)
	if inputFile != "" {
		if err := overrideInputFile(blocks, inputFile); err != nil {
			return nil, err
		}
	}

	if !s.running.TryLock(workflowID) {
		return nil, fmt.Errorf("workflow %s is already running", workflowID)
	}

	j := s.jobs.Create(workflowID, blocks)
	go s.runJob(j.ID, workflowID)
	return j, nil
}

// overrideInputFile rewrites the path param of the first read_csv block.
func overrideInputFile(blocks []workflow.BlockConfig, inputFile string) error {
	for i := range blocks {
		if blocks[i].Type != "read_csv" {
			continue
		}
		if blocks[i].Params == nil {
			blocks[i].Params = make(map[string]any)
		}
		blocks[i].Params["path"] = inputFile
		return nil
	}
	return fmt.Errorf("workflow has no read_csv block to receive an input file")
}

// runJob drives a job to completion, records its run log, and emits
// the terminal event. Runs detached from the request context; the job
// store's cancel machinery is the only way to stop it early.
func (s *WorkflowService) runJob(jobID, workflowID string) {
	defer s.running.Unlock(workflowID)

	ctx := context.Background()
	s.executor.Execute(ctx, jobID)

	snap, err := s.jobs.Get(jobID)
	if err != nil {
		log.Printf("workflow service: job %s vanished after run: %v", jobID, err)
		return
	}
	s.recordRunLog(snap)

	event := "job:completed"
	switch snap.Status {
	case job.StatusFailed:
		event = "job:failed"
	case job.StatusCancelled:
		event = "job:cancelled"
	}
	s.emitter.Emit(ctx, event, map[string]string{
		"jobId":      jobID,
		"workflowId": workflowID,
	})
}

func (s *WorkflowService) recordRunLog(snap *job.Job) {
	l := &storage.RunLog{
		JobID:      snap.ID,
		WorkflowID: snap.WorkflowID,
		StartedAt:  snap.StartedAt,
		FinishedAt: snap.FinishedAt,
		Status:     string(snap.Status),
		Error:      snap.ErrorMessage,
		OutputPath: snap.OutputPath,
	}
	if err := s.runLogs.Create(l); err != nil {
		log.Printf("workflow service: failed to record run log for job %s: %v", snap.ID, err)
	}
}

// ── Jobs ───────────────────────────────────────────────────

func (s *WorkflowService) GetJob(id string) (*job.Job, error) {
	return s.jobs.Get(id)
}

func (s *WorkflowService) ListJobs() []*job.Job {
	return s.jobs.List()
}

func (s *WorkflowService) CancelJob(id string) error {
	return s.jobs.RequestCancel(id)
}

func (s *WorkflowService) DeleteJob(id string) error {
	return s.jobs.Delete(id)
}

// ListRunLogs returns the last 50 run logs for a workflow.
func (s *WorkflowService) ListRunLogs(workflowID string) ([]storage.RunLog, error) {
	return s.runLogs.ListByWorkflow(workflowID, 50)
}

// ListBlockTypes returns the available block descriptors.
func (s *WorkflowService) ListBlockTypes() []block.Spec {
	return block.ListSpecs()
}

// ── Files ──────────────────────────────────────────────────

// SaveUpload stores an input CSV and returns the name read_csv blocks
// should reference.
func (s *WorkflowService) SaveUpload(originalName string, r io.Reader) (string, error) {
	return s.files.SaveUpload(originalName, r)
}

// ListOutputs returns the CSV files produced by save_csv blocks.
func (s *WorkflowService) ListOutputs() ([]string, error) {
	return s.files.ListOutputs()
}

// ── Watchers (cron + file_watch) ──────────────────────────

// RestartWatchers tears down the current watcher/cron and rebuilds
// them from the enabled schedule and file_watch workflows.
func (s *WorkflowService) RestartWatchers(ctx context.Context) {
	s.stopWatchers()

	wfs, err := s.workflows.ListEnabledTriggered()
	if err != nil {
		log.Printf("watcher: failed to list workflows: %v", err)
		return
	}

	// ── Cron schedules ──
	var scheduled []workflow.Workflow
	for _, wf := range wfs {
		if wf.TriggerType == workflow.TriggerSchedule && wf.TriggerConfig != "" {
			scheduled = append(scheduled, wf)
		}
	}

	if len(scheduled) > 0 {
		c := cron.New()
		for _, wf := range scheduled {
			wid := wf.ID
			_, err := c.AddFunc(wf.TriggerConfig, func() {
				log.Printf("cron: running workflow %s", wid)
				if _, err := s.RunWorkflow(ctx, wid, ""); err != nil {
					log.Printf("cron: workflow %s failed to start: %v", wid, err)
				}
			})
			if err != nil {
				log.Printf("cron: invalid expression %q for workflow %s: %v", wf.TriggerConfig, wf.ID, err)
			}
		}
		c.Start()
		s.cronSched = c
		log.Printf("cron: scheduled %d workflow(s)", len(scheduled))
	}

	// ── File watchers ──
	type watchEntry struct {
		workflowID string
		path       string
	}
	var entries []watchEntry
	for _, wf := range wfs {
		if wf.TriggerType == workflow.TriggerFileWatch && wf.TriggerConfig != "" {
			entries = append(entries, watchEntry{workflowID: wf.ID, path: wf.TriggerConfig})
		}
	}

	if len(entries) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("watcher: failed to create watcher: %v", err)
		return
	}
	s.watcher = watcher

	pathToWorkflow := make(map[string]string)
	watchedDirs := make(map[string]bool)
	for _, e := range entries {
		absPath, err := filepath.Abs(e.path)
		if err != nil {
			log.Printf("watcher: bad path %q: %v", e.path, err)
			continue
		}
		pathToWorkflow[absPath] = e.workflowID

		dir := filepath.Dir(absPath)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				log.Printf("watcher: failed to watch dir %q: %v", dir, err)
			} else {
				watchedDirs[dir] = true
			}
		}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.watchCancel = cancel

	go func() {
		timers := make(map[string]*time.Timer)
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				absPath, _ := filepath.Abs(event.Name)
				wid, ok := pathToWorkflow[absPath]
				if !ok {
					continue
				}
				// Debounce bursts of writes to the same file.
				if t, exists := timers[wid]; exists {
					t.Stop()
				}
				triggerPath := absPath
				triggerID := wid
				timers[wid] = time.AfterFunc(500*time.Millisecond, func() {
					log.Printf("watcher: file changed %q, running workflow %s", triggerPath, triggerID)
					if _, err := s.RunWorkflow(ctx, triggerID, ""); err != nil {
						log.Printf("watcher: run failed for workflow %s: %v", triggerID, err)
					}
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("watcher: error: %v", err)
			}
		}
	}()

	log.Printf("watcher: watching %d file(s)", len(pathToWorkflow))
}

// WaitRunning blocks until all running jobs finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *WorkflowService) WaitRunning(ctx context.Context) {
	s.running.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers.
func (s *WorkflowService) Stop() {
	s.stopWatchers()
}

func (s *WorkflowService) stopWatchers() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}

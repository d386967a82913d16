package service

import (
	"context"
	"sync"
)

// ExportedRunningGuard is an exported alias so _test packages can test the guard.
type ExportedRunningGuard = runningGuard

// ─────────────────────────────────────────────────────────────
// runningGuard — prevents concurrent runs of the same workflow
// ─────────────────────────────────────────────────────────────

// runningGuard ensures only one job runs per workflow ID at a time,
// and lets shutdown wait for in-flight runs to drain.
type runningGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock attempts to mark workflowID as running. Returns false if a
// job for that workflow is already in flight.
func (g *runningGuard) TryLock(workflowID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[workflowID]; ok {
		return false // already running
	}
	g.running[workflowID] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock marks the workflow as no longer running. Must be called after
// TryLock returns true.
func (g *runningGuard) Unlock(workflowID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, workflowID)
	g.wg.Done()
}

// WaitAll blocks until all currently running jobs complete or ctx is cancelled.
func (g *runningGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

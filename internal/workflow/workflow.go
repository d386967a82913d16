package workflow

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ─────────────────────────────────────────────────────────────
// Workflow — a stored, ordered sequence of block configurations
// ─────────────────────────────────────────────────────────────

// TriggerType says how a workflow run is started.
const (
	TriggerManual    = "manual"
	TriggerSchedule  = "schedule"   // TriggerConfig is a cron expression
	TriggerFileWatch = "file_watch" // TriggerConfig is a file path to watch
)

// BlockConfig is one configured block within a workflow. Params keys are
// interpreted by the block type at execution time; unknown keys are ignored.
type BlockConfig struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Name   string         `json:"name,omitempty"`
	Params map[string]any `json:"params"`
}

// Workflow is a pipeline definition. It is immutable once handed to a job:
// runs snapshot Blocks and never write back.
type Workflow struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Blocks      []BlockConfig `json:"blocks"`

	TriggerType   string `json:"triggerType"`   // manual | schedule | file_watch
	TriggerConfig string `json:"triggerConfig"` // cron expression or watch path
	Enabled       bool   `json:"enabled"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CloneBlocks deep-copies a block sequence, including params maps, so a
// job's snapshot can never alias the stored definition.
func CloneBlocks(blocks []BlockConfig) []BlockConfig {
	if blocks == nil {
		return nil
	}
	out := make([]BlockConfig, len(blocks))
	for i, b := range blocks {
		cp := b
		if b.Params != nil {
			cp.Params = cloneMap(b.Params)
		}
		out[i] = cp
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = cloneValue(v)
	}
	return cp
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		s := make([]any, len(x))
		for i, vv := range x {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return x
	}
}

// Validate checks structural rules that hold regardless of block type:
// block ids present and unique. Param-level validation happens when a job
// executes, not here.
func Validate(blocks []BlockConfig) error {
	seen := make(map[string]bool, len(blocks))
	var dupes []string
	for _, b := range blocks {
		if b.ID == "" {
			return fmt.Errorf("block id is required")
		}
		if seen[b.ID] {
			dupes = append(dupes, b.ID)
		}
		seen[b.ID] = true
	}
	if len(dupes) > 0 {
		sort.Strings(dupes)
		return fmt.Errorf("duplicate block ids: %s", strings.Join(dupes, ", "))
	}
	return nil
}

// NextDefaultName picks the lowest free "Workflow N" among existing names.
func NextDefaultName(existing []Workflow) string {
	taken := make(map[int]bool)
	for _, w := range existing {
		suffix, ok := strings.CutPrefix(w.Name, "Workflow ")
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(suffix); err == nil {
			taken[n] = true
		}
	}
	for i := 1; ; i++ {
		if !taken[i] {
			return fmt.Sprintf("Workflow %d", i)
		}
	}
}

package block

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"leadflow/internal/dataset"
	"leadflow/internal/enrich"
	"leadflow/internal/filestore"
)

// ── Block contract ─────────────────────────────────────────
// A block consumes the previous block's dataset and produces a new one.
// Implementations live in this package, one file per block type, and
// register themselves in init() (same pattern as an ETL source registry).

// Params is a block's raw configuration. Unknown keys are ignored; missing
// required keys surface as *ConfigError when the block runs, not when the
// workflow is defined.
type Params map[string]any

// RunContext carries cross-cutting concerns a block needs but does not own.
// Cancellation is the ctx passed to Run; long row loops must observe it.
type RunContext struct {
	Enrich        *enrich.Client
	Files         *filestore.FileStore
	MaxConcurrent int
}

// Result is a successful block execution: the dataset handed to the next
// block plus metadata for progress reporting.
type Result struct {
	Output       *dataset.Dataset
	RowsAffected int
	OutputPath   string
	Preview      []dataset.Row
}

// previewRows is the bounded sample size recorded per completed block.
const previewRows = 5

// Runner is the interface every block type implements. in is nil only for
// the first block of a workflow. Runners are stateless; the registry hands
// out one shared instance per type.
type Runner interface {
	Spec() Spec
	Run(ctx context.Context, in *dataset.Dataset, params Params, rc *RunContext) (*Result, error)
}

// ConfigField describes one parameter of a block type so the builder UI can
// render its form.
type ConfigField struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type"` // "string" | "select" | "textarea" | "file" | "object"
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
	Default  string   `json:"default,omitempty"`
	Help     string   `json:"help,omitempty"`
}

// Spec describes a block type.
type Spec struct {
	Type         string        `json:"type"`
	Label        string        `json:"label"`
	ConfigFields []ConfigField `json:"configFields"`
}

// ── Registry ───────────────────────────────────────────────

var (
	registryMu sync.RWMutex
	registry   = map[string]Runner{}
)

// Register registers a runner by its spec type. Called from init() in each
// block implementation file.
func Register(r Runner) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[r.Spec().Type] = r
}

// Get returns the registered runner for a block type. Unknown types are a
// configuration error of the block that named them.
func Get(typ string) (Runner, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	r, ok := registry[typ]
	if !ok {
		return nil, &ConfigError{Field: "type", Reason: fmt.Sprintf("unknown block type %q", typ)}
	}
	return r, nil
}

// ListSpecs returns the specs of all registered block types, sorted by type.
func ListSpecs() []Spec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]Spec, 0, len(registry))
	for _, r := range registry {
		specs = append(specs, r.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}

// ── Param helpers ──────────────────────────────────────────

func stringParam(p Params, key string) string {
	s, _ := p[key].(string)
	return s
}

func requiredString(p Params, key string) (string, error) {
	s := stringParam(p, key)
	if s == "" {
		return "", &ConfigError{Field: key, Reason: key + " is required"}
	}
	return s, nil
}

func mapParam(p Params, key string) map[string]any {
	m, _ := p[key].(map[string]any)
	return m
}

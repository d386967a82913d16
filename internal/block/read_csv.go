package block

import (
	"context"

	"leadflow/internal/dataset"
)

// ── read_csv ───────────────────────────────────────────────
// Produces the initial dataset from an uploaded CSV file. Must be the first
// block of a workflow.

type readCSVBlock struct{}

func init() { Register(&readCSVBlock{}) }

func (b *readCSVBlock) Spec() Spec {
	return Spec{
		Type:  "read_csv",
		Label: "Read CSV",
		ConfigFields: []ConfigField{
			{Key: "path", Label: "File", Type: "file", Required: true, Help: "Uploaded CSV file name"},
		},
	}
}

func (b *readCSVBlock) Run(ctx context.Context, in *dataset.Dataset, params Params, rc *RunContext) (*Result, error) {
	if in != nil {
		return nil, &ConfigError{Field: "type", Reason: "read_csv must be the first block"}
	}
	path, err := requiredString(params, "path")
	if err != nil {
		return nil, err
	}

	ds, err := rc.Files.ReadCSV(path)
	if err != nil {
		return nil, NewRunError(err)
	}
	return &Result{
		Output:       ds,
		RowsAffected: ds.Len(),
		Preview:      ds.Preview(previewRows),
	}, nil
}

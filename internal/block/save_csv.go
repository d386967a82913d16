package block

import (
	"context"

	"leadflow/internal/dataset"
)

// ── save_csv ───────────────────────────────────────────────
// Writes the dataset to the outputs directory. Passes its input through
// unchanged so later blocks can keep operating on it.

type saveCSVBlock struct{}

func init() { Register(&saveCSVBlock{}) }

func (b *saveCSVBlock) Spec() Spec {
	return Spec{
		Type:  "save_csv",
		Label: "Save CSV",
		ConfigFields: []ConfigField{
			{Key: "path", Label: "Output File", Type: "string", Required: true, Help: "Output file name; .csv is appended when missing"},
		},
	}
}

func (b *saveCSVBlock) Run(ctx context.Context, in *dataset.Dataset, params Params, rc *RunContext) (*Result, error) {
	if in == nil {
		return nil, &ConfigError{Field: "type", Reason: "save_csv needs an input dataset"}
	}
	path, err := requiredString(params, "path")
	if err != nil {
		return nil, err
	}

	name, err := rc.Files.WriteCSV(path, in)
	if err != nil {
		return nil, NewRunError(err)
	}
	return &Result{
		Output:       in.Clone(),
		RowsAffected: in.Len(),
		OutputPath:   name,
		Preview:      in.Preview(previewRows),
	}, nil
}

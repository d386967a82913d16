package block

import (
	"context"
	"fmt"

	"leadflow/internal/dataset"
)

// ── find_email ─────────────────────────────────────────────
// One remote lookup per row; adds a found_email column.

type findEmailBlock struct{}

func init() { Register(&findEmailBlock{}) }

func (b *findEmailBlock) Spec() Spec {
	return Spec{
		Type:  "find_email",
		Label: "Find Email",
		ConfigFields: []ConfigField{
			{Key: "mode", Label: "Mode", Type: "select", Required: false, Options: []string{"PROFESSIONAL", "PERSONAL"}, Default: "PROFESSIONAL"},
		},
	}
}

func (b *findEmailBlock) Run(ctx context.Context, in *dataset.Dataset, params Params, rc *RunContext) (*Result, error) {
	if in == nil {
		return nil, &ConfigError{Field: "type", Reason: "find_email needs an input dataset"}
	}
	mode := stringParam(params, "mode")
	switch mode {
	case "", "PROFESSIONAL", "PERSONAL":
	default:
		return nil, &ConfigError{Field: "mode", Reason: fmt.Sprintf("mode must be PROFESSIONAL or PERSONAL, got %q", mode)}
	}

	results, err := fanOutRows(ctx, in, rc, func(ctx context.Context, row dataset.Row) (map[string]any, error) {
		return rc.Enrich.FindEmail(ctx, leadInfo(row), mode)
	})
	if err != nil {
		return nil, err
	}

	values := make([]any, len(results))
	for i, r := range results {
		if r != nil {
			values[i] = r["email"]
		}
	}
	out := in.Clone()
	out.AddColumn("found_email", values)

	return &Result{
		Output:       out,
		RowsAffected: out.Len(),
		Preview:      out.Preview(previewRows),
	}, nil
}

package block

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"leadflow/internal/dataset"
)

// ── enrich_lead ────────────────────────────────────────────
// One remote enrichment task per row; the requested struct fields are merged
// onto the dataset as new columns. Row order is preserved and the first row
// failure aborts the whole block.

type enrichLeadBlock struct{}

func init() { Register(&enrichLeadBlock{}) }

func (b *enrichLeadBlock) Spec() Spec {
	return Spec{
		Type:  "enrich_lead",
		Label: "Enrich Lead",
		ConfigFields: []ConfigField{
			{Key: "struct", Label: "Fields", Type: "object", Required: true, Help: `Fields to collect, e.g. {"university": "undergrad university"}`},
			{Key: "research_plan", Label: "Research Plan", Type: "textarea", Required: false},
		},
	}
}

func (b *enrichLeadBlock) Run(ctx context.Context, in *dataset.Dataset, params Params, rc *RunContext) (*Result, error) {
	if in == nil {
		return nil, &ConfigError{Field: "type", Reason: "enrich_lead needs an input dataset"}
	}
	structFields := mapParam(params, "struct")
	if len(structFields) == 0 {
		return nil, &ConfigError{Field: "struct", Reason: "struct must be a non-empty object"}
	}
	researchPlan := stringParam(params, "research_plan")

	results, err := fanOutRows(ctx, in, rc, func(ctx context.Context, row dataset.Row) (map[string]any, error) {
		return rc.Enrich.EnrichLead(ctx, leadInfo(row), structFields, researchPlan)
	})
	if err != nil {
		return nil, err
	}

	out := in.Clone()
	for key, description := range structFields {
		values := make([]any, len(results))
		for i, r := range results {
			values[i] = lookupResultField(r, key, description)
		}
		out.AddColumn(key, values)
	}

	return &Result{
		Output:       out,
		RowsAffected: out.Len(),
		Preview:      out.Preview(previewRows),
	}, nil
}

// fanOutRows runs one remote call per row with a bounded concurrency cap,
// collecting results by row index so output order matches input order. The
// first failure cancels the remaining calls.
func fanOutRows(ctx context.Context, in *dataset.Dataset, rc *RunContext, call func(context.Context, dataset.Row) (map[string]any, error)) ([]map[string]any, error) {
	limit := rc.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}

	results := make([]map[string]any, in.Len())
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(limit)

	for i, row := range in.Rows {
		grp.Go(func() error {
			res, err := call(gctx, row)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, NewRunError(err)
	}
	return results, nil
}

// leadInfo converts a row to the JSON-safe lead payload for the remote call.
// List cells (from a previous enrichment) collapse to their first element.
func leadInfo(row dataset.Row) map[string]any {
	info := make(map[string]any, len(row))
	for k, v := range row {
		if list, ok := v.([]any); ok {
			if len(list) > 0 {
				info[k] = list[0]
			} else {
				info[k] = nil
			}
			continue
		}
		info[k] = v
	}
	return info
}

// lookupResultField pulls a struct key out of a row's remote result. The
// service may key results by our field name, by the description text, or
// with different casing; list values collapse to their first element.
func lookupResultField(result map[string]any, key string, description any) any {
	if result == nil {
		return nil
	}
	val, ok := result[key]
	if !ok || val == nil {
		if desc, isStr := description.(string); isStr && strings.TrimSpace(desc) != "" {
			val = result[desc]
		}
	}
	if val == nil {
		lower := strings.ToLower(strings.TrimSpace(key))
		for k, v := range result {
			if strings.ToLower(strings.TrimSpace(k)) == lower {
				val = v
				break
			}
		}
	}
	if list, ok := val.([]any); ok {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return val
}

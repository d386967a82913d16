package block

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"leadflow/internal/dataset"
)

// ── filter ─────────────────────────────────────────────────
// Keeps rows whose column matches a predicate. Order-preserving;
// non-matching rows are dropped, never errored.

type filterBlock struct{}

func init() { Register(&filterBlock{}) }

var filterOperators = []string{"contains", "not_contains", "equals", "not_equals", "gt", "gte", "lt", "lte"}

func (b *filterBlock) Spec() Spec {
	return Spec{
		Type:  "filter",
		Label: "Filter",
		ConfigFields: []ConfigField{
			{Key: "column", Label: "Column", Type: "string", Required: true},
			{Key: "operator", Label: "Operator", Type: "select", Required: true, Options: filterOperators},
			{Key: "value", Label: "Value", Type: "string", Required: true},
		},
	}
}

func (b *filterBlock) Run(ctx context.Context, in *dataset.Dataset, params Params, rc *RunContext) (*Result, error) {
	if in == nil {
		return nil, &ConfigError{Field: "type", Reason: "filter needs an input dataset"}
	}
	column, err := requiredString(params, "column")
	if err != nil {
		return nil, err
	}
	op, err := requiredString(params, "operator")
	if err != nil {
		return nil, err
	}
	rawValue, ok := params["value"]
	if !ok || rawValue == nil {
		return nil, &ConfigError{Field: "value", Reason: "value is required"}
	}
	value := fmt.Sprint(rawValue)

	match, err := buildPredicate(op, value)
	if err != nil {
		return nil, err
	}
	if !in.HasColumn(column) {
		return nil, &RunError{Msg: fmt.Sprintf("column %q not found in dataset", column)}
	}

	out := dataset.New(in.Columns...)
	for _, row := range in.Rows {
		if match(row[column]) {
			cp := make(dataset.Row, len(row))
			for k, v := range row {
				cp[k] = v
			}
			out.Append(cp)
		}
	}

	return &Result{
		Output:       out,
		RowsAffected: out.Len(),
		Preview:      out.Preview(previewRows),
	}, nil
}

// buildPredicate compiles an operator + configured value into a cell
// predicate. Ordering operators require a numeric value and never match a
// cell that cannot be read as a number.
func buildPredicate(op, value string) (func(any) bool, error) {
	switch op {
	case "contains", "not_contains":
		want := op == "contains"
		return func(cell any) bool {
			if cell == nil {
				return false
			}
			return strings.Contains(fmt.Sprint(cell), value) == want
		}, nil

	case "equals", "not_equals":
		want := op == "equals"
		return func(cell any) bool {
			return cellEquals(cell, value) == want
		}, nil

	case "gt", "gte", "lt", "lte":
		threshold, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, &ConfigError{Field: "value", Reason: fmt.Sprintf("operator %q requires a numeric value, got %q", op, value)}
		}
		return func(cell any) bool {
			n, ok := cellNumber(cell)
			if !ok {
				return false
			}
			switch op {
			case "gt":
				return n > threshold
			case "gte":
				return n >= threshold
			case "lt":
				return n < threshold
			default:
				return n <= threshold
			}
		}, nil

	default:
		return nil, &ConfigError{Field: "operator", Reason: fmt.Sprintf("unknown filter operator %q", op)}
	}
}

// cellEquals compares numerically when both sides read as numbers,
// otherwise by string rendering.
func cellEquals(cell any, value string) bool {
	if n, ok := cellNumber(cell); ok {
		if v, err := strconv.ParseFloat(value, 64); err == nil {
			return n == v
		}
	}
	if cell == nil {
		return value == ""
	}
	return fmt.Sprint(cell) == value
}

// cellNumber reads a cell as a float64 when possible.
func cellNumber(cell any) (float64, bool) {
	switch n := cell.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

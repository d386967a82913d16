package dataset

// ── Dataset ────────────────────────────────────────────────
// The tabular value handed from one workflow block to the next.
// Blocks treat their input as read-only and produce a fresh Dataset,
// so two jobs (or two readers of a job snapshot) never share rows.

// Row is a single record: column name → scalar value.
type Row map[string]any

// Dataset is an ordered table. Columns records first-seen column order so
// CSV output and previews are stable even though rows are maps.
type Dataset struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// New creates an empty dataset with the given column order.
func New(columns ...string) *Dataset {
	return &Dataset{Columns: append([]string(nil), columns...)}
}

// Append adds a row, registering any columns not seen before.
func (d *Dataset) Append(r Row) {
	seen := make(map[string]bool, len(d.Columns))
	for _, c := range d.Columns {
		seen[c] = true
	}
	for k := range r {
		if !seen[k] {
			d.Columns = append(d.Columns, k)
			seen[k] = true
		}
	}
	d.Rows = append(d.Rows, r)
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// HasColumn reports whether the named column exists.
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AddColumn appends a column with one value per row. Extra values are
// ignored; missing values become nil.
func (d *Dataset) AddColumn(name string, values []any) {
	if !d.HasColumn(name) {
		d.Columns = append(d.Columns, name)
	}
	for i := range d.Rows {
		if i < len(values) {
			d.Rows[i][name] = values[i]
		} else {
			d.Rows[i][name] = nil
		}
	}
}

// Clone returns a deep copy. Cell values are scalars, so copying the row
// maps is enough.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := &Dataset{
		Columns: append([]string(nil), d.Columns...),
		Rows:    make([]Row, len(d.Rows)),
	}
	for i, r := range d.Rows {
		cp := make(Row, len(r))
		for k, v := range r {
			cp[k] = v
		}
		out.Rows[i] = cp
	}
	return out
}

// Preview returns up to n copied rows for progress reporting.
func (d *Dataset) Preview(n int) []Row {
	if d == nil || n <= 0 {
		return nil
	}
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	out := make([]Row, n)
	for i := 0; i < n; i++ {
		cp := make(Row, len(d.Rows[i]))
		for k, v := range d.Rows[i] {
			cp[k] = v
		}
		out[i] = cp
	}
	return out
}

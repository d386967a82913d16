package filestore

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"leadflow/internal/dataset"
)

// ─────────────────────────────────────────────────────────────
// FileStore — the named-file collaborator for read_csv/save_csv
// ─────────────────────────────────────────────────────────────

// FileStore reads workflow inputs from the uploads directory and writes
// results to the outputs directory. All names are reduced to their base
// name so a workflow definition can never reach outside those two dirs.
type FileStore struct {
	uploadsDir string
	outputsDir string
}

// New creates both directories if needed.
func New(uploadsDir, outputsDir string) (*FileStore, error) {
	for _, dir := range []string{uploadsDir, outputsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	return &FileStore{uploadsDir: uploadsDir, outputsDir: outputsDir}, nil
}

// safeName strips directory components to prevent path traversal.
func safeName(name string) string {
	return filepath.Base(strings.TrimSpace(name))
}

// SaveUpload stores CSV content under a unique name and returns that name.
func (fs *FileStore) SaveUpload(originalName string, r io.Reader) (string, error) {
	base := safeName(originalName)
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid upload name %q", originalName)
	}
	unique := uuid.New().String()[:8] + "_" + base

	f, err := os.Create(filepath.Join(fs.uploadsDir, unique))
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return unique, nil
}

// ReadCSV parses an uploaded CSV file into a dataset. The first row is the
// header; cell values are inferred as number, bool, or text.
func (fs *FileStore) ReadCSV(name string) (*dataset.Dataset, error) {
	base := safeName(name)
	if base == "" || base == "." {
		return nil, fmt.Errorf("invalid file name %q", name)
	}

	f, err := os.Open(filepath.Join(fs.uploadsDir, base))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", base, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv %s: %w", base, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty csv file %s", base)
	}

	headers := records[0]
	ds := dataset.New(headers...)
	for _, rec := range records[1:] {
		row := make(dataset.Row, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = inferCSVValue(rec[i])
			}
		}
		ds.Append(row)
	}
	return ds, nil
}

// WriteCSV writes a dataset to the outputs directory. A ".csv" extension is
// appended when missing. Returns the final file name.
func (fs *FileStore) WriteCSV(name string, ds *dataset.Dataset) (string, error) {
	base := safeName(name)
	if base == "" || base == "." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if !strings.HasSuffix(strings.ToLower(base), ".csv") {
		base += ".csv"
	}

	f, err := os.Create(filepath.Join(fs.outputsDir, base))
	if err != nil {
		return "", fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(ds.Columns); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(ds.Columns))
	for _, row := range ds.Rows {
		for i, col := range ds.Columns {
			rec[i] = formatCell(row[col])
		}
		if err := w.Write(rec); err != nil {
			return "", fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return base, nil
}

// OutputPath returns the absolute path of a written output file.
func (fs *FileStore) OutputPath(name string) string {
	return filepath.Join(fs.outputsDir, safeName(name))
}

// UploadPath returns the absolute path of an uploaded file.
func (fs *FileStore) UploadPath(name string) string {
	return filepath.Join(fs.uploadsDir, safeName(name))
}

// ListOutputs returns the names of all written output files, sorted.
func (fs *FileStore) ListOutputs() ([]string, error) {
	entries, err := os.ReadDir(fs.outputsDir)
	if err != nil {
		return nil, fmt.Errorf("read outputs dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// inferCSVValue tries to parse a cell as a number or bool.
func inferCSVValue(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true", "yes":
		return true
	case "false", "no":
		return false
	}
	return s
}

// formatCell renders a cell value for CSV output.
func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

package block

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"leadflow/internal/dataset"
	"leadflow/internal/enrich"
	"leadflow/internal/filestore"
)

func newRunContext(t *testing.T, srv *httptest.Server) *RunContext {
	t.Helper()
	dir := t.TempDir()
	fs, err := filestore.New(filepath.Join(dir, "uploads"), filepath.Join(dir, "outputs"))
	if err != nil {
		t.Fatalf("filestore: %v", err)
	}
	rc := &RunContext{Files: fs, MaxConcurrent: 3}
	if srv != nil {
		c := enrich.NewClient(srv.URL, "test-key")
		c.PollInterval = 5 * time.Millisecond
		c.PollTimeout = time.Second
		rc.Enrich = c
	}
	return rc
}

func TestReadCSV_ProducesInitialDataset(t *testing.T) {
	rc := newRunContext(t, nil)
	if err := os.WriteFile(rc.Files.UploadPath("in.csv"), []byte("name,age\nada,36\ngrace,45\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r, _ := Get("read_csv")
	res, err := r.Run(context.Background(), nil, Params{"path": "in.csv"}, rc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RowsAffected != 2 {
		t.Errorf("expected 2 rows, got %d", res.RowsAffected)
	}
	if len(res.Preview) != 2 {
		t.Errorf("expected bounded preview, got %d rows", len(res.Preview))
	}

	// Input must be nil for a loader block.
	if _, err := r.Run(context.Background(), res.Output, Params{"path": "in.csv"}, rc); err == nil {
		t.Error("expected error when read_csv is not the first block")
	}

	// Missing file is a run failure, not a config failure.
	_, err = r.Run(context.Background(), nil, Params{"path": "missing.csv"}, rc)
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Errorf("expected RunError, got %v", err)
	}
}

func TestSaveCSV_PassesDatasetThrough(t *testing.T) {
	rc := newRunContext(t, nil)
	ds := dataset.New("name")
	ds.Append(dataset.Row{"name": "ada"})

	r, _ := Get("save_csv")
	res, err := r.Run(context.Background(), ds, Params{"path": "result"}, rc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.OutputPath != "result.csv" {
		t.Errorf("expected result.csv, got %q", res.OutputPath)
	}
	if res.Output.Len() != ds.Len() {
		t.Errorf("save_csv must pass the dataset through unchanged")
	}
	// Output is a copy, not the same value the caller handed in.
	res.Output.Rows[0]["name"] = "mutated"
	if ds.Rows[0]["name"] != "ada" {
		t.Errorf("save_csv output aliases its input")
	}
	if _, err := os.Stat(rc.Files.OutputPath("result.csv")); err != nil {
		t.Errorf("output file not written: %v", err)
	}
}

func TestEnrichLead_MergesStructFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/enrich-lead-async":
			var body struct {
				LeadInfo map[string]any `json:"lead_info"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			json.NewEncoder(w).Encode(map[string]any{"task_id": "task-" + body.LeadInfo["name"].(string)})
		default:
			// Result keyed by description text for one row to exercise the
			// fallback lookup.
			name := r.URL.Path[len("/job-status/task-"):]
			result := map[string]any{"university": "MIT"}
			if name == "grace" {
				result = map[string]any{"undergrad university": "Vassar"}
			}
			json.NewEncoder(w).Encode(map[string]any{"status": "completed", "result": result})
		}
	}))
	defer srv.Close()

	rc := newRunContext(t, srv)
	ds := dataset.New("name")
	ds.Append(dataset.Row{"name": "ada"})
	ds.Append(dataset.Row{"name": "grace"})

	r, _ := Get("enrich_lead")
	res, err := r.Run(context.Background(), ds, Params{"struct": map[string]any{"university": "undergrad university"}}, rc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Output.HasColumn("university") {
		t.Fatal("expected university column merged")
	}
	if res.Output.Rows[0]["university"] != "MIT" {
		t.Errorf("row 0: got %v", res.Output.Rows[0]["university"])
	}
	if res.Output.Rows[1]["university"] != "Vassar" {
		t.Errorf("row 1 (description fallback): got %v", res.Output.Rows[1]["university"])
	}
	// The input dataset is untouched.
	if ds.HasColumn("university") {
		t.Error("enrich_lead mutated its input dataset")
	}
}

func TestEnrichLead_RowFailureAbortsBlock(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	rc := newRunContext(t, srv)
	ds := dataset.New("name")
	ds.Append(dataset.Row{"name": "ada"})
	ds.Append(dataset.Row{"name": "grace"})

	r, _ := Get("enrich_lead")
	_, err := r.Run(context.Background(), ds, Params{"struct": map[string]any{"x": "y"}}, rc)
	var runErr *RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("expected RunError, got %v", err)
	}
}

func TestEnrichLead_RequiresStruct(t *testing.T) {
	rc := newRunContext(t, nil)
	ds := dataset.New("name")
	ds.Append(dataset.Row{"name": "ada"})

	r, _ := Get("enrich_lead")
	_, err := r.Run(context.Background(), ds, Params{}, rc)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestFindEmail_AddsColumnInRowOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Lead map[string]any `json:"lead"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		json.NewEncoder(w).Encode(map[string]any{"email": body.Lead["name"].(string) + "@example.com"})
	}))
	defer srv.Close()

	rc := newRunContext(t, srv)
	ds := dataset.New("name")
	names := []string{"a", "b", "c", "d", "e", "f"}
	for _, n := range names {
		ds.Append(dataset.Row{"name": n})
	}

	r, _ := Get("find_email")
	res, err := r.Run(context.Background(), ds, Params{}, rc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, n := range names {
		want := n + "@example.com"
		if res.Output.Rows[i]["found_email"] != want {
			t.Errorf("row %d: expected %q, got %v", i, want, res.Output.Rows[i]["found_email"])
		}
	}
}

func TestFindEmail_InvalidMode(t *testing.T) {
	rc := newRunContext(t, nil)
	ds := dataset.New("name")
	ds.Append(dataset.Row{"name": "ada"})

	r, _ := Get("find_email")
	_, err := r.Run(context.Background(), ds, Params{"mode": "CASUAL"}, rc)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

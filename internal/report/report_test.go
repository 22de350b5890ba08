package report

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"dwh-etl/internal/catalog"
	"dwh-etl/internal/checks"
	"dwh-etl/internal/logging"
	"dwh-etl/internal/warehouse"

	"github.com/xuri/excelize/v2"
)

func readSheet(t *testing.T, path, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheet)
	if err != nil {
		t.Fatalf("GetRows(%s) error = %v", sheet, err)
	}
	return rows
}

func TestWrite(t *testing.T) {
	orig := logging.GetLevel()
	logging.SetLevel(logging.None)
	t.Cleanup(func() { logging.SetLevel(orig) })

	started := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	cat := catalog.Default()
	run := Run{
		RunID:    "01JABCDEF0123456789XYZ0000",
		Command:  "etl",
		Started:  started,
		Finished: started.Add(90 * time.Second),
		Phases: []warehouse.Result{
			{Phase: catalog.PhaseCopy, Steps: 2, Statements: 4, RowsAffected: 22952, Duration: 1500 * time.Millisecond},
			{Phase: catalog.PhaseInsert, Steps: 5, Statements: 6, RowsAffected: 33381, Duration: 2 * time.Second},
		},
		Tables: TableRows(cat, checks.Metrics{"users": 104, "songplays": 333}),
		Checks: []checks.Result{
			{Name: "users loaded", Expr: "users > 0", Passed: true},
			{Name: "no orphans", Expr: "orphan_songplays == 0", Err: errors.New("No parameter 'orphan_songplays' found.")},
		},
	}

	path := filepath.Join(t.TempDir(), "reports", "run.xlsx")
	if err := Write(path, run); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	sheets := f.GetSheetList()
	f.Close()
	if want := []string{SummarySheet, PhasesSheet, TablesSheet, ChecksSheet}; !reflect.DeepEqual(sheets, want) {
		t.Errorf("sheets = %v, want %v", sheets, want)
	}

	summary := readSheet(t, path, SummarySheet)
	wantSummary := map[string]string{
		"run_id":   run.RunID,
		"command":  "etl",
		"started":  "2026-10-17T09:00:00Z",
		"finished": "2026-10-17T09:01:30Z",
		"duration": "1m30s",
		"dry_run":  "false",
		"status":   "succeeded",
	}
	for _, row := range summary[1:] {
		if want, ok := wantSummary[row[0]]; ok && (len(row) < 2 || row[1] != want) {
			t.Errorf("summary %s = %v, want %q", row[0], row, want)
		}
	}

	tables := readSheet(t, path, TablesSheet)
	if !reflect.DeepEqual(tables[0], []string{"table", "kind", "rows"}) {
		t.Errorf("tables header = %v", tables[0])
	}
	if len(tables) != 8 {
		t.Fatalf("tables sheet has %d rows, want 8", len(tables))
	}
	byName := map[string][]string{}
	for _, row := range tables[1:] {
		byName[row[0]] = row
	}
	if got := byName["users"]; !reflect.DeepEqual(got, []string{"users", "dimension", "104"}) {
		t.Errorf("users row = %v", got)
	}
	if got := byName["songplays"]; !reflect.DeepEqual(got, []string{"songplays", "fact", "333"}) {
		t.Errorf("songplays row = %v", got)
	}
	// Uncounted tables leave the rows cell empty.
	if got := byName["time"]; !reflect.DeepEqual(got, []string{"time", "dimension"}) {
		t.Errorf("time row = %v", got)
	}

	checkRows := readSheet(t, path, ChecksSheet)
	if len(checkRows) != 3 {
		t.Fatalf("checks sheet has %d rows, want 3", len(checkRows))
	}
	if !reflect.DeepEqual(checkRows[1], []string{"users loaded", "users > 0", "true"}) {
		t.Errorf("check row = %v", checkRows[1])
	}
	if checkRows[2][2] != "false" || checkRows[2][3] == "" {
		t.Errorf("failed check row = %v", checkRows[2])
	}

	phases := readSheet(t, path, PhasesSheet)
	if !reflect.DeepEqual(phases[1], []string{"copy", "2", "4", "22952", "1500", "false"}) {
		t.Errorf("copy phase row = %v", phases[1])
	}
}

func TestWriteFailedRun(t *testing.T) {
	orig := logging.GetLevel()
	logging.SetLevel(logging.None)
	t.Cleanup(func() { logging.SetLevel(orig) })

	path := filepath.Join(t.TempDir(), "failed.xlsx")
	run := Run{RunID: "x", Command: "etl", DryRun: true, Err: errors.New("copy phase: boom")}
	if err := Write(path, run); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	summary := readSheet(t, path, SummarySheet)
	got := map[string]string{}
	for _, row := range summary[1:] {
		if len(row) == 2 {
			got[row[0]] = row[1]
		}
	}
	if got["status"] != "failed" || got["error"] != "copy phase: boom" || got["dry_run"] != "true" {
		t.Errorf("summary = %v", got)
	}
	if rows := readSheet(t, path, TablesSheet); len(rows) != 1 {
		t.Errorf("tables sheet rows = %v, want header only", rows)
	}
}

func TestTableRows(t *testing.T) {
	rows := TableRows(catalog.Default(), nil)
	if len(rows) != 7 {
		t.Fatalf("got %d rows, want 7", len(rows))
	}
	for _, r := range rows {
		if r.Counted {
			t.Errorf("%s counted without metrics", r.Name)
		}
	}
	if rows[0].Name != catalog.StagingEvents || rows[0].Kind != "staging" {
		t.Errorf("first row = %+v", rows[0])
	}
}

// Package report writes an XLSX summary of a pipeline run.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dwh-etl/internal/catalog"
	"dwh-etl/internal/checks"
	"dwh-etl/internal/logging"
	"dwh-etl/internal/warehouse"

	"github.com/xuri/excelize/v2"
)

// Sheet names, in workbook order.
const (
	SummarySheet = "Summary"
	PhasesSheet  = "Phases"
	TablesSheet  = "Tables"
	ChecksSheet  = "Checks"
)

const defaultSheetName = "Sheet1"

// TableRow is one line of the Tables sheet.
type TableRow struct {
	Name string
	Kind string
	Rows int64
	// Counted is false when no row count was collected (dry run or failure
	// before counting); the rows cell is left empty.
	Counted bool
}

// Run is everything the report records about one run.
type Run struct {
	RunID    string
	Command  string
	Started  time.Time
	Finished time.Time
	DryRun   bool
	Err      error
	Phases   []warehouse.Result
	Tables   []TableRow
	Checks   []checks.Result
}

// TableRows lists the catalog tables with their counts from m, if any.
func TableRows(cat *catalog.Catalog, m checks.Metrics) []TableRow {
	rows := make([]TableRow, 0, len(cat.Tables()))
	for _, t := range cat.Tables() {
		n, ok := m[t.Name]
		rows = append(rows, TableRow{Name: t.Name, Kind: t.Kind.String(), Rows: n, Counted: ok})
	}
	return rows
}

// Write saves r as an XLSX workbook at path, creating parent directories.
func Write(path string, r Run) error {
	logging.Logf(logging.Debug, "Writing run report to %s", path)

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("report: failed to create directory for '%s': %w", path, err)
		}
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logging.Logf(logging.Warning, "report: failed to close workbook: %v", err)
		}
	}()

	if err := f.SetSheetName(defaultSheetName, SummarySheet); err != nil {
		return fmt.Errorf("report: failed to rename default sheet: %w", err)
	}
	for _, name := range []string{PhasesSheet, TablesSheet, ChecksSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("report: failed to create sheet '%s': %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("report: failed to create header style: %w", err)
	}

	sheets := []struct {
		name   string
		header []interface{}
		rows   [][]interface{}
	}{
		{SummarySheet, []interface{}{"field", "value"}, summaryRows(r)},
		{PhasesSheet, []interface{}{"phase", "steps", "statements", "rows_affected", "duration_ms", "dry_run"}, phaseRows(r.Phases)},
		{TablesSheet, []interface{}{"table", "kind", "rows"}, tableRows(r.Tables)},
		{ChecksSheet, []interface{}{"name", "expr", "passed", "error"}, checkRows(r.Checks)},
	}
	for _, s := range sheets {
		if err := writeSheet(f, s.name, s.header, s.rows, headerStyle); err != nil {
			return err
		}
	}

	idx, _ := f.GetSheetIndex(SummarySheet)
	f.SetActiveSheet(idx)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("report: failed to save file '%s': %w", path, err)
	}
	logging.Logf(logging.Info, "Run report written to %s", path)
	return nil
}

func writeSheet(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("report: failed to write header row to sheet '%s': %w", sheet, err)
	}
	lastCol, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("report: failed to calculate header range for sheet '%s': %w", sheet, err)
	}
	if err := f.SetCellStyle(sheet, "A1", lastCol, headerStyle); err != nil {
		return fmt.Errorf("report: failed to style header of sheet '%s': %w", sheet, err)
	}
	for i, row := range rows {
		rowNum := i + 2
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return fmt.Errorf("report: failed to calculate cell coordinates for row %d: %w", rowNum, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("report: failed to write row %d to sheet '%s': %w", rowNum, sheet, err)
		}
	}
	return nil
}

func summaryRows(r Run) [][]interface{} {
	status, errText := "succeeded", ""
	if r.Err != nil {
		status, errText = "failed", r.Err.Error()
	}
	return [][]interface{}{
		{"run_id", r.RunID},
		{"command", r.Command},
		{"started", r.Started.UTC().Format(time.RFC3339)},
		{"finished", r.Finished.UTC().Format(time.RFC3339)},
		{"duration", r.Finished.Sub(r.Started).Round(time.Millisecond).String()},
		{"dry_run", strconv.FormatBool(r.DryRun)},
		{"status", status},
		{"error", errText},
	}
}

func phaseRows(phases []warehouse.Result) [][]interface{} {
	rows := make([][]interface{}, 0, len(phases))
	for _, p := range phases {
		rows = append(rows, []interface{}{
			string(p.Phase), p.Steps, p.Statements, p.RowsAffected, p.Duration.Milliseconds(), strconv.FormatBool(p.DryRun),
		})
	}
	return rows
}

func tableRows(tables []TableRow) [][]interface{} {
	rows := make([][]interface{}, 0, len(tables))
	for _, t := range tables {
		var n interface{} = ""
		if t.Counted {
			n = t.Rows
		}
		rows = append(rows, []interface{}{t.Name, t.Kind, n})
	}
	return rows
}

func checkRows(results []checks.Result) [][]interface{} {
	rows := make([][]interface{}, 0, len(results))
	for _, c := range results {
		errText := ""
		if c.Err != nil {
			errText = c.Err.Error()
		}
		rows = append(rows, []interface{}{c.Name, c.Expr, strconv.FormatBool(c.Passed), errText})
	}
	return rows
}

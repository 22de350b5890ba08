// Package checks evaluates post-load data expectations against row counts.
package checks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"dwh-etl/internal/catalog"
	"dwh-etl/internal/config"
	"dwh-etl/internal/logging"
	"dwh-etl/internal/warehouse"

	"github.com/Knetic/govaluate"
)

// ErrCheckFailed is wrapped by Evaluate when any check does not hold.
var ErrCheckFailed = errors.New("data check failed")

// OrphanSongplays is the metric counting fact rows whose song_id is not in songs.
const OrphanSongplays = "orphan_songplays"

// Metrics maps a metric name (table name or OrphanSongplays) to its value.
type Metrics map[string]int64

// Names returns the metric names in sorted order.
func (m Metrics) Names() []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (m Metrics) params() map[string]interface{} {
	p := make(map[string]interface{}, len(m))
	for k, v := range m {
		p[k] = float64(v)
	}
	return p
}

// Result is the outcome of one configured check.
type Result struct {
	Name   string
	Expr   string
	Passed bool
	// Err is set when the expression could not be evaluated or was not boolean.
	Err error
}

// expressionEvaluator allows mocking the govaluate dependency.
type expressionEvaluator interface {
	Evaluate(map[string]interface{}) (interface{}, error)
}

var newExpressionEvaluatorFunc = func(expr string) (expressionEvaluator, error) {
	evalExpr, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return nil, err
	}
	return evalExpr, nil
}

// Collect counts the rows of every catalog table and, when the catalog has
// songplays and songs, the orphaned songplays.
func Collect(ctx context.Context, s warehouse.Session, cat *catalog.Catalog) (Metrics, error) {
	m := make(Metrics, len(cat.Tables())+1)
	for _, t := range cat.Tables() {
		n, err := warehouse.Count(ctx, s, catalog.CountSQL(t.Name))
		if err != nil {
			return nil, fmt.Errorf("collecting row count of %s: %w", t.Name, err)
		}
		m[t.Name] = n
		logging.Logf(logging.Debug, "Metric %s = %d", t.Name, n)
	}
	_, hasFact := cat.Table(catalog.Songplays)
	_, hasSongs := cat.Table(catalog.Songs)
	if hasFact && hasSongs {
		n, err := warehouse.Count(ctx, s, catalog.OrphanSongplaysSQL)
		if err != nil {
			return nil, fmt.Errorf("collecting %s: %w", OrphanSongplays, err)
		}
		m[OrphanSongplays] = n
	}
	return m, nil
}

// MetricNames returns the names Collect produces for cat, in sorted order.
func MetricNames(cat *catalog.Catalog) []string {
	m := make(Metrics, len(cat.Tables())+1)
	for _, t := range cat.Tables() {
		m[t.Name] = 0
	}
	_, hasFact := cat.Table(catalog.Songplays)
	_, hasSongs := cat.Table(catalog.Songs)
	if hasFact && hasSongs {
		m[OrphanSongplays] = 0
	}
	return m.Names()
}

// Validate rejects checks whose expressions reference a metric Collect does
// not produce for cat. It runs before connecting so a typo fails the run
// as a configuration error instead of after the load.
func Validate(defs []config.CheckConfig, cat *catalog.Catalog) error {
	known := make(map[string]bool)
	for _, name := range MetricNames(cat) {
		known[name] = true
	}
	var errs []string
	for i, d := range defs {
		expr, err := govaluate.NewEvaluableExpression(d.Expr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("- Checks[%d].Expr: invalid expression syntax: %v", i, err))
			continue
		}
		for _, v := range expr.Vars() {
			if !known[v] {
				errs = append(errs, fmt.Sprintf("- Checks[%d].Expr: unknown metric '%s' in check '%s'", i, v, d.Name))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w:\n%s\nknown metrics: %s", config.ErrConfiguration, strings.Join(errs, "\n"), strings.Join(MetricNames(cat), ", "))
	}
	return nil
}

// Evaluate runs every check against m. All checks are evaluated; the
// returned error names each one that failed.
func Evaluate(defs []config.CheckConfig, m Metrics) ([]Result, error) {
	params := m.params()
	results := make([]Result, 0, len(defs))
	var failed []string
	for _, d := range defs {
		r := Result{Name: d.Name, Expr: d.Expr}
		r.Passed, r.Err = evaluate(d.Expr, params)
		switch {
		case r.Err != nil:
			logging.Logf(logging.Error, "Check %q could not be evaluated: %v", d.Name, r.Err)
			failed = append(failed, d.Name)
		case !r.Passed:
			logging.Logf(logging.Error, "Check %q failed: %s", d.Name, d.Expr)
			failed = append(failed, d.Name)
		default:
			logging.Logf(logging.Info, "Check %q passed", d.Name)
		}
		results = append(results, r)
	}
	if len(failed) > 0 {
		return results, fmt.Errorf("%w: %s", ErrCheckFailed, strings.Join(failed, ", "))
	}
	return results, nil
}

func evaluate(expr string, params map[string]interface{}) (bool, error) {
	ev, err := newExpressionEvaluatorFunc(expr)
	if err != nil {
		return false, fmt.Errorf("invalid expression '%s': %w", expr, err)
	}
	out, err := ev.Evaluate(params)
	if err != nil {
		return false, err
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("expression '%s' returned %T (%v), want bool", expr, out, out)
	}
	return ok, nil
}

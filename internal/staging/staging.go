// Package staging bulk-loads the raw S3 JSON datasets into the staging tables.
package staging

import (
	"context"
	"errors"
	"fmt"

	"dwh-etl/internal/catalog"
	"dwh-etl/internal/config"
	"dwh-etl/internal/logging"
	"dwh-etl/internal/warehouse"
)

// Prober checks S3 sources before any COPY runs.
type Prober interface {
	ProbeObject(ctx context.Context, uri string) error
	ProbePrefix(ctx context.Context, uri string) error
}

// LoadError reports which staging table and source failed to load.
type LoadError struct {
	Table  string
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("staging load failed: %v", e.Err)
	}
	return fmt.Sprintf("staging load of %s from %s failed: %v", e.Table, e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader runs the copy phase.
type Loader struct {
	cat    *catalog.Catalog
	exec   *warehouse.Executor
	params config.LoadParams
	prober Prober
}

// NewLoader returns a Loader. A nil prober disables the preflight.
func NewLoader(cat *catalog.Catalog, exec *warehouse.Executor, params config.LoadParams, prober Prober) *Loader {
	return &Loader{cat: cat, exec: exec, params: params, prober: prober}
}

// Preflight verifies that every staging source has data and that the events
// JSONPaths manifest exists.
func (l *Loader) Preflight(ctx context.Context) error {
	if l.prober == nil {
		return nil
	}
	for _, t := range l.cat.Tables() {
		if t.Copy == nil {
			continue
		}
		src := t.Copy.Source.Path(l.params)
		if t.Copy.JSONPaths {
			if err := l.prober.ProbeObject(ctx, l.params.LogJSONPath); err != nil {
				return &LoadError{Table: t.Name, Source: l.params.LogJSONPath, Err: err}
			}
		}
		if err := l.prober.ProbePrefix(ctx, src); err != nil {
			return &LoadError{Table: t.Name, Source: src, Err: err}
		}
		logging.Logf(logging.Debug, "Preflight ok for %s (%s)", t.Name, src)
	}
	return nil
}

// LoadStaging empties and reloads every staging table. Staging content from
// earlier runs never accumulates: each table is cleared in the same step as
// its COPY.
func (l *Loader) LoadStaging(ctx context.Context) (warehouse.Result, error) {
	if err := l.Preflight(ctx); err != nil {
		return warehouse.Result{Phase: catalog.PhaseCopy}, err
	}
	res, err := l.exec.Run(ctx, catalog.PhaseCopy, l.cat.CopySteps(l.params))
	if err == nil {
		return res, nil
	}
	var se *warehouse.StatementError
	if errors.As(err, &se) {
		le := &LoadError{Table: se.Table, Err: err}
		if t, ok := l.cat.Table(se.Table); ok && t.Copy != nil {
			le.Source = t.Copy.Source.Path(l.params)
		}
		return res, le
	}
	return res, &LoadError{Err: err}
}

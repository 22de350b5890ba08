// Package transform populates the analytical tables from staging.
package transform

import (
	"context"

	"dwh-etl/internal/catalog"
	"dwh-etl/internal/warehouse"
)

// Engine runs the catalog insert steps.
type Engine struct {
	cat  *catalog.Catalog
	exec *warehouse.Executor
}

// NewEngine returns an Engine for cat.
func NewEngine(cat *catalog.Catalog, exec *warehouse.Executor) *Engine {
	return &Engine{cat: cat, exec: exec}
}

// InsertAll runs every insert step in dependency order: dimensions first,
// then songplays. It stops at the first failing step.
func (e *Engine) InsertAll(ctx context.Context) (warehouse.Result, error) {
	return e.exec.Run(ctx, catalog.PhaseInsert, e.cat.InsertSteps())
}

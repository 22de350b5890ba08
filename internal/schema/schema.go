// Package schema drops and creates the warehouse tables.
package schema

import (
	"context"

	"dwh-etl/internal/catalog"
	"dwh-etl/internal/warehouse"
)

// Manager applies catalog DDL through an executor.
type Manager struct {
	cat  *catalog.Catalog
	exec *warehouse.Executor
}

// NewManager returns a Manager for cat.
func NewManager(cat *catalog.Catalog, exec *warehouse.Executor) *Manager {
	return &Manager{cat: cat, exec: exec}
}

// DropAll drops every catalog table that exists, in registry order.
func (m *Manager) DropAll(ctx context.Context) (warehouse.Result, error) {
	return m.exec.Run(ctx, catalog.PhaseDrop, m.cat.DropSteps())
}

// CreateAll creates every catalog table that does not exist yet, in
// registry order.
func (m *Manager) CreateAll(ctx context.Context) (warehouse.Result, error) {
	return m.exec.Run(ctx, catalog.PhaseCreate, m.cat.CreateSteps())
}

// Reset drops then creates all tables, stopping at the first failure.
// Results of the phases that ran are returned.
func (m *Manager) Reset(ctx context.Context) ([]warehouse.Result, error) {
	var results []warehouse.Result
	res, err := m.DropAll(ctx)
	results = append(results, res)
	if err != nil {
		return results, err
	}
	res, err = m.CreateAll(ctx)
	results = append(results, res)
	return results, err
}

// Package catalog is the ordered registry of warehouse tables and the SQL
// that drops, creates, loads and populates them.
//
// Every table is described once by a Table value. The four statement
// sequences consumed by the rest of the pipeline (drop, create, copy,
// insert) are derived from the registry, so adding a table is a data
// change here and nowhere else.
package catalog

import (
	"fmt"
	"strings"

	"dwh-etl/internal/config"
)

// Kind classifies a table's role in the star schema.
type Kind int

const (
	Staging Kind = iota
	Dimension
	Fact
)

func (k Kind) String() string {
	switch k {
	case Staging:
		return "staging"
	case Dimension:
		return "dimension"
	case Fact:
		return "fact"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Phase names one of the four statement sequences.
type Phase string

const (
	PhaseDrop   Phase = "drop"
	PhaseCreate Phase = "create"
	PhaseCopy   Phase = "copy"
	PhaseInsert Phase = "insert"
)

// Column is a single column definition.
type Column struct {
	Name       string
	SQLType    string
	NotNull    bool
	PrimaryKey bool
}

// Source selects which configured S3 location feeds a staging table.
type Source int

const (
	LogData Source = iota
	SongData
)

func (s Source) String() string {
	switch s {
	case LogData:
		return "log_data"
	case SongData:
		return "song_data"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Path returns the S3 location for this source.
func (s Source) Path(p config.LoadParams) string {
	if s == SongData {
		return p.SongDataPath
	}
	return p.LogDataPath
}

// CopySpec describes the bulk COPY feeding a staging table.
type CopySpec struct {
	Source Source
	// JSONPaths selects the configured JSONPaths manifest instead of 'auto' field mapping.
	JSONPaths bool
}

// Table describes one warehouse table.
type Table struct {
	Name    string
	Kind    Kind
	Columns []Column
	// DependsOn lists tables that must be populated before this one.
	DependsOn []string
	// Copy is set for staging tables loaded from S3.
	Copy *CopySpec
	// Insert holds the statements that populate an analytical table.
	// Multiple statements run as one atomic step.
	Insert []string
}

// Step is one unit of work: one or more statements committed together.
type Step struct {
	Phase      Phase
	Name       string
	Table      string
	Statements []string
}

// Catalog is an immutable, validated table registry.
type Catalog struct {
	tables []Table
	index  map[string]int
}

// New builds a catalog from tables in registry order.
func New(tables ...Table) (*Catalog, error) {
	c := &Catalog{
		tables: append([]Table(nil), tables...),
		index:  make(map[string]int, len(tables)),
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// MustNew is New for registries known to be valid at compile time.
func MustNew(tables ...Table) *Catalog {
	c, err := New(tables...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) validate() error {
	var errs []string
	for i, t := range c.tables {
		if t.Name == "" {
			errs = append(errs, fmt.Sprintf("table #%d has no name", i))
			continue
		}
		if _, dup := c.index[t.Name]; dup {
			errs = append(errs, fmt.Sprintf("table %s registered twice", t.Name))
			continue
		}
		c.index[t.Name] = i
		if len(t.Columns) == 0 {
			errs = append(errs, fmt.Sprintf("table %s has no columns", t.Name))
		}
		if t.Kind == Staging && len(t.Insert) > 0 {
			errs = append(errs, fmt.Sprintf("staging table %s must not have insert statements", t.Name))
		}
		if t.Kind != Staging && t.Copy != nil {
			errs = append(errs, fmt.Sprintf("%s table %s must not have a copy spec", t.Kind, t.Name))
		}
	}
	for _, t := range c.tables {
		for _, dep := range t.DependsOn {
			if _, ok := c.index[dep]; !ok {
				errs = append(errs, fmt.Sprintf("table %s depends on unknown table %s", t.Name, dep))
			}
		}
	}
	if len(errs) == 0 {
		if _, err := c.insertOrder(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("catalog: invalid registry:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// Tables returns the registry in order.
func (c *Catalog) Tables() []Table {
	return append([]Table(nil), c.tables...)
}

// Table looks up a table by name.
func (c *Catalog) Table(name string) (Table, bool) {
	i, ok := c.index[name]
	if !ok {
		return Table{}, false
	}
	return c.tables[i], true
}

// DropSteps returns DROP TABLE IF EXISTS for every table, registry order.
func (c *Catalog) DropSteps() []Step {
	steps := make([]Step, 0, len(c.tables))
	for _, t := range c.tables {
		steps = append(steps, Step{
			Phase:      PhaseDrop,
			Name:       "drop " + t.Name,
			Table:      t.Name,
			Statements: []string{DropTableSQL(t)},
		})
	}
	return steps
}

// CreateSteps returns CREATE TABLE IF NOT EXISTS for every table, registry order.
func (c *Catalog) CreateSteps() []Step {
	steps := make([]Step, 0, len(c.tables))
	for _, t := range c.tables {
		steps = append(steps, Step{
			Phase:      PhaseCreate,
			Name:       "create " + t.Name,
			Table:      t.Name,
			Statements: []string{CreateTableSQL(t)},
		})
	}
	return steps
}

// CopySteps returns, for every staging table with a copy spec, a step that
// empties the table and bulk-loads it from S3.
func (c *Catalog) CopySteps(p config.LoadParams) []Step {
	var steps []Step
	for _, t := range c.tables {
		if t.Copy == nil {
			continue
		}
		steps = append(steps, Step{
			Phase: PhaseCopy,
			Name:  "copy " + t.Name,
			Table: t.Name,
			Statements: []string{
				ClearTableSQL(t),
				CopySQL(t, p),
			},
		})
	}
	return steps
}

// InsertSteps returns the populate steps of analytical tables in dependency order.
func (c *Catalog) InsertSteps() []Step {
	order, _ := c.insertOrder() // validated in New
	steps := make([]Step, 0, len(order))
	for _, t := range order {
		steps = append(steps, Step{
			Phase:      PhaseInsert,
			Name:       "insert " + t.Name,
			Table:      t.Name,
			Statements: append([]string(nil), t.Insert...),
		})
	}
	return steps
}

// insertOrder sorts tables that have insert statements so that each comes
// after its dependencies. Ties keep registry order. Dependencies on tables
// without insert statements (staging) are already satisfied.
func (c *Catalog) insertOrder() ([]Table, error) {
	pending := make([]Table, 0, len(c.tables))
	for _, t := range c.tables {
		if len(t.Insert) > 0 {
			pending = append(pending, t)
		}
	}
	inserted := make(map[string]bool, len(pending))
	for _, t := range pending {
		inserted[t.Name] = false
	}

	order := make([]Table, 0, len(pending))
	for len(pending) > 0 {
		next := -1
		for i, t := range pending {
			if ready(t, inserted) {
				next = i
				break
			}
		}
		if next == -1 {
			names := make([]string, len(pending))
			for i, t := range pending {
				names[i] = t.Name
			}
			return nil, fmt.Errorf("dependency cycle among %s", strings.Join(names, ", "))
		}
		t := pending[next]
		order = append(order, t)
		inserted[t.Name] = true
		pending = append(pending[:next], pending[next+1:]...)
	}
	return order, nil
}

func ready(t Table, inserted map[string]bool) bool {
	for _, dep := range t.DependsOn {
		if done, tracked := inserted[dep]; tracked && !done {
			return false
		}
	}
	return true
}

// DropTableQueries returns the drop sequence as flat SQL text.
func (c *Catalog) DropTableQueries() []string { return flatten(c.DropSteps()) }

// CreateTableQueries returns the create sequence as flat SQL text.
func (c *Catalog) CreateTableQueries() []string { return flatten(c.CreateSteps()) }

// CopyTableQueries returns the staging load sequence as flat SQL text.
func (c *Catalog) CopyTableQueries(p config.LoadParams) []string { return flatten(c.CopySteps(p)) }

// InsertTableQueries returns the insert sequence as flat SQL text.
func (c *Catalog) InsertTableQueries() []string { return flatten(c.InsertSteps()) }

func flatten(steps []Step) []string {
	var out []string
	for _, s := range steps {
		out = append(out, s.Statements...)
	}
	return out
}

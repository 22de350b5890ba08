// Package warehousetest provides an in-memory warehouse.Session that records
// the statements it is asked to run.
package warehousetest

import (
	"context"
	"fmt"
	"strings"

	"dwh-etl/internal/warehouse"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Session records statements. Statements executed inside a transaction are
// prefixed with "tx:"; BEGIN, COMMIT and ROLLBACK are recorded as such.
type Session struct {
	Log []string

	// FailOn makes any statement containing it fail with Err.
	FailOn string
	Err    error

	// Counts maps a query to the value QueryRow scans; unknown queries scan 0.
	Counts   map[string]int64
	CountErr error

	Commits   int
	Rollbacks int
	Closed    bool
}

var _ warehouse.Session = (*Session)(nil)

func (s *Session) exec(prefix, sql string) (pgconn.CommandTag, error) {
	s.Log = append(s.Log, prefix+sql)
	if s.FailOn != "" && strings.Contains(sql, s.FailOn) {
		err := s.Err
		if err == nil {
			err = fmt.Errorf("statement failed: %s", s.FailOn)
		}
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag("OK 1"), nil
}

// Exec records sql as an autocommitted statement.
func (s *Session) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	return s.exec("", sql)
}

// Begin records BEGIN and returns a recording transaction.
func (s *Session) Begin(context.Context) (warehouse.Tx, error) {
	s.Log = append(s.Log, "BEGIN")
	return &tx{s: s}, nil
}

// QueryRow answers from Counts.
func (s *Session) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	s.Log = append(s.Log, "query:"+sql)
	return row{n: s.Counts[sql], err: s.CountErr}
}

// Close marks the session closed.
func (s *Session) Close(context.Context) error {
	s.Closed = true
	return nil
}

// Statements returns the executed statements without transaction markers or
// prefixes, in order.
func (s *Session) Statements() []string {
	var out []string
	for _, l := range s.Log {
		switch {
		case l == "BEGIN", l == "COMMIT", l == "ROLLBACK", strings.HasPrefix(l, "query:"):
			continue
		default:
			out = append(out, strings.TrimPrefix(l, "tx:"))
		}
	}
	return out
}

type tx struct {
	s    *Session
	done bool
}

func (t *tx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	return t.s.exec("tx:", sql)
}

func (t *tx) Commit(context.Context) error {
	t.done = true
	t.s.Commits++
	t.s.Log = append(t.s.Log, "COMMIT")
	return nil
}

func (t *tx) Rollback(context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.s.Rollbacks++
	t.s.Log = append(t.s.Log, "ROLLBACK")
	return nil
}

type row struct {
	n   int64
	err error
}

func (r row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != 1 {
		return fmt.Errorf("expected 1 scan target, got %d", len(dest))
	}
	p, ok := dest[0].(*int64)
	if !ok {
		return fmt.Errorf("unsupported scan target %T", dest[0])
	}
	*p = r.n
	return nil
}

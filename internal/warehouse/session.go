// Package warehouse owns the single database connection of a run and
// executes catalog steps against it.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dwh-etl/internal/config"
	"dwh-etl/internal/logging"
	"dwh-etl/internal/util"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Tx is the part of pgx.Tx the executor needs.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Session is a single warehouse connection.
type Session interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// pgxConnectConfigFunc allows overriding pgx.ConnectConfig for testing.
var pgxConnectConfigFunc = pgx.ConnectConfig

// Conn adapts *pgx.Conn to Session.
type Conn struct {
	conn *pgx.Conn
}

// Exec runs sql outside of any transaction; the cluster commits it on success.
func (c *Conn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.conn.Exec(ctx, sql, args...)
}

// Begin starts a transaction.
func (c *Conn) Begin(ctx context.Context) (Tx, error) {
	return c.conn.Begin(ctx)
}

// QueryRow runs a single-row query.
func (c *Conn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return c.conn.QueryRow(ctx, sql, args...)
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close(ctx context.Context) error {
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close(ctx)
}

// Connect opens the run's single connection.
//
// Queries use the simple protocol: Redshift does not support the extended
// protocol's prepared statements for DDL and COPY.
func Connect(ctx context.Context, c config.Connection) (*Conn, error) {
	dsn := DSN(c)
	masked := util.MaskCredentials(dsn)

	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid connection parameters (%s): %v", ErrConnection, masked, err)
	}
	cfg.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	if c.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.ConnectTimeout)
		defer cancel()
	}

	logging.Logf(logging.Info, "Connecting to %s", masked)
	conn, err := pgxConnectConfigFunc(ctx, cfg)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: timed out after %s connecting to %s: %w", ErrConnection, c.ConnectTimeout, masked, err)
		}
		return nil, fmt.Errorf("%w: failed to connect (using %s): %w", ErrConnection, masked, err)
	}
	logging.Logf(logging.Debug, "Connected to %s:%d/%s", c.Host, c.Port, c.DBName)
	return &Conn{conn: conn}, nil
}

// DSN renders the keyword/value connection string for c.
func DSN(c config.Connection) string {
	parts := []string{
		"host=" + quoteDSNValue(c.Host),
		"port=" + strconv.Itoa(c.Port),
		"dbname=" + quoteDSNValue(c.DBName),
		"user=" + quoteDSNValue(c.User),
		"password=" + quoteDSNValue(c.Password),
	}
	if c.SSLMode != "" {
		parts = append(parts, "sslmode="+quoteDSNValue(c.SSLMode))
	}
	if c.ConnectTimeout > 0 {
		secs := int(c.ConnectTimeout.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		parts = append(parts, "connect_timeout="+strconv.Itoa(secs))
	}
	return strings.Join(parts, " ")
}

// quoteDSNValue quotes a keyword/value entry when it is empty or contains
// spaces, quotes or backslashes.
func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\\t\n") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// Count runs a single-value COUNT query.
func Count(ctx context.Context, s Session, sql string) (int64, error) {
	var n int64
	if err := s.QueryRow(ctx, sql).Scan(&n); err != nil {
		return 0, fmt.Errorf("count query failed (%s): %w", util.Snippet(sql), err)
	}
	return n, nil
}

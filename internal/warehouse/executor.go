package warehouse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dwh-etl/internal/catalog"
	"dwh-etl/internal/config"
	"dwh-etl/internal/logging"
	"dwh-etl/internal/util"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// execer is satisfied by both Session and Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Result summarizes one executed phase.
type Result struct {
	Phase        catalog.Phase
	Steps        int
	Statements   int
	RowsAffected int64
	Duration     time.Duration
	DryRun       bool
}

// Executor runs catalog steps on a session.
//
// In statement mode every single-statement step is committed on its own and
// multi-statement steps run in one transaction. In phase mode the whole
// phase is one transaction. A dry-run executor only echoes statements and
// never touches the session.
type Executor struct {
	session Session
	mode    string
	dryRun  bool
}

// NewExecutor returns an executor. An empty mode means statement mode.
func NewExecutor(s Session, mode string, dryRun bool) *Executor {
	mode = strings.ToLower(mode)
	if mode == "" {
		mode = config.DefaultCommitMode
	}
	return &Executor{session: s, mode: mode, dryRun: dryRun}
}

// Run executes steps in order and stops at the first failure, which is
// returned as a *StatementError.
func (e *Executor) Run(ctx context.Context, phase catalog.Phase, steps []catalog.Step) (Result, error) {
	start := time.Now()
	res := Result{Phase: phase, DryRun: e.dryRun}
	logging.Logf(logging.Info, "Starting %s phase: %d step(s), commit mode %s", phase, len(steps), e.mode)

	var err error
	switch {
	case e.dryRun:
		for _, step := range steps {
			for _, stmt := range step.Statements {
				logging.Logf(logging.Info, "[%s] %s (dry-run): %s", phase, step.Name, util.CompactSQL(stmt))
				res.Statements++
			}
			res.Steps++
		}
	case e.session == nil:
		err = fmt.Errorf("%s phase: no warehouse session", phase)
	case e.mode == config.CommitModePhase:
		err = e.inTx(ctx, phase, func(tx Tx) error {
			for _, step := range steps {
				if err := e.execStep(ctx, tx, step, &res); err != nil {
					return err
				}
			}
			return nil
		})
	default:
		for _, step := range steps {
			if err = ctx.Err(); err != nil {
				err = fmt.Errorf("%s phase interrupted before step %q: %w", phase, step.Name, err)
				break
			}
			if len(step.Statements) == 1 {
				err = e.execStep(ctx, e.session, step, &res)
			} else {
				err = e.inTx(ctx, phase, func(tx Tx) error {
					return e.execStep(ctx, tx, step, &res)
				})
			}
			if err != nil {
				break
			}
		}
	}

	res.Duration = time.Since(start)
	if err != nil {
		return res, err
	}
	logging.Logf(logging.Info, "Finished %s phase: %d statement(s) in %s", phase, res.Statements, res.Duration.Round(time.Millisecond))
	return res, nil
}

func (e *Executor) execStep(ctx context.Context, x execer, step catalog.Step, res *Result) error {
	for i, stmt := range step.Statements {
		logging.Logf(logging.Info, "[%s] %s: %s", step.Phase, step.Name, util.CompactSQL(stmt))
		tag, err := x.Exec(ctx, stmt)
		if err != nil {
			logPgError(step, err)
			return &StatementError{
				Phase: step.Phase,
				Step:  step.Name,
				Table: step.Table,
				Index: i,
				SQL:   stmt,
				Err:   err,
			}
		}
		res.Statements++
		res.RowsAffected += tag.RowsAffected()
		logging.Logf(logging.Debug, "[%s] %s: statement #%d done (%s)", step.Phase, step.Name, i+1, tag.String())
	}
	res.Steps++
	return nil
}

// inTx runs fn inside a transaction, rolling back unless it commits.
func (e *Executor) inTx(ctx context.Context, phase catalog.Phase, fn func(Tx) error) error {
	tx, err := e.session.Begin(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s phase: timed out starting transaction: %w", phase, err)
		}
		return fmt.Errorf("%s phase: failed to begin transaction: %w", phase, err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		// The caller's context may already be cancelled.
		rbCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tx.Rollback(rbCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			logging.Logf(logging.Error, "%s phase: failed to rollback transaction: %v", phase, err)
		} else if err == nil {
			logging.Logf(logging.Warning, "%s phase: transaction rolled back", phase)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s phase: failed to commit transaction: %w", phase, err)
	}
	committed = true
	return nil
}

func logPgError(step catalog.Step, err error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		logging.Logf(logging.Error, "%s step %q failed. Error Code: %s, Message: %s, Detail: %s",
			step.Phase, step.Name, pgErr.Code, pgErr.Message, pgErr.Detail)
	}
}

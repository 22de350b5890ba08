package warehouse

import (
	"errors"
	"fmt"

	"dwh-etl/internal/catalog"
	"dwh-etl/internal/util"
)

// ErrConnection marks failures to reach or authenticate with the cluster.
var ErrConnection = errors.New("connection error")

// StatementError reports the catalog statement that failed.
// Statements committed before it stay applied unless the phase ran in a
// single transaction.
type StatementError struct {
	Phase catalog.Phase
	Step  string
	Table string
	// Index is the 0-based position of the statement within its step.
	Index int
	SQL   string
	Err   error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("%s phase: step %q statement #%d failed (%s): %v",
		e.Phase, e.Step, e.Index+1, util.Snippet(e.SQL), e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

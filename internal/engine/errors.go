package engine

import (
	"github.com/xtxerr/coinlake/internal/errors"
)

// QueryError is returned when the engine rejects or fails a statement.
// Message is the engine's own diagnostic, unmodified.
type QueryError struct {
	SQL     string
	Message string
}

func (e *QueryError) Error() string {
	return errors.ErrQueryExecution.Error() + ": " + e.Message
}

// Unwrap lets callers match errors.ErrQueryExecution.
func (e *QueryError) Unwrap() error {
	return errors.ErrQueryExecution
}

func newQueryError(sql string, err error) *QueryError {
	return &QueryError{SQL: sql, Message: err.Error()}
}

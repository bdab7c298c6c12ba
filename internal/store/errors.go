package store

import (
	"errors"
	"fmt"
)

// ErrIdentifier is returned when a table or column name is not safe to put
// into statement text.
var ErrIdentifier = errors.New("untrusted identifier")

// ErrEmptyPredicate rejects a raw clause with no text. Only an empty key list
// selects every row.
var ErrEmptyPredicate = errors.New("empty raw predicate")

// ExecutionError carries the statement that failed and the backend's
// diagnostic. Malformed statements, constraint violations and lock
// contention all surface as this type.
type ExecutionError struct {
	Statement string
	Err       error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executing %q: %v", e.Statement, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// ConnectionError means a physical connection could not be obtained.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

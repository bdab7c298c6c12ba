package schema

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	AlreadyExists ErrorKind = iota + 1
	NotFound
	UnrecognizedNativeType
	InvalidDefinition
)

func (k ErrorKind) String() string {
	switch k {
	case AlreadyExists:
		return "already exists"
	case NotFound:
		return "not found"
	case UnrecognizedNativeType:
		return "unrecognized native type"
	case InvalidDefinition:
		return "invalid definition"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

var (
	ErrAlreadyExists     = errors.New("table already exists")
	ErrNotFound          = errors.New("table not found")
	ErrUnrecognizedType  = errors.New("unrecognized native type")
	ErrInvalidDefinition = errors.New("invalid table definition")
)

// SchemaError reports a problem with a table's structure.
type SchemaError struct {
	Kind   ErrorKind
	Table  string
	Detail string
}

func (e *SchemaError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("table %s: %s: %s", e.Table, e.Kind, e.Detail)
	}
	return fmt.Sprintf("table %s: %s", e.Table, e.Kind)
}

// Is makes errors.Is(err, ErrNotFound) and friends work.
func (e *SchemaError) Is(target error) bool {
	switch e.Kind {
	case AlreadyExists:
		return target == ErrAlreadyExists
	case NotFound:
		return target == ErrNotFound
	case UnrecognizedNativeType:
		return target == ErrUnrecognizedType
	case InvalidDefinition:
		return target == ErrInvalidDefinition
	}
	return false
}

func NewError(kind ErrorKind, table string) *SchemaError {
	return &SchemaError{Kind: kind, Table: table}
}

func invalid(table, format string, args ...any) *SchemaError {
	return &SchemaError{Kind: InvalidDefinition, Table: table, Detail: fmt.Sprintf(format, args...)}
}

package pgorm

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested descriptor does not exist.
	ErrNotFound = errors.New("pgorm: descriptor not found")

	// ErrConnectivity is returned when the database catalog cannot be read.
	ErrConnectivity = errors.New("pgorm: catalog unreachable")

	// ErrUnsupportedType is returned when the catalog reports a column type
	// the schema descriptor cannot model.
	ErrUnsupportedType = errors.New("pgorm: unsupported column type")

	// ErrCyclicDependency is returned when foreign-key relationships cannot
	// be linearized into a single execution order.
	ErrCyclicDependency = errors.New("pgorm: cyclic foreign-key dependency")

	// ErrMigrationFailed is returned when applying a migration plan fails.
	ErrMigrationFailed = errors.New("pgorm: migration failed")
)

// NotFoundError represents a lookup miss for a table or column descriptor.
type NotFoundError struct {
	kind string // "table", "column", "index"
	name string
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("pgorm: %s %q not found", e.kind, e.name)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Kind returns the descriptor kind that was looked up.
func (e *NotFoundError) Kind() string {
	return e.kind
}

// Name returns the name that was searched for.
func (e *NotFoundError) Name() string {
	return e.name
}

// NewNotFoundError returns a new NotFoundError for the given descriptor kind and name.
func NewNotFoundError(kind, name string) *NotFoundError {
	return &NotFoundError{kind: kind, name: name}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// ConnectivityError represents a failure to read the database catalog.
// It is retryable by the caller.
type ConnectivityError struct {
	Op  string // Catalog operation that failed (e.g., "tables", "columns")
	Err error  // Underlying driver error
}

// Error returns the error string.
func (e *ConnectivityError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("pgorm: reading catalog (%s): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("pgorm: reading catalog: %v", e.Err)
}

// Is reports whether the target error matches ConnectivityError.
func (e *ConnectivityError) Is(err error) bool {
	return err == ErrConnectivity
}

// Unwrap returns the underlying error.
func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// NewConnectivityError returns a new ConnectivityError for the given catalog operation.
func NewConnectivityError(op string, err error) *ConnectivityError {
	return &ConnectivityError{Op: op, Err: err}
}

// IsConnectivity returns true if the error is a ConnectivityError.
func IsConnectivity(err error) bool {
	if err == nil {
		return false
	}
	var e *ConnectivityError
	return errors.As(err, &e) || errors.Is(err, ErrConnectivity)
}

// UnsupportedTypeError is returned by introspection when a column uses a
// database type that has no semantic type mapping. It is fatal for the
// diff of the table it names.
type UnsupportedTypeError struct {
	Table    string // Table containing the column
	Column   string // Column with the unsupported type
	TypeName string // Raw type name reported by the catalog
}

// Error returns the error string.
func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("pgorm: column %s.%s has unsupported type %q", e.Table, e.Column, e.TypeName)
}

// Is reports whether the target error matches UnsupportedTypeError.
func (e *UnsupportedTypeError) Is(err error) bool {
	return err == ErrUnsupportedType
}

// NewUnsupportedTypeError returns a new UnsupportedTypeError with column context.
func NewUnsupportedTypeError(table, column, typeName string) *UnsupportedTypeError {
	return &UnsupportedTypeError{Table: table, Column: column, TypeName: typeName}
}

// IsUnsupportedType returns true if the error is an UnsupportedTypeError.
func IsUnsupportedType(err error) bool {
	if err == nil {
		return false
	}
	var e *UnsupportedTypeError
	return errors.As(err, &e) || errors.Is(err, ErrUnsupportedType)
}

// CyclicDependencyError is returned by the planner when foreign-key
// relationships between tables cannot be linearized and the two-phase
// fallback cannot resolve the cycle either.
type CyclicDependencyError struct {
	Tables []string // Tables participating in the cycle
}

// Error returns the error string.
func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("pgorm: cyclic foreign-key dependency between tables %v", e.Tables)
}

// Is reports whether the target error matches CyclicDependencyError.
func (e *CyclicDependencyError) Is(err error) bool {
	return err == ErrCyclicDependency
}

// NewCyclicDependencyError returns a new CyclicDependencyError naming the
// tables that participate in the cycle.
func NewCyclicDependencyError(tables ...string) *CyclicDependencyError {
	return &CyclicDependencyError{Tables: tables}
}

// IsCyclicDependency returns true if the error is a CyclicDependencyError.
func IsCyclicDependency(err error) bool {
	if err == nil {
		return false
	}
	var e *CyclicDependencyError
	return errors.As(err, &e) || errors.Is(err, ErrCyclicDependency)
}

// MigrationFailedError wraps a failure to apply a single migration step.
// The executor rolls back the whole transaction before returning it, so no
// partial schema change is ever committed.
type MigrationFailedError struct {
	Step int    // Zero-based index of the failed step within the plan
	Stmt string // DDL statement that failed
	Err  error  // Underlying driver error
}

// Error returns the error string.
func (e *MigrationFailedError) Error() string {
	return fmt.Sprintf("pgorm: migration step %d failed: %v", e.Step, e.Err)
}

// Is reports whether the target error matches MigrationFailedError.
func (e *MigrationFailedError) Is(err error) bool {
	return err == ErrMigrationFailed
}

// Unwrap returns the underlying error.
func (e *MigrationFailedError) Unwrap() error {
	return e.Err
}

// NewMigrationFailedError returns a new MigrationFailedError for the given step.
func NewMigrationFailedError(step int, stmt string, err error) *MigrationFailedError {
	return &MigrationFailedError{Step: step, Stmt: stmt, Err: err}
}

// IsMigrationFailed returns true if the error is a MigrationFailedError.
func IsMigrationFailed(err error) bool {
	if err == nil {
		return false
	}
	var e *MigrationFailedError
	return errors.As(err, &e) || errors.Is(err, ErrMigrationFailed)
}

// RollbackError wraps an error that occurred while rolling back a failed
// migration transaction. The original failure is kept alongside it.
type RollbackError struct {
	Err      error // Rollback failure
	Original error // Error that triggered the rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("pgorm: rollback failed: %v (original: %v)", e.Err, e.Original)
}

// Unwrap returns the rollback failure.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

package pgorm

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("table", "users")
	assert.EqualError(t, err, `pgorm: table "users" not found`)
	assert.Equal(t, "table", err.Kind())
	assert.Equal(t, "users", err.Name())
	assert.True(t, IsNotFound(err))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, IsNotFound(errors.New("boom")))
	assert.False(t, IsNotFound(nil))

	// Wrapped errors still match.
	wrapped := fmt.Errorf("lookup: %w", err)
	assert.True(t, IsNotFound(wrapped))
}

func TestConnectivityError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewConnectivityError("tables", cause)
	assert.EqualError(t, err, "pgorm: reading catalog (tables): connection refused")
	assert.True(t, IsConnectivity(err))
	assert.True(t, errors.Is(err, ErrConnectivity))
	assert.Equal(t, cause, errors.Unwrap(err))

	err = NewConnectivityError("", cause)
	assert.EqualError(t, err, "pgorm: reading catalog: connection refused")
}

func TestUnsupportedTypeError(t *testing.T) {
	err := NewUnsupportedTypeError("users", "location", "geography")
	assert.EqualError(t, err, `pgorm: column users.location has unsupported type "geography"`)
	assert.True(t, IsUnsupportedType(err))
	assert.True(t, errors.Is(err, ErrUnsupportedType))
	assert.False(t, IsUnsupportedType(NewNotFoundError("table", "users")))
}

func TestCyclicDependencyError(t *testing.T) {
	err := NewCyclicDependencyError("employees", "departments")
	assert.EqualError(t, err, "pgorm: cyclic foreign-key dependency between tables [employees departments]")
	assert.True(t, IsCyclicDependency(err))
	assert.True(t, errors.Is(err, ErrCyclicDependency))
	assert.Equal(t, []string{"employees", "departments"}, err.Tables)
}

func TestMigrationFailedError(t *testing.T) {
	cause := errors.New("syntax error")
	err := NewMigrationFailedError(3, `ALTER TABLE "users" DROP COLUMN "age"`, cause)
	assert.EqualError(t, err, "pgorm: migration step 3 failed: syntax error")
	assert.True(t, IsMigrationFailed(err))
	assert.True(t, errors.Is(err, ErrMigrationFailed))
	assert.Equal(t, 3, err.Step)
	assert.Equal(t, cause, errors.Unwrap(err))

	// The step index survives wrapping.
	var mf *MigrationFailedError
	require.True(t, errors.As(fmt.Errorf("apply: %w", err), &mf))
	assert.Equal(t, 3, mf.Step)
}

func TestRollbackError(t *testing.T) {
	original := errors.New("step failed")
	rollback := errors.New("connection lost")
	err := &RollbackError{Err: rollback, Original: original}
	assert.EqualError(t, err, "pgorm: rollback failed: connection lost (original: step failed)")
	assert.Equal(t, rollback, errors.Unwrap(err))
}

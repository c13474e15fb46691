// Package sandbox defines single-use execution scopes for generated code.
//
// A Scope is created per attempt with its own copy of the input table bound
// as df, runs one snippet, hands back result_df and is then closed. Scopes
// are never reused; any call after Close returns ErrScopeClosed.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dataq/dataq/internal/table"
)

var ErrScopeClosed = errors.New("sandbox scope is closed")

// Kind tags why an attempt failed.
type Kind string

const (
	KindSyntax     Kind = "syntax"
	KindRuntime    Kind = "runtime"
	KindTimeout    Kind = "timeout"
	KindValidation Kind = "validation"
)

// ExecError is a failure of the snippet itself, as opposed to a failure of
// the sandbox infrastructure.
type ExecError struct {
	Kind Kind
	Err  error
}

func (e *ExecError) Error() string {
	if e.Err == nil {
		return string(e.Kind) + " error"
	}
	return e.Err.Error()
}

func (e *ExecError) Unwrap() error { return e.Err }

func NewExecError(kind Kind, format string, args ...any) *ExecError {
	return &ExecError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first ExecError in err's chain.
func KindOf(err error) (Kind, bool) {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.Kind, true
	}
	return "", false
}

type Limits struct {
	// MemoryLimit uses the engine's size syntax, e.g. "512MB".
	MemoryLimit string
	Threads     int
	Timeout     time.Duration
}

type Factory interface {
	// NewScope binds input as df in a fresh scope. The caller must Close it.
	NewScope(ctx context.Context, input table.Table) (Scope, error)
}

type Scope interface {
	Exec(ctx context.Context, snippet string) error
	// Result returns result_df, or an empty table if the snippet did not
	// create one.
	Result(ctx context.Context) (table.Table, error)
	Close() error
}

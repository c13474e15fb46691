package executor

import (
	"fmt"

	"github.com/dataq/dataq/internal/sandbox"
)

// AttemptError is a failed generate-execute-validate cycle that the engine
// can recover from by re-prompting.
type AttemptError struct {
	Attempt int
	Kind    sandbox.Kind
	Err     error
}

func (e *AttemptError) Error() string {
	return e.Err.Error()
}

func (e *AttemptError) Unwrap() error { return e.Err }

// RetryExhaustedError is returned once every attempt has failed. It carries
// the last attempt's failure only.
type RetryExhaustedError struct {
	Attempts int
	Last     *AttemptError
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("max retries reached. last error: %s", e.Last.Error())
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("error saving CSV file %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

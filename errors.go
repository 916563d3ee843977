package msprime

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// InvalidFloatParameterError is the message for invalid float parameters
	InvalidFloatParameterError = "invalid %s %f, %s"

	// InvalidIntParameterError is the message for invalid integer parameters
	InvalidIntParameterError = "invalid %s %d, %s"

	// InvalidStringParameterError is the message for invalid string parameters
	InvalidStringParameterError = "invalid %s %s, %s"

	// IntKeyNotFoundError is the message for "integer key not found" errors
	IntKeyNotFoundError = "key %d not found"

	// FileParsingError is the message printed when a file cannot be parsed
	FileParsingError = "parsing error in line %d: %s"
)

const (
	UnequalFloatParameterError  = "expected %s %f, instead got %f"
	UnequalIntParameterError    = "expected %s %d, instead got %d"
	UnequalStringParameterError = "expected %s %s, instead got %s"
	EqualIntParameterError      = "expected %s to not equal %d, instead got %d"
	UnexpectedErrorWhileError   = "encountered error while %s: %s"
	ExpectedErrorWhileError     = "expected an error while %s, instead got none"
)

var (
	// ErrOutOfMemory indicates that the object heap cannot grow any further.
	ErrOutOfMemory = errors.New("object heap exhausted")

	// ErrCancelled indicates that the simulation was cancelled between
	// iterations of the event loop.
	ErrCancelled = errors.New("simulation cancelled")
)

// NumericError reports a non-finite or otherwise pathological value
// produced while a replicate was running. The replicate is abandoned.
type NumericError struct {
	Op     string
	Detail string
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("numeric error during %s: %s", e.Op, e.Detail)
}

// InternalError reports a violated invariant. It always indicates a bug.
type InternalError struct {
	Detail string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal invariant violation: %s", e.Detail)
}

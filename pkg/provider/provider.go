package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/mchmarny/evalcheck/pkg/position"
)

var (
	// ErrStart means the provider process could not be started.
	ErrStart = errors.New("failed to start provider")
	// ErrExit means the provider process exited with a non-zero status.
	ErrExit = errors.New("provider exited abnormally")
	// ErrTimeout means the provider did not finish within its timeout.
	ErrTimeout = errors.New("provider timed out")
	// ErrOutput means the provider output is not a single finite number.
	ErrOutput = errors.New("unparseable provider output")
)

// Scorer evaluates a position and returns its static score.
type Scorer interface {
	Name() string
	Score(ctx context.Context, pos position.Position) (float64, error)
}

// Error describes a failed provider invocation.
type Error struct {
	Provider string
	Position position.Position
	Err      error
	// Detail carries captured stderr or the rejected output.
	Detail string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("provider %s failed on line %d (%s): %v",
		e.Provider, e.Position.Line, e.Position.Encoding, e.Err)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

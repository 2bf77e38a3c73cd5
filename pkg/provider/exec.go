package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mchmarny/evalcheck/pkg/config"
	"github.com/mchmarny/evalcheck/pkg/position"
)

const (
	waitDelay      = 2 * time.Second
	maxDetailBytes = 256
)

// Exec scores positions by running an external engine process.
type Exec struct {
	name    string
	path    string
	args    []string
	stdin   string
	timeout time.Duration
}

// NewExec creates an Exec provider from its config. The defaultTimeout
// applies when the provider does not set its own.
func NewExec(p config.Provider, defaultTimeout time.Duration) (*Exec, error) {
	if strings.TrimSpace(p.Path) == "" {
		return nil, errors.New("provider path required")
	}

	timeout := p.TimeoutOr(defaultTimeout)
	if timeout <= 0 {
		return nil, fmt.Errorf("invalid timeout for provider %s: %s", p.Name, timeout)
	}

	name := p.Name
	if name == "" {
		name = p.Path
	}

	return &Exec{
		name:    name,
		path:    p.Path,
		args:    append([]string(nil), p.Args...),
		stdin:   p.StdinTemplate(),
		timeout: timeout,
	}, nil
}

func (e *Exec) Name() string {
	return e.name
}

// Score runs the engine for pos and parses the number it prints.
func (e *Exec) Score(ctx context.Context, pos position.Position) (float64, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.path, expand(e.args, pos)...)
	cmd.WaitDelay = waitDelay

	if e.stdin != "" {
		cmd.Stdin = strings.NewReader(expandOne(e.stdin, pos))
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	slog.Debug("provider invoked",
		"provider", e.name,
		"line", pos.Line,
		"elapsed", time.Since(start).String(),
		"error", err,
	)

	if err != nil {
		return 0, e.runError(ctx, runCtx, pos, err, stderr.String())
	}

	v, err := ParseScore(stdout.String())
	if err != nil {
		return 0, &Error{
			Provider: e.name,
			Position: pos,
			Err:      fmt.Errorf("%w: %w", ErrOutput, err),
			Detail:   truncate(stdout.String()),
		}
	}

	return v, nil
}

func (e *Exec) runError(ctx, runCtx context.Context, pos position.Position, err error, stderr string) error {
	pe := &Error{
		Provider: e.name,
		Position: pos,
		Detail:   truncate(stderr),
	}

	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		pe.Err = ctx.Err()
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		pe.Err = fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
	case errors.As(err, &exitErr):
		pe.Err = fmt.Errorf("%w: %w", ErrExit, err)
	default:
		pe.Err = fmt.Errorf("%w: %s: %w", ErrStart, e.path, err)
	}

	return pe
}

// ParseScore parses a provider's output as a single finite number.
func ParseScore(out string) (float64, error) {
	s := strings.TrimSpace(out)
	if s == "" {
		return 0, io.ErrUnexpectedEOF
	}
	if strings.ContainsAny(s, "\r\n") {
		return 0, errors.New("expected a single line of output")
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("score is not finite: %s", s)
	}
	return v, nil
}

func expand(args []string, pos position.Position) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = expandOne(a, pos)
	}
	return out
}

func expandOne(s string, pos position.Position) string {
	return strings.ReplaceAll(s, config.PositionPlaceholder, pos.Encoding)
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxDetailBytes {
		return s[:maxDetailBytes] + "..."
	}
	return s
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mchmarny/evalcheck/pkg/position"
	"github.com/mchmarny/evalcheck/pkg/provider"
	"github.com/mchmarny/evalcheck/pkg/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFEN = "8/8/8/8/4k3/8/4K3/8 w - - 0 1"

type fixture struct {
	dir    string
	input  string
	config string
}

// newFixture writes engine scripts printing the given outputs, an input file
// and a config file pointing at the scripts.
func newFixture(t *testing.T, input, subject, refA, refB string) *fixture {
	t.Helper()
	dir := t.TempDir()

	engine := func(name, out string) string {
		path := filepath.Join(dir, name)
		script := fmt.Sprintf("#!/bin/sh\ncat > /dev/null\necho %s\n", out)
		require.NoError(t, os.WriteFile(path, []byte(script), 0700))
		return path
	}

	f := &fixture{
		dir:    dir,
		input:  filepath.Join(dir, "positions.txt"),
		config: filepath.Join(dir, "config.yaml"),
	}
	require.NoError(t, os.WriteFile(f.input, []byte(input), 0600))

	conf := fmt.Sprintf(`timeout: 5s
providers:
  subject:
    name: pismo
    path: %s
  reference_a:
    name: stockfish
    path: %s
  reference_b:
    name: gull
    path: %s
`, engine("pismo", subject), engine("stockfish", refA), engine("gull", refB))
	require.NoError(t, os.WriteFile(f.config, []byte(conf), 0600))

	return f
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(context.Background(), append([]string{appName}, args...))
	return out.String(), err
}

func TestCompare_Agree(t *testing.T) {
	f := newFixture(t, testFEN+"\n", "0.10", "0.00", "0.20")

	out, err := run(t, "--config", f.config, f.input, "0.5")
	require.NoError(t, err)

	assert.Contains(t, out, "   agree    |"+testFEN)
	assert.Contains(t, out, "Total: 1 (threshold 0.50)")
	assert.Contains(t, out, "agree - 100.00% (1 positions)")
	assert.Contains(t, out, "tolerable - 0.00% (0 positions)")
	assert.Contains(t, out, "divergent - 0.00% (0 positions)")
}

func TestCompare_Classifications(t *testing.T) {
	tests := []struct {
		subject string
		want    string
	}{
		{"-0.80", "divergent - 100.00% (1 positions)"},
		{"-0.30", "tolerable - 100.00% (1 positions)"},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			f := newFixture(t, testFEN+"\n", tt.subject, "0.00", "0.20")
			out, err := run(t, "-c", f.config, f.input, "0.5")
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestCompare_NegativeThreshold(t *testing.T) {
	f := newFixture(t, testFEN+"\n", "-0.30", "0.00", "0.20")

	out, err := run(t, "--config", f.config, f.input, "-0.5")
	require.NoError(t, err)
	assert.Contains(t, out, "Total: 1 (threshold -0.50)")
	assert.Contains(t, out, "divergent - 100.00% (1 positions)")
}

func TestCompare_JSON(t *testing.T) {
	f := newFixture(t, testFEN+"\n\n"+testFEN+"\n", "0.10", "0.00", "0.20")

	out, err := run(t, "--config", f.config, "--format", "json", "--concurrency", "2", f.input, "0.5")
	require.NoError(t, err)

	var doc struct {
		Summary report.Summary `json:"summary"`
		Rows    []struct {
			Position position.Position `json:"position"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, 2, doc.Summary.Total)
	require.Len(t, doc.Rows, 2)
	assert.Equal(t, 1, doc.Rows[0].Position.Line)
	assert.Equal(t, 3, doc.Rows[1].Position.Line)
}

func TestCompare_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no args", nil},
		{"one arg", []string{"positions.txt"}},
		{"three args", []string{"positions.txt", "0.5", "extra"}},
		{"bad threshold", []string{"positions.txt", "half"}},
		{"bad format", []string{"--format", "xml", "positions.txt", "0.5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, tt.args...)
			require.Error(t, err)
			assert.True(t, IsUsageError(err))
			assert.Contains(t, out, "Usage: evalcheck")
		})
	}
}

func TestCompare_InvalidOverride(t *testing.T) {
	f := newFixture(t, testFEN+"\n", "0.10", "0.00", "0.20")
	_, err := run(t, "--config", f.config, "--concurrency", "0", f.input, "0.5")
	assert.True(t, IsUsageError(err))
}

func TestCompare_MissingInput(t *testing.T) {
	f := newFixture(t, testFEN+"\n", "0.10", "0.00", "0.20")

	out, err := run(t, "--config", f.config, filepath.Join(f.dir, "missing.txt"), "0.5")
	require.Error(t, err)

	var inErr *position.InputError
	assert.True(t, errors.As(err, &inErr))
	assert.Empty(t, out)
}

func TestCompare_EmptyInput(t *testing.T) {
	f := newFixture(t, "\n\n", "0.10", "0.00", "0.20")

	out, err := run(t, "--config", f.config, f.input, "0.5")
	require.Error(t, err)
	assert.ErrorIs(t, err, report.ErrEmptyInput)
	assert.NotContains(t, out, "Total")
	assert.Empty(t, out)
}

func TestCompare_MalformedProviderOutput(t *testing.T) {
	f := newFixture(t, testFEN+"\n"+testFEN+"\n", "0.10", "oops", "0.20")

	out, err := run(t, "--config", f.config, f.input, "0.5")
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrOutput)

	var pe *provider.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "stockfish", pe.Provider)
	assert.Empty(t, out)
}

func TestCompare_MissingConfig(t *testing.T) {
	_, err := run(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "positions.txt", "0.5")
	require.Error(t, err)
	assert.False(t, IsUsageError(err))
}

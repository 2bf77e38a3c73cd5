package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/mchmarny/evalcheck/pkg/batch"
	"github.com/mchmarny/evalcheck/pkg/config"
	"github.com/mchmarny/evalcheck/pkg/logging"
	"github.com/mchmarny/evalcheck/pkg/position"
	"github.com/mchmarny/evalcheck/pkg/provider"
	"github.com/mchmarny/evalcheck/pkg/report"
	urfave "github.com/urfave/cli/v3"
)

const (
	appName   = "evalcheck"
	argsUsage = "<input_file> <threshold>"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""

	debugFlag = &urfave.BoolFlag{
		Name:  "debug",
		Usage: "Prints verbose logs (optional, default: false)",
	}

	configFlag = &urfave.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the YAML provider configuration (optional, defaults to the stock engine layout)",
	}

	formatFlag = &urfave.StringFlag{
		Name:  "format",
		Usage: fmt.Sprintf("Report format [%s]", strings.Join(report.Formats, ", ")),
		Value: report.FormatText,
	}

	concurrencyFlag = &urfave.IntFlag{
		Name:  "concurrency",
		Usage: "Number of positions evaluated at once (overrides config)",
		Value: config.DefaultConcurrency,
	}

	timeoutFlag = &urfave.DurationFlag{
		Name:  "timeout",
		Usage: "Timeout for each engine invocation (overrides config)",
		Value: config.DefaultTimeout,
	}

	retriesFlag = &urfave.IntFlag{
		Name:  "retries",
		Usage: "Retries per failed engine invocation (overrides config)",
		Value: config.DefaultRetries,
	}
)

// UsageError is returned when the command line is invalid.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return "usage error: " + e.Msg
}

func usageError(out io.Writer, c *urfave.Command, format string, args ...any) error {
	fmt.Fprintf(out, "Usage: %s [options] %s\n", c.Name, argsUsage)
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	app := newApp(os.Stdout)
	if err := app.Run(context.Background(), os.Args); err != nil {
		if IsUsageError(err) {
			slog.Error("invalid usage", "error", err)
		} else {
			slog.Error("fatal error", "error", err)
		}
		os.Exit(1)
	}
}

func newApp(out io.Writer) *urfave.Command {
	return &urfave.Command{
		Name:            appName,
		Version:         fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Usage:           "Compare a chess engine's static evaluations against two reference engines",
		ArgsUsage:       argsUsage,
		HideHelpCommand: true,
		Writer:          out,
		Flags: []urfave.Flag{
			debugFlag,
			configFlag,
			formatFlag,
			concurrencyFlag,
			timeoutFlag,
			retriesFlag,
		},
		Before: func(ctx context.Context, c *urfave.Command) (context.Context, error) {
			if c.Bool(debugFlag.Name) {
				logging.SetDefaultCLILogger("debug")
			}
			return ctx, nil
		},
		Action: func(ctx context.Context, c *urfave.Command) error {
			return cmdCompare(ctx, c, out)
		},
	}
}

func cmdCompare(ctx context.Context, c *urfave.Command, out io.Writer) error {
	if c.Args().Len() != 2 {
		return usageError(out, c, "expected 2 arguments, got %d", c.Args().Len())
	}

	inputPath := c.Args().Get(0)
	threshold, err := strconv.ParseFloat(c.Args().Get(1), 64)
	if err != nil {
		return usageError(out, c, "invalid threshold %q: %v", c.Args().Get(1), err)
	}

	format := strings.ToLower(c.String(formatFlag.Name))
	if format == "yml" {
		format = report.FormatYAML
	}
	if !slices.Contains(report.Formats, format) {
		return usageError(out, c, "unsupported format: %s", format)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	runner, err := newRunner(cfg, threshold)
	if err != nil {
		return err
	}

	src, err := position.Open(inputPath)
	if err != nil {
		return err
	}
	defer src.Close()

	slog.Debug("comparing",
		"input", inputPath,
		"threshold", threshold,
		"subject", cfg.Providers.Subject.Name,
		"reference_a", cfg.Providers.ReferenceA.Name,
		"reference_b", cfg.Providers.ReferenceB.Name,
	)

	res, err := runner.Run(ctx, src)
	if err != nil {
		return fmt.Errorf("comparison aborted: %w", err)
	}

	if err := report.Render(out, res, format); err != nil {
		return fmt.Errorf("error rendering report: %w", err)
	}

	return nil
}

func loadConfig(c *urfave.Command) (*config.Config, error) {
	cfg, err := config.Load(c.String(configFlag.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if c.IsSet(concurrencyFlag.Name) {
		cfg.Concurrency = c.Int(concurrencyFlag.Name)
	}
	if c.IsSet(timeoutFlag.Name) {
		cfg.Timeout = c.Duration(timeoutFlag.Name)
	}
	if c.IsSet(retriesFlag.Name) {
		cfg.Retries = c.Int(retriesFlag.Name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, &UsageError{Msg: err.Error()}
	}

	return cfg, nil
}

func newRunner(cfg *config.Config, threshold float64) (*batch.Runner, error) {
	scorers := make([]provider.Scorer, 0, 3)
	for _, p := range []config.Provider{
		cfg.Providers.Subject,
		cfg.Providers.ReferenceA,
		cfg.Providers.ReferenceB,
	} {
		e, err := provider.NewExec(p, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider %s: %w", p.Name, err)
		}
		scorers = append(scorers, e)
	}

	return &batch.Runner{
		Subject:     scorers[0],
		ReferenceA:  scorers[1],
		ReferenceB:  scorers[2],
		Threshold:   threshold,
		Concurrency: cfg.Concurrency,
		Retries:     cfg.Retries,
	}, nil
}

// IsUsageError reports whether err was caused by invalid command line input.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}

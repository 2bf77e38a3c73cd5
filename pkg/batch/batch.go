package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/mchmarny/evalcheck/pkg/classify"
	"github.com/mchmarny/evalcheck/pkg/position"
	"github.com/mchmarny/evalcheck/pkg/provider"
	"golang.org/x/sync/errgroup"
)

const (
	retryInitialInterval = 250 * time.Millisecond
	retryMaxInterval     = 5 * time.Second
)

// Source yields positions in input order.
type Source interface {
	Next() bool
	Position() position.Position
	Err() error
}

// Row is the evaluation of a single position.
type Row struct {
	Index          int                     `json:"-" yaml:"-"`
	Position       position.Position       `json:"position" yaml:"position"`
	Scores         classify.Scores         `json:"scores" yaml:"scores"`
	Classification classify.Classification `json:"classification" yaml:"classification"`
}

// Result is the finalized outcome of a run.
type Result struct {
	RunID     string
	Threshold float64
	Names     Names
	Rows      []Row
	Tally     *Tally
	Duration  time.Duration
}

// Names are the display names of the three providers.
type Names struct {
	Subject    string `json:"subject" yaml:"subject"`
	ReferenceA string `json:"reference_a" yaml:"reference_a"`
	ReferenceB string `json:"reference_b" yaml:"reference_b"`
}

// Runner compares the subject scorer against two reference scorers.
type Runner struct {
	Subject    provider.Scorer
	ReferenceA provider.Scorer
	ReferenceB provider.Scorer

	Threshold float64
	// Concurrency is the number of positions evaluated at once.
	Concurrency int
	// Retries is the number of extra attempts per provider invocation.
	Retries int

	retryInterval time.Duration
}

func (r *Runner) validate() error {
	if r.Subject == nil || r.ReferenceA == nil || r.ReferenceB == nil {
		return errors.New("subject and both reference scorers are required")
	}
	if r.Concurrency < 1 {
		r.Concurrency = 1
	}
	if r.Retries < 0 {
		r.Retries = 0
	}
	if r.retryInterval <= 0 {
		r.retryInterval = retryInitialInterval
	}
	return nil
}

// Run evaluates every position in src. The first error aborts the run and no
// partial result is returned.
func (r *Runner) Run(ctx context.Context, src Source) (*Result, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	res := &Result{
		RunID:     uuid.NewString(),
		Threshold: r.Threshold,
		Names: Names{
			Subject:    r.Subject.Name(),
			ReferenceA: r.ReferenceA.Name(),
			ReferenceB: r.ReferenceB.Name(),
		},
		Rows:  make([]Row, 0),
		Tally: NewTally(),
	}
	log := slog.With("run", res.RunID)
	log.Debug("starting run", "threshold", r.Threshold, "concurrency", r.Concurrency, "retries", r.Retries)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Concurrency)

	rows := make(chan Row)
	done := make(chan error, 1)

	// The collector is the only writer of the tally and the row list.
	go func() {
		var tallyErr error
		for row := range rows {
			if err := res.Tally.Add(row.Classification); err != nil && tallyErr == nil {
				tallyErr = err
			}
			res.Rows = append(res.Rows, row)
		}
		done <- tallyErr
	}()

	index := 0
	for gctx.Err() == nil && src.Next() {
		pos := src.Position()
		i := index
		index++

		g.Go(func() error {
			scores, err := r.evaluate(gctx, pos)
			if err != nil {
				return err
			}

			row := Row{
				Index:          i,
				Position:       pos,
				Scores:         scores,
				Classification: classify.Classify(scores, r.Threshold),
			}
			log.Debug("position classified",
				"line", pos.Line,
				"subject", scores.Subject,
				"reference_a", scores.ReferenceA,
				"reference_b", scores.ReferenceB,
				"classification", row.Classification,
			)

			select {
			case rows <- row:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	err := g.Wait()
	close(rows)
	tallyErr := <-done

	if err != nil {
		return nil, err
	}
	if err := src.Err(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tallyErr != nil {
		return nil, tallyErr
	}

	slices.SortFunc(res.Rows, func(a, b Row) int {
		return a.Index - b.Index
	})
	res.Duration = time.Since(start)

	log.Info("run complete",
		"positions", res.Tally.Total(),
		"elapsed", res.Duration.Round(time.Millisecond).String(),
	)

	return res, nil
}

// evaluate scores pos with all three providers concurrently.
func (r *Runner) evaluate(ctx context.Context, pos position.Position) (classify.Scores, error) {
	var s classify.Scores

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		s.Subject, err = r.score(gctx, r.Subject, pos)
		return err
	})
	g.Go(func() (err error) {
		s.ReferenceA, err = r.score(gctx, r.ReferenceA, pos)
		return err
	})
	g.Go(func() (err error) {
		s.ReferenceB, err = r.score(gctx, r.ReferenceB, pos)
		return err
	})

	if err := g.Wait(); err != nil {
		return classify.Scores{}, err
	}
	return s, nil
}

// score invokes p, retrying failed invocations with exponential backoff when
// retries are enabled.
func (r *Runner) score(ctx context.Context, p provider.Scorer, pos position.Position) (float64, error) {
	if r.Retries == 0 {
		return r.invoke(ctx, p, pos)
	}

	eb := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(r.retryInterval),
		backoff.WithMaxInterval(retryMaxInterval),
		backoff.WithMaxElapsedTime(0),
	)
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(r.Retries)), ctx)

	op := func() (float64, error) {
		v, err := r.invoke(ctx, p, pos)
		if err != nil && ctx.Err() != nil {
			return 0, backoff.Permanent(err)
		}
		return v, err
	}

	notify := func(err error, wait time.Duration) {
		slog.Warn("provider failed, retrying",
			"provider", p.Name(),
			"line", pos.Line,
			"wait", wait.String(),
			"error", err,
		)
	}

	return backoff.RetryNotifyWithData(op, b, notify)
}

func (r *Runner) invoke(ctx context.Context, p provider.Scorer, pos position.Position) (float64, error) {
	v, err := p.Score(ctx, pos)
	if err == nil {
		return v, nil
	}

	var pe *provider.Error
	if errors.As(err, &pe) {
		return 0, err
	}
	return 0, &provider.Error{
		Provider: p.Name(),
		Position: pos,
		Err:      fmt.Errorf("scoring failed: %w", err),
	}
}

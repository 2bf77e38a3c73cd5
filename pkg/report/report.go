package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mchmarny/evalcheck/pkg/batch"
	"github.com/mchmarny/evalcheck/pkg/classify"
	"gopkg.in/yaml.v3"
)

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"

	columnWidth = 12
	ruleWidth   = 70
	separator   = "|"
)

// Formats lists the supported report encodings.
var Formats = []string{FormatText, FormatJSON, FormatYAML}

// ErrEmptyInput is returned when there are no positions to summarize.
var ErrEmptyInput = errors.New("no positions processed, summary percentages are undefined")

// Render writes the result to w in the given format.
func Render(w io.Writer, res *batch.Result, format string) error {
	if res == nil || res.Tally == nil || res.Tally.Total() == 0 {
		return ErrEmptyInput
	}

	switch format {
	case FormatText, "":
		return renderText(w, res)
	case FormatJSON:
		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		return e.Encode(newDocument(res))
	case FormatYAML, "yml":
		e := yaml.NewEncoder(w)
		defer e.Close()
		return e.Encode(newDocument(res))
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func renderText(w io.Writer, res *batch.Result) error {
	var b strings.Builder

	b.WriteString(row(res.Names.Subject, res.Names.ReferenceA, res.Names.ReferenceB, "status", "position"))
	b.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	for _, r := range res.Rows {
		b.WriteString(row(
			score(r.Scores.Subject),
			score(r.Scores.ReferenceA),
			score(r.Scores.ReferenceB),
			string(r.Classification),
			r.Position.Encoding,
		))
	}

	b.WriteString("\n")
	s := newSummary(res)
	fmt.Fprintf(&b, "Total: %d (threshold %.2f)\n", s.Total, res.Threshold)
	for _, c := range s.Classes {
		fmt.Fprintf(&b, "%s - %.2f%% (%d positions)\n", c.Classification, c.Percent, c.Count)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func row(fields ...string) string {
	cells := make([]string, len(fields))
	for i, f := range fields {
		cells[i] = center(f, columnWidth)
	}
	return strings.Join(cells, separator) + "\n"
}

func score(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// center pads s to width with the extra space on the right. Longer values
// are returned unchanged.
func center(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	left := (width - n) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-n-left)
}

// ClassSummary is the count and share of one classification.
type ClassSummary struct {
	Classification classify.Classification `json:"classification" yaml:"classification"`
	Count          int                     `json:"count" yaml:"count"`
	Percent        float64                 `json:"percent" yaml:"percent"`
}

// Summary aggregates the tally in report order.
type Summary struct {
	Total   int            `json:"total" yaml:"total"`
	Classes []ClassSummary `json:"classes" yaml:"classes"`
}

func newSummary(res *batch.Result) *Summary {
	s := &Summary{
		Total:   res.Tally.Total(),
		Classes: make([]ClassSummary, 0, len(classify.All)),
	}
	for _, c := range classify.All {
		p, _ := res.Tally.Percent(c)
		s.Classes = append(s.Classes, ClassSummary{
			Classification: c,
			Count:          res.Tally.Count(c),
			Percent:        p,
		})
	}
	return s
}

type document struct {
	RunID     string      `json:"run_id" yaml:"run_id"`
	Threshold float64     `json:"threshold" yaml:"threshold"`
	Duration  string      `json:"duration" yaml:"duration"`
	Providers batch.Names `json:"providers" yaml:"providers"`
	Summary   *Summary    `json:"summary" yaml:"summary"`
	Rows      []batch.Row `json:"rows" yaml:"rows"`
}

func newDocument(res *batch.Result) *document {
	return &document{
		RunID:     res.RunID,
		Threshold: res.Threshold,
		Duration:  res.Duration.String(),
		Providers: res.Names,
		Summary:   newSummary(res),
		Rows:      res.Rows,
	}
}

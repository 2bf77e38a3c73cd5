package batch

import (
	"fmt"

	"github.com/mchmarny/evalcheck/pkg/classify"
)

// Tally counts positions per classification. It is not safe for concurrent
// use; the runner updates it from a single collector goroutine.
type Tally struct {
	counts map[classify.Classification]int
	total  int
}

func NewTally() *Tally {
	return &Tally{
		counts: make(map[classify.Classification]int, len(classify.All)),
	}
}

// Add records one classified position.
func (t *Tally) Add(c classify.Classification) error {
	if !c.Valid() {
		return fmt.Errorf("unknown classification: %q", c)
	}
	t.counts[c]++
	t.total++
	return nil
}

func (t *Tally) Count(c classify.Classification) int {
	return t.counts[c]
}

func (t *Tally) Total() int {
	return t.total
}

// Percent returns the share of c in the total. It is undefined for an empty
// tally and returns false in that case.
func (t *Tally) Percent(c classify.Classification) (float64, bool) {
	if t.total == 0 {
		return 0, false
	}
	return float64(t.counts[c]) * 100.0 / float64(t.total), true
}

package classify

import "math"

// Classification labels how a subject score relates to the reference scores.
type Classification string

const (
	Agree     Classification = "agree"
	Tolerable Classification = "tolerable"
	Divergent Classification = "divergent"
)

// All lists classifications in report order.
var All = []Classification{Agree, Tolerable, Divergent}

// Scores holds the evaluations of a single position.
type Scores struct {
	Subject    float64 `json:"subject" yaml:"subject"`
	ReferenceA float64 `json:"reference_a" yaml:"reference_a"`
	ReferenceB float64 `json:"reference_b" yaml:"reference_b"`
}

// Classify returns Agree when the subject score lies within the range of the
// two reference scores, Tolerable when it lies outside but strictly closer than
// threshold to the nearer bound, and Divergent otherwise.
func Classify(s Scores, threshold float64) Classification {
	lo := math.Min(s.ReferenceA, s.ReferenceB)
	hi := math.Max(s.ReferenceA, s.ReferenceB)

	switch {
	case lo <= s.Subject && s.Subject <= hi:
		return Agree
	case s.Subject < lo && s.Subject > lo-threshold:
		return Tolerable
	case s.Subject > hi && s.Subject < hi+threshold:
		return Tolerable
	default:
		return Divergent
	}
}

// Valid reports whether c is one of the known classifications.
func (c Classification) Valid() bool {
	for _, v := range All {
		if v == c {
			return true
		}
	}
	return false
}

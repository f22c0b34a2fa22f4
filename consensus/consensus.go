// Package consensus classifies a target's newest sample against the
// majority vote of its prior history.
//
// For each fingerprint field the prior samples elect a mode — the most
// frequent value — with a confidence expressed as its share of the prior
// count. The newest sample is then judged field by field, and the judgments
// collapse into one of four actionable buckets: valid, hash_only, unknown,
// or error.
package consensus

// Mode is the most frequent prior value of one fingerprint field, with its
// frequency as an integer percentage of the prior-sample count.
type Mode[T comparable] struct {
	Value      T
	Confidence int
	OK         bool // false when no prior values existed for the field
}

// ComputeMode elects the most frequent value. Ties break to the value that
// occurs earliest in the input: prior history is time-ordered, so the
// tie-break is deterministic run to run.
func ComputeMode[T comparable](values []T) Mode[T] {
	if len(values) == 0 {
		return Mode[T]{}
	}

	counts := make(map[T]int, len(values))
	for _, v := range values {
		counts[v]++
	}

	best := 0
	for _, c := range counts {
		if c > best {
			best = c
		}
	}
	for _, v := range values {
		if counts[v] == best {
			return Mode[T]{Value: v, Confidence: best * 100 / len(values), OK: true}
		}
	}
	return Mode[T]{} // unreachable
}

// WithinTolerance reports whether value lies in [mode-tolerance,
// mode+tolerance]. Both boundary values are inside.
func WithinTolerance(value, mode, tolerance int) bool {
	return value >= mode-tolerance && value <= mode+tolerance
}

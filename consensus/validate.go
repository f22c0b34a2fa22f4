package consensus

import (
	"errors"

	"github.com/hazyhaar/linkrot/fingerprint"
	"github.com/hazyhaar/linkrot/history"
)

// ErrInsufficientHistory means a target has fewer than two samples: there is
// no prior consensus to judge the newest one against. Not a failure — the
// target just is not classifiable yet and is skipped by the reporter.
var ErrInsufficientHistory = errors.New("consensus: insufficient history")

// Status is the overall verdict for a target.
type Status string

const (
	// StatusValid — every evaluated signal agrees with its prior mode.
	StatusValid Status = "valid"
	// StatusHashOnly — the content digest moved but every other signal
	// agrees: content changed without structural or visual drift.
	StatusHashOnly Status = "hash_only"
	// StatusUnknown — signals disagree in a way that needs a human.
	StatusUnknown Status = "unknown"
	// StatusError — the newest sample carries a capture error tag.
	StatusError Status = "error"
)

// ValidReason names a signal that agreed with its prior mode.
type ValidReason string

const (
	ValidPageHash                      ValidReason = "PageHash"
	ValidCompressionExact              ValidReason = "CompressionExact"
	ValidCompressionWithinTolerance    ValidReason = "CompressionWithinTolerance"
	ValidScreenshotHashExact           ValidReason = "ScreenshotHashExact"
	ValidScreenshotHashWithinTolerance ValidReason = "ScreenshotHashWithinTolerance"
	ValidTitle                         ValidReason = "Title"
)

// InvalidReason names a signal that diverged from its prior mode.
type InvalidReason string

const (
	InvalidPageHash       InvalidReason = "PageHash"
	InvalidCompression    InvalidReason = "Compression"
	InvalidScreenshotHash InvalidReason = "ScreenshotHash"
	InvalidTitle          InvalidReason = "Title"
)

// Tolerances tune the per-field decision rules.
type Tolerances struct {
	// Compression is the absolute window around the compressed-size mode.
	Compression int
	// ScreenshotConfidence is the minimum mode confidence (exclusive, in
	// percent) required before bit distance is consulted at all.
	ScreenshotConfidence int
	// ScreenshotDistance is the bit-distance bound (exclusive) under which a
	// non-identical screenshot hash still counts as matching.
	ScreenshotDistance int
}

// Classification is the validator's verdict for one target.
type Classification struct {
	Status  Status
	Valid   []ValidReason
	Invalid []InvalidReason
	Error   fingerprint.ErrorTag
}

// Baseline is the per-field consensus computed from prior samples. Derived,
// never persisted; recomputed on every validation.
type Baseline struct {
	PageHash       Mode[string]
	Compression    Mode[int]
	Title          Mode[string]
	ScreenshotHash Mode[string]
}

// ComputeBaseline elects per-field modes from prior samples. Title and
// screenshot-hash modes are computed only over samples that carry the field.
func ComputeBaseline(prior []fingerprint.Sample) Baseline {
	digests := make([]string, 0, len(prior))
	sizes := make([]int, 0, len(prior))
	var titles []string
	var shots []string

	for _, s := range prior {
		digests = append(digests, s.Digest)
		sizes = append(sizes, s.CompressedSize)
		if s.Title != nil {
			titles = append(titles, *s.Title)
		}
		if s.ScreenshotHash != "" {
			shots = append(shots, s.ScreenshotHash)
		}
	}

	return Baseline{
		PageHash:       ComputeMode(digests),
		Compression:    ComputeMode(sizes),
		Title:          ComputeMode(titles),
		ScreenshotHash: ComputeMode(shots),
	}
}

// Validate classifies the newest sample of a record against the consensus
// of every sample before it. Requires at least one prior sample.
func Validate(rec *history.Record, tol Tolerances) (Classification, error) {
	if rec == nil || len(rec.Samples) < 2 {
		return Classification{}, ErrInsufficientHistory
	}

	prior := rec.Samples[:len(rec.Samples)-1]
	current := rec.Samples[len(rec.Samples)-1]
	base := ComputeBaseline(prior)

	var c Classification
	c.Error = current.Error

	// Page hash: exact match or divergence, no tolerance.
	if base.PageHash.OK && current.Digest == base.PageHash.Value {
		c.Valid = append(c.Valid, ValidPageHash)
	} else {
		c.Invalid = append(c.Invalid, InvalidPageHash)
	}

	// Compressed size: exact, within window, or diverging.
	if base.Compression.OK {
		switch {
		case current.CompressedSize == base.Compression.Value:
			c.Valid = append(c.Valid, ValidCompressionExact)
		case WithinTolerance(current.CompressedSize, base.Compression.Value, tol.Compression):
			c.Valid = append(c.Valid, ValidCompressionWithinTolerance)
		default:
			c.Invalid = append(c.Invalid, InvalidCompression)
		}
	}

	// Screenshot hash: exact match short-circuits; otherwise bit distance is
	// meaningful only when the mode is confident enough to be a baseline.
	if current.ScreenshotHash == base.ScreenshotHash.Value &&
		(base.ScreenshotHash.OK || current.ScreenshotHash == "") {
		c.Valid = append(c.Valid, ValidScreenshotHashExact)
	} else if base.ScreenshotHash.OK && base.ScreenshotHash.Confidence > tol.ScreenshotConfidence {
		d, err := fingerprint.Distance(current.ScreenshotHash, base.ScreenshotHash.Value)
		if err == nil && d < tol.ScreenshotDistance {
			c.Valid = append(c.Valid, ValidScreenshotHashWithinTolerance)
		} else {
			c.Invalid = append(c.Invalid, InvalidScreenshotHash)
		}
	} else {
		c.Invalid = append(c.Invalid, InvalidScreenshotHash)
	}

	// Title: evaluated only when a prior mode exists. A sample without a
	// title compares as the empty string.
	if base.Title.OK {
		cur := ""
		if current.Title != nil {
			cur = *current.Title
		}
		if cur == base.Title.Value {
			c.Valid = append(c.Valid, ValidTitle)
		} else {
			c.Invalid = append(c.Invalid, InvalidTitle)
		}
	}

	c.Status = overallStatus(c)
	return c, nil
}

func overallStatus(c Classification) Status {
	switch {
	case c.Error != fingerprint.ErrNone:
		return StatusError
	case len(c.Invalid) == 0:
		return StatusValid
	case len(c.Invalid) == 1 && c.Invalid[0] == InvalidPageHash:
		return StatusHashOnly
	default:
		return StatusUnknown
	}
}

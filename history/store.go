// Package history persists the per-target sample history between runs.
//
// The backing store is a single pretty-printed JSON document mapping
// canonical target strings to records — deliberately human-readable, since
// the reporting side consumes the same file. History is append/evict only:
// past samples are never rewritten in place.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hazyhaar/linkrot/fingerprint"
	"github.com/hazyhaar/linkrot/target"
)

// DefaultRetention is how many samples a record keeps. Oldest evicted first.
const DefaultRetention = 5

// Record is the per-target aggregate: an optional operator-supplied marker
// substring, a stable hash of the target string (names the local page
// archive directory), and a bounded, time-ordered sample history.
type Record struct {
	Marker      *string              `json:"marker,omitempty"`
	URLHash     string               `json:"url_hash"`
	LastChecked time.Time            `json:"last_checked"`
	Samples     []fingerprint.Sample `json:"history"`
}

// Latest returns the newest sample, or false when the record is empty.
func (r *Record) Latest() (fingerprint.Sample, bool) {
	if len(r.Samples) == 0 {
		return fingerprint.Sample{}, false
	}
	return r.Samples[len(r.Samples)-1], true
}

// Store is a keyed collection of records. Not safe for concurrent use: a run
// loads it once, mutates it, and saves it once.
type Store struct {
	records   map[target.Target]*Record
	retention int
}

// New creates an empty store with the given retention cap (0 means
// DefaultRetention).
func New(retention int) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{
		records:   make(map[target.Target]*Record),
		retention: retention,
	}
}

// Load reads the store from path. A missing file yields an empty store; a
// file that exists but does not parse is an error — silently discarding
// history would erase every baseline.
func Load(path string, retention int) (*Store, error) {
	s := New(retention)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: read %s: %w", path, err)
	}

	raw := make(map[string]*Record)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("history: parse %s: %w", path, err)
	}
	for k, v := range raw {
		s.records[target.Target(k)] = v
	}
	return s, nil
}

// Save serializes the store to path as pretty JSON. The write goes to a
// temp file in the same directory and is renamed into place, so a crash
// mid-write never corrupts the previously saved store.
func (s *Store) Save(path string) error {
	raw := make(map[string]*Record, len(s.records))
	for k, v := range s.records {
		raw[k.String()] = v
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("history: serialize: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".linkrot-store-*")
	if err != nil {
		return fmt.Errorf("history: temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("history: write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("history: close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("history: replace %s: %w", path, err)
	}
	return nil
}

// Upsert records a new sample for a target. First sight creates a record
// with a single-element history; otherwise the sample is appended and the
// oldest samples are evicted until the history is within the retention cap.
func (s *Store) Upsert(t target.Target, sample fingerprint.Sample) {
	rec, ok := s.records[t]
	if !ok {
		s.records[t] = &Record{
			URLHash:     fingerprint.DigestText(t.String()),
			LastChecked: sample.CheckedAt,
			Samples:     []fingerprint.Sample{sample},
		}
		return
	}

	rec.Samples = append(rec.Samples, sample)
	if n := len(rec.Samples) - s.retention; n > 0 {
		rec.Samples = append(rec.Samples[:0:0], rec.Samples[n:]...)
	}
	rec.LastChecked = sample.CheckedAt
}

// SetMarker attaches an operator-supplied marker substring to a target,
// creating a sample-less record if the target is not yet known.
func (s *Store) SetMarker(t target.Target, marker string) {
	rec, ok := s.records[t]
	if !ok {
		rec = &Record{URLHash: fingerprint.DigestText(t.String())}
		s.records[t] = rec
	}
	rec.Marker = &marker
}

// Get returns the record for a target, or nil.
func (s *Store) Get(t target.Target) *Record {
	return s.records[t]
}

// Len returns the number of records.
func (s *Store) Len() int { return len(s.records) }

// Targets returns all recorded targets in canonical order.
func (s *Store) Targets() []target.Target {
	out := make([]target.Target, 0, len(s.records))
	for t := range s.records {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

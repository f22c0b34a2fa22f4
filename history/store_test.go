package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/hazyhaar/linkrot/fingerprint"
	"github.com/hazyhaar/linkrot/target"
)

func sampleAt(digest string, ts time.Time) fingerprint.Sample {
	return fingerprint.Sample{
		Digest:         digest,
		CompressedSize: 100,
		Class:          target.Renderable,
		CheckedAt:      ts,
	}
}

func TestUpsert_CreatesRecord(t *testing.T) {
	s := New(0)
	tgt := target.Target("https://example.com")

	s.Upsert(tgt, sampleAt("d1", time.Now()))

	rec := s.Get(tgt)
	if rec == nil {
		t.Fatal("record not created")
	}
	if len(rec.Samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(rec.Samples))
	}
	if rec.URLHash == "" {
		t.Fatal("url hash not set")
	}
}

func TestUpsert_RetentionFIFO(t *testing.T) {
	s := New(5)
	tgt := target.Target("https://example.com")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	digests := []string{"d0", "d1", "d2", "d3", "d4", "d5", "d6"}
	for i, d := range digests {
		s.Upsert(tgt, sampleAt(d, base.Add(time.Duration(i)*time.Hour)))

		rec := s.Get(tgt)
		want := i + 1
		if want > 5 {
			want = 5
		}
		if len(rec.Samples) != want {
			t.Fatalf("after %d upserts: %d samples, want %d", i+1, len(rec.Samples), want)
		}
	}

	// Oldest two evicted, newest five survive in order.
	rec := s.Get(tgt)
	for i, want := range []string{"d2", "d3", "d4", "d5", "d6"} {
		if rec.Samples[i].Digest != want {
			t.Fatalf("position %d: got %s, want %s", i, rec.Samples[i].Digest, want)
		}
	}

	// Strict time order, oldest first.
	for i := 1; i < len(rec.Samples); i++ {
		if !rec.Samples[i].CheckedAt.After(rec.Samples[i-1].CheckedAt) {
			t.Fatal("samples not time-ordered")
		}
	}
}

func TestUpsert_UpdatesLastChecked(t *testing.T) {
	s := New(0)
	tgt := target.Target("https://example.com")
	early := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(24 * time.Hour)

	s.Upsert(tgt, sampleAt("d0", early))
	s.Upsert(tgt, sampleAt("d1", late))

	if got := s.Get(tgt).LastChecked; !got.Equal(late) {
		t.Fatalf("last checked %v, want %v", got, late)
	}
}

func TestSetMarker(t *testing.T) {
	s := New(0)
	tgt := target.Target("https://example.com")

	s.SetMarker(tgt, "Official documentation")

	rec := s.Get(tgt)
	if rec == nil || rec.Marker == nil || *rec.Marker != "Official documentation" {
		t.Fatalf("marker not set: %+v", rec)
	}

	// Upserting afterwards keeps the marker.
	s.Upsert(tgt, sampleAt("d0", time.Now()))
	if rec := s.Get(tgt); rec.Marker == nil {
		t.Fatal("marker lost on upsert")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "absent.json"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty store, got %d records", s.Len())
	}
}

func TestLoad_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path, 0); err == nil {
		t.Fatal("expected parse error for corrupt store")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s := New(5)

	base := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)
	title := "Home"
	a := target.Target("https://a.example")
	b := target.Target("https://b.example")

	s.SetMarker(a, "welcome")
	s.Upsert(a, fingerprint.Sample{
		Digest:         "da",
		CompressedSize: 321,
		ScreenshotHash: "AAAAAAAAAAE",
		Title:          &title,
		Class:          target.Renderable,
		CheckedAt:      base,
	})
	s.Upsert(b, sampleAt("db", base.Add(time.Hour)))

	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, err := Load(path, 5)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Len() != 2 {
		t.Fatalf("expected 2 records, got %d", loaded.Len())
	}
	if !reflect.DeepEqual(loaded.Get(a), s.Get(a)) {
		t.Fatalf("record a did not round-trip:\n%+v\n%+v", loaded.Get(a), s.Get(a))
	}
	if !reflect.DeepEqual(loaded.Get(b), s.Get(b)) {
		t.Fatal("record b did not round-trip")
	}
}

func TestSave_PrettyAndAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	s := New(0)
	s.Upsert(target.Target("https://example.com"), sampleAt("d0", time.Now().UTC()))

	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Human-readable: indented JSON.
	var pretty map[string]json.RawMessage
	if err := json.Unmarshal(data, &pretty); err != nil {
		t.Fatal(err)
	}
	if len(data) == 0 || data[1] != '\n' {
		t.Fatal("expected indented output")
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the store file, found %d entries", len(entries))
	}
}

package checker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/linkrot/config"
	"github.com/hazyhaar/linkrot/fingerprint"
	"github.com/hazyhaar/linkrot/history"
	"github.com/hazyhaar/linkrot/runlog"
	"github.com/hazyhaar/linkrot/sampler"
	"github.com/hazyhaar/linkrot/target"
)

type fakePage struct {
	title    string
	html     string
	location string
}

func (p *fakePage) Title(context.Context) (string, error) { return p.title, nil }
func (p *fakePage) HTML(context.Context) (string, error)  { return p.html, nil }
func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	img := image.NewGray(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(x*16 + y)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
func (p *fakePage) Location(context.Context) (string, error) { return p.location, nil }
func (p *fakePage) Close() error                             { return nil }

type fakeSession struct {
	html     string
	closeErr error
	opened   int
}

func (s *fakeSession) Open(_ context.Context, url string) (sampler.Page, error) {
	s.opened++
	html := s.html
	if html == "" {
		html = "<html><body>stable content</body></html>"
	}
	return &fakePage{title: "Stable Page", html: html, location: url}, nil
}

func (s *fakeSession) Close() error { return s.closeErr }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Dirs.BaseDir = t.TempDir()
	cfg.DwellTime = 1 // effectively zero
	return cfg
}

func newTestService(cfg *config.Config, sess *fakeSession, opts ...Option) *Service {
	opts = append(opts, WithSessionFactory(func() (sampler.Session, error) {
		return sess, nil
	}))
	return New(cfg, discard(), opts...)
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	sess := &fakeSession{}
	svc := newTestService(cfg, sess, WithTargets([]string{"https://example.com"}))

	if err := svc.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	store, err := history.Load(svc.StorePath(), cfg.RetentionCap)
	if err != nil {
		t.Fatal(err)
	}
	rec := store.Get(target.Target("https://example.com"))
	if rec == nil || len(rec.Samples) != 1 {
		t.Fatalf("store not updated: %+v", rec)
	}
	if rec.Samples[0].Error != fingerprint.ErrNone {
		t.Fatalf("healthy target tagged %q", rec.Samples[0].Error)
	}

	if _, err := os.Stat(svc.ReportPath()); err != nil {
		t.Fatalf("report not written: %v", err)
	}
	if sess.opened != 1 {
		t.Fatalf("opened %d tabs, want 1", sess.opened)
	}
}

func TestRun_HistoryAccumulates(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(cfg, &fakeSession{}, WithTargets([]string{"https://example.com"}))

	for i := 0; i < 2; i++ {
		if err := svc.Run(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	store, err := history.Load(svc.StorePath(), cfg.RetentionCap)
	if err != nil {
		t.Fatal(err)
	}
	rec := store.Get(target.Target("https://example.com"))
	if rec == nil || len(rec.Samples) != 2 {
		t.Fatalf("expected 2 samples across runs, got %+v", rec)
	}
}

func TestRun_CleanStartDiscardsHistory(t *testing.T) {
	cfg := testConfig(t)
	urls := []string{"https://example.com"}

	svc := newTestService(cfg, &fakeSession{}, WithTargets(urls))
	if err := svc.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := svc.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	fresh := newTestService(cfg, &fakeSession{}, WithTargets(urls), WithCleanStart())
	if err := fresh.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	store, err := history.Load(fresh.StorePath(), cfg.RetentionCap)
	if err != nil {
		t.Fatal(err)
	}
	rec := store.Get(target.Target("https://example.com"))
	if rec == nil || len(rec.Samples) != 1 {
		t.Fatalf("clean start kept old samples: %+v", rec)
	}
}

func TestRun_RecordsRunLog(t *testing.T) {
	cfg := testConfig(t)
	l, err := runlog.Open(filepath.Join(t.TempDir(), "runlog.db"), discard())
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	svc := newTestService(cfg, &fakeSession{},
		WithTargets([]string{"https://a.example", "https://b.example"}),
		WithRunLog(l))
	if err := svc.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	runs, err := l.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Targets != 2 || runs[0].Source != "cli" {
		t.Fatalf("run not logged: %+v", runs)
	}
	outcomes, err := l.Outcomes(ctx, runs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	// First sight of a target: no baseline yet, so the outcome must carry
	// its own status, never one of the four verdicts.
	for _, o := range outcomes {
		if o.Status != "insufficient_history" {
			t.Fatalf("first-run outcome status %q, want insufficient_history", o.Status)
		}
	}
}

func TestRun_SecondRunLogsVerdicts(t *testing.T) {
	cfg := testConfig(t)
	l, err := runlog.Open(filepath.Join(t.TempDir(), "runlog.db"), discard())
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	svc := newTestService(cfg, &fakeSession{},
		WithTargets([]string{"https://example.com"}), WithRunLog(l))
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := svc.Run(ctx); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := l.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	outcomes, err := l.Outcomes(ctx, runs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 1 || outcomes[0].Status != "valid" {
		t.Fatalf("second-run outcome %+v, want status valid", outcomes)
	}
}

func TestRun_ConfigMarkers(t *testing.T) {
	cfg := testConfig(t)
	cfg.Markers = map[string]string{
		"https://example.com": "phrase that is absent",
	}

	svc := newTestService(cfg, &fakeSession{}, WithTargets([]string{"https://example.com"}))
	if err := svc.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	store, err := history.Load(svc.StorePath(), cfg.RetentionCap)
	if err != nil {
		t.Fatal(err)
	}
	rec := store.Get(target.Target("https://example.com"))
	if rec == nil || rec.Marker == nil {
		t.Fatal("config marker not persisted")
	}
	if rec.Samples[0].Error != fingerprint.ErrMarkerNotFound {
		t.Fatalf("error tag %q, want marker_not_found", rec.Samples[0].Error)
	}
}

func TestRun_NoSeedSource(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(cfg, &fakeSession{})
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected error without a seed source")
	}
}

func TestRun_SessionOpenFailure(t *testing.T) {
	cfg := testConfig(t)
	svc := New(cfg, discard(),
		WithTargets([]string{"https://example.com"}),
		WithSessionFactory(func() (sampler.Session, error) {
			return nil, errors.New("chrome not found")
		}))

	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected error when the session cannot open")
	}
	if _, err := os.Stat(svc.StorePath()); !os.IsNotExist(err) {
		t.Fatal("store must not be written when the session never opened")
	}
}

func TestRun_SessionCloseFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	sess := &fakeSession{closeErr: errors.New("chrome hung")}
	svc := newTestService(cfg, sess, WithTargets([]string{"https://example.com"}))

	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected error when the session cannot close")
	}
}

func TestRun_KeepLocalRecords(t *testing.T) {
	cfg := testConfig(t)
	cfg.KeepLocalRecords = true

	svc := newTestService(cfg, &fakeSession{}, WithTargets([]string{"https://example.com"}))
	if err := svc.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	store, err := history.Load(svc.StorePath(), cfg.RetentionCap)
	if err != nil {
		t.Fatal(err)
	}
	rec := store.Get(target.Target("https://example.com"))
	dir := filepath.Join(svc.PagesDir(), rec.URLHash)
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("archive dir not created: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d archived files, want html+png", len(entries))
	}
}

func TestReport_WithoutSampling(t *testing.T) {
	cfg := testConfig(t)
	svc := newTestService(cfg, &fakeSession{}, WithTargets([]string{"https://example.com"}))
	if err := svc.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(svc.ReportPath()); err != nil {
		t.Fatal(err)
	}

	reportOnly := New(cfg, discard(), WithSessionFactory(func() (sampler.Session, error) {
		t.Fatal("report must not open a browser")
		return nil, nil
	}))
	if err := reportOnly.Report(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(svc.ReportPath()); err != nil {
		t.Fatalf("report not regenerated: %v", err)
	}
}

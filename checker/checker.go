// Package checker coordinates one full monitoring run: harvest the seed
// set, sample every target over a browser session, fold the samples into
// the history store, and write the report.
package checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hazyhaar/linkrot/config"
	"github.com/hazyhaar/linkrot/consensus"
	"github.com/hazyhaar/linkrot/harvest"
	"github.com/hazyhaar/linkrot/history"
	"github.com/hazyhaar/linkrot/internal/browser"
	"github.com/hazyhaar/linkrot/report"
	"github.com/hazyhaar/linkrot/runlog"
	"github.com/hazyhaar/linkrot/sampler"
	"github.com/hazyhaar/linkrot/target"
)

// SessionFactory opens the browser session a run samples through.
type SessionFactory func() (sampler.Session, error)

// Service runs monitoring passes. Create with New, then Run or Report.
type Service struct {
	cfg     *config.Config
	logger  *slog.Logger
	harvest *harvest.Harvester

	openSession SessionFactory
	runLog      *runlog.Log
	fetch       sampler.Fetcher
	urls        []string
	cleanStart  bool
}

// Option configures a Service during creation.
type Option func(*Service)

// WithRunLog attaches a run log. Nil (the default) disables run logging.
func WithRunLog(l *runlog.Log) Option {
	return func(s *Service) { s.runLog = l }
}

// WithSessionFactory replaces how the browser session is opened.
func WithSessionFactory(f SessionFactory) Option {
	return func(s *Service) { s.openSession = f }
}

// WithFetcher replaces the direct-download fetcher.
func WithFetcher(f sampler.Fetcher) Option {
	return func(s *Service) { s.fetch = f }
}

// WithTargets seeds the run from explicit URLs instead of a source PDF.
func WithTargets(urls []string) Option {
	return func(s *Service) { s.urls = urls }
}

// WithCleanStart discards the persisted history and starts from an empty
// store. The old store file is overwritten on the first save.
func WithCleanStart() Option {
	return func(s *Service) { s.cleanStart = true }
}

// New creates a checker Service.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		cfg:     cfg,
		logger:  logger,
		harvest: harvest.New(logger),
	}
	for _, opt := range opts {
		opt(svc)
	}

	if svc.openSession == nil {
		svc.openSession = func() (sampler.Session, error) {
			return browser.Open(browser.Options{
				RemoteURL:       cfg.Browser.Remote,
				Headless:        cfg.Browser.Headless,
				Width:           cfg.Browser.Width,
				Height:          cfg.Browser.Height,
				PageLoadTimeout: cfg.Browser.PageLoadTimeout,
				ScriptTimeout:   cfg.Browser.ScriptTimeout,
				Logger:          logger,
			})
		}
	}
	return svc
}

// ProjectDir returns the directory all run state lives under.
func (s *Service) ProjectDir() string {
	return filepath.Join(s.cfg.Dirs.BaseDir, s.cfg.Dirs.ProjectSubdir)
}

// StorePath returns the history store location.
func (s *Service) StorePath() string {
	return filepath.Join(s.ProjectDir(), s.cfg.Dirs.DataStore)
}

// ReportPath returns the HTML report location.
func (s *Service) ReportPath() string {
	return filepath.Join(s.ProjectDir(), s.cfg.Dirs.Report)
}

// PagesDir returns the local page archive root.
func (s *Service) PagesDir() string {
	return filepath.Join(s.ProjectDir(), s.cfg.Dirs.PagesSubdir)
}

// RunLogPath returns the run log database location.
func (s *Service) RunLogPath() string {
	return filepath.Join(s.ProjectDir(), s.cfg.Dirs.RunLog)
}

// Run executes one full monitoring pass. Per-target failures degrade into
// error samples; only the boundaries are fatal: an unreadable store, a
// browser that will not open or shut down, a store that will not save.
func (s *Service) Run(ctx context.Context) error {
	if err := os.MkdirAll(s.ProjectDir(), 0o755); err != nil {
		return fmt.Errorf("checker: create project dir: %w", err)
	}

	store, err := s.loadStore()
	if err != nil {
		return err
	}
	s.applyConfigMarkers(store)

	seeds, source, err := s.seeds(ctx)
	if err != nil {
		return err
	}
	ordered := target.Sorted(seeds)
	s.logger.Info("checker: run starting", "source", source, "targets", len(ordered))

	runID := int64(0)
	if s.runLog != nil {
		runID = s.runLog.BeginRun(ctx, source)
	}

	sess, err := s.openSession()
	if err != nil {
		return fmt.Errorf("checker: open browser session: %w", err)
	}

	var archive *sampler.Archive
	if s.cfg.KeepLocalRecords {
		archive = sampler.NewArchive(s.PagesDir(), s.cfg.LocalPageCount, s.logger)
	}

	sched := sampler.New(sess, sampler.Options{
		DwellTime: s.cfg.DwellTime,
		LookupMarker: func(t target.Target) (string, bool) {
			if rec := store.Get(t); rec != nil && rec.Marker != nil {
				return *rec.Marker, true
			}
			return "", false
		},
		Fetch:   s.fetch,
		Archive: archive,
		Logger:  s.logger,
	})

	results, runErr := sched.Run(ctx, ordered)

	if cerr := sess.Close(); cerr != nil && runErr == nil {
		return fmt.Errorf("checker: close browser session: %w", cerr)
	}

	tol := s.tolerances()
	for _, res := range results {
		store.Upsert(res.Target, res.Sample)
		if s.runLog != nil {
			s.runLog.RecordOutcome(ctx, runID,
				res.Target.String(), s.verdict(store, res.Target, tol),
				string(res.Sample.Error), res.Sample.CheckedAt)
		}
	}

	if err := store.Save(s.StorePath()); err != nil {
		return fmt.Errorf("checker: %w", err)
	}
	if err := s.writeReport(store); err != nil {
		return err
	}
	if s.runLog != nil {
		s.runLog.FinishRun(ctx, runID, len(results))
	}

	s.logger.Info("checker: run finished",
		"sampled", len(results), "store", s.StorePath(), "report", s.ReportPath())
	return runErr
}

// Report regenerates the HTML report from the persisted store without
// sampling anything.
func (s *Service) Report(_ context.Context) error {
	store, err := history.Load(s.StorePath(), s.cfg.RetentionCap)
	if err != nil {
		return fmt.Errorf("checker: %w", err)
	}
	return s.writeReport(store)
}

func (s *Service) loadStore() (*history.Store, error) {
	if s.cleanStart {
		s.logger.Info("checker: clean start, discarding persisted history")
		return history.New(s.cfg.RetentionCap), nil
	}
	store, err := history.Load(s.StorePath(), s.cfg.RetentionCap)
	if err != nil {
		return nil, fmt.Errorf("checker: %w", err)
	}
	return store, nil
}

// applyConfigMarkers pushes configured marker substrings into the store so
// they persist alongside the histories they guard.
func (s *Service) applyConfigMarkers(store *history.Store) {
	for raw, marker := range s.cfg.Markers {
		tgt, err := target.Normalize(raw)
		if err != nil {
			s.logger.Warn("checker: skipping marker for malformed identifier",
				"identifier", raw, "error", err)
			continue
		}
		store.SetMarker(tgt, marker)
	}
}

// seeds resolves the run's seed set. Explicit URLs win over the configured
// source document.
func (s *Service) seeds(ctx context.Context) (map[target.Target]struct{}, string, error) {
	if len(s.urls) > 0 {
		set := make(map[target.Target]struct{}, len(s.urls))
		for _, raw := range s.urls {
			tgt, err := target.Normalize(raw)
			if err != nil {
				s.logger.Warn("checker: skipping malformed identifier",
					"identifier", raw, "error", err)
				continue
			}
			set[tgt] = struct{}{}
		}
		if len(set) == 0 {
			return nil, "", errors.New("checker: no valid targets given")
		}
		return set, "cli", nil
	}

	if s.cfg.PDFPath != "" {
		set, err := s.harvest.FromFile(s.cfg.PDFPath)
		if err != nil {
			return nil, "", fmt.Errorf("checker: %w", err)
		}
		return set, s.cfg.PDFPath, nil
	}
	if s.cfg.PDFURL != "" {
		set, err := s.harvest.FromURL(ctx, s.cfg.PDFURL)
		if err != nil {
			return nil, "", fmt.Errorf("checker: %w", err)
		}
		return set, s.cfg.PDFURL, nil
	}
	return nil, "", errors.New("checker: no seed source configured")
}

func (s *Service) tolerances() consensus.Tolerances {
	return consensus.Tolerances{
		Compression:          s.cfg.CompressionTolerance,
		ScreenshotConfidence: s.cfg.ScreenshotConfidence,
		ScreenshotDistance:   s.cfg.ScreenshotTolerance,
	}
}

// statusInsufficientHistory is the run-log status for targets that cannot
// be classified yet. Deliberately not one of the four verdict statuses.
const statusInsufficientHistory = "insufficient_history"

func (s *Service) verdict(store *history.Store, tgt target.Target, tol consensus.Tolerances) string {
	cls, err := consensus.Validate(store.Get(tgt), tol)
	if errors.Is(err, consensus.ErrInsufficientHistory) {
		return statusInsufficientHistory
	}
	if err != nil {
		return string(consensus.StatusUnknown)
	}
	return string(cls.Status)
}

func (s *Service) writeReport(store *history.Store) error {
	opts := report.Options{Tolerances: s.tolerances()}
	if s.cfg.KeepLocalRecords {
		opts.ArchiveDir = s.cfg.Dirs.PagesSubdir
	}
	if err := report.WriteFile(s.ReportPath(), store, opts); err != nil {
		return fmt.Errorf("checker: %w", err)
	}
	return nil
}

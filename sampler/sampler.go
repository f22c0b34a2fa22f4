// Package sampler walks a seed set once per run and produces one fingerprint
// sample per target.
//
// Renderable targets go through a live browser session. To amortize settle
// time, the scheduler keeps a FIFO of open tabs: each dispatch opens a tab,
// then retires at most the queue head if its dwell time has elapsed, so page
// JavaScript runs while later targets are being opened. Direct targets are
// fetched as raw bytes; unsupported targets get a synthesized error sample so
// the seed set and the result set always line up one to one.
package sampler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hazyhaar/linkrot/fingerprint"
	"github.com/hazyhaar/linkrot/target"
)

// ErrInsecureCertificate marks a navigation refused over a TLS certificate
// problem. Session implementations wrap it so the scheduler can tag the
// sample accordingly instead of filing it under a generic browser failure.
var ErrInsecureCertificate = errors.New("sampler: insecure certificate")

// Page is one open browser tab positioned on a target.
type Page interface {
	// Title returns the document title, possibly empty.
	Title(ctx context.Context) (string, error)
	// HTML returns the serialized DOM as rendered, not the raw response body.
	HTML(ctx context.Context) (string, error)
	// Screenshot returns a full-page PNG.
	Screenshot(ctx context.Context) ([]byte, error)
	// Location returns the address the tab ended up on after redirects.
	Location(ctx context.Context) (string, error)
	Close() error
}

// Session is a running browser that can open tabs.
type Session interface {
	Open(ctx context.Context, url string) (Page, error)
	Close() error
}

// Result pairs a target with the sample captured for it this run.
type Result struct {
	Target target.Target
	Sample fingerprint.Sample
}

// Options configures a Scheduler. The zero value is usable.
type Options struct {
	// DwellTime is the minimum settle time between opening a tab and
	// capturing it.
	DwellTime time.Duration

	// LookupMarker returns the operator-supplied marker substring for a
	// target, if one is configured.
	LookupMarker func(target.Target) (string, bool)

	// Fetch retrieves direct-download targets. Defaults to an HTTP client.
	Fetch Fetcher

	// Archive, when non-nil, stores the raw HTML and screenshot of every
	// renderable capture. Archive failures are logged, never fatal.
	Archive *Archive

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.LookupMarker == nil {
		o.LookupMarker = func(target.Target) (string, bool) { return "", false }
	}
	if o.Fetch == nil {
		o.Fetch = NewHTTPFetcher(0)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Scheduler captures samples for a seed set over one browser session.
type Scheduler struct {
	sess Session
	opts Options
}

// New creates a Scheduler over an open session.
func New(sess Session, opts Options) *Scheduler {
	opts.defaults()
	return &Scheduler{sess: sess, opts: opts}
}

// pending is a dispatched tab waiting out its dwell time.
type pending struct {
	target target.Target
	page   Page
	opened time.Time
}

// Run captures one sample per target, in the order given. Per-target
// failures degrade to error-tagged samples; only context cancellation aborts
// the run. Exactly one Result is returned per target unless aborted.
func (s *Scheduler) Run(ctx context.Context, targets []target.Target) ([]Result, error) {
	results := make([]Result, 0, len(targets))
	var queue []pending
	defer func() {
		// Only non-empty when the run aborted mid-flight.
		for _, p := range queue {
			_ = p.page.Close()
		}
	}()

	for _, tgt := range targets {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		class := target.Classify(tgt)
		switch class {
		case target.Renderable:
			page, err := s.sess.Open(ctx, tgt.String())
			if err != nil {
				tag := fingerprint.ErrBrowser
				if errors.Is(err, ErrInsecureCertificate) {
					tag = fingerprint.ErrInsecureCertificate
				}
				s.opts.Logger.Warn("sampler: open target",
					"target", tgt.String(), "error", err)
				results = append(results, Result{
					Target: tgt,
					Sample: fingerprint.Build("", nil, nil, class, tag),
				})
			} else {
				queue = append(queue, pending{target: tgt, page: page, opened: time.Now()})
			}
		case target.Direct:
			results = append(results, Result{Target: tgt, Sample: s.captureDirect(ctx, tgt)})
		default:
			results = append(results, Result{Target: tgt, Sample: stubSample(class)})
		}

		// At most one retirement per dispatch: keeps the open-tab count
		// bounded without ever blocking the dispatch loop on dwell time.
		if len(queue) > 0 && time.Since(queue[0].opened) >= s.opts.DwellTime {
			results = append(results, s.retire(ctx, queue[0]))
			queue = queue[1:]
		}
	}

	// Drain the remaining tabs in FIFO order, sleeping out whatever dwell
	// time each has left.
	for len(queue) > 0 {
		p := queue[0]
		if remaining := s.opts.DwellTime - time.Since(p.opened); remaining > 0 {
			if err := wait(ctx, remaining); err != nil {
				return results, err
			}
		}
		results = append(results, s.retire(ctx, p))
		queue = queue[1:]
	}
	return results, nil
}

func (s *Scheduler) retire(ctx context.Context, p pending) Result {
	sample := s.capturePage(ctx, p)
	if err := p.page.Close(); err != nil {
		s.opts.Logger.Warn("sampler: close tab",
			"target", p.target.String(), "error", err)
	}
	return Result{Target: p.target, Sample: sample}
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

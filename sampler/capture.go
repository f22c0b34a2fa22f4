package sampler

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/hazyhaar/linkrot/fingerprint"
	"github.com/hazyhaar/linkrot/target"
)

// volatileToken strips per-request session tokens some CMSes inject into the
// DOM; left in place they would flip the text digest on every visit.
var volatileToken = regexp.MustCompile(` [a-z]* idc0_343`)

// capturePage reads everything off an open tab and fingerprints it. Protocol
// failures on individual reads degrade the sample rather than abort it: a
// half-captured page at time T is still evidence.
func (s *Scheduler) capturePage(ctx context.Context, p pending) fingerprint.Sample {
	tag := fingerprint.ErrNone

	title, titleErr := p.page.Title(ctx)
	if titleErr != nil {
		s.opts.Logger.Warn("sampler: read title",
			"target", p.target.String(), "error", titleErr)
		tag = fingerprint.ErrBrowser
	}

	html, err := p.page.HTML(ctx)
	if err != nil {
		s.opts.Logger.Warn("sampler: read page source",
			"target", p.target.String(), "error", err)
		tag = fingerprint.ErrBrowser
	}
	html = volatileToken.ReplaceAllString(html, "")

	img := fingerprint.BlankImage()
	shot, err := p.page.Screenshot(ctx)
	if err != nil {
		s.opts.Logger.Warn("sampler: screenshot",
			"target", p.target.String(), "error", err)
	} else if decoded, err := png.Decode(bytes.NewReader(shot)); err != nil {
		s.opts.Logger.Warn("sampler: decode screenshot",
			"target", p.target.String(), "error", err)
	} else {
		img = decoded
	}

	if s.opts.Archive != nil {
		if err := s.opts.Archive.Save(p.target, html, shot); err != nil {
			s.opts.Logger.Warn("sampler: archive capture",
				"target", p.target.String(), "error", err)
		}
	}

	// Checks run in fixed order; the last that fires names the sample's
	// error. A redirect is more telling than a broken screenshot.
	if fingerprint.HashImage(img) == fingerprint.BlankHash {
		tag = fingerprint.ErrBadScreenshot
	}
	if marker, ok := s.opts.LookupMarker(p.target); ok && !strings.Contains(html, marker) {
		tag = fingerprint.ErrMarkerNotFound
	}
	if t := titleTag(title); t != fingerprint.ErrNone {
		tag = t
	}
	if loc, err := p.page.Location(ctx); err == nil && loc != "" && redirected(p.target, loc) {
		tag = fingerprint.ErrRedirected
	}

	titlePtr := &title
	if titleErr != nil {
		titlePtr = nil
	}
	return fingerprint.Build(html, img, titlePtr, target.Renderable, tag)
}

// titleTag spots error pages that answer 200 but say otherwise in the title.
func titleTag(title string) fingerprint.ErrorTag {
	switch {
	case strings.Contains(title, "404"), strings.Contains(title, "Not Found"):
		return fingerprint.ErrPageNotFound
	case strings.Contains(title, "Warning"):
		return fingerprint.ErrWarningTitle
	case strings.Contains(title, "Error"),
		strings.Contains(title, "Unable to"),
		strings.Contains(title, "Problem"):
		return fingerprint.ErrPageError
	}
	return fingerprint.ErrNone
}

// redirected reports whether the tab landed somewhere other than the target.
// Both sides are canonicalized first so a server adding a trailing slash or
// reordering query parameters does not count as a redirect.
func redirected(tgt target.Target, location string) bool {
	norm, err := target.Normalize(location)
	if err != nil {
		return location != tgt.String()
	}
	return norm != tgt
}

// captureDirect fetches a direct-download target as raw bytes. No title, no
// screenshot: the digest and compressed size carry the whole signal.
func (s *Scheduler) captureDirect(ctx context.Context, tgt target.Target) fingerprint.Sample {
	body, err := s.opts.Fetch.Fetch(ctx, tgt.String())
	if err != nil {
		s.opts.Logger.Warn("sampler: download target",
			"target", tgt.String(), "error", err)
		return fingerprint.Build("", nil, nil, target.Direct, fingerprint.ErrDownload)
	}
	return fingerprint.Build(body, nil, nil, target.Direct, fingerprint.ErrNone)
}

// stubSample synthesizes the sample for a target the run cannot fetch at
// all. Keeps the result set aligned with the seed set and makes the skip
// visible in the report.
func stubSample(class target.Class) fingerprint.Sample {
	var tag fingerprint.ErrorTag
	switch class {
	case target.UnsupportedLocal:
		tag = fingerprint.ErrLinkTypeLocal
	case target.UnsupportedMailto:
		tag = fingerprint.ErrLinkTypeMailto
	case target.InternalError:
		tag = fingerprint.ErrBrowser
	default:
		tag = fingerprint.ErrUnknownLinkType
	}
	return fingerprint.Build("", nil, nil, class, tag)
}

// Fetcher retrieves a direct-download target as text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches over plain HTTP with a bounded timeout.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a fetcher with the given timeout (0 means 30s).
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch downloads url and returns the body. Non-2xx statuses are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("sampler: build request for %s: %w", url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sampler: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("sampler: fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("sampler: read body of %s: %w", url, err)
	}
	return string(body), nil
}

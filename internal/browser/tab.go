package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/linkrot/sampler"
)

// Open creates a stealth tab, sizes its viewport, and navigates to url. The
// load event is awaited on a best-effort basis: slow pages still get
// captured after their dwell time, they just might not be fully settled.
func (s *Session) Open(ctx context.Context, url string) (sampler.Page, error) {
	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:  s.opts.Width,
		Height: s.opts.Height,
	}); err != nil {
		s.opts.Logger.Warn("browser: set viewport", "error", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, s.opts.PageLoadTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(url); err != nil {
		page.Close()
		if isCertError(err) {
			return nil, fmt.Errorf("browser: navigate %s: %w", url, sampler.ErrInsecureCertificate)
		}
		return nil, fmt.Errorf("browser: navigate %s: %w", url, err)
	}

	if err := page.Context(navCtx).WaitLoad(); err != nil {
		s.opts.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}

	return &tab{page: page, timeout: s.opts.ScriptTimeout}, nil
}

// isCertError spots Chrome's TLS refusals in a navigation error. Chrome only
// exposes them as net error strings.
func isCertError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "ERR_CERT") || strings.Contains(msg, "ERR_SSL")
}

// tab implements sampler.Page over a Rod page.
type tab struct {
	page    *rod.Page
	timeout time.Duration
}

func (t *tab) Title(ctx context.Context) (string, error) {
	info, err := t.info(ctx)
	if err != nil {
		return "", fmt.Errorf("browser: page title: %w", err)
	}
	return info.Title, nil
}

func (t *tab) HTML(ctx context.Context) (string, error) {
	readCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	res, err := t.page.Context(readCtx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: read DOM: %w", err)
	}
	return res.Value.Str(), nil
}

func (t *tab) Screenshot(ctx context.Context) ([]byte, error) {
	shotCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	data, err := t.page.Context(shotCtx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return data, nil
}

func (t *tab) Location(ctx context.Context) (string, error) {
	info, err := t.info(ctx)
	if err != nil {
		return "", fmt.Errorf("browser: page location: %w", err)
	}
	return info.URL, nil
}

func (t *tab) info(ctx context.Context) (*proto.TargetTargetInfo, error) {
	readCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.page.Context(readCtx).Info()
}

func (t *tab) Close() error {
	if t.page != nil {
		return t.page.Close()
	}
	return nil
}

var _ sampler.Page = (*tab)(nil)

// Package browser runs the live Chrome session behind the sampler: launch or
// attach via Rod, open stealth tabs, read back title, DOM, screenshot and
// final location.
package browser

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/linkrot/sampler"
)

// Options configures the Chrome session.
type Options struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Headless runs Chrome without a window.
	Headless bool

	// Width and Height fix the viewport so screenshots hash consistently
	// across runs. Defaults: 1080x2000.
	Width  int
	Height int

	// PageLoadTimeout bounds navigation plus the load event. Default: 15s.
	PageLoadTimeout time.Duration

	// ScriptTimeout bounds individual reads off an open tab. Default: 15s.
	ScriptTimeout time.Duration

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Width <= 0 {
		o.Width = 1080
	}
	if o.Height <= 0 {
		o.Height = 2000
	}
	if o.PageLoadTimeout <= 0 {
		o.PageLoadTimeout = 15 * time.Second
	}
	if o.ScriptTimeout <= 0 {
		o.ScriptTimeout = 15 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Session is a connected Chrome instance. It implements sampler.Session; one
// session serves a whole run and is closed afterwards.
type Session struct {
	opts    Options
	browser *rod.Browser
	lnch    *launcher.Launcher
}

// Open launches Chrome (or connects to a remote instance) and returns a
// ready session. Certificate errors are NOT suppressed: a target serving a
// broken certificate should surface as exactly that.
func Open(opts Options) (*Session, error) {
	opts.defaults()
	log := opts.Logger

	var wsURL string
	var lnch *launcher.Launcher

	if opts.RemoteURL != "" {
		wsURL = opts.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(opts.Headless).
			Set("window-size", fmt.Sprintf("%d,%d", opts.Width, opts.Height)).
			Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		lnch = l
		log.Info("browser: launched local chrome", "headless", opts.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	return &Session{opts: opts, browser: b, lnch: lnch}, nil
}

// Close shuts down Chrome and cleans up the launcher's temp profile.
func (s *Session) Close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
	if err != nil {
		return fmt.Errorf("browser: close: %w", err)
	}
	return nil
}

// compile-time interface check
var _ sampler.Session = (*Session)(nil)

package sampler

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/linkrot/fingerprint"
	"github.com/hazyhaar/linkrot/target"
)

// Archive keeps the raw HTML and screenshot of recent captures on disk, one
// subdirectory per target named by the target's digest. Meant for the
// operator to eyeball what a flagged page actually looked like; the
// fingerprints themselves never read it back.
type Archive struct {
	dir    string
	keep   int
	logger *slog.Logger
}

// NewArchive creates an archive rooted at dir keeping the newest keep
// captures per target (0 means 2).
func NewArchive(dir string, keep int, logger *slog.Logger) *Archive {
	if keep <= 0 {
		keep = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{dir: dir, keep: keep, logger: logger}
}

// Dir returns the archive subdirectory for a target.
func (a *Archive) Dir(tgt target.Target) string {
	return filepath.Join(a.dir, fingerprint.DigestText(tgt.String()))
}

// Save writes the capture under the target's subdirectory and prunes older
// captures past the retention count. A failed save loses only the local
// copy, never the sample, so callers treat the error as a warning.
func (a *Archive) Save(tgt target.Target, html string, screenshot []byte) error {
	dir := a.Dir(tgt)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("sampler: archive dir %s: %w", dir, err)
	}

	// Timestamped names sort lexically in capture order.
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05.000")

	page := filepath.Join(dir, "page_"+stamp+".html")
	if err := os.WriteFile(page, []byte(html), 0o644); err != nil {
		return fmt.Errorf("sampler: archive page %s: %w", page, err)
	}
	if screenshot != nil {
		shot := filepath.Join(dir, "screenshot_"+stamp+".png")
		if err := os.WriteFile(shot, screenshot, 0o644); err != nil {
			return fmt.Errorf("sampler: archive screenshot %s: %w", shot, err)
		}
	}

	a.prune(dir)
	return nil
}

// prune removes the oldest archived files beyond the retention count,
// independently per kind so a missing screenshot never shortens the page
// history. Removal failures are logged and skipped.
func (a *Archive) prune(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		a.logger.Warn("sampler: prune archive", "dir", dir, "error", err)
		return
	}

	byKind := make(map[string][]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".html"):
			byKind["html"] = append(byKind["html"], name)
		case strings.HasSuffix(name, ".png"):
			byKind["png"] = append(byKind["png"], name)
		}
	}

	for _, names := range byKind {
		if len(names) <= a.keep {
			continue
		}
		sort.Strings(names)
		for _, name := range names[:len(names)-a.keep] {
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				a.logger.Warn("sampler: prune archive file",
					"file", name, "error", err)
			}
		}
	}
}

// Package harvest extracts the seed set of monitored targets from a source
// PDF: every URI action embedded in the document's link annotations.
package harvest

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/hazyhaar/linkrot/target"
)

// ErrNoTargets is returned when the source document yields an empty seed
// set: a run over nothing would silently report nothing, so it refuses.
var ErrNoTargets = errors.New("harvest: no targets found in document")

// rawURIAction matches URI actions in the raw PDF bytes. Catches
// uncompressed annotation dictionaries that the structural walk misses in
// malformed documents.
var rawURIAction = regexp.MustCompile(`/URI\s*\(([^)]*)\)`)

// Harvester extracts seed sets from PDF documents.
type Harvester struct {
	logger *slog.Logger
	client *http.Client
}

// New creates a Harvester. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Harvester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Harvester{
		logger: logger,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// FromFile extracts the seed set from a PDF on disk.
func (h *Harvester) FromFile(path string) (map[target.Target]struct{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("harvest: read %s: %w", path, err)
	}
	return h.Parse(data)
}

// FromURL downloads a PDF and extracts its seed set.
func (h *Harvester) FromURL(ctx context.Context, url string) (map[target.Target]struct{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("harvest: build request for %s: %w", url, err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("harvest: download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("harvest: download %s: status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("harvest: read body of %s: %w", url, err)
	}
	return h.Parse(data)
}

// Parse extracts the seed set from PDF bytes. Two passes feed one set: a
// structural walk over the cross-reference table for URI action
// dictionaries, and a raw byte scan as a fallback for documents pdfcpu
// rejects. Identifiers that fail normalization are logged and skipped;
// duplicates collapse. An empty final set is ErrNoTargets.
func (h *Harvester) Parse(data []byte) (map[target.Target]struct{}, error) {
	var uris []string

	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		h.logger.Warn("harvest: structural parse failed, falling back to byte scan",
			"error", err)
	} else {
		uris = actionURIs(pdfCtx)
	}

	for _, m := range rawURIAction.FindAllSubmatch(data, -1) {
		uris = append(uris, unescapePDFString(string(m[1])))
	}

	set := make(map[target.Target]struct{})
	for _, raw := range uris {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		tgt, err := target.Normalize(raw)
		if err != nil {
			h.logger.Warn("harvest: skipping malformed identifier",
				"identifier", raw, "error", err)
			continue
		}
		set[tgt] = struct{}{}
	}

	if len(set) == 0 {
		return nil, ErrNoTargets
	}
	h.logger.Info("harvest: extracted seed set", "targets", len(set))
	return set, nil
}

// actionURIs walks the cross-reference table for action dictionaries with
// /S /URI and collects their /URI values.
func actionURIs(ctx *model.Context) []string {
	var out []string
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free {
			continue
		}
		dict, ok := entry.Object.(types.Dict)
		if !ok {
			continue
		}
		s, found := dict.Find("S")
		if !found {
			continue
		}
		if name, ok := s.(types.Name); !ok || name != "URI" {
			continue
		}
		uri, found := dict.Find("URI")
		if !found {
			continue
		}
		if v := uriString(uri); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// uriString decodes the two PDF string forms a URI value can take.
func uriString(obj types.Object) string {
	switch v := obj.(type) {
	case types.StringLiteral:
		return unescapePDFString(string(v))
	case types.HexLiteral:
		clean := strings.Map(func(r rune) rune {
			if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
				return -1
			}
			return r
		}, string(v))
		raw, err := hex.DecodeString(clean)
		if err != nil {
			return ""
		}
		return string(raw)
	}
	return ""
}

// unescapePDFString resolves the escape sequences that occur in URLs.
// Full PDF string decoding is not needed here.
func unescapePDFString(s string) string {
	r := strings.NewReplacer(`\(`, "(", `\)`, ")", `\\`, `\`)
	return r.Replace(s)
}

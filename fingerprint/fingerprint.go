// Package fingerprint turns a raw capture into a compact, comparable record.
//
// Three independent signals are kept per capture: a blake2s digest of the
// page text (exact-change detector), the zlib-compressed byte length (a cheap
// structural-change magnitude, far cheaper than diffing), and a perceptual
// hash of the screenshot (visual drift detector that tolerates rendering
// noise). None of the signals stores the content itself.
package fingerprint

import (
	"bytes"
	"compress/zlib"
	"encoding/hex"
	"image"
	"time"

	"golang.org/x/crypto/blake2s"

	"github.com/hazyhaar/linkrot/target"
)

// ErrorTag annotates a Sample with the failure observed at capture time.
// A tagged Sample still enters history: "broken at time T" is data.
type ErrorTag string

const (
	ErrNone                ErrorTag = ""
	ErrRedirected          ErrorTag = "redirected"
	ErrPageNotFound        ErrorTag = "page_not_found"
	ErrPageError           ErrorTag = "page_error"
	ErrWarningTitle        ErrorTag = "warning_title"
	ErrMarkerNotFound      ErrorTag = "marker_not_found"
	ErrBadScreenshot       ErrorTag = "bad_screenshot"
	ErrInsecureCertificate ErrorTag = "insecure_certificate"
	ErrLinkTypeLocal       ErrorTag = "link_type_local"
	ErrLinkTypeMailto      ErrorTag = "link_type_mailto"
	ErrUnknownLinkType     ErrorTag = "unknown_link_type"
	ErrDownload            ErrorTag = "download_error"
	ErrBrowser             ErrorTag = "browser_error"
)

// Sample is one observation of a target at a point in time.
type Sample struct {
	Digest         string       `json:"digest"`
	CompressedSize int          `json:"compressed_size"`
	ScreenshotHash string       `json:"screenshot_hash,omitempty"`
	Title          *string      `json:"title,omitempty"`
	Class          target.Class `json:"class"`
	CheckedAt      time.Time    `json:"checked_at"`
	Error          ErrorTag     `json:"error,omitempty"`
}

// Build fingerprints a capture. Pure given its inputs aside from reading the
// clock. img and title are optional: img is present only for renderable
// targets whose screenshot decoded, title only when the browser reported one.
func Build(text string, img image.Image, title *string, class target.Class, tag ErrorTag) Sample {
	s := Sample{
		Digest:         DigestText(text),
		CompressedSize: CompressedSize(text),
		Class:          class,
		CheckedAt:      time.Now().UTC(),
		Error:          tag,
	}
	if img != nil {
		s.ScreenshotHash = HashImage(img)
	}
	if title != nil {
		t := *title
		s.Title = &t
	}
	return s
}

// DigestText returns the blake2s-256 hex digest of the text bytes.
func DigestText(text string) string {
	sum := blake2s.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CompressedSize returns the byte length of the text after zlib compression
// at the maximum ratio. Used purely as a magnitude signal; the compressed
// bytes are discarded.
func CompressedSize(text string) int {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		// Only reachable with an invalid level constant.
		return 0
	}
	if _, err := w.Write([]byte(text)); err != nil {
		return 0
	}
	if err := w.Close(); err != nil {
		return 0
	}
	return buf.Len()
}

package fingerprint

import (
	"image"
	"image/color"
	"strings"
	"testing"

	"github.com/hazyhaar/linkrot/target"
)

func TestDigestText_Stable(t *testing.T) {
	a := DigestText("hello world")
	b := DigestText("hello world")
	if a != b {
		t.Fatalf("digest unstable: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == DigestText("hello worlds") {
		t.Fatal("distinct inputs produced the same digest")
	}
}

func TestCompressedSize(t *testing.T) {
	short := CompressedSize("abc")
	if short <= 0 {
		t.Fatalf("expected positive size, got %d", short)
	}

	// Deterministic across calls.
	if short != CompressedSize("abc") {
		t.Fatal("compressed size not deterministic")
	}

	// Highly repetitive input compresses far below its raw length.
	repetitive := strings.Repeat("linkrot ", 10_000)
	if got := CompressedSize(repetitive); got >= len(repetitive)/10 {
		t.Fatalf("expected strong compression, got %d of %d", got, len(repetitive))
	}
}

func TestHashImage_BlankSentinel(t *testing.T) {
	if got := HashImage(BlankImage()); got != BlankHash {
		t.Fatalf("blank image hash = %q, want %q", got, BlankHash)
	}
}

func TestHashImage_Properties(t *testing.T) {
	img := gradient(64, 64)
	a := HashImage(img)
	b := HashImage(gradient(64, 64))
	if a != b {
		t.Fatalf("identical images hash differently: %s vs %s", a, b)
	}
	if len(a) != 11 {
		t.Fatalf("expected 11-char token, got %q", a)
	}
	if a == BlankHash {
		t.Fatal("non-blank image collided with the blank sentinel")
	}

	d, err := Distance(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if d != 0 {
		t.Fatalf("identical images at distance %d", d)
	}
}

func TestDistance(t *testing.T) {
	a := HashImage(gradient(64, 64))
	blank := BlankHash

	d, err := Distance(a, blank)
	if err != nil {
		t.Fatal(err)
	}
	if d <= 0 || d > 64 {
		t.Fatalf("distance %d out of range", d)
	}

	if _, err := Distance("not-base64!!", blank); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestBuild(t *testing.T) {
	title := "Home"
	s := Build("<html>content</html>", gradient(32, 32), &title, target.Renderable, ErrNone)

	if s.Digest == "" || s.CompressedSize == 0 {
		t.Fatalf("incomplete sample: %+v", s)
	}
	if s.ScreenshotHash == "" {
		t.Fatal("expected screenshot hash for supplied image")
	}
	if s.Title == nil || *s.Title != "Home" {
		t.Fatalf("title not carried: %+v", s.Title)
	}
	if s.CheckedAt.IsZero() {
		t.Fatal("timestamp not set")
	}

	// Without an image or title, the optional fields stay empty.
	bare := Build("content", nil, nil, target.Direct, ErrNone)
	if bare.ScreenshotHash != "" || bare.Title != nil {
		t.Fatalf("optional fields set without inputs: %+v", bare)
	}
}

func gradient(w, h int) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x * 4) % 256)})
		}
	}
	return img
}

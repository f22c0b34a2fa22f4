package fingerprint

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"image"
	"math/bits"

	"github.com/corona10/goimagehash"
)

// BlankHash is the difference hash of an all-zero image: the token stored
// when a screenshot capture produced no pixels. A stored hash equal to this
// sentinel means "capture failed", never "page looks like this".
const BlankHash = "AAAAAAAAAAA"

// HashImage computes the 64-bit difference hash of an image and encodes it
// as an 11-character base64 token for storage. Visually similar images get
// tokens with small bit distance; anti-aliasing and ad rotation land within
// a couple of bits.
func HashImage(img image.Image) string {
	h, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return BlankHash
	}
	return encodeHash(h.GetHash())
}

// BlankImage returns the sentinel image used when a screenshot capture
// failed; its hash is BlankHash.
func BlankImage() image.Image {
	return image.NewGray(image.Rect(0, 0, 9, 8))
}

// Distance returns the Hamming distance between two encoded hash tokens.
func Distance(a, b string) (int, error) {
	ha, err := decodeHash(a)
	if err != nil {
		return 0, err
	}
	hb, err := decodeHash(b)
	if err != nil {
		return 0, err
	}
	return bits.OnesCount64(ha ^ hb), nil
}

func encodeHash(h uint64) string {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], h)
	return base64.RawStdEncoding.EncodeToString(raw[:])
}

func decodeHash(s string) (uint64, error) {
	raw, err := base64.RawStdEncoding.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("fingerprint: decode hash %q: %w", s, err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("fingerprint: hash %q is %d bytes, want 8", s, len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

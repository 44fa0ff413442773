package slides

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math/bits"
	"os"
	"strconv"

	"github.com/corona10/goimagehash"
)

// Hash is a 64-bit DCT perceptual hash.
type Hash uint64

// Distance returns the Hamming distance between two hashes (0-64).
func Distance(a, b Hash) int {
	return bits.OnesCount64(uint64(a) ^ uint64(b))
}

// String renders the hash as 16 hex digits.
func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// ParseHash is the inverse of Hash.String.
func ParseHash(s string) (Hash, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hash %q: %w", s, err)
	}
	return Hash(v), nil
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HashImage computes the perceptual hash of img.
func HashImage(img image.Image) (Hash, error) {
	ph, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return 0, fmt.Errorf("perception hash: %w", err)
	}
	return Hash(ph.GetHash()), nil
}

// HashFile decodes a PNG or JPEG file and hashes it.
func HashFile(path string) (Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open frame: %w", err)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return 0, fmt.Errorf("decode frame %s: %w", path, err)
	}
	return HashImage(img)
}

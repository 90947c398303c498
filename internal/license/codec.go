package license

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

// Key format constants
const (
	KeyPrefix      = "SGPT"
	ChecksumLength = 4
	// RandomSegmentLength is the number of base-36 symbols in the random key segment.
	RandomSegmentLength = 10

	keyAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var keyPattern = regexp.MustCompile(`^SGPT-[A-Z0-9]+-[A-Z0-9]+-[A-Z0-9]{4}$`)

// KeyGenerator produces new license keys. It is stateless apart from its
// clock and entropy source, both of which can be replaced in tests.
type KeyGenerator struct {
	now     func() time.Time
	entropy io.Reader
}

// NewKeyGenerator returns a generator backed by the wall clock and crypto/rand.
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{now: time.Now, entropy: rand.Reader}
}

// Generate returns a key of the form SGPT-<time>-<random>-<checksum>.
func (g *KeyGenerator) Generate() (string, error) {
	stamp := strings.ToUpper(strconv.FormatInt(g.now().UnixMilli(), 36))

	random, err := randomSegment(g.entropy, RandomSegmentLength)
	if err != nil {
		return "", fmt.Errorf("generate random key segment: %w", err)
	}

	return fmt.Sprintf("%s-%s-%s-%s", KeyPrefix, stamp, random, Checksum(stamp+random)), nil
}

// GenerateKey generates a key with the default generator.
func GenerateKey() (string, error) {
	return NewKeyGenerator().Generate()
}

func randomSegment(r io.Reader, n int) (string, error) {
	base := big.NewInt(int64(len(keyAlphabet)))
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(r, base)
		if err != nil {
			return "", err
		}
		sb.WriteByte(keyAlphabet[idx.Int64()])
	}
	return sb.String(), nil
}

// Checksum computes the 4 character checksum of s.
//
// The hash is the classic polynomial rolling hash h = h*31 + c over the
// UTF-16 code units of s, wrapping to a signed 32-bit integer after every
// step. The absolute value is taken in 64 bits so that math.MinInt32 maps to
// 2147483648, then rendered in upper-case base 36 and cut or left-padded
// with '0' to exactly four characters.
func Checksum(s string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}

	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}

	out := strings.ToUpper(strconv.FormatInt(abs, 36))
	if len(out) > ChecksumLength {
		return out[:ChecksumLength]
	}
	return strings.Repeat("0", ChecksumLength-len(out)) + out
}

// NormalizeKey trims surrounding whitespace and upper-cases a key.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// ValidateFormat reports whether key matches the canonical key format after
// normalization.
func ValidateFormat(key string) bool {
	return keyPattern.MatchString(NormalizeKey(key))
}

// ValidateChecksum reports whether the last key segment equals the checksum
// of the two segments before it.
func ValidateChecksum(key string) bool {
	key = NormalizeKey(key)
	if !keyPattern.MatchString(key) {
		return false
	}
	parts := strings.Split(key, "-")
	return Checksum(parts[1]+parts[2]) == parts[3]
}

// MaskKey hides the middle of a key for log output.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}

package service

import (
	"crypto/rand"
	"io"
	"regexp"
	"strings"
)

// URL-safe alphabet for generated short codes. 64 symbols, so one random byte
// masked to six bits selects a symbol without bias.
const urlSafeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_-"

// DefaultShortCodeLength is used when a generator is created with a non-positive length
const DefaultShortCodeLength = 6

const maxAliasLength = 64

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// CodeGenerator produces candidate short codes. Uniqueness is not its concern;
// the repository enforces it on insert.
type CodeGenerator interface {
	Generate() (string, error)
}

// RandomGenerator draws codes from a cryptographic random source
type RandomGenerator struct {
	length int
	source io.Reader
}

// NewRandomGenerator creates a generator of codes with the given length
func NewRandomGenerator(length int) *RandomGenerator {
	if length <= 0 {
		length = DefaultShortCodeLength
	}
	return &RandomGenerator{length: length, source: rand.Reader}
}

// Generate returns a new random code
func (g *RandomGenerator) Generate() (string, error) {
	buf := make([]byte, g.length)
	if _, err := io.ReadFull(g.source, buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = urlSafeAlphabet[b&63]
	}
	return string(buf), nil
}

// reservedSet holds path segments that must never resolve as short codes
type reservedSet map[string]struct{}

func newReservedSet(codes []string) reservedSet {
	set := make(reservedSet, len(codes))
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			set[strings.ToLower(c)] = struct{}{}
		}
	}
	return set
}

func (r reservedSet) contains(code string) bool {
	_, ok := r[strings.ToLower(code)]
	return ok
}

// validAlias reports whether a caller-chosen code is well formed
func validAlias(code string) bool {
	return len(code) <= maxAliasLength && aliasPattern.MatchString(code)
}

var _ CodeGenerator = (*RandomGenerator)(nil)

package fingerprint

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// ---------------------------------------------------------------------------
// SimHash fingerprints — locality-sensitive hashing for near-duplicate
// detection over contract source, bytecode and wallet behavior summaries.
// Similar inputs produce fingerprints with small Hamming distance.
// ---------------------------------------------------------------------------

const (
	Bits64  = 64
	Bits128 = 128
)

var (
	ErrBadWidth      = errors.New("fingerprint width must be 64 or 128")
	ErrWidthMismatch = errors.New("fingerprint widths differ")
)

// Fingerprint is a 64- or 128-bit SimHash value. Hi is zero for 64-bit
// fingerprints.
type Fingerprint struct {
	Hi   uint64 `json:"hi"`
	Lo   uint64 `json:"lo"`
	Bits int    `json:"bits"`
}

// hiSeed domain-separates the upper 64 bits of a 128-bit fingerprint from
// the lower. xxhash/v2 exposes no seeded API, so a prefix byte serves.
const hiSeed = "\x01"

// New fingerprints a text using term-frequency token weights
// (0.5 + 0.5*count/maxCount). Deterministic for identical input.
func New(text string, width int) (Fingerprint, error) {
	return NewWeighted(text, width, nil)
}

// NewWeighted is New with a caller-supplied weight table. Tokens absent
// from the table fall back to the term-frequency weight.
func NewWeighted(text string, width int, weights map[string]float64) (Fingerprint, error) {
	return fromCounts(countTokens(Tokenize(text)), width, weights)
}

// NewFromTokens fingerprints a pre-tokenized input (e.g. one token per
// bytecode opcode) with term-frequency weights.
func NewFromTokens(tokens []string, width int) (Fingerprint, error) {
	return fromCounts(countTokens(tokens), width, nil)
}

func fromCounts(counts map[string]int, width int, weights map[string]float64) (Fingerprint, error) {
	if width != Bits64 && width != Bits128 {
		return Fingerprint{}, fmt.Errorf("%w: got %d", ErrBadWidth, width)
	}

	fp := Fingerprint{Bits: width}
	if len(counts) == 0 {
		return fp, nil
	}

	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}

	acc := make([]float64, width)
	for token, count := range counts {
		weight := 0.5 + 0.5*float64(count)/float64(maxCount)
		if w, ok := weights[token]; ok {
			weight = w
		}

		lo := xxhash.Sum64String(token)
		var hi uint64
		if width == Bits128 {
			hi = xxhash.Sum64String(hiSeed + token)
		}
		for i := 0; i < 64 && i < width; i++ {
			if lo>>uint(i)&1 == 1 {
				acc[i] += weight
			} else {
				acc[i] -= weight
			}
		}
		for i := 64; i < width; i++ {
			if hi>>uint(i-64)&1 == 1 {
				acc[i] += weight
			} else {
				acc[i] -= weight
			}
		}
	}

	for i, v := range acc {
		if v > 0 {
			if i < 64 {
				fp.Lo |= 1 << uint(i)
			} else {
				fp.Hi |= 1 << uint(i-64)
			}
		}
	}
	return fp, nil
}

// Hamming returns the number of differing bits between two fingerprints
// of equal width.
func (f Fingerprint) Hamming(other Fingerprint) (int, error) {
	if f.Bits != other.Bits {
		return 0, fmt.Errorf("%w: %d vs %d", ErrWidthMismatch, f.Bits, other.Bits)
	}
	d := bits.OnesCount64(f.Lo ^ other.Lo)
	if f.Bits == Bits128 {
		d += bits.OnesCount64(f.Hi ^ other.Hi)
	}
	return d, nil
}

// Similarity is 1 - hamming/width, in [0,1].
func (f Fingerprint) Similarity(other Fingerprint) (float64, error) {
	d, err := f.Hamming(other)
	if err != nil {
		return 0, err
	}
	return 1 - float64(d)/float64(f.Bits), nil
}

// String renders the fingerprint as fixed-width hex.
func (f Fingerprint) String() string {
	if f.Bits == Bits128 {
		return fmt.Sprintf("%016x%016x", f.Hi, f.Lo)
	}
	return fmt.Sprintf("%016x", f.Lo)
}

// Tokenize lower-cases and splits on any non-alphanumeric rune.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func countTokens(tokens []string) map[string]int {
	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}
	return counts
}

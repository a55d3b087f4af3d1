package patterns

import (
	"fmt"
	"strings"
	"sync"

	"github.com/chainscope/chainscope/internal/record"
)

// ---------------------------------------------------------------------------
// Address symmetry analysis — vanity and generated-address heuristics.
// Pure per-pair computation, memoized because the same addresses recur
// across every token a wallet touches.
// ---------------------------------------------------------------------------

// ZeroAddress is the default symmetry reference.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// SymmetryReport describes structural regularities of a hex address
// relative to a reference address.
type SymmetryReport struct {
	Address            string  `json:"address"`
	Reference          string  `json:"reference"`
	Palindrome         bool    `json:"palindrome"`
	HammingToReference int     `json:"hamming_to_reference"`
	RepeatedPairs      int     `json:"repeated_pairs"`
	PatternScore       float64 `json:"pattern_score"`
	SymmetryScore      float64 `json:"symmetry_score"`
}

// SymmetryAnalyzer memoizes per-(address, reference) reports.
type SymmetryAnalyzer struct {
	mu   sync.RWMutex
	memo map[string]SymmetryReport
}

func NewSymmetryAnalyzer() *SymmetryAnalyzer {
	return &SymmetryAnalyzer{memo: make(map[string]SymmetryReport)}
}

// Analyze computes the symmetry report for addr against reference.
// An empty reference means the zero address.
func (a *SymmetryAnalyzer) Analyze(addr, reference string) (SymmetryReport, error) {
	if reference == "" {
		reference = ZeroAddress
	}
	key := addr + "|" + reference

	a.mu.RLock()
	cached, ok := a.memo[key]
	a.mu.RUnlock()
	if ok {
		return cached, nil
	}

	report, err := analyzeSymmetry(addr, reference)
	if err != nil {
		return SymmetryReport{}, err
	}

	a.mu.Lock()
	a.memo[key] = report
	a.mu.Unlock()
	return report, nil
}

func analyzeSymmetry(addr, reference string) (SymmetryReport, error) {
	normAddr, err := record.NormalizeAddress(addr)
	if err != nil {
		return SymmetryReport{}, err
	}
	normRef, err := record.NormalizeAddress(reference)
	if err != nil {
		return SymmetryReport{}, fmt.Errorf("reference: %w", err)
	}

	hexA := strings.TrimPrefix(normAddr, "0x")
	hexR := strings.TrimPrefix(normRef, "0x")

	hamming := 0
	for i := 0; i < len(hexA); i++ {
		if hexA[i] != hexR[i] {
			hamming++
		}
	}

	repeated := 0
	for i := 0; i+1 < len(hexA); i++ {
		if hexA[i] == hexA[i+1] {
			repeated++
		}
	}

	return SymmetryReport{
		Address:            normAddr,
		Reference:          normRef,
		Palindrome:         isPalindrome(hexA),
		HammingToReference: hamming,
		RepeatedPairs:      repeated,
		PatternScore:       patternScore(hexA),
		SymmetryScore:      1 - float64(hamming)/float64(len(hexA)),
	}, nil
}

func isPalindrome(s string) bool {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		if s[i] != s[j] {
			return false
		}
	}
	return true
}

// patternScore sums occurrences*length over every distinct substring
// (length >= 2) that repeats within the hex digits.
func patternScore(hexDigits string) float64 {
	score := 0.0
	for length := 2; length <= len(hexDigits)/2; length++ {
		counts := make(map[string]int)
		for i := 0; i+length <= len(hexDigits); i++ {
			counts[hexDigits[i:i+length]]++
		}
		for _, c := range counts {
			if c > 1 {
				score += float64(c * length)
			}
		}
	}
	return score
}

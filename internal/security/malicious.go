package security

import (
	"sync"

	"github.com/chainscope/chainscope/internal/fingerprint"
)

// FingerprintSet holds known-malicious bytecode fingerprints. It is
// injected into the analyzer so callers own its lifecycle.
type FingerprintSet struct {
	mu  sync.RWMutex
	fps []fingerprint.Fingerprint
}

func NewFingerprintSet() *FingerprintSet {
	return &FingerprintSet{}
}

func (s *FingerprintSet) Add(fp fingerprint.Fingerprint) {
	s.mu.Lock()
	s.fps = append(s.fps, fp)
	s.mu.Unlock()
}

func (s *FingerprintSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fps)
}

// Matches reports whether fp is within minSimilarity of any known
// fingerprint. Width mismatches are skipped, not errors.
func (s *FingerprintSet) Matches(fp fingerprint.Fingerprint, minSimilarity float64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, known := range s.fps {
		sim, err := fp.Similarity(known)
		if err != nil {
			continue
		}
		if sim >= minSimilarity {
			return true
		}
	}
	return false
}

package similarity

import (
	"math"
	"strings"

	"github.com/chainscope/chainscope/internal/fingerprint"
)

// ---------------------------------------------------------------------------
// Hybrid similarity — composes fingerprint, structural, bytecode and
// embedding signals into one weighted score for comparing two artifacts.
// Missing optional signals contribute 0 while their weight stays in the
// denominator; the downward bias is deliberate, current behavior.
// ---------------------------------------------------------------------------

// maxBytecodeCompare caps the LCS window over raw bytecode.
const maxBytecodeCompare = 4096

// Weights configures signal mixing. All weights must be non-negative.
type Weights struct {
	Fingerprint float64 `yaml:"fingerprint"`
	Structural  float64 `yaml:"structural"`
	Bytecode    float64 `yaml:"bytecode"`
	Embedding   float64 `yaml:"embedding"`
}

// DefaultWeights returns the production mix.
func DefaultWeights() Weights {
	return Weights{Fingerprint: 0.3, Structural: 0.3, Bytecode: 0.3, Embedding: 0.1}
}

// Input carries both artifacts. Bytecode and embeddings are optional.
type Input struct {
	TextA, TextB         string
	BytecodeA, BytecodeB []byte
	EmbeddingA, EmbeddingB []float64
}

// Report is the combined similarity result with per-signal components.
type Report struct {
	Score       float64 `json:"score"`
	Fingerprint float64 `json:"fingerprint"`
	Structural  float64 `json:"structural"`
	Bytecode    float64 `json:"bytecode"`
	Embedding   float64 `json:"embedding"`
}

// Hybrid computes the weighted similarity of two artifacts.
func Hybrid(in Input, w Weights) (Report, error) {
	var report Report

	fpA, err := fingerprint.New(in.TextA, fingerprint.Bits64)
	if err != nil {
		return report, err
	}
	fpB, err := fingerprint.New(in.TextB, fingerprint.Bits64)
	if err != nil {
		return report, err
	}
	report.Fingerprint, err = fpA.Similarity(fpB)
	if err != nil {
		return report, err
	}

	report.Structural = lineSimilarity(in.TextA, in.TextB)

	if len(in.BytecodeA) > 0 && len(in.BytecodeB) > 0 {
		report.Bytecode = bytecodeSimilarity(in.BytecodeA, in.BytecodeB)
	}

	if len(in.EmbeddingA) > 0 && len(in.EmbeddingA) == len(in.EmbeddingB) {
		// Cosine lands in [-1,1]; rescale to [0,1] before weighting.
		report.Embedding = (cosine(in.EmbeddingA, in.EmbeddingB) + 1) / 2
	}

	totalWeight := w.Fingerprint + w.Structural + w.Bytecode + w.Embedding
	if totalWeight == 0 {
		return report, nil
	}
	report.Score = (w.Fingerprint*report.Fingerprint +
		w.Structural*report.Structural +
		w.Bytecode*report.Bytecode +
		w.Embedding*report.Embedding) / totalWeight
	return report, nil
}

// lineSimilarity is an LCS ratio over non-blank lines:
// 2*LCS / (lenA + lenB).
func lineSimilarity(a, b string) float64 {
	linesA := nonBlankLines(a)
	linesB := nonBlankLines(b)
	if len(linesA) == 0 && len(linesB) == 0 {
		return 1
	}
	if len(linesA) == 0 || len(linesB) == 0 {
		return 0
	}
	lcs := lcsLength(linesA, linesB)
	return 2 * float64(lcs) / float64(len(linesA)+len(linesB))
}

func nonBlankLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func lcsLength(a, b []string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// bytecodeSimilarity is the byte-level LCS ratio over a bounded window.
func bytecodeSimilarity(a, b []byte) float64 {
	if len(a) > maxBytecodeCompare {
		a = a[:maxBytecodeCompare]
	}
	if len(b) > maxBytecodeCompare {
		b = b[:maxBytecodeCompare]
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return 2 * float64(prev[len(b)]) / float64(len(a)+len(b))
}

func cosine(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

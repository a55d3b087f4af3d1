package patterns

import (
	"math"
	"math/bits"
)

// BitReport is the bit-level profile of a non-negative integer.
// The zero value describes the input 0.
type BitReport struct {
	BitLength     int     `json:"bit_length"`
	TrailingZeros int     `json:"trailing_zeros"`
	LongestOnes   int     `json:"longest_ones"`
	LongestZeros  int     `json:"longest_zeros"`
	Entropy       float64 `json:"entropy"`
	Odd           bool    `json:"odd"`
	Density       float64 `json:"density"`
}

// AnalyzeBits profiles the binary representation of v. Runs of zeros are
// measured within the significant bits only (no leading zeros).
func AnalyzeBits(v uint64) BitReport {
	if v == 0 {
		return BitReport{}
	}

	length := bits.Len64(v)
	ones := bits.OnesCount64(v)
	zeros := length - ones

	report := BitReport{
		BitLength:     length,
		TrailingZeros: bits.TrailingZeros64(v),
		Odd:           v&1 == 1,
		Density:       float64(ones) / float64(length),
	}

	runOnes, runZeros := 0, 0
	for i := 0; i < length; i++ {
		if v>>uint(i)&1 == 1 {
			runOnes++
			runZeros = 0
		} else {
			runZeros++
			runOnes = 0
		}
		if runOnes > report.LongestOnes {
			report.LongestOnes = runOnes
		}
		if runZeros > report.LongestZeros {
			report.LongestZeros = runZeros
		}
	}

	if ones > 0 && zeros > 0 {
		p1 := float64(ones) / float64(length)
		p0 := float64(zeros) / float64(length)
		report.Entropy = -(p1*math.Log2(p1) + p0*math.Log2(p0))
	}
	return report
}

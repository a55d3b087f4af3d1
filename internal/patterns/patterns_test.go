package patterns

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainscope/chainscope/internal/record"
)

func TestSymmetryAnalyzer_ZeroReference(t *testing.T) {
	a := NewSymmetryAnalyzer()

	report, err := a.Analyze(ZeroAddress, "")
	require.NoError(t, err)

	assert.True(t, report.Palindrome)
	assert.Equal(t, 0, report.HammingToReference)
	assert.Equal(t, 1.0, report.SymmetryScore)
	assert.Equal(t, 39, report.RepeatedPairs)
}

func TestSymmetryAnalyzer_InvalidAddress(t *testing.T) {
	a := NewSymmetryAnalyzer()
	_, err := a.Analyze("not-an-address", "")
	assert.ErrorIs(t, err, record.ErrInvalidAddress)
}

func TestSymmetryAnalyzer_HammingAndScore(t *testing.T) {
	a := NewSymmetryAnalyzer()

	// One hex digit differs from the zero address.
	report, err := a.Analyze("0x0000000000000000000000000000000000000001", "")
	require.NoError(t, err)

	assert.Equal(t, 1, report.HammingToReference)
	assert.InDelta(t, 1-1.0/40.0, report.SymmetryScore, 1e-9)
	assert.False(t, report.Palindrome)
}

func TestSymmetryAnalyzer_Memoization(t *testing.T) {
	a := NewSymmetryAnalyzer()
	first, err := a.Analyze("0xDEADbeef00000000000000000000000000000000", "")
	require.NoError(t, err)
	second, err := a.Analyze("0xdeadbeef00000000000000000000000000000000", "")
	require.NoError(t, err)
	assert.Equal(t, first.PatternScore, second.PatternScore)
}

func TestSymmetryAnalyzer_PatternScorePositiveForRepeats(t *testing.T) {
	a := NewSymmetryAnalyzer()
	vanity, err := a.Analyze("0xabababababababababababababababababababab", "")
	require.NoError(t, err)
	assert.Greater(t, vanity.PatternScore, 0.0)
}

func TestAnalyzeBits_Zero(t *testing.T) {
	report := AnalyzeBits(0)
	assert.Equal(t, BitReport{}, report)
}

func TestAnalyzeBits_Basic(t *testing.T) {
	// 0b1011000 = 88
	report := AnalyzeBits(0b1011000)

	assert.Equal(t, 7, report.BitLength)
	assert.Equal(t, 3, report.TrailingZeros)
	assert.Equal(t, 2, report.LongestOnes)
	assert.Equal(t, 3, report.LongestZeros)
	assert.False(t, report.Odd)
	assert.InDelta(t, 3.0/7.0, report.Density, 1e-9)

	p1, p0 := 3.0/7.0, 4.0/7.0
	want := -(p1*math.Log2(p1) + p0*math.Log2(p0))
	assert.InDelta(t, want, report.Entropy, 1e-9)
}

func TestAnalyzeBits_AllOnes(t *testing.T) {
	report := AnalyzeBits(0b1111)
	assert.Equal(t, 4, report.BitLength)
	assert.Equal(t, 4, report.LongestOnes)
	assert.Equal(t, 0, report.LongestZeros)
	assert.Equal(t, 0.0, report.Entropy) // single symbol, no uncertainty
	assert.Equal(t, 1.0, report.Density)
	assert.True(t, report.Odd)
}

func TestAnalyzeBytecode_ReentrancyByCallvalue(t *testing.T) {
	code := []byte{0x60, 0x80, opDelegatecall, opCallvalue, opStaticcall}
	report := AnalyzeBytecode(code)

	assert.True(t, report.Patterns.Delegatecall)
	assert.True(t, report.Patterns.Callvalue)
	assert.Equal(t, []string{VulnReentrancyRisk}, report.Vulnerabilities)
	assert.Equal(t, 5, report.ByteCount)
	assert.Equal(t, 5, report.UniqueBytes)
	assert.InDelta(t, 5.0/256.0, report.ByteEntropy, 1e-9)
}

func TestAnalyzeBytecode_ReentrancyByMissingStaticcall(t *testing.T) {
	report := AnalyzeBytecode([]byte{opDelegatecall, opSload})
	assert.Equal(t, []string{VulnReentrancyRisk}, report.Vulnerabilities)
	assert.True(t, report.Patterns.StorageAccess)
}

func TestAnalyzeBytecode_CleanWhenGuarded(t *testing.T) {
	// delegatecall with staticcall present and no callvalue.
	report := AnalyzeBytecode([]byte{opDelegatecall, opStaticcall})
	assert.Empty(t, report.Vulnerabilities)
}

func TestAnalyzeBytecode_Empty(t *testing.T) {
	report := AnalyzeBytecode(nil)
	assert.Equal(t, 0, report.ByteCount)
	assert.Equal(t, 0, report.UniqueBytes)
	assert.Empty(t, report.Vulnerabilities)
	assert.Empty(t, report.SuspiciousOpcodes())
}

func TestSuspiciousOpcodes(t *testing.T) {
	report := AnalyzeBytecode([]byte{opDelegatecall, opSelfdestruct, opCreate2, opExtcodecopy})
	assert.Equal(t, []string{"delegatecall", "selfdestruct", "create2", "extcode_access"}, report.SuspiciousOpcodes())
}

package patterns

// ---------------------------------------------------------------------------
// Bytecode pattern analysis — EVM opcode scan with fixed co-occurrence
// rules for the vulnerability classes the engine cares about.
// ---------------------------------------------------------------------------

// Watched EVM opcodes.
const (
	opCallvalue    = 0x34
	opExtcodesize  = 0x3b
	opExtcodecopy  = 0x3c
	opSload        = 0x54
	opSstore       = 0x55
	opDelegatecall = 0xf4
	opCreate2      = 0xf5
	opStaticcall   = 0xfa
	opSelfdestruct = 0xff
)

// OpcodeFlags records which watched opcodes appear in the bytecode.
type OpcodeFlags struct {
	Delegatecall  bool `json:"delegatecall"`
	Selfdestruct  bool `json:"selfdestruct"`
	Create2       bool `json:"create2"`
	Staticcall    bool `json:"staticcall"`
	Callvalue     bool `json:"callvalue"`
	StorageAccess bool `json:"storage_access"`
	ExtcodeAccess bool `json:"extcode_access"`
}

// BytecodeReport is the result of scanning contract bytecode.
type BytecodeReport struct {
	Patterns        OpcodeFlags `json:"patterns"`
	Vulnerabilities []string    `json:"vulnerabilities"`
	ByteCount       int         `json:"byte_count"`
	UniqueBytes     int         `json:"unique_bytes"`
	ByteEntropy     float64     `json:"byte_entropy"`
}

// VulnReentrancyRisk flags the delegatecall co-occurrence rules.
const VulnReentrancyRisk = "reentrancy_risk"

// AnalyzeBytecode scans raw bytecode for the watched opcode set. The scan
// is a plain byte scan; it does not decode PUSH immediates, so it can
// over-report on data segments. Callers treat flags as heuristics.
func AnalyzeBytecode(code []byte) BytecodeReport {
	var seen [256]bool
	report := BytecodeReport{ByteCount: len(code)}

	for _, b := range code {
		seen[b] = true
		switch b {
		case opDelegatecall:
			report.Patterns.Delegatecall = true
		case opSelfdestruct:
			report.Patterns.Selfdestruct = true
		case opCreate2:
			report.Patterns.Create2 = true
		case opStaticcall:
			report.Patterns.Staticcall = true
		case opCallvalue:
			report.Patterns.Callvalue = true
		case opSload, opSstore:
			report.Patterns.StorageAccess = true
		case opExtcodesize, opExtcodecopy:
			report.Patterns.ExtcodeAccess = true
		}
	}

	for _, s := range seen {
		if s {
			report.UniqueBytes++
		}
	}
	report.ByteEntropy = float64(report.UniqueBytes) / 256

	// Fixed co-occurrence rules. Both map to the same class, reported once.
	if report.Patterns.Delegatecall && report.Patterns.Callvalue {
		report.Vulnerabilities = append(report.Vulnerabilities, VulnReentrancyRisk)
	} else if report.Patterns.Delegatecall && !report.Patterns.Staticcall {
		report.Vulnerabilities = append(report.Vulnerabilities, VulnReentrancyRisk)
	}

	return report
}

// SuspiciousOpcodes lists the names of risky opcodes present, for use in
// orchestrated scoring.
func (r BytecodeReport) SuspiciousOpcodes() []string {
	var out []string
	if r.Patterns.Delegatecall {
		out = append(out, "delegatecall")
	}
	if r.Patterns.Selfdestruct {
		out = append(out, "selfdestruct")
	}
	if r.Patterns.Create2 {
		out = append(out, "create2")
	}
	if r.Patterns.ExtcodeAccess {
		out = append(out, "extcode_access")
	}
	return out
}

package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Input records — the only shapes the analysis engine accepts.
// Validation and address normalization happen here, at the ingestion
// boundary; detectors downstream assume well-formed records.
// ---------------------------------------------------------------------------

var (
	ErrInvalidAddress = errors.New("invalid hex address")
	ErrMissingField   = errors.New("missing required field")
)

// Timestamp decodes either an RFC3339 string or an integer epoch-seconds
// value. Ingestion feeds are inconsistent about which they send.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		return nil
	}
	if s[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339, str)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", str, err)
		}
		t.Time = parsed
		return nil
	}
	var epoch float64
	if err := json.Unmarshal(data, &epoch); err != nil {
		return fmt.Errorf("parse timestamp %s: %w", s, err)
	}
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * 1e9)
	t.Time = time.Unix(sec, nsec).UTC()
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339))
}

// Transfer is a single on-chain transfer of one token. Immutable once
// created; identity is (tx_hash, token_id, log_index).
type Transfer struct {
	TxHash      string           `json:"tx_hash"`
	From        string           `json:"from"`
	To          string           `json:"to"`
	TokenID     string           `json:"token_id"`
	Timestamp   Timestamp        `json:"timestamp"`
	Value       *decimal.Decimal `json:"value,omitempty"`
	GasPrice    *decimal.Decimal `json:"gas_price,omitempty"`
	GasUsed     *uint64          `json:"gas_used,omitempty"`
	BlockNumber *uint64          `json:"block_number,omitempty"`
	LogIndex    *uint            `json:"log_index,omitempty"`
}

// Identity returns the deduplication key for a transfer.
func (t Transfer) Identity() string {
	idx := uint(0)
	if t.LogIndex != nil {
		idx = *t.LogIndex
	}
	return fmt.Sprintf("%s|%s|%d", t.TxHash, t.TokenID, idx)
}

// Validate normalizes addresses in place and rejects malformed records.
func (t *Transfer) Validate() error {
	if t.TxHash == "" {
		return fmt.Errorf("transfer tx_hash: %w", ErrMissingField)
	}
	if t.TokenID == "" {
		return fmt.Errorf("transfer token_id: %w", ErrMissingField)
	}
	var err error
	if t.From, err = NormalizeAddress(t.From); err != nil {
		return fmt.Errorf("transfer from: %w", err)
	}
	if t.To, err = NormalizeAddress(t.To); err != nil {
		return fmt.Errorf("transfer to: %w", err)
	}
	return nil
}

// Trade is a marketplace trade, input to wash-trading detection only.
type Trade struct {
	From            string          `json:"from"`
	To              string          `json:"to"`
	TokenID         string          `json:"token_id"`
	ValueETH        decimal.Decimal `json:"value_eth"`
	TransactionHash string          `json:"transaction_hash"`
	Timestamp       Timestamp       `json:"timestamp"`
}

func (t *Trade) Validate() error {
	if t.TransactionHash == "" {
		return fmt.Errorf("trade transaction_hash: %w", ErrMissingField)
	}
	if t.ValueETH.IsNegative() {
		return fmt.Errorf("trade value_eth negative: %s", t.ValueETH)
	}
	var err error
	if t.From, err = NormalizeAddress(t.From); err != nil {
		return fmt.Errorf("trade from: %w", err)
	}
	if t.To, err = NormalizeAddress(t.To); err != nil {
		return fmt.Errorf("trade to: %w", err)
	}
	return nil
}

// Mint is a token mint event, input to mint-anomaly detection only.
type Mint struct {
	Minter           string          `json:"minter"`
	TokenID          string          `json:"token_id"`
	TransactionHash  string          `json:"transaction_hash"`
	Timestamp        Timestamp       `json:"timestamp"`
	GasPrice         decimal.Decimal `json:"gas_price"`
	BlockNumber      *uint64         `json:"block_number,omitempty"`
	TransactionIndex *uint           `json:"transaction_index,omitempty"`
}

func (m *Mint) Validate() error {
	if m.TransactionHash == "" {
		return fmt.Errorf("mint transaction_hash: %w", ErrMissingField)
	}
	if m.GasPrice.IsNegative() {
		return fmt.Errorf("mint gas_price negative: %s", m.GasPrice)
	}
	var err error
	if m.Minter, err = NormalizeAddress(m.Minter); err != nil {
		return fmt.Errorf("mint minter: %w", err)
	}
	return nil
}

// NormalizeAddress validates a hex address and returns its canonical
// lower-case 0x-prefixed form used for all equality and map lookups.
func NormalizeAddress(addr string) (string, error) {
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

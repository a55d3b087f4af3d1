package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_UnmarshalBothFormats(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-03-01T12:30:00Z"`), &ts))
	assert.Equal(t, time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), ts.Time)

	require.NoError(t, json.Unmarshal([]byte(`1709296200`), &ts))
	assert.Equal(t, time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), ts.Time)

	// Fractional epoch seconds carry through.
	require.NoError(t, json.Unmarshal([]byte(`1709296200.5`), &ts))
	assert.Equal(t, int64(500000000), int64(ts.Time.Nanosecond()))

	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestTimestamp_MarshalRFC3339(t *testing.T) {
	ts := Timestamp{Time: time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)}
	data, err := json.Marshal(ts)
	require.NoError(t, err)
	assert.Equal(t, `"2024-03-01T12:30:00Z"`, string(data))
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("0x6B175474E89094C44DA98B954EEDEAC495271D0F")
	require.NoError(t, err)
	assert.Equal(t, "0x6b175474e89094c44da98b954eedeac495271d0f", got)

	// Unprefixed hex is accepted and canonicalized.
	got, err = NormalizeAddress("6b175474e89094c44da98b954eedeac495271d0f")
	require.NoError(t, err)
	assert.Equal(t, "0x6b175474e89094c44da98b954eedeac495271d0f", got)

	_, err = NormalizeAddress("0x123")
	assert.ErrorIs(t, err, ErrInvalidAddress)
	_, err = NormalizeAddress("")
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestTransfer_Identity(t *testing.T) {
	tr := Transfer{TxHash: "0xaa", TokenID: "7"}
	assert.Equal(t, "0xaa|7|0", tr.Identity())

	idx := uint(3)
	tr.LogIndex = &idx
	assert.Equal(t, "0xaa|7|3", tr.Identity())
}

func TestTransfer_ValidateNormalizes(t *testing.T) {
	tr := Transfer{
		TxHash:  "0xaa",
		TokenID: "7",
		From:    "0x6B175474E89094C44DA98B954EEDEAC495271D0F",
		To:      "0x7A250D5630B4CF539739DF2C5DACB4C659F2488D",
	}
	require.NoError(t, tr.Validate())
	assert.Equal(t, "0x6b175474e89094c44da98b954eedeac495271d0f", tr.From)
	assert.Equal(t, "0x7a250d5630b4cf539739df2c5dacb4c659f2488d", tr.To)

	bad := Transfer{TokenID: "7", From: tr.From, To: tr.To}
	assert.ErrorIs(t, bad.Validate(), ErrMissingField)
}

func TestTrade_Validate(t *testing.T) {
	tr := Trade{
		From:            "0x6B175474E89094C44DA98B954EEDEAC495271D0F",
		To:              "0x7A250D5630B4CF539739DF2C5DACB4C659F2488D",
		TokenID:         "7",
		ValueETH:        decimal.NewFromFloat(1.5),
		TransactionHash: "0xcc",
	}
	require.NoError(t, tr.Validate())
	assert.Equal(t, "0x6b175474e89094c44da98b954eedeac495271d0f", tr.From)

	tr.ValueETH = decimal.NewFromInt(-1)
	assert.Error(t, tr.Validate())

	bad := Trade{From: tr.From, To: tr.To}
	assert.ErrorIs(t, bad.Validate(), ErrMissingField)
}

func TestMint_Validate(t *testing.T) {
	m := Mint{
		Minter:          "0x6B175474E89094C44DA98B954EEDEAC495271D0F",
		TokenID:         "1",
		TransactionHash: "0xbb",
	}
	require.NoError(t, m.Validate())
	assert.Equal(t, "0x6b175474e89094c44da98b954eedeac495271d0f", m.Minter)

	bad := Mint{Minter: m.Minter}
	assert.ErrorIs(t, bad.Validate(), ErrMissingField)
}

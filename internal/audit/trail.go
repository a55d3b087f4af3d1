package audit

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Entry event types.
const (
	EventContractAnalysis = "contract_analysis"
	EventWalletAnalysis   = "wallet_analysis"
	EventProvenance       = "provenance"
	EventWashTrading      = "wash_trading"
	EventMintAnomalies    = "mint_anomalies"
	EventClustering       = "clustering"
)

// Entry represents a single audit trail entry. Every assessment the
// engine produces gets recorded, creating a replayable log of what was
// scored, when, and with what outcome.
type Entry struct {
	TraceID   string    `json:"trace_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"ts"`
	Subject   string    `json:"subject,omitempty"` // address or contract|token key
	Score     float64   `json:"score"`
	Payload   string    `json:"payload"` // JSON of the full report
}

// Trail records every assessment. It maintains an in-memory buffer
// (capped at maxBuf) for querying and optionally appends each entry as
// a JSON line to a sink the caller owns.
type Trail struct {
	mu      sync.Mutex
	sink    io.Writer
	entries []Entry
	maxBuf  int
}

// NewTrail creates a new audit trail.
// maxBuf controls the maximum number of entries kept in the in-memory
// buffer; once full, the oldest entries are discarded (FIFO). A maxBuf
// of 0 means no buffering (entries are only written to the sink).
// sink may be nil to keep the trail purely in memory.
func NewTrail(sink io.Writer, maxBuf int) *Trail {
	if maxBuf < 0 {
		maxBuf = 0
	}
	return &Trail{
		sink:    sink,
		entries: make([]Entry, 0, maxBuf),
		maxBuf:  maxBuf,
	}
}

// Record logs one assessment and returns its trace ID.
func (t *Trail) Record(eventType, subject string, score float64, report any) string {
	entry := Entry{
		TraceID:   uuid.NewString(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Subject:   subject,
		Score:     score,
		Payload:   mustMarshal(report),
	}
	t.record(entry)
	return entry.TraceID
}

// Query returns all entries matching a given trace ID.
// Searches the in-memory buffer only.
func (t *Trail) Query(traceID string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Entry
	for _, e := range t.entries {
		if e.TraceID == traceID {
			out = append(out, e)
		}
	}
	return out
}

// ByType returns buffered entries of one event type.
func (t *Trail) ByType(eventType string) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Entry
	for _, e := range t.entries {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Entries returns a copy of all entries in the in-memory buffer.
func (t *Trail) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries in the in-memory buffer.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// record adds an entry to the buffer and appends it to the sink.
func (t *Trail) record(entry Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.maxBuf > 0 {
		if len(t.entries) >= t.maxBuf {
			drop := len(t.entries) - t.maxBuf + 1
			t.entries = t.entries[drop:]
		}
		t.entries = append(t.entries, entry)
	}

	if t.sink == nil {
		return
	}
	line, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Msg("audit entry marshal failed")
		return
	}
	if _, err := t.sink.Write(append(line, '\n')); err != nil {
		log.Error().Err(err).Msg("audit sink write failed")
	}
}

// mustMarshal marshals v to JSON, returning "{}" on error.
func mustMarshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Package audit records a tamper-evident log of downloaded files. Each
// event carries the hash of the previous event of the same job.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	EventVersion = "1.0"
	EventType    = "file_downloaded"
)

// Event describes one file written to the destination.
type Event struct {
	Version   string    `json:"version"`
	EventType string    `json:"event_type"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`

	RunID    string `json:"run_id"`
	Job      string `json:"job"`
	Target   string `json:"target"`
	Kind     string `json:"kind"`
	Release  string `json:"release,omitempty"`
	URL      string `json:"url"`
	Key      string `json:"key"`
	URI      string `json:"uri"`
	Checksum string `json:"checksum"`
	Bytes    int64  `json:"bytes"`

	Chain ChainInfo `json:"chain"`
}

// ChainInfo provides hash chaining for tamper-evident audit log.
type ChainInfo struct {
	PrevEventHash string `json:"prev_event_hash"`
	EventHash     string `json:"event_hash"`
}

// ChainKey returns the chain this event belongs to.
func (e *Event) ChainKey() string {
	return e.Job
}

// ComputeEventHash computes the SHA256 hash of an event.
// The hash is computed over the canonical JSON representation,
// excluding the event_hash field itself.
func ComputeEventHash(evt *Event) string {
	evtCopy := *evt
	evtCopy.Chain.EventHash = ""

	// struct fields marshal in declaration order, so this is stable
	canonical, err := json.Marshal(evtCopy)
	if err != nil {
		return ""
	}

	hash := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// SetChainHashes links the event to prevHash and computes its own hash.
func (e *Event) SetChainHashes(prevHash string) {
	e.Chain.PrevEventHash = prevHash
	e.Chain.EventHash = ComputeEventHash(e)
}

// Verify reports whether the stored event hash matches the content.
func (e *Event) Verify() bool {
	return e.Chain.EventHash != "" && e.Chain.EventHash == ComputeEventHash(e)
}

// NewEventID creates a unique event ID.
func NewEventID() string {
	return "audit_evt_" + uuid.New().String()
}

// stamp fills the envelope fields of an event about to be chained.
func stamp(evt *Event) {
	evt.Version = EventVersion
	evt.EventType = EventType
	evt.EventID = NewEventID()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
}

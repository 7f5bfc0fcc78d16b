package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// AttendanceEvent is one row of the per-entry audit ledger. Events form a
// hash chain: each hash covers the previous hash, so a mutated or removed
// row breaks verification of everything after it.
type AttendanceEvent struct {
	EntryID   string          `json:"entry_id"`
	EntrySeq  int             `json:"entry_seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

const (
	EventClockedIn  = "attendance.clocked_in"
	EventClockedOut = "attendance.clocked_out"
)

func ComputeAttendanceEventHash(prevHash, entryID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, entryID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyEventChain checks that events (in entry_seq order) form an intact
// hash chain for their entry.
func VerifyEventChain(events []AttendanceEvent) bool {
	prev := ""
	for i, event := range events {
		if event.EntrySeq != i+1 {
			return false
		}
		if event.PrevHash != prev {
			return false
		}
		want := ComputeAttendanceEventHash(prev, event.EntryID, event.Type, event.Payload, event.CreatedAt, event.EntrySeq)
		if event.Hash != want {
			return false
		}
		prev = event.Hash
	}
	return true
}

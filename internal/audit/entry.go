// Package audit keeps a hash-chained history of sign-in exchanges in SQLite.
// Entries record who was attempted and how it ended; credential material is
// never part of an entry.
package audit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"time"
)

// FirstSequence is the sequence number of the first entry.
// Sequences are 1-indexed so seq=0 means "no previous entry".
const FirstSequence uint64 = 1

// Attempt describes one exchange attempt.
type Attempt struct {
	SessionID string `json:"session_id"`
	// Account is the username and display name, never a secret.
	Account  string        `json:"account"`
	Name     string        `json:"name,omitempty"`
	UserID   string        `json:"user_id,omitempty"`
	Outcome  string        `json:"outcome"`
	Duration time.Duration `json:"duration_ns"`
}

// Succeeded reports whether the attempt produced a credential.
func (a Attempt) Succeeded() bool {
	return a.Outcome == "success"
}

// Entry is a single hash-chained history record.
type Entry struct {
	Sequence  uint64    `json:"seq"`
	Timestamp time.Time `json:"ts"`
	Attempt   Attempt   `json:"attempt"`
	PrevHash  string    `json:"prev"`
	Hash      string    `json:"hash"`
}

// NewEntry creates an entry with its hash computed.
func NewEntry(seq uint64, prevHash string, a Attempt) *Entry {
	return newEntryWithTimestamp(seq, prevHash, a, time.Now().UTC())
}

func newEntryWithTimestamp(seq uint64, prevHash string, a Attempt, ts time.Time) *Entry {
	e := &Entry{
		Sequence:  seq,
		Timestamp: ts,
		Attempt:   a,
		PrevHash:  prevHash,
	}
	e.Hash = e.computeHash()
	return e
}

// computeHash calculates SHA-256(seq || ts || prev || attempt JSON).
// Attempt is a struct, so its JSON field order is fixed.
func (e *Entry) computeHash() string {
	h := sha256.New()

	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], e.Sequence)
	h.Write(seqBytes[:])
	h.Write([]byte(e.Timestamp.Format(time.RFC3339Nano)))
	h.Write([]byte(e.PrevHash))

	data, _ := json.Marshal(e.Attempt) // plain strings and an int64 always marshal
	h.Write(data)

	return hex.EncodeToString(h.Sum(nil))
}

// Verify checks the entry's own hash.
func (e *Entry) Verify() bool {
	return e.Hash == e.computeHash()
}

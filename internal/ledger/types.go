package ledger

import (
	"errors"
	"time"
)

// Status of an access record on the ledger.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// EventType tags an append-only transaction on a record.
type EventType string

const (
	EventCreation EventType = "creation"
	EventUpdate   EventType = "update"
	EventAccess   EventType = "access"
	EventRevoke   EventType = "revoke"
	EventActivate EventType = "activate"
)

// Event is one entry in a record's transaction history. Seq is the
// 1-based append position within the record.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Hash      string    `json:"hash"`
	Seq       uint64    `json:"seq"`
}

// Record is the per-(patient, doctor) access record. Hash is the content
// hash of the patient document as of the last creation or update; access
// events never touch it.
type Record struct {
	PatientID    string    `json:"patientId"`
	DoctorID     string    `json:"doctorId"`
	Hash         string    `json:"hash"`
	Status       Status    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	Transactions []Event   `json:"transactions"`
}

// Active reports whether the record currently grants access.
func (r Record) Active() bool { return r.Status == StatusActive }

// AccessEvents returns only the access entries of the history.
func (r Record) AccessEvents() []Event {
	out := make([]Event, 0, len(r.Transactions))
	for _, ev := range r.Transactions {
		if ev.Type == EventAccess {
			out = append(out, ev)
		}
	}
	return out
}

// Typed errors shared by every ledger transport.
var (
	// ErrNotFound: the (patient, doctor) record does not exist.
	ErrNotFound = errors.New("ledger: record not found")
	// ErrConflict: creation attempted for an existing record.
	ErrConflict = errors.New("ledger: record already exists")
	// ErrTransient: infrastructure failure; the call may be retried.
	ErrTransient = errors.New("ledger: transient failure")
)

// Package consent owns the per-(patient, doctor) access workflow: a
// doctor requests access, the patient decides, the patient may later
// revoke. Relationship state lives in the store; granted access is
// mirrored onto the ledger.
package consent

import (
	"errors"
	"fmt"
	"time"
)

// Status of a consent relationship.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusRevoked  Status = "revoked"
)

// Decision is a patient's answer to a pending request.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// Relationship is the stored consent state for one (patient, doctor) pair.
type Relationship struct {
	PatientID string    `json:"patient_id"`
	DoctorID  string    `json:"doctor_id"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrNotFound: no relationship exists for the pair.
	ErrNotFound = errors.New("consent: relationship not found")
	// ErrInvalidTransition: the requested operation does not apply to the
	// relationship's current status.
	ErrInvalidTransition = errors.New("consent: invalid transition")
	// ErrLedgerUnsynced: the relationship was updated but the ledger call
	// failed; the stored status is authoritative and reconciliation is
	// an operational concern.
	ErrLedgerUnsynced = errors.New("consent: ledger out of sync")
)

// SyncError wraps the ledger failure behind ErrLedgerUnsynced so
// callers can match the class and still reach the cause.
type SyncError struct {
	Op    string
	Cause error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrLedgerUnsynced, e.Op, e.Cause)
}

func (e *SyncError) Unwrap() error { return e.Cause }

func (e *SyncError) Is(target error) bool { return target == ErrLedgerUnsynced }

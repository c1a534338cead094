package ledger

import (
	"context"
	"time"
)

// Service defines the access-record operations the rest of the system
// consumes. Implementations append exactly one transaction event per
// mutation and serialize mutations per (patientID, doctorID) key.
type Service interface {
	// CreateRecord writes a fresh active record plus its doctor-index
	// entry. ErrConflict if the record already exists.
	CreateRecord(ctx context.Context, patientID, doctorID, hash string, ts time.Time) (Record, error)
	// UpdateRecord replaces the record-level hash and appends an update
	// event carrying the new hash.
	UpdateRecord(ctx context.Context, patientID, doctorID, hash string, ts time.Time) (Record, error)
	// RecordAccess appends an access event. Record-level hash, status and
	// timestamp stay untouched.
	RecordAccess(ctx context.Context, patientID, doctorID, hash string, ts time.Time) (Record, error)
	// RevokeAccess marks the record revoked and appends a revoke event.
	RevokeAccess(ctx context.Context, patientID, doctorID, hash string, ts time.Time) (Record, error)
	// ActivateRecord re-activates a revoked record and appends an
	// activate event with the supplied document hash.
	ActivateRecord(ctx context.Context, patientID, doctorID, hash string, ts time.Time) (Record, error)

	GetRecord(ctx context.Context, patientID, doctorID string) (Record, error)
	GetAllByPatient(ctx context.Context, patientID string) ([]Record, error)
	GetAllByDoctor(ctx context.Context, doctorID string) ([]Record, error)
	// Exists reports record presence without surfacing ErrNotFound.
	Exists(ctx context.Context, patientID, doctorID string) (bool, error)
}

// Submitter carries a write through the ledger's consensus path.
type Submitter interface {
	Submit(ctx context.Context, fn string, args ...string) ([]byte, error)
}

// Evaluator runs a read against local ledger state.
type Evaluator interface {
	Evaluate(ctx context.Context, fn string, args ...string) ([]byte, error)
}

// Chaincode function names. These match the deployed contract, so the
// in-process state machine and the Fabric transport stay interchangeable.
const (
	FnCreateRecord   = "createEHRRecord"
	FnUpdateRecord   = "updateEHRRecord"
	FnRecordAccess   = "recordAccess"
	FnRevokeAccess   = "revokeAccess"
	FnActivateRecord = "activateAccess"
	FnGetRecord      = "getEHRRecord"
	FnGetAllByPatient = "getAllEHRRecordByPatient"
	FnGetAllByDoctor  = "getAllEHRRecordByDoctor"
)

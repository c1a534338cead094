package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"medledger.org/internal/audit"
	"medledger.org/internal/ledger"
	"medledger.org/internal/obs"
)

// DocumentSource supplies the current content hash of a patient's
// document for stamping ledger records. Implementations return the
// zero-document hash when no document exists.
type DocumentSource interface {
	CurrentHash(ctx context.Context, patientID string) (string, error)
}

// Engine drives the consent workflow. Ordering on grant and revoke is
// store first, ledger second: a failed ledger call leaves the stored
// status in place and surfaces ErrLedgerUnsynced, never a rollback.
type Engine struct {
	store  Store
	ledger ledger.Service
	docs   DocumentSource
	now    func() time.Time
}

func NewEngine(store Store, lg ledger.Service, docs DocumentSource) *Engine {
	return &Engine{store: store, ledger: lg, docs: docs, now: time.Now}
}

// RequestAccess opens (or re-opens) a pending request. Requests against
// a Pending or Accepted relationship are idempotent no-ops.
func (e *Engine) RequestAccess(ctx context.Context, doctorID, patientID string) (Relationship, error) {
	if doctorID == "" || patientID == "" {
		return Relationship{}, fmt.Errorf("%w: empty doctor or patient id", ErrInvalidTransition)
	}
	now := e.now().UTC()

	rel, err := e.store.Find(ctx, patientID, doctorID)
	switch {
	case errors.Is(err, ErrNotFound):
		rel = Relationship{
			PatientID: patientID,
			DoctorID:  doctorID,
			Status:    StatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
	case err != nil:
		return Relationship{}, err
	case rel.Status == StatusPending || rel.Status == StatusAccepted:
		// Repeat request changes nothing; record it for the audit trail.
		_ = audit.LogEvent(ctx, "consent.request_repeated", map[string]any{
			"patient_id": patientID,
			"doctor_id":  doctorID,
			"status":     string(rel.Status),
		})
		return rel, nil
	default:
		// Rejected or revoked relationships re-open as pending.
		rel.Status = StatusPending
		rel.UpdatedAt = now
	}

	if err := e.store.Save(ctx, rel); err != nil {
		return Relationship{}, err
	}
	obs.ObserveConsentTransition(string(StatusPending))
	return rel, nil
}

// Decide resolves a pending request. Accept mirrors the grant onto the
// ledger: an existence pre-check picks createRecord for first-time
// grants and activateRecord for re-grants after revocation.
func (e *Engine) Decide(ctx context.Context, patientID, doctorID string, decision Decision) (Relationship, error) {
	rel, err := e.store.Find(ctx, patientID, doctorID)
	if err != nil {
		return Relationship{}, err
	}
	if rel.Status != StatusPending {
		return Relationship{}, fmt.Errorf("%w: decide on %s relationship", ErrInvalidTransition, rel.Status)
	}

	now := e.now().UTC()
	switch decision {
	case DecisionReject:
		rel.Status = StatusRejected
		rel.UpdatedAt = now
		if err := e.store.Save(ctx, rel); err != nil {
			return Relationship{}, err
		}
		obs.ObserveConsentTransition(string(StatusRejected))
		return rel, nil
	case DecisionAccept:
		rel.Status = StatusAccepted
		rel.UpdatedAt = now
		if err := e.store.Save(ctx, rel); err != nil {
			return Relationship{}, err
		}
		obs.ObserveConsentTransition(string(StatusAccepted))
		if err := e.grantOnLedger(ctx, patientID, doctorID, now); err != nil {
			return rel, err
		}
		return rel, nil
	default:
		return Relationship{}, fmt.Errorf("%w: unknown decision %q", ErrInvalidTransition, decision)
	}
}

func (e *Engine) grantOnLedger(ctx context.Context, patientID, doctorID string, now time.Time) error {
	hash, err := e.docs.CurrentHash(ctx, patientID)
	if err != nil {
		// The grant stands even when the hash is unavailable; stamp the
		// record with an empty hash and leave a trace.
		audit.LogFailure(ctx, "consent.hash_unavailable", err, map[string]any{
			"patient_id": patientID,
			"doctor_id":  doctorID,
		})
		hash = ""
	}

	exists, err := e.ledger.Exists(ctx, patientID, doctorID)
	if err != nil {
		return &SyncError{Op: "exists", Cause: err}
	}
	if !exists {
		if _, err := e.ledger.CreateRecord(ctx, patientID, doctorID, hash, now); err != nil {
			return &SyncError{Op: "create", Cause: err}
		}
		return nil
	}
	if _, err := e.ledger.ActivateRecord(ctx, patientID, doctorID, hash, now); err != nil {
		// The record vanished between the check and the call; fall back
		// to creating it.
		if errors.Is(err, ledger.ErrNotFound) {
			if _, cerr := e.ledger.CreateRecord(ctx, patientID, doctorID, hash, now); cerr != nil {
				return &SyncError{Op: "create", Cause: cerr}
			}
			return nil
		}
		return &SyncError{Op: "activate", Cause: err}
	}
	return nil
}

// Revoke withdraws accepted consent and mirrors it onto the ledger.
func (e *Engine) Revoke(ctx context.Context, patientID, doctorID string) (Relationship, error) {
	rel, err := e.store.Find(ctx, patientID, doctorID)
	if err != nil {
		return Relationship{}, err
	}
	if rel.Status != StatusAccepted {
		return Relationship{}, fmt.Errorf("%w: revoke on %s relationship", ErrInvalidTransition, rel.Status)
	}

	now := e.now().UTC()
	rel.Status = StatusRevoked
	rel.UpdatedAt = now
	if err := e.store.Save(ctx, rel); err != nil {
		return Relationship{}, err
	}
	obs.ObserveConsentTransition(string(StatusRevoked))

	hash, err := e.docs.CurrentHash(ctx, patientID)
	if err != nil {
		audit.LogFailure(ctx, "consent.hash_unavailable", err, map[string]any{
			"patient_id": patientID,
			"doctor_id":  doctorID,
		})
		hash = ""
	}
	if _, err := e.ledger.RevokeAccess(ctx, patientID, doctorID, hash, now); err != nil {
		return rel, &SyncError{Op: "revoke", Cause: err}
	}
	return rel, nil
}

// IsAccepted reports whether the doctor currently holds accepted
// consent. Absence is not an error.
func (e *Engine) IsAccepted(ctx context.Context, patientID, doctorID string) (bool, error) {
	rel, err := e.store.Find(ctx, patientID, doctorID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rel.Status == StatusAccepted, nil
}

// PendingForPatient lists open requests awaiting the patient's decision.
func (e *Engine) PendingForPatient(ctx context.Context, patientID string) ([]Relationship, error) {
	return e.store.ListByPatient(ctx, patientID, StatusPending)
}

// RelationshipsForDoctor lists every relationship the doctor appears in.
func (e *Engine) RelationshipsForDoctor(ctx context.Context, doctorID string) ([]Relationship, error) {
	return e.store.ListByDoctor(ctx, doctorID)
}

package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"medledger.org/internal/audit"
	"medledger.org/internal/auth"
	"medledger.org/internal/consent"
	"medledger.org/internal/ledger"
	"medledger.org/internal/stream"
)

type accessRequest struct {
	PatientID string `json:"patient_id"`
}

type decisionRequest struct {
	DoctorID string `json:"doctor_id"`
	Decision string `json:"decision"`
}

type revocationRequest struct {
	DoctorID string `json:"doctor_id"`
}

// DoctorRequestAccess opens (or re-opens) a pending consent request for
// the authenticated doctor.
func (a *API) DoctorRequestAccess(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requireRole(w, r, auth.RoleDoctor)
	if !ok {
		return
	}
	var req accessRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	patientID := strings.TrimSpace(req.PatientID)
	if patientID == "" {
		writeError(w, r, http.StatusBadRequest, "patient_id is required")
		return
	}

	rel, err := a.consent.RequestAccess(r.Context(), p.SubjectID, patientID)
	if err != nil {
		a.writeConsentError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "consent.requested", map[string]any{
		"patient_id": patientID,
		"doctor_id":  p.SubjectID,
	})
	a.publish(stream.Event{Kind: stream.KindConsentRequested, PatientID: patientID, DoctorID: p.SubjectID})
	writeJSON(w, http.StatusOK, rel)
}

// DoctorPatients lists every consent relationship the doctor appears in,
// whatever its status.
func (a *API) DoctorPatients(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requireRole(w, r, auth.RoleDoctor)
	if !ok {
		return
	}
	rels, err := a.consent.RelationshipsForDoctor(r.Context(), p.SubjectID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to list relationships")
		return
	}
	if rels == nil {
		rels = []consent.Relationship{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"relationships": rels})
}

// PatientPendingRequests lists requests awaiting the patient's decision.
func (a *API) PatientPendingRequests(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requireRole(w, r, auth.RolePatient)
	if !ok {
		return
	}
	rels, err := a.consent.PendingForPatient(r.Context(), p.SubjectID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "failed to list requests")
		return
	}
	if rels == nil {
		rels = []consent.Relationship{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": rels})
}

// PatientDecide resolves a pending request with accept or reject.
func (a *API) PatientDecide(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requireRole(w, r, auth.RolePatient)
	if !ok {
		return
	}
	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	doctorID := strings.TrimSpace(req.DoctorID)
	if doctorID == "" {
		writeError(w, r, http.StatusBadRequest, "doctor_id is required")
		return
	}
	decision := consent.Decision(strings.ToLower(strings.TrimSpace(req.Decision)))
	if decision != consent.DecisionAccept && decision != consent.DecisionReject {
		writeError(w, r, http.StatusBadRequest, "decision must be accept or reject")
		return
	}

	rel, err := a.consent.Decide(r.Context(), p.SubjectID, doctorID, decision)
	if err != nil {
		a.writeConsentError(w, r, err)
		return
	}

	event := "consent.rejected"
	kind := stream.KindConsentRejected
	if rel.Status == consent.StatusAccepted {
		event = "consent.accepted"
		kind = stream.KindConsentAccepted
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"patient_id": p.SubjectID,
		"doctor_id":  doctorID,
	})
	a.publish(stream.Event{Kind: kind, PatientID: p.SubjectID, DoctorID: doctorID})
	writeJSON(w, http.StatusOK, rel)
}

// PatientRevoke withdraws previously accepted consent.
func (a *API) PatientRevoke(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requireRole(w, r, auth.RolePatient)
	if !ok {
		return
	}
	var req revocationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	doctorID := strings.TrimSpace(req.DoctorID)
	if doctorID == "" {
		writeError(w, r, http.StatusBadRequest, "doctor_id is required")
		return
	}

	rel, err := a.consent.Revoke(r.Context(), p.SubjectID, doctorID)
	if err != nil {
		a.writeConsentError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "consent.revoked", map[string]any{
		"patient_id": p.SubjectID,
		"doctor_id":  doctorID,
	})
	a.publish(stream.Event{Kind: stream.KindConsentRevoked, PatientID: p.SubjectID, DoctorID: doctorID})
	writeJSON(w, http.StatusOK, rel)
}

// writeConsentError maps workflow errors onto HTTP statuses. A ledger
// sync failure is a gateway error: the stored decision stands and the
// ledger catches up out of band.
func (a *API) writeConsentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, consent.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "relationship not found")
	case errors.Is(err, consent.ErrInvalidTransition):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, consent.ErrLedgerUnsynced):
		audit.LogFailure(r.Context(), "consent.ledger_unsynced", err, nil)
		writeError(w, r, http.StatusBadGateway, "decision recorded but ledger update failed")
	case errors.Is(err, ledger.ErrTransient):
		writeError(w, r, http.StatusServiceUnavailable, "ledger temporarily unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) publish(evt stream.Event) {
	if a.stream != nil {
		a.stream.Publish(evt)
	}
}

package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"medledger.org/internal/audit"
	"medledger.org/internal/auth"
	"medledger.org/internal/ehr"
	"medledger.org/internal/ledger"
	"medledger.org/internal/stream"
)

type appendEntryRequest struct {
	Note string `json:"note"`
}

// PatientCreateEHR stores the patient's initial document.
func (a *API) PatientCreateEHR(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requireRole(w, r, auth.RolePatient)
	if !ok {
		return
	}
	var doc ehr.Document
	if err := decodeJSON(r, &doc); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	created, err := a.records.CreateDocument(r.Context(), p.SubjectID, doc)
	if err != nil {
		if errors.Is(err, ehr.ErrConflict) {
			writeError(w, r, http.StatusConflict, "document already exists")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "failed to store document")
		return
	}

	_ = audit.LogEvent(r.Context(), "ehr.created", map[string]any{
		"patient_id": p.SubjectID,
	})
	writeJSON(w, http.StatusCreated, created)
}

// PatientGetEHR returns the caller's own document. Self-reads are not
// third-party disclosures, so no ledger access event is appended.
func (a *API) PatientGetEHR(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requireRole(w, r, auth.RolePatient)
	if !ok {
		return
	}
	doc, err := a.records.GetOwn(r.Context(), p.SubjectID)
	if err != nil {
		a.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// PatientAppendEntry adds one clinical note to the caller's document.
func (a *API) PatientAppendEntry(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requireRole(w, r, auth.RolePatient)
	if !ok {
		return
	}
	var req appendEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Note) == "" {
		writeError(w, r, http.StatusBadRequest, "note is required")
		return
	}

	entry, err := a.records.AppendEntry(r.Context(), p.SubjectID, p.SubjectID, req.Note)
	if err != nil {
		a.writeRecordError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// DoctorGetEHR returns a patient's document to a consented doctor. A
// denied read and a missing document look identical from the outside.
func (a *API) DoctorGetEHR(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requireRole(w, r, auth.RoleDoctor)
	if !ok {
		return
	}
	patientID := r.PathValue("patientID")

	doc, err := a.records.GetForDoctor(r.Context(), p.SubjectID, patientID)
	if err != nil {
		a.writeRecordError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "ehr.accessed", map[string]any{
		"patient_id": patientID,
		"doctor_id":  p.SubjectID,
	})
	a.publish(stream.Event{Kind: stream.KindEHRAccessed, PatientID: patientID, DoctorID: p.SubjectID})
	writeJSON(w, http.StatusOK, doc)
}

// DoctorUpdateEHR replaces the document's clinical fields. The ledger
// update must land before anything is persisted.
func (a *API) DoctorUpdateEHR(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requireRole(w, r, auth.RoleDoctor)
	if !ok {
		return
	}
	patientID := r.PathValue("patientID")

	var doc ehr.Document
	if err := decodeJSON(r, &doc); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := a.records.UpdateForDoctor(r.Context(), p.SubjectID, patientID, doc)
	if err != nil {
		a.writeRecordError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "ehr.updated", map[string]any{
		"patient_id": patientID,
		"doctor_id":  p.SubjectID,
	})
	a.publish(stream.Event{Kind: stream.KindEHRUpdated, PatientID: patientID, DoctorID: p.SubjectID})
	writeJSON(w, http.StatusOK, updated)
}

// writeRecordError maps document-layer errors. Denied access is
// deliberately indistinguishable from a missing document.
func (a *API) writeRecordError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ehr.ErrDenied), errors.Is(err, ehr.ErrNotFound), errors.Is(err, ledger.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, ehr.ErrConflict):
		writeError(w, r, http.StatusConflict, "document already exists")
	case errors.Is(err, ledger.ErrTransient):
		writeError(w, r, http.StatusServiceUnavailable, "ledger temporarily unavailable")
	case errors.Is(err, ehr.ErrIntegrity):
		audit.LogFailure(r.Context(), "ehr.integrity_failure", err, nil)
		writeError(w, r, http.StatusInternalServerError, "document integrity failure")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

package httpapi

import (
	"errors"
	"net/http"

	"medledger.org/internal/audit"
	"medledger.org/internal/auth"
	"medledger.org/internal/ledger"
)

// PatientHistory returns the patient's ledger history: every
// relationship when no doctor is named, one relationship otherwise.
// access_only=1 narrows the view to access events.
func (a *API) PatientHistory(w http.ResponseWriter, r *http.Request) {
	p, ok := a.requireRole(w, r, auth.RolePatient)
	if !ok {
		return
	}
	accessOnly := r.URL.Query().Get("access_only") == "1"
	doctorID := r.PathValue("doctorID")

	if doctorID != "" {
		events, err := a.history.History(r.Context(), p.SubjectID, doctorID, accessOnly)
		if err != nil {
			a.writeHistoryError(w, r, err)
			return
		}
		if events == nil {
			events = []ledger.Event{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"doctor_id": doctorID,
			"events":    events,
		})
		return
	}

	events, err := a.history.FullHistory(r.Context(), p.SubjectID)
	if err != nil {
		a.writeHistoryError(w, r, err)
		return
	}
	if accessOnly {
		filtered := events[:0]
		for _, ev := range events {
			if ev.Type == ledger.EventAccess {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	if events == nil {
		events = []audit.TaggedEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (a *API) writeHistoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case errors.Is(err, ledger.ErrTransient):
		writeError(w, r, http.StatusServiceUnavailable, "ledger temporarily unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

package httpapi

import (
	"errors"
	"net/http"
	"time"

	"medledger.org/internal/audit"
	"medledger.org/internal/auth"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken    string    `json:"access_token"`
	TokenType      string    `json:"token_type"`
	ExpiresAt      time.Time `json:"expires_at"`
	SubjectID      string    `json:"subject_id"`
	OrganizationID string    `json:"organization_id"`
	Role           string    `json:"role"`
}

// Token exchanges credentials for a signed bearer token.
func (a *API) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"subject_id": res.SubjectID,
		"role":       res.Role,
	})
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:    res.Token,
		TokenType:      "Bearer",
		ExpiresAt:      res.ExpiresAt,
		SubjectID:      res.SubjectID,
		OrganizationID: res.OrganizationID,
		Role:           res.Role,
	})
}

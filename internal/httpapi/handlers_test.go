package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"medledger.org/internal/audit"
	"medledger.org/internal/auth"
	"medledger.org/internal/consent"
	"medledger.org/internal/ehr"
	"medledger.org/internal/ledger"
	"medledger.org/internal/ledger/contract"
	"medledger.org/internal/stream"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	auth.SetSecret("test-secret-0123456789abcdef")
	t.Cleanup(auth.ResetSecretForTests)

	ctx := context.Background()
	users := auth.NewMemoryUsers()
	seed := func(id, org, email, role string) {
		t.Helper()
		err := users.Seed(ctx, auth.User{
			ID:             id,
			OrganizationID: org,
			Email:          email,
			Role:           role,
		}, "password")
		if err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	seed("D100", "ORG-CITYMED", "d.ramirez@citymed.example", auth.RoleDoctor)
	seed("P100", "ORG-PATIENTS", "m.ortiz@patients.example", auth.RolePatient)

	ctrct := contract.New(contract.NewMemoryState())
	ctrl := ledger.NewController(ctrct, ctrct)
	cstore := consent.NewMemory()
	estore := ehr.NewMemory()
	engine := consent.NewEngine(cstore, ctrl, ehr.NewDocumentHash(estore, nil))
	records := ehr.NewService(estore, nil, engine, ctrl)

	api := New(Options{
		Version: "test",
		Env:     "test",
		Auth:    auth.NewService(users, time.Minute),
		Consent: engine,
		Records: records,
		History: audit.NewAggregator(ctrl),
		Stream:  stream.New(),
	})
	return api.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func login(t *testing.T, h http.Handler, email string) string {
	t.Helper()
	rr := doJSON(t, h, http.MethodPost, "/v1/auth/token", "", map[string]string{
		"email":    email,
		"password": "password",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", email, rr.Code, rr.Body.String())
	}
	var res tokenResponse
	decodeBody(t, rr, &res)
	if res.AccessToken == "" {
		t.Fatalf("login %s: empty token", email)
	}
	return res.AccessToken
}

func TestHealthAndInfoArePublic(t *testing.T) {
	h := newTestHandler(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		rr := doJSON(t, h, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("GET %s: status %d", path, rr.Code)
		}
	}
}

func TestTokenRejectsBadCredentials(t *testing.T) {
	h := newTestHandler(t)

	rr := doJSON(t, h, http.MethodPost, "/v1/auth/token", "", map[string]string{
		"email":    "d.ramirez@citymed.example",
		"password": "wrong",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	rr = doJSON(t, h, http.MethodPost, "/v1/auth/token", "", map[string]string{
		"email":    "nobody@citymed.example",
		"password": "password",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unknown account: status = %d, want 401", rr.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newTestHandler(t)

	rr := doJSON(t, h, http.MethodGet, "/v1/patients/ehr", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", rr.Code)
	}
	rr = doJSON(t, h, http.MethodGet, "/v1/patients/ehr", "not-a-token", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status = %d, want 401", rr.Code)
	}
}

func TestRoleMismatchIsForbidden(t *testing.T) {
	h := newTestHandler(t)
	patientTok := login(t, h, "m.ortiz@patients.example")

	rr := doJSON(t, h, http.MethodPost, "/v1/doctors/requests", patientTok, map[string]string{
		"patient_id": "P100",
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("patient on doctor route: status = %d, want 403", rr.Code)
	}
}

func TestConsentAndRecordFlow(t *testing.T) {
	h := newTestHandler(t)
	doctorTok := login(t, h, "d.ramirez@citymed.example")
	patientTok := login(t, h, "m.ortiz@patients.example")

	// Without consent the doctor cannot tell whether the document exists.
	rr := doJSON(t, h, http.MethodGet, "/v1/doctors/patients/P100/ehr", doctorTok, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("read without consent: status = %d, want 404", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/patients/ehr", patientTok, ehr.Document{
		Diagnosis: "hypertension",
		Allergies: "penicillin",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create document: status = %d body %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/doctors/requests", doctorTok, map[string]string{
		"patient_id": "P100",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("request access: status = %d body %s", rr.Code, rr.Body.String())
	}
	var rel consent.Relationship
	decodeBody(t, rr, &rel)
	if rel.Status != consent.StatusPending {
		t.Fatalf("request status = %s, want pending", rel.Status)
	}

	rr = doJSON(t, h, http.MethodGet, "/v1/patients/requests", patientTok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("pending list: status = %d", rr.Code)
	}
	var pending struct {
		Requests []consent.Relationship `json:"requests"`
	}
	decodeBody(t, rr, &pending)
	if len(pending.Requests) != 1 || pending.Requests[0].DoctorID != "D100" {
		t.Fatalf("pending = %+v, want one request from D100", pending.Requests)
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/patients/decisions", patientTok, map[string]string{
		"doctor_id": "D100",
		"decision":  "accept",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("accept: status = %d body %s", rr.Code, rr.Body.String())
	}
	decodeBody(t, rr, &rel)
	if rel.Status != consent.StatusAccepted {
		t.Fatalf("accept status = %s, want accepted", rel.Status)
	}

	// Consented read succeeds and lands an access event on the ledger.
	rr = doJSON(t, h, http.MethodGet, "/v1/doctors/patients/P100/ehr", doctorTok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("consented read: status = %d body %s", rr.Code, rr.Body.String())
	}
	var doc ehr.Document
	decodeBody(t, rr, &doc)
	if doc.Diagnosis != "hypertension" {
		t.Fatalf("diagnosis = %q", doc.Diagnosis)
	}

	rr = doJSON(t, h, http.MethodPut, "/v1/doctors/patients/P100/ehr", doctorTok, ehr.Document{
		Diagnosis:   "hypertension, controlled",
		Treatment:   "lisinopril 10mg",
		Medications: "lisinopril",
		Allergies:   "penicillin",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: status = %d body %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(t, h, http.MethodGet, "/v1/patients/history", patientTok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("history: status = %d body %s", rr.Code, rr.Body.String())
	}
	var hist struct {
		Events []audit.TaggedEvent `json:"events"`
	}
	decodeBody(t, rr, &hist)
	if len(hist.Events) != 3 {
		t.Fatalf("history has %d events, want 3 (creation, access, update)", len(hist.Events))
	}
	if hist.Events[0].Type != ledger.EventUpdate || hist.Events[2].Type != ledger.EventCreation {
		t.Fatalf("history order = %v %v %v, want newest first",
			hist.Events[0].Type, hist.Events[1].Type, hist.Events[2].Type)
	}

	rr = doJSON(t, h, http.MethodGet, "/v1/patients/history/D100?access_only=1", patientTok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("access history: status = %d", rr.Code)
	}
	var accessHist struct {
		Events []ledger.Event `json:"events"`
	}
	decodeBody(t, rr, &accessHist)
	if len(accessHist.Events) != 1 || accessHist.Events[0].Type != ledger.EventAccess {
		t.Fatalf("access history = %+v, want a single access event", accessHist.Events)
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/patients/revocations", patientTok, map[string]string{
		"doctor_id": "D100",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("revoke: status = %d body %s", rr.Code, rr.Body.String())
	}
	decodeBody(t, rr, &rel)
	if rel.Status != consent.StatusRevoked {
		t.Fatalf("revoke status = %s, want revoked", rel.Status)
	}

	rr = doJSON(t, h, http.MethodGet, "/v1/doctors/patients/P100/ehr", doctorTok, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("read after revoke: status = %d, want 404", rr.Code)
	}

	// A fresh request after revocation re-opens the workflow.
	rr = doJSON(t, h, http.MethodPost, "/v1/doctors/requests", doctorTok, map[string]string{
		"patient_id": "P100",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("re-request: status = %d", rr.Code)
	}
	decodeBody(t, rr, &rel)
	if rel.Status != consent.StatusPending {
		t.Fatalf("re-request status = %s, want pending", rel.Status)
	}
}

func TestPatientOwnRecordAndEntries(t *testing.T) {
	h := newTestHandler(t)
	patientTok := login(t, h, "m.ortiz@patients.example")

	rr := doJSON(t, h, http.MethodGet, "/v1/patients/ehr", patientTok, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("get before create: status = %d, want 404", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/patients/ehr", patientTok, ehr.Document{Diagnosis: "asthma"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: status = %d", rr.Code)
	}
	rr = doJSON(t, h, http.MethodPost, "/v1/patients/ehr", patientTok, ehr.Document{Diagnosis: "asthma"})
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate create: status = %d, want 409", rr.Code)
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/patients/ehr/entries", patientTok, map[string]string{
		"note": "Inhaler used twice this week.",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("append entry: status = %d body %s", rr.Code, rr.Body.String())
	}
	var entry ehr.Entry
	decodeBody(t, rr, &entry)
	if entry.ID == "" || entry.Hash == "" {
		t.Fatalf("entry missing id or hash: %+v", entry)
	}

	rr = doJSON(t, h, http.MethodPost, "/v1/patients/ehr/entries", patientTok, map[string]string{
		"note": "   ",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("blank note: status = %d, want 400", rr.Code)
	}

	rr = doJSON(t, h, http.MethodGet, "/v1/patients/ehr", patientTok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get own: status = %d", rr.Code)
	}
	var doc ehr.Document
	decodeBody(t, rr, &doc)
	if len(doc.Entries) != 1 || doc.Entries[0].Note != "Inhaler used twice this week." {
		t.Fatalf("entries = %+v", doc.Entries)
	}
}

func TestDecisionValidation(t *testing.T) {
	h := newTestHandler(t)
	patientTok := login(t, h, "m.ortiz@patients.example")

	rr := doJSON(t, h, http.MethodPost, "/v1/patients/decisions", patientTok, map[string]string{
		"doctor_id": "D100",
		"decision":  "maybe",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad decision: status = %d, want 400", rr.Code)
	}

	// No pending request exists for this pair.
	rr = doJSON(t, h, http.MethodPost, "/v1/patients/decisions", patientTok, map[string]string{
		"doctor_id": "D100",
		"decision":  "accept",
	})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("decide without request: status = %d, want 404", rr.Code)
	}
}

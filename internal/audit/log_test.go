package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"medledger.org/internal/auth"
	"medledger.org/internal/obs"
)

func TestLogEvent(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutput(&buf)
	defer restore()

	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-123")
	ctx = auth.ContextWithPrincipal(ctx, auth.Principal{
		SubjectID:      "D42",
		OrganizationID: "ORG-PROVIDER",
		Roles:          []string{auth.RoleDoctor},
	})

	if err := LogEvent(ctx, "consent.requested", map[string]any{"patient_id": "P1"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	line := buf.String()
	if line == "" {
		t.Fatal("expected log output")
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" {
		t.Fatalf("unexpected type: %v", entry["type"])
	}
	if entry["event"] != "consent.requested" {
		t.Fatalf("unexpected event: %v", entry["event"])
	}
	if entry["request_id"] != "req-123" {
		t.Fatalf("unexpected request id: %v", entry["request_id"])
	}
	if entry["subject_id"] != "D42" {
		t.Fatalf("unexpected subject id: %v", entry["subject_id"])
	}
	if entry["organization_id"] != "ORG-PROVIDER" {
		t.Fatalf("unexpected organization id: %v", entry["organization_id"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["patient_id"] != "P1" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for empty event name")
	}
}

func TestLogFailureEmitsWarning(t *testing.T) {
	var buf bytes.Buffer
	restore := obs.SetOutput(&buf)
	defer restore()

	LogFailure(context.Background(), "ehr.access_log_failed", errors.New("peer down"), map[string]any{"patient_id": "P1"})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["level"] != "warn" {
		t.Fatalf("expected warn level, got %v", entry["level"])
	}
	if entry["error"] != "peer down" {
		t.Fatalf("expected cause in entry, got %v", entry["error"])
	}
}

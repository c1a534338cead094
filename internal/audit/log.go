package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"medledger.org/internal/auth"
	"medledger.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// requestIDFromContext extracts the audit request id from context if present.
func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and caller context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	ev := obs.Logger().Info().
		Str("type", "audit").
		Str("event", event).
		Str("ts", time.Now().UTC().Format(time.RFC3339Nano))
	if rid := requestIDFromContext(ctx); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		ev = ev.Str("subject_id", p.SubjectID)
		if p.OrganizationID != "" {
			ev = ev.Str("organization_id", p.OrganizationID)
		}
	}
	if fields == nil {
		fields = map[string]any{}
	}
	ev.Fields(map[string]any{"fields": fields}).Send()
	return nil
}

// LogFailure records a degraded side-call: the operation continued, but
// an auxiliary step (such as a ledger access append) failed.
func LogFailure(ctx context.Context, event string, cause error, fields map[string]any) {
	event = strings.TrimSpace(event)
	if event == "" {
		return
	}
	ev := obs.Logger().Warn().
		Str("type", "audit").
		Str("event", event).
		Str("ts", time.Now().UTC().Format(time.RFC3339Nano))
	if cause != nil {
		ev = ev.Str("error", cause.Error())
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		ev = ev.Str("request_id", rid)
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		ev = ev.Str("subject_id", p.SubjectID)
	}
	if fields == nil {
		fields = map[string]any{}
	}
	ev.Fields(map[string]any{"fields": fields}).Send()
}

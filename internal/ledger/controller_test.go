package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"medledger.org/internal/ledger"
	"medledger.org/internal/ledger/contract"
)

func newController(t *testing.T) *ledger.Controller {
	t.Helper()
	c := contract.New(contract.NewMemoryState())
	return ledger.NewController(c, c)
}

func TestControllerRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctrl := newController(t)
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	created, err := ctrl.CreateRecord(ctx, "P1", "D1", "h1", ts)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.PatientID != "P1" || created.DoctorID != "D1" || !created.Active() {
		t.Fatalf("unexpected record %+v", created)
	}

	got, err := ctrl.GetRecord(ctx, "P1", "D1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Timestamp.Equal(ts) {
		t.Fatalf("timestamp not preserved: %v != %v", got.Timestamp, ts)
	}
}

func TestControllerExists(t *testing.T) {
	ctx := context.Background()
	ctrl := newController(t)

	ok, err := ctrl.Exists(ctx, "P1", "D1")
	if err != nil || ok {
		t.Fatalf("expected (false, nil), got (%v, %v)", ok, err)
	}

	if _, err := ctrl.CreateRecord(ctx, "P1", "D1", "h1", time.Now().UTC()); err != nil {
		t.Fatal(err)
	}
	ok, err = ctrl.Exists(ctx, "P1", "D1")
	if err != nil || !ok {
		t.Fatalf("expected (true, nil), got (%v, %v)", ok, err)
	}
}

func TestControllerTypedErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	ctrl := newController(t)
	ts := time.Now().UTC()

	if _, err := ctrl.UpdateRecord(ctx, "P1", "D1", "h", ts); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := ctrl.CreateRecord(ctx, "P1", "D1", "h", ts); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.CreateRecord(ctx, "P1", "D1", "h", ts); !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestControllerRejectsEmptyIDs(t *testing.T) {
	ctrl := newController(t)
	if _, err := ctrl.CreateRecord(context.Background(), "", "D1", "h", time.Now()); err == nil {
		t.Fatal("expected error for empty patient id")
	}
}

func TestAccessEventsFilter(t *testing.T) {
	ctx := context.Background()
	ctrl := newController(t)
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if _, err := ctrl.CreateRecord(ctx, "P1", "D1", "h1", base); err != nil {
		t.Fatal(err)
	}
	if _, err := ctrl.RecordAccess(ctx, "P1", "D1", "h1", base.Add(time.Minute)); err != nil {
		t.Fatal(err)
	}
	rec, err := ctrl.RecordAccess(ctx, "P1", "D1", "h1", base.Add(2*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if got := rec.AccessEvents(); len(got) != 2 {
		t.Fatalf("expected 2 access events, got %d", len(got))
	}
}

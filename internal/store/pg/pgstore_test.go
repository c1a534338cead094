package pg

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"medledger.org/internal/auth"
	"medledger.org/internal/consent"
	"medledger.org/internal/ehr"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestFindRelationshipNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`select patient_id, doctor_id, status`).
		WithArgs("P1", "D1").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Find(context.Background(), "P1", "D1")
	if !errors.Is(err, consent.ErrNotFound) {
		t.Fatalf("expected consent.ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFindRelationship(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`select patient_id, doctor_id, status`).
		WithArgs("P1", "D1").
		WillReturnRows(sqlmock.NewRows([]string{"patient_id", "doctor_id", "status", "created_at", "updated_at"}).
			AddRow("P1", "D1", "accepted", now, now))

	rel, err := store.Find(context.Background(), "P1", "D1")
	if err != nil {
		t.Fatal(err)
	}
	if rel.Status != consent.StatusAccepted {
		t.Fatalf("unexpected status %s", rel.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSaveRelationshipUpserts(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectExec(`insert into consent_relationships`).
		WithArgs("P1", "D1", "pending", now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Save(context.Background(), consent.Relationship{
		PatientID: "P1",
		DoctorID:  "D1",
		Status:    consent.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestListByPatientWithStatusFilter(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`and status in ($2)`)).
		WithArgs("P1", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"patient_id", "doctor_id", "status", "created_at", "updated_at"}).
			AddRow("P1", "D1", "pending", now, now))

	rels, err := store.ListByPatient(context.Background(), "P1", consent.StatusPending)
	if err != nil {
		t.Fatal(err)
	}
	if len(rels) != 1 || rels[0].DoctorID != "D1" {
		t.Fatalf("unexpected result %+v", rels)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDocumentNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`select payload from ehr_documents`).
		WithArgs("P1").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Load(context.Background(), "P1")
	if !errors.Is(err, ehr.ErrNotFound) {
		t.Fatalf("expected ehr.ErrNotFound, got %v", err)
	}
}

func TestUpdateDocumentReadModifyWrite(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`select payload from ehr_documents where patient_id=\$1 for update`).
		WithArgs("P1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow("old-payload"))
	mock.ExpectExec(`update ehr_documents set payload=\$2`).
		WithArgs("P1", "new-payload").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Update(context.Background(), "P1", func(current string) (string, error) {
		if current != "old-payload" {
			t.Fatalf("unexpected current payload %q", current)
		}
		return "new-payload", nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpdateDocumentRollsBackOnCallbackError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`select payload from ehr_documents where patient_id=\$1 for update`).
		WithArgs("P1").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow("old"))
	mock.ExpectRollback()

	wantErr := errors.New("decode failed")
	err := store.Update(context.Background(), "P1", func(string) (string, error) {
		return "", wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestFindUserByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`select id, org_id, email, password_hash`).
		WithArgs("doc@clinic.example").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "org_id", "email", "password_hash", "role", "display_name", "status", "created_at", "updated_at",
		}).AddRow("D1", "ORG-PROVIDER", "doc@clinic.example", "$2a$10$hash", "doctor", "Dr. Demo", "active", now, now))

	u, err := store.FindUserByEmail(context.Background(), "doc@clinic.example")
	if err != nil {
		t.Fatal(err)
	}
	if u.ID != "D1" || u.Role != auth.RoleDoctor {
		t.Fatalf("unexpected user %+v", u)
	}
}

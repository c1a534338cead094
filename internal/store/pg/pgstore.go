package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"medledger.org/internal/auth"
	"medledger.org/internal/consent"
	"medledger.org/internal/ehr"
)

// Store backs the consent relationships, encrypted EHR payloads and
// user accounts with Postgres. The ledger itself never lives here; it
// stays behind the contract or Fabric transport.
type Store struct {
	db *sql.DB
}

var (
	_ consent.Store  = (*Store)(nil)
	_ ehr.Store      = (*Store)(nil)
	_ auth.UserStore = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; tests use it with sqlmock.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// --- consent.Store ---

func (s *Store) Find(ctx context.Context, patientID, doctorID string) (consent.Relationship, error) {
	var rel consent.Relationship
	var status string
	err := s.db.QueryRowContext(ctx, `
		select patient_id, doctor_id, status, created_at, updated_at
		from consent_relationships
		where patient_id=$1 and doctor_id=$2
	`, patientID, doctorID).Scan(&rel.PatientID, &rel.DoctorID, &status, &rel.CreatedAt, &rel.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return consent.Relationship{}, consent.ErrNotFound
	}
	if err != nil {
		return consent.Relationship{}, err
	}
	rel.Status = consent.Status(status)
	return rel, nil
}

func (s *Store) Save(ctx context.Context, rel consent.Relationship) error {
	_, err := s.db.ExecContext(ctx, `
		insert into consent_relationships(patient_id, doctor_id, status, created_at, updated_at)
		values ($1,$2,$3,$4,$5)
		on conflict (patient_id, doctor_id) do update
		set status = excluded.status, updated_at = excluded.updated_at
	`, rel.PatientID, rel.DoctorID, string(rel.Status), rel.CreatedAt, rel.UpdatedAt)
	return err
}

func (s *Store) ListByPatient(ctx context.Context, patientID string, statuses ...consent.Status) ([]consent.Relationship, error) {
	query := `
		select patient_id, doctor_id, status, created_at, updated_at
		from consent_relationships
		where patient_id=$1`
	args := []any{patientID}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = fmt.Sprintf("$%d", i+2)
			args = append(args, string(st))
		}
		query += " and status in (" + strings.Join(placeholders, ",") + ")"
	}
	query += " order by doctor_id"
	return s.queryRelationships(ctx, query, args...)
}

func (s *Store) ListByDoctor(ctx context.Context, doctorID string) ([]consent.Relationship, error) {
	return s.queryRelationships(ctx, `
		select patient_id, doctor_id, status, created_at, updated_at
		from consent_relationships
		where doctor_id=$1
		order by patient_id
	`, doctorID)
}

func (s *Store) queryRelationships(ctx context.Context, query string, args ...any) ([]consent.Relationship, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []consent.Relationship
	for rows.Next() {
		var rel consent.Relationship
		var status string
		if err := rows.Scan(&rel.PatientID, &rel.DoctorID, &status, &rel.CreatedAt, &rel.UpdatedAt); err != nil {
			return nil, err
		}
		rel.Status = consent.Status(status)
		out = append(out, rel)
	}
	return out, rows.Err()
}

// --- ehr.Store ---

func (s *Store) Load(ctx context.Context, patientID string) (string, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		select payload from ehr_documents where patient_id=$1
	`, patientID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ehr.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return payload, nil
}

func (s *Store) Create(ctx context.Context, patientID, payload string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into ehr_documents(patient_id, payload, created_at, updated_at)
		values ($1,$2,now(),now())
	`, patientID, payload)
	if isUniqueViolation(err) {
		return ehr.ErrConflict
	}
	return err
}

// Update runs fn inside a transaction with the row locked, giving
// per-patient serialization across instances.
func (s *Store) Update(ctx context.Context, patientID string, fn func(current string) (string, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `
		select payload from ehr_documents where patient_id=$1 for update
	`, patientID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ehr.ErrNotFound
	}
	if err != nil {
		return err
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		update ehr_documents set payload=$2, updated_at=now() where patient_id=$1
	`, patientID, next); err != nil {
		return err
	}
	return tx.Commit()
}

// --- auth.UserStore ---

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if u == nil || u.ID == "" || u.Email == "" {
		return auth.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, org_id, email, password_hash, role, display_name, status, created_at, updated_at)
		values ($1,$2,lower($3),$4,$5,$6,$7,now(),now())
	`, u.ID, u.OrganizationID, u.Email, u.PasswordHash, u.Role, u.DisplayName, u.Status)
	if isUniqueViolation(err) {
		return auth.ErrAlreadyExists
	}
	return err
}

func (s *Store) FindUser(ctx context.Context, id string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, org_id, email, password_hash, role, display_name, status, created_at, updated_at
		from users where id=$1
	`, id))
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		select id, org_id, email, password_hash, role, display_name, status, created_at, updated_at
		from users where email=lower($1)
	`, email))
}

func (s *Store) scanUser(row *sql.Row) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.OrganizationID, &u.Email, &u.PasswordHash,
		&u.Role, &u.DisplayName, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

package auth

import "time"

// Organization kinds. Providers employ doctors; patient orgs group the
// patients they enroll.
const (
	OrgKindProvider = "provider"
	OrgKindPatient  = "patient"
)

// Roles carried in token claims.
const (
	RoleDoctor  = "doctor"
	RolePatient = "patient"
	RoleAdmin   = "admin"
)

// Organization is a participating institution.
type Organization struct {
	ID        string
	Name      string
	Kind      string
	CreatedAt time.Time
}

// User is a doctor or patient account. ID is the subject id used across
// the consent and ledger layers.
type User struct {
	ID             string
	OrganizationID string
	Email          string
	PasswordHash   string
	Role           string
	DisplayName    string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

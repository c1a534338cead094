package ehr

import "errors"

var (
	// ErrNotFound: no document stored for the patient.
	ErrNotFound = errors.New("ehr: document not found")
	// ErrConflict: create attempted for a patient that already has one.
	ErrConflict = errors.New("ehr: document already exists")
	// ErrDenied: the caller holds no accepted consent. Handlers present
	// this identically to ErrNotFound so existence never leaks.
	ErrDenied = errors.New("ehr: access denied")
	// ErrIntegrity: stored ciphertext failed authentication or decoding.
	ErrIntegrity = errors.New("ehr: integrity check failed")
)

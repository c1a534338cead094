package ehr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"medledger.org/internal/audit"
	"medledger.org/internal/ids"
	"medledger.org/internal/ledger"
)

// AccessChecker answers whether a doctor currently holds accepted
// consent for a patient. Implemented by the consent engine.
type AccessChecker interface {
	IsAccepted(ctx context.Context, patientID, doctorID string) (bool, error)
}

// DocumentHash computes the current content hash of a patient's stored
// document without any consent gating. The consent engine uses it when
// stamping ledger records.
type DocumentHash struct {
	store  Store
	cipher *Cipher
}

func NewDocumentHash(store Store, cipher *Cipher) *DocumentHash {
	return &DocumentHash{store: store, cipher: cipher}
}

// CurrentHash returns the stored document's hash, or the zero-document
// hash when the patient has no document yet.
func (h *DocumentHash) CurrentHash(ctx context.Context, patientID string) (string, error) {
	payload, err := h.store.Load(ctx, patientID)
	if errors.Is(err, ErrNotFound) {
		return ZeroDocumentHash(), nil
	}
	if err != nil {
		return "", err
	}
	doc, err := decodeDocument(payload, h.cipher)
	if err != nil {
		return "", err
	}
	return ComputeHash(doc)
}

// Service is the consent-gated document API. Reads by doctors append a
// best-effort access event to the ledger; updates by doctors must land
// on the ledger before the document is persisted.
type Service struct {
	store   Store
	cipher  *Cipher
	consent AccessChecker
	ledger  ledger.Service
	hasher  *DocumentHash
	now     func() time.Time
}

func NewService(store Store, cipher *Cipher, consent AccessChecker, ledgerSvc ledger.Service) *Service {
	return &Service{
		store:   store,
		cipher:  cipher,
		consent: consent,
		ledger:  ledgerSvc,
		hasher:  NewDocumentHash(store, cipher),
		now:     time.Now,
	}
}

// CreateDocument stores the patient's initial document. ErrConflict if
// one already exists; ReplaceDocument is the explicit path for rewrites.
func (s *Service) CreateDocument(ctx context.Context, patientID string, doc Document) (Document, error) {
	if doc.Entries == nil {
		doc.Entries = []Entry{}
	}
	payload, err := encodeDocument(doc, s.cipher)
	if err != nil {
		return Document{}, err
	}
	if err := s.store.Create(ctx, patientID, payload); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// GetOwn returns the patient's own document. No consent gate and no
// ledger access event; self-reads are not third-party disclosures.
func (s *Service) GetOwn(ctx context.Context, patientID string) (Document, error) {
	payload, err := s.store.Load(ctx, patientID)
	if err != nil {
		return Document{}, err
	}
	return decodeDocument(payload, s.cipher)
}

// AppendEntry adds one clinical note to the patient's document. The
// entry carries its own content hash; appends for the same patient are
// serialized by the store.
func (s *Service) AppendEntry(ctx context.Context, patientID, authorID, note string) (Entry, error) {
	entry := Entry{
		ID:        ids.New(),
		AuthorID:  authorID,
		Note:      note,
		CreatedAt: s.now().UTC(),
	}
	hash, err := ComputeHash(entry)
	if err != nil {
		return Entry{}, err
	}
	entry.Hash = hash

	err = s.store.Update(ctx, patientID, func(current string) (string, error) {
		doc, err := decodeDocument(current, s.cipher)
		if err != nil {
			return "", err
		}
		doc.Entries = append(doc.Entries, entry)
		return encodeDocument(doc, s.cipher)
	})
	if err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// GetForDoctor returns the document when the doctor holds accepted
// consent, then appends an access event to the ledger. A failed access
// append is logged as a warning; the read still succeeds.
func (s *Service) GetForDoctor(ctx context.Context, doctorID, patientID string) (Document, error) {
	ok, err := s.consent.IsAccepted(ctx, patientID, doctorID)
	if err != nil {
		return Document{}, err
	}
	if !ok {
		return Document{}, fmt.Errorf("%w: patient %s", ErrDenied, patientID)
	}

	payload, err := s.store.Load(ctx, patientID)
	if err != nil {
		return Document{}, err
	}
	doc, err := decodeDocument(payload, s.cipher)
	if err != nil {
		return Document{}, err
	}
	hash, err := ComputeHash(doc)
	if err != nil {
		return Document{}, err
	}

	if _, err := s.ledger.RecordAccess(ctx, patientID, doctorID, hash, s.now().UTC()); err != nil {
		audit.LogFailure(ctx, "ehr.access_log_failed", err, map[string]any{
			"patient_id": patientID,
			"doctor_id":  doctorID,
		})
	}
	return doc, nil
}

// UpdateForDoctor replaces the document's clinical fields. The ledger
// update must commit before the document is persisted; existing entries
// are preserved.
func (s *Service) UpdateForDoctor(ctx context.Context, doctorID, patientID string, doc Document) (Document, error) {
	ok, err := s.consent.IsAccepted(ctx, patientID, doctorID)
	if err != nil {
		return Document{}, err
	}
	if !ok {
		return Document{}, fmt.Errorf("%w: patient %s", ErrDenied, patientID)
	}

	payload, err := s.store.Load(ctx, patientID)
	if err != nil {
		return Document{}, err
	}
	current, err := decodeDocument(payload, s.cipher)
	if err != nil {
		return Document{}, err
	}
	doc.Entries = current.Entries
	if doc.Entries == nil {
		doc.Entries = []Entry{}
	}

	hash, err := ComputeHash(doc)
	if err != nil {
		return Document{}, err
	}
	if _, err := s.ledger.UpdateRecord(ctx, patientID, doctorID, hash, s.now().UTC()); err != nil {
		return Document{}, err
	}

	err = s.store.Update(ctx, patientID, func(string) (string, error) {
		return encodeDocument(doc, s.cipher)
	})
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

// CurrentHash exposes the hasher for callers holding the service.
func (s *Service) CurrentHash(ctx context.Context, patientID string) (string, error) {
	return s.hasher.CurrentHash(ctx, patientID)
}

func encodeDocument(doc Document, cipher *Cipher) (string, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	if cipher == nil {
		return string(raw), nil
	}
	return cipher.Encrypt(raw)
}

func decodeDocument(payload string, cipher *Cipher) (Document, error) {
	raw := []byte(payload)
	if cipher != nil {
		var err error
		raw, err = cipher.Decrypt(payload)
		if err != nil {
			return Document{}, err
		}
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	return doc, nil
}

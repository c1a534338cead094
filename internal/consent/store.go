package consent

import (
	"context"
	"sort"
	"sync"
)

// Store persists consent relationships. Save upserts by (patient, doctor).
type Store interface {
	Find(ctx context.Context, patientID, doctorID string) (Relationship, error)
	Save(ctx context.Context, rel Relationship) error
	ListByPatient(ctx context.Context, patientID string, statuses ...Status) ([]Relationship, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]Relationship, error)
}

// Memory is the in-process Store used by tests and DSN-less deployments.
type Memory struct {
	mu   sync.RWMutex
	rels map[string]Relationship
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{rels: make(map[string]Relationship)}
}

func key(patientID, doctorID string) string { return patientID + ":" + doctorID }

func (m *Memory) Find(ctx context.Context, patientID, doctorID string) (Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rel, ok := m.rels[key(patientID, doctorID)]
	if !ok {
		return Relationship{}, ErrNotFound
	}
	return rel, nil
}

func (m *Memory) Save(ctx context.Context, rel Relationship) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rels[key(rel.PatientID, rel.DoctorID)] = rel
	return nil
}

func (m *Memory) ListByPatient(ctx context.Context, patientID string, statuses ...Status) ([]Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Relationship
	for _, rel := range m.rels {
		if rel.PatientID != patientID {
			continue
		}
		if matchesStatus(rel.Status, statuses) {
			out = append(out, rel)
		}
	}
	sortRelationships(out)
	return out, nil
}

func (m *Memory) ListByDoctor(ctx context.Context, doctorID string) ([]Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Relationship
	for _, rel := range m.rels {
		if rel.DoctorID == doctorID {
			out = append(out, rel)
		}
	}
	sortRelationships(out)
	return out, nil
}

func matchesStatus(s Status, statuses []Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}

func sortRelationships(rels []Relationship) {
	sort.Slice(rels, func(i, j int) bool {
		if rels[i].PatientID != rels[j].PatientID {
			return rels[i].PatientID < rels[j].PatientID
		}
		return rels[i].DoctorID < rels[j].DoctorID
	})
}

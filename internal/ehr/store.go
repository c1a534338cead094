package ehr

import (
	"context"
	"sync"
)

// Store persists opaque document payloads keyed by patient id. Update
// serializes read-modify-write per patient; different patients proceed
// in parallel.
type Store interface {
	Load(ctx context.Context, patientID string) (string, error)
	Create(ctx context.Context, patientID, payload string) error
	Update(ctx context.Context, patientID string, fn func(current string) (string, error)) error
}

// Memory is the in-process Store used by tests and DSN-less deployments.
type Memory struct {
	mu    sync.Mutex
	docs  map[string]string
	locks map[string]*sync.Mutex
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		docs:  make(map[string]string),
		locks: make(map[string]*sync.Mutex),
	}
}

func (m *Memory) lockFor(patientID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[patientID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[patientID] = l
	}
	return l
}

func (m *Memory) Load(ctx context.Context, patientID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.docs[patientID]
	if !ok {
		return "", ErrNotFound
	}
	return payload, nil
}

func (m *Memory) Create(ctx context.Context, patientID, payload string) error {
	l := m.lockFor(patientID)
	l.Lock()
	defer l.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[patientID]; ok {
		return ErrConflict
	}
	m.docs[patientID] = payload
	return nil
}

func (m *Memory) Update(ctx context.Context, patientID string, fn func(current string) (string, error)) error {
	l := m.lockFor(patientID)
	l.Lock()
	defer l.Unlock()

	m.mu.Lock()
	current, ok := m.docs[patientID]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	next, err := fn(current)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.docs[patientID] = next
	m.mu.Unlock()
	return nil
}

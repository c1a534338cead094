package stream

import (
	"context"
	"sync"
	"time"
)

// Activity event kinds pushed to stream subscribers.
const (
	KindConsentRequested = "consent.requested"
	KindConsentAccepted  = "consent.accepted"
	KindConsentRejected  = "consent.rejected"
	KindConsentRevoked   = "consent.revoked"
	KindEHRAccessed      = "ehr.accessed"
	KindEHRUpdated       = "ehr.updated"
)

// Event is one piece of ledger-visible activity for live dashboards.
// Patient ids are included because subscribers are already
// authenticated operators; document content never flows here.
type Event struct {
	Kind      string    `json:"kind"`
	PatientID string    `json:"patient_id"`
	DoctorID  string    `json:"doctor_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs activity events to all active subscribers (SSE clients).
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will
// receive events. The channel is closed when the context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}

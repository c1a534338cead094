package audit

import (
	"context"
	"sort"

	"medledger.org/internal/ledger"
)

// TaggedEvent is a ledger event annotated with the relationship's
// doctor, for patient-wide views that span relationships.
type TaggedEvent struct {
	DoctorID string `json:"doctorId"`
	ledger.Event
}

// Aggregator builds history views on top of the ledger.
type Aggregator struct {
	ledger ledger.Service
}

func NewAggregator(lg ledger.Service) *Aggregator {
	return &Aggregator{ledger: lg}
}

// History returns one relationship's events in ledger (append) order,
// optionally filtered to access events.
func (a *Aggregator) History(ctx context.Context, patientID, doctorID string, accessOnly bool) ([]ledger.Event, error) {
	rec, err := a.ledger.GetRecord(ctx, patientID, doctorID)
	if err != nil {
		return nil, err
	}
	if accessOnly {
		return rec.AccessEvents(), nil
	}
	events := make([]ledger.Event, len(rec.Transactions))
	copy(events, rec.Transactions)
	return events, nil
}

// FullHistory flattens every relationship's events for the patient,
// tags them with the doctor id and sorts newest first. Ties on the
// timestamp break deterministically: within one relationship by append
// order descending, across relationships by doctor id ascending.
func (a *Aggregator) FullHistory(ctx context.Context, patientID string) ([]TaggedEvent, error) {
	records, err := a.ledger.GetAllByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	var events []TaggedEvent
	for _, rec := range records {
		for _, ev := range rec.Transactions {
			events = append(events, TaggedEvent{DoctorID: rec.DoctorID, Event: ev})
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		if a.DoctorID == b.DoctorID {
			return a.Seq > b.Seq
		}
		return a.DoctorID < b.DoctorID
	})
	return events, nil
}

// Package contract is the in-process realization of the access-record
// state machine. It speaks the same function names and argument
// conventions as the deployed chaincode, so the controller can run
// against it or against a Fabric gateway without changes.
package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"medledger.org/internal/ledger"
)

const (
	recordPrefix = "EHR:"
	indexPrefix  = "DOCTOR_INDEX:"
)

func recordKey(patientID, doctorID string) string {
	return recordPrefix + patientID + ":" + doctorID
}

func indexKey(doctorID, patientID string) string {
	return indexPrefix + doctorID + ":" + patientID
}

// Contract executes ledger functions against a State store. Mutations on
// the same record key are serialized through a striped lock; different
// keys proceed in parallel.
type Contract struct {
	state State
	locks [64]sync.Mutex
}

var (
	_ ledger.Submitter = (*Contract)(nil)
	_ ledger.Evaluator = (*Contract)(nil)
)

func New(state State) *Contract {
	return &Contract{state: state}
}

func (c *Contract) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &c.locks[h.Sum32()%uint32(len(c.locks))]
}

// Submit runs a mutating function. Args: doctorID, patientID, hash,
// timestamp (RFC3339Nano).
func (c *Contract) Submit(ctx context.Context, fn string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	}
	if len(args) != 4 {
		return nil, fmt.Errorf("contract: %s expects 4 args, got %d", fn, len(args))
	}
	doctorID, patientID, hash := args[0], args[1], args[2]
	ts, err := time.Parse(time.RFC3339Nano, args[3])
	if err != nil {
		return nil, fmt.Errorf("contract: %s: bad timestamp %q: %v", fn, args[3], err)
	}

	key := recordKey(patientID, doctorID)
	mu := c.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	switch fn {
	case ledger.FnCreateRecord:
		return c.create(patientID, doctorID, hash, ts)
	case ledger.FnUpdateRecord:
		return c.mutate(key, func(rec *ledger.Record) {
			rec.Hash = hash
			rec.Timestamp = ts
			appendEvent(rec, ledger.EventUpdate, hash, ts)
		})
	case ledger.FnRecordAccess:
		return c.mutate(key, func(rec *ledger.Record) {
			appendEvent(rec, ledger.EventAccess, hash, ts)
		})
	case ledger.FnRevokeAccess:
		return c.mutate(key, func(rec *ledger.Record) {
			rec.Status = ledger.StatusRevoked
			appendEvent(rec, ledger.EventRevoke, hash, ts)
		})
	case ledger.FnActivateRecord:
		return c.mutate(key, func(rec *ledger.Record) {
			rec.Status = ledger.StatusActive
			rec.Hash = hash
			rec.Timestamp = ts
			appendEvent(rec, ledger.EventActivate, hash, ts)
		})
	default:
		return nil, fmt.Errorf("contract: unknown function %q", fn)
	}
}

// Evaluate runs a read-only function.
func (c *Contract) Evaluate(ctx context.Context, fn string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	}
	switch fn {
	case ledger.FnGetRecord:
		if len(args) != 2 {
			return nil, fmt.Errorf("contract: %s expects 2 args, got %d", fn, len(args))
		}
		return c.get(recordKey(args[0], args[1]))
	case ledger.FnGetAllByPatient:
		if len(args) != 1 {
			return nil, fmt.Errorf("contract: %s expects 1 arg, got %d", fn, len(args))
		}
		return c.listByPatient(args[0])
	case ledger.FnGetAllByDoctor:
		if len(args) != 1 {
			return nil, fmt.Errorf("contract: %s expects 1 arg, got %d", fn, len(args))
		}
		return c.listByDoctor(args[0])
	default:
		return nil, fmt.Errorf("contract: unknown function %q", fn)
	}
}

func (c *Contract) create(patientID, doctorID, hash string, ts time.Time) ([]byte, error) {
	key := recordKey(patientID, doctorID)
	existing, err := c.state.Get(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ledger.ErrConflict, key)
	}

	rec := ledger.Record{
		PatientID: patientID,
		DoctorID:  doctorID,
		Hash:      hash,
		Status:    ledger.StatusActive,
		Timestamp: ts,
	}
	appendEvent(&rec, ledger.EventCreation, hash, ts)

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if err := c.state.Put(key, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	}
	if err := c.state.Put(indexKey(doctorID, patientID), []byte(key)); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	}
	return payload, nil
}

func (c *Contract) mutate(key string, apply func(*ledger.Record)) ([]byte, error) {
	raw, err := c.state.Get(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, key)
	}
	var rec ledger.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("contract: corrupt record at %s: %v", key, err)
	}
	apply(&rec)
	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if err := c.state.Put(key, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	}
	return payload, nil
}

func (c *Contract) get(key string) ([]byte, error) {
	raw, err := c.state.Get(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, key)
	}
	return raw, nil
}

func (c *Contract) listByPatient(patientID string) ([]byte, error) {
	entries, err := c.state.ListPrefix(recordPrefix + patientID + ":")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	}
	out := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		out = append(out, json.RawMessage(e.Value))
	}
	return json.Marshal(out)
}

func (c *Contract) listByDoctor(doctorID string) ([]byte, error) {
	entries, err := c.state.ListPrefix(indexPrefix + doctorID + ":")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	}
	out := make([]json.RawMessage, 0, len(entries))
	for _, e := range entries {
		raw, err := c.state.Get(string(e.Value))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ledger.ErrTransient, err)
		}
		if raw == nil {
			// Dangling index entry; skip rather than fail the whole scan.
			continue
		}
		out = append(out, json.RawMessage(raw))
	}
	return json.Marshal(out)
}

func appendEvent(rec *ledger.Record, typ ledger.EventType, hash string, ts time.Time) {
	rec.Transactions = append(rec.Transactions, ledger.Event{
		Type:      typ,
		Timestamp: ts,
		Hash:      hash,
		Seq:       uint64(len(rec.Transactions)) + 1,
	})
}

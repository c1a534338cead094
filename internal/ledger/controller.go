package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"medledger.org/internal/obs"
)

// Controller implements Service on top of the Submitter/Evaluator ports.
// It owns arg encoding and response decoding; error semantics come from
// the transport, which returns the typed taxonomy.
//
// Mutation args are (doctorID, patientID, hash, timestamp) in RFC3339Nano,
// matching the deployed contract.
type Controller struct {
	sub  Submitter
	eval Evaluator
}

var _ Service = (*Controller)(nil)

func NewController(sub Submitter, eval Evaluator) *Controller {
	return &Controller{sub: sub, eval: eval}
}

func (c *Controller) CreateRecord(ctx context.Context, patientID, doctorID, hash string, ts time.Time) (Record, error) {
	return c.submitRecord(ctx, FnCreateRecord, doctorID, patientID, hash, ts)
}

func (c *Controller) UpdateRecord(ctx context.Context, patientID, doctorID, hash string, ts time.Time) (Record, error) {
	return c.submitRecord(ctx, FnUpdateRecord, doctorID, patientID, hash, ts)
}

func (c *Controller) RecordAccess(ctx context.Context, patientID, doctorID, hash string, ts time.Time) (Record, error) {
	return c.submitRecord(ctx, FnRecordAccess, doctorID, patientID, hash, ts)
}

func (c *Controller) RevokeAccess(ctx context.Context, patientID, doctorID, hash string, ts time.Time) (Record, error) {
	return c.submitRecord(ctx, FnRevokeAccess, doctorID, patientID, hash, ts)
}

func (c *Controller) ActivateRecord(ctx context.Context, patientID, doctorID, hash string, ts time.Time) (Record, error) {
	return c.submitRecord(ctx, FnActivateRecord, doctorID, patientID, hash, ts)
}

func (c *Controller) submitRecord(ctx context.Context, fn, doctorID, patientID, hash string, ts time.Time) (Record, error) {
	if patientID == "" || doctorID == "" {
		return Record{}, fmt.Errorf("%w: empty patient or doctor id", ErrNotFound)
	}
	payload, err := c.sub.Submit(ctx, fn, doctorID, patientID, hash, ts.UTC().Format(time.RFC3339Nano))
	obs.ObserveLedgerOp(fn, err)
	if err != nil {
		return Record{}, err
	}
	return decodeRecord(payload)
}

func (c *Controller) GetRecord(ctx context.Context, patientID, doctorID string) (Record, error) {
	payload, err := c.eval.Evaluate(ctx, FnGetRecord, patientID, doctorID)
	obs.ObserveLedgerOp(FnGetRecord, err)
	if err != nil {
		return Record{}, err
	}
	return decodeRecord(payload)
}

func (c *Controller) GetAllByPatient(ctx context.Context, patientID string) ([]Record, error) {
	payload, err := c.eval.Evaluate(ctx, FnGetAllByPatient, patientID)
	obs.ObserveLedgerOp(FnGetAllByPatient, err)
	if err != nil {
		return nil, err
	}
	return decodeRecords(payload)
}

func (c *Controller) GetAllByDoctor(ctx context.Context, doctorID string) ([]Record, error) {
	payload, err := c.eval.Evaluate(ctx, FnGetAllByDoctor, doctorID)
	obs.ObserveLedgerOp(FnGetAllByDoctor, err)
	if err != nil {
		return nil, err
	}
	return decodeRecords(payload)
}

func (c *Controller) Exists(ctx context.Context, patientID, doctorID string) (bool, error) {
	_, err := c.GetRecord(ctx, patientID, doctorID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func decodeRecord(payload []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, fmt.Errorf("decode ledger record: %w", err)
	}
	return rec, nil
}

func decodeRecords(payload []byte) ([]Record, error) {
	var recs []Record
	if err := json.Unmarshal(payload, &recs); err != nil {
		return nil, fmt.Errorf("decode ledger records: %w", err)
	}
	return recs, nil
}

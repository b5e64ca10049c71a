package audit

import (
	"context"
	"errors"
	"fmt"

	dErrors "bastion/pkg/domain-errors"
	audit "bastion/pkg/platform/audit"
	"bastion/pkg/platform/sentinel"
)

// CorruptRecord names a stored record whose integrity check failed.
type CorruptRecord struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type VerificationReport struct {
	Checked int             `json:"checked"`
	Corrupt []CorruptRecord `json:"corrupt"`
}

func (r VerificationReport) OK() bool { return len(r.Corrupt) == 0 }

// Verify re-runs the integrity computation for one stored record.
func (t *Trail) Verify(ctx context.Context, id string) error {
	rec, err := t.store.Get(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "audit record not found")
	}
	if err != nil {
		return fmt.Errorf("load audit record %s: %w", id, err)
	}
	if err := t.signer.Verify(*rec); err != nil {
		t.flag(ctx, *rec, err)
		return err
	}
	return nil
}

// VerifyAll checks every stored record. Corrupt records are flagged with an
// integrity_violation record and reported; they are never skipped.
func (t *Trail) VerifyAll(ctx context.Context) (*VerificationReport, error) {
	recs, err := t.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	report := &VerificationReport{Corrupt: []CorruptRecord{}}
	for _, rec := range recs {
		report.Checked++
		if err := t.signer.Verify(rec); err != nil {
			report.Corrupt = append(report.Corrupt, CorruptRecord{ID: rec.ID, Type: string(rec.Type), Reason: err.Error()})
			t.flag(ctx, rec, err)
		}
	}
	return report, nil
}

func (t *Trail) flag(ctx context.Context, rec audit.Record, cause error) {
	t.metrics.IncAuditCorrupt()
	t.logger.ErrorContext(ctx, "audit record failed integrity verification",
		"record_id", rec.ID,
		"event", string(rec.Type),
		"error", cause,
	)
	if rec.Type == audit.EventIntegrityViolation {
		return
	}
	t.Record(ctx, audit.Record{
		Type:        audit.EventIntegrityViolation,
		Severity:    audit.SeverityCritical,
		OperationID: rec.OperationID,
		Reason:      cause.Error(),
		Details:     map[string]string{"record_id": rec.ID},
		Critical:    true,
	})
}

// Timeline is the reconstructed history of one guarded operation.
type Timeline struct {
	OperationID string         `json:"operation_id"`
	Started     *audit.Record  `json:"started,omitempty"`
	Outcome     *audit.Record  `json:"outcome,omitempty"`
	Events      []audit.Record `json:"events"`
}

// Complete reports whether both a start and a terminal record exist.
func (tl Timeline) Complete() bool {
	return tl.Started != nil && tl.Outcome != nil
}

var terminalTypes = map[audit.EventType]bool{
	audit.EventSuccess:          true,
	audit.EventFailure:          true,
	audit.EventUnauthorized:     true,
	audit.EventValidationFailed: true,
}

// Timeline correlates start, intermediate and outcome records by operation id.
func (t *Trail) Timeline(ctx context.Context, operationID string) (*Timeline, error) {
	recs, err := t.ListByOperation(ctx, operationID)
	if err != nil {
		return nil, err
	}
	tl := &Timeline{OperationID: operationID, Events: recs}
	for i := range recs {
		switch {
		case recs[i].Type == audit.EventOperationStarted && tl.Started == nil:
			tl.Started = &recs[i]
		case terminalTypes[recs[i].Type]:
			tl.Outcome = &recs[i]
		}
	}
	return tl, nil
}

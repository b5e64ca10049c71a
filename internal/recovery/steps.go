package recovery

import (
	"context"
	"fmt"

	auditTrail "bastion/internal/audit"
	"bastion/internal/persistence"
	dErrors "bastion/pkg/domain-errors"
)

type AuditVerifier interface {
	VerifyAll(ctx context.Context) (*auditTrail.VerificationReport, error)
}

// Drainer flushes the secondary audit channel.
type Drainer interface {
	Drain(ctx context.Context) int
}

// VerifyAuditStep re-verifies every stored audit record. Corrupt records are
// flagged as integrity violations, which is why it affects the security
// marker.
func VerifyAuditStep(v AuditVerifier) Step {
	return Step{
		Name:    "verify_audit",
		Affects: []string{FieldSecurity},
		Run: func(ctx context.Context, _ RecoveryContext) error {
			report, err := v.VerifyAll(ctx)
			if err != nil {
				return err
			}
			if !report.OK() {
				return dErrors.New(dErrors.CodeIntegrityFailed,
					fmt.Sprintf("%d of %d audit records failed verification", len(report.Corrupt), report.Checked))
			}
			return nil
		},
	}
}

func DrainSecondaryStep(d Drainer) Step {
	return Step{
		Name: "drain_secondary_audit",
		Run: func(ctx context.Context, _ RecoveryContext) error {
			d.Drain(ctx)
			return nil
		},
	}
}

// ProbeStep fails when src cannot report its marker.
func ProbeStep(name string, src persistence.MarkerSource) Step {
	return Step{
		Name: "probe_" + name,
		Run: func(ctx context.Context, _ RecoveryContext) error {
			if _, err := src.Marker(ctx); err != nil {
				return fmt.Errorf("%s unreachable: %w", name, err)
			}
			return nil
		},
	}
}

// DefaultPlans is the standard incident-to-plan table.
func DefaultPlans(verifier AuditVerifier, drainer Drainer, store persistence.MarkerSource) map[IncidentType]Plan {
	probe := ProbeStep(FieldPersistence, store)
	verify := VerifyAuditStep(verifier)
	drain := DrainSecondaryStep(drainer)

	return map[IncidentType]Plan{
		IncidentExecutionFailure: {Steps: []Step{probe, drain}},
		IncidentTimeout:          {Steps: []Step{probe, drain}},
		IncidentDataExposure:     {Steps: []Step{drain, verify}},
		IncidentIntegrityBreach:  {Components: []string{"audit"}, Steps: []Step{drain, verify}},
		IncidentAuditDegraded:    {Components: []string{"audit"}, Steps: []Step{drain, verify}},
	}
}

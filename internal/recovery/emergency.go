package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	dErrors "bastion/pkg/domain-errors"
)

// emergencyDrainTimeout bounds the secondary flush so a hung sink cannot
// hold the recovery lock.
const emergencyDrainTimeout = 5 * time.Second

// DefaultEmergencyProcedure runs after a failed recovery. It forces the
// failing component and every plan component into isolation, flushes the
// secondary audit channel, and writes the report to the catastrophic log.
func DefaultEmergencyProcedure(isolation Isolator, drainer Drainer, catastrophic *slog.Logger) EmergencyProcedure {
	return func(ctx context.Context, report *Report) error {
		components := append([]string(nil), report.Isolated...)
		if report.Component != "" && !slices.Contains(components, report.Component) {
			components = append(components, report.Component)
		}

		var unverified []string
		for _, comp := range components {
			isolation.Isolate(comp)
			if !isolation.IsIsolated(comp) {
				unverified = append(unverified, comp)
			}
		}

		drainCtx, cancel := context.WithTimeout(ctx, emergencyDrainTimeout)
		flushed := drainer.Drain(drainCtx)
		cancel()

		steps := make([]string, 0, len(report.Steps))
		for _, st := range report.Steps {
			steps = append(steps, st.Name)
		}
		catastrophic.ErrorContext(ctx, "emergency procedure ran",
			"incident", string(report.Incident),
			"outcome", report.Outcome,
			"isolated", components,
			"steps", steps,
			"secondary_flushed", flushed,
			"error", causeText(report.Err),
		)

		if len(unverified) > 0 {
			return dErrors.New(dErrors.CodeRecoveryFailed,
				fmt.Sprintf("forced isolation could not be verified for %s", strings.Join(unverified, ",")))
		}
		return nil
	}
}

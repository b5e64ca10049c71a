//go:build integration

package recovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/suite"

	auditTrail "bastion/internal/audit"
	"bastion/internal/guard/models"
	"bastion/internal/mode"
	pgpersistence "bastion/internal/persistence/postgres"
	"bastion/internal/ratelimit/store/window"
	audit "bastion/pkg/platform/audit"
	"bastion/pkg/platform/audit/secondary"
	auditpostgres "bastion/pkg/platform/audit/store/postgres"
	"bastion/pkg/platform/audit/worker"
	txcontext "bastion/pkg/platform/tx"
	"bastion/pkg/testutil/containers"
)

// PostgresRecoverySuite runs recovery with guarded content and audit records
// in the same database, as a postgres deployment does.
type PostgresRecoverySuite struct {
	suite.Suite
	pg      *containers.PostgresContainer
	content *pgpersistence.Transactor
	trail   *auditTrail.Trail
	modes   *mode.Machine
	c       *Coordinator
}

func TestPostgresRecoverySuite(t *testing.T) {
	suite.Run(t, new(PostgresRecoverySuite))
}

func (s *PostgresRecoverySuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T(),
		auditpostgres.Schema,
		pgpersistence.Schema,
		`CREATE TABLE IF NOT EXISTS ledger (id TEXT PRIMARY KEY, amount BIGINT NOT NULL)`,
	)
}

func (s *PostgresRecoverySuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	signer, err := audit.NewSigner("k1", []byte("recovery-secret"), audit.PurposeAuditRecord)
	s.Require().NoError(err)
	buffer := secondary.NewRingBuffer(64)
	s.trail, err = auditTrail.New(auditpostgres.New(s.pg.DB), signer,
		auditTrail.WithLogger(logger),
		auditTrail.WithSecondary(buffer),
	)
	s.Require().NoError(err)

	s.content = pgpersistence.NewTransactor(s.pg.DB, 0)
	drainer := worker.New(buffer, secondary.NewMemorySink(), worker.WithLogger(logger))
	s.modes = mode.NewMachine(s.trail, mode.WithLogger(logger))
	snaps := NewSnapshotter(s.content, window.NewInMemoryStore(), MarkerFunc(s.trail.SecurityMarker))
	s.c, err = New(snaps, s.trail, s.modes,
		WithLogger(logger),
		WithIsolation(NewRegistry()),
		WithPlans(DefaultPlans(s.trail, drainer, s.content)),
	)
	s.Require().NoError(err)
}

func (s *PostgresRecoverySuite) recover() *Report {
	report, err := s.c.ExecuteCriticalRecovery(context.Background(), IncidentExecutionFailure, RecoveryContext{
		Cause:     errors.New("ledger write failed"),
		Operation: models.OperationContext{OperationID: "op-1", Type: "payment.capture", Component: "payments"},
	})
	s.Require().NoError(err)
	return report
}

func (s *PostgresRecoverySuite) TestRepeatedRecoveryShowsNoDivergence() {
	for run := 1; run <= 2; run++ {
		report := s.recover()
		s.Equal(OutcomeSuccess, report.Outcome, "run %d", run)
		s.Empty(report.Divergences, "audit writes during run %d must not look like content changes", run)
	}
	s.Equal(mode.Normal, s.modes.Current())
}

func (s *PostgresRecoverySuite) TestGuardedCommitBetweenRunsIsTheOnlyMovement() {
	before, err := s.content.Marker(context.Background())
	s.Require().NoError(err)
	s.recover()
	afterRecovery, err := s.content.Marker(context.Background())
	s.Require().NoError(err)
	s.Equal(before, afterRecovery)

	err = s.content.RunInTx(context.Background(), func(ctx context.Context) error {
		_, err := txcontext.ExecerFrom(ctx, s.pg.DB).ExecContext(ctx, `INSERT INTO ledger VALUES ('l-1', 100)`)
		return err
	})
	s.Require().NoError(err)
	afterCommit, err := s.content.Marker(context.Background())
	s.Require().NoError(err)
	s.NotEqual(afterRecovery, afterCommit)
}

//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "bastion/pkg/platform/audit"
	"bastion/pkg/platform/sentinel"
	"bastion/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg     *containers.PostgresContainer
	store  *Store
	signer *audit.Signer
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T(), Schema)
	s.store = New(s.pg.DB)
	signer, err := audit.NewSigner("k1", []byte("integration-secret"), audit.PurposeAuditRecord)
	s.Require().NoError(err)
	s.signer = signer
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.pg.DB.Exec(`TRUNCATE audit_records`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestRoundTripStillVerifies() {
	ctx := context.Background()
	rec := audit.Record{
		ID:          "rec-1",
		Type:        audit.EventFailure,
		Severity:    audit.SeverityWarning,
		Timestamp:   time.Now(),
		OperationID: "op-1",
		Context: audit.ContextSnapshot{
			UserID:      "user-1",
			IP:          "10.1.1.1",
			Permissions: []string{"content.read", "content.write"},
		},
		Reason:    "execution_failed",
		Details:   map[string]string{"cause": "boom"},
		Resources: &audit.ResourceSnapshot{HeapAllocBytes: 42, Goroutines: 3, CapturedAt: time.Now()},
		Critical:  true,
	}
	s.Require().NoError(s.signer.Sign(&rec))
	s.Require().NoError(s.store.Append(ctx, rec))

	got, err := s.store.Get(ctx, "rec-1")
	s.Require().NoError(err)
	s.NoError(s.signer.Verify(*got))
	s.Equal(rec.Context.Permissions, got.Context.Permissions)

	byOp, err := s.store.ListByOperation(ctx, "op-1")
	s.Require().NoError(err)
	s.Len(byOp, 1)
}

func (s *PostgresStoreSuite) TestDuplicateIDIsConflict() {
	ctx := context.Background()
	rec := audit.Record{ID: "dup", Type: audit.EventSuccess, Severity: audit.SeverityInfo, Timestamp: time.Now()}
	s.Require().NoError(s.signer.Sign(&rec))
	s.Require().NoError(s.store.Append(ctx, rec))
	s.ErrorIs(s.store.Append(ctx, rec), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestTamperedRowFailsVerification() {
	ctx := context.Background()
	rec := audit.Record{ID: "t-1", Type: audit.EventSuccess, Severity: audit.SeverityInfo, Timestamp: time.Now(), Reason: "ok"}
	s.Require().NoError(s.signer.Sign(&rec))
	s.Require().NoError(s.store.Append(ctx, rec))

	_, err := s.pg.DB.ExecContext(ctx, `UPDATE audit_records SET reason = 'ok!' WHERE id = 't-1'`)
	s.Require().NoError(err)

	got, err := s.store.Get(ctx, "t-1")
	s.Require().NoError(err)
	s.Error(s.signer.Verify(*got))
}

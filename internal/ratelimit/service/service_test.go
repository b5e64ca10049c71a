package service

//go:generate mockgen -source=../ports/ports.go -destination=../ports/mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"bastion/internal/notify"
	"bastion/internal/platform/metrics"
	"bastion/internal/ratelimit/models"
	"bastion/internal/ratelimit/ports/mocks"
	"bastion/internal/ratelimit/store/allowlist"
	"bastion/internal/ratelimit/store/window"
	dErrors "bastion/pkg/domain-errors"
	audit "bastion/pkg/platform/audit"
	"bastion/pkg/requestcontext"
	"bastion/pkg/testutil"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (c *captureNotifier) Notify(_ context.Context, n notify.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type ServiceSuite struct {
	suite.Suite
	windows   *window.InMemoryStore
	allowlist *allowlist.InMemoryStore
	auditor   *testutil.AuditRecorder
	notifier  *captureNotifier
	svc       *Service
	base      time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.windows = window.NewInMemoryStore()
	s.allowlist = allowlist.NewInMemoryStore()
	s.auditor = &testutil.AuditRecorder{}
	s.notifier = &captureNotifier{}
	s.base = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	svc, err := New(s.windows,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAuditor(s.auditor),
		WithNotifier(s.notifier),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
		WithAllowlist(s.allowlist),
		WithAbuseLimit(3, time.Hour),
	)
	s.Require().NoError(err)
	s.svc = svc
}

func (s *ServiceSuite) at(offset time.Duration) context.Context {
	return requestcontext.WithTime(context.Background(), s.base.Add(offset))
}

var deleteLimit = models.Limit{Name: "content.delete", MaxAttempts: 3, Window: 60 * time.Second}

func (s *ServiceSuite) TestRequiresWindowStore() {
	_, err := New(nil)
	s.Error(err)
}

// Three attempts per sixty seconds: the first three pass, the fourth is
// rejected and audited, and the window opens again after it expires.
func (s *ServiceSuite) TestThreePerMinute() {
	key := models.Key{Subject: "u-1", Action: "content.delete"}

	for i := range 3 {
		ok, err := s.svc.Check(s.at(time.Duration(i)*time.Second), key, deleteLimit)
		s.Require().NoError(err)
		s.True(ok, "attempt %d", i+1)
	}

	ok, err := s.svc.Check(s.at(10*time.Second), key, deleteLimit)
	s.Require().NoError(err)
	s.False(ok)

	remaining, err := s.svc.Remaining(s.at(10*time.Second), key, deleteLimit)
	s.Require().NoError(err)
	s.Equal(0, remaining)

	resetIn, err := s.svc.ResetIn(s.at(10*time.Second), key, deleteLimit)
	s.Require().NoError(err)
	s.Equal(50*time.Second, resetIn)

	exceeded := s.auditor.OfType(audit.EventRateLimitExceeded)
	s.Require().Len(exceeded, 1)
	s.Equal("u-1", exceeded[0].Context.UserID)
	s.Equal("3", exceeded[0].Details["count"])

	ok, err = s.svc.Check(s.at(61*time.Second), key, deleteLimit)
	s.Require().NoError(err)
	s.True(ok, "expired window is replaced")
	w, err := s.svc.Inspect(s.at(61*time.Second), key.String())
	s.Require().NoError(err)
	s.Equal(1, w.Count)
}

func (s *ServiceSuite) TestRejectionNeverIncrements() {
	key := models.Key{Subject: "u-2", Action: "content.delete"}
	for range 10 {
		_, err := s.svc.Check(s.at(0), key, deleteLimit)
		s.Require().NoError(err)
	}
	w, err := s.svc.Inspect(s.at(0), key.String())
	s.Require().NoError(err)
	s.Equal(deleteLimit.MaxAttempts, w.Count)
}

func (s *ServiceSuite) TestRemainingWithoutWindow() {
	key := models.Key{Subject: "fresh", Action: "content.delete"}
	remaining, err := s.svc.Remaining(s.at(0), key, deleteLimit)
	s.Require().NoError(err)
	s.Equal(3, remaining)

	resetIn, err := s.svc.ResetIn(s.at(0), key, deleteLimit)
	s.Require().NoError(err)
	s.Zero(resetIn)
}

func (s *ServiceSuite) TestAbuseEscalatesOnce() {
	key := models.Key{Subject: "u-3", Action: "content.delete"}
	for range 3 {
		_, err := s.svc.Check(s.at(0), key, deleteLimit)
		s.Require().NoError(err)
	}

	// Five rejections against an abuse threshold of three.
	for range 5 {
		ok, err := s.svc.Check(s.at(time.Second), key, deleteLimit)
		s.Require().NoError(err)
		s.False(ok)
	}

	abuse := s.auditor.OfType(audit.EventPotentialAbuse)
	s.Require().Len(abuse, 1)
	s.Equal(audit.SeverityCritical, abuse[0].Severity)
	s.True(abuse[0].Critical)
	s.Equal(1, s.notifier.count())
	s.Len(s.auditor.OfType(audit.EventRateLimitExceeded), 5)
}

func (s *ServiceSuite) TestCheckMultiStopsAtFirstViolation() {
	tight := models.Limit{Name: "burst", MaxAttempts: 1, Window: time.Minute}
	loose := models.Limit{Name: "hourly", MaxAttempts: 100, Window: time.Hour}
	limits := []models.Limit{tight, loose}

	res, err := s.svc.CheckMulti(s.at(0), "u-4", limits)
	s.Require().NoError(err)
	s.True(res.Allowed)
	s.Equal([]string{"burst", "hourly"}, res.Checked)

	res, err = s.svc.CheckMulti(s.at(time.Second), "u-4", limits)
	s.Require().NoError(err)
	s.False(res.Allowed)
	s.Equal("burst", res.Violated)

	hourly, err := s.svc.Inspect(s.at(time.Second), models.Key{Subject: "u-4", Action: "hourly"}.String())
	s.Require().NoError(err)
	s.Equal(1, hourly.Count, "limits after the violation are not consumed")
}

func (s *ServiceSuite) TestAllowlistBypass() {
	_, err := s.svc.AddToAllowlist(s.at(0), models.AllowlistTypeUserID, "ops-bot", "automation", nil)
	s.Require().NoError(err)

	key := models.Key{Subject: "ops-bot", Action: "content.delete"}
	for range 10 {
		ok, err := s.svc.Check(s.at(0), key, deleteLimit)
		s.Require().NoError(err)
		s.True(ok)
	}
	s.Len(s.auditor.OfType(audit.EventAllowlistBypassed), 10)
	_, err = s.svc.Inspect(s.at(0), key.String())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound), "bypassed checks never open a window")

	entries, err := s.svc.ListAllowlist(s.at(0))
	s.Require().NoError(err)
	s.Len(entries, 1)
	s.Require().NoError(s.svc.RemoveFromAllowlist(s.at(0), models.AllowlistTypeUserID, "ops-bot"))
}

func (s *ServiceSuite) TestIPAllowlistDoesNotBypassUserWithSameIdentifier() {
	_, err := s.svc.AddToAllowlist(s.at(0), models.AllowlistTypeIP, "10.0.0.1", "health checker", nil)
	s.Require().NoError(err)

	spoofed := models.Key{Subject: "10.0.0.1", Action: "content.delete", UserID: "10.0.0.1", IP: "203.0.113.5"}
	for range deleteLimit.MaxAttempts {
		ok, err := s.svc.Check(s.at(0), spoofed, deleteLimit)
		s.Require().NoError(err)
		s.True(ok)
	}
	ok, err := s.svc.Check(s.at(0), spoofed, deleteLimit)
	s.Require().NoError(err)
	s.False(ok, "the user is counted normally")
	s.Empty(s.auditor.OfType(audit.EventAllowlistBypassed))

	fromHost := models.Key{Subject: "10.0.0.1", Action: "content.delete", IP: "10.0.0.1"}
	ok, err = s.svc.Check(s.at(0), fromHost, deleteLimit)
	s.Require().NoError(err)
	s.True(ok, "the allowlisted address bypasses")
	s.Len(s.auditor.OfType(audit.EventAllowlistBypassed), 1)
}

func (s *ServiceSuite) TestResetRateLimit() {
	key := models.Key{Subject: "u-5", Action: "content.delete"}
	for range 3 {
		_, err := s.svc.Check(s.at(0), key, deleteLimit)
		s.Require().NoError(err)
	}
	s.Require().NoError(s.svc.ResetRateLimit(s.at(0), key.String()))
	ok, err := s.svc.Check(s.at(0), key, deleteLimit)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *ServiceSuite) TestInvalidLimit() {
	_, err := s.svc.Check(s.at(0), models.Key{Subject: "u", Action: "a"}, models.Limit{Name: "zero"})
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func (s *ServiceSuite) TestStoreFailures() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockWindowStore(ctrl)
	svc, err := New(store, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)
	key := models.Key{Subject: "u-6", Action: "content.delete"}

	s.Run("backend error is internal", func() {
		store.EXPECT().Increment(gomock.Any(), key.String(), deleteLimit, gomock.Any()).
			Return(models.Window{}, false, errors.New("connection refused"))
		_, err := svc.Check(s.at(0), key, deleteLimit)
		s.True(dErrors.Is(err, dErrors.CodeInternal))
	})

	s.Run("corrupt window stays an invariant violation", func() {
		store.EXPECT().Increment(gomock.Any(), key.String(), deleteLimit, gomock.Any()).
			Return(models.Window{}, false, dErrors.New(dErrors.CodeInvariantViolation, "window expires before it starts"))
		_, err := svc.Check(s.at(0), key, deleteLimit)
		s.True(dErrors.Is(err, dErrors.CodeInvariantViolation))
	})
}

func (s *ServiceSuite) TestAllowlistLookupSeparatesCallerIdentities() {
	ctrl := gomock.NewController(s.T())
	al := mocks.NewMockAllowlistStore(ctrl)
	svc, err := New(s.windows,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithAllowlist(al),
	)
	s.Require().NoError(err)

	gomock.InOrder(
		al.EXPECT().IsAllowlisted(gomock.Any(), "u-8", "198.51.100.4").Return(true, nil),
		al.EXPECT().IsAllowlisted(gomock.Any(), "", "198.51.100.4").Return(false, nil),
		al.EXPECT().IsAllowlisted(gomock.Any(), "u-9", "").Return(false, errors.New("connection refused")),
	)

	ok, err := svc.Check(s.at(0), models.Key{Subject: "u-8", Action: "a", UserID: "u-8", IP: "198.51.100.4"}, deleteLimit)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = svc.Check(s.at(0), models.Key{Subject: "198.51.100.4", Action: "a", IP: "198.51.100.4"}, deleteLimit)
	s.Require().NoError(err)
	s.True(ok)

	_, err = svc.Check(s.at(0), models.Key{Subject: "u-9", Action: "a"}, deleteLimit)
	s.True(dErrors.Is(err, dErrors.CodeInternal))
}

func (s *ServiceSuite) TestConcurrentChecksHonorLimit() {
	key := models.Key{Subject: "u-7", Action: "burst"}
	limit := models.Limit{Name: "burst", MaxAttempts: 20, Window: time.Minute}

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.svc.Check(s.at(0), key, limit)
			if err != nil || !ok {
				return
			}
			mu.Lock()
			allowed++
			mu.Unlock()
		}()
	}
	wg.Wait()
	s.Equal(20, allowed)
}

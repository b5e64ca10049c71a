package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"bastion/internal/admin"
	auditTrail "bastion/internal/audit"
	"bastion/internal/guard"
	"bastion/internal/mode"
	"bastion/internal/notify"
	"bastion/internal/persistence"
	"bastion/internal/persistence/memory"
	pgpersistence "bastion/internal/persistence/postgres"
	"bastion/internal/platform/config"
	"bastion/internal/platform/db"
	"bastion/internal/platform/httpserver"
	"bastion/internal/platform/kafka"
	"bastion/internal/platform/logger"
	"bastion/internal/platform/metrics"
	"bastion/internal/platform/redis"
	"bastion/internal/ratelimit/ports"
	rlservice "bastion/internal/ratelimit/service"
	"bastion/internal/ratelimit/store/allowlist"
	"bastion/internal/ratelimit/store/window"
	"bastion/internal/recovery"
	"bastion/internal/validation"
	"bastion/internal/validation/token"
	audit "bastion/pkg/platform/audit"
	"bastion/pkg/platform/audit/secondary"
	auditmemory "bastion/pkg/platform/audit/store/memory"
	auditpostgres "bastion/pkg/platform/audit/store/postgres"
	"bastion/pkg/platform/audit/worker"
	"bastion/pkg/platform/middleware/metadata"
	"bastion/pkg/platform/middleware/requesttime"
)

const (
	secondaryBufferSize = 4096
	shutdownTimeout     = 10 * time.Second
)

// contentStore is the unit-of-work boundary guarded operations write
// through, plus the marker recovery snapshots compare.
type contentStore interface {
	persistence.Transactor
	persistence.MarkerSource
}

type windowStore interface {
	ports.WindowStore
	persistence.MarkerSource
}

// stores holds the backends chosen from the configured URLs.
type stores struct {
	content   contentStore
	audit     audit.Store
	windows   windowStore
	allowlist ports.AllowlistStore
	closers   []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// application keeps the long-lived components main starts and stops.
type application struct {
	worker *worker.Worker
	router http.Handler
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	defer st.close()

	sink, closeSink, err := secondarySink(ctx, cfg, log)
	if err != nil {
		log.Error("failed to set up secondary audit sink", "error", err)
		os.Exit(1)
	}

	app, err := build(cfg, log, logger.Catastrophic(), st, sink)
	if err != nil {
		log.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	srv := httpserver.New(cfg.Server.AdminAddr, app.router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return app.worker.Run(gctx)
	})
	g.Go(func() error {
		log.Info("starting bastion", "addr", cfg.Server.AdminAddr, "environment", cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if n := app.worker.Drain(shutdownCtx); n > 0 {
			log.Info("flushed secondary audit channel", "records", n)
		}
		closeSink(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("bastion stopped")
}

// openStores picks postgres when DATABASE_URL is set and redis for rate-limit
// windows when REDIS_URL is set. Anything unconfigured runs in memory.
// bootSchemas lists the DDL applied at boot. Every statement is idempotent.
func bootSchemas() []string {
	return []string{auditpostgres.Schema, pgpersistence.Schema, allowlist.Schema, window.Schema}
}

func openStores(ctx context.Context, cfg config.Config, log *slog.Logger) (*stores, error) {
	st := &stores{}

	if cfg.DatabaseURL != "" {
		sqlDB, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = sqlDB.Close() })
		if err := db.EnsureSchema(ctx, sqlDB, bootSchemas()...); err != nil {
			st.close()
			return nil, err
		}
		st.content = pgpersistence.NewTransactor(sqlDB, cfg.Guard.DefaultTimeout)
		st.audit = auditpostgres.New(sqlDB)
		st.allowlist = allowlist.NewPostgres(sqlDB)

		var pool *pgxpool.Pool
		pool, err = db.OpenPool(ctx, cfg.DatabaseURL)
		if err != nil {
			st.close()
			return nil, err
		}
		st.closers = append(st.closers, pool.Close)
		st.windows = window.NewPostgres(pool)
		log.Info("using postgres stores")
	} else {
		st.content = memory.NewStore()
		st.audit = auditmemory.NewInMemoryStore()
		st.allowlist = allowlist.NewInMemoryStore()
		st.windows = window.NewInMemoryStore()
		log.Warn("DATABASE_URL not set; audit and content are kept in memory")
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		st.close()
		return nil, err
	}
	if rc != nil {
		st.closers = append(st.closers, func() { _ = rc.Close() })
		st.windows = window.NewRedisStore(rc.Client)
		log.Info("using redis rate-limit windows")
	}
	return st, nil
}

// secondarySink delivers critical records to Kafka when brokers are set. The
// returned func flushes and closes the producer; run it after the final
// drain.
func secondarySink(ctx context.Context, cfg config.Config, log *slog.Logger) (secondary.Sink, func(context.Context), error) {
	client, err := kafka.New(cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Warn("KAFKA_BROKERS not set; critical audit records stay in process")
		return secondary.NewMemorySink(), func(context.Context) {}, nil
	}
	if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.AuditTopic, 1, 1); err != nil {
		client.Close()
		return nil, nil, err
	}
	closeClient := func(ctx context.Context) {
		if err := kafka.Shutdown(ctx, client); err != nil {
			log.Error("secondary audit producer did not flush", "error", err)
		}
	}
	return secondary.NewKafkaSink(client, cfg.Kafka.AuditTopic), closeClient, nil
}

func build(cfg config.Config, log, catastrophic *slog.Logger, st *stores, sink secondary.Sink) (*application, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	signer, err := audit.NewSigner(cfg.Signing.AuditKeyID, []byte(cfg.Signing.AuditSecret), audit.PurposeAuditRecord)
	if err != nil {
		return nil, err
	}
	buffer := secondary.NewRingBuffer(secondaryBufferSize)
	trail, err := auditTrail.New(st.audit, signer,
		auditTrail.WithLogger(log),
		auditTrail.WithMetrics(m),
		auditTrail.WithSecondary(buffer),
	)
	if err != nil {
		return nil, err
	}
	drainer := worker.New(buffer, sink,
		worker.WithLogger(log),
		worker.WithDropHook(m.AddAuditSecondaryDropped),
	)

	hooks := []notify.Hook{notify.NewLogHook(log)}
	if cfg.AlertWebhookURL != "" {
		hooks = append(hooks, notify.NewWebhookHook(cfg.AlertWebhookURL, &http.Client{Timeout: 5 * time.Second}))
	}
	notifier := notify.NewDispatcher(hooks, notify.WithLogger(log))

	modes := mode.NewMachine(trail, mode.WithLogger(log))

	limiter, err := rlservice.New(st.windows,
		rlservice.WithLogger(log),
		rlservice.WithAuditor(trail),
		rlservice.WithNotifier(notifier),
		rlservice.WithMetrics(m),
		rlservice.WithAllowlist(st.allowlist),
		rlservice.WithAbuseLimit(cfg.RateLimit.AbuseThreshold, cfg.RateLimit.AbuseWindow),
	)
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewService(cfg.Signing.JWTSigningKey, cfg.Signing.TokenIssuer, cfg.Signing.TokenAudience)
	if err != nil {
		return nil, err
	}
	resultSigner, err := audit.NewSigner(cfg.Signing.AuditKeyID, []byte(cfg.Signing.ResultSecret), audit.PurposeResultDigest)
	if err != nil {
		return nil, err
	}
	pipelineOpts := []validation.Option{
		validation.WithLogger(log),
		validation.WithAuditor(trail),
		validation.WithRateLimiter(limiter),
		validation.WithTokenVerifier(tokens),
		validation.WithResultSigner(resultSigner),
	}
	if len(cfg.SensitivePatterns) > 0 {
		patterns, err := validation.CompilePatterns(cfg.SensitivePatterns)
		if err != nil {
			return nil, err
		}
		pipelineOpts = append(pipelineOpts, validation.WithSensitivePatterns(patterns))
	}
	pipeline := validation.New(pipelineOpts...)

	registry := recovery.NewRegistry()
	coordinator, err := newCoordinator(st, trail, modes, registry, drainer, notifier, m, log, catastrophic)
	if err != nil {
		return nil, err
	}

	g, err := guard.New(st.content, pipeline, trail,
		guard.WithLogger(log),
		guard.WithMetrics(m),
		guard.WithRecovery(coordinator),
		guard.WithIsolation(coordinator),
		guard.WithModeSource(modes),
		guard.WithDefaultTimeout(cfg.Guard.DefaultTimeout),
		guard.WithCriticalTypes(cfg.Guard.CriticalTypes...),
	)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	admin.New(trail, limiter, modes, registry, reg, log).
		WithSelfCheck(g, tokens).
		Register(r, cfg.Server.AdminToken)

	return &application{worker: drainer, router: r}, nil
}

// newCoordinator wires recovery with the default plans and, after a failed
// recovery, the default emergency procedure.
func newCoordinator(
	st *stores,
	trail *auditTrail.Trail,
	modes *mode.Machine,
	registry *recovery.Registry,
	drainer *worker.Worker,
	notifier notify.Notifier,
	m *metrics.Metrics,
	log, catastrophic *slog.Logger,
) (*recovery.Coordinator, error) {
	snapshots := recovery.NewSnapshotter(st.content, st.windows, recovery.MarkerFunc(trail.SecurityMarker))
	return recovery.New(snapshots, trail, modes,
		recovery.WithLogger(log),
		recovery.WithCatastrophicLogger(catastrophic),
		recovery.WithMetrics(m),
		recovery.WithNotifier(notifier),
		recovery.WithIsolation(registry),
		recovery.WithPlans(recovery.DefaultPlans(trail, drainer, st.content)),
		recovery.WithEmergencyProcedure(recovery.DefaultEmergencyProcedure(registry, drainer, catastrophic)),
	)
}

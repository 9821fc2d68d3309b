package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	auditHandler "vitalis/internal/audit"
	deletionHandler "vitalis/internal/deletion/handler"
	deletionService "vitalis/internal/deletion/service"
	deletionStore "vitalis/internal/deletion/store"
	"vitalis/internal/export"
	exportHandler "vitalis/internal/export/handler"
	jwttoken "vitalis/internal/jwt_token"
	"vitalis/internal/platform/config"
	"vitalis/internal/platform/kafka"
	"vitalis/internal/platform/metrics"
	"vitalis/internal/platform/postgres"
	"vitalis/internal/platform/redis"
	"vitalis/internal/ratelimit"
	"vitalis/internal/retention/domains"
	retentionHandler "vitalis/internal/retention/handler"
	"vitalis/internal/retention/models"
	retentionService "vitalis/internal/retention/service"
	flagStore "vitalis/internal/retention/store/flag"
	policyStore "vitalis/internal/retention/store/policy"
	httptransport "vitalis/internal/transport/http"
	"vitalis/migrations"
	id "vitalis/pkg/domain"
	"vitalis/pkg/platform/audit"
	"vitalis/pkg/platform/audit/publisher"
	auditKafka "vitalis/pkg/platform/audit/store/kafka"
	auditMemory "vitalis/pkg/platform/audit/store/memory"
	auditPostgres "vitalis/pkg/platform/audit/store/postgres"
	"vitalis/pkg/platform/changefeed"
)

// seedablePolicyStore is what the service needs plus seeding at startup.
type seedablePolicyStore interface {
	retentionService.PolicyStore
	Seed(ctx context.Context, policies []*models.Policy) (int, error)
}

type app struct {
	router  http.Handler
	storage string
	closers []func() error
}

func (a *app) close(log *slog.Logger) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn("shutdown step failed", "error", err)
		}
	}
}

type stores struct {
	policies seedablePolicyStore
	flags    retentionService.FlagStore
	registry *domains.Registry
	deletion deletionService.Store
	exports  []export.Domain
	audit    audit.Store
}

func postgresStores(db *sql.DB) stores {
	return stores{
		policies: policyStore.NewPostgres(db),
		flags:    flagStore.NewPostgres(db),
		registry: domains.NewRegistry(domains.DefaultSQLTables(db)...),
		deletion: deletionStore.NewPostgres(db),
		exports:  export.DefaultDomains(db),
		audit:    auditPostgres.New(db),
	}
}

// memoryStores backs development mode. The retention tables and export
// sources share one demo dataset owned by demoPatient.
func memoryStores(now time.Time) (stores, int) {
	registry, tables := domains.NewMemoryRegistry()
	exportDomains, sources := export.MemoryDomains()
	seeded := seedDemoData(tables, sources, now)
	return stores{
		policies: policyStore.NewInMemory(),
		flags:    flagStore.NewInMemory(),
		registry: registry,
		deletion: deletionStore.NewInMemory(),
		exports:  exportDomains,
		audit:    auditMemory.NewInMemoryStore(),
	}, seeded
}

// healthCheck fails on the first unhealthy dependency. With none configured
// the process is healthy whenever it can answer.
func healthCheck(checks []func(ctx context.Context) error) func(r *http.Request) error {
	if len(checks) == 0 {
		return nil
	}
	return func(r *http.Request) error {
		for _, check := range checks {
			if err := check(r.Context()); err != nil {
				return err
			}
		}
		return nil
	}
}

func build(ctx context.Context, cfg config.Server, log *slog.Logger) (*app, error) {
	a := &app{storage: "memory"}
	m := metrics.New()

	var st stores
	var checks []func(ctx context.Context) error
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := migrations.Apply(ctx, db); err != nil {
			return nil, err
		}
		st = postgresStores(db)
		a.storage = "postgres"
		checks = append(checks, db.PingContext)
	} else {
		var seeded int
		st, seeded = memoryStores(time.Now().UTC())
		log.Warn("DATABASE_URL not set; running on in-memory stores with demo data",
			"demo_patient_id", demoPatient.String(),
			"demo_records", seeded,
		)
	}

	seeded, err := st.policies.Seed(ctx, models.DefaultPolicies(func() id.PolicyID { return id.PolicyID(uuid.New()) }, time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("seed retention policies: %w", err)
	}
	if seeded > 0 {
		log.Info("seeded retention policies", "count", seeded)
	}

	auditSinks := audit.Tee{st.audit}
	producer, err := kafka.NewProducer(ctx, cfg.Kafka, log)
	if err != nil {
		return nil, err
	}
	if producer != nil {
		a.closers = append(a.closers, func() error { producer.Close(); return nil })
		auditSinks = append(auditSinks, auditKafka.NewSink(producer, cfg.Kafka.AuditTopic))
	}
	auditPublisher := publisher.NewPublisher(auditSinks,
		publisher.WithAsyncBuffer(cfg.Audit.BufferSize),
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics()),
	)
	// Closers run in reverse, so the buffer drains before the sinks close.
	a.closers = append(a.closers, auditPublisher.Close)

	broker := changefeed.NewBroker(changefeed.WithSubscriberGauge(m))
	var notifier changefeed.Notifier = broker
	var limitStore ratelimit.Store = ratelimit.NewMemoryStore()
	rdb, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rdb != nil {
		a.closers = append(a.closers, rdb.Close)
		checks = append(checks, rdb.Health)
		notifier = changefeed.NewRedisPublisher(rdb.Client, cfg.Redis.Channel, log)
		limitStore = ratelimit.NewRedisStore(rdb.Client, "vitalis:ratelimit")
		relay := changefeed.NewRedisRelay(rdb.Client, cfg.Redis.Channel, broker, log)
		go func() {
			if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
				log.Error("change feed relay stopped", "error", err)
			}
		}()
	}

	retentionOpts := []retentionService.Option{
		retentionService.WithLogger(log),
		retentionService.WithAuditPublisher(auditPublisher),
		retentionService.WithNotifier(notifier),
		retentionService.WithMetrics(m),
		retentionService.WithCascadeDelete(cfg.Retention.CascadeDelete),
	}
	policySvc, err := retentionService.NewPolicyService(st.policies, retentionOpts...)
	if err != nil {
		return nil, err
	}
	scanner, err := retentionService.NewScanner(st.policies, st.flags, st.registry, retentionOpts...)
	if err != nil {
		return nil, err
	}
	reviews, err := retentionService.NewReviewService(st.flags, st.registry, retentionOpts...)
	if err != nil {
		return nil, err
	}
	stats, err := retentionService.NewStatsAggregator(st.flags, retentionOpts...)
	if err != nil {
		return nil, err
	}

	deletions, err := deletionService.New(st.deletion,
		deletionService.WithLogger(log),
		deletionService.WithAuditPublisher(auditPublisher),
		deletionService.WithNotifier(notifier),
		deletionService.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	exports, err := export.New(st.exports,
		export.WithLogger(log),
		export.WithAuditPublisher(auditPublisher),
		export.WithMetrics(m),
		export.WithTimeout(cfg.Export.Timeout),
		export.WithPreviewRows(cfg.Export.PreviewRows),
		export.WithPartialResults(cfg.Export.Partial),
	)
	if err != nil {
		return nil, err
	}

	origin := "*"
	if len(cfg.AllowedOrigin) == 1 {
		origin = cfg.AllowedOrigin[0]
	}
	retentionH := retentionHandler.New(policySvc, scanner, reviews, stats, broker, log, retentionHandler.WithAllowedOrigin(origin))
	deletionH := deletionHandler.New(deletions, log)
	exportH := exportHandler.New(exports, log)
	auditH := auditHandler.NewHandler(auditPublisher, log)
	limiter := ratelimit.NewMiddleware(limitStore, log)
	exportLimit := ratelimit.Limit{Requests: cfg.RateLimit.ExportRequests, Window: cfg.RateLimit.Window}
	deletionLimit := ratelimit.Limit{Requests: cfg.RateLimit.DeletionRequests, Window: cfg.RateLimit.Window}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, jwttoken.Issuer, jwttoken.Audience)
	a.router = httptransport.NewRouter(httptransport.Config{
		AllowedOrigins: cfg.AllowedOrigin,
		JWTValidator:   jwttoken.NewJWTServiceAdapter(jwtService),
		Latency:        m,
		Metrics:        httptransport.MetricsHandler(),
		Health:         healthCheck(checks),
	}, log,
		[]httptransport.Registrar{
			httptransport.With(httptransport.RegistrarFunc(deletionH.RegisterUser), limiter.PerUserWrites("deletion", deletionLimit)),
			httptransport.With(exportH, limiter.PerUser("export", exportLimit)),
		},
		[]httptransport.Registrar{
			retentionH,
			httptransport.RegistrarFunc(deletionH.RegisterAdmin),
			auditH,
		},
	)
	return a, nil
}

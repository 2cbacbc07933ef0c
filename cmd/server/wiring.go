package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"pidgate/internal/access"
	accesshandler "pidgate/internal/access/handler"
	accessmetrics "pidgate/internal/access/metrics"
	"pidgate/internal/address"
	addresshandler "pidgate/internal/address/handler"
	"pidgate/internal/audit"
	"pidgate/internal/credential"
	"pidgate/internal/did"
	"pidgate/internal/pid"
	"pidgate/internal/platform/config"
	"pidgate/internal/platform/metrics"
	redisclient "pidgate/internal/platform/redis"
	"pidgate/internal/proof"
	proofhandler "pidgate/internal/proof/handler"
	proofmetrics "pidgate/internal/proof/metrics"
	"pidgate/internal/ratelimit"
	ratelimitmetrics "pidgate/internal/ratelimit/metrics"
	"pidgate/internal/registry"
	registrymetrics "pidgate/internal/registry/metrics"
	"pidgate/internal/revocation"
	revocationmetrics "pidgate/internal/revocation/metrics"
	"pidgate/internal/session"
	sessionhandler "pidgate/internal/session/handler"
	sessionmetrics "pidgate/internal/session/metrics"
	"pidgate/internal/snapshot"
	httptransport "pidgate/internal/transport/http"
	"pidgate/pkg/platform/middleware/auth"
)

type app struct {
	deps        httptransport.Dependencies
	registry    *registry.Registry
	revocations *revocation.Manager
	sessions    *session.Manager
	auditWorker *audit.Worker
	closers     []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build constructs every component from cfg. On error the partially built
// resources are released.
func build(ctx context.Context, cfg config.Server, log *slog.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	codec := pid.Default()
	if cfg.SchemaFile != "" {
		table, err := pid.LoadSchemaTable(cfg.SchemaFile)
		if err != nil {
			return nil, fmt.Errorf("load schema table: %w", err)
		}
		codec = pid.NewCodec(table)
	}

	issuerKeys, err := did.FromSecret(cfg.IssuerSecret)
	if err != nil {
		return nil, fmt.Errorf("derive issuer key: %w", err)
	}
	revokerKeys, err := did.FromSecret(cfg.RevocationSecret)
	if err != nil {
		return nil, fmt.Errorf("derive revocation key: %w", err)
	}

	rc, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		a.closers = append(a.closers, func() { _ = rc.Close() })
	}

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		a.closers = append(a.closers, func() { _ = db.Close() })
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("database ping failed: %w", err)
		}
	}

	snapshots, err := openSnapshotStore(ctx, a, cfg, rc, db)
	if err != nil {
		return nil, err
	}

	scope := cfg.RegistryScope
	if scope == "" {
		scope = issuerKeys.DID
	}
	regMetrics := registrymetrics.New()
	revMetrics := revocationmetrics.New()
	rootSigner := registry.NewRootSigner([]byte(cfg.RegistrySecret))
	a.registry = registry.New(scope, rootSigner,
		registry.WithWindowSize(cfg.RootWindow),
		registry.WithSnapshotStore(snapshots),
		registry.WithLogger(log),
		registry.WithMetrics(regMetrics),
	)
	if err := a.registry.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore registry: %w", err)
	}
	authority := registry.NewAuthority(rootSigner,
		registry.WithEphemeralMaxAge(cfg.EphemeralMaxAge),
		registry.WithAuthorityMetrics(regMetrics),
	)
	authority.Track(a.registry)

	a.revocations, err = revocation.NewManager(revokerKeys,
		revocation.WithLeafLookup(a.registry),
		revocation.WithSnapshotStore(snapshots),
		revocation.WithLogger(log),
		revocation.WithMetrics(revMetrics),
	)
	if err != nil {
		return nil, fmt.Errorf("create revocation manager: %w", err)
	}
	if err := a.revocations.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore revocation list: %w", err)
	}
	checker := revocation.NewChecker(a.revocations, revokerKeys.Public,
		revocation.WithMaxAge(cfg.RevocationMaxAge),
		revocation.WithCheckerLogger(log),
		revocation.WithCheckerMetrics(revMetrics),
	)

	dids := did.NewRegistry()
	for _, kp := range []*did.KeyPair{issuerKeys, revokerKeys} {
		if err := dids.Register(ctx, did.NewDocument(kp, time.Now().UTC())); err != nil {
			return nil, fmt.Errorf("register DID document: %w", err)
		}
	}
	verifier := credential.NewVerifier(checker, credential.WithLogger(log))
	credentials := credential.NewService(issuerKeys, dids, verifier,
		credential.WithTTL(cfg.CredentialTTL),
		credential.WithServiceLogger(log),
	)

	var sealed access.SealedStore = access.NewInMemorySealedStore()
	if rc != nil {
		sealed = access.NewRedisSealedStore(rc.Client, "pidgate:vault:")
	}
	vault, err := access.NewVault([]byte(cfg.VaultSecret), sealed)
	if err != nil {
		return nil, fmt.Errorf("create vault: %w", err)
	}

	auditor, err := buildAuditor(ctx, a, cfg, db, log)
	if err != nil {
		return nil, err
	}
	resolver := access.NewResolver(access.NewInMemoryPolicyStore(), vault, auditor,
		access.WithRevocationChecker(checker),
		access.WithLogger(log),
		access.WithMetrics(accessmetrics.New()),
	)

	addresses := address.NewService(a.registry, credentials, vault, a.revocations, address.NewInMemoryStore(),
		address.WithCodec(codec),
		address.WithLogger(log),
	)
	engine := proof.NewEngine(authority, checker, proof.NewHashBackend([]byte(cfg.CircuitSecret)),
		proof.WithCodec(codec),
		proof.WithDirectory(a.registry),
		proof.WithOwners(addresses),
		proof.WithLogger(log),
		proof.WithMetrics(proofmetrics.New()),
		proof.WithTracer(otel.Tracer("pidgate/proof")),
	)
	a.sessions = session.NewManager(
		session.WithTTL(cfg.SessionTTL),
		session.WithRetention(cfg.SessionRetention),
		session.WithLogger(log),
		session.WithMetrics(sessionmetrics.New()),
	)

	a.deps = httptransport.Dependencies{
		Logger:     log,
		Metrics:    metrics.New(prometheus.DefaultRegisterer),
		Principals: auth.NewTokenAuthority([]byte(cfg.JWTSigningKey), cfg.JWTIssuer),
		Providers:  auth.NewTokenAuthority([]byte(cfg.JWTSigningKey), cfg.ProviderIssuer),
		AdminToken: cfg.AdminToken,
		Health:     health(rc, db),
		RateLimit:  buildRateLimit(cfg.RateLimit, rc, log),
		Addresses:  addresshandler.New(addresses, log),
		Proofs:     proofhandler.New(engine, a.registry, addresses, log),
		Sessions:   sessionhandler.New(a.sessions, log),
		Access:     accesshandler.New(resolver, auditor, log),
		State:      httptransport.NewStateHandler(a.registry, a.revocations, credentials, log),
	}
	return a, nil
}

// buildRateLimit shares buckets through Redis when it is configured.
func buildRateLimit(cfg config.RateLimitConfig, rc *redisclient.Client, log *slog.Logger) *ratelimit.Middleware {
	var store ratelimit.BucketStore = ratelimit.NewInMemoryBucketStore()
	if rc != nil {
		store = ratelimit.NewRedisBucketStore(rc.Client, "pidgate:ratelimit:")
	}
	limiter := ratelimit.NewLimiter(store, map[ratelimit.Class]ratelimit.Limit{
		ratelimit.ClassAddress: {Requests: cfg.Address, Window: cfg.Window},
		ratelimit.ClassProof:   {Requests: cfg.Proof, Window: cfg.Window},
		ratelimit.ClassSession: {Requests: cfg.Session, Window: cfg.Window},
	}, ratelimit.WithMetrics(ratelimitmetrics.New()))
	return ratelimit.NewMiddleware(limiter, log)
}

func openSnapshotStore(ctx context.Context, a *app, cfg config.Server, rc *redisclient.Client, db *sql.DB) (snapshot.Store, error) {
	switch cfg.SnapshotBackend {
	case config.BackendRedis:
		if rc == nil {
			return nil, errors.New("redis snapshot backend requires REDIS_URL")
		}
		return snapshot.NewRedisStore(rc.Client), nil
	case config.BackendPostgres:
		if db == nil {
			return nil, errors.New("postgres snapshot backend requires DATABASE_URL")
		}
		store := snapshot.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure snapshot schema: %w", err)
		}
		return store, nil
	case config.BackendBadger:
		store, err := snapshot.OpenBadgerStore(cfg.BadgerDir)
		if err != nil {
			return nil, fmt.Errorf("open badger store: %w", err)
		}
		a.closers = append(a.closers, func() { _ = store.Close() })
		return store, nil
	default:
		return snapshot.NewInMemoryStore(), nil
	}
}

// buildAuditor persists audit entries to Postgres when a database is
// configured and fans them out to Kafka when brokers are set.
func buildAuditor(ctx context.Context, a *app, cfg config.Server, db *sql.DB, log *slog.Logger) (*audit.Publisher, error) {
	var store audit.Store = audit.NewInMemoryStore()
	if db != nil {
		pg := audit.NewPostgresStore(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure audit schema: %w", err)
		}
		store = pg
	}

	opts := []audit.PublisherOption{audit.WithLogger(log)}
	if len(cfg.Kafka.Brokers) == 0 {
		return audit.NewPublisher(store, opts...), nil
	}

	sink, err := audit.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, fmt.Errorf("create kafka sink: %w", err)
	}
	a.closers = append(a.closers, sink.Close)
	if err := sink.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
		return nil, fmt.Errorf("ensure audit topic: %w", err)
	}
	publisher := audit.NewPublisher(store, append(opts, audit.WithQueue(cfg.AuditQueue))...)
	a.auditWorker = audit.NewWorker(sink, publisher.Queue(), log)
	return publisher, nil
}

func health(rc *redisclient.Client, db *sql.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if rc != nil {
			if err := rc.Health(ctx); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		if db != nil {
			if err := db.PingContext(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
		}
		return nil
	}
}

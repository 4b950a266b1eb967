// Command server runs the identity credential gateway: HTTP API, grant
// sweeper and audit publishing under one errgroup.
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

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"idvault/internal/address"
	"idvault/internal/audit"
	"idvault/internal/credential"
	"idvault/internal/decision"
	"idvault/internal/evaluator/rulebased"
	"idvault/internal/grant"
	"idvault/internal/identity"
	"idvault/internal/platform/config"
	"idvault/internal/platform/httpserver"
	"idvault/internal/platform/logger"
	"idvault/internal/platform/metrics"
	"idvault/internal/platform/postgres"
	platformredis "idvault/internal/platform/redis"
	"idvault/internal/session"
	httptransport "idvault/internal/transport/http"
	"idvault/internal/verification"
)

const shutdownGrace = 10 * time.Second

func main() {
	log := logger.New(os.Stdout)

	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// cascadeRevoker breaks the credential<->grant constructor cycle: the
// credential service is built against it first, the grant manager fills it
// in before any request is served.
type cascadeRevoker struct {
	grants *grant.Manager
}

func (c *cascadeRevoker) RevokeByCredential(ctx context.Context, credentialAddress string) (int, error) {
	return c.grants.RevokeByCredential(ctx, credentialAddress)
}

func run(log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Audit sink: kafka when brokers are configured, in-memory otherwise.
	var sink audit.Sink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := audit.NewKafkaSink(ctx, cfg.KafkaBrokers, cfg.AuditTopic)
		if err != nil {
			return err
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("audit sink: kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.AuditTopic)
	} else {
		sink = audit.NewMemorySink()
		log.Warn("audit sink: in-memory; events do not survive restarts")
	}
	auditor := audit.NewPublisher(sink, log, m)

	// Stores: postgres when configured, in-memory otherwise. Sessions live
	// in redis when available since they are hot-path and TTL-shaped.
	var (
		identityStore     identity.Store     = identity.NewInMemoryStore()
		credentialStore   credential.Store   = credential.NewInMemoryStore()
		grantStore        grant.Store        = grant.NewInMemoryStore()
		verificationStore verification.Store = verification.NewInMemoryStore()
		sessionStore      session.Store      = session.NewInMemoryStore()
	)
	if cfg.PostgresURL != "" {
		db, err := postgres.Open(ctx, cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := postgres.RunMigrations(cfg.PostgresURL); err != nil {
			return err
		}
		identityStore = identity.NewPostgresStore(db)
		credentialStore = credential.NewPostgresStore(db)
		grantStore = grant.NewPostgresStore(db)
		verificationStore = verification.NewPostgresStore(db)
		log.Info("stores: postgres")
	} else {
		log.Warn("stores: in-memory; state does not survive restarts")
	}

	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		sessionStore = session.NewRedisStore(redisClient.Client)
		log.Info("session store: redis")
	}

	deriver := address.New("idvault", cfg.SaltFloor)

	identities := identity.NewService(identityStore, deriver, log, auditor)
	cascade := &cascadeRevoker{}
	credentials := credential.NewService(credentialStore, identities, cascade, deriver, log, m, auditor)
	grants := grant.NewManager(grantStore, credentials, deriver, log, m, auditor, cfg.MaxGrantTTL)
	cascade.grants = grants

	sessions := session.NewManager(sessionStore,
		session.NewTokenSigner(cfg.JWTSigningKey, "idvault"), log, m, auditor,
		cfg.SessionTTL, cfg.RefreshTTL, cfg.LoginPerMin)

	pipeline := verification.NewPipeline(verification.Evaluators{
		DocumentAnalysis: rulebased.DocumentAnalyzer{},
		FraudCheck:       rulebased.FraudChecker{},
		ComplianceCheck:  rulebased.ComplianceChecker{},
	}, decision.NewPolicy(decision.Thresholds{
		Risk:       cfg.RiskThreshold,
		Confidence: cfg.ConfidenceThreshold,
	}), verificationStore, log, m, auditor, cfg.EvaluatorTimeout)

	router := httptransport.NewRouter(httptransport.Config{
		Logger:        log,
		Metrics:       m,
		Gatherer:      registry,
		Sessions:      sessions,
		Identities:    identities,
		Verifications: pipeline,
		Credentials:   credentials,
		Grants:        grants,
	})
	server := httpserver.New(cfg.Addr, router, cfg.HTTPReadTimeout, cfg.HTTPWriteTimeout)
	sweeper := grant.NewSweeper(grants, log, cfg.SweepInterval)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sweeper.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}

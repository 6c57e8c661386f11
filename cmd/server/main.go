package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"benefits/internal/audit/outbox"
	jwttoken "benefits/internal/jwt_token"
	"benefits/internal/platform/config"
	"benefits/internal/platform/httpserver"
	"benefits/internal/platform/kafka"
	"benefits/internal/platform/logger"
	"benefits/internal/platform/metrics"
	"benefits/internal/platform/postgres"
	redisplatform "benefits/internal/platform/redis"
	httptransport "benefits/internal/transport/http"
	"benefits/pkg/platform/middleware/metadata"
	"benefits/pkg/platform/middleware/ratelimit"
)

const (
	purgeInterval = time.Hour
	sweepInterval = 5 * time.Minute
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	health := map[string]httptransport.HealthCheck{}
	if db != nil {
		defer db.Close()
		if cfg.Database.AutoMigrate {
			if err := postgres.MigrateUp(ctx, db); err != nil {
				return err
			}
		}
		health["postgres"] = db.PingContext
	} else {
		log.Warn("no database configured, running on in-memory stores")
	}

	redisClient, err := redisplatform.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
		health["redis"] = redisClient.Health
	}

	st := newStores(db)
	trl, backend := newRevocationList(redisClient, db)
	jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer)
	a := wire(cfg, st, trl, newThrottle(cfg.Auth, redisClient, log), jwt, log)
	proxies, err := metadata.ParseTrustedProxies(cfg.HTTP.TrustedProxies)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if err := startRelay(gctx, g, cfg.Kafka, st, health, log); err != nil {
		stop()
		_ = g.Wait()
		return err
	}

	deps := httptransport.Deps{
		Logger:         log,
		Metrics:        metrics.New(),
		Validator:      jwttoken.NewJWTServiceAdapter(jwt),
		Revocations:    trl,
		Public:         a.public,
		TrustedProxies: proxies,
		Modules:        a.modules,
		Health:         health,
	}
	if cfg.Auth.LoginRateLimit > 0 {
		limiter := ratelimit.New(cfg.Auth.LoginRateLimit, time.Minute, ratelimit.WithLogger(log))
		deps.PublicLimit = limiter.PerIP
		g.Go(func() error {
			sweepLimiter(gctx, limiter)
			return nil
		})
	}
	router := httptransport.NewRouter(deps)
	srv := httpserver.New(cfg.Addr, router, cfg.HTTP)

	g.Go(func() error {
		log.Info("starting benefits portal",
			"addr", cfg.Addr,
			"environment", cfg.Environment,
			"revocation_backend", backend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		log.Info("server stopped")
		return nil
	})

	if p, ok := trl.(purger); ok {
		g.Go(func() error {
			purgeRevocations(gctx, p, log)
			return nil
		})
	}

	return g.Wait()
}

// startRelay launches the audit outbox relay when both Kafka and Postgres are
// configured.
func startRelay(ctx context.Context, g *errgroup.Group, cfg config.KafkaConfig, st stores, health map[string]httptransport.HealthCheck, log *slog.Logger) error {
	client, err := kafka.NewClient(cfg)
	if err != nil {
		return err
	}
	if client == nil {
		return nil
	}
	if st.auditOutbox == nil {
		log.Warn("kafka configured without a database, audit relay disabled")
		client.Close()
		return nil
	}
	if err := kafka.EnsureTopic(ctx, client, cfg.AuditTopic, 1, 1); err != nil {
		client.Close()
		return err
	}
	health["kafka"] = client.Ping

	relay := outbox.New(st.auditOutbox, st.tx, client, cfg.AuditTopic,
		outbox.WithInterval(cfg.RelayInterval),
		outbox.WithBatchSize(cfg.RelayBatch),
		outbox.WithProduceTimeout(cfg.ProduceTimeout),
		outbox.WithLogger(log),
	)
	g.Go(func() error {
		defer client.Close()
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	return nil
}

func purgeRevocations(ctx context.Context, p purger, log *slog.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.Purge(ctx)
			if err != nil {
				log.WarnContext(ctx, "failed to purge revoked tokens", "error", err)
				continue
			}
			if n > 0 {
				log.DebugContext(ctx, "purged revoked tokens", "count", n)
			}
		}
	}
}

func sweepLimiter(ctx context.Context, l *ratelimit.Limiter) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

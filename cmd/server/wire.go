package main

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	applicationhandler "benefits/internal/application/handler"
	applicationmetrics "benefits/internal/application/metrics"
	applicationservice "benefits/internal/application/service"
	applicationstore "benefits/internal/application/store"
	audithandler "benefits/internal/audit/handler"
	auditservice "benefits/internal/audit/service"
	auditstore "benefits/internal/audit/store"
	cataloghandler "benefits/internal/catalog/handler"
	catalogservice "benefits/internal/catalog/service"
	catalogstore "benefits/internal/catalog/store"
	dashboardhandler "benefits/internal/dashboard/handler"
	dashboardmetrics "benefits/internal/dashboard/metrics"
	dashboardservice "benefits/internal/dashboard/service"
	identityhandler "benefits/internal/identity/handler"
	"benefits/internal/identity/lockout"
	identitymetrics "benefits/internal/identity/metrics"
	"benefits/internal/identity/revocation"
	identityservice "benefits/internal/identity/service"
	identitystore "benefits/internal/identity/store"
	jwttoken "benefits/internal/jwt_token"
	"benefits/internal/platform/config"
	redisplatform "benefits/internal/platform/redis"
	possessionhandler "benefits/internal/possession/handler"
	possessionservice "benefits/internal/possession/service"
	possessionstore "benefits/internal/possession/store"
	reclamationhandler "benefits/internal/reclamation/handler"
	reclamationmetrics "benefits/internal/reclamation/metrics"
	reclamationservice "benefits/internal/reclamation/service"
	reclamationstore "benefits/internal/reclamation/store"
	scoringhandler "benefits/internal/scoring/handler"
	scoringmetrics "benefits/internal/scoring/metrics"
	scoringservice "benefits/internal/scoring/service"
	scoringstore "benefits/internal/scoring/store"
	thresholdhandler "benefits/internal/threshold/handler"
	thresholdservice "benefits/internal/threshold/service"
	thresholdstore "benefits/internal/threshold/store"
	httptransport "benefits/internal/transport/http"
	"benefits/pkg/platform/tx"
)

// stores holds one store per module, all Postgres or all in memory.
type stores struct {
	audit       auditservice.Store
	identity    identityservice.Store
	catalog     catalogservice.Store
	possession  possessionservice.Store
	scoring     scoringservice.Store
	threshold   thresholdservice.Store
	reclamation reclamationservice.Store
	application applicationservice.Store
	tx          tx.Runner
	// auditOutbox is set only on Postgres, where the relay has rows to drain.
	auditOutbox *auditstore.PostgresStore
}

func newStores(db *sql.DB) stores {
	if db == nil {
		return stores{
			audit:       auditstore.NewInMemory(),
			identity:    identitystore.NewInMemory(),
			catalog:     catalogstore.NewInMemory(),
			possession:  possessionstore.NewInMemory(),
			scoring:     scoringstore.NewInMemory(),
			threshold:   thresholdstore.NewInMemory(),
			reclamation: reclamationstore.NewInMemory(),
			application: applicationstore.NewInMemory(),
			tx:          tx.NewMemory(),
		}
	}
	audit := auditstore.NewPostgres(db)
	return stores{
		audit:       audit,
		identity:    identitystore.NewPostgres(db),
		catalog:     catalogstore.NewPostgres(db),
		possession:  possessionstore.NewPostgres(db),
		scoring:     scoringstore.NewPostgres(db),
		threshold:   thresholdstore.NewPostgres(db),
		reclamation: reclamationstore.NewPostgres(db),
		application: applicationstore.NewPostgres(db),
		tx:          tx.NewPostgres(db),
		auditOutbox: audit,
	}
}

// revocationList is the token revocation backend the server runs with.
type revocationList interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

// purger is implemented by the backends that do not expire entries on their own.
type purger interface {
	Purge(ctx context.Context) (int64, error)
}

// newRevocationList prefers Redis, then Postgres, then process memory.
func newRevocationList(redisClient *redisplatform.Client, db *sql.DB) (revocationList, string) {
	switch {
	case redisClient != nil:
		return revocation.NewRedisTRL(redisClient.Client), "redis"
	case db != nil:
		return revocation.NewPostgresTRL(db), "postgres"
	default:
		return revocation.NewInMemoryTRL(), "memory"
	}
}

// newThrottle shares lockout counters through Redis when it is configured so
// every replica sees the same failures.
func newThrottle(cfg config.AuthConfig, redisClient *redisplatform.Client, logger *slog.Logger) identityservice.Throttle {
	if cfg.LockoutAttempts <= 0 {
		return nil
	}
	var store lockout.Store = lockout.NewInMemory()
	if redisClient != nil {
		store = lockout.NewRedis(redisClient.Client)
	}
	return lockout.New(store,
		lockout.WithLogger(logger),
		lockout.WithConfig(lockout.Config{
			Attempts: cfg.LockoutAttempts,
			Window:   cfg.LockoutWindow,
			LockFor:  cfg.LockoutDuration,
		}),
	)
}

// app is the fully wired HTTP surface.
type app struct {
	public  []httptransport.PublicModule
	modules []httptransport.Module
}

func wire(cfg config.Server, st stores, trl revocationList, throttle identityservice.Throttle, jwt *jwttoken.JWTService, logger *slog.Logger) app {
	audit := auditservice.New(st.audit, auditservice.WithLogger(logger))

	identity := identityservice.New(st.identity, st.tx, audit, jwt, trl, identityservice.Config{
		TokenTTL:     cfg.Auth.TokenTTL,
		CodeTTL:      cfg.Auth.CodeTTL,
		DevLoginCode: cfg.Auth.DevLoginCode,
	},
		identityservice.WithLogger(logger),
		identityservice.WithMetrics(identitymetrics.New()),
		identityservice.WithThrottle(throttle),
	)
	catalog := catalogservice.New(st.catalog, st.tx, audit, catalogservice.WithLogger(logger))
	thresholds := thresholdservice.New(st.threshold, st.tx, audit, thresholdservice.WithLogger(logger))
	possessions := possessionservice.New(st.possession, st.tx, audit, catalog, identity,
		possessionservice.WithLogger(logger),
		possessionservice.WithDisputeChecker(reclamationservice.NewCounts(st.reclamation)),
	)
	scoring := scoringservice.New(st.scoring, st.tx, audit, possessions, catalog, thresholds, identity,
		scoringservice.WithLogger(logger),
		scoringservice.WithMetrics(scoringmetrics.New()),
	)
	reclamations := reclamationservice.New(st.reclamation, st.tx, audit, possessions,
		reclamationservice.WithLogger(logger),
		reclamationservice.WithMetrics(reclamationmetrics.New()),
	)
	applications := applicationservice.New(st.application, st.tx, audit, scoring, thresholds, identity,
		applicationservice.WithLogger(logger),
		applicationservice.WithMetrics(applicationmetrics.New()),
	)
	dashboards := dashboardservice.New(dashboardservice.Deps{
		Scores:       scoring,
		Thresholds:   thresholds,
		Accounts:     identity,
		Possessions:  possessions,
		Reclamations: reclamations,
		Applications: applications,
		Audit:        audit,
	},
		dashboardservice.WithLogger(logger),
		dashboardservice.WithMetrics(dashboardmetrics.New()),
	)

	identityHTTP := identityhandler.New(identity, logger)
	return app{
		public: []httptransport.PublicModule{identityHTTP},
		modules: []httptransport.Module{
			identityHTTP,
			dashboardhandler.New(dashboards, logger),
			cataloghandler.New(catalog, logger),
			possessionhandler.New(possessions, logger),
			scoringhandler.New(scoring, logger),
			thresholdhandler.New(thresholds, logger),
			reclamationhandler.New(reclamations, logger),
			applicationhandler.New(applications, logger),
			audithandler.New(audit, logger),
		},
	}
}

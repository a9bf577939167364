package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	progin "github.com/PaulFidika/prokit/adapters/gin"
	"github.com/PaulFidika/prokit/adapters/gin/handlers"
	"github.com/PaulFidika/prokit/adapters/ginutil"
	"github.com/PaulFidika/prokit/config"
	"github.com/PaulFidika/prokit/entitlements"
	"github.com/PaulFidika/prokit/events"
	"github.com/PaulFidika/prokit/identity"
	"github.com/PaulFidika/prokit/jobs"
	jwtkit "github.com/PaulFidika/prokit/jwt"
	"github.com/PaulFidika/prokit/logging"
	"github.com/PaulFidika/prokit/metrics"
	memorylimiter "github.com/PaulFidika/prokit/ratelimit/memory"
	redislimiter "github.com/PaulFidika/prokit/ratelimit/redis"
	memorystore "github.com/PaulFidika/prokit/storage/memory"
	pgstore "github.com/PaulFidika/prokit/storage/postgres"
	redisstore "github.com/PaulFidika/prokit/storage/redis"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type app struct {
	cfg     config.Config
	log     *logrus.Logger
	pool    *pgxpool.Pool
	rdb     *redis.Client
	users   handlers.UserDirectory
	service *entitlements.Service
	limiter ginutil.RateLimiter
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("shutdown")
		}
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func buildApp(ctx context.Context, cfg config.Config, log *logrus.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	ginutil.Logger = log

	var (
		grants   entitlements.GrantStore
		subs     entitlements.SubscriptionStore
		payments entitlements.PaymentStore
	)
	switch cfg.Store {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.pool = pool
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		st := pgstore.New(pool, cfg.DBSchema)
		grants, subs, payments = st, st, st
		a.users = identity.NewStore(pool, cfg.DBSchema)
	default:
		st := memorystore.New()
		grants, subs, payments = st, st, st
		a.users = st
		log.Warn("using in-memory store; data is lost on restart")
	}

	var cache entitlements.DecisionCache
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		a.rdb = redis.NewClient(opt)
		a.closers = append(a.closers, a.rdb.Close)
		cache = redisstore.NewDecisionCache(a.rdb, "", cfg.DecisionCacheTTL)
		a.limiter = redislimiter.New(a.rdb, redisLimits())
	} else {
		mc := memorystore.NewDecisionCache(cfg.DecisionCacheTTL)
		a.closers = append(a.closers, mc.Close)
		cache = mc
		a.limiter = memorylimiter.New(memoryLimits())
	}

	var pub entitlements.Publisher = events.NewLogPublisher(log)
	if len(cfg.KafkaBrokers) > 0 {
		sp, err := events.NewSyncProducer(cfg.KafkaBrokers)
		if err != nil {
			return nil, err
		}
		kp := events.NewKafkaPublisher(sp, cfg.KafkaTopic, log)
		a.closers = append(a.closers, kp.Close)
		pub = kp
	}

	svc, err := entitlements.NewService(entitlements.Config{
		Grants:        grants,
		Subscriptions: subs,
		Payments:      payments,
		Cache:         cache,
		Publisher:     pub,
		Recorder:      metrics.New(prometheus.DefaultRegisterer),
		Logger:        log,
		CacheTTL:      cfg.DecisionCacheTTL,
	})
	if err != nil {
		return nil, err
	}
	a.service = svc
	return a, nil
}

func memoryLimits() map[string]memorylimiter.Limit {
	out := map[string]memorylimiter.Limit{}
	for k, v := range ginutil.DefaultLimits() {
		out[k] = memorylimiter.Limit{Limit: v.Limit, Window: v.Window}
	}
	return out
}

func redisLimits() map[string]redislimiter.Limit {
	out := map[string]redislimiter.Limit{}
	for k, v := range ginutil.DefaultLimits() {
		out[k] = redislimiter.Limit{Limit: v.Limit, Window: v.Window}
	}
	return out
}

func serve(ctx context.Context, cfg config.Config) error {
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.JWKSURL == "" {
		return errors.New("JWKS_URL required to verify access tokens")
	}
	verifier, err := jwtkit.NewRemoteVerifier(ctx, cfg.JWKSURL, cfg.JWTIssuer, cfg.JWTAudience, 0)
	if err != nil {
		return err
	}

	health := map[string]handlers.Pinger{}
	if a.pool != nil {
		health["postgres"] = a.pool
	}
	if a.rdb != nil {
		rdb := a.rdb
		health["redis"] = pingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	stopJobs, err := startReconciler(ctx, a)
	if err != nil {
		return err
	}
	defer stopJobs()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	progin.Register(r, progin.Deps{
		Verifier:     verifier,
		Users:        a.users,
		Entitlements: a.service,
		IsAdmin:      progin.AdminByEmailOrRole(cfg.AdminEmails),
		RateLimiter:  a.limiter,
		Health:       health,
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.ListenAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// startReconciler uses river when Postgres is configured and an in-process
// cron otherwise.
func startReconciler(ctx context.Context, a *app) (func(), error) {
	rec := a.service.Reconciler("system")
	if a.pool != nil {
		client, err := jobs.NewClient(a.pool, rec, a.cfg.ReconcileSchedule, a.log)
		if err != nil {
			return nil, err
		}
		if err := client.Start(ctx); err != nil {
			return nil, fmt.Errorf("start river: %w", err)
		}
		return func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client.Stop(stopCtx); err != nil {
				a.log.WithError(err).Warn("stop river")
			}
		}, nil
	}
	s, err := jobs.NewCronScheduler(rec, a.cfg.ReconcileSchedule, a.log)
	if err != nil {
		return nil, err
	}
	s.Start()
	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Stop(stopCtx)
	}, nil
}

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"

	"github.com/dubspace/dubspace-core/internal/aiquota"
	"github.com/dubspace/dubspace-core/internal/database"
	"github.com/dubspace/dubspace-core/internal/domain"
	"github.com/dubspace/dubspace-core/internal/entitlement"
	apperrors "github.com/dubspace/dubspace-core/internal/errors"
	"github.com/dubspace/dubspace-core/internal/health"
	"github.com/dubspace/dubspace-core/internal/i18n"
	"github.com/dubspace/dubspace-core/internal/idempotency"
	"github.com/dubspace/dubspace-core/internal/jobs"
	jobhandlers "github.com/dubspace/dubspace-core/internal/jobs/handlers"
	"github.com/dubspace/dubspace-core/internal/ledger"
	"github.com/dubspace/dubspace-core/internal/lifecycle"
	"github.com/dubspace/dubspace-core/internal/locale"
	"github.com/dubspace/dubspace-core/internal/middleware"
	"github.com/dubspace/dubspace-core/internal/profilecache"
	"github.com/dubspace/dubspace-core/internal/repository"
	"github.com/dubspace/dubspace-core/internal/session"
	"github.com/dubspace/dubspace-core/internal/storage"
	appsync "github.com/dubspace/dubspace-core/internal/sync"
	"github.com/dubspace/dubspace-core/pkg/config"
	"github.com/dubspace/dubspace-core/pkg/graceful"
	"github.com/dubspace/dubspace-core/pkg/logger"
	_ "github.com/dubspace/dubspace-core/pkg/metrics"
	pkgredis "github.com/dubspace/dubspace-core/pkg/redis"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, v, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.New(*cfg)
	slog.SetDefault(log)

	log.Info("starting dubspace-core",
		slog.String("env", cfg.AppEnv),
		slog.String("http_port", cfg.HTTPPort),
		slog.String("log_level", cfg.Logger.Level),
	)

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
		}); err != nil {
			log.Error("failed to init sentry", slog.Any("error", err))
			os.Exit(1)
		}
		defer sentry.Flush(2 * time.Second)
	}

	db, err := sql.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		log.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to ping database", slog.Any("error", err))
		os.Exit(1)
	}

	migrator := database.NewMigrator(db, log)
	if err := migrator.ApplyDir(ctx, "migrations"); err != nil {
		log.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}

	rdb, err := pkgredis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", slog.Any("error", err))
		os.Exit(1)
	}

	store := storage.NewMetricsStore(storage.NewRedisStore(rdb.Client, log))

	translations, err := i18n.Load(cfg.Locale.DefaultLanguage)
	if err != nil {
		log.Error("failed to load translations", slog.Any("error", err))
		os.Exit(1)
	}

	languages := locale.NewContainer(store, translations, nil, log)
	if err := languages.Initialize(ctx, os.Getenv("LANG")); err != nil {
		log.Warn("failed to initialize languages", slog.Any("error", err))
	}

	ent := entitlement.NewContainer(store, cfg.Subscription.PeriodDays, log)
	led := ledger.NewContainer(store, log)
	sess := session.NewContainer(store, cfg.AI.DailyLimit, log)

	repo := repository.NewProfileRepository(db, log)
	cache := profilecache.New(rdb.Client, cfg.Cache.ProfileTTL, cfg.Cache.BalanceTTL)
	syncService := appsync.NewService(repo, cache, sess, log)

	errHandler := apperrors.NewHandler(log, cfg.Sentry.Enabled)

	coordinator := appsync.NewCoordinator(appsync.CoordinatorDeps{
		Entitlement: ent,
		Ledger:      led,
		Session:     sess,
		SyncService: syncService,
		Quota:       aiquota.NewRedisLimiter(rdb.Client, log),
		QuotaLimit:  cfg.AI.DailyLimit,
		Idempotency: idempotency.NewManager(idempotency.NewRedisStore(rdb.Client, log), log),
		Log:         log,
	})

	// Bind the device's signed-in account, when one is provisioned.
	if accountID := os.Getenv("DUBSPACE_ACCOUNT_ID"); accountID != "" {
		account := domain.Account{ID: accountID, Email: os.Getenv("DUBSPACE_ACCOUNT_EMAIL")}
		if err := coordinator.SignIn(ctx, account); err != nil {
			log.Warn("initial sign-in failed", slog.String("account_id", accountID), slog.Any("error", err))
		}
	}

	shutdown := lifecycle.NewShutdown(log)
	shutdown.Register("redis", lifecycle.PhaseConnections, func(context.Context) error {
		return rdb.Close()
	})
	shutdown.Register("database", lifecycle.PhaseConnections, func(context.Context) error {
		return db.Close()
	})

	if cfg.Jobs.Enabled {
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}

		manager := jobs.NewManager(redisOpt, log)

		worker := jobs.NewWorker(redisOpt, map[string]int{
			jobs.QueueCritical: 6,
			jobs.QueueDefault:  3,
			jobs.QueueLow:      1,
		}, cfg.Jobs.Concurrency, log)
		worker.RegisterHandler(jobs.TaskTypeProfileRefresh,
			jobhandlers.NewProfileRefreshHandler(syncService, sess, errHandler, log))
		worker.RegisterHandler(jobs.TaskTypeAIUsageReset,
			jobhandlers.NewAIUsageResetHandler(sess, log))

		scheduler := jobs.NewScheduler(redisOpt, cfg.Jobs.RefreshSchedule, cfg.Jobs.AIResetSchedule, log)
		if err := scheduler.RegisterTasks(); err != nil {
			log.Error("failed to register scheduled tasks", slog.Any("error", err))
			os.Exit(1)
		}

		go func() {
			if err := worker.Run(); err != nil {
				log.Error("jobs worker stopped", slog.Any("error", err))
			}
		}()
		scheduler.Run()

		cleaner := idempotency.NewCleaner(rdb.Client, log, time.Hour)
		go cleaner.Run(ctx)

		shutdown.Register("scheduler", lifecycle.PhaseState, func(context.Context) error {
			scheduler.Shutdown()
			return nil
		})
		shutdown.Register("worker", lifecycle.PhaseState, func(context.Context) error {
			worker.Shutdown()
			return nil
		})
		shutdown.Register("jobs-client", lifecycle.PhaseConnections, func(context.Context) error {
			return manager.Close()
		})
	}

	checker := health.NewChecker(log)
	checker.AddCheck("postgres", health.NewDBChecker(db))
	checker.AddCheck("redis", health.NewRedisChecker(rdb.Client))
	checker.AddCheck("store", health.NewStoreChecker(store))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		results := checker.Check(r.Context())

		status := http.StatusOK
		for _, result := range results {
			if result != "OK" {
				status = http.StatusServiceUnavailable
				break
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(results)
	})

	handler := logger.Middleware(middleware.New(log)(mux))

	srv := graceful.NewServer(log, &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}, cfg.ShutdownTimeout)

	config.Watch(v, log, func(updated *config.Config) {
		// Most knobs require a restart; log so operators can tell the
		// change was seen.
		log.Info("config file changed", slog.String("env", updated.AppEnv))
	})

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Error("ops server error", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := shutdown.Execute(shutdownCtx); err != nil {
		log.Error("shutdown finished with errors", slog.Any("error", err))
	}

	log.Info("dubspace-core stopped")
}

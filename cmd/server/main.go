package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	httpadapter "ghostleaks/internal/adapters/http"
	"ghostleaks/internal/adapters/memory"
	"ghostleaks/internal/adapters/notify"
	pg "ghostleaks/internal/adapters/postgres"
	"ghostleaks/internal/adapters/sources"
	"ghostleaks/internal/config"
	"ghostleaks/internal/domain"
	"ghostleaks/internal/logging"
	"ghostleaks/internal/ports"
	"ghostleaks/internal/services/catalog"
	"ghostleaks/internal/services/narrative"
	"ghostleaks/internal/services/quota"
	"ghostleaks/internal/services/rescan"
	scansvc "ghostleaks/internal/services/scanner"
	"ghostleaks/internal/workers/rescanner"
	"ghostleaks/internal/workers/scanrunner"
)

// sourceDeadline bounds each adapter call during a fan-out, on top of the
// per-source HTTP timeouts.
const sourceDeadline = 30 * time.Second

// devUser is provisioned in development so the API can be exercised without
// an account service in front of it.
var devUser = domain.User{ID: "dev", Email: "dev@localhost", Plan: domain.PlanPro, IsActive: true,
	Alerts: domain.AlertSettings{Email: true}}

type store interface {
	ports.LeakStore
	ports.ScanRepository
	ports.UserRepository
}

func main() {
	cfg, cfgErr := config.Load()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFile)
	log := logging.Component(logger, "server").WithField("env", cfg.Env)
	if cfgErr != nil && !errors.Is(cfgErr, config.ErrNoDatabase) {
		log.WithError(cfgErr).Fatal("invalid configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	if n, err := st.FailStaleScans(ctx, time.Now().Add(-cfg.StaleScanAfter), narrative.FailedSummary); err != nil {
		log.WithError(err).Warn("recover stale scans")
	} else if n > 0 {
		log.WithField("scans", n).Warn("failed scans left processing by a previous run")
	}

	adapters := []ports.SourceAdapter{
		sources.NewHIBP(cfg.Sources.HIBPKey, cfg.Sources.HIBPTimeout),
		sources.NewBreachDirectory(cfg.Sources.BreachDirectoryKey, cfg.Sources.BreachDirectoryTimeout),
		sources.NewPastebin(cfg.Sources.GoogleAPIKey, cfg.Sources.GoogleCSEID, cfg.Sources.PastebinTimeout),
		sources.NewGitHub(cfg.Sources.GitHubToken, cfg.Sources.GitHubTimeout),
	}
	pipeline := scansvc.NewPipeline(scansvc.NewOrchestrator(adapters, sourceDeadline, log), catalog.New(st, log))

	scanner := scansvc.New(st, quota.New(st, cfg.FreeDailyScans, cfg.QuotaResetPeriod), pipeline, log)
	pool := scanrunner.NewPool(ctx, scanner, cfg.ScanWorkers, log)
	scanner.SetDispatcher(pool)

	policy := rescan.Policy{MaxRetries: uint64(cfg.Rescan.RateLimitRetries), Backoff: cfg.Rescan.RateLimitBackoff}
	worker := rescanner.New(st, st, rescan.New(st, pipeline, policy, log), notify.NewLogDispatcher(log),
		cfg.Rescan.Interval, cfg.Rescan.Cooldown, log)
	workerDone := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(workerDone)
	}()
	if cfg.Rescan.Interval > 0 {
		log.WithField("interval", cfg.Rescan.Interval.String()).Info("scheduled rescans enabled")
	}

	r := chi.NewRouter()
	r.Mount("/", httpadapter.New(scanner, worker, log).Routes())
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.WithFields(logrus.Fields{"addr": cfg.ListenAddr, "workers": cfg.ScanWorkers}).Info("listening")

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.WithError(err).Error("server error")
		cancel()
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown")
	}
	pool.Wait()
	<-workerDone
}

func openStore(ctx context.Context, cfg config.Config, log *logrus.Entry) (store, func()) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory store")
		mem := memory.NewStore()
		if cfg.Env == "development" {
			mem.PutUser(devUser)
			log.WithField("user_id", devUser.ID).Info("seeded development user")
		}
		return mem, func() {}
	}

	db, err := pg.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connect")
	}
	if err := db.Migrate(ctx, log); err != nil {
		db.Close()
		log.WithError(err).Fatal("db migrate")
	}
	if cfg.Env == "development" {
		if err := db.UpsertUser(ctx, devUser); err != nil {
			log.WithError(err).Warn("seed development user")
		} else {
			log.WithField("user_id", devUser.ID).Info("seeded development user")
		}
	}
	return db, db.Close
}


package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	app "github.com/coopenergy/platform/internal/app"
	"github.com/coopenergy/platform/internal/app/cache"
	"github.com/coopenergy/platform/internal/app/httpapi"
	"github.com/coopenergy/platform/internal/app/metrics"
	"github.com/coopenergy/platform/internal/app/services/flagscope"
	"github.com/coopenergy/platform/internal/app/storage/postgres"
	"github.com/coopenergy/platform/internal/app/system"
	"github.com/coopenergy/platform/internal/app/txn"
	"github.com/coopenergy/platform/internal/config"
	"github.com/coopenergy/platform/internal/platform/migrations"
	"github.com/coopenergy/platform/pkg/logger"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	httpServer *http.Server
	handler    http.Handler
	db         *sql.DB
	redis      *cache.Redis
	auditSink  *httpapi.FileAuditSink
}

// NewApplication loads configuration from the environment and builds the
// application.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return New(cfg)
}

// New builds the application from cfg. An empty database DSN selects the
// in-memory stores.
func New(cfg *config.Config) (_ *Application, err error) {
	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})
	a := &Application{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.release()
		}
	}()

	stores, err := a.buildStores()
	if err != nil {
		return nil, fmt.Errorf("configure stores: %w", err)
	}

	runner := txn.New(txn.Policy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		MaxDelay: cfg.Retry.MaxDelay,
	}, log.Component("txn"))
	runner.OnRetry(metrics.RecordLockRetry)

	opts := []flagscope.Option{
		flagscope.WithRunner(runner),
		flagscope.WithRecorder(metrics.FlagRecorder{}),
	}
	if c := a.buildCache(); c != nil {
		opts = append(opts, flagscope.WithCache(c))
	}

	application, err := app.New(stores, log, opts...)
	if err != nil {
		return nil, fmt.Errorf("build application: %w", err)
	}
	a.app = application

	audit, err := a.buildAudit()
	if err != nil {
		return nil, fmt.Errorf("configure audit log: %w", err)
	}

	var limiter *httpapi.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = httpapi.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log.Component("ratelimit"))
	}

	scheduler := system.NewScheduler(log.Component("scheduler"))
	if limiter != nil {
		idle := cfg.RateLimit.IdleAfter
		if err := scheduler.Add("ratelimit-cleanup", cfg.RateLimit.CleanupSchedule, func() {
			if n := limiter.Cleanup(idle); n > 0 {
				log.WithField("evicted", n).Debug("evicted idle rate limiters")
			}
		}); err != nil {
			return nil, err
		}
	}
	maxAge := cfg.Audit.MaxAge
	if err := scheduler.Add("audit-trim", cfg.Audit.TrimSchedule, func() {
		if n := audit.Trim(time.Now(), maxAge); n > 0 {
			log.WithField("trimmed", n).Debug("trimmed audit entries")
		}
	}); err != nil {
		return nil, err
	}
	if err := application.Attach(scheduler); err != nil {
		return nil, err
	}

	var ready func(context.Context) error
	if a.db != nil {
		ready = a.db.PingContext
	}

	a.handler = httpapi.NewHandler(application, httpapi.Options{
		Debug:   cfg.App.Debug,
		Log:     log.Component("httpapi"),
		Audit:   audit,
		Limiter: limiter,
		Ready:   ready,
	})
	a.httpServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return a, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *Application) Handler() http.Handler {
	return a.handler
}

// Run starts background services and the HTTP server and blocks until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server, background services and
// connections.
func (a *Application) Shutdown(ctx context.Context) error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error stopping services")
	}
	a.release()
	return nil
}

func (a *Application) release() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.WithError(err).Warn("error closing redis client")
		}
		a.redis = nil
	}
	if a.auditSink != nil {
		if err := a.auditSink.Close(); err != nil {
			a.log.WithError(err).Warn("error closing audit file")
		}
		a.auditSink = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
		a.db = nil
	}
}

func (a *Application) buildStores() (app.Stores, error) {
	cfg := a.cfg.Database
	if cfg.DSN == "" {
		a.log.Warn("DATABASE_URL not set; using in-memory stores")
		return app.Stores{}, nil
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return app.Stores{}, err
	}
	a.db = db

	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := migrations.Apply(ctx, db); err != nil {
			return app.Stores{}, fmt.Errorf("apply migrations: %w", err)
		}
		a.log.Info("database migrations applied")
	}

	store := postgres.New(db, postgres.WithLockTimeout(cfg.LockTimeout))
	return app.Stores{
		Cooperatives: store,
		Plants:       store,
		PlantConfigs: store,
		PlantGroups:  store,
		Vendors:      store,
	}, nil
}

// buildCache connects the Redis cache when configured. An unreachable Redis
// is logged and kept, since cache failures degrade to lookups.
func (a *Application) buildCache() cache.DefaultCache {
	cfg := a.cfg.Redis
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	c := cache.NewRedis(client, cfg.TTL, a.log.Component("cache"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		a.log.WithError(err).WithField("addr", cfg.Addr).Warn("redis unreachable; default lookups will hit the store")
	}
	a.redis = c
	return c
}

func (a *Application) buildAudit() (*httpapi.AuditLog, error) {
	var sink httpapi.AuditSink
	if a.cfg.Audit.FilePath != "" {
		fileSink, err := httpapi.NewFileAuditSink(a.cfg.Audit.FilePath)
		if err != nil {
			return nil, err
		}
		a.auditSink = fileSink
		sink = fileSink
	}
	return httpapi.NewAuditLog(a.cfg.Audit.Capacity, sink), nil
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.Driver == "" {
		return nil, fmt.Errorf("database driver not configured")
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn not configured")
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

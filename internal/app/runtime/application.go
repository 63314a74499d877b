// Package runtime turns configuration into live database, cache, media and
// HTTP handles and runs the web, worker and beat processes on top of them.
package runtime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/sentinel/internal/app"
	"github.com/R3E-Network/sentinel/internal/app/assets"
	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	"github.com/R3E-Network/sentinel/internal/app/domain/notification"
	"github.com/R3E-Network/sentinel/internal/app/httpapi"
	"github.com/R3E-Network/sentinel/internal/app/media"
	"github.com/R3E-Network/sentinel/internal/app/services/admin"
	"github.com/R3E-Network/sentinel/internal/app/services/cameras"
	"github.com/R3E-Network/sentinel/internal/app/services/notifications"
	"github.com/R3E-Network/sentinel/internal/app/storage"
	"github.com/R3E-Network/sentinel/internal/app/storage/postgres"
	"github.com/R3E-Network/sentinel/internal/app/tasks"
	"github.com/R3E-Network/sentinel/internal/config"
	"github.com/R3E-Network/sentinel/internal/logging"
	"github.com/R3E-Network/sentinel/internal/platform/migrations"
)

// Application wires core dependencies and manages the process lifecycle.
type Application struct {
	cfg   *config.Config
	log   *logging.Logger
	db    *sql.DB
	redis *redis.Client
	store *postgres.Store
	app   *app.Application
}

// NewApplication opens the database and Redis handles and builds the
// services. Connections are established lazily; call WaitReady before use.
func NewApplication(cfg *config.Config, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.NewDefault("sentinel")
	}

	db, err := postgres.Open(cfg.Database.DSN(), cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)

	detectors, err := config.LoadDetectors(cfg.DetectorsConfig, cfg.Paths.ModelsDir)
	if err != nil {
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("load detectors: %w", err)
	}

	store := postgres.New(db)
	stores := app.Stores{
		Users:         store,
		Cameras:       store,
		Alerts:        store,
		Faces:         store,
		Notifications: store,
		Admin:         store,
	}
	application, err := app.New(stores, app.Options{
		JWTSecret:  cfg.Auth.JWTSecret,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
		Redis:      rdb,
		Broker:     tasks.NewRedisBroker(rdb, cfg.Worker.Queue),
		Files:      media.New(cfg.Paths.MediaRoot),
		Prober:     cameras.NewNetProber(cameras.DefaultProbeTimeout),
		Host:       admin.NewSystemHost(cfg.Paths.MediaRoot),
		Detectors:  detectors,
		Senders:    senders(cfg, log),
		Version:    cfg.Version,
		Location:   cfg.Location(),
	}, log)
	if err != nil {
		db.Close()
		rdb.Close()
		return nil, err
	}

	return &Application{cfg: cfg, log: log, db: db, redis: rdb, store: store, app: application}, nil
}

// senders picks the delivery channel implementations from configuration.
// Channels left out fall back to logging.
func senders(cfg *config.Config, log *logging.Logger) map[notification.Channel]notifications.Sender {
	if log == nil {
		log = logging.NewDefault("runtime")
	}
	out := map[notification.Channel]notifications.Sender{}
	if cfg.Email.Enabled() {
		out[notification.ChannelEmail] = notifications.NewSMTPSender(notifications.SMTPConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
		})
	} else {
		log.Warn("SMTP_HOST not set; email notifications are logged only")
	}
	if cfg.Push.WebhookURL != "" {
		out[notification.ChannelPush] = notifications.NewWebhookSender(cfg.Push.WebhookURL, cfg.Push.WebhookToken)
	}
	return out
}

// App exposes the composed services.
func (a *Application) App() *app.Application { return a.app }

func (a *Application) pingRedis(ctx context.Context) error {
	return a.redis.Ping(ctx).Err()
}

// WaitReady blocks until PostgreSQL and Redis answer pings.
func (a *Application) WaitReady(ctx context.Context) error {
	return WaitReady(ctx, a.cfg.Readiness, a.log.Named("readiness"),
		Check{Name: "database", Ping: a.store.Ping},
		Check{Name: "cache", Ping: a.pingRedis},
	)
}

// PrepareDirs creates the media, models and log directories.
func (a *Application) PrepareDirs() error {
	if err := a.app.Files.Prepare(config.MediaDirs...); err != nil {
		return err
	}
	for _, dir := range []string{a.cfg.Paths.ModelsDir, a.cfg.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// Migrate applies pending schema migrations.
func (a *Application) Migrate() error {
	return migrations.Apply(a.cfg.Database.DSN())
}

// CollectStatic copies the embedded static files into STATIC_ROOT.
func (a *Application) CollectStatic() error {
	n, err := assets.Collect(a.cfg.Paths.StaticRoot)
	if err != nil {
		return err
	}
	a.log.WithField("files", n).WithField("dir", a.cfg.Paths.StaticRoot).Info("static files collected")
	return nil
}

// CreateSuperuser creates an administrator account.
func (a *Application) CreateSuperuser(ctx context.Context, email, password, fullName string) (account.User, error) {
	return a.app.Accounts.CreateSuperuser(ctx, email, password, fullName)
}

// Serve runs the HTTP API until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	handler, err := httpapi.NewHandler(ctx, httpapi.Dependencies{
		Accounts:      a.app.Accounts,
		Cameras:       a.app.Cameras,
		Alerts:        a.app.Alerts,
		Faces:         a.app.Faces,
		Notifications: a.app.Notifications,
		Admin:         a.app.Admin,
		Hub:           a.app.Hub,
		Files:         a.app.Files,
		Health: map[string]storage.Pinger{
			"database": a.store,
			"cache":    pingerFunc(a.pingRedis),
		},
		StaticRoot:     a.cfg.Paths.StaticRoot,
		AuditLogPath:   a.cfg.Paths.LogDir + "/admin-audit.jsonl",
		AllowedOrigins: a.cfg.HTTP.AllowedOrigins(),
		RateLimitRPS:   float64(a.cfg.HTTP.RateLimitRPS),
		RateLimitBurst: a.cfg.HTTP.RateLimitBurst,
	}, a.log.Named("http"))
	if err != nil {
		return fmt.Errorf("build http handler: %w", err)
	}

	if err := a.app.Attach(a.app.Hub); err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a.run(ctx, func(errCh chan<- error) {
		a.log.WithField("addr", srv.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}, func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})
}

// RunWorker consumes tasks until ctx is cancelled.
func (a *Application) RunWorker(ctx context.Context) error {
	if err := a.app.Attach(a.app.NewWorker(a.cfg.Worker.Concurrency)); err != nil {
		return err
	}
	return a.run(ctx, nil, nil)
}

// RunBeat enqueues the periodic tasks until ctx is cancelled.
func (a *Application) RunBeat(ctx context.Context) error {
	scheduler, err := a.app.NewScheduler()
	if err != nil {
		return err
	}
	if err := a.app.Attach(scheduler); err != nil {
		return err
	}
	return a.run(ctx, nil, nil)
}

// run starts the managed services, optionally a blocking server, and waits
// for ctx or a server error before shutting everything down.
func (a *Application) run(ctx context.Context, serve func(chan<- error), shutdown func(context.Context) error) error {
	if err := a.app.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	if serve != nil {
		go serve(errCh)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdown != nil {
		if err := shutdown(shutdownCtx); err != nil {
			a.log.WithError(err).Warn("server shutdown")
		}
	}
	if err := a.app.Stop(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("stop services")
	}
	return runErr
}

// Close releases the database and Redis handles.
func (a *Application) Close() error {
	var errs []error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

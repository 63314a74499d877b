package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/R3E-Network/sentinel/internal/app/domain/notification"
	"github.com/R3E-Network/sentinel/internal/app/media"
	"github.com/R3E-Network/sentinel/internal/app/realtime"
	"github.com/R3E-Network/sentinel/internal/app/services/accounts"
	"github.com/R3E-Network/sentinel/internal/app/services/admin"
	"github.com/R3E-Network/sentinel/internal/app/services/alerts"
	"github.com/R3E-Network/sentinel/internal/app/services/cameras"
	"github.com/R3E-Network/sentinel/internal/app/services/faces"
	"github.com/R3E-Network/sentinel/internal/app/services/notifications"
	"github.com/R3E-Network/sentinel/internal/app/storage"
	"github.com/R3E-Network/sentinel/internal/app/storage/memory"
	"github.com/R3E-Network/sentinel/internal/app/system"
	"github.com/R3E-Network/sentinel/internal/app/tasks"
	"github.com/R3E-Network/sentinel/internal/config"
	"github.com/R3E-Network/sentinel/internal/logging"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Users         storage.UserStore
	Cameras       storage.CameraStore
	Alerts        storage.AlertStore
	Faces         storage.FaceStore
	Notifications storage.NotificationStore
	Admin         storage.AdminStore
}

// Options carries the infrastructure the services are built on. Zero values
// select in-process fallbacks: a memory token blacklist and task broker, a
// local realtime hub and log senders for every notification channel.
type Options struct {
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	Redis  *redis.Client
	Broker tasks.Broker
	Files  *media.Store

	Prober    cameras.Prober
	Locator   faces.Locator
	Host      admin.HostStats
	Detectors map[string]config.Detector
	Senders   map[notification.Channel]notifications.Sender

	Version  string
	Location *time.Location
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logging.Logger

	Accounts      *accounts.Service
	Cameras       *cameras.Service
	Alerts        *alerts.Service
	Faces         *faces.Service
	Notifications *notifications.Service
	Admin         *admin.Service

	Hub    *realtime.Hub
	Queue  *tasks.Queue
	Broker tasks.Broker
	Files  *media.Store
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.NewDefault("app")
	}
	if opts.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}

	mem := memory.New()
	if stores.Users == nil {
		stores.Users = mem
	}
	if stores.Cameras == nil {
		stores.Cameras = mem
	}
	if stores.Alerts == nil {
		stores.Alerts = mem
	}
	if stores.Faces == nil {
		stores.Faces = mem
	}
	if stores.Notifications == nil {
		stores.Notifications = mem
	}
	if stores.Admin == nil {
		stores.Admin = mem
	}

	var blacklist accounts.Blacklist = accounts.NewMemoryBlacklist()
	if opts.Redis != nil {
		blacklist = accounts.NewRedisBlacklist(opts.Redis)
	}
	if opts.Broker == nil {
		log.Warn("no task broker configured; using in-process queue")
		opts.Broker = tasks.NewMemoryBroker()
	}
	if opts.Files == nil {
		return nil, fmt.Errorf("media store is required")
	}
	if opts.Detectors == nil {
		opts.Detectors = config.DefaultDetectors("")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	tokens := accounts.NewTokenManager(opts.JWTSecret, opts.AccessTTL, opts.RefreshTTL, blacklist)
	queue := tasks.NewQueue(opts.Broker)
	hub := realtime.NewHub(opts.Redis, log.Named("realtime"))

	acctService := accounts.New(stores.Users, tokens, log.Named("accounts"))
	camService := cameras.New(stores.Cameras, opts.Prober, log.Named("cameras"))

	alertService := alerts.New(stores.Alerts, stores.Cameras, stores.Users, opts.Files, log.Named("alerts"))
	alertService.WithQueue(queue)
	alertService.WithPublisher(hub)
	alertService.WithLocation(opts.Location)

	faceService := faces.New(stores.Faces, stores.Cameras, opts.Files, faces.NewEncoder(opts.Locator), log.Named("faces"))
	faceService.WithAlerts(alertService)

	notifyService := notifications.New(stores.Notifications, stores.Users, stores.Alerts, stores.Cameras, opts.Senders, log.Named("notifications"))
	notifyService.WithLocation(opts.Location)

	adminService := admin.New(admin.Stores{
		Users:   stores.Users,
		Cameras: stores.Cameras,
		Alerts:  stores.Alerts,
		Admin:   stores.Admin,
	}, opts.Host, admin.NewDetectors(opts.Detectors), opts.Version, log.Named("admin"))
	adminService.WithLocation(opts.Location)

	return &Application{
		manager:       system.NewManager(),
		log:           log,
		Accounts:      acctService,
		Cameras:       camService,
		Alerts:        alertService,
		Faces:         faceService,
		Notifications: notifyService,
		Admin:         adminService,
		Hub:           hub,
		Queue:         queue,
		Broker:        opts.Broker,
		Files:         opts.Files,
	}, nil
}

// NewWorker returns a task worker with every handler registered.
func (a *Application) NewWorker(concurrency int) *tasks.Worker {
	w := tasks.NewWorker(a.Broker, concurrency, a.log.Named("worker"))
	tasks.Register(w, tasks.Services{Cameras: a.Cameras, Admin: a.Admin, Notifications: a.Notifications}, a.log.Named("tasks"))
	return w
}

// NewScheduler returns a scheduler loaded with the default periodic tasks.
func (a *Application) NewScheduler() (*tasks.Scheduler, error) {
	s := tasks.NewScheduler(a.Queue, a.log.Named("beat"))
	for _, e := range tasks.DefaultSchedule() {
		if err := s.Add(e); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", e.Task, err)
		}
	}
	return s, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

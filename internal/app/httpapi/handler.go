// Package httpapi exposes the REST API, the alert websocket and the static
// and media file routes.
package httpapi

import (
	"context"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/sentinel/internal/app/domain/account"
	"github.com/R3E-Network/sentinel/internal/app/media"
	"github.com/R3E-Network/sentinel/internal/app/metrics"
	"github.com/R3E-Network/sentinel/internal/app/realtime"
	"github.com/R3E-Network/sentinel/internal/app/services/accounts"
	adminsvc "github.com/R3E-Network/sentinel/internal/app/services/admin"
	"github.com/R3E-Network/sentinel/internal/app/services/alerts"
	"github.com/R3E-Network/sentinel/internal/app/services/cameras"
	"github.com/R3E-Network/sentinel/internal/app/services/faces"
	"github.com/R3E-Network/sentinel/internal/app/services/notifications"
	"github.com/R3E-Network/sentinel/internal/app/storage"
	apperrors "github.com/R3E-Network/sentinel/internal/errors"
	"github.com/R3E-Network/sentinel/internal/httputil"
	"github.com/R3E-Network/sentinel/internal/logging"
	"github.com/R3E-Network/sentinel/internal/middleware"
)

// Dependencies are the services behind the API.
type Dependencies struct {
	Accounts      *accounts.Service
	Cameras       *cameras.Service
	Alerts        *alerts.Service
	Faces         *faces.Service
	Notifications *notifications.Service
	Admin         *adminsvc.Service
	Hub           *realtime.Hub
	Files         *media.Store

	// Health lists the backing stores probed by /healthz, keyed by the name
	// reported in the response.
	Health map[string]storage.Pinger

	StaticRoot     string
	AuditLogPath   string
	AllowedOrigins []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	deps  Dependencies
	log   *logging.Logger
	audit *auditLog
}

// publicPaths are reachable without an access token.
var publicPaths = []string{
	"/api/auth/register/",
	"/api/auth/test-register/",
	"/api/auth/login/",
	"/api/auth/token/refresh/",
}

// NewHandler returns the API router wrapped in the middleware chain. ctx
// bounds background housekeeping such as rate limiter cleanup.
func NewHandler(ctx context.Context, deps Dependencies, log *logging.Logger) (http.Handler, error) {
	if log == nil {
		log = logging.NewDefault("http")
	}
	sink, err := newFileAuditSink(deps.AuditLogPath)
	if err != nil {
		return nil, err
	}
	h := &handler{deps: deps, log: log, audit: newAuditLog(500, sink)}

	r := mux.NewRouter().StrictSlash(true)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	if deps.StaticRoot != "" {
		r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(deps.StaticRoot))))
	}
	if deps.Files != nil {
		r.PathPrefix("/media/").Handler(http.StripPrefix("/media/", http.FileServer(http.Dir(deps.Files.Root()))))
	}

	api := r.PathPrefix("/api").Subrouter()
	auth := middleware.NewAuthMiddleware(deps.Accounts, log.Named("auth"), publicPaths)
	api.Use(auth.Handler)
	if deps.RateLimitRPS > 0 {
		limiter := middleware.NewRateLimiter(deps.RateLimitRPS, deps.RateLimitBurst, log.Named("ratelimit"))
		limiter.StartCleanup(ctx, time.Minute)
		api.Use(limiter.Handler)
	}

	h.authRoutes(api)
	h.cameraRoutes(api)
	h.alertRoutes(api)
	h.faceRoutes(api)
	h.notificationRoutes(api)

	adm := api.PathPrefix("/admin").Subrouter()
	adm.Use(middleware.RequireAdmin, h.audit.middleware)
	h.adminRoutes(adm)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, apperrors.NotFound(""))
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteError(w, apperrors.MethodNotAllowed(req.Method))
	})

	cors := middleware.NewCORSMiddleware(deps.AllowedOrigins)
	if deps.Hub != nil {
		deps.Hub.SetOriginCheck(func(req *http.Request) bool {
			origin := req.Header.Get("Origin")
			return origin == "" || cors.Allowed(origin)
		})
	}
	tracing := middleware.NewTracingMiddleware(log)

	var out http.Handler = r
	out = cors.Handler(out)
	out = middleware.MetricsMiddleware()(out)
	out = middleware.RecoveryMiddleware(log)(out)
	out = tracing.Handler(out)
	return out, nil
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	body := map[string]string{"status": "ok"}
	status := http.StatusOK
	for name, p := range h.deps.Health {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			h.log.WithError(err).WithField("dependency", name).Warn("health check failed")
			body[name] = "unavailable"
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		body[name] = "ok"
	}
	httputil.WriteJSON(w, status, body)
}

// --- helpers ------------------------------------------------------------------

func principal(r *http.Request) account.Principal {
	p, _ := middleware.PrincipalFrom(r.Context())
	return p
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NotFound("")
	}
	return id, nil
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}

func queryBool(r *http.Request, name string) *bool {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil
	}
	return &v
}

func partial(r *http.Request) bool { return r.Method == http.MethodPatch }

func ok(w http.ResponseWriter, data interface{}, message string) {
	httputil.Success(w, http.StatusOK, data, message)
}

func created(w http.ResponseWriter, data interface{}, message string) {
	httputil.Success(w, http.StatusCreated, data, message)
}

func fail(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

// page writes a paginated list. A page past the end is a 404.
func page(w http.ResponseWriter, r *http.Request, pr httputil.PageRequest, total int, results interface{}, message string) {
	if _, _, err := pr.Window(total); err != nil {
		fail(w, err)
		return
	}
	ok(w, httputil.NewPage(r, pr, total, results), message)
}

// saveUpload stores the multipart file field under subdir and returns its
// media path, or "" when the field is absent.
func (h *handler) saveUpload(r *http.Request, field, subdir string) (string, error) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return "", nil
	}
	if err != nil {
		return "", apperrors.Validation(apperrors.Field(field, "The submitted data was not a file."))
	}
	defer file.Close()
	rel, err := h.deps.Files.Save(subdir, filepath.Base(header.Filename), file)
	if err != nil {
		return "", apperrors.Internal("", err)
	}
	return rel, nil
}

func isMultipart(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return len(ct) >= 19 && ct[:19] == "multipart/form-data"
}

func parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return apperrors.BadRequest("Validation error.", "Could not parse multipart form.")
	}
	return nil
}

func formString(r *http.Request, name string) *string {
	if r.MultipartForm == nil {
		return nil
	}
	vals, ok := r.MultipartForm.Value[name]
	if !ok || len(vals) == 0 {
		return nil
	}
	return &vals[0]
}

func formBool(r *http.Request, name string) *bool {
	s := formString(r, name)
	if s == nil {
		return nil
	}
	v, err := strconv.ParseBool(*s)
	if err != nil {
		return nil
	}
	return &v
}

func formFloat(r *http.Request, name string) (*float64, error) {
	s := formString(r, name)
	if s == nil || *s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(*s, 64)
	if err != nil {
		return nil, apperrors.Validation(apperrors.Field(name, "A valid number is required."))
	}
	return &v, nil
}

func formInt64(r *http.Request, name string) (*int64, error) {
	s := formString(r, name)
	if s == nil || *s == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(*s, 10, 64)
	if err != nil {
		return nil, apperrors.Validation(apperrors.Field(name, "A valid integer is required."))
	}
	return &v, nil
}

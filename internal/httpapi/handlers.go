// Package httpapi exposes the REST surface of the API on a chi router.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"geovisor.org/internal/auth"
	"geovisor.org/internal/notifications"
	"geovisor.org/internal/obs"
	"geovisor.org/internal/reports"
	"geovisor.org/internal/store"
	"geovisor.org/internal/stream"
)

const serviceName = "geovisor-api"

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReferenceData serves the read-only catalogs and the infrastructure layer.
type ReferenceData interface {
	ListCatalog(ctx context.Context, c store.Catalog) ([]store.CatalogEntry, error)
	ListInfrastructure(ctx context.Context) ([]store.Infrastructure, error)
}

// LoginService exchanges credentials for a token.
type LoginService interface {
	Login(ctx context.Context, email, password string) (auth.LoginResult, error)
}

// Deps are the collaborators the HTTP layer is built on.
type Deps struct {
	Login         LoginService
	Resolver      IdentityResolver
	Reports       *reports.Service
	Notifications *notifications.Service
	Reference     ReferenceData
	Ready         Pinger
	Events        *stream.Stream
	Version       string
}

// API is the HTTP layer.
type API struct {
	deps         Deps
	rateBurst    int
	ratePerSec   float64
	maxBodyBytes int64
	corsOrigins  []string
	trusted      []netip.Prefix
	heartbeat    time.Duration
}

// Option configures API behavior.
type Option func(*API)

// WithLoginRateLimit bounds login attempts per client IP.
func WithLoginRateLimit(burst int, perSecond float64) Option {
	return func(a *API) {
		a.rateBurst = burst
		a.ratePerSec = perSecond
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// WithCORSOrigins sets the browser origins allowed to call the API.
func WithCORSOrigins(origins []string) Option {
	return func(a *API) {
		a.corsOrigins = origins
	}
}

// WithTrustedProxies lists the peers whose X-Forwarded-For header names the
// client. Without it the TCP peer is the client.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.trusted = prefixes
	}
}

// WithHeartbeat sets the keep-alive interval of the event stream.
func WithHeartbeat(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.heartbeat = d
		}
	}
}

func New(deps Deps, opts ...Option) *API {
	a := &API{
		deps:         deps,
		rateBurst:    10,
		ratePerSec:   1,
		maxBodyBytes: 1 << 20,
		heartbeat:    25 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler builds the router with the full middleware chain.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(RealIP(a.trusted), RequestID, Logging, obs.Instrument, SecurityHeaders, CORS(a.corsOrigins), MaxBodyBytes(a.maxBodyBytes))
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
	})

	r.Get("/", a.Root)
	r.Get("/health", a.Health)
	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Method(http.MethodGet, "/metrics", obs.Handler())

	r.Get("/catalogos/{name}", a.listCatalog)
	r.Get("/infraestructura", a.listInfrastructure)

	r.With(RateLimit(a.rateBurst, a.ratePerSec)).Post("/auth/login", a.login)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(a.deps.Resolver))
		r.Get("/auth/me", a.me)

		r.Group(func(r chi.Router) {
			r.Use(RequireActive)

			r.Route("/reportes", func(r chi.Router) {
				r.Get("/", a.listReports)
				r.With(RequireRole(auth.RoleCitizen, auth.RoleEntity)).Post("/", a.createReport)
				r.Get("/eventos", a.streamEvents)
				r.Get("/{id}", a.getReport)
				r.With(RequireRole(auth.RoleEntity, auth.RoleModerator, auth.RoleAdministrator)).
					Put("/{id}/estado", a.changeReportStatus)
				r.Get("/{id}/historial", a.reportHistory)
			})

			r.Get("/notificaciones", a.listNotifications)
			r.Put("/notificaciones/{id}/leer", a.markNotification)
		})
	})
	return r
}

func (a *API) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"message": "Geovisor API running"})
}

func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.deps.Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready pings the database.
func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if a.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.deps.Ready.Ping(ctx); err != nil {
			obs.SetReady(false)
			obs.Logger().WarnContext(r.Context(), "readiness_failed", "error", err.Error())
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
			return
		}
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

var errBodyRequired = errors.New("request body is required")

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errBodyRequired
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return id, nil
}

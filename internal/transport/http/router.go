package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idvault/internal/platform/metrics"
)

// Sessions combines the auth endpoints' service surface with token
// validation for the middleware. The session manager satisfies both.
type Sessions interface {
	SessionService
	TokenValidator
}

// Config carries the wired services the router exposes. Metrics and
// Gatherer may be nil, which disables the latency histogram and /metrics.
type Config struct {
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	Sessions      Sessions
	Identities    IdentityService
	Verifications VerificationService
	Credentials   CredentialService
	Grants        GrantService
}

// NewRouter assembles the full HTTP surface. Login and refresh are the only
// unauthenticated v1 endpoints; everything else requires a live session.
func NewRouter(cfg Config) http.Handler {
	auth := NewAuthHandler(cfg.Sessions, cfg.Logger)
	identities := NewIdentityHandler(cfg.Identities, cfg.Logger)
	verifications := NewVerificationHandler(cfg.Verifications, cfg.Logger)
	credentials := NewCredentialHandler(cfg.Credentials, cfg.Logger)
	grants := NewGrantHandler(cfg.Grants, cfg.Logger)

	r := chi.NewRouter()
	r.Use(Recovery(cfg.Logger))
	r.Use(RequestID)
	r.Use(RequestTime)
	r.Use(Logger(cfg.Logger))
	r.Use(Latency(cfg.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", auth.handleLogin)
		r.Post("/auth/refresh", auth.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(cfg.Sessions, cfg.Logger))

			r.Post("/auth/logout", auth.handleLogout)
			r.Post("/auth/logout_all", auth.handleLogoutAll)

			r.Post("/identities", identities.handleRegister)
			r.Get("/identities/me", identities.handleGet)
			r.Post("/identities/me/rotate", identities.handleRotate)
			r.Post("/identities/me/recover", identities.handleRecover)

			r.Post("/verifications", verifications.handleSubmit)
			r.Get("/verifications", verifications.handleList)
			r.Get("/verifications/{id}", verifications.handleGet)

			r.Post("/credentials", credentials.handleIssue)
			r.Get("/credentials", credentials.handleList)
			r.Get("/credentials/{address}", credentials.handleGet)
			r.Post("/credentials/{address}/revoke", credentials.handleRevoke)

			r.Post("/grants", grants.handleCreate)
			r.Get("/grants", grants.handleList)
			r.Get("/grants/{address}", grants.handleGet)
			r.Post("/grants/{address}/revoke", grants.handleRevoke)
			r.Get("/grants/{address}/disclosable", grants.handleDisclosable)
		})
	})
	return r
}

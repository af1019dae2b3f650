package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/stackshot/crashd/internal/api/middleware"
	"github.com/stackshot/crashd/internal/api/response"
	"github.com/stackshot/crashd/internal/metrics"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	QueueAuth *mw.BasicAuth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	// Worker-facing task queue surface (plain text wire contract).
	TodoHandler      http.HandlerFunc
	CrashDataHandler http.HandlerFunc
	UpdateHandler    http.HandlerFunc

	// Admin API.
	RegroupHandler     http.HandlerFunc
	ListGroupsHandler  http.HandlerFunc
	UpdateGroupHandler http.HandlerFunc
	ListCrashesHandler http.HandlerFunc
	GetCrashHandler    http.HandlerFunc
	FinalizeHandler    http.HandlerFunc
	CreateKeyHandler   http.HandlerFunc
	ListKeysHandler    http.HandlerFunc
	RevokeKeyHandler   http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)
	r.Use(metrics.Middleware)

	// Public health check and metrics
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Worker task queue. Paths and payloads are a fixed wire contract;
	// basic auth is optional and configured at deploy time.
	r.Group(func(r chi.Router) {
		if deps.QueueAuth != nil {
			r.Use(deps.QueueAuth.Require)
		}
		r.Get("/symbolicate/todo", orNotImplemented(deps.TodoHandler))
		r.Get("/symbolicate/crash/{id}", orNotImplemented(deps.CrashDataHandler))
		r.Post("/symbolicate/update", orNotImplemented(deps.UpdateHandler))
	})

	// Admin API
	r.Group(func(r chi.Router) {
		if deps.Auth != nil {
			r.Use(deps.Auth.Authenticate)
		}
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		r.Get("/api/v1/groups", orNotImplemented(deps.ListGroupsHandler))
		r.Get("/api/v1/crashes", orNotImplemented(deps.ListCrashesHandler))
		r.Get("/api/v1/crashes/{id}", orNotImplemented(deps.GetCrashHandler))

		r.Group(func(r chi.Router) {
			if deps.Auth != nil {
				r.Use(deps.Auth.RequireScope("admin"))
			}

			r.Post("/api/v1/admin/regroup", orNotImplemented(deps.RegroupHandler))
			r.Patch("/api/v1/groups/{groupID}", orNotImplemented(deps.UpdateGroupHandler))
			r.Post("/api/v1/crashes/{id}/finalize", orNotImplemented(deps.FinalizeHandler))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}

package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	addresshandler "pidgate/internal/address/handler"
	accesshandler "pidgate/internal/access/handler"
	"pidgate/internal/platform/metrics"
	proofhandler "pidgate/internal/proof/handler"
	"pidgate/internal/ratelimit"
	sessionhandler "pidgate/internal/session/handler"
	dErrors "pidgate/pkg/domain-errors"
	"pidgate/pkg/platform/httputil"
	"pidgate/pkg/platform/middleware/admin"
	"pidgate/pkg/platform/middleware/auth"
	"pidgate/pkg/platform/middleware/metadata"
	"pidgate/pkg/platform/middleware/request"
	"pidgate/pkg/platform/middleware/requesttime"
)

// Dependencies are the handlers and guards the router mounts. Nil handlers
// are skipped.
type Dependencies struct {
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Principals auth.Validator
	Providers  auth.Validator
	AdminToken string
	Health     func(ctx context.Context) error
	RateLimit  *ratelimit.Middleware

	Addresses *addresshandler.Handler
	Proofs    *proofhandler.Handler
	Sessions  *sessionhandler.Handler
	Access    *accesshandler.Handler
	State     *StateHandler
}

// NewRouter wires every public, provider, carrier and admin endpoint. The transport
// layer only routes and guards; handlers delegate to domain services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware)
	}

	r.Get("/healthz", healthz(deps.Health))
	r.Handle("/metrics", promhttp.Handler())

	if deps.Addresses != nil {
		r.Group(func(r chi.Router) {
			limit(r, deps.RateLimit, ratelimit.ClassAddress)
			r.Use(auth.RequirePrincipal(deps.Providers, deps.Logger))
			deps.Addresses.Register(r)
		})
	}
	if deps.Proofs != nil {
		r.Group(func(r chi.Router) {
			limit(r, deps.RateLimit, ratelimit.ClassProof)
			deps.Proofs.Register(r)
		})
	}
	if deps.Sessions != nil {
		r.Group(func(r chi.Router) {
			limit(r, deps.RateLimit, ratelimit.ClassSession)
			deps.Sessions.Register(r)
		})
	}
	if deps.State != nil {
		deps.State.Register(r)
	}

	if deps.Access != nil {
		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePrincipal(deps.Principals, deps.Logger))
			deps.Access.Register(r)
		})
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(deps.AdminToken, deps.Logger))
			deps.Access.RegisterAdmin(r)
		})
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(r.Context(), w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})
	return r
}

func limit(r chi.Router, mw *ratelimit.Middleware, class ratelimit.Class) {
	if mw != nil {
		r.Use(mw.RateLimit(class))
	}
}

func healthz(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if check != nil {
			if err := check(ctx); err != nil {
				httputil.WriteError(ctx, w, dErrors.Wrap(err, dErrors.CodeUnavailable, "dependency unavailable"))
				return
			}
		}
		httputil.WriteJSON(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

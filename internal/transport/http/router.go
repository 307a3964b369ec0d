// Package httptransport is the thin HTTP layer. Handlers decode, delegate to
// the domain services, and translate typed errors to statuses; no business
// logic lives here.
package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bioanchor/pkg/platform/middleware/auth"
)

// Deps carries the wired services and platform pieces the router mounts.
type Deps struct {
	Identity  IdentityService
	Biometric BiometricService
	Fraud     FraudService
	Tokens    auth.TokenValidator
	Logger    *slog.Logger
}

// NewRouter wires all endpoints. Reads that serve verifiers (DID lookup and
// verification, biometric verification) are public; writes and operator
// endpoints require a bearer token.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	identity := &IdentityHandler{service: deps.Identity, logger: deps.Logger}
	biometric := &BiometricHandler{service: deps.Biometric, logger: deps.Logger}
	fraud := &FraudHandler{service: deps.Fraud, logger: deps.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Public verifier surface.
	r.Get("/identity/{did}", identity.HandleGet)
	r.Post("/identity/{did}/verify", identity.HandleVerify)
	r.Post("/biometric/verify", biometric.HandleVerify)

	// Authenticated surface.
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(deps.Tokens, deps.Logger))

		r.Post("/identity", identity.HandleCreate)
		r.Get("/identity", identity.HandleList)
		r.Put("/identity/{did}", identity.HandleUpdate)
		r.Post("/biometric/register", biometric.HandleRegister)
		r.Post("/fraud/report", fraud.HandleReport)
		r.Post("/fraud/risk", fraud.HandleScore)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Get("/fraud/reports", fraud.HandleListReports)
		})
	})

	return r
}

package httpapi

import (
	stdhttp "net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Jujubee-LLM/signature-ai/internal/http/handlers"
	"github.com/Jujubee-LLM/signature-ai/internal/middleware"
)

// NewRouter builds the API surface. User routes resolve an anonymous
// identity; admin routes need the operator bearer token and bypass the
// per-user quota path entirely.
func NewRouter(app *handlers.App, adminToken string, logger zerolog.Logger) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, chimw.RealIP, chimw.Recoverer, middleware.Logger(logger))

	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Identity)

		r.Get("/v1/quota", app.GetQuota)
		r.Post("/v1/quota/consume", app.ConsumeQuota)
		r.Post("/v1/quota/refund", app.RefundQuota)
		r.Post("/v1/redeem", app.PostRedeem)
	})

	r.Route("/v1/admin", func(r chi.Router) {
		r.Use(middleware.AdminAuth(adminToken))

		r.Post("/codes", app.CreateCode)
		r.Post("/codes/batch", app.CreateCodeBatch)
		r.Get("/codes", app.ListCodes)
		r.Get("/codes/{code}", app.GetCode)
		r.Patch("/codes/{code}", app.SetCodeActive)
		r.Post("/users/{id}/credits", app.GrantCredits)
		r.Get("/stats", app.AdminStats)
	})

	return r
}

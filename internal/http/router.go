package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/andreasstove999/agroflow-system/internal/auth"
)

func newBaseRouter(logger *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/health", Health)
	return r
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type RegistryRouterOptions struct {
	// Verifier guards the status callback; nil leaves it open.
	Verifier *auth.Verifier
	// Limiter throttles registration requests; nil disables throttling.
	Limiter *rate.Limiter
}

func NewRegistryRouter(h *RegistryHandler, opts RegistryRouterOptions) http.Handler {
	r := newBaseRouter(h.logger)

	r.Route("/agricultores", func(r chi.Router) {
		r.Get("/", h.ListFarmers)
		r.With(rateLimit(opts.Limiter)).Post("/", h.RegisterFarmer)
	})

	r.Route("/cosechas", func(r chi.Router) {
		r.With(rateLimit(opts.Limiter)).Post("/", h.RegisterHarvest)
		r.Get("/{id}", h.GetHarvest)
		r.With(serviceAuth(opts.Verifier, h.logger)).Put("/{id}/estado", h.UpdateStatus)
	})

	return r
}

func NewBillingRouter(h *BillingHandler) http.Handler {
	r := newBaseRouter(h.logger)
	r.Get("/facturas", h.ListInvoices)
	return r
}

func NewInventoryRouter(h *InventoryHandler) http.Handler {
	r := newBaseRouter(h.logger)
	r.Route("/insumos", func(r chi.Router) {
		r.Get("/", h.ListStock)
		r.Post("/ajuste", h.AdjustStock)
	})
	return r
}

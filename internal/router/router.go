package router

import (
	"net/http"

	"kart-checkout/internal/handler"
	"kart-checkout/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// New creates a new HTTP router with all routes and middleware configured.
func New(
	checkoutHandler *handler.CheckoutHandler,
	apiKey string,
	logger zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Apply middleware in order: Recovery -> Logging -> CORS -> APIKeyAuth
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS)
	r.Use(middleware.APIKeyAuth(apiKey, logger))

	// Health check endpoint (no authentication required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy"}`))
	})

	r.Route("/api/checkout", func(r chi.Router) {
		r.Post("/", checkoutHandler.Create)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", checkoutHandler.Get)
			r.Delete("/", checkoutHandler.Delete)

			r.Post("/items", checkoutHandler.AddItem)
			r.Patch("/items/{productID}", checkoutHandler.UpdateItem)
			r.Delete("/items/{productID}", checkoutHandler.RemoveItem)

			r.Put("/contact", checkoutHandler.SetContact)
			r.Put("/account", checkoutHandler.SetAccount)
			r.Put("/shipping", checkoutHandler.SetShipping)
			r.Put("/payment", checkoutHandler.SetPayment)
			r.Post("/email-check", checkoutHandler.CheckEmail)

			r.Post("/coupon", checkoutHandler.ApplyCoupon)
			r.Delete("/coupon", checkoutHandler.RemoveCoupon)

			r.Post("/advance", checkoutHandler.Advance)
			r.Post("/retreat", checkoutHandler.Retreat)
		})
	})

	return otelhttp.NewHandler(r, "kart-checkout")
}

package router

import (
	"chalet/internal/handlers/booking"
	"chalet/internal/handlers/pricing"
	"chalet/internal/handlers/webhook"
	"chalet/transport/http/middleware"

	"github.com/go-chi/chi/v5"
)

type DomainHandlers struct {
	Pricing pricing.Handler
	Booking booking.Handler
	Webhook webhook.Handler
}

type Router struct {
	DomainHandlers DomainHandlers
	Auth           middleware.Auth
}

func (r *Router) SetupRoutes(router chi.Router) {
	router.Route("/v1", func(routerGroup chi.Router) {
		r.DomainHandlers.Pricing.Router(routerGroup)
		r.DomainHandlers.Booking.Router(routerGroup)
		r.DomainHandlers.Webhook.Router(routerGroup)

		routerGroup.Route("/admin", func(adminGroup chi.Router) {
			adminGroup.Use(r.Auth.APIKey)

			r.DomainHandlers.Booking.AdminRouter(adminGroup)
			r.DomainHandlers.Pricing.AdminRouter(adminGroup)
		})
	})
}

func New(domainHandlers DomainHandlers, auth middleware.Auth) Router {
	return Router{
		DomainHandlers: domainHandlers,
		Auth:           auth,
	}
}

//go:build wireinject
// +build wireinject

package di

import (
	"chalet/config"
	"chalet/infras/kafka"
	"chalet/infras/otel"
	"chalet/infras/postgres"
	"chalet/infras/redis"
	"chalet/infras/stripe"
	"chalet/infras/uplisting"
	"chalet/shared/cache"
	"chalet/transport/http"
	"chalet/transport/http/middleware"
	"chalet/transport/http/router"

	alertService "chalet/internal/domains/alert/service"
	bookingRepository "chalet/internal/domains/booking/repository"
	bookingService "chalet/internal/domains/booking/service"
	calendarService "chalet/internal/domains/calendar/service"
	pricingService "chalet/internal/domains/pricing/service"
	validationService "chalet/internal/domains/validation/service"

	bookingHandler "chalet/internal/handlers/booking"
	pricingHandler "chalet/internal/handlers/pricing"
	webhookHandler "chalet/internal/handlers/webhook"

	"github.com/google/wire"
)

var configurations = wire.NewSet(
	config.Get,
)

var infrastructures = wire.NewSet(
	postgres.New,
	otel.New,
	redis.New,
	kafka.New,
	uplisting.New,
	stripe.New,
)

var middlewares = wire.NewSet(
	newRateLimiter,
	middleware.NewAppMiddleware,
	middleware.NewAuthMiddleware,
)

var sharedHelpers = wire.NewSet(
	cache.NewRedisCache,
)

var pricingDomain = wire.NewSet(
	validationService.New,
	calendarService.New,
	pricingService.New,
)

var bookingDomain = wire.NewSet(
	alertService.New,
	bookingRepository.New,
	bookingService.New,
)

var domains = wire.NewSet(
	pricingDomain,
	bookingDomain,
)

var routing = wire.NewSet(
	wire.Struct(new(router.DomainHandlers), "*"),
	pricingHandler.New,
	bookingHandler.New,
	webhookHandler.New,
	router.New,
)

func InitializeService() (*http.HTTP, error) {
	wire.Build(
		configurations,
		infrastructures,
		middlewares,
		sharedHelpers,
		domains,
		routing,
		http.New,
	)

	return &http.HTTP{}, nil
}

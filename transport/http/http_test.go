package http_test

import (
	"chalet/config"
	"chalet/infras/otel/mocks"
	alertMocks "chalet/internal/domains/alert/mocks"
	bookingMocks "chalet/internal/domains/booking/mocks"
	"chalet/internal/domains/booking/model/dto"
	calendarMocks "chalet/internal/domains/calendar/mocks"
	pricingMocks "chalet/internal/domains/pricing/mocks"
	"chalet/internal/handlers/booking"
	"chalet/internal/handlers/pricing"
	"chalet/internal/handlers/webhook"
	"chalet/shared/constant"
	"chalet/shared/ratelimit"
	transport "chalet/transport/http"
	"chalet/transport/http/middleware"
	"chalet/transport/http/router"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newServer(t *testing.T, cfg *config.Config) (*transport.HTTP, *bookingMocks.MockBookingService) {
	ctrl := gomock.NewController(t)

	bookings := bookingMocks.NewMockBookingService(ctrl)
	otel := mocks.NewOtel()

	registry, err := ratelimit.NewRegistry(cfg)
	require.NoError(t, err)

	routes := router.New(router.DomainHandlers{
		Pricing: pricing.New(pricingMocks.NewMockPricing(ctrl), calendarMocks.NewMockCalendar(ctrl), otel),
		Booking: booking.New(bookings, otel),
		Webhook: webhook.New(bookings, otel),
	}, middleware.NewAuthMiddleware(otel, cfg))

	server := transport.New(cfg, routes, middleware.NewAppMiddleware(otel, cfg, registry), alertMocks.NewMockSink(ctrl), otel)

	return server, bookings
}

func newConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.RateLimiter.Enable = true
	cfg.App.RateLimiter.Capacity = 10
	cfg.App.RateLimiter.API.WindowMs = 60000
	cfg.App.RateLimiter.API.MaxRequests = 100
	cfg.App.RateLimiter.Form.WindowMs = 60000
	cfg.App.RateLimiter.Form.MaxRequests = 5
	cfg.App.RateLimiter.Payment.WindowMs = 60000
	cfg.App.RateLimiter.Payment.MaxRequests = 1

	return cfg
}

func TestHTTP_Health(t *testing.T) {
	server, _ := newServer(t, newConfig())

	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, transport.ServerStateReady, server.State())
}

func TestHTTP_Routes(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		headers  map[string]string
		wantCode int
	}{
		{name: "admin needs a key", method: http.MethodGet, path: "/v1/admin/bookings", wantCode: http.StatusUnauthorized},
		{name: "admin rejects a wrong key", method: http.MethodGet, path: "/v1/admin/bookings", headers: map[string]string{constant.RequestHeaderAPIKey: "nope"}, wantCode: http.StatusForbidden},
		{name: "unknown route", method: http.MethodGet, path: "/v1/rooms", wantCode: http.StatusNotFound},
		{name: "wrong method", method: http.MethodGet, path: "/v1/checkout", wantCode: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newServer(t, newConfig())

			request := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			for key, value := range tt.headers {
				request.Header.Set(key, value)
			}

			recorder := httptest.NewRecorder()
			server.ServeHTTP(recorder, request)

			assert.Equal(t, tt.wantCode, recorder.Code)
		})
	}
}

func TestHTTP_PaymentEndpointsAreRateLimited(t *testing.T) {
	server, bookings := newServer(t, newConfig())

	bookings.EXPECT().
		Submit(gomock.Any(), dto.SubmitRequest{PaymentIntentID: "pi_1"}).
		Return(dto.SubmitResponse{Success: true}, nil).
		Times(1)

	codes := make([]int, 0, 2)

	for range 2 {
		recorder := httptest.NewRecorder()
		server.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/v1/bookings", strings.NewReader(`{"payment_intent_id":"pi_1"}`)))

		codes = append(codes, recorder.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

package middleware

import (
	"chalet/config"
	"chalet/infras/otel"
	"chalet/shared/apikey"
	"chalet/shared/constant"
	"chalet/shared/failure"
	"chalet/transport/http/response"
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

const requestSourceOperator = "operator"

// Auth guards operator endpoints.
type Auth interface {
	APIKey(next http.Handler) http.Handler
}

type authImpl struct {
	otel otel.Otel
	cfg  *config.Config
}

func NewAuthMiddleware(otel otel.Otel, cfg *config.Config) Auth {
	return &authImpl{
		otel: otel,
		cfg:  cfg,
	}
}

// APIKey accepts requests whose X-API-Key matches the configured hash.
func (m *authImpl) APIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		ctx, scope := m.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, "api_key.middleware")

		key := request.Header.Get(constant.RequestHeaderAPIKey)
		if key == "" {
			err := failure.Unauthorized("Missing API key")
			scope.TraceError(err)
			scope.End()

			response.WithError(writer, err)

			return
		}

		if err := apikey.Verify(key, m.cfg.App.APIKeyHash); err != nil {
			if errors.Is(err, apikey.ErrMissingHash) {
				log.Error().Msg("operator endpoint called but no api key hash is configured")
			}

			scope.TraceError(err)
			scope.End()

			response.WithError(writer, failure.ForbiddenError)

			return
		}

		scope.SetAttribute("http.source", requestSourceOperator)
		scope.End()

		ctx = context.WithValue(ctx, constant.ContextKeyRequestSource, requestSourceOperator)

		next.ServeHTTP(writer, request.WithContext(ctx))
	})
}

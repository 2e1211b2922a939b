package middleware

import (
	"chalet/shared/constant"
	"chalet/shared/ratelimit"
	"chalet/transport/http/response"
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// RateLimit rejects requests over the budget of their endpoint class before they reach a
// handler.
func (a *appMiddleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if !a.config.App.RateLimiter.Enable {
			next.ServeHTTP(writer, request)

			return
		}

		identity := clientIdentity(request)
		class := ratelimit.Classify(request.URL.Path)
		result := a.limiter.Check(class, identity)

		writer.Header().Set(constant.RequestHeaderRateLimit, strconv.Itoa(result.Limit))
		writer.Header().Set(constant.RequestHeaderRateLimitRemaining, strconv.Itoa(result.Remaining))
		writer.Header().Set(constant.RequestHeaderRateLimitReset, strconv.FormatInt(result.ResetAt.Unix(), 10))

		if result.Limited {
			log.Warn().Str("identity", identity).Str("class", string(class)).Str("path", request.URL.Path).Msg("rate limit exceeded")

			response.WithRequestLimitExceeded(writer, result.RetryAfter(time.Now()))

			return
		}

		ctx := context.WithValue(request.Context(), constant.ContextKeyClientIdentity, identity)

		next.ServeHTTP(writer, request.WithContext(ctx))
	})
}

// clientIdentity is the first forwarded address, then X-Real-IP, then the peer host.
func clientIdentity(request *http.Request) string {
	if xff := request.Header.Get(constant.RequestHeaderForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if xri := strings.TrimSpace(request.Header.Get(constant.RequestHeaderRealIP)); xri != "" {
		return xri
	}

	if request.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(request.RemoteAddr)
		if err != nil {
			return request.RemoteAddr
		}

		return host
	}

	return constant.AnonymousIdentity
}

package di

import (
	"chalet/config"
	"chalet/shared/ratelimit"
)

func newRateLimiter(cfg *config.Config) (*ratelimit.Registry, error) {
	return ratelimit.NewRegistry(cfg) // nolint:wrapcheck
}

package config

import (
	"fmt"
	"sync"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Server struct {
		Env      string `envconfig:"ENV"`
		LogLevel string `envconfig:"LOG_LEVEL"`
		Port     string `envconfig:"PORT" default:"8080"`
		Host     string `envconfig:"HOST"`
		Shutdown struct {
			CleanupPeriodSeconds int64 `envconfig:"CLEANUP_PERIOD_SECONDS"`
			GracePeriodSeconds   int64 `envconfig:"GRACE_PERIOD_SECONDS"`
		} `envconfig:"SHUTDOWN"`
	} `envconfig:"SERVER"`

	App struct {
		Name     string `envconfig:"NAME" default:"chalet"`
		Timezone string `envconfig:"TIMEZONE"`
		CORS     struct {
			AllowCredentials bool     `envconfig:"ALLOW_CREDENTIALS"`
			AllowedHeaders   []string `envconfig:"ALLOWED_HEADERS"`
			AllowedMethods   []string `envconfig:"ALLOWED_METHODS"`
			AllowedOrigins   []string `envconfig:"ALLOWED_ORIGINS"`
			Enable           bool     `envconfig:"ENABLE"`
			MaxAgeSeconds    int      `envconfig:"MAX_AGE_SECONDS"`
		} `envconfig:"CORS"`
		RateLimiter struct {
			Enable   bool `envconfig:"ENABLE" default:"true"`
			Capacity int  `envconfig:"CAPACITY" default:"500"`
			API      struct {
				WindowMs    int64 `envconfig:"WINDOW_MS" default:"60000"`
				MaxRequests int   `envconfig:"MAX_REQUESTS" default:"100"`
			} `envconfig:"API"`
			Form struct {
				WindowMs    int64 `envconfig:"WINDOW_MS" default:"900000"`
				MaxRequests int   `envconfig:"MAX_REQUESTS" default:"5"`
			} `envconfig:"FORM"`
			Payment struct {
				WindowMs    int64 `envconfig:"WINDOW_MS" default:"3600000"`
				MaxRequests int   `envconfig:"MAX_REQUESTS" default:"10"`
			} `envconfig:"PAYMENT"`
		} `envconfig:"RATE_LIMITER"`
		// bcrypt hash of the operator key, see cmd/apikey.
		APIKeyHash string `envconfig:"API_KEY_HASH"`
	} `envconfig:"APP"`

	Booking struct {
		Retry struct {
			MaxAttempts int   `envconfig:"MAX_ATTEMPTS" default:"2"`
			BackoffMs   int64 `envconfig:"BACKOFF_MS" default:"2000"`
		} `envconfig:"RETRY"`
		// Major currency units, e.g. 300 means CHF 300.00.
		FallbackNightlyRate     float64 `envconfig:"FALLBACK_NIGHTLY_RATE" default:"300"`
		Currency                string  `envconfig:"CURRENCY" default:"CHF"`
		VATRate                 float64 `envconfig:"VAT_RATE" default:"7.7"`
		DefaultMaxCapacity      int     `envconfig:"DEFAULT_MAX_CAPACITY" default:"10"`
		IncludedGuests          int     `envconfig:"INCLUDED_GUESTS" default:"2"`
		ExtraGuestFee           float64 `envconfig:"EXTRA_GUEST_FEE" default:"0"`
		PropertyCacheTTLSeconds int     `envconfig:"PROPERTY_CACHE_TTL" default:"300"`
		// A payment_succeeded record untouched for this long lost its provider call.
		ClaimStaleSeconds       int     `envconfig:"CLAIM_STALE_SECONDS" default:"600"`
	} `envconfig:"BOOKING"`

	Cache struct {
		Redis struct {
			Primary struct {
				Host     string `envconfig:"HOST"`
				Port     string `envconfig:"PORT"`
				Password string `envconfig:"PASSWORD"`
				DB       int    `envconfig:"DB"`
			} `envconfig:"PRIMARY"`
		} `envconfig:"REDIS"`
	} `envconfig:"CACHE"`

	DB struct {
		Postgres struct {
			MaxRetry        int    `envconfig:"MAX_RETRY" default:"3"`
			RetryWaitTime   int    `envconfig:"RETRY_WAIT_TIME" default:"2"`
			MigrationTable  string `envconfig:"MIGRATION_TABLE" default:"schema_migrations"`
			MigrationSource string `envconfig:"MIGRATION_SOURCE" default:"file://migrations/postgres"`
			AutoMigrate     bool   `envconfig:"AUTO_MIGRATE"`
			Prefix          string `envconfig:"PREFIX"`
			Read            struct {
				Host     string `envconfig:"HOST"`
				Port     string `envconfig:"PORT"`
				Username string `envconfig:"USER"`
				Password string `envconfig:"PASSWORD"`
				Name     string `envconfig:"NAME"`
				Timezone string `envconfig:"TIMEZONE"`
				SSLMode  string `envconfig:"SSL_MODE"`
			} `envconfig:"READ"`
			Write struct {
				Host     string `envconfig:"HOST"`
				Port     string `envconfig:"PORT"`
				Username string `envconfig:"USER"`
				Password string `envconfig:"PASSWORD"`
				Name     string `envconfig:"NAME"`
				Timezone string `envconfig:"TIMEZONE"`
				SSLMode  string `envconfig:"SSL_MODE"`
			} `envconfig:"WRITE"`
		} `envconfig:"POSTGRES"`
	} `envconfig:"DB"`

	Kafka struct {
		Brokers []string `envconfig:"BROKERS"`
		SASL    struct {
			Username string `envconfig:"USERNAME"`
			Password string `envconfig:"PASSWORD"`
		} `envconfig:"SASL"`
	} `envconfig:"KAFKA"`

	Alert struct {
		Enable                bool   `envconfig:"ENABLE"`
		Topic                 string `envconfig:"TOPIC" default:"booking.alerts"`
		QueueSize             int    `envconfig:"QUEUE_SIZE" default:"100"`
		PublishTimeoutSeconds int    `envconfig:"PUBLISH_TIMEOUT_SECONDS" default:"10"`
	} `envconfig:"ALERT"`

	External struct {
		Otel struct {
			Endpoint string `envconfig:"ENDPOINT"`
		} `envconfig:"OTEL"`
		Uplisting struct {
			BaseURL           string  `envconfig:"BASE_URL" default:"https://connect.uplisting.io"`
			APIKey            string  `envconfig:"API_KEY"`
			ClientID          string  `envconfig:"CLIENT_ID"`
			TimeoutSeconds    int     `envconfig:"TIMEOUT_SECONDS" default:"15"`
			RequestsPerSecond float64 `envconfig:"REQUESTS_PER_SECOND" default:"5"`
		} `envconfig:"UPLISTING"`
		Stripe struct {
			SecretKey     string `envconfig:"SECRET_KEY"`
			WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
		} `envconfig:"STRIPE"`
	} `envconfig:"EXTERNAL"`
}

var (
	conf Config
	once sync.Once
)

// Load reads .env when present and then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Warn().Err(err).Msg("Could not load .env file, continuing with existing environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	return &cfg, nil
}

// Get returns the process-wide configuration, loading it on first use.
func Get() *Config {
	once.Do(func() {
		cfg, err := Load()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize configuration")
		}

		conf = *cfg

		log.Info().Msg("Service configuration initialized successfully")
	})

	return &conf
}

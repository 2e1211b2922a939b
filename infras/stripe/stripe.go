package stripe

//go:generate go run go.uber.org/mock/mockgen -source=./stripe.go -destination=./mocks/stripe_mock.go -package=mocks

import (
	"chalet/config"
	"chalet/infras/otel"
	"chalet/shared/constant"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	stripeGo "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

const (
	StatusSucceeded             = string(stripeGo.PaymentIntentStatusSucceeded)
	StatusProcessing            = string(stripeGo.PaymentIntentStatusProcessing)
	StatusCanceled              = string(stripeGo.PaymentIntentStatusCanceled)
	StatusRequiresAction        = string(stripeGo.PaymentIntentStatusRequiresAction)
	StatusRequiresPaymentMethod = string(stripeGo.PaymentIntentStatusRequiresPaymentMethod)
)

var (
	ErrMissingWebhookSecret = errors.New("webhook secret is not configured")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrMalformedEvent       = errors.New("malformed webhook event")
)

type PaymentIntent struct {
	ID             string
	Status         string
	Amount         int64
	Currency       string
	ClientSecret   string
	FailureMessage string
	Metadata       map[string]string
}

type CreateIntentRequest struct {
	// Amount in minor units.
	Amount         int64
	Currency       string
	Description    string
	ReceiptEmail   string
	IdempotencyKey string
	Metadata       map[string]string
}

type WebhookEvent struct {
	ID     string
	Type   string
	Intent PaymentIntent
}

type Client interface {
	CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (PaymentIntent, error)
	ConfirmPaymentIntent(ctx context.Context, id, paymentMethodID, idempotencyKey string) (PaymentIntent, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}

// IsRetryable reports whether a payment provider error is transient. Card errors and
// invalid requests are final.
func IsRetryable(err error) bool {
	var stripeErr *stripeGo.Error
	if !errors.As(err, &stripeErr) {
		return true
	}

	switch stripeErr.HTTPStatusCode {
	case 0, http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return true
	default:
		return stripeErr.HTTPStatusCode >= http.StatusInternalServerError
	}
}

// IsDeclined reports whether err is a payment decline rather than a provider fault.
func IsDeclined(err error) bool {
	var stripeErr *stripeGo.Error

	return errors.As(err, &stripeErr) &&
		(stripeErr.Type == stripeGo.ErrorTypeCard || stripeErr.HTTPStatusCode == http.StatusPaymentRequired)
}

// DeclineMessage returns the provider's decline message, which is safe to show to the guest.
func DeclineMessage(err error) string {
	var stripeErr *stripeGo.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}

	return "Your payment was declined."
}

type clientImpl struct {
	api           *client.API
	webhookSecret string
	allowUnsigned bool
	otel          otel.Otel
}

func New(config *config.Config, otel otel.Otel) Client {
	return NewWithBackends(config, otel, NoRetryBackends())
}

// NoRetryBackends returns the provider backends with the SDK's own network retries turned
// off. Calls are retried by the booking pipeline, which owns attempts and backoff.
func NoRetryBackends() *stripeGo.Backends {
	// GetBackendWithConfig fills in the URL, so every backend gets its own config
	backend := func(backendType stripeGo.SupportedBackend) stripeGo.Backend {
		return stripeGo.GetBackendWithConfig(backendType, &stripeGo.BackendConfig{
			MaxNetworkRetries: stripeGo.Int64(0),
		})
	}

	return &stripeGo.Backends{
		API:     backend(stripeGo.APIBackend),
		Connect: backend(stripeGo.ConnectBackend),
		Uploads: backend(stripeGo.UploadsBackend),
	}
}

// NewWithBackends builds a client on custom backends; nil uses the provider defaults.
func NewWithBackends(config *config.Config, otel otel.Otel, backends *stripeGo.Backends) Client {
	return &clientImpl{
		api:           client.New(config.External.Stripe.SecretKey, backends),
		webhookSecret: config.External.Stripe.WebhookSecret,
		allowUnsigned: config.Server.Env == constant.ServerEnvDevelopment,
		otel:          otel,
	}
}

func (c *clientImpl) CreatePaymentIntent(ctx context.Context, req CreateIntentRequest) (intent PaymentIntent, err error) {
	ctx, scope := c.otel.NewScope(ctx, constant.OtelExternalScopeName, constant.OtelExternalScopeName+".stripe.CreatePaymentIntent")
	defer scope.End()
	defer scope.TraceIfError(err)

	scope.SetAttributes(map[string]any{"amount": req.Amount, "currency": req.Currency})

	params := &stripeGo.PaymentIntentParams{
		Amount:   stripeGo.Int64(req.Amount),
		Currency: stripeGo.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripeGo.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripeGo.Bool(true),
		},
	}
	params.Context = ctx

	if req.Description != "" {
		params.Description = stripeGo.String(req.Description)
	}

	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripeGo.String(req.ReceiptEmail)
	}

	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		log.Error().Err(err).Int64("amount", req.Amount).Msg("failed to create payment intent")

		return intent, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return fromStripe(pi), nil
}

func (c *clientImpl) GetPaymentIntent(ctx context.Context, id string) (intent PaymentIntent, err error) {
	ctx, scope := c.otel.NewScope(ctx, constant.OtelExternalScopeName, constant.OtelExternalScopeName+".stripe.GetPaymentIntent")
	defer scope.End()
	defer scope.TraceIfError(err)

	scope.SetAttribute("payment_intent_id", id)

	params := &stripeGo.PaymentIntentParams{}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.Get(id, params)
	if err != nil {
		return intent, fmt.Errorf("failed to get payment intent: %w", err)
	}

	return fromStripe(pi), nil
}

func (c *clientImpl) ConfirmPaymentIntent(ctx context.Context, id, paymentMethodID, idempotencyKey string) (intent PaymentIntent, err error) {
	ctx, scope := c.otel.NewScope(ctx, constant.OtelExternalScopeName, constant.OtelExternalScopeName+".stripe.ConfirmPaymentIntent")
	defer scope.End()
	defer scope.TraceIfError(err)

	scope.SetAttribute("payment_intent_id", id)

	params := &stripeGo.PaymentIntentConfirmParams{}
	params.Context = ctx

	if paymentMethodID != "" {
		params.PaymentMethod = stripeGo.String(paymentMethodID)
	}

	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}

	pi, err := c.api.PaymentIntents.Confirm(id, params)
	if err != nil {
		return intent, fmt.Errorf("failed to confirm payment intent: %w", err)
	}

	return fromStripe(pi), nil
}

// ParseWebhook verifies the signature header and decodes a payment intent event. Without
// a configured secret, unsigned payloads are accepted only in development.
func (c *clientImpl) ParseWebhook(payload []byte, signature string) (WebhookEvent, error) {
	var (
		event stripeGo.Event
		err   error
	)

	switch {
	case c.webhookSecret != "":
		event, err = webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
		}
	case c.allowUnsigned:
		log.Warn().Msg("webhook secret not configured, accepting unsigned event in development")

		if err = json.Unmarshal(payload, &event); err != nil {
			return WebhookEvent{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
		}
	default:
		return WebhookEvent{}, ErrMissingWebhookSecret
	}

	res := WebhookEvent{
		ID:   event.ID,
		Type: string(event.Type),
	}

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return res, nil
	}

	if !strings.HasPrefix(res.Type, "payment_intent.") {
		return res, nil
	}

	var pi stripeGo.PaymentIntent
	if err = json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return res, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	res.Intent = fromStripe(&pi)

	return res, nil
}

func fromStripe(pi *stripeGo.PaymentIntent) PaymentIntent {
	intent := PaymentIntent{
		ID:           pi.ID,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		ClientSecret: pi.ClientSecret,
		Metadata:     pi.Metadata,
	}

	if pi.LastPaymentError != nil {
		intent.FailureMessage = pi.LastPaymentError.Msg
	}

	return intent
}

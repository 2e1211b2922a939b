package webhook

import (
	"chalet/infras/otel"
	"chalet/internal/domains/booking/service"
	"chalet/shared/constant"
	"chalet/shared/failure"
	"chalet/transport/http/response"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	service service.Booking
	otel    otel.Otel
}

func New(service service.Booking, otel otel.Otel) Handler {
	return Handler{
		service: service,
		otel:    otel,
	}
}

func (handler *Handler) Router(router chi.Router) {
	router.Post("/webhooks/stripe", handler.Stripe)
}

// Stripe applies a signed payment provider event.
// @Summary Payment provider webhook
// @Description Verifies the Stripe-Signature header and applies payment_intent.succeeded and payment_intent.payment_failed events. Other events are acknowledged.
// @Tags Webhook
// @Accept json
// @Produce json
// @Param Stripe-Signature header string true "Webhook signature"
// @Success 200 {object} response.Message
// @Failure 400 {object} response.Error
// @Failure 404 {object} response.Error "No booking for the payment intent"
// @Failure 413 {object} response.Error
// @Router /v1/webhooks/stripe [post]
func (handler *Handler) Stripe(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".StripeWebhook")
	defer scope.End()

	payload, err := io.ReadAll(http.MaxBytesReader(writer, request.Body, constant.RequestMaxWebhookMemory))
	if err != nil {
		scope.TraceError(err)

		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.WithMessage(writer, http.StatusRequestEntityTooLarge, "payload too large")

			return
		}

		response.WithError(writer, failure.BadRequestFromString("failed to read payload"))

		return
	}

	err = handler.service.HandleWebhook(ctx, payload, request.Header.Get(constant.RequestHeaderStripeSignature))
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to handle payment webhook")

		response.WithError(writer, err)

		return
	}

	response.WithMessage(writer, http.StatusOK, "received")
}

package booking

import (
	"chalet/infras/otel"
	"chalet/internal/domains/booking/model/dto"
	"chalet/internal/domains/booking/service"
	"chalet/shared/constant"
	gDto "chalet/shared/dto"
	"chalet/shared/failure"
	"chalet/shared/validator"
	"chalet/transport/http/response"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const (
	queryBookingStatus        = "booking_status"
	queryPaymentStatus        = "payment_status"
	queryRequiresManualReview = "requires_manual_review"

	maxClientKeyLength = 255
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
	router.Post("/checkout", handler.Checkout)
	router.Post("/bookings", handler.Submit)
}

// AdminRouter mounts the operator routes; the caller guards them.
func (handler *Handler) AdminRouter(router chi.Router) {
	router.Route("/bookings", func(routerGroup chi.Router) {
		routerGroup.Get("/", handler.GetBookings)
		routerGroup.Get("/{id}", handler.GetBookingByID)
	})
}

// Checkout starts a payment for a stay.
// @Summary Start checkout
// @Description Price and validate the stay, create the payment intent and record the pending booking. Resubmitting the same checkout returns the same payment intent.
// @Tags Booking
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Client key, forces a new payment intent for an otherwise identical checkout"
// @Param request body dto.CheckoutRequest true "Checkout Request"
// @Success 201 {object} response.Data[dto.CheckoutResponse]
// @Failure 400 {object} response.Error
// @Failure 422 {object} response.Error "Stay violates booking rules"
// @Failure 429 {object} response.Message
// @Failure 503 {object} response.Error "Pricing or payment provider unavailable"
// @Router /v1/checkout [post]
func (handler *Handler) Checkout(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".Checkout")
	defer scope.End()

	req := dto.CheckoutRequest{}

	if err := validator.Validate(request.Body, &req); err != nil {
		scope.TraceError(err)
		log.Warn().Err(err).Msg("failed to validate checkout request")

		response.WithError(writer, err)

		return
	}

	clientKey := request.Header.Get(constant.RequestHeaderIdempotencyKey)
	if len(clientKey) > maxClientKeyLength {
		response.WithError(writer, failure.BadRequestFromString("Idempotency-Key is too long"))

		return
	}

	res, err := handler.service.Checkout(ctx, req, clientKey)
	if err != nil {
		scope.TraceError(err)

		response.WithError(writer, err)

		return
	}

	response.WithJSON(writer, http.StatusCreated, res)
}

// Submit settles a checkout after the guest paid.
// @Summary Submit booking
// @Description Confirm or read the payment intent and, once paid, create the reservation with the booking provider. Returns 202 while the payment is still processing.
// @Tags Booking
// @Accept json
// @Produce json
// @Param request body dto.SubmitRequest true "Submit Request"
// @Success 200 {object} response.Data[dto.SubmitResponse]
// @Success 202 {object} response.Data[dto.SubmitResponse] "Payment not settled yet"
// @Failure 400 {object} response.Error
// @Failure 402 {object} response.Error "Payment declined"
// @Failure 404 {object} response.Error
// @Failure 503 {object} response.Error
// @Router /v1/bookings [post]
func (handler *Handler) Submit(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".Submit")
	defer scope.End()

	req := dto.SubmitRequest{}

	if err := validator.Validate(request.Body, &req); err != nil {
		scope.TraceError(err)
		log.Warn().Err(err).Msg("failed to validate submit request")

		response.WithError(writer, err)

		return
	}

	res, err := handler.service.Submit(ctx, req)
	if err != nil {
		scope.TraceError(err)

		response.WithError(writer, err)

		return
	}

	code := http.StatusOK
	if !res.Success {
		code = http.StatusAccepted
	}

	response.WithJSON(writer, code, res)
}

// GetBookings lists booking records for operators.
// @Summary List bookings
// @Tags Admin
// @Produce json
// @Param pagination query gDto.QueryParams false "Pagination parameters"
// @Param booking_status query string false "pending_payment, payment_succeeded, confirmed, payment_failed or pending_manual_review"
// @Param payment_status query string false "pending, succeeded or failed"
// @Param requires_manual_review query bool false "Only records flagged for manual review"
// @Success 200 {object} response.Data[dto.GetBookingsResponse]
// @Failure 400 {object} response.Error
// @Failure 401 {object} response.Error
// @Failure 403 {object} response.Error
// @Router /v1/admin/bookings [get]
// @Security ApiKeyAuth
func (handler *Handler) GetBookings(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetBookings")
	defer scope.End()

	queryParams := gDto.QueryParams{}
	queryParams.FromRequest(request, true)

	query := request.URL.Query()

	filter := dto.ListFilter{
		BookingStatus: query.Get(queryBookingStatus),
		PaymentStatus: query.Get(queryPaymentStatus),
	}

	if raw := query.Get(queryRequiresManualReview); raw != "" {
		review, err := strconv.ParseBool(raw)
		if err != nil {
			response.WithError(writer, failure.BadRequestFromString("requires_manual_review must be true or false"))

			return
		}

		filter.RequiresManualReview = &review
	}

	if err := validator.ValidateStruct(&filter); err != nil {
		scope.TraceError(err)
		response.WithError(writer, err)

		return
	}

	bookings, err := handler.service.GetAll(ctx, queryParams, filter.ToFilterGroup())
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get bookings")

		response.WithError(writer, err)

		return
	}

	response.WithJSON(writer, http.StatusOK, bookings)
}

// GetBookingByID returns one booking record.
// @Summary Get a booking by ID
// @Tags Admin
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Data[dto.BookingResponse]
// @Failure 404 {object} response.Error
// @Router /v1/admin/bookings/{id} [get]
// @Security ApiKeyAuth
func (handler *Handler) GetBookingByID(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetBookingByID")
	defer scope.End()

	id := chi.URLParam(request, constant.RequestParamID)

	if err := validator.ValidateVar(id, "required,uuid"); err != nil {
		response.WithError(writer, failure.NotFound("booking not found"))

		return
	}

	booking, err := handler.service.Get(ctx, id)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Str("booking_id", id).Msg("failed to get booking by ID")

		response.WithError(writer, err)

		return
	}

	response.WithJSON(writer, http.StatusOK, booking)
}

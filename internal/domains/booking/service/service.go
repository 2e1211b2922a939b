package service

//go:generate go run go.uber.org/mock/mockgen -source=./service.go -destination=../mocks/service_mock.go -package=mocks -mock_names=Booking=MockBookingService

import (
	"chalet/config"
	"chalet/infras/otel"
	"chalet/infras/stripe"
	"chalet/infras/uplisting"
	alertModel "chalet/internal/domains/alert/model"
	alertService "chalet/internal/domains/alert/service"
	"chalet/internal/domains/booking/model"
	"chalet/internal/domains/booking/model/dto"
	"chalet/internal/domains/booking/repository"
	pricingModel "chalet/internal/domains/pricing/model"
	pricingService "chalet/internal/domains/pricing/service"
	validationModel "chalet/internal/domains/validation/model"
	"chalet/shared/constant"
	gDto "chalet/shared/dto"
	"chalet/shared/failure"
	"chalet/shared/money"
	gRepo "chalet/shared/repository"
	"chalet/shared/retry"
	"chalet/shared/timezone"
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	labelCreateIntent    = "stripe.create_payment_intent"
	labelRetrieveIntent  = "stripe.retrieve_payment_intent"
	labelConfirmIntent   = "stripe.confirm_payment_intent"
	labelProviderBooking = "uplisting.create_booking"

	confirmKeyPrefix = "confirm_"

	// bounds the intents one checkout may walk past after failed payments
	maxCheckoutIntents = 5
)

const (
	msgNotBookable     = "The selected stay cannot be booked."
	msgBookingNotFound = "booking not found"
	msgPaymentFailed   = "Your payment could not be completed."
	msgInvalidWebhook  = "invalid webhook signature"
	msgReviewNotice    = "Your payment was received. We are finalising your reservation with the property and will contact you shortly."
	msgTooManyAttempts = "Too many failed payment attempts for this stay. Please contact us to book."

	reasonPaidAfterFailure = "payment succeeded for a booking recorded as payment_failed"
	reasonClaimStalled     = "payment succeeded but the provider booking was never confirmed"
)

type Booking interface {
	Checkout(ctx context.Context, req dto.CheckoutRequest, clientKey string) (dto.CheckoutResponse, error)
	Submit(ctx context.Context, req dto.SubmitRequest) (dto.SubmitResponse, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	Get(ctx context.Context, id string) (dto.BookingResponse, error)
	GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup) (dto.GetBookingsResponse, error)
}

type serviceImpl struct {
	repo     repository.Booking
	pricing  pricingService.Pricing
	payments stripe.Client
	provider uplisting.Client
	alerts   alertService.Sink
	cfg      *config.Config
	otel     otel.Otel
}

func New(
	repo repository.Booking,
	pricing pricingService.Pricing,
	payments stripe.Client,
	provider uplisting.Client,
	alerts alertService.Sink,
	cfg *config.Config,
	otel otel.Otel,
) Booking {
	return &serviceImpl{
		repo:     repo,
		pricing:  pricing,
		payments: payments,
		provider: provider,
		alerts:   alerts,
		cfg:      cfg,
		otel:     otel,
	}
}

// Checkout prices and validates the stay, creates the payment intent and records the pending
// booking. Resubmitting the same checkout returns the same intent and record.
func (s *serviceImpl) Checkout(ctx context.Context, req dto.CheckoutRequest, clientKey string) (res dto.CheckoutResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.Checkout")
	defer scope.End()
	defer scope.TraceIfError(err)

	stay, err := req.ToStay()
	if err != nil {
		return res, failure.BadRequestFromString("invalid stay dates") // nolint:wrapcheck
	}

	assessment, err := s.pricing.Assess(ctx, stay)
	if err != nil {
		log.Error().Err(err).Str("property_id", stay.PropertyID).Msg("failed to assess stay")

		return res, failure.ServiceUnavailable(constant.ResponseErrorTryAgainLater) // nolint:wrapcheck
	}

	if !assessment.Validation.Valid {
		return res, failure.UnprocessableEntity(msgNotBookable, assessment.Validation.Errors) // nolint:wrapcheck
	}

	if !assessment.Priced() {
		if assessment.Failure == pricingModel.PricingFailureAllRates || assessment.Failure == pricingModel.PricingFailureNoCalendarData {
			s.alerts.Notify(ctx, alertModel.KindAllRatesMissing, s.ratesPayload(assessment))
		}

		return res, failure.PricingUnavailable
	}

	if assessment.Quote.PartialRatesMissing() {
		s.alerts.Notify(ctx, alertModel.KindPartialRatesMissing, s.ratesPayload(assessment))
	}

	var (
		intent  stripe.PaymentIntent
		record  model.Record
		created bool
	)

	key := req.IdempotencyKey(clientKey, assessment.Breakdown.GrandTotal)

	for range maxCheckoutIntents {
		intent, record, created, err = s.openIntent(ctx, req, assessment, key)
		if err != nil {
			return res, err
		}

		// a declined intent is answered by the same key, move past it
		if record.BookingStatus != model.StatusPaymentFailed {
			break
		}

		log.Info().Str("payment_intent_id", intent.ID).Str("booking_id", record.ID).Msg("checkout matched a failed payment, opening a new intent")

		key = dto.NextIdempotencyKey(key, intent.ID)
	}

	if record.BookingStatus == model.StatusPaymentFailed {
		return res, failure.Conflict(msgTooManyAttempts) // nolint:wrapcheck
	}

	if !created {
		log.Info().Str("payment_intent_id", intent.ID).Str("booking_id", record.ID).Msg("checkout resubmitted, returning existing booking")
	}

	scope.SetAttributes(map[string]any{"booking_id": record.ID, "payment_intent_id": intent.ID})

	res.BookingID = record.ID
	res.PaymentIntentID = intent.ID
	res.ClientSecret = intent.ClientSecret
	res.BookingStatus = string(record.BookingStatus)
	res.Quote.FromModel(assessment.Quote, true)
	res.Breakdown.FromModel(assessment.Breakdown)
	res.Warnings = assessment.Validation.Warnings

	if res.Warnings == nil {
		res.Warnings = []validationModel.Issue{}
	}

	return res, nil
}

// openIntent creates (or replays) the payment intent for key and records its pending booking.
func (s *serviceImpl) openIntent(ctx context.Context, req dto.CheckoutRequest, assessment pricingModel.Assessment, key string) (
	stripe.PaymentIntent, model.Record, bool, error,
) {
	intentReq := s.intentRequest(req, assessment, key)

	intent, err := retry.Do(ctx, s.policy(labelCreateIntent, stripe.IsRetryable), func(ctx context.Context) (stripe.PaymentIntent, error) {
		return s.payments.CreatePaymentIntent(ctx, intentReq)
	})
	if err != nil {
		log.Error().Err(err).Str("property_id", req.PropertyID).Int("attempts", retry.Attempts(err)).Msg("failed to create payment intent")

		return intent, model.Record{}, false, failure.ServiceUnavailable(constant.ResponseErrorTryAgainLater) // nolint:wrapcheck
	}

	record, created, err := s.repo.Create(ctx, req.ToRecord(intent.ID, assessment))
	if err != nil {
		log.Error().Err(err).Str("payment_intent_id", intent.ID).Msg("failed to create booking record")

		if errors.Is(err, gRepo.ErrConflict) {
			return intent, record, false, failure.Conflict("checkout conflicts with an existing booking") // nolint:wrapcheck
		}

		return intent, record, false, failure.ServiceUnavailable(constant.ResponseErrorTryAgainLater) // nolint:wrapcheck
	}

	return intent, record, created, nil
}

// Submit settles a checkout from the client side: it confirms or reads the payment intent and,
// once paid, drives the booking to a terminal state. The work continues if the client leaves.
func (s *serviceImpl) Submit(ctx context.Context, req dto.SubmitRequest) (res dto.SubmitResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.Submit")
	defer scope.End()
	defer scope.TraceIfError(err)

	scope.SetAttribute("payment_intent_id", req.PaymentIntentID)

	record, err := s.repo.FindByPaymentIntent(ctx, req.PaymentIntentID)
	if err != nil {
		log.Error().Err(err).Str("payment_intent_id", req.PaymentIntentID).Msg("failed to load booking")

		return res, failure.ServiceUnavailable(constant.ResponseErrorTryAgainLater) // nolint:wrapcheck
	}

	if !record.Exists() {
		return res, failure.NotFound(msgBookingNotFound) // nolint:wrapcheck
	}

	ctx = context.WithoutCancel(ctx)

	if record.IsAlreadyProcessed() {
		return submitResponse(s.recoverStalled(ctx, record)), nil
	}

	if record.BookingStatus == model.StatusPaymentFailed {
		return s.recheckFailed(ctx, record)
	}

	intent, err := s.settleIntent(ctx, req)
	if err != nil {
		if stripe.IsDeclined(err) {
			reason := stripe.DeclineMessage(err)
			s.failPayment(ctx, record.PaymentIntentID, reason)

			return res, failure.PaymentFailed(reason) // nolint:wrapcheck
		}

		log.Error().Err(err).Str("payment_intent_id", req.PaymentIntentID).Msg("failed to settle payment intent")

		return res, failure.ServiceUnavailable(constant.ResponseErrorTryAgainLater) // nolint:wrapcheck
	}

	switch {
	case intent.Status == stripe.StatusSucceeded:
		record, err = s.completePayment(ctx, intent.ID)
		if err != nil {
			log.Error().Err(err).Str("payment_intent_id", intent.ID).Msg("failed to complete paid booking")

			return res, failure.ServiceUnavailable(constant.ResponseErrorTryAgainLater) // nolint:wrapcheck
		}
	case intent.Status == stripe.StatusCanceled,
		intent.Status == stripe.StatusRequiresPaymentMethod && req.PaymentMethodID != "":
		reason := failureReason(intent.FailureMessage)
		s.failPayment(ctx, intent.ID, reason)

		return res, failure.PaymentFailed(reason) // nolint:wrapcheck
	}

	return submitResponse(record), nil
}

// HandleWebhook applies a verified payment provider event.
func (s *serviceImpl) HandleWebhook(ctx context.Context, payload []byte, signature string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.HandleWebhook")
	defer scope.End()
	defer scope.TraceIfError(err)

	event, err := s.payments.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, stripe.ErrMissingWebhookSecret) {
			log.Error().Err(err).Msg("payment webhook rejected, secret not configured")

			return failure.InternalError(err) // nolint:wrapcheck
		}

		log.Warn().Err(err).Msg("payment webhook rejected")

		return failure.BadRequestFromString(msgInvalidWebhook) // nolint:wrapcheck
	}

	scope.SetAttributes(map[string]any{"event.id": event.ID, "event.type": event.Type})
	log.Info().Str("event_id", event.ID).Str("event_type", event.Type).Str("payment_intent_id", event.Intent.ID).Msg("payment webhook received")

	ctx = context.WithoutCancel(ctx)

	switch event.Type {
	case stripe.EventPaymentSucceeded:
		processed, err := s.repo.IsAlreadyProcessed(ctx, event.Intent.ID)
		if err != nil {
			return fmt.Errorf("failed to check payment intent: %w", err)
		}

		if processed {
			log.Info().Str("payment_intent_id", event.Intent.ID).Msg("payment intent already processed, skipping")

			record, err := s.repo.FindByPaymentIntent(ctx, event.Intent.ID)
			if err != nil {
				return fmt.Errorf("failed to load processed booking: %w", err)
			}

			s.recoverStalled(ctx, record)

			return nil
		}

		_, err = s.completePayment(ctx, event.Intent.ID)
		if errors.Is(err, gRepo.ErrNotFound) {
			log.Error().Str("payment_intent_id", event.Intent.ID).Msg("no booking for paid payment intent")

			return failure.NotFound(msgBookingNotFound) // nolint:wrapcheck
		}

		return err
	case stripe.EventPaymentFailed:
		s.failPayment(ctx, event.Intent.ID, failureReason(event.Intent.FailureMessage))

		return nil
	default:
		log.Debug().Str("event_type", event.Type).Msg("ignoring payment webhook event")

		return nil
	}
}

func (s *serviceImpl) Get(ctx context.Context, id string) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.Get")
	defer scope.End()
	defer scope.TraceIfError(err)

	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("booking_id", id).Msg("failed to get booking")

		return res, fmt.Errorf("failed to get booking: %w", err)
	}

	if !record.Exists() {
		return res, failure.NotFound(msgBookingNotFound) // nolint:wrapcheck
	}

	res.FromModel(record)

	return res, nil
}

func (s *serviceImpl) GetAll(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup) (res dto.GetBookingsResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".booking.GetAll")
	defer scope.End()
	defer scope.TraceIfError(err)

	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count bookings")

		return res, fmt.Errorf("failed to count bookings: %w", err)
	}

	records, err := s.repo.GetAll(ctx, params, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get bookings")

		return res, fmt.Errorf("failed to get bookings: %w", err)
	}

	res.FromModels(records, total, params.Limit)

	return res, nil
}

// completePayment runs the paid-booking pipeline: claim the record, create the provider
// booking, then confirm or escalate. Only the caller that wins the claim talks to the provider.
func (s *serviceImpl) completePayment(ctx context.Context, paymentIntentID string) (model.Record, error) {
	record, applied, err := s.repo.Transition(ctx, paymentIntentID, model.Transition{To: model.StatusPaymentSucceeded})

	switch {
	case errors.Is(err, model.ErrInvalidTransition):
		if record.BookingStatus == model.StatusPaymentFailed {
			return s.escalate(ctx, record, reasonPaidAfterFailure, "", 0), nil
		}

		log.Info().Str("payment_intent_id", paymentIntentID).Str("status", string(record.BookingStatus)).Msg("booking already settled")

		return record, nil
	case err != nil:
		return record, fmt.Errorf("failed to claim booking: %w", err)
	case !applied:
		log.Info().Str("payment_intent_id", paymentIntentID).Msg("booking claimed by another request")

		return record, nil
	}

	providerBookingID, err := retry.Do(ctx, s.policy(labelProviderBooking, uplisting.IsRetryableCreate), func(ctx context.Context) (string, error) {
		return s.provider.CreateBooking(ctx, uplisting.BookingRequest{
			PropertyID:     record.PropertyID,
			CheckIn:        timezone.FormatDay(record.CheckIn),
			CheckOut:       timezone.FormatDay(record.CheckOut),
			GuestName:      record.GuestName,
			GuestEmail:     record.GuestEmail,
			GuestPhone:     record.GuestPhone,
			NumberOfGuests: record.TotalGuests(),
		})
	})
	if err != nil {
		attempts := retry.Attempts(err)
		reason := fmt.Sprintf("provider booking creation failed after %d attempt(s): %v", attempts, errors.Unwrap(err))

		return s.escalate(ctx, record, reason, "", attempts), nil
	}

	confirmed, _, err := s.repo.Transition(ctx, paymentIntentID, model.Transition{
		To:                model.StatusConfirmed,
		ProviderBookingID: providerBookingID,
	})
	if err != nil {
		log.Error().Err(err).Str("payment_intent_id", paymentIntentID).Str("provider_booking_id", providerBookingID).Msg("failed to confirm booking")

		reason := fmt.Sprintf("provider booking %s created but the booking record could not be confirmed: %v", providerBookingID, err)

		return s.escalate(ctx, record, reason, providerBookingID, 0), nil
	}

	log.Info().Str("booking_id", confirmed.ID).Str("provider_booking_id", providerBookingID).Msg("booking confirmed")

	return confirmed, nil
}

// escalate alerts operators and parks the record for manual review. The alert goes out even
// when the record cannot be written.
func (s *serviceImpl) escalate(ctx context.Context, record model.Record, reason, providerBookingID string, attempts int) model.Record {
	s.alerts.Notify(ctx, alertModel.KindManualReviewRequired, s.recordPayload(record, reason, providerBookingID, attempts))

	updated, _, err := s.repo.Transition(ctx, record.PaymentIntentID, model.Transition{
		To:                 model.StatusPendingManualReview,
		ProviderBookingID:  providerBookingID,
		ManualReviewReason: reason,
	})
	if err != nil {
		log.Error().Err(err).Str("payment_intent_id", record.PaymentIntentID).Msg("failed to mark booking for manual review")

		record.BookingStatus = model.StatusPendingManualReview
		record.RequiresManualReview = true
		record.ManualReviewReason = reason
		record.ProviderBookingID = providerBookingID

		return record
	}

	return updated
}

// recheckFailed reads a failed intent again, since it stays payable after a decline, e.g. a
// second card confirmed on the client. A new payment method is never confirmed against it here.
func (s *serviceImpl) recheckFailed(ctx context.Context, record model.Record) (dto.SubmitResponse, error) {
	intent, err := s.settleIntent(ctx, dto.SubmitRequest{PaymentIntentID: record.PaymentIntentID})
	if err != nil {
		log.Error().Err(err).Str("payment_intent_id", record.PaymentIntentID).Msg("failed to recheck failed payment intent")

		return dto.SubmitResponse{}, failure.ServiceUnavailable(constant.ResponseErrorTryAgainLater) // nolint:wrapcheck
	}

	if intent.Status != stripe.StatusSucceeded {
		return dto.SubmitResponse{}, failure.PaymentFailed(failureReason(record.PaymentFailureReason)) // nolint:wrapcheck
	}

	record, err = s.completePayment(ctx, intent.ID)
	if err != nil {
		log.Error().Err(err).Str("payment_intent_id", intent.ID).Msg("failed to complete paid booking")

		return dto.SubmitResponse{}, failure.ServiceUnavailable(constant.ResponseErrorTryAgainLater) // nolint:wrapcheck
	}

	return submitResponse(record), nil
}

// recoverStalled escalates a paid record whose provider call was abandoned, e.g. by a crash
// between the claim and the confirm. Any other record is returned as is.
func (s *serviceImpl) recoverStalled(ctx context.Context, record model.Record) model.Record {
	after := time.Duration(s.cfg.Booking.ClaimStaleSeconds) * time.Second
	if !record.ClaimStalled(timezone.Now(), after) {
		return record
	}

	log.Warn().Str("payment_intent_id", record.PaymentIntentID).Time("claimed_at", record.UpdatedAt).Msg("stalled booking claim")

	return s.escalate(ctx, record, reasonClaimStalled, "", 0)
}

// failPayment records a payment failure. A failure reported after the payment already
// succeeded is ignored.
func (s *serviceImpl) failPayment(ctx context.Context, paymentIntentID, reason string) {
	record, _, err := s.repo.Transition(ctx, paymentIntentID, model.Transition{
		To:                   model.StatusPaymentFailed,
		PaymentFailureReason: reason,
	})

	switch {
	case errors.Is(err, model.ErrInvalidTransition):
		log.Warn().Str("payment_intent_id", paymentIntentID).Str("status", string(record.BookingStatus)).Msg("payment failure ignored for settled booking")
	case errors.Is(err, gRepo.ErrNotFound):
		log.Warn().Str("payment_intent_id", paymentIntentID).Msg("payment failure for unknown booking")
	case err != nil:
		log.Error().Err(err).Str("payment_intent_id", paymentIntentID).Msg("failed to record payment failure")
	default:
		log.Info().Str("payment_intent_id", paymentIntentID).Str("reason", reason).Msg("payment failure recorded")
	}
}

// settleIntent confirms the intent when the client supplied a payment method, otherwise it
// reads the current intent state.
func (s *serviceImpl) settleIntent(ctx context.Context, req dto.SubmitRequest) (stripe.PaymentIntent, error) {
	if req.PaymentMethodID != "" {
		return retry.Do(ctx, s.policy(labelConfirmIntent, stripe.IsRetryable), func(ctx context.Context) (stripe.PaymentIntent, error) {
			return s.payments.ConfirmPaymentIntent(ctx, req.PaymentIntentID, req.PaymentMethodID, confirmKeyPrefix+req.PaymentIntentID)
		})
	}

	return retry.Do(ctx, s.policy(labelRetrieveIntent, stripe.IsRetryable), func(ctx context.Context) (stripe.PaymentIntent, error) {
		return s.payments.GetPaymentIntent(ctx, req.PaymentIntentID)
	})
}

func (s *serviceImpl) policy(label string, retryable func(error) bool) retry.Policy {
	return retry.NewPolicy(s.cfg, label).WithRetryable(retryable)
}

func (s *serviceImpl) intentRequest(req dto.CheckoutRequest, assessment pricingModel.Assessment, key string) stripe.CreateIntentRequest {
	property := assessment.Property.Name
	if property == "" {
		property = req.PropertyID
	}

	return stripe.CreateIntentRequest{
		Amount:         assessment.Breakdown.GrandTotal,
		Currency:       assessment.Breakdown.Currency,
		Description:    fmt.Sprintf("%s, %s to %s", property, req.CheckIn, req.CheckOut),
		ReceiptEmail:   req.GuestEmail,
		IdempotencyKey: key,
		Metadata: map[string]string{
			"property_id":   req.PropertyID,
			"check_in":      req.CheckIn,
			"check_out":     req.CheckOut,
			"nights":        strconv.Itoa(assessment.Quote.Nights),
			"guests":        strconv.Itoa(req.Guests().Total()),
			"guest_email":   req.GuestEmail,
			"used_fallback": strconv.FormatBool(assessment.Quote.UsedFallback),
		},
	}
}

func (s *serviceImpl) ratesPayload(assessment pricingModel.Assessment) alertModel.Payload {
	currency := assessment.Property.Currency
	if currency == "" {
		currency = s.cfg.Booking.Currency
	}

	missing := make([]string, len(assessment.Quote.MissingRates))
	for i, day := range assessment.Quote.MissingRates {
		missing[i] = timezone.FormatDay(day)
	}

	return alertModel.Payload{
		PropertyID:   assessment.Stay.PropertyID,
		CheckIn:      timezone.FormatDay(assessment.Stay.CheckIn),
		CheckOut:     timezone.FormatDay(assessment.Stay.CheckOut),
		Nights:       assessment.Quote.Nights,
		MissingDates: missing,
		FallbackRate: money.Format(money.ToMinor(s.cfg.Booking.FallbackNightlyRate), currency),
		Reason:       string(assessment.Failure),
	}
}

func (s *serviceImpl) recordPayload(record model.Record, reason, providerBookingID string, attempts int) alertModel.Payload {
	return alertModel.Payload{
		PropertyID:        record.PropertyID,
		CheckIn:           timezone.FormatDay(record.CheckIn),
		CheckOut:          timezone.FormatDay(record.CheckOut),
		Nights:            record.Nights,
		BookingID:         record.ID,
		PaymentIntentID:   record.PaymentIntentID,
		ProviderBookingID: providerBookingID,
		GuestName:         record.GuestName,
		GuestEmail:        record.GuestEmail,
		Amount:            money.Format(record.GrandTotal, record.Currency),
		Attempts:          attempts,
		Reason:            reason,
		Details: map[string]any{
			"adults":         record.Adults,
			"children":       record.Children,
			"infants":        record.Infants,
			"guest_phone":    record.GuestPhone,
			"booking_status": string(record.BookingStatus),
		},
	}
}

func submitResponse(record model.Record) dto.SubmitResponse {
	var res dto.SubmitResponse

	res.FromModel(record)

	if record.RequiresManualReview {
		res.RequiresReviewNotice = msgReviewNotice
	}

	return res
}

func failureReason(message string) string {
	if message == "" {
		return msgPaymentFailed
	}

	return message
}

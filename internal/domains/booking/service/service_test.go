package service_test

import (
	"chalet/config"
	"chalet/infras/otel/mocks"
	"chalet/infras/stripe"
	stripeMocks "chalet/infras/stripe/mocks"
	"chalet/infras/uplisting"
	uplistingMocks "chalet/infras/uplisting/mocks"
	alertMocks "chalet/internal/domains/alert/mocks"
	alertModel "chalet/internal/domains/alert/model"
	bookingMocks "chalet/internal/domains/booking/mocks"
	"chalet/internal/domains/booking/model"
	"chalet/internal/domains/booking/model/dto"
	"chalet/internal/domains/booking/service"
	calendarModel "chalet/internal/domains/calendar/model"
	pricingMocks "chalet/internal/domains/pricing/mocks"
	pricingModel "chalet/internal/domains/pricing/model"
	validationModel "chalet/internal/domains/validation/model"
	gDto "chalet/shared/dto"
	"chalet/shared/failure"
	gRepo "chalet/shared/repository"
	"chalet/shared/timezone"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripeGo "github.com/stripe/stripe-go/v76"
	"go.uber.org/mock/gomock"
)

const intentID = "pi_123"

type fixture struct {
	repo     *bookingMocks.MockBooking
	pricing  *pricingMocks.MockPricing
	payments *stripeMocks.MockClient
	provider *uplistingMocks.MockClient
	alerts   *alertMocks.MockSink
	svc      service.Booking
}

func newConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Booking.Retry.MaxAttempts = 2
	cfg.Booking.Retry.BackoffMs = 0
	cfg.Booking.FallbackNightlyRate = 300
	cfg.Booking.Currency = "CHF"

	return cfg
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithConfig(t, newConfig())
}

func newFixtureWithConfig(t *testing.T, cfg *config.Config) *fixture {
	ctrl := gomock.NewController(t)

	f := &fixture{
		repo:     bookingMocks.NewMockBooking(ctrl),
		pricing:  pricingMocks.NewMockPricing(ctrl),
		payments: stripeMocks.NewMockClient(ctrl),
		provider: uplistingMocks.NewMockClient(ctrl),
		alerts:   alertMocks.NewMockSink(ctrl),
	}

	f.svc = service.New(f.repo, f.pricing, f.payments, f.provider, f.alerts, cfg, mocks.NewOtel())

	return f
}

func day(value string) time.Time {
	d, _ := timezone.ParseDay(value)

	return d
}

func checkoutRequest() dto.CheckoutRequest {
	return dto.CheckoutRequest{
		PropertyID: "prop-1",
		CheckIn:    "2025-12-20",
		CheckOut:   "2025-12-23",
		Adults:     2,
		Children:   1,
		GuestName:  "Anna Muster",
		GuestEmail: "anna@example.com",
		GuestPhone: "+41 79 000 00 00",
	}
}

func assessment(missing int) pricingModel.Assessment {
	res := pricingModel.Assessment{
		Stay: pricingModel.Stay{
			PropertyID: "prop-1",
			CheckIn:    day("2025-12-20"),
			CheckOut:   day("2025-12-23"),
			Guests:     validationModel.Guests{Adults: 2, Children: 1},
		},
		Property:   calendarModel.Property{ID: "prop-1", Name: "Chalet Alpina", Currency: "CHF"},
		Validation: validationModel.Result{Valid: true},
		Quote: pricingModel.Quote{
			Nights:             3,
			AccommodationTotal: 90000,
			AveragePerNight:    30000,
			Currency:           "CHF",
		},
		Breakdown: pricingModel.Breakdown{
			AccommodationTotal: 90000,
			CleaningFee:        10000,
			Subtotal:           100000,
			VATRate:            7.7,
			VATAmount:          7700,
			GrandTotal:         107700,
			Currency:           "CHF",
		},
	}

	for i := range missing {
		res.Quote.MissingRates = append(res.Quote.MissingRates, day("2025-12-21").AddDate(0, 0, i))
		res.Quote.UsedFallback = true
	}

	if missing == res.Quote.Nights {
		res.Failure = pricingModel.PricingFailureAllRates
	}

	return res
}

func pendingRecord() model.Record {
	return model.Record{
		ID:              "b-1",
		PaymentIntentID: intentID,
		PropertyID:      "prop-1",
		CheckIn:         day("2025-12-20"),
		CheckOut:        day("2025-12-23"),
		Nights:          3,
		Adults:          2,
		Children:        1,
		GuestName:       "Anna Muster",
		GuestEmail:      "anna@example.com",
		Currency:        "CHF",
		GrandTotal:      107700,
		PaymentStatus:   model.PaymentStatusPending,
		BookingStatus:   model.StatusPendingPayment,
	}
}

func withStatus(record model.Record, status model.BookingStatus) model.Record {
	record.BookingStatus = status
	record.PaymentStatus = model.PaymentStatusFor(status)

	return record
}

func transitionTo(status model.BookingStatus) gomock.Matcher {
	return gomock.Cond(func(x any) bool {
		t, ok := x.(model.Transition)

		return ok && t.To == status
	})
}

func TestBookingService_Checkout(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(f *fixture)
		wantCode  int
		wantErr   bool
	}{
		{
			name: "creates intent and pending record",
			setupMock: func(f *fixture) {
				req := checkoutRequest()

				f.pricing.EXPECT().Assess(gomock.Any(), gomock.Any()).Return(assessment(0), nil)
				f.payments.EXPECT().
					CreatePaymentIntent(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, intent stripe.CreateIntentRequest) (stripe.PaymentIntent, error) {
						assert.Equal(t, int64(107700), intent.Amount)
						assert.Equal(t, "CHF", intent.Currency)
						assert.Equal(t, req.IdempotencyKey("", 107700), intent.IdempotencyKey)
						assert.Equal(t, "prop-1", intent.Metadata["property_id"])

						return stripe.PaymentIntent{ID: intentID, ClientSecret: "secret"}, nil
					})
				f.repo.EXPECT().
					Create(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, record model.Record) (model.Record, bool, error) {
						assert.Equal(t, intentID, record.PaymentIntentID)
						assert.Equal(t, model.StatusPendingPayment, record.BookingStatus)
						assert.Equal(t, int64(107700), record.GrandTotal)

						return record, true, nil
					})
			},
		},
		{
			name: "validation errors block checkout",
			setupMock: func(f *fixture) {
				invalid := assessment(0)
				invalid.Validation = validationModel.Result{Errors: []validationModel.Issue{{Field: "guests", Code: validationModel.CodeGuestCapacity}}}

				f.pricing.EXPECT().Assess(gomock.Any(), gomock.Any()).Return(invalid, nil)
			},
			wantErr:  true,
			wantCode: http.StatusUnprocessableEntity,
		},
		{
			name: "all rates missing alerts and blocks checkout",
			setupMock: func(f *fixture) {
				f.pricing.EXPECT().Assess(gomock.Any(), gomock.Any()).Return(assessment(3), nil)
				f.alerts.EXPECT().
					Notify(gomock.Any(), alertModel.KindAllRatesMissing, gomock.Any()).
					Do(func(_ context.Context, _ alertModel.Kind, payload alertModel.Payload) {
						assert.Len(t, payload.MissingDates, 3)
						assert.Equal(t, "CHF 300.00", payload.FallbackRate)
					})
			},
			wantErr:  true,
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name: "partial fallback alerts and proceeds",
			setupMock: func(f *fixture) {
				f.pricing.EXPECT().Assess(gomock.Any(), gomock.Any()).Return(assessment(1), nil)
				f.alerts.EXPECT().Notify(gomock.Any(), alertModel.KindPartialRatesMissing, gomock.Any())
				f.payments.EXPECT().CreatePaymentIntent(gomock.Any(), gomock.Any()).Return(stripe.PaymentIntent{ID: intentID}, nil)
				f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(pendingRecord(), true, nil)
			},
		},
		{
			name: "transient payment errors exhaust retries",
			setupMock: func(f *fixture) {
				f.pricing.EXPECT().Assess(gomock.Any(), gomock.Any()).Return(assessment(0), nil)
				f.payments.EXPECT().
					CreatePaymentIntent(gomock.Any(), gomock.Any()).
					Return(stripe.PaymentIntent{}, &stripeGo.Error{HTTPStatusCode: http.StatusBadGateway}).
					Times(2)
			},
			wantErr:  true,
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name: "invalid payment request is not retried",
			setupMock: func(f *fixture) {
				f.pricing.EXPECT().Assess(gomock.Any(), gomock.Any()).Return(assessment(0), nil)
				f.payments.EXPECT().
					CreatePaymentIntent(gomock.Any(), gomock.Any()).
					Return(stripe.PaymentIntent{}, &stripeGo.Error{HTTPStatusCode: http.StatusBadRequest, Type: stripeGo.ErrorTypeInvalidRequest}).
					Times(1)
			},
			wantErr:  true,
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name: "provider outage while pricing",
			setupMock: func(f *fixture) {
				f.pricing.EXPECT().Assess(gomock.Any(), gomock.Any()).Return(pricingModel.Assessment{}, errors.New("calendar timeout"))
			},
			wantErr:  true,
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name: "record write failure",
			setupMock: func(f *fixture) {
				f.pricing.EXPECT().Assess(gomock.Any(), gomock.Any()).Return(assessment(0), nil)
				f.payments.EXPECT().CreatePaymentIntent(gomock.Any(), gomock.Any()).Return(stripe.PaymentIntent{ID: intentID}, nil)
				f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(model.Record{}, false, errors.New("connection refused"))
			},
			wantErr:  true,
			wantCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			res, err := f.svc.Checkout(context.Background(), checkoutRequest(), "")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, failure.GetCode(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, intentID, res.PaymentIntentID)
			assert.Equal(t, string(model.StatusPendingPayment), res.BookingStatus)
			assert.Equal(t, int64(107700), res.Breakdown.GrandTotal)
			assert.NotNil(t, res.Warnings)
		})
	}
}

func TestBookingService_Submit(t *testing.T) {
	declined := &stripeGo.Error{HTTPStatusCode: http.StatusPaymentRequired, Type: stripeGo.ErrorTypeCard, Msg: "Your card was declined."}

	tests := []struct {
		name        string
		req         dto.SubmitRequest
		setupMock   func(f *fixture)
		wantCode    int
		wantErr     bool
		wantSuccess bool
		wantStatus  model.BookingStatus
		wantNotice  bool
		wantBooking string
	}{
		{
			name: "unknown payment intent",
			req:  dto.SubmitRequest{PaymentIntentID: intentID},
			setupMock: func(f *fixture) {
				f.repo.EXPECT().FindByPaymentIntent(gomock.Any(), intentID).Return(model.Record{}, nil)
			},
			wantErr:  true,
			wantCode: http.StatusNotFound,
		},
		{
			name: "already processed short-circuits",
			req:  dto.SubmitRequest{PaymentIntentID: intentID},
			setupMock: func(f *fixture) {
				confirmed := withStatus(pendingRecord(), model.StatusConfirmed)
				confirmed.ProviderBookingID = "up-1"

				f.repo.EXPECT().FindByPaymentIntent(gomock.Any(), intentID).Return(confirmed, nil)
			},
			wantSuccess: true,
			wantStatus:  model.StatusConfirmed,
			wantBooking: "up-1",
		},
		{
			name: "failed payment stays failed",
			req:  dto.SubmitRequest{PaymentIntentID: intentID, PaymentMethodID: "pm_other"},
			setupMock: func(f *fixture) {
				failed := withStatus(pendingRecord(), model.StatusPaymentFailed)
				failed.PaymentFailureReason = "Your card was declined."

				f.repo.EXPECT().FindByPaymentIntent(gomock.Any(), intentID).Return(failed, nil)
				f.payments.EXPECT().
					GetPaymentIntent(gomock.Any(), intentID).
					Return(stripe.PaymentIntent{ID: intentID, Status: stripe.StatusRequiresPaymentMethod}, nil)
			},
			wantErr:  true,
			wantCode: http.StatusPaymentRequired,
		},
		{
			name: "failed payment paid later goes to manual review",
			req:  dto.SubmitRequest{PaymentIntentID: intentID},
			setupMock: func(f *fixture) {
				failed := withStatus(pendingRecord(), model.StatusPaymentFailed)
				review := withStatus(pendingRecord(), model.StatusPendingManualReview)
				review.RequiresManualReview = true

				gomock.InOrder(
					f.repo.EXPECT().FindByPaymentIntent(gomock.Any(), intentID).Return(failed, nil),
					f.payments.EXPECT().GetPaymentIntent(gomock.Any(), intentID).Return(stripe.PaymentIntent{ID: intentID, Status: stripe.StatusSucceeded}, nil),
					f.repo.EXPECT().
						Transition(gomock.Any(), intentID, transitionTo(model.StatusPaymentSucceeded)).
						Return(failed, false, &model.TransitionError{From: model.StatusPaymentFailed, To: model.StatusPaymentSucceeded}),
					f.alerts.EXPECT().Notify(gomock.Any(), alertModel.KindManualReviewRequired, gomock.Any()),
					f.repo.EXPECT().Transition(gomock.Any(), intentID, transitionTo(model.StatusPendingManualReview)).Return(review, true, nil),
				)
			},
			wantSuccess: true,
			wantStatus:  model.StatusPendingManualReview,
			wantNotice:  true,
		},
		{
			name: "paid intent is confirmed with the provider",
			req:  dto.SubmitRequest{PaymentIntentID: intentID},
			setupMock: func(f *fixture) {
				claimed := withStatus(pendingRecord(), model.StatusPaymentSucceeded)
				confirmed := withStatus(pendingRecord(), model.StatusConfirmed)
				confirmed.ProviderBookingID = "up-1"

				gomock.InOrder(
					f.repo.EXPECT().FindByPaymentIntent(gomock.Any(), intentID).Return(pendingRecord(), nil),
					f.payments.EXPECT().GetPaymentIntent(gomock.Any(), intentID).Return(stripe.PaymentIntent{ID: intentID, Status: stripe.StatusSucceeded}, nil),
					f.repo.EXPECT().Transition(gomock.Any(), intentID, transitionTo(model.StatusPaymentSucceeded)).Return(claimed, true, nil),
					f.provider.EXPECT().
						CreateBooking(gomock.Any(), uplisting.BookingRequest{
							PropertyID:     "prop-1",
							CheckIn:        "2025-12-20",
							CheckOut:       "2025-12-23",
							GuestName:      "Anna Muster",
							GuestEmail:     "anna@example.com",
							NumberOfGuests: 3,
						}).
						Return("up-1", nil),
					f.repo.EXPECT().
						Transition(gomock.Any(), intentID, model.Transition{To: model.StatusConfirmed, ProviderBookingID: "up-1"}).
						Return(confirmed, true, nil),
				)
			},
			wantSuccess: true,
			wantStatus:  model.StatusConfirmed,
			wantBooking: "up-1",
		},
		{
			name: "confirming with a payment method uses a confirm key",
			req:  dto.SubmitRequest{PaymentIntentID: intentID, PaymentMethodID: "pm_card"},
			setupMock: func(f *fixture) {
				f.repo.EXPECT().FindByPaymentIntent(gomock.Any(), intentID).Return(pendingRecord(), nil)
				f.payments.EXPECT().
					ConfirmPaymentIntent(gomock.Any(), intentID, "pm_card", "confirm_"+intentID).
					Return(stripe.PaymentIntent{ID: intentID, Status: stripe.StatusRequiresAction}, nil)
			},
			wantStatus: model.StatusPendingPayment,
		},
		{
			name: "provider failures past the retry budget escalate",
			req:  dto.SubmitRequest{PaymentIntentID: intentID},
			setupMock: func(f *fixture) {
				claimed := withStatus(pendingRecord(), model.StatusPaymentSucceeded)
				review := withStatus(pendingRecord(), model.StatusPendingManualReview)
				review.RequiresManualReview = true

				f.repo.EXPECT().FindByPaymentIntent(gomock.Any(), intentID).Return(pendingRecord(), nil)
				f.payments.EXPECT().GetPaymentIntent(gomock.Any(), intentID).Return(stripe.PaymentIntent{ID: intentID, Status: stripe.StatusSucceeded}, nil)
				f.repo.EXPECT().Transition(gomock.Any(), intentID, transitionTo(model.StatusPaymentSucceeded)).Return(claimed, true, nil)
				f.provider.EXPECT().
					CreateBooking(gomock.Any(), gomock.Any()).
					Return("", &uplisting.ProviderError{Operation: "create booking", StatusCode: http.StatusServiceUnavailable}).
					Times(2)
				f.alerts.EXPECT().
					Notify(gomock.Any(), alertModel.KindManualReviewRequired, gomock.Any()).
					Do(func(_ context.Context, _ alertModel.Kind, payload alertModel.Payload) {
						assert.Equal(t, intentID, payload.PaymentIntentID)
						assert.Equal(t, 2, payload.Attempts)
						assert.Equal(t, "CHF 1077.00", payload.Amount)
					})
				f.repo.EXPECT().
					Transition(gomock.Any(), intentID, transitionTo(model.StatusPendingManualReview)).
					DoAndReturn(func(_ context.Context, _ string, transition model.Transition) (model.Record, bool, error) {
						assert.Contains(t, transition.ManualReviewReason, "after 2 attempt(s)")

						return review, true, nil
					})
			},
			wantSuccess: true,
			wantStatus:  model.StatusPendingManualReview,
			wantNotice:  true,
		},
		{
			name: "provider rejection is not retried",
			req:  dto.SubmitRequest{PaymentIntentID: intentID},
			setupMock: func(f *fixture) {
				claimed := withStatus(pendingRecord(), model.StatusPaymentSucceeded)
				review := withStatus(pendingRecord(), model.StatusPendingManualReview)
				review.RequiresManualReview = true

				f.repo.EXPECT().FindByPaymentIntent(gomock.Any(), intentID).Return(pendingRecord(), nil)
				f.payments.EXPECT().GetPaymentIntent(gomock.Any(), intentID).Return(stripe.PaymentIntent{ID: intentID, Status: stripe.StatusSucceeded}, nil)
				f.repo.EXPECT().Transition(gomock.Any(), intentID, transitionTo(model.StatusPaymentSucceeded)).Return(claimed, true, nil)
				f.provider.EXPECT().
					CreateBooking(gomock.Any(), gomock.Any()).
					Return("", &uplisting.ProviderError{Operation: "create booking", StatusCode: http.StatusUnprocessableEntity}).
					Times(1)
				f.alerts.EXPECT().Notify(gomock.Any(), alertModel.KindManualReviewRequired, gomock.Any())
				f.repo.EXPECT().Transition(gomock.Any(), intentID, transitionTo(model.StatusPendingManualReview)).Return(review, true, nil)
			},
			wantSuccess: true,
			wantStatus:  model.StatusPendingManualReview,
			wantNotice:  true,
		},
		{
			name: "provider booking made but local confirm fails",
			req:  dto.SubmitRequest{PaymentIntentID: intentID},
			setupMock: func(f *fixture) {
				claimed := withStatus(pendingRecord(), model.StatusPaymentSucceeded)

				f.repo.EXPECT().FindByPaymentIntent(gomock.Any(), intentID).Return(pendingRecord(), nil)
				f.payments.EXPECT().GetPaymentIntent(gomock.Any(), intentID).Return(stripe.PaymentIntent{ID: intentID, Status: stripe.StatusSucceeded}, nil)
				f.repo.EXPECT().Transition(gomock.Any(), intentID, transitionTo(model.StatusPaymentSucceeded)).Return(claimed, true, nil)
				f.provider.EXPECT().CreateBooking(gomock.Any(), gomock.Any()).Return("up-9", nil)
				f.repo.EXPECT().Transition(gomock.Any(), intentID, transitionTo(model.StatusConfirmed)).Return(model.Record{}, false, errors.New("connection reset"))
				f.alerts.EXPECT().
					Notify(gomock.Any(), alertModel.KindManualReviewRequired, gomock.Any()).
					Do(func(_ context.Context, _ alertModel.Kind, payload alertModel.Payload) {
						assert.Equal(t, "up-9", payload.ProviderBookingID)
					})
				f.repo.EXPECT().Transition(gomock.Any(), intentID, transitionTo(model.StatusPendingManualReview)).Return(model.Record{}, false, errors.New("connection reset"))
			},
			wantSuccess: true,
			wantStatus:  model.StatusPendingManualReview,
			wantNotice:  true,
			wantBooking: "up-9",
		},
		{
			name: "card declined on confirm",
			req:  dto.SubmitRequest{PaymentIntentID: intentID, PaymentMethodID: "pm_card"},
			setupMock: func(f *fixture) {
				f.repo.EXPECT().FindByPaymentIntent(gomock.Any(), intentID).Return(pendingRecord(), nil)
				f.payments.EXPECT().ConfirmPaymentIntent(gomock.Any(), intentID, "pm_card", gomock.Any()).Return(stripe.PaymentIntent{}, declined).Times(1)
				f.repo.EXPECT().
					Transition(gomock.Any(), intentID, model.Transition{To: model.StatusPaymentFailed, PaymentFailureReason: "Your card was declined."}).
					Return(withStatus(pendingRecord(), model.StatusPaymentFailed), true, nil)
			},
			wantErr:  true,
			wantCode: http.StatusPaymentRequired,
		},
		{
			name: "canceled intent fails the payment",
			req:  dto.SubmitRequest{PaymentIntentID: intentID},
			setupMock: func(f *fixture) {
				f.repo.EXPECT().FindByPaymentIntent(gomock.Any(), intentID).Return(pendingRecord(), nil)
				f.payments.EXPECT().GetPaymentIntent(gomock.Any(), intentID).Return(stripe.PaymentIntent{ID: intentID, Status: stripe.StatusCanceled}, nil)
				f.repo.EXPECT().Transition(gomock.Any(), intentID, transitionTo(model.StatusPaymentFailed)).Return(withStatus(pendingRecord(), model.StatusPaymentFailed), true, nil)
			},
			wantErr:  true,
			wantCode: http.StatusPaymentRequired,
		},
		{
			name: "payment provider unreachable",
			req:  dto.SubmitRequest{PaymentIntentID: intentID},
			setupMock: func(f *fixture) {
				f.repo.EXPECT().FindByPaymentIntent(gomock.Any(), intentID).Return(pendingRecord(), nil)
				f.payments.EXPECT().GetPaymentIntent(gomock.Any(), intentID).Return(stripe.PaymentIntent{}, errors.New("dial tcp: timeout")).Times(2)
			},
			wantErr:  true,
			wantCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			res, err := f.svc.Submit(context.Background(), tt.req)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, failure.GetCode(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, string(tt.wantStatus), res.BookingStatus)
			assert.Equal(t, tt.wantNotice, res.RequiresReviewNotice != "")
			assert.Equal(t, tt.wantBooking, res.ProviderBookingID)
		})
	}
}

func TestBookingService_HandleWebhook(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)

	succeeded := stripe.WebhookEvent{ID: "evt_1", Type: stripe.EventPaymentSucceeded, Intent: stripe.PaymentIntent{ID: intentID, Status: stripe.StatusSucceeded}}

	tests := []struct {
		name      string
		setupMock func(f *fixture)
		wantErr   bool
		wantCode  int
	}{
		{
			name: "bad signature",
			setupMock: func(f *fixture) {
				f.payments.EXPECT().ParseWebhook(payload, "sig").Return(stripe.WebhookEvent{}, fmt.Errorf("%w: mismatch", stripe.ErrInvalidSignature))
			},
			wantErr:  true,
			wantCode: http.StatusBadRequest,
		},
		{
			name: "secret not configured",
			setupMock: func(f *fixture) {
				f.payments.EXPECT().ParseWebhook(payload, "sig").Return(stripe.WebhookEvent{}, stripe.ErrMissingWebhookSecret)
			},
			wantErr:  true,
			wantCode: http.StatusInternalServerError,
		},
		{
			name: "duplicate success delivery makes no provider call",
			setupMock: func(f *fixture) {
				f.payments.EXPECT().ParseWebhook(payload, "sig").Return(succeeded, nil)
				f.repo.EXPECT().IsAlreadyProcessed(gomock.Any(), intentID).Return(true, nil)
				f.repo.EXPECT().FindByPaymentIntent(gomock.Any(), intentID).Return(withStatus(pendingRecord(), model.StatusConfirmed), nil)
			},
		},
		{
			name: "success runs the booking pipeline",
			setupMock: func(f *fixture) {
				f.payments.EXPECT().ParseWebhook(payload, "sig").Return(succeeded, nil)
				f.repo.EXPECT().IsAlreadyProcessed(gomock.Any(), intentID).Return(false, nil)
				f.repo.EXPECT().Transition(gomock.Any(), intentID, transitionTo(model.StatusPaymentSucceeded)).Return(withStatus(pendingRecord(), model.StatusPaymentSucceeded), true, nil)
				f.provider.EXPECT().CreateBooking(gomock.Any(), gomock.Any()).Return("up-1", nil)
				f.repo.EXPECT().Transition(gomock.Any(), intentID, transitionTo(model.StatusConfirmed)).Return(withStatus(pendingRecord(), model.StatusConfirmed), true, nil)
			},
		},
		{
			name: "claim lost to a concurrent request",
			setupMock: func(f *fixture) {
				f.payments.EXPECT().ParseWebhook(payload, "sig").Return(succeeded, nil)
				f.repo.EXPECT().IsAlreadyProcessed(gomock.Any(), intentID).Return(false, nil)
				f.repo.EXPECT().Transition(gomock.Any(), intentID, transitionTo(model.StatusPaymentSucceeded)).Return(withStatus(pendingRecord(), model.StatusPaymentSucceeded), false, nil)
			},
		},
		{
			name: "success for unknown booking",
			setupMock: func(f *fixture) {
				f.payments.EXPECT().ParseWebhook(payload, "sig").Return(succeeded, nil)
				f.repo.EXPECT().IsAlreadyProcessed(gomock.Any(), intentID).Return(false, nil)
				f.repo.EXPECT().Transition(gomock.Any(), intentID, gomock.Any()).Return(model.Record{}, false, gRepo.ErrNotFound)
			},
			wantErr:  true,
			wantCode: http.StatusNotFound,
		},
		{
			name: "success after recorded failure needs review",
			setupMock: func(f *fixture) {
				failed := withStatus(pendingRecord(), model.StatusPaymentFailed)

				f.payments.EXPECT().ParseWebhook(payload, "sig").Return(succeeded, nil)
				f.repo.EXPECT().IsAlreadyProcessed(gomock.Any(), intentID).Return(false, nil)
				f.repo.EXPECT().
					Transition(gomock.Any(), intentID, transitionTo(model.StatusPaymentSucceeded)).
					Return(failed, false, &model.TransitionError{From: model.StatusPaymentFailed, To: model.StatusPaymentSucceeded})
				f.alerts.EXPECT().Notify(gomock.Any(), alertModel.KindManualReviewRequired, gomock.Any())
				f.repo.EXPECT().
					Transition(gomock.Any(), intentID, transitionTo(model.StatusPendingManualReview)).
					DoAndReturn(func(_ context.Context, _ string, transition model.Transition) (model.Record, bool, error) {
						assert.NotEmpty(t, transition.ManualReviewReason)

						return withStatus(failed, model.StatusPendingManualReview), true, nil
					})
			},
		},
		{
			name: "payment failure is recorded with the provider message",
			setupMock: func(f *fixture) {
				f.payments.EXPECT().ParseWebhook(payload, "sig").Return(stripe.WebhookEvent{
					Type:   stripe.EventPaymentFailed,
					Intent: stripe.PaymentIntent{ID: intentID, FailureMessage: "Insufficient funds."},
				}, nil)
				f.repo.EXPECT().
					Transition(gomock.Any(), intentID, model.Transition{To: model.StatusPaymentFailed, PaymentFailureReason: "Insufficient funds."}).
					Return(withStatus(pendingRecord(), model.StatusPaymentFailed), true, nil)
			},
		},
		{
			name: "late failure after success is ignored",
			setupMock: func(f *fixture) {
				f.payments.EXPECT().ParseWebhook(payload, "sig").Return(stripe.WebhookEvent{
					Type:   stripe.EventPaymentFailed,
					Intent: stripe.PaymentIntent{ID: intentID},
				}, nil)
				f.repo.EXPECT().
					Transition(gomock.Any(), intentID, transitionTo(model.StatusPaymentFailed)).
					Return(withStatus(pendingRecord(), model.StatusConfirmed), false, &model.TransitionError{From: model.StatusConfirmed, To: model.StatusPaymentFailed})
			},
		},
		{
			name: "other events are acknowledged",
			setupMock: func(f *fixture) {
				f.payments.EXPECT().ParseWebhook(payload, "sig").Return(stripe.WebhookEvent{Type: "charge.refunded"}, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			err := f.svc.HandleWebhook(context.Background(), payload, "sig")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, failure.GetCode(err))

				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestBookingService_Get(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(f *fixture)
		wantErr   bool
		wantCode  int
	}{
		{
			name: "found",
			setupMock: func(f *fixture) {
				f.repo.EXPECT().FindByID(gomock.Any(), "b-1").Return(pendingRecord(), nil)
			},
		},
		{
			name: "missing",
			setupMock: func(f *fixture) {
				f.repo.EXPECT().FindByID(gomock.Any(), "b-1").Return(model.Record{}, nil)
			},
			wantErr:  true,
			wantCode: http.StatusNotFound,
		},
		{
			name: "store error",
			setupMock: func(f *fixture) {
				f.repo.EXPECT().FindByID(gomock.Any(), "b-1").Return(model.Record{}, errors.New("boom"))
			},
			wantErr:  true,
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			res, err := f.svc.Get(context.Background(), "b-1")
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, failure.GetCode(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "b-1", res.ID)
			assert.Equal(t, "2025-12-20", res.CheckIn)
			assert.Equal(t, string(model.StatusPendingPayment), res.BookingStatus)
		})
	}
}

func TestBookingService_GetAll(t *testing.T) {
	f := newFixture(t)

	f.repo.EXPECT().Count(gomock.Any(), gomock.Any()).Return(11, nil)
	f.repo.EXPECT().GetAll(gomock.Any(), gomock.Any(), gomock.Any()).Return([]model.Record{pendingRecord()}, nil)

	review := true
	filter := dto.ListFilter{RequiresManualReview: &review}

	res, err := f.svc.GetAll(context.Background(), gDto.QueryParams{Page: 1, Limit: 10}, filter.ToFilterGroup())
	require.NoError(t, err)

	assert.Equal(t, 11, res.TotalData)
	assert.Equal(t, 2, res.TotalPage)
	assert.Len(t, res.Bookings, 1)
}

// memoryStore applies transitions under one lock, the way the conditional update does in
// the database.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]model.Record
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string]model.Record{}}
}

func (m *memoryStore) Create(_ context.Context, record model.Record) (model.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.records[record.PaymentIntentID]; ok {
		return existing, false, nil
	}

	m.records[record.PaymentIntentID] = record

	return record, true, nil
}

func (m *memoryStore) FindByPaymentIntent(_ context.Context, paymentIntentID string) (model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.records[paymentIntentID], nil
}

func (m *memoryStore) FindByID(_ context.Context, id string) (model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, record := range m.records {
		if record.ID == id {
			return record, nil
		}
	}

	return model.Record{}, nil
}

func (m *memoryStore) IsAlreadyProcessed(ctx context.Context, paymentIntentID string) (bool, error) {
	record, _ := m.FindByPaymentIntent(ctx, paymentIntentID)

	return record.IsAlreadyProcessed(), nil
}

func (m *memoryStore) Transition(_ context.Context, paymentIntentID string, transition model.Transition) (model.Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[paymentIntentID]
	if !ok {
		return model.Record{}, false, gRepo.ErrNotFound
	}

	if !record.BookingStatus.CanTransition(transition.To) {
		if record.BookingStatus == transition.To {
			return record, false, nil
		}

		return record, false, &model.TransitionError{From: record.BookingStatus, To: transition.To}
	}

	record.BookingStatus = transition.To
	record.PaymentStatus = model.PaymentStatusFor(transition.To)

	if transition.ProviderBookingID != "" {
		record.ProviderBookingID = transition.ProviderBookingID
	}

	if transition.To == model.StatusPendingManualReview {
		record.RequiresManualReview = true
		record.ManualReviewReason = transition.ManualReviewReason
	}

	if transition.To == model.StatusPaymentFailed {
		record.PaymentFailureReason = transition.PaymentFailureReason
	}

	m.records[paymentIntentID] = record

	return record, true, nil
}

func (m *memoryStore) GetAll(context.Context, gDto.QueryParams, gDto.FilterGroup) ([]model.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]model.Record, 0, len(m.records))
	for _, record := range m.records {
		res = append(res, record)
	}

	return res, nil
}

func (m *memoryStore) Count(context.Context, gDto.FilterGroup) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.records), nil
}

func TestBookingService_ConcurrentSettlementCreatesOneBooking(t *testing.T) {
	ctrl := gomock.NewController(t)

	store := newMemoryStore()
	payments := stripeMocks.NewMockClient(ctrl)
	provider := uplistingMocks.NewMockClient(ctrl)
	alerts := alertMocks.NewMockSink(ctrl)

	svc := service.New(store, pricingMocks.NewMockPricing(ctrl), payments, provider, alerts, newConfig(), mocks.NewOtel())

	_, _, err := store.Create(context.Background(), pendingRecord())
	require.NoError(t, err)

	paid := stripe.PaymentIntent{ID: intentID, Status: stripe.StatusSucceeded}

	payments.EXPECT().
		ParseWebhook(gomock.Any(), gomock.Any()).
		Return(stripe.WebhookEvent{ID: "evt_1", Type: stripe.EventPaymentSucceeded, Intent: paid}, nil).
		AnyTimes()
	payments.EXPECT().GetPaymentIntent(gomock.Any(), intentID).Return(paid, nil).AnyTimes()
	provider.EXPECT().
		CreateBooking(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, uplisting.BookingRequest) (string, error) {
			time.Sleep(10 * time.Millisecond)

			return "up-1", nil
		}).
		Times(1)

	const workers = 8

	var wg sync.WaitGroup

	errs := make(chan error, workers*2)

	for range workers {
		wg.Add(2)

		go func() {
			defer wg.Done()

			errs <- svc.HandleWebhook(context.Background(), []byte(`{}`), "sig")
		}()

		go func() {
			defer wg.Done()

			_, err := svc.Submit(context.Background(), dto.SubmitRequest{PaymentIntentID: intentID})
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	record, err := store.FindByPaymentIntent(context.Background(), intentID)
	require.NoError(t, err)

	assert.Equal(t, model.StatusConfirmed, record.BookingStatus)
	assert.Equal(t, "up-1", record.ProviderBookingID)
}

func TestBookingService_ResubmittedCheckoutKeepsOneRecord(t *testing.T) {
	ctrl := gomock.NewController(t)

	store := newMemoryStore()
	pricing := pricingMocks.NewMockPricing(ctrl)
	payments := stripeMocks.NewMockClient(ctrl)

	svc := service.New(store, pricing, payments, uplistingMocks.NewMockClient(ctrl), alertMocks.NewMockSink(ctrl), newConfig(), mocks.NewOtel())

	keys := map[string]stripe.PaymentIntent{}

	pricing.EXPECT().Assess(gomock.Any(), gomock.Any()).Return(assessment(0), nil).Times(3)
	payments.EXPECT().
		CreatePaymentIntent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req stripe.CreateIntentRequest) (stripe.PaymentIntent, error) {
			if intent, ok := keys[req.IdempotencyKey]; ok {
				return intent, nil
			}

			intent := stripe.PaymentIntent{ID: fmt.Sprintf("pi_%d", len(keys)+1)}
			keys[req.IdempotencyKey] = intent

			return intent, nil
		}).
		Times(3)

	first, err := svc.Checkout(context.Background(), checkoutRequest(), "")
	require.NoError(t, err)

	second, err := svc.Checkout(context.Background(), checkoutRequest(), "")
	require.NoError(t, err)

	assert.Equal(t, first.PaymentIntentID, second.PaymentIntentID)
	assert.Equal(t, first.BookingID, second.BookingID)

	third, err := svc.Checkout(context.Background(), checkoutRequest(), "another-attempt")
	require.NoError(t, err)

	assert.NotEqual(t, first.PaymentIntentID, third.PaymentIntentID)

	total, err := store.Count(context.Background(), gDto.FilterGroup{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestBookingService_PaidAfterFailedWebhookIsFlagged(t *testing.T) {
	ctrl := gomock.NewController(t)

	store := newMemoryStore()
	payments := stripeMocks.NewMockClient(ctrl)
	alerts := alertMocks.NewMockSink(ctrl)

	svc := service.New(store, pricingMocks.NewMockPricing(ctrl), payments, uplistingMocks.NewMockClient(ctrl), alerts, newConfig(), mocks.NewOtel())

	_, _, err := store.Create(context.Background(), pendingRecord())
	require.NoError(t, err)

	gomock.InOrder(
		payments.EXPECT().ParseWebhook(gomock.Any(), gomock.Any()).Return(stripe.WebhookEvent{
			ID:     "evt_failed",
			Type:   stripe.EventPaymentFailed,
			Intent: stripe.PaymentIntent{ID: intentID, FailureMessage: "Your card was declined."},
		}, nil),
		payments.EXPECT().ParseWebhook(gomock.Any(), gomock.Any()).Return(stripe.WebhookEvent{
			ID:     "evt_paid",
			Type:   stripe.EventPaymentSucceeded,
			Intent: stripe.PaymentIntent{ID: intentID, Status: stripe.StatusSucceeded},
		}, nil),
	)
	alerts.EXPECT().Notify(gomock.Any(), alertModel.KindManualReviewRequired, gomock.Any()).Times(1)

	require.NoError(t, svc.HandleWebhook(context.Background(), []byte(`{}`), "sig"))
	require.NoError(t, svc.HandleWebhook(context.Background(), []byte(`{}`), "sig"))

	record, err := store.FindByPaymentIntent(context.Background(), intentID)
	require.NoError(t, err)

	assert.Equal(t, model.StatusPendingManualReview, record.BookingStatus)
	assert.Equal(t, model.PaymentStatusSucceeded, record.PaymentStatus)
	assert.True(t, record.RequiresManualReview)
	assert.NotEmpty(t, record.ManualReviewReason)
	assert.Equal(t, "Your card was declined.", record.PaymentFailureReason)
}

func TestBookingService_CheckoutAfterDeclineOpensNewIntent(t *testing.T) {
	ctrl := gomock.NewController(t)

	store := newMemoryStore()
	pricing := pricingMocks.NewMockPricing(ctrl)
	payments := stripeMocks.NewMockClient(ctrl)

	svc := service.New(store, pricing, payments, uplistingMocks.NewMockClient(ctrl), alertMocks.NewMockSink(ctrl), newConfig(), mocks.NewOtel())

	keys := map[string]stripe.PaymentIntent{}

	pricing.EXPECT().Assess(gomock.Any(), gomock.Any()).Return(assessment(0), nil).AnyTimes()
	payments.EXPECT().
		CreatePaymentIntent(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req stripe.CreateIntentRequest) (stripe.PaymentIntent, error) {
			if intent, ok := keys[req.IdempotencyKey]; ok {
				return intent, nil
			}

			intent := stripe.PaymentIntent{ID: fmt.Sprintf("pi_%d", len(keys)+1), Status: stripe.StatusRequiresPaymentMethod}
			keys[req.IdempotencyKey] = intent

			return intent, nil
		}).
		AnyTimes()
	payments.EXPECT().
		ConfirmPaymentIntent(gomock.Any(), "pi_1", "pm_bad", gomock.Any()).
		Return(stripe.PaymentIntent{}, &stripeGo.Error{HTTPStatusCode: http.StatusPaymentRequired, Type: stripeGo.ErrorTypeCard, Msg: "Your card was declined."})
	payments.EXPECT().
		ConfirmPaymentIntent(gomock.Any(), "pi_2", "pm_good", gomock.Any()).
		Return(stripe.PaymentIntent{ID: "pi_2", Status: stripe.StatusRequiresAction}, nil)

	first, err := svc.Checkout(context.Background(), checkoutRequest(), "")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", first.PaymentIntentID)

	_, err = svc.Submit(context.Background(), dto.SubmitRequest{PaymentIntentID: "pi_1", PaymentMethodID: "pm_bad"})
	assert.Equal(t, http.StatusPaymentRequired, failure.GetCode(err))

	second, err := svc.Checkout(context.Background(), checkoutRequest(), "")
	require.NoError(t, err)
	assert.Equal(t, "pi_2", second.PaymentIntentID)
	assert.Equal(t, string(model.StatusPendingPayment), second.BookingStatus)

	again, err := svc.Checkout(context.Background(), checkoutRequest(), "")
	require.NoError(t, err)
	assert.Equal(t, second.PaymentIntentID, again.PaymentIntentID)

	res, err := svc.Submit(context.Background(), dto.SubmitRequest{PaymentIntentID: "pi_2", PaymentMethodID: "pm_good"})
	require.NoError(t, err)
	assert.Equal(t, string(model.StatusPendingPayment), res.BookingStatus)

	repriced := assessment(0)
	repriced.Breakdown.GrandTotal = 120000

	pricing2 := pricingMocks.NewMockPricing(ctrl)
	pricing2.EXPECT().Assess(gomock.Any(), gomock.Any()).Return(repriced, nil)

	svc = service.New(store, pricing2, payments, uplistingMocks.NewMockClient(ctrl), alertMocks.NewMockSink(ctrl), newConfig(), mocks.NewOtel())

	third, err := svc.Checkout(context.Background(), checkoutRequest(), "")
	require.NoError(t, err)
	assert.Equal(t, "pi_3", third.PaymentIntentID)
}

func TestBookingService_StalledClaimEscalates(t *testing.T) {
	cfg := newConfig()
	cfg.Booking.ClaimStaleSeconds = 600

	stalled := withStatus(pendingRecord(), model.StatusPaymentSucceeded)
	stalled.UpdatedAt = timezone.Now().Add(-time.Hour)

	fresh := withStatus(pendingRecord(), model.StatusPaymentSucceeded)
	fresh.UpdatedAt = timezone.Now()

	review := withStatus(pendingRecord(), model.StatusPendingManualReview)
	review.RequiresManualReview = true

	t.Run("submit", func(t *testing.T) {
		f := newFixtureWithConfig(t, cfg)

		f.repo.EXPECT().FindByPaymentIntent(gomock.Any(), intentID).Return(stalled, nil)
		f.alerts.EXPECT().Notify(gomock.Any(), alertModel.KindManualReviewRequired, gomock.Any())
		f.repo.EXPECT().Transition(gomock.Any(), intentID, transitionTo(model.StatusPendingManualReview)).Return(review, true, nil)

		res, err := f.svc.Submit(context.Background(), dto.SubmitRequest{PaymentIntentID: intentID})
		require.NoError(t, err)
		assert.Equal(t, string(model.StatusPendingManualReview), res.BookingStatus)
		assert.NotEmpty(t, res.RequiresReviewNotice)
	})

	t.Run("webhook retry", func(t *testing.T) {
		f := newFixtureWithConfig(t, cfg)

		f.payments.EXPECT().ParseWebhook(gomock.Any(), gomock.Any()).Return(stripe.WebhookEvent{
			Type:   stripe.EventPaymentSucceeded,
			Intent: stripe.PaymentIntent{ID: intentID, Status: stripe.StatusSucceeded},
		}, nil)
		f.repo.EXPECT().IsAlreadyProcessed(gomock.Any(), intentID).Return(true, nil)
		f.repo.EXPECT().FindByPaymentIntent(gomock.Any(), intentID).Return(stalled, nil)
		f.alerts.EXPECT().Notify(gomock.Any(), alertModel.KindManualReviewRequired, gomock.Any())
		f.repo.EXPECT().Transition(gomock.Any(), intentID, transitionTo(model.StatusPendingManualReview)).Return(review, true, nil)

		assert.NoError(t, f.svc.HandleWebhook(context.Background(), []byte(`{}`), "sig"))
	})

	t.Run("claim still in flight", func(t *testing.T) {
		f := newFixtureWithConfig(t, cfg)

		f.repo.EXPECT().FindByPaymentIntent(gomock.Any(), intentID).Return(fresh, nil)

		res, err := f.svc.Submit(context.Background(), dto.SubmitRequest{PaymentIntentID: intentID})
		require.NoError(t, err)
		assert.Equal(t, string(model.StatusPaymentSucceeded), res.BookingStatus)
	})
}

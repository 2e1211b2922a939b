package service

//go:generate go run go.uber.org/mock/mockgen -source=./service.go -destination=../mocks/service_mock.go -package=mocks

import (
	"chalet/config"
	"chalet/infras/otel"
	calendarService "chalet/internal/domains/calendar/service"
	"chalet/internal/domains/pricing/model"
	validationModel "chalet/internal/domains/validation/model"
	validationService "chalet/internal/domains/validation/service"
	"chalet/shared/constant"
	"chalet/shared/money"
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

type Pricing interface {
	Assess(ctx context.Context, stay model.Stay) (model.Assessment, error)
}

type serviceImpl struct {
	calendar  calendarService.Calendar
	validator validationService.Validator
	cfg       *config.Config
	otel      otel.Otel
}

func New(calendar calendarService.Calendar, validator validationService.Validator, cfg *config.Config, otel otel.Otel) Pricing {
	return &serviceImpl{
		calendar:  calendar,
		validator: validator,
		cfg:       cfg,
		otel:      otel,
	}
}

// Assess validates and prices a stay over one calendar fetch. Pricing gaps are reported on the
// assessment; only provider failures are returned as errors.
func (s *serviceImpl) Assess(ctx context.Context, stay model.Stay) (res model.Assessment, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".pricing.Assess")
	defer scope.End()
	defer scope.TraceIfError(err)

	scope.SetAttribute("property_id", stay.PropertyID)

	res.Stay = stay

	res.Property, err = s.calendar.GetProperty(ctx, stay.PropertyID)
	if err != nil {
		return res, fmt.Errorf("failed to load property: %w", err)
	}

	cal, err := s.calendar.GetStayCalendar(ctx, stay.PropertyID, stay.CheckIn, stay.CheckOut)
	if err != nil {
		return res, fmt.Errorf("failed to load calendar: %w", err)
	}

	res.Validation = s.validator.Validate(validationModel.Input{
		Property: res.Property,
		CheckIn:  stay.CheckIn,
		CheckOut: stay.CheckOut,
		Guests:   stay.Guests,
	}, cal)

	fallback := money.ToMinor(s.cfg.Booking.FallbackNightlyRate)

	res.Quote, err = ComputeAccommodationTotal(cal, stay.CheckIn, stay.CheckOut, fallback, res.Property.Currency)

	switch {
	case errors.Is(err, model.ErrInvalidStay):
		res.Failure = model.PricingFailureInvalidStay

		return res, nil
	case errors.Is(err, model.ErrNoCalendarData):
		res.Failure = model.PricingFailureNoCalendarData

		log.Warn().Str("property_id", stay.PropertyID).Msg("provider returned no calendar data")

		return res, nil
	case err != nil:
		return res, fmt.Errorf("failed to price stay: %w", err)
	}

	if res.Quote.AllRatesMissing() {
		res.Failure = model.PricingFailureAllRates

		return res, nil
	}

	res.Breakdown = BuildBreakdown(res.Quote, res.Property.CleaningFee, s.cfg.Booking.VATRate)

	scope.SetAttributes(map[string]any{
		"quote.nights":        res.Quote.Nights,
		"quote.grand_total":   res.Breakdown.GrandTotal,
		"quote.used_fallback": res.Quote.UsedFallback,
	})

	return res, nil
}

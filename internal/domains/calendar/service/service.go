package service

//go:generate go run go.uber.org/mock/mockgen -source=./service.go -destination=../mocks/service_mock.go -package=mocks

import (
	"chalet/config"
	"chalet/infras/otel"
	"chalet/infras/uplisting"
	"chalet/internal/domains/calendar/model"
	"chalet/shared"
	"chalet/shared/cache"
	"chalet/shared/constant"
	"chalet/shared/money"
	"chalet/shared/retry"
	"chalet/shared/timezone"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	cacheGetProperty = "property:get"

	labelGetProperty     = "uplisting.get_property"
	labelGetAvailability = "uplisting.get_availability"
)

type Calendar interface {
	GetProperty(ctx context.Context, propertyID string) (model.Property, error)
	GetStayCalendar(ctx context.Context, propertyID string, checkIn, checkOut time.Time) (model.Calendar, error)
	InvalidateProperty(ctx context.Context, propertyID string) error
	InvalidateAllProperties(ctx context.Context) error
}

type serviceImpl struct {
	provider uplisting.Client
	cfg      *config.Config
	cache    cache.RedisCache
	otel     otel.Otel
}

func New(provider uplisting.Client, cfg *config.Config, cache cache.RedisCache, otel otel.Otel) Calendar {
	return &serviceImpl{
		provider: provider,
		cfg:      cfg,
		cache:    cache,
		otel:     otel,
	}
}

// GetProperty returns property constraints, served from cache when possible. Cache
// failures fall through to the provider.
func (s *serviceImpl) GetProperty(ctx context.Context, propertyID string) (res model.Property, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".calendar.GetProperty")
	defer scope.End()
	defer scope.TraceIfError(err)

	cacheKey := shared.BuildCacheKey(cacheGetProperty, propertyID)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Debug().Str("cacheKey", cacheKey).Msg("cache hit for property")

		return res, nil
	}

	if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Str("cacheKey", cacheKey).Msg("property cache unavailable, reading provider")
	}

	property, err := retry.Do(ctx, s.policy(labelGetProperty), func(ctx context.Context) (uplisting.Property, error) {
		return s.provider.GetProperty(ctx, propertyID)
	})
	if err != nil {
		log.Error().Err(err).Str("property_id", propertyID).Msg("failed to get property")

		return res, fmt.Errorf("failed to get property: %w", err)
	}

	res = s.toProperty(property)

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, time.Duration(s.cfg.Booking.PropertyCacheTTLSeconds)*time.Second); err != nil {
			log.Error().Err(err).Msg("failed to save property to cache")
		}
	}()

	return res, nil
}

// GetStayCalendar fetches the calendar covering a stay, including the day after checkout.
// Calendars carry prices and are never cached.
func (s *serviceImpl) GetStayCalendar(ctx context.Context, propertyID string, checkIn, checkOut time.Time) (res model.Calendar, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".calendar.GetStayCalendar")
	defer scope.End()
	defer scope.TraceIfError(err)

	from, to := model.FetchRange(checkIn, checkOut)

	days, err := retry.Do(ctx, s.policy(labelGetAvailability), func(ctx context.Context) ([]uplisting.CalendarDay, error) {
		return s.provider.GetAvailability(ctx, propertyID, timezone.FormatDay(from), timezone.FormatDay(to))
	})
	if err != nil {
		log.Error().Err(err).Str("property_id", propertyID).Msg("failed to get calendar")

		return res, fmt.Errorf("failed to get calendar: %w", err)
	}

	converted := make([]model.Day, 0, len(days))

	for _, day := range days {
		date, err := timezone.ParseDay(day.Date)
		if err != nil {
			log.Warn().Err(err).Str("property_id", propertyID).Msg("skipping calendar day with invalid date")

			continue
		}

		converted = append(converted, toDay(date, day))
	}

	scope.SetAttribute("calendar.days", len(converted))

	return model.NewCalendar(propertyID, converted), nil
}

func (s *serviceImpl) InvalidateProperty(ctx context.Context, propertyID string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".calendar.InvalidateProperty")
	defer scope.End()
	defer scope.TraceIfError(err)

	if err = s.cache.Delete(ctx, shared.BuildCacheKey(cacheGetProperty, propertyID)); err != nil {
		return fmt.Errorf("failed to invalidate property cache: %w", err)
	}

	return nil
}

func (s *serviceImpl) InvalidateAllProperties(ctx context.Context) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".calendar.InvalidateAllProperties")
	defer scope.End()
	defer scope.TraceIfError(err)

	if err = s.cache.Clear(ctx, shared.BuildCacheKey(cacheGetProperty, constant.Asterix)); err != nil {
		return fmt.Errorf("failed to clear property cache: %w", err)
	}

	return nil
}

func (s *serviceImpl) toProperty(property uplisting.Property) model.Property {
	res := model.Property{
		ID:                  property.ID,
		Name:                property.Name,
		MaxCapacity:         property.MaximumCapacity,
		MinimumLengthOfStay: property.MinimumLengthOfStay,
		CheckInTime:         property.CheckInTime,
		CheckOutTime:        property.CheckOutTime,
		Currency:            property.Currency,
	}

	if res.MaxCapacity <= 0 {
		res.MaxCapacity = s.cfg.Booking.DefaultMaxCapacity
	}

	if res.Currency == "" {
		res.Currency = s.cfg.Booking.Currency
	}

	if fee, ok := property.CleaningFee(); ok {
		res.CleaningFee = money.ToMinor(fee.Amount)
	}

	if fee, ok := property.ExtraGuestCharge(); ok {
		res.ExtraGuestFee = &model.ExtraGuestFee{GuestsIncluded: fee.GuestsIncluded, Amount: money.ToMinor(fee.Amount)}
	} else if s.cfg.Booking.ExtraGuestFee > 0 {
		res.ExtraGuestFee = &model.ExtraGuestFee{GuestsIncluded: s.cfg.Booking.IncludedGuests, Amount: money.ToMinor(s.cfg.Booking.ExtraGuestFee)}
	}

	return res
}

func toDay(date time.Time, day uplisting.CalendarDay) model.Day {
	res := model.Day{
		Date:                   date,
		Available:              day.Available,
		ClosedForArrival:       day.ClosedForArrival,
		ClosedForDeparture:     day.ClosedForDeparture,
		MinimumLengthOfStay:    day.MinimumLengthOfStay,
		MaximumAvailableNights: day.MaximumAvailableNights,
		Currency:               day.Currency,
	}

	// a zero price is a provider gap, not a free night
	if day.Rate != nil && *day.Rate > 0 {
		rate := money.ToMinor(*day.Rate)
		res.Rate = &rate
	}

	return res
}

// reads are idempotent, so any transient provider failure is retried
func (s *serviceImpl) policy(label string) retry.Policy {
	return retry.NewPolicy(s.cfg, label).WithRetryable(uplisting.IsRetryable)
}

package service

//go:generate go run go.uber.org/mock/mockgen -source=./service.go -destination=../mocks/service_mock.go -package=mocks

import (
	"chalet/config"
	calendarModel "chalet/internal/domains/calendar/model"
	"chalet/internal/domains/validation/model"
	"chalet/shared/money"
	"chalet/shared/timezone"
	"fmt"
)

const defaultMinimumStay = 1

type Validator interface {
	Validate(input model.Input, calendar calendarModel.Calendar) model.Result
}

type validatorImpl struct {
	cfg *config.Config
}

func New(cfg *config.Config) Validator {
	return &validatorImpl{cfg: cfg}
}

// Validate checks a stay against property rules and the calendar. Every check runs so the
// guest sees all violations at once.
func (v *validatorImpl) Validate(input model.Input, calendar calendarModel.Calendar) model.Result {
	var res model.Result

	totalGuests := input.Guests.Total()

	maxCapacity := input.Property.MaxCapacity
	if maxCapacity <= 0 {
		maxCapacity = v.cfg.Booking.DefaultMaxCapacity
	}

	if totalGuests > maxCapacity {
		res.Errors = append(res.Errors, model.Issue{
			Field: model.FieldGuests,
			Code:  model.CodeGuestCapacity,
			Message: fmt.Sprintf("This property can accommodate maximum %d %s. You selected %d %s.",
				maxCapacity, plural(maxCapacity, "guest"), totalGuests, plural(totalGuests, "guest")),
		})
	}

	if totalGuests <= 0 {
		res.Errors = append(res.Errors, model.Issue{
			Field:   model.FieldGuests,
			Code:    model.CodeNoGuests,
			Message: "Please select at least 1 guest.",
		})
	}

	nights := timezone.Nights(input.CheckIn, input.CheckOut)
	arrival, hasArrival := calendar.Day(input.CheckIn)

	if nights <= 0 {
		res.Errors = append(res.Errors, model.Issue{
			Field:   model.FieldDates,
			Code:    model.CodeInvalidRange,
			Message: "Check-out date must be after check-in date.",
		})
	} else {
		res.Errors = append(res.Errors, v.stayLength(input.Property, arrival, hasArrival, nights)...)
	}

	if hasArrival && arrival.ClosedForArrival {
		res.Errors = append(res.Errors, model.Issue{
			Field:   model.FieldCheckIn,
			Code:    model.CodeClosedForArrival,
			Message: "Check-in is not available on the selected date. Please choose a different date.",
		})
	}

	if departure, ok := calendar.Day(input.CheckOut); ok && departure.ClosedForDeparture {
		res.Errors = append(res.Errors, model.Issue{
			Field:   model.FieldCheckOut,
			Code:    model.CodeClosedForDeparture,
			Message: "Check-out is not available on the selected date. Please choose a different date.",
		})
	}

	for i := range max(nights, 0) {
		if day, ok := calendar.Day(input.CheckIn.AddDate(0, 0, i)); ok && !day.Available {
			res.Errors = append(res.Errors, model.Issue{
				Field:   model.FieldDates,
				Code:    model.CodeUnavailable,
				Message: "Some dates in your selected range are not available. Please choose different dates.",
			})

			break
		}
	}

	if fee := input.Property.ExtraGuestFee; fee != nil && fee.Amount > 0 && totalGuests > fee.GuestsIncluded {
		extraGuests := totalGuests - fee.GuestsIncluded
		res.ExtraGuestFee = int64(extraGuests) * fee.Amount

		currency := input.Property.Currency
		if currency == "" {
			currency = v.cfg.Booking.Currency
		}

		res.Warnings = append(res.Warnings, model.Issue{
			Field: model.FieldGuests,
			Code:  model.CodeExtraGuests,
			Message: fmt.Sprintf("Note: %d extra %s will incur an additional fee of %s.",
				extraGuests, plural(extraGuests, "guest"), money.Format(res.ExtraGuestFee, currency)),
		})
	}

	res.Valid = len(res.Errors) == 0

	return res
}

// stayLength applies the arrival day's stay rules, which take precedence over the property default.
func (v *validatorImpl) stayLength(property calendarModel.Property, arrival calendarModel.Day, hasArrival bool, nights int) []model.Issue {
	var issues []model.Issue

	minStay := property.MinimumLengthOfStay
	if hasArrival && arrival.MinimumLengthOfStay > 0 {
		minStay = arrival.MinimumLengthOfStay
	}

	if minStay <= 0 {
		minStay = defaultMinimumStay
	}

	if nights < minStay {
		issues = append(issues, model.Issue{
			Field: model.FieldDates,
			Code:  model.CodeMinStay,
			Message: fmt.Sprintf("This property requires a minimum stay of %d %s. You selected %d %s.",
				minStay, plural(minStay, "night"), nights, plural(nights, "night")),
		})
	}

	if hasArrival && arrival.MaximumAvailableNights != nil && *arrival.MaximumAvailableNights > 0 && nights > *arrival.MaximumAvailableNights {
		maxStay := *arrival.MaximumAvailableNights

		issues = append(issues, model.Issue{
			Field: model.FieldDates,
			Code:  model.CodeMaxStay,
			Message: fmt.Sprintf("Maximum stay for this property is %d %s. You selected %d %s.",
				maxStay, plural(maxStay, "night"), nights, plural(nights, "night")),
		})
	}

	return issues
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}

	return word + "s"
}

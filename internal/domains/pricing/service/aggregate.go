package service

import (
	calendarModel "chalet/internal/domains/calendar/model"
	"chalet/internal/domains/pricing/model"
	"chalet/shared/money"
	"chalet/shared/timezone"
	"math"
	"time"
)

// ComputeAccommodationTotal prices every night of a stay from the calendar. A night without
// a provider price is charged fallbackRate and its rate date is recorded in MissingRates.
func ComputeAccommodationTotal(calendar calendarModel.Calendar, checkIn, checkOut time.Time, fallbackRate int64, currency string) (model.Quote, error) {
	nights := timezone.Nights(checkIn, checkOut)
	if nights <= 0 {
		return model.Quote{}, model.ErrInvalidStay
	}

	if calendar.IsEmpty() {
		return model.Quote{}, model.ErrNoCalendarData
	}

	quote := model.Quote{
		Nights:       nights,
		NightlyRates: make([]model.NightlyRate, 0, nights),
		Currency:     calendar.Currency(currency),
	}

	for i := range nights {
		night := checkIn.AddDate(0, 0, i)
		rateDate := calendarModel.RateDateForNight(night)

		nightly := model.NightlyRate{Night: night, RateDate: rateDate}

		if day, ok := calendar.Day(rateDate); ok && day.Rate != nil {
			nightly.Rate = *day.Rate
		} else {
			nightly.Rate = fallbackRate
			nightly.IsFallback = true

			quote.UsedFallback = true
			quote.MissingRates = append(quote.MissingRates, rateDate)
		}

		quote.AccommodationTotal += nightly.Rate
		quote.NightlyRates = append(quote.NightlyRates, nightly)
	}

	quote.AveragePerNight = int64(math.Round(float64(quote.AccommodationTotal) / float64(nights)))

	return quote, nil
}

// BuildBreakdown adds the cleaning fee and VAT to a quote. VAT is charged on the subtotal.
func BuildBreakdown(quote model.Quote, cleaningFee int64, vatRate float64) model.Breakdown {
	subtotal := quote.AccommodationTotal + cleaningFee
	vat := money.Percent(subtotal, vatRate)

	return model.Breakdown{
		AccommodationTotal: quote.AccommodationTotal,
		CleaningFee:        cleaningFee,
		Subtotal:           subtotal,
		VATRate:            vatRate,
		VATAmount:          vat,
		GrandTotal:         subtotal + vat,
		Currency:           quote.Currency,
	}
}

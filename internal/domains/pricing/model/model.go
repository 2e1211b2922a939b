package model

import (
	calendarModel "chalet/internal/domains/calendar/model"
	validationModel "chalet/internal/domains/validation/model"
	"errors"
	"time"
)

var (
	ErrNoCalendarData = errors.New("no calendar data for the requested stay")
	ErrInvalidStay    = errors.New("check-out must be after check-in")
)

type PricingFailure string

const (
	PricingFailureNone           PricingFailure = ""
	PricingFailureInvalidStay    PricingFailure = "invalid_stay"
	PricingFailureNoCalendarData PricingFailure = "no_calendar_data"
	PricingFailureAllRates       PricingFailure = "all_rates_missing"
)

// NightlyRate prices the night starting on Night with the calendar rate keyed at RateDate.
type NightlyRate struct {
	Night      time.Time
	RateDate   time.Time
	Rate       int64
	IsFallback bool
}

// Quote is the accommodation price of a stay in minor units. AccommodationTotal is always
// the sum of NightlyRates, fallback nights included.
type Quote struct {
	Nights             int
	NightlyRates       []NightlyRate
	AccommodationTotal int64
	AveragePerNight    int64
	Currency           string
	UsedFallback       bool
	// MissingRates holds the rate dates the provider had no price for.
	MissingRates []time.Time
}

// AllRatesMissing reports a total pricing failure: no night had a real price.
func (q Quote) AllRatesMissing() bool {
	return q.Nights > 0 && len(q.MissingRates) == q.Nights
}

// PartialRatesMissing reports a flagged estimate: some, not all, nights used the fallback.
func (q Quote) PartialRatesMissing() bool {
	return len(q.MissingRates) > 0 && len(q.MissingRates) < q.Nights
}

type Breakdown struct {
	AccommodationTotal int64
	CleaningFee        int64
	Subtotal           int64
	VATRate            float64
	VATAmount          int64
	GrandTotal         int64
	Currency           string
}

type Stay struct {
	PropertyID string
	CheckIn    time.Time
	CheckOut   time.Time
	Guests     validationModel.Guests
}

// Assessment is the outcome of pricing and validating one stay over a single calendar fetch.
type Assessment struct {
	Stay       Stay
	Property   calendarModel.Property
	Validation validationModel.Result
	Quote      Quote
	Breakdown  Breakdown
	Failure    PricingFailure
}

// Priced reports whether the quote and breakdown can be shown and charged.
func (a Assessment) Priced() bool {
	return a.Failure == PricingFailureNone
}

// Available reports whether the stay can be checked out.
func (a Assessment) Available() bool {
	return a.Validation.Valid && a.Priced()
}

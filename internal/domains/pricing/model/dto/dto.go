package dto

import (
	"chalet/internal/domains/pricing/model"
	validationModel "chalet/internal/domains/validation/model"
	"chalet/shared/timezone"
	"time"
)

// QuoteRequest is read from the quote query string.
type QuoteRequest struct {
	PropertyID string `json:"property_id" validate:"required,max=64"`
	CheckIn    string `json:"check_in"    validate:"required,day"`
	CheckOut   string `json:"check_out"   validate:"required,day"`
	Adults     int    `json:"adults"      validate:"gte=0,lte=50"`
	Children   int    `json:"children"    validate:"gte=0,lte=50"`
	Infants    int    `json:"infants"     validate:"gte=0,lte=50"`
}

func (q *QuoteRequest) ToStay() (model.Stay, error) {
	return NewStay(q.PropertyID, q.CheckIn, q.CheckOut, validationModel.Guests{
		Adults:   q.Adults,
		Children: q.Children,
		Infants:  q.Infants,
	})
}

func NewStay(propertyID, checkIn, checkOut string, guests validationModel.Guests) (model.Stay, error) {
	in, err := timezone.ParseDay(checkIn)
	if err != nil {
		return model.Stay{}, err
	}

	out, err := timezone.ParseDay(checkOut)
	if err != nil {
		return model.Stay{}, err
	}

	return model.Stay{PropertyID: propertyID, CheckIn: in, CheckOut: out, Guests: guests}, nil
}

// Amounts are in minor currency units.
type NightlyRateResponse struct {
	Night      string `json:"night"`
	Rate       int64  `json:"rate"`
	IsFallback bool   `json:"is_fallback"`
}

type QuoteResponse struct {
	Nights             int                   `json:"nights"`
	NightlyRates       []NightlyRateResponse `json:"nightly_rates"`
	AccommodationTotal *int64                `json:"accommodation_total,omitempty"`
	AveragePerNight    *int64                `json:"average_per_night,omitempty"`
	Currency           string                `json:"currency"`
	UsedFallback       bool                  `json:"used_fallback"`
	MissingRates       []string              `json:"missing_rates"`
}

// FromModel fills the quote. Totals are left out when they are not a real price.
func (r *QuoteResponse) FromModel(quote model.Quote, priced bool) {
	r.Nights = quote.Nights
	r.Currency = quote.Currency
	r.UsedFallback = quote.UsedFallback
	r.MissingRates = formatDays(quote.MissingRates)

	r.NightlyRates = make([]NightlyRateResponse, len(quote.NightlyRates))
	for i, nightly := range quote.NightlyRates {
		r.NightlyRates[i] = NightlyRateResponse{
			Night:      timezone.FormatDay(nightly.Night),
			Rate:       nightly.Rate,
			IsFallback: nightly.IsFallback,
		}
	}

	if priced {
		total, average := quote.AccommodationTotal, quote.AveragePerNight
		r.AccommodationTotal = &total
		r.AveragePerNight = &average
	}
}

type BreakdownResponse struct {
	AccommodationTotal int64   `json:"accommodation_total"`
	CleaningFee        int64   `json:"cleaning_fee"`
	Subtotal           int64   `json:"subtotal"`
	VATRate            float64 `json:"vat_rate"`
	VATAmount          int64   `json:"vat_amount"`
	GrandTotal         int64   `json:"grand_total"`
	Currency           string  `json:"currency"`
}

func (r *BreakdownResponse) FromModel(breakdown model.Breakdown) {
	r.AccommodationTotal = breakdown.AccommodationTotal
	r.CleaningFee = breakdown.CleaningFee
	r.Subtotal = breakdown.Subtotal
	r.VATRate = breakdown.VATRate
	r.VATAmount = breakdown.VATAmount
	r.GrandTotal = breakdown.GrandTotal
	r.Currency = breakdown.Currency
}

type AssessmentResponse struct {
	PropertyID    string                  `json:"property_id"`
	CheckIn       string                  `json:"check_in"`
	CheckOut      string                  `json:"check_out"`
	Available     bool                    `json:"available"`
	Valid         bool                    `json:"valid"`
	Errors        []validationModel.Issue `json:"errors"`
	Warnings      []validationModel.Issue `json:"warnings"`
	ExtraGuestFee int64                   `json:"extra_guest_fee"`
	Failure       string                  `json:"pricing_failure,omitempty"`
	Quote         QuoteResponse           `json:"quote"`
	Breakdown     *BreakdownResponse      `json:"breakdown,omitempty"`
}

func (r *AssessmentResponse) FromModel(assessment model.Assessment) {
	r.PropertyID = assessment.Stay.PropertyID
	r.CheckIn = timezone.FormatDay(assessment.Stay.CheckIn)
	r.CheckOut = timezone.FormatDay(assessment.Stay.CheckOut)
	r.Available = assessment.Available()
	r.Valid = assessment.Validation.Valid
	r.Errors = nonNil(assessment.Validation.Errors)
	r.Warnings = nonNil(assessment.Validation.Warnings)
	r.ExtraGuestFee = assessment.Validation.ExtraGuestFee
	r.Failure = string(assessment.Failure)
	r.Quote.FromModel(assessment.Quote, assessment.Priced())

	if assessment.Priced() {
		r.Breakdown = &BreakdownResponse{}
		r.Breakdown.FromModel(assessment.Breakdown)
	}
}

func nonNil(issues []validationModel.Issue) []validationModel.Issue {
	if issues == nil {
		return []validationModel.Issue{}
	}

	return issues
}

func formatDays(days []time.Time) []string {
	res := make([]string, len(days))
	for i, day := range days {
		res[i] = timezone.FormatDay(day)
	}

	return res
}

package model

import (
	"chalet/shared/timezone"
	"sort"
	"time"
)

const EntityName = "property"

// Day is one provider calendar day. Rate is in minor units and nil when the provider has no price.
type Day struct {
	Date                   time.Time
	Available              bool
	ClosedForArrival       bool
	ClosedForDeparture     bool
	MinimumLengthOfStay    int
	MaximumAvailableNights *int
	Rate                   *int64
	Currency               string
}

// Calendar is an ascending run of days for one property, looked up by calendar date.
type Calendar struct {
	PropertyID string
	Days       []Day
	index      map[string]int
}

func NewCalendar(propertyID string, days []Day) Calendar {
	sorted := make([]Day, len(days))
	copy(sorted, days)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	index := make(map[string]int, len(sorted))
	for i, day := range sorted {
		index[timezone.FormatDay(day.Date)] = i
	}

	return Calendar{
		PropertyID: propertyID,
		Days:       sorted,
		index:      index,
	}
}

func (c Calendar) Day(date time.Time) (Day, bool) {
	i, ok := c.index[timezone.FormatDay(date)]
	if !ok {
		return Day{}, false
	}

	return c.Days[i], true
}

func (c Calendar) IsEmpty() bool {
	return len(c.Days) == 0
}

// Currency returns the first currency the provider reported, or fallback.
func (c Calendar) Currency(fallback string) string {
	for _, day := range c.Days {
		if day.Currency != "" {
			return day.Currency
		}
	}

	return fallback
}

// RateDateForNight returns the calendar date whose rate prices the night starting on night.
// The provider keys a night's price to the following date, the departure date of that night.
func RateDateForNight(night time.Time) time.Time {
	return night.AddDate(0, 0, 1)
}

// FetchRange returns the provider range needed to price and validate a stay. The last night
// is priced on the checkout date, so the range runs one day past checkout.
func FetchRange(checkIn, checkOut time.Time) (from, to time.Time) {
	return checkIn, RateDateForNight(checkOut)
}

type ExtraGuestFee struct {
	GuestsIncluded int   `json:"guests_included"`
	Amount         int64 `json:"amount"`
}

// Property holds the booking constraints and fees of a rental. Amounts are minor units.
type Property struct {
	ID                  string         `json:"id"`
	Name                string         `json:"name"`
	MaxCapacity         int            `json:"max_capacity"`
	MinimumLengthOfStay int            `json:"minimum_length_of_stay"`
	CheckInTime         string         `json:"check_in_time"`
	CheckOutTime        string         `json:"check_out_time"`
	Currency            string         `json:"currency"`
	CleaningFee         int64          `json:"cleaning_fee"`
	ExtraGuestFee       *ExtraGuestFee `json:"extra_guest_fee,omitempty"`
}

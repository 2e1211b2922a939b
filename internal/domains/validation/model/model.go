package model

import (
	calendarModel "chalet/internal/domains/calendar/model"
	"time"
)

const (
	FieldGeneral  = "general"
	FieldGuests   = "guests"
	FieldDates    = "dates"
	FieldCheckIn  = "check_in"
	FieldCheckOut = "check_out"
)

const (
	CodeNoGuests           = "no_guests"
	CodeGuestCapacity      = "guest_capacity"
	CodeInvalidRange       = "invalid_range"
	CodeMinStay            = "min_stay"
	CodeMaxStay            = "max_stay"
	CodeClosedForArrival   = "closed_for_arrival"
	CodeClosedForDeparture = "closed_for_departure"
	CodeUnavailable        = "unavailable"
	CodeExtraGuests        = "extra_guests"
)

type Guests struct {
	Adults   int
	Children int
	Infants  int
}

func (g Guests) Total() int {
	return g.Adults + g.Children + g.Infants
}

type Input struct {
	Property calendarModel.Property
	CheckIn  time.Time
	CheckOut time.Time
	Guests   Guests
}

type Issue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result lists every violated constraint. Warnings never make a stay invalid.
type Result struct {
	Valid    bool
	Errors   []Issue
	Warnings []Issue
	// ExtraGuestFee is the surcharge announced by the extra guests warning, in minor units.
	ExtraGuestFee int64
}

func (r Result) HasError(code string) bool {
	for _, issue := range r.Errors {
		if issue.Code == code {
			return true
		}
	}

	return false
}

package model

import "time"

type Kind string

const (
	KindAllRatesMissing      Kind = "all_rates_missing"
	KindPartialRatesMissing  Kind = "partial_rates_missing"
	KindManualReviewRequired Kind = "manual_review_required"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Severity is critical for anything that blocks a booking or leaves a charged guest without one.
func (k Kind) Severity() Severity {
	if k == KindPartialRatesMissing {
		return SeverityWarning
	}

	return SeverityCritical
}

// Payload carries whatever an operator needs to act on an alert. Empty fields are omitted.
type Payload struct {
	PropertyID        string         `json:"property_id,omitempty"`
	CheckIn           string         `json:"check_in,omitempty"`
	CheckOut          string         `json:"check_out,omitempty"`
	Nights            int            `json:"nights,omitempty"`
	MissingDates      []string       `json:"missing_dates,omitempty"`
	FallbackRate      string         `json:"fallback_rate,omitempty"`
	BookingID         string         `json:"booking_id,omitempty"`
	PaymentIntentID   string         `json:"payment_intent_id,omitempty"`
	ProviderBookingID string         `json:"provider_booking_id,omitempty"`
	GuestName         string         `json:"guest_name,omitempty"`
	GuestEmail        string         `json:"guest_email,omitempty"`
	Amount            string         `json:"amount,omitempty"`
	Attempts          int            `json:"attempts,omitempty"`
	Reason            string         `json:"reason,omitempty"`
	Details           map[string]any `json:"details,omitempty"`
}

type Event struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	Severity   Severity  `json:"severity"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    Payload   `json:"payload"`
}

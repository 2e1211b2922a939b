package model

import (
	"chalet/shared/model"
	"errors"
	"fmt"
	"slices"
	"time"
)

const (
	TableName  = "booking_records"
	EntityName = "booking"

	FieldID                   = "id"
	FieldPaymentIntentID      = "stripe_payment_intent_id"
	FieldPropertyID           = "property_id"
	FieldPaymentStatus        = "payment_status"
	FieldBookingStatus        = "booking_status"
	FieldProviderBookingID    = "provider_booking_id"
	FieldRequiresManualReview = "requires_manual_review"
	FieldManualReviewReason   = "manual_review_reason"
	FieldPaymentFailureReason = "payment_failure_reason"
	FieldUpdatedAt            = "updated_at"
)

var ErrInvalidTransition = errors.New("invalid booking status transition")

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type BookingStatus string

const (
	StatusPendingPayment      BookingStatus = "pending_payment"
	StatusPaymentSucceeded    BookingStatus = "payment_succeeded"
	StatusConfirmed           BookingStatus = "confirmed"
	StatusPaymentFailed       BookingStatus = "payment_failed"
	StatusPendingManualReview BookingStatus = "pending_manual_review"
)

var statuses = []BookingStatus{
	StatusPendingPayment,
	StatusPaymentSucceeded,
	StatusConfirmed,
	StatusPaymentFailed,
	StatusPendingManualReview,
}

// A declined intent stays payable, so a payment_failed record can still be paid later. That
// money has no reservation behind it and goes to manual review.
var transitions = map[BookingStatus][]BookingStatus{
	StatusPendingPayment:   {StatusPaymentSucceeded, StatusPaymentFailed},
	StatusPaymentSucceeded: {StatusConfirmed, StatusPendingManualReview},
	StatusPaymentFailed:    {StatusPendingManualReview},
}

func (s BookingStatus) CanTransition(to BookingStatus) bool {
	return slices.Contains(transitions[s], to)
}

// Terminal reports whether the pipeline can no longer move the record.
func (s BookingStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

// SourcesOf lists the states a record may be in to move into to.
func SourcesOf(to BookingStatus) []BookingStatus {
	var res []BookingStatus

	for _, from := range statuses {
		if from.CanTransition(to) {
			res = append(res, from)
		}
	}

	return res
}

// PaymentStatusFor derives the payment status implied by a booking status.
func PaymentStatusFor(status BookingStatus) PaymentStatus {
	switch status {
	case StatusPendingPayment:
		return PaymentStatusPending
	case StatusPaymentFailed:
		return PaymentStatusFailed
	default:
		return PaymentStatusSucceeded
	}
}

// Record is the durable state of one checkout, unique per payment intent.
type Record struct {
	ID                   string        `db:"id"`
	PaymentIntentID      string        `db:"stripe_payment_intent_id"`
	PropertyID           string        `db:"property_id"`
	CheckIn              time.Time     `db:"check_in"`
	CheckOut             time.Time     `db:"check_out"`
	Nights               int           `db:"nights"`
	Adults               int           `db:"adults"`
	Children             int           `db:"children"`
	Infants              int           `db:"infants"`
	GuestName            string        `db:"guest_name"`
	GuestEmail           string        `db:"guest_email"`
	GuestPhone           string        `db:"guest_phone"`
	MarketingConsent     bool          `db:"marketing_consent"`
	Currency             string        `db:"currency"`
	AccommodationTotal   int64         `db:"accommodation_total"`
	CleaningFee          int64         `db:"cleaning_fee"`
	VATAmount            int64         `db:"vat_amount"`
	GrandTotal           int64         `db:"grand_total"`
	UsedFallback         bool          `db:"used_fallback"`
	PaymentStatus        PaymentStatus `db:"payment_status"`
	BookingStatus        BookingStatus `db:"booking_status"`
	ProviderBookingID    string        `db:"provider_booking_id"`
	RequiresManualReview bool          `db:"requires_manual_review"`
	ManualReviewReason   string        `db:"manual_review_reason"`
	PaymentFailureReason string        `db:"payment_failure_reason"`
	model.Metadata
}

func (r Record) Exists() bool {
	return r.ID != ""
}

// IsAlreadyProcessed reports whether the payment was already taken through the pipeline.
func (r Record) IsAlreadyProcessed() bool {
	return r.PaymentStatus == PaymentStatusSucceeded
}

// ClaimStalled reports whether the record was claimed for the provider call but never moved on
// within after. A non-positive after disables the check.
func (r Record) ClaimStalled(now time.Time, after time.Duration) bool {
	if after <= 0 || r.BookingStatus != StatusPaymentSucceeded {
		return false
	}

	return now.Sub(r.UpdatedAt) > after
}

func (r Record) TotalGuests() int {
	return r.Adults + r.Children + r.Infants
}

// Transition is a requested status change plus the fields that accompany it.
type Transition struct {
	To                   BookingStatus
	ProviderBookingID    string
	ManualReviewReason   string
	PaymentFailureReason string
}

// Changes returns the column updates for the transition.
func (t Transition) Changes(now time.Time) map[string]any {
	res := map[string]any{
		FieldBookingStatus: t.To,
		FieldPaymentStatus: PaymentStatusFor(t.To),
		FieldUpdatedAt:     now,
	}

	if t.ProviderBookingID != "" {
		res[FieldProviderBookingID] = t.ProviderBookingID
	}

	switch t.To {
	case StatusPendingManualReview:
		res[FieldRequiresManualReview] = true
		res[FieldManualReviewReason] = t.ManualReviewReason
	case StatusPaymentFailed:
		res[FieldPaymentFailureReason] = t.PaymentFailureReason
	}

	return res
}

type TransitionError struct {
	From BookingStatus
	To   BookingStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrInvalidTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

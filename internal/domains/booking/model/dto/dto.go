package dto

import (
	"chalet/internal/domains/booking/model"
	pricingModel "chalet/internal/domains/pricing/model"
	pricingDto "chalet/internal/domains/pricing/model/dto"
	validationModel "chalet/internal/domains/validation/model"
	"chalet/shared"
	gDto "chalet/shared/dto"
	gModel "chalet/shared/model"
	"chalet/shared/timezone"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const checkoutKeyPrefix = "checkout_"

type CheckoutRequest struct {
	PropertyID       string `json:"property_id"       validate:"required,max=64"`
	CheckIn          string `json:"check_in"          validate:"required,day"`
	CheckOut         string `json:"check_out"         validate:"required,day"`
	Adults           int    `json:"adults"            validate:"gte=0,lte=50"`
	Children         int    `json:"children"          validate:"gte=0,lte=50"`
	Infants          int    `json:"infants"           validate:"gte=0,lte=50"`
	GuestName        string `json:"guest_name"        validate:"required,max=200"`
	GuestEmail       string `json:"guest_email"       validate:"required,email,max=200"`
	GuestPhone       string `json:"guest_phone"       validate:"omitempty,max=30"`
	MarketingConsent bool   `json:"marketing_consent"`
}

func (c *CheckoutRequest) Guests() validationModel.Guests {
	return validationModel.Guests{Adults: c.Adults, Children: c.Children, Infants: c.Infants}
}

func (c *CheckoutRequest) ToStay() (pricingModel.Stay, error) {
	return pricingDto.NewStay(c.PropertyID, c.CheckIn, c.CheckOut, c.Guests())
}

// IdempotencyKey derives the payment provider key from the checkout fields and the amount
// charged, so resubmitting the same checkout returns the same payment intent while a price
// change gets a new one. clientKey lets a client force a fresh intent for an otherwise
// identical checkout.
func (c *CheckoutRequest) IdempotencyKey(clientKey string, amount int64) string {
	return hashKey(
		c.PropertyID,
		c.CheckIn,
		c.CheckOut,
		strconv.Itoa(c.Adults),
		strconv.Itoa(c.Children),
		strconv.Itoa(c.Infants),
		strings.ToLower(strings.TrimSpace(c.GuestEmail)),
		strconv.FormatInt(amount, 10),
		clientKey,
	)
}

// NextIdempotencyKey moves a checkout key past a payment intent whose payment failed. The
// chain is deterministic, so repeating the checkout still lands on the same new intent.
func NextIdempotencyKey(key, failedIntentID string) string {
	return hashKey(key, failedIntentID)
}

func hashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))

	return checkoutKeyPrefix + hex.EncodeToString(sum[:])
}

// ToRecord builds the pending record for a freshly created payment intent.
func (c *CheckoutRequest) ToRecord(paymentIntentID string, assessment pricingModel.Assessment) model.Record {
	now := timezone.Now()

	return model.Record{
		ID:                 uuid.NewString(),
		PaymentIntentID:    paymentIntentID,
		PropertyID:         c.PropertyID,
		CheckIn:            assessment.Stay.CheckIn,
		CheckOut:           assessment.Stay.CheckOut,
		Nights:             assessment.Quote.Nights,
		Adults:             c.Adults,
		Children:           c.Children,
		Infants:            c.Infants,
		GuestName:          strings.TrimSpace(c.GuestName),
		GuestEmail:         strings.TrimSpace(c.GuestEmail),
		GuestPhone:         strings.TrimSpace(c.GuestPhone),
		MarketingConsent:   c.MarketingConsent,
		Currency:           assessment.Breakdown.Currency,
		AccommodationTotal: assessment.Breakdown.AccommodationTotal,
		CleaningFee:        assessment.Breakdown.CleaningFee,
		VATAmount:          assessment.Breakdown.VATAmount,
		GrandTotal:         assessment.Breakdown.GrandTotal,
		UsedFallback:       assessment.Quote.UsedFallback,
		PaymentStatus:      model.PaymentStatusPending,
		BookingStatus:      model.StatusPendingPayment,
		Metadata: gModel.Metadata{
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

type CheckoutResponse struct {
	BookingID       string                       `json:"booking_id"`
	PaymentIntentID string                       `json:"payment_intent_id"`
	ClientSecret    string                       `json:"client_secret"`
	BookingStatus   string                       `json:"booking_status"`
	Quote           pricingDto.QuoteResponse     `json:"quote"`
	Breakdown       pricingDto.BreakdownResponse `json:"breakdown"`
	Warnings        []validationModel.Issue      `json:"warnings"`
}

type SubmitRequest struct {
	PaymentIntentID string `json:"payment_intent_id" validate:"required,startswith=pi_,max=255"`
	PaymentMethodID string `json:"payment_method_id" validate:"omitempty,max=255"`
}

type SubmitResponse struct {
	Success              bool   `json:"success"`
	BookingID            string `json:"booking_id"`
	ProviderBookingID    string `json:"provider_booking_id,omitempty"`
	RequiresReviewNotice string `json:"requires_review_notice,omitempty"`
	BookingStatus        string `json:"booking_status"`
	PaymentStatus        string `json:"payment_status"`
}

func (r *SubmitResponse) FromModel(record model.Record) {
	r.BookingID = record.ID
	r.ProviderBookingID = record.ProviderBookingID
	r.BookingStatus = string(record.BookingStatus)
	r.PaymentStatus = string(record.PaymentStatus)
	r.Success = record.IsAlreadyProcessed()
}

type BookingResponse struct {
	ID                   string `json:"id"`
	PaymentIntentID      string `json:"payment_intent_id"`
	PropertyID           string `json:"property_id"`
	CheckIn              string `json:"check_in"`
	CheckOut             string `json:"check_out"`
	Nights               int    `json:"nights"`
	Adults               int    `json:"adults"`
	Children             int    `json:"children"`
	Infants              int    `json:"infants"`
	GuestName            string `json:"guest_name"`
	GuestEmail           string `json:"guest_email"`
	GuestPhone           string `json:"guest_phone"`
	MarketingConsent     bool   `json:"marketing_consent"`
	Currency             string `json:"currency"`
	AccommodationTotal   int64  `json:"accommodation_total"`
	CleaningFee          int64  `json:"cleaning_fee"`
	VATAmount            int64  `json:"vat_amount"`
	GrandTotal           int64  `json:"grand_total"`
	UsedFallback         bool   `json:"used_fallback"`
	PaymentStatus        string `json:"payment_status"`
	BookingStatus        string `json:"booking_status"`
	ProviderBookingID    string `json:"provider_booking_id"`
	RequiresManualReview bool   `json:"requires_manual_review"`
	ManualReviewReason   string `json:"manual_review_reason"`
	PaymentFailureReason string `json:"payment_failure_reason"`
	gDto.Metadata
}

func (r *BookingResponse) FromModel(record model.Record) {
	r.ID = record.ID
	r.PaymentIntentID = record.PaymentIntentID
	r.PropertyID = record.PropertyID
	r.CheckIn = timezone.FormatDay(record.CheckIn)
	r.CheckOut = timezone.FormatDay(record.CheckOut)
	r.Nights = record.Nights
	r.Adults = record.Adults
	r.Children = record.Children
	r.Infants = record.Infants
	r.GuestName = record.GuestName
	r.GuestEmail = record.GuestEmail
	r.GuestPhone = record.GuestPhone
	r.MarketingConsent = record.MarketingConsent
	r.Currency = record.Currency
	r.AccommodationTotal = record.AccommodationTotal
	r.CleaningFee = record.CleaningFee
	r.VATAmount = record.VATAmount
	r.GrandTotal = record.GrandTotal
	r.UsedFallback = record.UsedFallback
	r.PaymentStatus = string(record.PaymentStatus)
	r.BookingStatus = string(record.BookingStatus)
	r.ProviderBookingID = record.ProviderBookingID
	r.RequiresManualReview = record.RequiresManualReview
	r.ManualReviewReason = record.ManualReviewReason
	r.PaymentFailureReason = record.PaymentFailureReason
	r.Metadata.FromModel(record.Metadata)
}

type GetBookingsResponse struct {
	Bookings  []BookingResponse `json:"bookings"`
	TotalPage int               `json:"total_page"`
	TotalData int               `json:"total_data"`
}

func (r *GetBookingsResponse) FromModels(models []model.Record, totalData, limit int) {
	r.TotalData = totalData
	r.TotalPage = shared.CalculateTotalPage(totalData, limit)

	r.Bookings = make([]BookingResponse, len(models))
	for i, mod := range models {
		r.Bookings[i].FromModel(mod)
	}
}

// ListFilter narrows the operator listing.
type ListFilter struct {
	BookingStatus        string `json:"booking_status"         validate:"omitempty,oneof=pending_payment payment_succeeded confirmed payment_failed pending_manual_review"`
	PaymentStatus        string `json:"payment_status"         validate:"omitempty,oneof=pending succeeded failed"`
	RequiresManualReview *bool  `json:"requires_manual_review"`
}

func (f *ListFilter) ToFilterGroup() gDto.FilterGroup {
	filters := []any{}

	if f.BookingStatus != "" {
		filters = append(filters, gDto.Filter{
			Field: model.FieldBookingStatus, Value: f.BookingStatus, Operator: gDto.FilterOperatorEq, Table: model.TableName,
		})
	}

	if f.PaymentStatus != "" {
		filters = append(filters, gDto.Filter{
			Field: model.FieldPaymentStatus, Value: f.PaymentStatus, Operator: gDto.FilterOperatorEq, Table: model.TableName,
		})
	}

	if f.RequiresManualReview != nil {
		filters = append(filters, gDto.Filter{
			Field: model.FieldRequiresManualReview, Value: *f.RequiresManualReview, Operator: gDto.FilterOperatorEq, Table: model.TableName,
		})
	}

	return gDto.FilterGroup{Filters: filters, Operator: gDto.FilterGroupOperatorAnd}
}

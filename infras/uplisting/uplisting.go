package uplisting

//go:generate go run go.uber.org/mock/mockgen -source=./uplisting.go -destination=./mocks/uplisting_mock.go -package=mocks

import (
	"bytes"
	"chalet/config"
	"chalet/infras/otel"
	"chalet/shared/constant"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	headerClientID   = "X-Uplisting-Client-Id"
	maxErrorBody     = 4 << 10
	feeLabelCleaning = "cleaning_fee"
	feeLabelGuest    = "extra_guest_charge"
	typeProperty     = "properties"
	typePropertyFee  = "property_fees"
	defaultTimeout   = 15 * time.Second
)

var (
	ErrEmptyBookingID = errors.New("provider returned a booking without id")
	ErrThrottled      = errors.New("uplisting request throttled")
)

// ProviderError is a non-2xx answer from the provider. Body is kept for operators and
// must not be echoed to guests.
type ProviderError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("uplisting %s failed with status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// IsRetryable reports whether err may succeed when sent again. Client errors are final,
// except timeouts and throttling.
func IsRetryable(err error) bool {
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		return !errors.Is(err, ErrEmptyBookingID)
	}

	switch providerErr.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	default:
		return providerErr.StatusCode >= http.StatusInternalServerError
	}
}

// IsRetryableCreate is IsRetryable for booking creation, which the provider does not
// deduplicate. Only failures where the request was never processed are retried: throttling,
// refused connections and 408/429/503 answers. Timeouts and other 5xx may hide a booking the
// provider already committed.
func IsRetryableCreate(err error) bool {
	if errors.Is(err, ErrThrottled) {
		return true
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		switch providerErr.StatusCode {
		case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusServiceUnavailable:
			return true
		default:
			return false
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" && !opErr.Timeout()
	}

	return false
}

// CalendarDay is one provider calendar entry. Rate is nil when the provider has no price for the date.
type CalendarDay struct {
	Date                   string
	Available              bool
	ClosedForArrival       bool
	ClosedForDeparture     bool
	MinimumLengthOfStay    int
	MaximumAvailableNights *int
	Rate                   *float64
	Currency               string
}

type PropertyFee struct {
	Label          string
	Enabled        bool
	GuestsIncluded int
	Amount         float64
}

type Property struct {
	ID                  string
	Name                string
	MaximumCapacity     int
	MinimumLengthOfStay int
	CheckInTime         string
	CheckOutTime        string
	Currency            string
	Fees                []PropertyFee
}

// CleaningFee returns the enabled cleaning fee, if any.
func (p Property) CleaningFee() (PropertyFee, bool) {
	return p.fee(feeLabelCleaning)
}

// ExtraGuestCharge returns the enabled per-guest surcharge, if any.
func (p Property) ExtraGuestCharge() (PropertyFee, bool) {
	return p.fee(feeLabelGuest)
}

func (p Property) fee(label string) (PropertyFee, bool) {
	for _, fee := range p.Fees {
		if fee.Label == label && fee.Enabled {
			return fee, true
		}
	}

	return PropertyFee{}, false
}

type BookingRequest struct {
	PropertyID     string
	CheckIn        string
	CheckOut       string
	GuestName      string
	GuestEmail     string
	GuestPhone     string
	NumberOfGuests int
}

type Client interface {
	GetAvailability(ctx context.Context, propertyID, from, to string) ([]CalendarDay, error)
	GetProperty(ctx context.Context, propertyID string) (Property, error)
	CreateBooking(ctx context.Context, req BookingRequest) (string, error)
}

type clientImpl struct {
	baseURL  string
	apiKey   string
	clientID string
	http     *http.Client
	limiter  *rate.Limiter
	otel     otel.Otel
}

func New(config *config.Config, otel otel.Otel) Client {
	cfg := config.External.Uplisting

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &clientImpl{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		clientID: cfg.ClientID,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second, //nolint:mnd
					KeepAlive: 30 * time.Second, //nolint:mnd
				}).DialContext,
				MaxIdleConnsPerHost: 10,               //nolint:mnd
				IdleConnTimeout:     90 * time.Second, //nolint:mnd
				TLSHandshakeTimeout: 10 * time.Second, //nolint:mnd
			},
		},
		limiter: rate.NewLimiter(limit, 1),
		otel:    otel,
	}
}

type calendarDay struct {
	Date                   string       `json:"date"`
	Available              *bool        `json:"available"`
	ClosedForArrival       bool         `json:"closed_for_arrival"`
	ClosedForDeparture     bool         `json:"closed_for_departure"`
	MinimumLengthOfStay    int          `json:"minimum_length_of_stay"`
	MaximumAvailableNights *int         `json:"maximum_available_nights"`
	DayRate                *float64     `json:"day_rate"`
	Rate                   *float64     `json:"rate"`
	Currency               string       `json:"currency"`
	Attributes             *calendarDay `json:"attributes"`
}

// flatten merges JSON:API attributes into the top level; top-level values win.
func (d calendarDay) flatten() CalendarDay {
	if d.Attributes != nil {
		attr := d.Attributes.flatten()

		if d.Date == "" {
			d.Date = attr.Date
		}

		if d.Available == nil {
			d.Available = &attr.Available
		}

		d.ClosedForArrival = d.ClosedForArrival || attr.ClosedForArrival
		d.ClosedForDeparture = d.ClosedForDeparture || attr.ClosedForDeparture

		if d.MinimumLengthOfStay == 0 {
			d.MinimumLengthOfStay = attr.MinimumLengthOfStay
		}

		if d.MaximumAvailableNights == nil {
			d.MaximumAvailableNights = attr.MaximumAvailableNights
		}

		if d.DayRate == nil && d.Rate == nil {
			d.DayRate = attr.Rate
		}

		if d.Currency == "" {
			d.Currency = attr.Currency
		}
	}

	day := CalendarDay{
		Date:                   d.Date,
		Available:              d.Available == nil || *d.Available,
		ClosedForArrival:       d.ClosedForArrival,
		ClosedForDeparture:     d.ClosedForDeparture,
		MinimumLengthOfStay:    d.MinimumLengthOfStay,
		MaximumAvailableNights: d.MaximumAvailableNights,
		Rate:                   d.DayRate,
		Currency:               d.Currency,
	}

	if day.Rate == nil {
		day.Rate = d.Rate
	}

	return day
}

type calendarResponse struct {
	Data     []calendarDay `json:"data"`
	Calendar struct {
		Days []calendarDay `json:"days"`
	} `json:"calendar"`
}

func (c *clientImpl) GetAvailability(ctx context.Context, propertyID, from, to string) (days []CalendarDay, err error) {
	ctx, scope := c.otel.NewScope(ctx, constant.OtelExternalScopeName, constant.OtelExternalScopeName+".uplisting.GetAvailability")
	defer scope.End()
	defer scope.TraceIfError(err)

	scope.SetAttributes(map[string]any{"property_id": propertyID, "from": from, "to": to})

	query := url.Values{}
	query.Set("from", from)
	query.Set("to", to)

	var res calendarResponse

	endpoint := fmt.Sprintf("%s/calendar/%s?%s", c.baseURL, url.PathEscape(propertyID), query.Encode())
	if err = c.do(ctx, "calendar", http.MethodGet, endpoint, nil, &res); err != nil {
		return nil, err
	}

	raw := res.Data
	if len(raw) == 0 {
		raw = res.Calendar.Days
	}

	days = make([]CalendarDay, 0, len(raw))
	for _, day := range raw {
		days = append(days, day.flatten())
	}

	return days, nil
}

type resource struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Attributes json.RawMessage `json:"attributes"`
}

type propertyAttributes struct {
	Name                string `json:"name"`
	MaximumCapacity     int    `json:"maximum_capacity"`
	MinimumLengthOfStay int    `json:"minimum_length_of_stay"`
	CheckInTime         string `json:"check_in_time"`
	CheckOutTime        string `json:"check_out_time"`
	Currency            string `json:"currency"`
}

type feeAttributes struct {
	Label          string  `json:"label"`
	Enabled        bool    `json:"enabled"`
	GuestsIncluded int     `json:"guests_included"`
	Amount         float64 `json:"amount"`
}

type propertyResponse struct {
	Data     resource   `json:"data"`
	Included []resource `json:"included"`
}

func (c *clientImpl) GetProperty(ctx context.Context, propertyID string) (property Property, err error) {
	ctx, scope := c.otel.NewScope(ctx, constant.OtelExternalScopeName, constant.OtelExternalScopeName+".uplisting.GetProperty")
	defer scope.End()
	defer scope.TraceIfError(err)

	scope.SetAttribute("property_id", propertyID)

	var res propertyResponse

	endpoint := fmt.Sprintf("%s/properties/%s", c.baseURL, url.PathEscape(propertyID))
	if err = c.do(ctx, "property", http.MethodGet, endpoint, nil, &res); err != nil {
		return property, err
	}

	var attr propertyAttributes
	if len(res.Data.Attributes) > 0 {
		if err = json.Unmarshal(res.Data.Attributes, &attr); err != nil {
			return property, fmt.Errorf("failed to decode property attributes: %w", err)
		}
	}

	property = Property{
		ID:                  res.Data.ID,
		Name:                attr.Name,
		MaximumCapacity:     attr.MaximumCapacity,
		MinimumLengthOfStay: attr.MinimumLengthOfStay,
		CheckInTime:         attr.CheckInTime,
		CheckOutTime:        attr.CheckOutTime,
		Currency:            attr.Currency,
	}

	if property.ID == "" {
		property.ID = propertyID
	}

	for _, inc := range res.Included {
		if inc.Type != typePropertyFee {
			continue
		}

		var fee feeAttributes
		if err = json.Unmarshal(inc.Attributes, &fee); err != nil {
			log.Warn().Err(err).Str("property_id", propertyID).Str("fee_id", inc.ID).Msg("skipping undecodable property fee")

			continue
		}

		property.Fees = append(property.Fees, PropertyFee(fee))
	}

	return property, nil
}

type bookingPayload struct {
	Data struct {
		Attributes struct {
			CheckIn        string `json:"check_in"`
			CheckOut       string `json:"check_out"`
			GuestName      string `json:"guest_name"`
			GuestEmail     string `json:"guest_email"`
			GuestPhone     string `json:"guest_phone"`
			NumberOfGuests int    `json:"number_of_guests"`
		} `json:"attributes"`
		Relationships struct {
			Property struct {
				Data struct {
					Type string `json:"type"`
					ID   string `json:"id"`
				} `json:"data"`
			} `json:"property"`
		} `json:"relationships"`
	} `json:"data"`
}

func (c *clientImpl) CreateBooking(ctx context.Context, req BookingRequest) (bookingID string, err error) {
	ctx, scope := c.otel.NewScope(ctx, constant.OtelExternalScopeName, constant.OtelExternalScopeName+".uplisting.CreateBooking")
	defer scope.End()
	defer scope.TraceIfError(err)

	scope.SetAttributes(map[string]any{"property_id": req.PropertyID, "check_in": req.CheckIn, "check_out": req.CheckOut})

	var payload bookingPayload

	payload.Data.Attributes.CheckIn = req.CheckIn
	payload.Data.Attributes.CheckOut = req.CheckOut
	payload.Data.Attributes.GuestName = req.GuestName
	payload.Data.Attributes.GuestEmail = req.GuestEmail
	payload.Data.Attributes.GuestPhone = req.GuestPhone
	payload.Data.Attributes.NumberOfGuests = req.NumberOfGuests
	payload.Data.Relationships.Property.Data.Type = typeProperty
	payload.Data.Relationships.Property.Data.ID = req.PropertyID

	var res struct {
		Data resource `json:"data"`
	}

	if err = c.do(ctx, "booking", http.MethodPost, c.baseURL+"/v2/bookings", payload, &res); err != nil {
		return "", err
	}

	if res.Data.ID == "" {
		return "", ErrEmptyBookingID
	}

	log.Info().Str("property_id", req.PropertyID).Str("provider_booking_id", res.Data.ID).Msg("provider booking created")

	return res.Data.ID, nil
}

func (c *clientImpl) do(ctx context.Context, operation, method, endpoint string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrThrottled, operation, err)
	}

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode uplisting %s request: %w", operation, err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build uplisting %s request: %w", operation, err)
	}

	req.Header.Set(constant.RequestHeaderAuthorization, "Basic "+base64.StdEncoding.EncodeToString([]byte(c.apiKey)))
	req.Header.Set(headerClientID, c.clientID)
	req.Header.Set("Accept", constant.ContentTypeJSON)

	if body != nil {
		req.Header.Set(constant.RequestHeaderContentType, constant.ContentTypeJSON)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("uplisting %s request failed: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		log.Error().
			Str("operation", operation).
			Int("status", resp.StatusCode).
			Str("body", string(raw)).
			Msg("uplisting returned an error")

		return &ProviderError{Operation: operation, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode uplisting %s response: %w", operation, err)
	}

	return nil
}

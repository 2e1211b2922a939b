package failure

import (
	"errors"
	"net/http"
)

// Failure is an error the transport layer can answer with directly: Code is the HTTP status
// and Details, when set, is rendered next to the message.
type Failure struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

var (
	InvalidPageParam   = &Failure{Code: http.StatusBadRequest, Message: "invalid page parameter"}
	InvalidLimitParam  = &Failure{Code: http.StatusBadRequest, Message: "invalid limit parameter"}
	ForbiddenError     = &Failure{Code: http.StatusForbidden, Message: "You don't have the required permissions"}
	PricingUnavailable = &Failure{
		Code:    http.StatusServiceUnavailable,
		Message: "Pricing is currently unavailable for the selected dates. Please contact us to book.",
	}
)

func (e *Failure) Error() string {
	return e.Message
}

func newFailure(code int, msg string, details any) error {
	return &Failure{Code: code, Message: msg, Details: details}
}

// BadRequest wraps err as a 400. A nil err stays nil.
func BadRequest(err error) error {
	if err == nil {
		return nil
	}

	return newFailure(http.StatusBadRequest, err.Error(), nil)
}

func BadRequestFromString(msg string) error {
	return newFailure(http.StatusBadRequest, msg, nil)
}

// BadRequestWithDetails is a 400 listing every offending field.
func BadRequestWithDetails(msg string, details any) error {
	return newFailure(http.StatusBadRequest, msg, details)
}

// UnprocessableEntity is a well-formed request the booking rules reject, e.g. too many guests.
func UnprocessableEntity(msg string, details any) error {
	return newFailure(http.StatusUnprocessableEntity, msg, details)
}

func Unauthorized(msg string) error {
	return newFailure(http.StatusUnauthorized, msg, nil)
}

// PaymentFailed is a payment the provider declined.
func PaymentFailed(msg string) error {
	return newFailure(http.StatusPaymentRequired, msg, nil)
}

// InternalError wraps err as a 500. A nil err stays nil.
func InternalError(err error) error {
	if err == nil {
		return nil
	}

	return newFailure(http.StatusInternalServerError, err.Error(), nil)
}

// ServiceUnavailable is a dependency that is down or ran out of retries.
func ServiceUnavailable(msg string) error {
	return newFailure(http.StatusServiceUnavailable, msg, nil)
}

func NotFound(msg string) error {
	return newFailure(http.StatusNotFound, msg, nil)
}

func Conflict(msg string) error {
	return newFailure(http.StatusConflict, msg, nil)
}

// GetCode returns the status of the first Failure in the chain, 500 when there is none.
func GetCode(err error) int {
	if fail, ok := As(err); ok {
		return fail.Code
	}

	return http.StatusInternalServerError
}

func As(err error) (*Failure, bool) {
	var fail *Failure
	if errors.As(err, &fail) {
		return fail, true
	}

	return nil, false
}

package airtime

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrLookupNotFound             = errors.New("lookup not found")
	ErrDirectoryUnavailable       = errors.New("directory unavailable")
	ErrNoProductsAvailable        = errors.New("no products available")
	ErrPaymentCreationFailed      = errors.New("payment creation failed")
	ErrPaymentExecutionFailed     = errors.New("payment execution failed")
	ErrPaymentInProgress          = errors.New("payment is executed by another request")
	ErrPaymentStateUnknown        = errors.New("payment state unknown")
	ErrPurchaseRejectedUpstream   = errors.New("purchase rejected upstream")
	ErrPurchaseFailedAfterPayment = errors.New("purchase failed after payment")

	ErrNotFound             = errors.New("not found")
	ErrNotSupported         = errors.New("not supported")
	ErrSessionNotFound      = errors.New("session not found")
	ErrSessionExpired       = errors.New("session expired")
	ErrTransitionNotAllowed = errors.New("transition not allowed")
	ErrInvalidPhoneNumber   = errors.New("invalid phone number")
	ErrProductNotListed     = errors.New("product not listed")
)

// UpstreamError is a failure reported by an external vendor.
// errors.Is matches it against its Kind.
type UpstreamError struct {
	Kind       error
	Vendor     string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Kind.Error() + ": " + e.Vendor
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http %d)", e.StatusCode)
	}
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Is(target error) bool {
	return target == e.Kind
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// UpstreamMessage returns the vendor message carried by err, if any.
func UpstreamMessage(err error) string {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		if ue.Message != "" {
			return ue.Message
		}
		if ue.Err != nil {
			return ue.Err.Error()
		}
	}
	return ""
}

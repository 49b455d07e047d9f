package service

import (
	"errors"
	"fmt"

	"github.com/richardliu001/bookmarket-service/internal/payment"
)

// Error taxonomy. Transport maps each root to an HTTP status.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrUpstream     = errors.New("payment processor failure")

	ErrBookNotFound        = fmt.Errorf("book %w", ErrNotFound)
	ErrSellerNotFound      = fmt.Errorf("seller %w", ErrNotFound)
	ErrPurchaseNotFound    = fmt.Errorf("purchase %w", ErrNotFound)
	ErrPayoutNotConfigured = fmt.Errorf("seller payout account %w", ErrNotFound)

	ErrAlreadyPurchased = fmt.Errorf("book already purchased: %w", ErrConflict)
	ErrSellerExists     = fmt.Errorf("seller account already exists: %w", ErrConflict)

	ErrCheckoutCreationFailed = fmt.Errorf("checkout session could not be created, please retry: %w", ErrUpstream)

	ErrMalformedEvent   = payment.ErrMalformedEvent
	ErrInvalidSignature = payment.ErrInvalidSignature
)

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

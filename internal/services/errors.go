package services

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrWrongStep is returned when a checkout operation does not apply to
	// the current step.
	ErrWrongStep = errors.New("checkout: operation not allowed in this step")
	// ErrNoSession is returned for card operations before a payment session
	// exists.
	ErrNoSession = errors.New("checkout: payment session not ready")
	// ErrOrderInProgress is returned while the checkout's order is being
	// posted.
	ErrOrderInProgress = errors.New("checkout: order is being placed")
	// ErrEmptyCart is returned when checking out with nothing in the cart.
	ErrEmptyCart = errors.New("checkout: cart is empty")
)

// ValidationError is a client-side check that failed before any network
// call. Message is shown to the shopper.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

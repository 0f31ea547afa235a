package service

import (
	"errors"
	"fmt"

	"carrental/internal/database"
	"carrental/internal/models"
)

var (
	ErrInvalidDateRange     = models.ErrInvalidDateRange
	ErrNotFound             = errors.New("not found")
	ErrCarUnavailable       = errors.New("car is not available for the requested dates")
	ErrForbidden            = errors.New("forbidden")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrPaymentAlreadyExists = errors.New("payment already exists for this booking")
	ErrInvalidInput         = errors.New("invalid input")
	ErrRateLimited          = errors.New("too many booking attempts, try again later")
	ErrConflict             = errors.New("booking was modified concurrently")
	ErrRatesUnavailable     = errors.New("exchange rates unavailable")
)

// PaymentExistsError carries the payment a booking already has.
type PaymentExistsError struct {
	Existing *models.Payment
}

func (e *PaymentExistsError) Error() string {
	return ErrPaymentAlreadyExists.Error()
}

func (e *PaymentExistsError) Unwrap() error {
	return ErrPaymentAlreadyExists
}

// storeError translates storage sentinels into service errors.
func storeError(err error, what string) error {
	var conflict *database.PaymentConflictError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &conflict):
		return &PaymentExistsError{Existing: conflict.Existing}
	case errors.Is(err, database.ErrPaymentExists):
		return ErrPaymentAlreadyExists
	case errors.Is(err, database.ErrNotFound):
		return fmt.Errorf("%s %w", what, ErrNotFound)
	case errors.Is(err, database.ErrCarUnavailable):
		return ErrCarUnavailable
	case errors.Is(err, database.ErrConcurrentModification):
		return ErrConflict
	}
	return err
}

func invalidInput(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

package service

import (
	"context"
	"errors"
	"math"

	"carrental/internal/domain"
	"carrental/internal/events"
	"carrental/internal/metrics"
	"carrental/internal/models"

	"github.com/rs/zerolog"
)

type PaymentService struct {
	repo domain.Repository
	notifier
	logger *zerolog.Logger
}

func NewPaymentService(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *PaymentService {
	logger = nopLogger(logger)
	return &PaymentService{
		repo:     repo,
		notifier: notifier{eventBus: eventBus, logger: logger},
		logger:   logger,
	}
}

// CreatePayment records the single payment of a booking. Only the renter may
// pay. A second attempt fails with *PaymentExistsError carrying the first
// payment.
func (s *PaymentService) CreatePayment(ctx context.Context, actor domain.Actor, bookingID int64, amount float64, method, currency string) (*models.Payment, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, storeError(err, "booking")
	}
	if booking.UserID != actor.UserID {
		return nil, ErrForbidden
	}

	method = models.NormalizeMethod(method)
	currency = models.NormalizeCurrency(currency)
	switch {
	case !models.IsPaymentMethod(method):
		return nil, invalidInput("method must be CARD or CASH")
	case !models.IsCurrency(currency):
		return nil, invalidInput("currency must be RSD, EUR or USD")
	case amount < 0 || math.IsNaN(amount) || math.IsInf(amount, 0):
		return nil, invalidInput("amount must be a non-negative number")
	}

	payment := &models.Payment{
		BookingID: booking.ID,
		UserID:    actor.UserID,
		Amount:    amount,
		Method:    method,
		Currency:  currency,
		Status:    models.PaymentStatusFor(method),
	}
	if err := s.repo.CreatePaymentForBooking(ctx, payment); err != nil {
		err = s.paymentConflict(ctx, bookingID, storeError(err, "booking"))
		var exists *PaymentExistsError
		if errors.As(err, &exists) {
			s.logger.Info().Int64("booking_id", bookingID).Int64("payment_id", exists.Existing.ID).Msg("duplicate payment rejected")
		}
		return nil, err
	}
	metrics.IncPayment(method)

	s.logger.Info().
		Int64("payment_id", payment.ID).
		Int64("booking_id", payment.BookingID).
		Str("user_id", actor.UserID).
		Str("method", method).
		Msg("payment recorded")

	s.publish(events.EventPaymentCreated, events.PaymentEventPayload{
		PaymentID: payment.ID,
		BookingID: payment.BookingID,
		UserID:    payment.UserID,
		Amount:    payment.Amount,
		Method:    payment.Method,
		Currency:  payment.Currency,
		Status:    payment.Status,
	}, payment.BookingID)
	return payment, nil
}

// paymentConflict attaches the stored payment when the store reported a
// duplicate without it.
func (s *PaymentService) paymentConflict(ctx context.Context, bookingID int64, err error) error {
	var exists *PaymentExistsError
	if !errors.Is(err, ErrPaymentAlreadyExists) || errors.As(err, &exists) {
		return err
	}
	existing, lookupErr := s.repo.GetPaymentByBooking(ctx, bookingID)
	if lookupErr != nil {
		s.logger.Error().Err(lookupErr).Int64("booking_id", bookingID).Msg("load existing payment")
		return err
	}
	return &PaymentExistsError{Existing: existing}
}

// GetPayment is visible to the payer, the booking's owner and admins.
func (s *PaymentService) GetPayment(ctx context.Context, actor domain.Actor, paymentID int64) (*models.Payment, error) {
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, storeError(err, "payment")
	}
	if payment.UserID == actor.UserID || actor.IsAdmin() {
		return payment, nil
	}
	booking, err := s.repo.GetBooking(ctx, payment.BookingID)
	if err != nil {
		return nil, storeError(err, "booking")
	}
	if booking.OwnerID != actor.UserID {
		return nil, ErrForbidden
	}
	return payment, nil
}

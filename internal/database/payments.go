package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"carrental/internal/models"
)

// PaymentConflictError carries the payment already attached to a booking.
type PaymentConflictError struct {
	Existing *models.Payment
}

func (e *PaymentConflictError) Error() string {
	return fmt.Sprintf("booking %d already has payment %d", e.Existing.BookingID, e.Existing.ID)
}

func (e *PaymentConflictError) Unwrap() error {
	return ErrPaymentExists
}

const paymentColumns = `id, booking_id, user_id, amount, method, currency, status, payment_date`

func scanPayment(row rowScanner) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.BookingID, &p.UserID, &p.Amount, &p.Method, &p.Currency, &p.Status, &p.PaymentDate)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePaymentForBooking inserts the payment and links it to its booking in
// one transaction. A booking that already has a payment yields a
// *PaymentConflictError.
func (db *DB) CreatePaymentForBooking(ctx context.Context, payment *models.Payment) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var bookingID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM bookings WHERE id = ?`, payment.BookingID).Scan(&bookingID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load booking in tx: %w", err)
	}

	existing, err := scanPayment(tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE booking_id = ?`, payment.BookingID))
	switch {
	case err == nil:
		return &PaymentConflictError{Existing: existing}
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("failed to check existing payment: %w", err)
	}

	ts := now()
	result, err := tx.ExecContext(ctx, `INSERT INTO payments (
				booking_id, user_id, amount, method, currency, status, payment_date
			) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		payment.BookingID, payment.UserID, payment.Amount, payment.Method, payment.Currency, payment.Status, ts,
	)
	if isUniqueViolation(err) {
		existing, lookupErr := scanPayment(tx.QueryRowContext(ctx,
			`SELECT `+paymentColumns+` FROM payments WHERE booking_id = ?`, payment.BookingID))
		if lookupErr != nil {
			return ErrPaymentExists
		}
		return &PaymentConflictError{Existing: existing}
	}
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE bookings SET payment_id = ?, version = version + 1, updated_at = ? WHERE id = ?`,
		id, ts, payment.BookingID)
	if err != nil {
		return fmt.Errorf("failed to link payment to booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment: %w", err)
	}

	payment.ID = id
	payment.PaymentDate = ts
	return nil
}

func (db *DB) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	p, err := scanPayment(db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

func (db *DB) GetPaymentByBooking(ctx context.Context, bookingID int64) (*models.Payment, error) {
	p, err := scanPayment(db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE booking_id = ?`, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking payment: %w", err)
	}
	return p, nil
}

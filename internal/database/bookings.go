package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carrental/internal/models"
)

const bookingColumns = `id, car_id, car_name, user_id, owner_id, pickup_date, return_date,
	status, price, payment_id, created_at, updated_at, version`

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                 models.Booking
		pickupStr, retStr string
		paymentID         sql.NullInt64
	)
	err := row.Scan(
		&b.ID, &b.CarID, &b.CarName, &b.UserID, &b.OwnerID, &pickupStr, &retStr,
		&b.Status, &b.Price, &paymentID, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	if b.PickupDate, err = time.Parse(models.DateLayout, pickupStr); err != nil {
		return nil, fmt.Errorf("failed to parse pickup date %s: %w", pickupStr, err)
	}
	if b.ReturnDate, err = time.Parse(models.DateLayout, retStr); err != nil {
		return nil, fmt.Errorf("failed to parse return date %s: %w", retStr, err)
	}
	if paymentID.Valid {
		id := paymentID.Int64
		b.PaymentID = &id
	}
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]*models.Booking, error) {
	defer rows.Close()

	bookings := []*models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

const overlapPredicate = `car_id = ? AND status <> 'cancelled' AND pickup_date <= ? AND return_date >= ?`

// FindAvailableCars returns switched-on cars at location with no active
// booking intersecting the closed range.
func (db *DB) FindAvailableCars(ctx context.Context, location string, dr models.DateRange) ([]*models.Car, error) {
	query := `SELECT ` + carColumns + ` FROM cars c
              WHERE lower(c.location) = lower(?) AND c.is_available = 1
              AND NOT EXISTS (
                  SELECT 1 FROM bookings b
                  WHERE b.car_id = c.id AND b.status <> 'cancelled'
                  AND b.pickup_date <= ? AND b.return_date >= ?
              )
              ORDER BY c.id`
	rows, err := db.QueryContext(ctx, query, location,
		dr.Return.Format(models.DateLayout), dr.Pickup.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to find available cars: %w", err)
	}
	return scanCars(rows)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// overlapExists reports whether a non-cancelled booking of the car intersects dr.
func overlapExists(ctx context.Context, q queryRower, carID int64, dr models.DateRange) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE `+overlapPredicate,
		carID, dr.Return.Format(models.DateLayout), dr.Pickup.Format(models.DateLayout)).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateBookingWithLock re-checks the car and the overlap inside an immediate
// transaction and inserts the booking. The bookings_no_overlap trigger rejects
// any insert that slips past the check.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var carID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM cars WHERE id = ?`, booking.CarID).Scan(&carID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load car in tx: %w", err)
	}

	overlapping, err := overlapExists(ctx, tx, booking.CarID, booking.Range())
	if err != nil {
		return fmt.Errorf("failed to check availability in tx: %w", err)
	}
	if overlapping {
		return ErrCarUnavailable
	}

	pickup := booking.PickupDate.Format(models.DateLayout)
	ret := booking.ReturnDate.Format(models.DateLayout)

	ts := now()
	result, err := tx.ExecContext(ctx, `INSERT INTO bookings (
				car_id, car_name, user_id, owner_id, pickup_date, return_date,
				status, price, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.CarID, booking.CarName, booking.UserID, booking.OwnerID, pickup, ret,
		booking.Status, booking.Price, ts, ts, 1,
	)
	if isOverlapAbort(err) {
		return ErrCarUnavailable
	}
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	booking.CreatedAt = ts
	booking.UpdatedAt = ts
	booking.Version = 1
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	booking, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// ListBookingsByUser returns the renter's bookings, newest first.
func (db *DB) ListBookingsByUser(ctx context.Context, userID string) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user bookings: %w", err)
	}
	return scanBookings(rows)
}

// ListBookingsByOwner returns bookings whose snapshotted owner is ownerID, newest first.
func (db *DB) ListBookingsByOwner(ctx context.Context, ownerID string) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get owner bookings: %w", err)
	}
	return scanBookings(rows)
}

func (db *DB) ListBookingsByCar(ctx context.Context, carID int64) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE car_id = ? ORDER BY pickup_date, id`, carID)
	if err != nil {
		return nil, fmt.Errorf("failed to get car bookings: %w", err)
	}
	return scanBookings(rows)
}

// UpdateBookingStatusWithVersion applies a status change only if nobody else
// touched the booking since fromVersion was read.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, now(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

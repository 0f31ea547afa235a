package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"carrental/internal/models"
)

const carColumns = `id, owner_id, brand, model, category, year, seating_capacity, fuel_type,
	transmission, location, price_per_day, description, is_available, created_at, updated_at`

func scanCar(row rowScanner) (*models.Car, error) {
	var c models.Car
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Brand, &c.Model, &c.Category, &c.Year, &c.SeatingCapacity,
		&c.FuelType, &c.Transmission, &c.Location, &c.PricePerDay, &c.Description,
		&c.IsAvailable, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanCars(rows *sql.Rows) ([]*models.Car, error) {
	defer rows.Close()

	cars := []*models.Car{}
	for rows.Next() {
		c, err := scanCar(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan car: %w", err)
		}
		cars = append(cars, c)
	}
	return cars, rows.Err()
}

func (db *DB) CreateCar(ctx context.Context, car *models.Car) error {
	query := `INSERT INTO cars (
				owner_id, brand, model, category, year, seating_capacity, fuel_type,
				transmission, location, price_per_day, description, is_available, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	ts := now()
	result, err := db.ExecContext(ctx, query,
		car.OwnerID, car.Brand, car.Model, car.Category, car.Year, car.SeatingCapacity, car.FuelType,
		car.Transmission, car.Location, car.PricePerDay, car.Description, car.IsAvailable, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to create car: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	car.ID = id
	car.CreatedAt = ts
	car.UpdatedAt = ts
	return nil
}

// UpsertCar writes a car with a fixed id, used for seeding the catalog.
func (db *DB) UpsertCar(ctx context.Context, car *models.Car) error {
	query := `INSERT INTO cars (
				id, owner_id, brand, model, category, year, seating_capacity, fuel_type,
				transmission, location, price_per_day, description, is_available, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				owner_id = excluded.owner_id,
				brand = excluded.brand,
				model = excluded.model,
				category = excluded.category,
				year = excluded.year,
				seating_capacity = excluded.seating_capacity,
				fuel_type = excluded.fuel_type,
				transmission = excluded.transmission,
				location = excluded.location,
				price_per_day = excluded.price_per_day,
				description = excluded.description,
				is_available = excluded.is_available,
				updated_at = excluded.updated_at`
	ts := now()
	_, err := db.ExecContext(ctx, query,
		car.ID, car.OwnerID, car.Brand, car.Model, car.Category, car.Year, car.SeatingCapacity, car.FuelType,
		car.Transmission, car.Location, car.PricePerDay, car.Description, car.IsAvailable, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert car %d: %w", car.ID, err)
	}
	car.UpdatedAt = ts
	return nil
}

func (db *DB) GetCar(ctx context.Context, id int64) (*models.Car, error) {
	row := db.QueryRowContext(ctx, `SELECT `+carColumns+` FROM cars WHERE id = ?`, id)
	car, err := scanCar(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get car: %w", err)
	}
	return car, nil
}

// ListCars returns cars matching the filter ordered by id.
// Location matches exactly, ignoring case.
func (db *DB) ListCars(ctx context.Context, filter models.CarFilter) ([]*models.Car, error) {
	var (
		where []string
		args  []any
	)
	if filter.Location != "" {
		where = append(where, "lower(location) = lower(?)")
		args = append(args, strings.TrimSpace(filter.Location))
	}
	if filter.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.Category != "" {
		where = append(where, "lower(category) = lower(?)")
		args = append(args, filter.Category)
	}
	if filter.OnlyAvailable {
		where = append(where, "is_available = 1")
	}

	query := `SELECT ` + carColumns + ` FROM cars`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cars: %w", err)
	}
	return scanCars(rows)
}

// SetCarAvailability flips the manual availability switch and returns the car.
func (db *DB) SetCarAvailability(ctx context.Context, id int64, available bool) (*models.Car, error) {
	result, err := db.ExecContext(ctx,
		`UPDATE cars SET is_available = ?, updated_at = ? WHERE id = ?`, available, now(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update car availability: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, ErrNotFound
	}
	return db.GetCar(ctx, id)
}

// DeleteCarCascade cancels every active booking of the car and deletes it in
// one transaction. It returns the ids of the bookings it cancelled.
func (db *DB) DeleteCarCascade(ctx context.Context, carID int64) ([]int64, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM cars WHERE id = ?`, carID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load car in tx: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM bookings WHERE car_id = ? AND status <> ? ORDER BY id`, carID, models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to select active bookings: %w", err)
	}
	cancelled := []int64{}
	for rows.Next() {
		var bookingID int64
		if err := rows.Scan(&bookingID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan booking id: %w", err)
		}
		cancelled = append(cancelled, bookingID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE car_id = ? AND status <> ?`,
		models.StatusCancelled, now(), carID, models.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel bookings: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM cars WHERE id = ?`, carID); err != nil {
		return nil, fmt.Errorf("failed to delete car: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit car deletion: %w", err)
	}
	return cancelled, nil
}

package database

import (
	"context"
	"fmt"

	"carrental/internal/models"
)

// OwnerDashboard aggregates fleet size, booking counts, the latest bookings
// and revenue from confirmed bookings for one owner.
func (db *DB) OwnerDashboard(ctx context.Context, ownerID string, recent int) (*models.DashboardData, error) {
	data := &models.DashboardData{RecentBookings: []models.Booking{}}

	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cars WHERE owner_id = ?`, ownerID).Scan(&data.TotalCars)
	if err != nil {
		return nil, fmt.Errorf("failed to count cars: %w", err)
	}

	query := `SELECT
                COUNT(*),
                COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
                COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
                COALESCE(SUM(CASE WHEN status = ? THEN price ELSE 0 END), 0)
              FROM bookings WHERE owner_id = ?`
	err = db.QueryRowContext(ctx, query,
		models.StatusPending, models.StatusConfirmed, models.StatusConfirmed, ownerID,
	).Scan(&data.TotalBookings, &data.PendingCount, &data.ConfirmedCount, &data.MonthlyRevenue)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate bookings: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE owner_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		ownerID, recent)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent bookings: %w", err)
	}
	latest, err := scanBookings(rows)
	if err != nil {
		return nil, err
	}
	for _, b := range latest {
		data.RecentBookings = append(data.RecentBookings, *b)
	}

	return data, nil
}

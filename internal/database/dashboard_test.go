package database

import (
	"context"
	"testing"

	"carrental/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnerDashboard(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	car := seedCar(t, db, "owner", "Belgrade", 100)
	seedCar(t, db, "owner", "Nis", 50)
	seedCar(t, db, "stranger", "Nis", 50)

	ranges := [][2]string{
		{"2026-01-01", "2026-01-03"},
		{"2026-01-10", "2026-01-11"},
		{"2026-01-20", "2026-01-20"},
		{"2026-02-01", "2026-02-02"},
	}
	var bookings []*models.Booking
	for _, r := range ranges {
		b := newBooking(car, "renter", dateRange(t, r[0], r[1]))
		require.NoError(t, db.CreateBookingWithLock(ctx, b))
		bookings = append(bookings, b)
	}

	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, bookings[0].ID, 1, models.StatusConfirmed))
	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, bookings[1].ID, 1, models.StatusConfirmed))
	require.NoError(t, db.UpdateBookingStatusWithVersion(ctx, bookings[2].ID, 1, models.StatusCancelled))

	data, err := db.OwnerDashboard(ctx, "owner", models.RecentBookingsLimit)
	require.NoError(t, err)

	assert.Equal(t, 2, data.TotalCars)
	assert.Equal(t, 4, data.TotalBookings)
	assert.Equal(t, 1, data.PendingCount)
	assert.Equal(t, 2, data.ConfirmedCount)
	assert.Equal(t, 300.0, data.MonthlyRevenue)
	require.Len(t, data.RecentBookings, 3)
	assert.Equal(t, bookings[3].ID, data.RecentBookings[0].ID)

	empty, err := db.OwnerDashboard(ctx, "nobody", models.RecentBookingsLimit)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalBookings)
	assert.Zero(t, empty.MonthlyRevenue)
	assert.Empty(t, empty.RecentBookings)
}

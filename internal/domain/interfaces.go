package domain

import (
	"context"
	"io"
	"time"

	"carrental/internal/models"
)

type CarRepository interface {
	CreateCar(ctx context.Context, car *models.Car) error
	UpsertCar(ctx context.Context, car *models.Car) error
	GetCar(ctx context.Context, id int64) (*models.Car, error)
	ListCars(ctx context.Context, filter models.CarFilter) ([]*models.Car, error)
	SetCarAvailability(ctx context.Context, id int64, available bool) (*models.Car, error)
	DeleteCarCascade(ctx context.Context, carID int64) ([]int64, error)
	ListBookingsByCar(ctx context.Context, carID int64) ([]*models.Booking, error)
}

type BookingRepository interface {
	FindAvailableCars(ctx context.Context, location string, dr models.DateRange) ([]*models.Car, error)
	CreateBookingWithLock(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookingsByUser(ctx context.Context, userID string) ([]*models.Booking, error)
	ListBookingsByOwner(ctx context.Context, ownerID string) ([]*models.Booking, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error
}

type PaymentRepository interface {
	CreatePaymentForBooking(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, id int64) (*models.Payment, error)
	GetPaymentByBooking(ctx context.Context, bookingID int64) (*models.Payment, error)
}

type DashboardRepository interface {
	OwnerDashboard(ctx context.Context, ownerID string, recent int) (*models.DashboardData, error)
	ListBookingsByOwner(ctx context.Context, ownerID string) ([]*models.Booking, error)
}

// Repository is the full ledger store.
type Repository interface {
	CarRepository
	BookingRepository
	PaymentRepository
	DashboardRepository
}

// CacheRepository holds short-lived data shared between API instances.
// GetRates returns nil without error on a miss.
type CacheRepository interface {
	GetRates(ctx context.Context, base string) (*models.Rates, error)
	SetRates(ctx context.Context, rates *models.Rates, ttl time.Duration) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SyncWorker delivers booking changes to external sinks asynchronously.
type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64, payload interface{}) error
}

// RateProvider fetches a fresh exchange-rate table for a base currency.
type RateProvider interface {
	FetchRates(ctx context.Context, base string) (*models.Rates, error)
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   string
}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

type CarService interface {
	ListAvailable(ctx context.Context, filter models.CarFilter) ([]*models.Car, error)
	GetByID(ctx context.Context, id int64) (*models.Car, error)
	ListOwnerCars(ctx context.Context, actor Actor) ([]*models.Car, error)
	CreateCar(ctx context.Context, actor Actor, car *models.Car) error
	ToggleAvailability(ctx context.Context, actor Actor, carID int64) (*models.Car, error)
	DeleteCar(ctx context.Context, actor Actor, carID int64) ([]int64, error)
}

type BookingService interface {
	CheckAvailability(ctx context.Context, location, pickupDate, returnDate string) ([]*models.Car, error)
	CreateBooking(ctx context.Context, actor Actor, carID int64, pickupDate, returnDate string) (*models.Booking, error)
	ChangeStatus(ctx context.Context, actor Actor, bookingID int64, status string) (*models.Booking, error)
	ListBookings(ctx context.Context, actor Actor, role string) ([]*models.Booking, error)
	GetBooking(ctx context.Context, actor Actor, bookingID int64) (*models.Booking, error)
}

type PaymentService interface {
	CreatePayment(ctx context.Context, actor Actor, bookingID int64, amount float64, method, currency string) (*models.Payment, error)
	GetPayment(ctx context.Context, actor Actor, paymentID int64) (*models.Payment, error)
}

type DashboardService interface {
	OwnerDashboard(ctx context.Context, actor Actor) (*models.DashboardData, error)
	ExportOwnerBookings(ctx context.Context, actor Actor, w io.Writer) error
}

type RatesService interface {
	Convert(ctx context.Context, amount float64, from, to string) (*models.Conversion, error)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"carrental/internal/domain"
	"carrental/internal/events"
	"carrental/internal/metrics"
	"carrental/internal/models"

	"github.com/rs/zerolog"
)

// BookingLimits bounds what a single renter may book.
type BookingLimits struct {
	MaxBookingDays int
	Attempts       int
	Window         time.Duration
}

type BookingService struct {
	repo   domain.Repository
	cache  domain.CacheRepository
	limits BookingLimits
	notifier
	logger *zerolog.Logger
}

func NewBookingService(
	repo domain.Repository,
	cache domain.CacheRepository,
	eventBus domain.EventPublisher,
	syncWorker domain.SyncWorker,
	limits BookingLimits,
	logger *zerolog.Logger,
) *BookingService {
	if limits.MaxBookingDays <= 0 {
		limits.MaxBookingDays = models.DefaultMaxBookingDays
	}
	if limits.Attempts <= 0 {
		limits.Attempts = models.BookingAttemptsLimit
	}
	if limits.Window <= 0 {
		limits.Window = models.BookingAttemptsWindow * time.Second
	}
	logger = nopLogger(logger)
	return &BookingService{
		repo:     repo,
		cache:    cache,
		limits:   limits,
		notifier: notifier{eventBus: eventBus, syncWorker: syncWorker, logger: logger},
		logger:   logger,
	}
}

// CheckAvailability returns the cars at location that are switched on and
// have no active booking overlapping the closed range. It has no side effects.
func (s *BookingService) CheckAvailability(ctx context.Context, location, pickupDate, returnDate string) ([]*models.Car, error) {
	dr, err := models.ParseDateRange(pickupDate, returnDate)
	if err != nil {
		return nil, err
	}
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, invalidInput("pickup location is required")
	}

	cars, err := s.repo.FindAvailableCars(ctx, location, dr)
	if err != nil {
		return nil, err
	}
	if cars == nil {
		cars = []*models.Car{}
	}
	return cars, nil
}

// CreateBooking books carID for the actor. The overlap re-check and the
// insert run atomically in the store, so of two racing requests for the same
// dates exactly one wins.
func (s *BookingService) CreateBooking(ctx context.Context, actor domain.Actor, carID int64, pickupDate, returnDate string) (*models.Booking, error) {
	if actor.UserID == "" {
		return nil, ErrForbidden
	}

	dr, err := models.ParseDateRange(pickupDate, returnDate)
	if err != nil {
		return nil, err
	}
	if dr.Days() > s.limits.MaxBookingDays {
		return nil, fmt.Errorf("%w: rental may not exceed %d days", ErrInvalidDateRange, s.limits.MaxBookingDays)
	}

	if err := s.checkRateLimit(ctx, actor.UserID); err != nil {
		return nil, err
	}

	car, err := s.repo.GetCar(ctx, carID)
	if err != nil {
		return nil, storeError(err, "car")
	}

	booking := &models.Booking{
		CarID:      car.ID,
		CarName:    car.DisplayName(),
		UserID:     actor.UserID,
		OwnerID:    car.OwnerID,
		PickupDate: dr.Pickup,
		ReturnDate: dr.Return,
		Status:     models.StatusPending,
		Price:      models.PriceFor(car.PricePerDay, dr),
	}

	if err := s.repo.CreateBookingWithLock(ctx, booking); err != nil {
		err = storeError(err, "car")
		if errors.Is(err, ErrCarUnavailable) {
			metrics.IncBookingConflict()
		}
		return nil, err
	}
	metrics.IncBookingCreated()

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Int64("car_id", booking.CarID).
		Str("user_id", booking.UserID).
		Float64("price", booking.Price).
		Msg("booking created")

	s.bookingEvent(events.EventBookingCreated, booking, actor.UserID, "")
	s.syncBooking(ctx, booking)
	return booking, nil
}

func (s *BookingService) checkRateLimit(ctx context.Context, userID string) error {
	if s.cache == nil {
		return nil
	}
	allowed, err := s.cache.CheckRateLimit(ctx, "booking:"+userID, s.limits.Attempts, s.limits.Window)
	if err != nil {
		// a cache outage must not block bookings
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("booking rate limit check failed")
		return nil
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}

// ChangeStatus moves a booking along pending -> confirmed -> cancelled.
// Only the snapshotted owner or an admin may do so.
func (s *BookingService) ChangeStatus(ctx context.Context, actor domain.Actor, bookingID int64, status string) (*models.Booking, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !models.IsBookingStatus(status) {
		return nil, invalidInput("status must be pending, confirmed or cancelled")
	}

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, storeError(err, "booking")
	}
	if booking.OwnerID != actor.UserID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}

	if !models.CanTransition(booking.Status, status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, booking.Status, status)
	}

	if err := s.repo.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, status); err != nil {
		return nil, storeError(err, "booking")
	}
	booking.Status = status
	booking.Version++
	booking.UpdatedAt = time.Now().UTC()
	metrics.IncStatusTransition(status)

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Str("user_id", actor.UserID).
		Str("status", status).
		Msg("booking status changed")

	eventType := events.EventBookingConfirmed
	if status == models.StatusCancelled {
		eventType = events.EventBookingCancelled
	}
	s.bookingEvent(eventType, booking, actor.UserID, "")
	s.syncStatus(ctx, booking.ID, status)
	return booking, nil
}

// ListBookings returns the actor's bookings as renter (role "user", the
// default) or as car owner (role "owner"), newest first.
func (s *BookingService) ListBookings(ctx context.Context, actor domain.Actor, role string) ([]*models.Booking, error) {
	if actor.UserID == "" {
		return nil, ErrForbidden
	}

	var (
		bookings []*models.Booking
		err      error
	)
	switch strings.ToLower(strings.TrimSpace(role)) {
	case "", models.RoleUser:
		bookings, err = s.repo.ListBookingsByUser(ctx, actor.UserID)
	case models.RoleOwner:
		bookings, err = s.repo.ListBookingsByOwner(ctx, actor.UserID)
	default:
		return nil, invalidInput("role must be user or owner")
	}
	if err != nil {
		return nil, err
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	return bookings, nil
}

// GetBooking is visible to the renter, the snapshotted owner and admins.
func (s *BookingService) GetBooking(ctx context.Context, actor domain.Actor, bookingID int64) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, storeError(err, "booking")
	}
	if booking.UserID != actor.UserID && booking.OwnerID != actor.UserID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return booking, nil
}

package service

import (
	"context"
	"strings"

	"carrental/internal/domain"
	"carrental/internal/events"
	"carrental/internal/models"

	"github.com/rs/zerolog"
)

type CarService struct {
	repo domain.Repository
	notifier
	logger *zerolog.Logger
}

func NewCarService(repo domain.Repository, eventBus domain.EventPublisher, syncWorker domain.SyncWorker, logger *zerolog.Logger) *CarService {
	logger = nopLogger(logger)
	return &CarService{
		repo:     repo,
		notifier: notifier{eventBus: eventBus, syncWorker: syncWorker, logger: logger},
		logger:   logger,
	}
}

// ListAvailable lists cars whose availability switch is on. Date occupancy is
// not considered here.
func (s *CarService) ListAvailable(ctx context.Context, filter models.CarFilter) ([]*models.Car, error) {
	filter.OnlyAvailable = true
	return s.repo.ListCars(ctx, filter)
}

func (s *CarService) GetByID(ctx context.Context, id int64) (*models.Car, error) {
	car, err := s.repo.GetCar(ctx, id)
	if err != nil {
		return nil, storeError(err, "car")
	}
	return car, nil
}

func (s *CarService) ListOwnerCars(ctx context.Context, actor domain.Actor) ([]*models.Car, error) {
	if actor.UserID == "" {
		return nil, ErrForbidden
	}
	return s.repo.ListCars(ctx, models.CarFilter{OwnerID: actor.UserID})
}

// CreateCar lists a new car for the acting owner. Admins may list on behalf
// of another owner by setting OwnerID.
func (s *CarService) CreateCar(ctx context.Context, actor domain.Actor, car *models.Car) error {
	if actor.Role != models.RoleOwner && !actor.IsAdmin() {
		return ErrForbidden
	}
	if !actor.IsAdmin() || car.OwnerID == "" {
		car.OwnerID = actor.UserID
	}

	car.Brand = strings.TrimSpace(car.Brand)
	car.Location = strings.TrimSpace(car.Location)
	switch {
	case car.Brand == "":
		return invalidInput("brand is required")
	case car.Location == "":
		return invalidInput("location is required")
	case car.PricePerDay <= 0:
		return invalidInput("price per day must be positive")
	}

	if err := s.repo.CreateCar(ctx, car); err != nil {
		return err
	}
	s.logger.Info().Int64("car_id", car.ID).Str("owner_id", car.OwnerID).Msg("car listed")
	return nil
}

// ToggleAvailability flips the manual availability switch.
func (s *CarService) ToggleAvailability(ctx context.Context, actor domain.Actor, carID int64) (*models.Car, error) {
	car, err := s.ownedCar(ctx, actor, carID)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.SetCarAvailability(ctx, carID, !car.IsAvailable)
	if err != nil {
		return nil, storeError(err, "car")
	}
	return updated, nil
}

// DeleteCar removes the car and cancels its active bookings in one step. It
// returns the ids of the cancelled bookings.
func (s *CarService) DeleteCar(ctx context.Context, actor domain.Actor, carID int64) ([]int64, error) {
	car, err := s.ownedCar(ctx, actor, carID)
	if err != nil {
		return nil, err
	}

	cancelled, err := s.repo.DeleteCarCascade(ctx, carID)
	if err != nil {
		return nil, storeError(err, "car")
	}

	if len(cancelled) > 0 {
		s.announceCancelled(ctx, carID, cancelled, actor.UserID)
	}

	s.publish(events.EventCarDeleted, events.CarEventPayload{
		CarID:             carID,
		OwnerID:           car.OwnerID,
		DeletedBy:         actor.UserID,
		CancelledBookings: cancelled,
	}, 0)

	s.logger.Info().
		Int64("car_id", carID).
		Str("user_id", actor.UserID).
		Int("cancelled_bookings", len(cancelled)).
		Msg("car deleted")
	return cancelled, nil
}

// announceCancelled reloads the car's bookings once and publishes a
// cancellation for each id the cascade touched.
func (s *CarService) announceCancelled(ctx context.Context, carID int64, cancelled []int64, changedBy string) {
	bookings, err := s.repo.ListBookingsByCar(ctx, carID)
	if err != nil {
		s.logger.Error().Err(err).Int64("car_id", carID).Msg("reload cancelled bookings")
	}
	byID := make(map[int64]*models.Booking, len(bookings))
	for _, b := range bookings {
		byID[b.ID] = b
	}

	for _, id := range cancelled {
		if b, ok := byID[id]; ok {
			s.bookingEvent(events.EventBookingCancelled, b, changedBy, "car_deleted")
		} else {
			s.logger.Warn().Int64("booking_id", id).Msg("cancelled booking missing after cascade")
		}
		s.syncStatus(ctx, id, models.StatusCancelled)
	}
}

func (s *CarService) ownedCar(ctx context.Context, actor domain.Actor, carID int64) (*models.Car, error) {
	car, err := s.repo.GetCar(ctx, carID)
	if err != nil {
		return nil, storeError(err, "car")
	}
	if car.OwnerID != actor.UserID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return car, nil
}

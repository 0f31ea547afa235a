package service

import (
	"context"

	"carrental/internal/domain"
	"carrental/internal/events"
	"carrental/internal/models"

	"github.com/rs/zerolog"
)

// notifier fans booking changes out to the event bus and the sync worker.
// Failures are logged; the ledger write has already happened.
type notifier struct {
	eventBus   domain.EventPublisher
	syncWorker domain.SyncWorker
	logger     *zerolog.Logger
}

func (n notifier) publish(eventType string, payload interface{}, bookingID int64) {
	if n.eventBus == nil {
		return
	}
	if err := n.eventBus.PublishJSON(eventType, payload); err != nil {
		n.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", bookingID).Msg("publish event error")
	}
}

func (n notifier) bookingEvent(eventType string, b *models.Booking, changedBy, reason string) {
	n.publish(eventType, bookingPayload(b, changedBy, reason), b.ID)
}

func (n notifier) syncBooking(ctx context.Context, b *models.Booking) {
	n.enqueue(ctx, models.TaskSheetsUpsert, b.ID, b)
}

func (n notifier) syncStatus(ctx context.Context, bookingID int64, status string) {
	n.enqueue(ctx, models.TaskSheetsStatus, bookingID, models.StatusChange{BookingID: bookingID, Status: status})
}

func (n notifier) enqueue(ctx context.Context, taskType string, bookingID int64, payload interface{}) {
	if n.syncWorker == nil {
		return
	}
	if err := n.syncWorker.EnqueueTask(ctx, taskType, bookingID, payload); err != nil {
		n.logger.Error().Err(err).Int64("booking_id", bookingID).Str("task", taskType).Msg("sync enqueue error")
	}
}

func bookingPayload(b *models.Booking, changedBy, reason string) events.BookingEventPayload {
	return events.BookingEventPayload{
		BookingID:  b.ID,
		CarID:      b.CarID,
		CarName:    b.CarName,
		UserID:     b.UserID,
		OwnerID:    b.OwnerID,
		PickupDate: b.PickupDate.Format(models.DateLayout),
		ReturnDate: b.ReturnDate.Format(models.DateLayout),
		Status:     b.Status,
		Price:      b.Price,
		ChangedBy:  changedBy,
		Reason:     reason,
	}
}

func nopLogger(logger *zerolog.Logger) *zerolog.Logger {
	if logger != nil {
		return logger
	}
	nop := zerolog.Nop()
	return &nop
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carrental/internal/database"
	"carrental/internal/events"
	"carrental/internal/metrics"
	"carrental/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var errInvalidTask = errors.New("invalid task")

// TaskStore persists the sync queue.
type TaskStore interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	ClaimSyncTask(ctx context.Context, id int64) (bool, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	ReleaseStaleSyncTasks(ctx context.Context) (int64, error)
}

// EventSink receives domain events, normally the AMQP publisher.
type EventSink interface {
	PublishEvent(ctx context.Context, event *events.Event) error
}

// SheetsClient mirrors bookings into a spreadsheet.
type SheetsClient interface {
	UpsertBooking(ctx context.Context, b *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error
}

// SyncWorker consumes sync_queue tasks and delivers them to the configured sinks.
type SyncWorker struct {
	store         TaskStore
	events        EventSink
	sheets        SheetsClient
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewSyncWorker builds a worker with sane defaults. Sinks are attached with
// WithEventSink and WithSheets; tasks for a missing sink are not queued.
func NewSyncWorker(store TaskStore, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *SyncWorker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &SyncWorker{
		store:         store,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "sync:queue",
		deadLetterKey: "sync:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
	}
}

func (w *SyncWorker) WithEventSink(sink EventSink) *SyncWorker {
	w.events = sink
	return w
}

func (w *SyncWorker) WithSheets(client SheetsClient) *SyncWorker {
	w.sheets = client
	return w
}

// Accepts reports whether a sink for the task type is attached.
func (w *SyncWorker) Accepts(taskType string) bool {
	switch taskType {
	case models.TaskPublishEvent:
		return w.events != nil
	case models.TaskSheetsUpsert, models.TaskSheetsStatus:
		return w.sheets != nil
	}
	return false
}

// EnqueueTask persists task to DB and schedules it via redis or in-memory queue.
func (w *SyncWorker) EnqueueTask(ctx context.Context, taskType string, bookingID int64, payload interface{}) error {
	if taskType == "" {
		return errors.New("task type is required")
	}
	if taskType != models.TaskPublishEvent && bookingID == 0 {
		return errors.New("booking id is required")
	}
	if !w.Accepts(taskType) {
		w.logger.Debug().Str("task_type", taskType).Int64("booking_id", bookingID).Msg("no sink attached, task skipped")
		return nil
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	task := models.SyncTask{
		TaskType:  taskType,
		BookingID: bookingID,
		Payload:   raw,
		Status:    database.TaskPending,
	}
	if err := w.store.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		// the poller picks it up from the table
		w.logger.Warn().Int64("task_id", task.ID).Msg("in-memory queue full")
	}
	return nil
}

// Start launches main loop; stops when ctx is done.
func (w *SyncWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("sync worker started")
	defer w.logger.Info().Msg("sync worker stopped")

	if n, err := w.store.ReleaseStaleSyncTasks(ctx); err != nil {
		w.logger.Error().Err(err).Msg("release stale tasks")
	} else if n > 0 {
		w.logger.Info().Int64("count", n).Msg("released stale tasks")
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.store.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.logger.Error().Err(err).Msg("fetch pending tasks")
		}
		if err != nil || len(tasks) == 0 {
			if !w.sleep(ctx) {
				return
			}
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *SyncWorker) sleep(ctx context.Context) bool {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *SyncWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *SyncWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn().Err(err).Msg("redis BRPOP failed")
		}
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

// processTask runs a task once. A task queued both in redis and in the table
// is delivered by whichever consumer claims it first.
func (w *SyncWorker) processTask(ctx context.Context, task *models.SyncTask) {
	claimed, err := w.store.ClaimSyncTask(ctx, task.ID)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("claim task")
		return
	}
	if !claimed {
		return
	}

	if err := w.handleTask(ctx, task); err != nil {
		if errors.Is(err, errInvalidTask) {
			w.failTask(ctx, task, err)
			return
		}
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, database.TaskCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark completed")
	}
	metrics.IncSyncTask(task.TaskType, "done")
}

func (w *SyncWorker) handleTask(ctx context.Context, task *models.SyncTask) error {
	switch task.TaskType {
	case models.TaskPublishEvent:
		if w.events == nil {
			return fmt.Errorf("%w: event sink not configured", errInvalidTask)
		}
		var event events.Event
		if err := json.Unmarshal([]byte(task.Payload), &event); err != nil {
			return fmt.Errorf("%w: decode event: %v", errInvalidTask, err)
		}
		if event.Type == "" {
			return fmt.Errorf("%w: event type missing", errInvalidTask)
		}
		return w.events.PublishEvent(ctx, &event)
	case models.TaskSheetsUpsert:
		if w.sheets == nil {
			return fmt.Errorf("%w: sheets not configured", errInvalidTask)
		}
		var booking models.Booking
		if err := json.Unmarshal([]byte(task.Payload), &booking); err != nil {
			return fmt.Errorf("%w: decode booking: %v", errInvalidTask, err)
		}
		if booking.ID == 0 {
			booking.ID = task.BookingID
		}
		return w.sheets.UpsertBooking(ctx, &booking)
	case models.TaskSheetsStatus:
		if w.sheets == nil {
			return fmt.Errorf("%w: sheets not configured", errInvalidTask)
		}
		var payload models.StatusChange
		if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
			return fmt.Errorf("%w: decode status: %v", errInvalidTask, err)
		}
		if payload.BookingID == 0 {
			payload.BookingID = task.BookingID
		}
		if payload.BookingID == 0 || payload.Status == "" {
			return fmt.Errorf("%w: booking id or status missing", errInvalidTask)
		}
		return w.sheets.UpdateBookingStatus(ctx, payload.BookingID, payload.Status)
	default:
		return fmt.Errorf("%w: unknown task type %s", errInvalidTask, task.TaskType)
	}
}

func (w *SyncWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		w.failTask(ctx, task, cause)
		return
	}

	nextTime := time.Now().Add(w.retryPolicy.NextDelay(attempt))
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, database.TaskRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark retry")
	}
	w.logger.Warn().Err(cause).
		Int64("task_id", task.ID).
		Str("task_type", task.TaskType).
		Int("attempt", attempt).
		Time("next_retry_at", nextTime).
		Msg("task failed, will retry")
	metrics.IncSyncTask(task.TaskType, "retry")
}

func (w *SyncWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.store.UpdateSyncTaskStatus(ctx, task.ID, database.TaskFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark failed")
	}
	w.logger.Error().Err(cause).
		Int64("task_id", task.ID).
		Str("task_type", task.TaskType).
		Int64("booking_id", task.BookingID).
		Msg("task failed permanently")
	metrics.IncSyncTask(task.TaskType, "failed")
	w.pushDeadLetter(ctx, task)
}

func encodePayload(payload interface{}) (string, error) {
	switch p := payload.(type) {
	case nil:
		return "", nil
	case string:
		return p, nil
	case []byte:
		return string(p), nil
	case json.RawMessage:
		return string(p), nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (w *SyncWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	if w.redis == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *SyncWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("encode deadletter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("deadletter push")
	}
}

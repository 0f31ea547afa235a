package models

import "time"

// Task types handled by the sync worker.
const (
	TaskPublishEvent = "publish_event"
	TaskSheetsUpsert = "sheets_upsert"
	TaskSheetsStatus = "sheets_status"
)

// SyncTask represents a queued delivery job for an external sink.
type SyncTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	BookingID   int64      `json:"booking_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}

// StatusChange is the payload of a sheets_status task.
type StatusChange struct {
	BookingID int64  `json:"booking_id"`
	Status    string `json:"status"`
}

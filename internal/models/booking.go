package models

import (
	"encoding/json"
	"fmt"
	"time"
)

type Booking struct {
	ID         int64     `json:"id"`
	CarID      int64     `json:"car_id"`
	CarName    string    `json:"car_name"`
	UserID     string    `json:"user_id"`
	OwnerID    string    `json:"owner_id"` // snapshot of the car owner at creation
	PickupDate time.Time `json:"-"`
	ReturnDate time.Time `json:"-"`
	Status     string    `json:"status"` // pending, confirmed, cancelled
	Price      float64   `json:"price"`
	PaymentID  *int64    `json:"payment_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Version    int64     `json:"version"`
}

type bookingJSON Booking

// MarshalJSON writes pickup and return as calendar dates (YYYY-MM-DD).
func (b Booking) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		bookingJSON
		PickupDate string `json:"pickup_date"`
		ReturnDate string `json:"return_date"`
	}{
		bookingJSON: bookingJSON(b),
		PickupDate:  b.PickupDate.Format(DateLayout),
		ReturnDate:  b.ReturnDate.Format(DateLayout),
	})
}

func (b *Booking) UnmarshalJSON(data []byte) error {
	var raw struct {
		*bookingJSON
		PickupDate string `json:"pickup_date"`
		ReturnDate string `json:"return_date"`
	}
	raw.bookingJSON = (*bookingJSON)(b)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var err error
	if raw.PickupDate != "" {
		if b.PickupDate, err = ParseDate(raw.PickupDate); err != nil {
			return fmt.Errorf("pickup_date: %w", err)
		}
	}
	if raw.ReturnDate != "" {
		if b.ReturnDate, err = ParseDate(raw.ReturnDate); err != nil {
			return fmt.Errorf("return_date: %w", err)
		}
	}
	return nil
}

// Range returns the booked closed date interval.
func (b *Booking) Range() DateRange {
	return DateRange{Pickup: b.PickupDate, Return: b.ReturnDate}
}

var allowedTransitions = map[string][]string{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsBookingStatus reports whether s is one of the booking statuses.
func IsBookingStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

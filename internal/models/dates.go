package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var ErrInvalidDateRange = errors.New("invalid date range")

// DateRange is a closed interval of calendar dates in UTC.
type DateRange struct {
	Pickup time.Time
	Return time.Time
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a date", ErrInvalidDateRange, s)
	}
	return t, nil
}

// ParseDateRange parses both ends and checks pickup <= return.
func ParseDateRange(pickup, ret string) (DateRange, error) {
	p, err := ParseDate(pickup)
	if err != nil {
		return DateRange{}, err
	}
	r, err := ParseDate(ret)
	if err != nil {
		return DateRange{}, err
	}
	dr := DateRange{Pickup: p, Return: r}
	if err := dr.Validate(); err != nil {
		return DateRange{}, err
	}
	return dr, nil
}

func (d DateRange) Validate() error {
	if d.Pickup.IsZero() || d.Return.IsZero() {
		return fmt.Errorf("%w: dates are required", ErrInvalidDateRange)
	}
	if d.Pickup.After(d.Return) {
		return fmt.Errorf("%w: pickup %s is after return %s", ErrInvalidDateRange,
			d.Pickup.Format(DateLayout), d.Return.Format(DateLayout))
	}
	return nil
}

// Overlaps is the inclusive interval test; same-day turnover counts as a clash.
func (d DateRange) Overlaps(o DateRange) bool {
	return !d.Pickup.After(o.Return) && !d.Return.Before(o.Pickup)
}

// Days is the billable duration, never less than one day.
func (d DateRange) Days() int {
	days := int(math.Ceil(d.Return.Sub(d.Pickup).Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}

// PriceFor returns the immutable booking price for the range.
func PriceFor(pricePerDay float64, d DateRange) float64 {
	return pricePerDay * float64(d.Days())
}

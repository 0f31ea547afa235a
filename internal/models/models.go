package models

// DashboardData aggregates an owner's fleet and bookings.
type DashboardData struct {
	TotalCars      int       `json:"total_cars"`
	TotalBookings  int       `json:"total_bookings"`
	PendingCount   int       `json:"pending_bookings"`
	ConfirmedCount int       `json:"completed_bookings"`
	RecentBookings []Booking `json:"recent_bookings"`
	MonthlyRevenue float64   `json:"monthly_revenue"`
}

// Conversion is the result of converting an amount between currencies.
type Conversion struct {
	From      string  `json:"from"`
	To        string  `json:"to"`
	Amount    float64 `json:"amount"`
	Rate      float64 `json:"rate"`
	Converted float64 `json:"converted"`
}

// Rates is an exchange-rate table keyed by currency code for one base.
type Rates struct {
	Base      string             `json:"base"`
	Values    map[string]float64 `json:"rates"`
	FetchedAt int64              `json:"fetched_at"`
}

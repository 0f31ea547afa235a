package models

// Booking statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Payment statuses.
const (
	PaymentPending  = "PENDING"
	PaymentPaid     = "PAID"
	PaymentFailed   = "FAILED"
	PaymentRefunded = "REFUNDED"
)

const (
	MethodCard = "CARD"
	MethodCash = "CASH"
)

const (
	CurrencyRSD = "RSD"
	CurrencyEUR = "EUR"
	CurrencyUSD = "USD"
)

// Roles carried in access tokens.
const (
	RoleUser  = "user"
	RoleOwner = "owner"
	RoleAdmin = "admin"
)

const (
	// DateLayout is the wire and storage format of calendar dates.
	DateLayout = "2006-01-02"

	// DefaultMaxBookingDays caps the length of a single rental
	DefaultMaxBookingDays = 90

	// DefaultRatesTTL is the exchange-rate cache lifetime in seconds
	DefaultRatesTTL = 10 * 60

	// BookingAttemptsLimit is the number of booking attempts allowed per window
	BookingAttemptsLimit = 10

	// BookingAttemptsWindow is the booking attempts window
	BookingAttemptsWindow = 60 // seconds

	// WorkerQueueSize is the local worker queue capacity
	WorkerQueueSize = 1000

	// RecentBookingsLimit is how many recent bookings the owner dashboard shows
	RecentBookingsLimit = 3
)

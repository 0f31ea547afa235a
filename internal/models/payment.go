package models

import (
	"strings"
	"time"
)

type Payment struct {
	ID          int64     `json:"id"`
	BookingID   int64     `json:"booking_id"`
	UserID      string    `json:"user_id"`
	Amount      float64   `json:"amount"`
	Method      string    `json:"method"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	PaymentDate time.Time `json:"payment_date"`
}

// PaymentStatusFor derives the initial status of a payment from its method.
func PaymentStatusFor(method string) string {
	if method == MethodCash {
		return PaymentPending
	}
	return PaymentPaid
}

// NormalizeMethod upper-cases method and applies the CARD default.
func NormalizeMethod(method string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return MethodCard
	}
	return method
}

// NormalizeCurrency upper-cases currency and applies the EUR default.
func NormalizeCurrency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return CurrencyEUR
	}
	return currency
}

func IsPaymentMethod(m string) bool {
	return m == MethodCard || m == MethodCash
}

func IsCurrency(c string) bool {
	switch c {
	case CurrencyRSD, CurrencyEUR, CurrencyUSD:
		return true
	}
	return false
}

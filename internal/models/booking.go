package models

import "time"

// PaymentStatus represents the payment state of a booking.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Valid reports whether the status is one of the known payment states.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed:
		return true
	}
	return false
}

// Booking is the persisted record created once, at the terminal transition
// of a conversation. It is never created partially.
type Booking struct {
	ID               string            `json:"id" db:"id"`
	PhoneNumber      string            `json:"phone_number" db:"phone_number"`
	BookingReference string            `json:"booking_reference" db:"booking_reference"`
	FlightDetails    FlightSelection   `json:"flight_details" db:"flight_details"`
	PassengerDetails PassengerManifest `json:"passenger_details" db:"passenger_details"`
	PaymentStatus    PaymentStatus     `json:"payment_status" db:"payment_status"`
	Amount           float64           `json:"amount" db:"amount"`
	Currency         string            `json:"currency" db:"currency"`
	PaymentReference *string           `json:"payment_reference,omitempty" db:"payment_reference"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at"`
}

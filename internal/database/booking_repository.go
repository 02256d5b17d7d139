package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/remmie/whatsapp-booking-backend/internal/models"
)

// BookingRepository handles database operations for the bookings table
type BookingRepository struct {
	db DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create creates a new booking
func (r *BookingRepository) Create(booking *models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, phone_number, booking_reference, flight_details,
			passenger_details, payment_status, amount, currency
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
		RETURNING created_at
	`

	// Generate ID if not provided
	if booking.ID == "" {
		booking.ID = uuid.New().String()
	}

	flightDetails, err := json.Marshal(booking.FlightDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal flight details: %w", err)
	}

	passengerDetails, err := json.Marshal(booking.PassengerDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal passenger details: %w", err)
	}

	err = r.db.QueryRow(
		query,
		booking.ID, booking.PhoneNumber, booking.BookingReference, flightDetails,
		passengerDetails, booking.PaymentStatus, booking.Amount, booking.Currency,
	).Scan(&booking.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	return nil
}

// GetByReference retrieves a booking by its human-readable reference
func (r *BookingRepository) GetByReference(reference string) (*models.Booking, error) {
	query := `
		SELECT id, phone_number, booking_reference, flight_details,
			   passenger_details, payment_status, amount, currency,
			   payment_reference, created_at
		FROM bookings
		WHERE booking_reference = $1
	`

	return r.scanBooking(r.db.QueryRow(query, reference))
}

// GetByPhone retrieves all bookings for a phone number, newest first
func (r *BookingRepository) GetByPhone(phoneNumber string) ([]models.Booking, error) {
	query := `
		SELECT id, phone_number, booking_reference, flight_details,
			   passenger_details, payment_status, amount, currency,
			   payment_reference, created_at
		FROM bookings
		WHERE phone_number = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(query, phoneNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanBookings(rows)
}

// GetByPaymentStatus retrieves all bookings in the given payment state
func (r *BookingRepository) GetByPaymentStatus(status models.PaymentStatus) ([]models.Booking, error) {
	query := `
		SELECT id, phone_number, booking_reference, flight_details,
			   passenger_details, payment_status, amount, currency,
			   payment_reference, created_at
		FROM bookings
		WHERE payment_status = $1
		ORDER BY created_at
	`

	rows, err := r.db.Query(query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanBookings(rows)
}

// UpdatePaymentStatus updates the payment status of a booking
func (r *BookingRepository) UpdatePaymentStatus(reference string, status models.PaymentStatus, paymentReference *string) error {
	query := `
		UPDATE bookings
		SET payment_status = $2, payment_reference = $3
		WHERE booking_reference = $1
	`

	result, err := r.db.Exec(query, reference, status, paymentReference)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return fmt.Errorf("booking not found")
	}

	return nil
}

// ReferenceExists reports whether a booking reference is already taken
func (r *BookingRepository) ReferenceExists(reference string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM bookings WHERE booking_reference = $1)`

	var exists bool
	err := r.db.QueryRow(query, reference).Scan(&exists)
	return exists, err
}

// scanBooking scans a single booking
func (r *BookingRepository) scanBooking(row scanner) (*models.Booking, error) {
	booking := &models.Booking{}
	var flightDetails, passengerDetails []byte
	var paymentReference sql.NullString

	err := row.Scan(
		&booking.ID, &booking.PhoneNumber, &booking.BookingReference, &flightDetails,
		&passengerDetails, &booking.PaymentStatus, &booking.Amount, &booking.Currency,
		&paymentReference, &booking.CreatedAt,
	)

	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(flightDetails, &booking.FlightDetails); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flight details: %w", err)
	}
	if err := json.Unmarshal(passengerDetails, &booking.PassengerDetails); err != nil {
		return nil, fmt.Errorf("failed to unmarshal passenger details: %w", err)
	}
	if paymentReference.Valid {
		booking.PaymentReference = &paymentReference.String
	}

	return booking, nil
}

// scanBookings scans multiple bookings from rows
func (r *BookingRepository) scanBookings(rows *sql.Rows) ([]models.Booking, error) {
	bookings := []models.Booking{}

	for rows.Next() {
		booking, err := r.scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *booking)
	}

	return bookings, rows.Err()
}

// scanner interface for QueryRow and Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

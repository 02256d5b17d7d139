package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/remmie/whatsapp-booking-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBooking() *models.Booking {
	return &models.Booking{
		PhoneNumber:      "96170123456",
		BookingReference: "BOOK-A1B2C3",
		FlightDetails: models.FlightSelection{
			Departure: models.FlightOffer{
				ID:       "1",
				Price:    450.00,
				Currency: "USD",
				Segments: []models.FlightSegment{{
					CarrierCode:      "ME",
					FlightNumber:     "201",
					DepartureAirport: "BEY",
					ArrivalAirport:   "DXB",
				}},
			},
		},
		PassengerDetails: models.PassengerManifest{
			Adults: 1,
			Passengers: []models.Passenger{{
				FirstName: "John",
				LastName:  "Doe",
				Type:      models.PassengerTypeAdult,
				Number:    1,
			}},
		},
		PaymentStatus: models.PaymentStatusPending,
		Amount:        450.00,
		Currency:      "USD",
	}
}

func TestCreateBooking(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mockDB := &mockDatabase{db: db}
	repo := NewBookingRepository(mockDB)

	t.Run("Success", func(t *testing.T) {
		booking := testBooking()
		now := time.Now()

		mock.ExpectQuery(`INSERT INTO bookings`).
			WithArgs(
				sqlmock.AnyArg(), booking.PhoneNumber, booking.BookingReference, sqlmock.AnyArg(),
				sqlmock.AnyArg(), booking.PaymentStatus, booking.Amount, booking.Currency,
			).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

		err := repo.Create(booking)
		require.NoError(t, err)
		assert.NotEmpty(t, booking.ID)
		assert.Equal(t, now, booking.CreatedAt)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Keeps Provided ID", func(t *testing.T) {
		booking := testBooking()
		booking.ID = uuid.New().String()
		providedID := booking.ID

		mock.ExpectQuery(`INSERT INTO bookings`).
			WithArgs(
				providedID, booking.PhoneNumber, booking.BookingReference, sqlmock.AnyArg(),
				sqlmock.AnyArg(), booking.PaymentStatus, booking.Amount, booking.Currency,
			).
			WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(time.Now()))

		err := repo.Create(booking)
		require.NoError(t, err)
		assert.Equal(t, providedID, booking.ID)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Database Error", func(t *testing.T) {
		booking := testBooking()

		mock.ExpectQuery(`INSERT INTO bookings`).
			WillReturnError(fmt.Errorf("database error"))

		err := repo.Create(booking)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create booking")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetBookingByReference(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mockDB := &mockDatabase{db: db}
	repo := NewBookingRepository(mockDB)

	t.Run("Success", func(t *testing.T) {
		source := testBooking()
		source.ID = uuid.New().String()
		flightDetails, err := json.Marshal(source.FlightDetails)
		require.NoError(t, err)
		passengerDetails, err := json.Marshal(source.PassengerDetails)
		require.NoError(t, err)

		mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE booking_reference`).
			WithArgs(source.BookingReference).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "phone_number", "booking_reference", "flight_details",
				"passenger_details", "payment_status", "amount", "currency",
				"payment_reference", "created_at",
			}).AddRow(
				source.ID, source.PhoneNumber, source.BookingReference, flightDetails,
				passengerDetails, source.PaymentStatus, source.Amount, source.Currency,
				nil, time.Now(),
			))

		booking, err := repo.GetByReference(source.BookingReference)
		require.NoError(t, err)
		assert.Equal(t, source.BookingReference, booking.BookingReference)
		assert.Equal(t, "BEY", booking.FlightDetails.Departure.FirstSegment().DepartureAirport)
		assert.Equal(t, 1, booking.PassengerDetails.Adults)
		assert.Nil(t, booking.PaymentReference)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM bookings WHERE booking_reference`).
			WithArgs("BOOK-ZZZZZZ").
			WillReturnError(sql.ErrNoRows)

		booking, err := repo.GetByReference("BOOK-ZZZZZZ")
		assert.Equal(t, sql.ErrNoRows, err)
		assert.Nil(t, booking)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdatePaymentStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mockDB := &mockDatabase{db: db}
	repo := NewBookingRepository(mockDB)

	t.Run("Success", func(t *testing.T) {
		paymentRef := "pay_12345"

		mock.ExpectExec(`UPDATE bookings`).
			WithArgs("BOOK-A1B2C3", models.PaymentStatusPaid, &paymentRef).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdatePaymentStatus("BOOK-A1B2C3", models.PaymentStatusPaid, &paymentRef)
		assert.NoError(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not Found", func(t *testing.T) {
		mock.ExpectExec(`UPDATE bookings`).
			WithArgs("BOOK-ZZZZZZ", models.PaymentStatusPaid, nil).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdatePaymentStatus("BOOK-ZZZZZZ", models.PaymentStatusPaid, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "booking not found")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReferenceExists(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mockDB := &mockDatabase{db: db}
	repo := NewBookingRepository(mockDB)

	t.Run("Exists", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("BOOK-A1B2C3").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		exists, err := repo.ReferenceExists("BOOK-A1B2C3")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("Does Not Exist", func(t *testing.T) {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs("BOOK-ZZZZZZ").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		exists, err := repo.ReferenceExists("BOOK-ZZZZZZ")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

// mockDatabase wraps sqlmock's *sql.DB behind the DB interface
type mockDatabase struct {
	db *sql.DB
}

func (m *mockDatabase) Get(dest interface{}, query string, args ...interface{}) error {
	return fmt.Errorf("Get not implemented in mock")
}

func (m *mockDatabase) Select(dest interface{}, query string, args ...interface{}) error {
	return fmt.Errorf("Select not implemented in mock")
}

func (m *mockDatabase) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return m.db.Query(query, args...)
}

func (m *mockDatabase) QueryRow(query string, args ...interface{}) *sql.Row {
	return m.db.QueryRow(query, args...)
}

func (m *mockDatabase) Exec(query string, args ...interface{}) (sql.Result, error) {
	return m.db.Exec(query, args...)
}

func (m *mockDatabase) Close() error {
	return m.db.Close()
}

func (m *mockDatabase) Ping() error {
	return m.db.Ping()
}

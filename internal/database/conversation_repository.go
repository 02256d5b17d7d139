package database

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/remmie/whatsapp-booking-backend/internal/models"
)

// ConversationRepository handles database operations for the conversations table
type ConversationRepository struct {
	db DB
}

// NewConversationRepository creates a new ConversationRepository
func NewConversationRepository(db DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetOrCreate retrieves the conversation for a phone number, inserting a
// fresh row at step 'new' when none exists.
func (r *ConversationRepository) GetOrCreate(phoneNumber string) (*models.Conversation, error) {
	conv, err := r.getByPhone(phoneNumber)
	if err == nil {
		return conv, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	query := `
		INSERT INTO conversations (phone_number, step)
		VALUES ($1, $2)
		RETURNING updated_at
	`

	conv = &models.Conversation{
		PhoneNumber: phoneNumber,
		Step:        models.StepNew,
	}

	if err := r.db.QueryRow(query, phoneNumber, models.StepNew).Scan(&conv.UpdatedAt); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return conv, nil
}

// Save writes back every mutable field of the conversation. Transitions for
// the same phone number are serialized by the engine, so a full-row write is
// safe.
func (r *ConversationRepository) Save(conv *models.Conversation) error {
	query := `
		UPDATE conversations
		SET step = $2, from_code = $3, from_name = $4, to_code = $5, to_name = $6,
			departure_date = $7, return_date = $8, needs_return = $9,
			adults = $10, children = $11,
			from_pending = $12, to_pending = $13,
			departure_offers = $14, return_offers = $15,
			selected_departure = $16, selected_return = $17,
			passenger_details = $18, updated_at = NOW()
		WHERE phone_number = $1
		RETURNING updated_at
	`

	fromPending, err := marshalNullable(conv.FromPending)
	if err != nil {
		return fmt.Errorf("failed to marshal from_pending: %w", err)
	}
	toPending, err := marshalNullable(conv.ToPending)
	if err != nil {
		return fmt.Errorf("failed to marshal to_pending: %w", err)
	}
	departureOffers, err := marshalOffers(conv.DepartureOffers)
	if err != nil {
		return fmt.Errorf("failed to marshal departure_offers: %w", err)
	}
	returnOffers, err := marshalOffers(conv.ReturnOffers)
	if err != nil {
		return fmt.Errorf("failed to marshal return_offers: %w", err)
	}
	selectedDeparture, err := marshalNullable(conv.SelectedDeparture)
	if err != nil {
		return fmt.Errorf("failed to marshal selected_departure: %w", err)
	}
	selectedReturn, err := marshalNullable(conv.SelectedReturn)
	if err != nil {
		return fmt.Errorf("failed to marshal selected_return: %w", err)
	}
	passengerDetails, err := marshalNullable(conv.PassengerDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal passenger_details: %w", err)
	}

	err = r.db.QueryRow(
		query,
		conv.PhoneNumber, conv.Step,
		nullString(conv.FromCode), nullString(conv.FromName),
		nullString(conv.ToCode), nullString(conv.ToName),
		nullString(conv.DepartureDate), conv.ReturnDate, conv.NeedsReturn,
		conv.Adults, conv.Children,
		fromPending, toPending,
		departureOffers, returnOffers,
		selectedDeparture, selectedReturn,
		passengerDetails,
	).Scan(&conv.UpdatedAt)

	if err == sql.ErrNoRows {
		return fmt.Errorf("conversation not found")
	}
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}

	return nil
}

// Delete removes the conversation row, ending the dialogue.
func (r *ConversationRepository) Delete(phoneNumber string) error {
	query := `DELETE FROM conversations WHERE phone_number = $1`

	if _, err := r.db.Exec(query, phoneNumber); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	return nil
}

func (r *ConversationRepository) getByPhone(phoneNumber string) (*models.Conversation, error) {
	query := `
		SELECT phone_number, step, from_code, from_name, to_code, to_name,
			   departure_date, return_date, needs_return, adults, children,
			   from_pending, to_pending, departure_offers, return_offers,
			   selected_departure, selected_return, passenger_details, updated_at
		FROM conversations
		WHERE phone_number = $1
	`

	conv := &models.Conversation{}
	var fromCode, fromName, toCode, toName, departureDate, returnDate sql.NullString
	var fromPending, toPending, departureOffers, returnOffers []byte
	var selectedDeparture, selectedReturn, passengerDetails []byte

	err := r.db.QueryRow(query, phoneNumber).Scan(
		&conv.PhoneNumber, &conv.Step, &fromCode, &fromName, &toCode, &toName,
		&departureDate, &returnDate, &conv.NeedsReturn, &conv.Adults, &conv.Children,
		&fromPending, &toPending, &departureOffers, &returnOffers,
		&selectedDeparture, &selectedReturn, &passengerDetails, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	conv.FromCode = fromCode.String
	conv.FromName = fromName.String
	conv.ToCode = toCode.String
	conv.ToName = toName.String
	conv.DepartureDate = departureDate.String
	if returnDate.Valid {
		conv.ReturnDate = &returnDate.String
	}

	if err := unmarshalNullable(fromPending, &conv.FromPending); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from_pending: %w", err)
	}
	if err := unmarshalNullable(toPending, &conv.ToPending); err != nil {
		return nil, fmt.Errorf("failed to unmarshal to_pending: %w", err)
	}
	if len(departureOffers) > 0 {
		if err := json.Unmarshal(departureOffers, &conv.DepartureOffers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal departure_offers: %w", err)
		}
	}
	if len(returnOffers) > 0 {
		if err := json.Unmarshal(returnOffers, &conv.ReturnOffers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal return_offers: %w", err)
		}
	}
	if err := unmarshalNullable(selectedDeparture, &conv.SelectedDeparture); err != nil {
		return nil, fmt.Errorf("failed to unmarshal selected_departure: %w", err)
	}
	if err := unmarshalNullable(selectedReturn, &conv.SelectedReturn); err != nil {
		return nil, fmt.Errorf("failed to unmarshal selected_return: %w", err)
	}
	if err := unmarshalNullable(passengerDetails, &conv.PassengerDetails); err != nil {
		return nil, fmt.Errorf("failed to unmarshal passenger_details: %w", err)
	}

	return conv, nil
}

// marshalNullable marshals a pointer value to JSON, mapping nil to SQL NULL.
func marshalNullable(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case *models.Disambiguation:
		if val == nil {
			return nil, nil
		}
	case *models.FlightOffer:
		if val == nil {
			return nil, nil
		}
	case *models.PassengerManifest:
		if val == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func marshalOffers(offers []models.FlightOffer) (interface{}, error) {
	if len(offers) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(offers)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func unmarshalNullable(data []byte, dest interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dest)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Step identifies the current position of a conversation in the booking flow.
// It is the only field the engine dispatches on.
type Step string

const (
	StepNew                     Step = "new"
	StepAwaitingCategory        Step = "awaiting_category"
	StepAwaitingFlightDetails   Step = "awaiting_flight_details"
	StepAwaitingFromCity        Step = "awaiting_from_city"
	StepAwaitingFromAirport     Step = "awaiting_from_airport"
	StepAwaitingToCity          Step = "awaiting_to_city"
	StepAwaitingToAirport       Step = "awaiting_to_airport"
	StepAwaitingPassengers      Step = "awaiting_passengers"
	StepAwaitingFlightSelection Step = "awaiting_flight_selection"
	StepAwaitingReturnSelection Step = "awaiting_return_selection"
	StepAwaitingConfirmation    Step = "awaiting_confirmation"
)

const collectingPrefix = "collecting_"

// CollectingStep builds the step for one passenger slot, e.g. "collecting_adult_1".
func CollectingStep(passengerType PassengerType, number int) Step {
	return Step(fmt.Sprintf("%s%s_%d", collectingPrefix, strings.ToLower(string(passengerType)), number))
}

// ParseCollectingStep extracts the passenger type and slot number from a
// collecting step. Returns false if the step is not a collecting step.
func ParseCollectingStep(step Step) (PassengerType, int, bool) {
	s := string(step)
	if !strings.HasPrefix(s, collectingPrefix) {
		return "", 0, false
	}
	rest := strings.TrimPrefix(s, collectingPrefix)
	parts := strings.Split(rest, "_")
	if len(parts) != 2 {
		return "", 0, false
	}
	number, err := strconv.Atoi(parts[1])
	if err != nil || number < 1 {
		return "", 0, false
	}
	switch parts[0] {
	case "adult":
		return PassengerTypeAdult, number, true
	case "child":
		return PassengerTypeChild, number, true
	}
	return "", 0, false
}

// IsCollecting reports whether the step is a passenger-collection step.
func (s Step) IsCollecting() bool {
	return strings.HasPrefix(string(s), collectingPrefix)
}

// DisambiguationKind tags the pending disambiguation state for one side of
// the trip. At most one shape is active per side at any time.
type DisambiguationKind string

const (
	DisambiguationNone           DisambiguationKind = "none"
	DisambiguationAwaitingCity   DisambiguationKind = "awaiting_city"
	DisambiguationAwaitingChoice DisambiguationKind = "awaiting_airport_choice"
)

// AirportOption is one selectable airport candidate in a list prompt.
type AirportOption struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

// Disambiguation holds the sub-dialogue state needed to turn free-text
// location input into a concrete airport code. For the destination side it
// also carries the raw query text and its initial resolution type so the
// destination can be replayed once the origin resolves.
type Disambiguation struct {
	Kind       DisambiguationKind `json:"kind"`
	Country    string             `json:"country,omitempty"`
	Candidates []AirportOption    `json:"candidates,omitempty"`
	Query      string             `json:"query,omitempty"`
	QueryType  LocationType       `json:"query_type,omitempty"`
}

// Conversation is the persisted state of one booking dialogue, keyed by the
// sender's phone number. At most one live row exists per phone number.
type Conversation struct {
	PhoneNumber string `json:"phone_number" db:"phone_number"`
	Step        Step   `json:"step" db:"step"`

	FromCode      string  `json:"from_code" db:"from_code"`
	FromName      string  `json:"from_name" db:"from_name"`
	ToCode        string  `json:"to_code" db:"to_code"`
	ToName        string  `json:"to_name" db:"to_name"`
	DepartureDate string  `json:"departure_date" db:"departure_date"`
	ReturnDate    *string `json:"return_date" db:"return_date"`
	NeedsReturn   bool    `json:"needs_return" db:"needs_return"`

	Adults   int `json:"adults" db:"adults"`
	Children int `json:"children" db:"children"`

	FromPending *Disambiguation `json:"from_pending" db:"from_pending"`
	ToPending   *Disambiguation `json:"to_pending" db:"to_pending"`

	DepartureOffers []FlightOffer `json:"departure_offers" db:"departure_offers"`
	ReturnOffers    []FlightOffer `json:"return_offers" db:"return_offers"`

	SelectedDeparture *FlightOffer `json:"selected_departure" db:"selected_departure"`
	SelectedReturn    *FlightOffer `json:"selected_return" db:"selected_return"`

	PassengerDetails *PassengerManifest `json:"passenger_details" db:"passenger_details"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// Terminal marks the conversation as finalized within the current turn so
	// the engine skips the write-back after the row has been deleted.
	Terminal bool `json:"-" db:"-"`
}

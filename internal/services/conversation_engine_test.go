package services

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/remmie/whatsapp-booking-backend/internal/models"
	"github.com/remmie/whatsapp-booking-backend/pkg/amadeus"
	"github.com/remmie/whatsapp-booking-backend/pkg/jwt"
	"github.com/remmie/whatsapp-booking-backend/pkg/whatsapp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPhone = "96170123456"

type fakeConversationStore struct {
	conversations map[string]*models.Conversation
	deleted       []string
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{conversations: make(map[string]*models.Conversation)}
}

func (s *fakeConversationStore) GetOrCreate(phone string) (*models.Conversation, error) {
	if conv, ok := s.conversations[phone]; ok {
		return conv, nil
	}
	conv := &models.Conversation{PhoneNumber: phone, Step: models.StepNew}
	s.conversations[phone] = conv
	return conv, nil
}

func (s *fakeConversationStore) Save(conv *models.Conversation) error {
	s.conversations[conv.PhoneNumber] = conv
	return nil
}

func (s *fakeConversationStore) Delete(phone string) error {
	delete(s.conversations, phone)
	s.deleted = append(s.deleted, phone)
	return nil
}

type sentText struct {
	to   string
	body string
}

type sentList struct {
	to      string
	body    string
	section string
	rows    []whatsapp.ListRow
}

type fakeMessenger struct {
	texts []sentText
	lists []sentList
}

func (m *fakeMessenger) SendText(to, body string) error {
	m.texts = append(m.texts, sentText{to: to, body: body})
	return nil
}

func (m *fakeMessenger) SendList(to, body, sectionTitle string, rows []whatsapp.ListRow) error {
	m.lists = append(m.lists, sentList{to: to, body: body, section: sectionTitle, rows: rows})
	return nil
}

func (m *fakeMessenger) lastText(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, m.texts)
	return m.texts[len(m.texts)-1].body
}

func (m *fakeMessenger) lastList(t *testing.T) sentList {
	t.Helper()
	require.NotEmpty(t, m.lists)
	return m.lists[len(m.lists)-1]
}

type fakeFlights struct {
	offers map[string][]amadeus.Offer
	err    error
}

func (f *fakeFlights) SearchOffers(origin, destination, date string, adults, max int) ([]amadeus.Offer, error) {
	if f.err != nil {
		return nil, f.err
	}
	offers, ok := f.offers[origin+"-"+destination]
	if !ok {
		return nil, amadeus.ErrNoOffers
	}
	return offers, nil
}

type fakeBookingStore struct {
	created   []*models.Booking
	createErr error
}

func (s *fakeBookingStore) Create(booking *models.Booking) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, booking)
	return nil
}

func (s *fakeBookingStore) ReferenceExists(reference string) (bool, error) {
	for _, b := range s.created {
		if b.BookingReference == reference {
			return true, nil
		}
	}
	return false, nil
}

func testOffers(price float64) []amadeus.Offer {
	depart := time.Date(2025, 5, 15, 8, 30, 0, 0, time.UTC)
	return []amadeus.Offer{
		{
			ID: "1", Total: price, Currency: "USD",
			Segments: []amadeus.Segment{{
				CarrierCode: "ME", Number: "201", Origin: "BEY", Destination: "DXB",
				DepartureAt: depart, ArrivalAt: depart.Add(4 * time.Hour),
			}},
		},
		{
			ID: "2", Total: price + 50, Currency: "USD",
			Segments: []amadeus.Segment{{
				CarrierCode: "EK", Number: "954", Origin: "BEY", Destination: "DXB",
				DepartureAt: depart.Add(6 * time.Hour), ArrivalAt: depart.Add(10 * time.Hour),
			}},
		},
	}
}

type engineFixture struct {
	engine        *ConversationEngine
	conversations *fakeConversationStore
	bookings      *fakeBookingStore
	messenger     *fakeMessenger
	flights       *fakeFlights
	directory     *stubDirectory
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	directory := &stubDirectory{
		byCode: map[string]*models.Airport{
			"BEY": beirutAirport(),
			"DXB": {IATACode: "DXB", Name: "Dubai International Airport", Municipality: "Dubai", CountryName: "United Arab Emirates"},
			"LHR": {IATACode: "LHR", Name: "Heathrow Airport", Municipality: "London", CountryName: "United Kingdom"},
			"LGW": {IATACode: "LGW", Name: "Gatwick Airport", Municipality: "London", CountryName: "United Kingdom"},
		},
		countries: map[string]string{"Lebanon": "Lebanon"},
		multiCity: map[string]string{"London": "London"},
		municipalities: map[string][]models.Airport{
			"London": {
				{IATACode: "LGW", Name: "Gatwick Airport", Municipality: "London", CountryName: "United Kingdom"},
				{IATACode: "LHR", Name: "Heathrow Airport", Municipality: "London", CountryName: "United Kingdom"},
			},
		},
		inCountry: map[string][]models.Airport{
			"Beirut": {*beirutAirport()},
		},
	}

	conversations := newFakeConversationStore()
	bookings := &fakeBookingStore{}
	messenger := &fakeMessenger{}
	flights := &fakeFlights{offers: map[string][]amadeus.Offer{
		"BEY-DXB": testOffers(450),
		"DXB-BEY": testOffers(400),
	}}

	tokens := jwt.NewService("test-secret", time.Hour)
	finalizer := NewBookingFinalizer(bookings, conversations, messenger, tokens, "https://pay.example.com/checkout", logger)
	resolver := NewLocationResolver(directory)
	collector := NewPassengerCollector()

	engine := NewConversationEngine(
		conversations, directory, resolver, collector, finalizer, flights, messenger, logger,
	)

	return &engineFixture{
		engine:        engine,
		conversations: conversations,
		bookings:      bookings,
		messenger:     messenger,
		flights:       flights,
		directory:     directory,
	}
}

func (f *engineFixture) text(t *testing.T, body string) {
	t.Helper()
	require.NoError(t, f.engine.HandleEvent(testPhone, Event{Text: body}))
}

func (f *engineFixture) listReply(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, f.engine.HandleEvent(testPhone, Event{ListReply: id}))
}

func (f *engineFixture) step(t *testing.T) models.Step {
	t.Helper()
	conv, ok := f.conversations.conversations[testPhone]
	require.True(t, ok)
	return conv.Step
}

func TestGreetingStartsCategoryMenu(t *testing.T) {
	f := newEngineFixture(t)

	f.text(t, "hi")

	assert.Equal(t, models.StepAwaitingCategory, f.step(t))
	list := f.messenger.lastList(t)
	require.Len(t, list.rows, 2)
	assert.Equal(t, "flights", list.rows[0].ID)
	assert.Equal(t, "hotels", list.rows[1].ID)
}

func TestGreetingResetsMidFlow(t *testing.T) {
	f := newEngineFixture(t)

	f.text(t, "hi")
	f.listReply(t, "flights")
	f.text(t, "From BEY To DXB 2025-05-15")
	require.Equal(t, models.StepAwaitingPassengers, f.step(t))

	f.text(t, "Hi")

	assert.Equal(t, models.StepAwaitingCategory, f.step(t))
	conv := f.conversations.conversations[testPhone]
	assert.Empty(t, conv.FromCode)
	assert.Empty(t, conv.DepartureDate)
}

func TestHotelsComingSoon(t *testing.T) {
	f := newEngineFixture(t)

	f.text(t, "hi")
	f.listReply(t, "hotels")

	assert.Equal(t, models.StepAwaitingCategory, f.step(t))
	assert.Contains(t, f.messenger.lastText(t), "coming soon")
}

func TestOneWayBookingFlow(t *testing.T) {
	f := newEngineFixture(t)

	f.text(t, "hi")
	f.listReply(t, "flights")
	assert.Equal(t, models.StepAwaitingFlightDetails, f.step(t))
	assert.Contains(t, f.messenger.lastText(t), "book your flight")

	f.text(t, "From BEY To DXB 2025-05-15")
	assert.Equal(t, models.StepAwaitingPassengers, f.step(t))
	assert.Contains(t, f.messenger.lastText(t), "how many passengers")

	f.text(t, "Adults:2 Children:1")
	assert.Equal(t, models.StepAwaitingFlightSelection, f.step(t))
	offers := f.messenger.lastText(t)
	assert.Contains(t, offers, "Available departure flights")
	assert.Contains(t, offers, "ME201")
	assert.Contains(t, offers, "450.00 USD")

	f.text(t, "1")
	assert.Equal(t, models.StepAwaitingConfirmation, f.step(t))
	confirmation := f.messenger.lastText(t)
	assert.Contains(t, confirmation, "one-way booking")
	// 450 x (2 adults + 1 child x 0.8)
	assert.Contains(t, confirmation, "1260.00 USD")

	// Anything but CONFIRM is ignored without a reply
	sentBefore := len(f.messenger.texts)
	f.text(t, "maybe later")
	assert.Equal(t, models.StepAwaitingConfirmation, f.step(t))
	assert.Len(t, f.messenger.texts, sentBefore)

	f.text(t, "confirm")
	assert.Equal(t, models.CollectingStep(models.PassengerTypeAdult, 1), f.step(t))
	assert.Contains(t, f.messenger.lastText(t), "details for Adult 1")

	f.text(t, validPassengerBlock)
	assert.Equal(t, models.CollectingStep(models.PassengerTypeAdult, 2), f.step(t))

	f.text(t, validPassengerBlock)
	assert.Equal(t, models.CollectingStep(models.PassengerTypeChild, 1), f.step(t))
	assert.Contains(t, f.messenger.lastText(t), "details for Child 1")

	childBlock := `First Name: Jane
Last Name: Doe
Gender: Female
Date of Birth: 2018-06-01
Passport Number: P87654321
Passport Expiry: 2030-01-01
Nationality: LB
Email: jane@example.com
Phone: 96170123457`
	f.text(t, childBlock)

	// Booking persisted, conversation gone
	require.Len(t, f.bookings.created, 1)
	booking := f.bookings.created[0]
	assert.Regexp(t, `^BOOK-[A-Z0-9]{6}$`, booking.BookingReference)
	assert.Equal(t, testPhone, booking.PhoneNumber)
	assert.Equal(t, models.PaymentStatusPending, booking.PaymentStatus)
	assert.InDelta(t, 1260.00, booking.Amount, 0.001)
	assert.Len(t, booking.PassengerDetails.Passengers, 3)
	assert.Nil(t, booking.FlightDetails.Return)

	assert.Contains(t, f.conversations.deleted, testPhone)
	_, alive := f.conversations.conversations[testPhone]
	assert.False(t, alive)

	final := f.messenger.lastText(t)
	assert.Contains(t, final, "Booking confirmed")
	assert.Contains(t, final, booking.BookingReference)
	assert.Contains(t, final, "https://pay.example.com/checkout?booking_ref="+booking.BookingReference)
}

func TestRoundTripWithCountryOrigin(t *testing.T) {
	f := newEngineFixture(t)

	f.text(t, "hi")
	f.listReply(t, "flights")

	f.text(t, "From Lebanon To DXB 2025-05-15 2025-05-20")
	assert.Equal(t, models.StepAwaitingFromCity, f.step(t))
	assert.Contains(t, f.messenger.lastText(t), "city in Lebanon")

	f.text(t, "Beirut")
	assert.Equal(t, models.StepAwaitingPassengers, f.step(t))
	assert.Contains(t, f.messenger.lastText(t), "Returning on 2025-05-20")

	f.text(t, "Adults:1 Children:0")
	assert.Equal(t, models.StepAwaitingFlightSelection, f.step(t))
	assert.Contains(t, f.messenger.lastText(t), "return options after you select")

	f.text(t, "2")
	assert.Equal(t, models.StepAwaitingReturnSelection, f.step(t))
	assert.Contains(t, f.messenger.lastText(t), "Available return flights")

	f.text(t, "1")
	assert.Equal(t, models.StepAwaitingConfirmation, f.step(t))
	confirmation := f.messenger.lastText(t)
	assert.Contains(t, confirmation, "round-trip booking")
	assert.Contains(t, confirmation, "Return Flight")
	// (500 departure + 400 return) x 1 adult
	assert.Contains(t, confirmation, "900.00 USD")
}

func TestCountryOriginMultiAirportCity(t *testing.T) {
	f := newEngineFixture(t)
	f.directory.countries["United Kingdom"] = "United Kingdom"
	f.directory.inCountry["London"] = f.directory.municipalities["London"]
	f.flights.offers["LHR-DXB"] = testOffers(520)

	f.text(t, "hi")
	f.listReply(t, "flights")

	f.text(t, "From United Kingdom To DXB 2025-05-15")
	assert.Equal(t, models.StepAwaitingFromCity, f.step(t))
	assert.Contains(t, f.messenger.lastText(t), "city in United Kingdom for departure")

	f.text(t, "London")
	assert.Equal(t, models.StepAwaitingFromAirport, f.step(t))
	list := f.messenger.lastList(t)
	assert.Contains(t, list.body, "London, United Kingdom")
	require.Len(t, list.rows, 2)
	assert.Equal(t, "from_LGW", list.rows[0].ID)
	assert.Equal(t, "from_LHR", list.rows[1].ID)

	f.listReply(t, "from_LHR")
	assert.Equal(t, models.StepAwaitingPassengers, f.step(t))
	conv := f.conversations.conversations[testPhone]
	assert.Equal(t, "LHR", conv.FromCode)
	assert.Nil(t, conv.FromPending)
	assert.Equal(t, "DXB", conv.ToCode)

	f.text(t, "Adults:1 Children:0")
	assert.Equal(t, models.StepAwaitingFlightSelection, f.step(t))
}

func TestCityWithoutAirportsInCountry(t *testing.T) {
	f := newEngineFixture(t)
	f.directory.countries["United Kingdom"] = "United Kingdom"

	f.text(t, "hi")
	f.listReply(t, "flights")
	f.text(t, "From United Kingdom To DXB 2025-05-15")
	require.Equal(t, models.StepAwaitingFromCity, f.step(t))

	f.text(t, "Atlantis")
	assert.Equal(t, models.StepAwaitingFromCity, f.step(t))
	assert.Contains(t, f.messenger.lastText(t), "No airports found in Atlantis, United Kingdom")
}

func TestCountryDestinationMultiAirportCity(t *testing.T) {
	f := newEngineFixture(t)
	f.directory.countries["United Kingdom"] = "United Kingdom"
	f.directory.inCountry["London"] = f.directory.municipalities["London"]

	f.text(t, "hi")
	f.listReply(t, "flights")

	f.text(t, "From BEY To United Kingdom 2025-05-15")
	assert.Equal(t, models.StepAwaitingToCity, f.step(t))
	assert.Contains(t, f.messenger.lastText(t), "city in United Kingdom for arrival")

	f.text(t, "London")
	assert.Equal(t, models.StepAwaitingToAirport, f.step(t))
	list := f.messenger.lastList(t)
	require.Len(t, list.rows, 2)
	assert.Equal(t, "to_LGW", list.rows[0].ID)
	assert.Equal(t, "to_LHR", list.rows[1].ID)

	f.listReply(t, "to_LGW")
	assert.Equal(t, models.StepAwaitingPassengers, f.step(t))
	conv := f.conversations.conversations[testPhone]
	assert.Equal(t, "LGW", conv.ToCode)
	assert.Nil(t, conv.ToPending)
}

func TestCountryDestinationSingleAirportCity(t *testing.T) {
	f := newEngineFixture(t)
	f.directory.countries["United Arab Emirates"] = "United Arab Emirates"
	f.directory.inCountry["Dubai"] = []models.Airport{*f.directory.byCode["DXB"]}

	f.text(t, "hi")
	f.listReply(t, "flights")

	f.text(t, "From BEY To United Arab Emirates 2025-05-15")
	require.Equal(t, models.StepAwaitingToCity, f.step(t))

	f.text(t, "Dubai")
	assert.Equal(t, models.StepAwaitingPassengers, f.step(t))
	conv := f.conversations.conversations[testPhone]
	assert.Equal(t, "DXB", conv.ToCode)
	assert.Equal(t, "Dubai", conv.ToName)
	assert.Nil(t, conv.ToPending)
}

func TestMultiAirportDestination(t *testing.T) {
	f := newEngineFixture(t)

	f.text(t, "hi")
	f.listReply(t, "flights")

	f.text(t, "From BEY To London 2025-05-15")
	assert.Equal(t, models.StepAwaitingToAirport, f.step(t))
	list := f.messenger.lastList(t)
	require.Len(t, list.rows, 2)
	assert.Equal(t, "to_LGW", list.rows[0].ID)
	assert.Equal(t, "to_LHR", list.rows[1].ID)

	f.listReply(t, "to_LHR")
	assert.Equal(t, models.StepAwaitingPassengers, f.step(t))
	conv := f.conversations.conversations[testPhone]
	assert.Equal(t, "LHR", conv.ToCode)
	assert.Nil(t, conv.ToPending)
}

func TestAirportChoiceOutsideCandidates(t *testing.T) {
	f := newEngineFixture(t)

	f.text(t, "hi")
	f.listReply(t, "flights")
	f.text(t, "From BEY To London 2025-05-15")
	require.Equal(t, models.StepAwaitingToAirport, f.step(t))

	f.listReply(t, "to_DXB")
	assert.Equal(t, models.StepAwaitingToAirport, f.step(t))
	assert.Contains(t, f.messenger.lastText(t), "Airport not found")
}

func TestInvalidFlightDetails(t *testing.T) {
	f := newEngineFixture(t)

	f.text(t, "hi")
	f.listReply(t, "flights")

	t.Run("Bad Format", func(t *testing.T) {
		f.text(t, "BEY to DXB tomorrow")
		assert.Equal(t, models.StepAwaitingFlightDetails, f.step(t))
		assert.Contains(t, f.messenger.lastText(t), "Invalid format")
	})

	t.Run("Bad Date", func(t *testing.T) {
		f.text(t, "From BEY To DXB 2025-02-30")
		assert.Equal(t, models.StepAwaitingFlightDetails, f.step(t))
		assert.Contains(t, f.messenger.lastText(t), "Invalid format")
	})

	t.Run("Unknown Origin", func(t *testing.T) {
		f.text(t, "From Atlantis To DXB 2025-05-15")
		assert.Equal(t, models.StepAwaitingFlightDetails, f.step(t))
		assert.Contains(t, f.messenger.lastText(t), "Couldn't identify departure location")
	})
}

func TestPassengerCountValidation(t *testing.T) {
	f := newEngineFixture(t)

	f.text(t, "hi")
	f.listReply(t, "flights")
	f.text(t, "From BEY To DXB 2025-05-15")
	require.Equal(t, models.StepAwaitingPassengers, f.step(t))

	t.Run("No Adults", func(t *testing.T) {
		f.text(t, "Adults:0 Children:2")
		assert.Equal(t, models.StepAwaitingPassengers, f.step(t))
		assert.Contains(t, f.messenger.lastText(t), "At least 1 adult is required")
	})

	t.Run("Too Many Passengers", func(t *testing.T) {
		f.text(t, "Adults:6 Children:4")
		assert.Equal(t, models.StepAwaitingPassengers, f.step(t))
		assert.Contains(t, f.messenger.lastText(t), "Maximum 9 passengers")
	})

	t.Run("Bad Format", func(t *testing.T) {
		f.text(t, "two adults please")
		assert.Equal(t, models.StepAwaitingPassengers, f.step(t))
		assert.Contains(t, f.messenger.lastText(t), "Adults:X Children:Y")
	})
}

func TestNoFlightsFound(t *testing.T) {
	f := newEngineFixture(t)
	f.flights.offers = map[string][]amadeus.Offer{}

	f.text(t, "hi")
	f.listReply(t, "flights")
	f.text(t, "From BEY To DXB 2025-05-15")
	f.text(t, "Adults:1 Children:0")

	assert.Equal(t, models.StepAwaitingPassengers, f.step(t))
	assert.Contains(t, f.messenger.lastText(t), "No flights found")
}

func TestSearchFailureKeepsState(t *testing.T) {
	f := newEngineFixture(t)

	f.text(t, "hi")
	f.listReply(t, "flights")
	f.text(t, "From BEY To DXB 2025-05-15")

	f.flights.err = fmt.Errorf("gateway timeout")
	f.text(t, "Adults:1 Children:0")

	assert.Equal(t, models.StepAwaitingPassengers, f.step(t))
	assert.Contains(t, f.messenger.lastText(t), "Couldn't complete the flight search")

	// Retry succeeds once the gateway recovers
	f.flights.err = nil
	f.text(t, "Adults:1 Children:0")
	assert.Equal(t, models.StepAwaitingFlightSelection, f.step(t))
}

func TestInvalidFlightSelection(t *testing.T) {
	f := newEngineFixture(t)

	f.text(t, "hi")
	f.listReply(t, "flights")
	f.text(t, "From BEY To DXB 2025-05-15")
	f.text(t, "Adults:1 Children:0")
	require.Equal(t, models.StepAwaitingFlightSelection, f.step(t))

	for _, input := range []string{"0", "5", "first one", ""} {
		f.text(t, input)
		assert.Equal(t, models.StepAwaitingFlightSelection, f.step(t))
		assert.Contains(t, f.messenger.lastText(t), "Invalid selection")
	}
}

func TestInvalidPassengerDetailsRepeatSlot(t *testing.T) {
	f := newEngineFixture(t)

	f.text(t, "hi")
	f.listReply(t, "flights")
	f.text(t, "From BEY To DXB 2025-05-15")
	f.text(t, "Adults:1 Children:0")
	f.text(t, "1")
	f.text(t, "CONFIRM")
	require.Equal(t, models.CollectingStep(models.PassengerTypeAdult, 1), f.step(t))

	f.text(t, "First Name: John")

	assert.Equal(t, models.CollectingStep(models.PassengerTypeAdult, 1), f.step(t))
	require.GreaterOrEqual(t, len(f.messenger.texts), 2)
	errorMsg := f.messenger.texts[len(f.messenger.texts)-2].body
	assert.Contains(t, errorMsg, "Invalid details")
	assert.Contains(t, errorMsg, "Missing required fields")
	assert.Contains(t, f.messenger.lastText(t), "details for Adult 1")

	assert.Empty(t, f.bookings.created)
}

func TestUnexpectedEventKindReprompts(t *testing.T) {
	f := newEngineFixture(t)

	f.text(t, "hi")
	f.listReply(t, "flights")
	require.Equal(t, models.StepAwaitingFlightDetails, f.step(t))

	// A list reply where free text is expected
	f.listReply(t, "flights")
	assert.Equal(t, models.StepAwaitingFlightDetails, f.step(t))
	assert.Contains(t, f.messenger.lastText(t), "didn't understand")
}

func TestConversationsAreIsolatedByPhone(t *testing.T) {
	f := newEngineFixture(t)
	otherPhone := "96170999999"

	f.text(t, "hi")
	f.listReply(t, "flights")
	require.Equal(t, models.StepAwaitingFlightDetails, f.step(t))

	require.NoError(t, f.engine.HandleEvent(otherPhone, Event{Text: "hi"}))

	assert.Equal(t, models.StepAwaitingFlightDetails, f.step(t))
	other := f.conversations.conversations[otherPhone]
	require.NotNil(t, other)
	assert.Equal(t, models.StepAwaitingCategory, other.Step)
}

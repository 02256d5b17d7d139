package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/remmie/whatsapp-booking-backend/internal/models"
	"github.com/remmie/whatsapp-booking-backend/pkg/amadeus"
	"github.com/remmie/whatsapp-booking-backend/pkg/validator"
	"github.com/remmie/whatsapp-booking-backend/pkg/whatsapp"
	"github.com/sirupsen/logrus"
)

const (
	// MaxPassengers is the per-booking passenger limit
	MaxPassengers = 9

	// MaxOffers is the number of ranked offers cached per direction
	MaxOffers = 3
)

// Event is one inbound delivery from the messaging channel. Exactly one of
// Text or ListReply is set.
type Event struct {
	Text      string
	ListReply string
}

// ConversationStore is the persistence surface for conversation state.
type ConversationStore interface {
	GetOrCreate(phoneNumber string) (*models.Conversation, error)
	Save(conv *models.Conversation) error
	Delete(phoneNumber string) error
}

// Messenger sends outbound messages to the channel.
type Messenger interface {
	SendText(to, body string) error
	SendList(to, body, sectionTitle string, rows []whatsapp.ListRow) error
}

// FlightSearcher runs one directional flight search.
type FlightSearcher interface {
	SearchOffers(origin, destination, date string, adults, max int) ([]amadeus.Offer, error)
}

var (
	flightDetailsRegex = regexp.MustCompile(`(?i)from (.+?) to (.+?) (\d{4}-\d{2}-\d{2})(?:\s+(\d{4}-\d{2}-\d{2}))?`)
	passengerCountRegex = regexp.MustCompile(`(?i)adults:\s*(\d+)\s*children:\s*(\d+)`)
	offerChoiceRegex    = regexp.MustCompile(`^[1-9]$`)
)

const (
	msgUnrecognized = "Sorry, I didn't understand that. Reply with the requested details, or send 'hi' to start over."

	msgFlightInstructions = "🛫 Let's book your flight! Please provide:\n\n" +
		"1. Travel details:\n" +
		"Format: From [Location] To [Location] [DepartureDate]\n" +
		"Example: From Beirut To Dubai 2025-05-15\n\n" +
		"Need a return ticket? Include return date:\n" +
		"From [Location] To [Location] [DepartureDate] [ReturnDate]\n" +
		"Example: From Beirut To Dubai 2025-05-15 2025-05-20"

	msgInvalidDetailsFormat = "❌ Invalid format. Please use:\n" +
		"From [Location] To [Location] [YYYY-MM-DD] for one-way\n" +
		"or\n" +
		"From [Location] To [Location] [YYYY-MM-DD] [YYYY-MM-DD] for round-trip"

	msgInvalidPassengerFormat = "❌ Invalid format. Please use:\n" +
		"Adults:X Children:Y\n" +
		"Example: Adults:2 Children:1"

	msgSearchFailed = "❌ Couldn't complete the flight search. Please try again."

	msgInvalidSelection = "❌ Invalid selection. Please try again."

	msgHotelsComingSoon = "🏨 Hotel bookings are coming soon! Reply 'hi' to book a flight instead."
)

// ConversationEngine drives the booking dialogue. Each inbound event reads
// exactly one conversation row, applies the handler registered for the
// current step, and writes back the updated state (or deletes the row at the
// terminal transition). Transitions for the same phone number are serialized
// by a per-identity lock; different identities run fully parallel.
type ConversationEngine struct {
	conversations ConversationStore
	airports      AirportDirectory
	resolver      *LocationResolver
	collector     *PassengerCollector
	finalizer     *BookingFinalizer
	flights       FlightSearcher
	messenger     Messenger
	logger        *logrus.Logger

	locks       *phoneLocks
	transitions map[models.Step]transition
}

// transition registers the handlers for one step, keyed by event kind.
// A nil handler means the event kind is not legal at the step; the engine
// re-prompts without advancing.
type transition struct {
	onText func(conv *models.Conversation, text string) error
	onList func(conv *models.Conversation, replyID string) error
}

// NewConversationEngine creates a new ConversationEngine
func NewConversationEngine(
	conversations ConversationStore,
	airports AirportDirectory,
	resolver *LocationResolver,
	collector *PassengerCollector,
	finalizer *BookingFinalizer,
	flights FlightSearcher,
	messenger Messenger,
	logger *logrus.Logger,
) *ConversationEngine {
	e := &ConversationEngine{
		conversations: conversations,
		airports:      airports,
		resolver:      resolver,
		collector:     collector,
		finalizer:     finalizer,
		flights:       flights,
		messenger:     messenger,
		logger:        logger,
		locks:         newPhoneLocks(),
	}

	e.transitions = map[models.Step]transition{
		models.StepAwaitingCategory: {
			onText: e.resendCategoryMenu,
			onList: e.handleCategorySelection,
		},
		models.StepAwaitingFlightDetails: {
			onText: e.handleFlightDetails,
		},
		models.StepAwaitingFromCity: {
			onText: e.handleFromCity,
		},
		models.StepAwaitingFromAirport: {
			onList: e.handleFromAirportChoice,
		},
		models.StepAwaitingToCity: {
			onText: e.handleToCity,
		},
		models.StepAwaitingToAirport: {
			onList: e.handleToAirportChoice,
		},
		models.StepAwaitingPassengers: {
			onText: e.handlePassengerCounts,
		},
		models.StepAwaitingFlightSelection: {
			onText: e.handleDepartureSelection,
		},
		models.StepAwaitingReturnSelection: {
			onText: e.handleReturnSelection,
		},
		models.StepAwaitingConfirmation: {
			onText: e.handleConfirmation,
		},
	}

	return e
}

// HandleEvent processes one inbound event for a phone number to completion.
func (e *ConversationEngine) HandleEvent(phoneNumber string, ev Event) error {
	lock := e.locks.get(phoneNumber)
	lock.Lock()
	defer lock.Unlock()

	conv, err := e.conversations.GetOrCreate(phoneNumber)
	if err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"phone": phoneNumber,
		"step":  conv.Step,
	}).Debug("Processing inbound event")

	// A greeting restarts the dialogue from any step
	if strings.EqualFold(strings.TrimSpace(ev.Text), "hi") || conv.Step == models.StepNew {
		return e.startCategoryMenu(conv)
	}

	tr, ok := e.transitions[conv.Step]
	if !ok {
		if conv.Step.IsCollecting() {
			tr = transition{onText: e.handleCollecting}
		} else {
			// Unknown persisted step; restart rather than stall
			e.logger.WithField("step", conv.Step).Warn("Conversation at unknown step, restarting")
			return e.startCategoryMenu(conv)
		}
	}

	var handleErr error
	switch {
	case ev.ListReply != "":
		if tr.onList == nil {
			return e.messenger.SendText(conv.PhoneNumber, msgUnrecognized)
		}
		handleErr = tr.onList(conv, ev.ListReply)
	default:
		if tr.onText == nil {
			return e.messenger.SendText(conv.PhoneNumber, msgUnrecognized)
		}
		handleErr = tr.onText(conv, ev.Text)
	}

	if handleErr != nil {
		return handleErr
	}

	if conv.Terminal {
		return nil
	}

	return e.conversations.Save(conv)
}

// startCategoryMenu resets the conversation and shows the category list.
func (e *ConversationEngine) startCategoryMenu(conv *models.Conversation) error {
	*conv = models.Conversation{
		PhoneNumber: conv.PhoneNumber,
		Step:        models.StepAwaitingCategory,
	}

	if err := e.conversations.Save(conv); err != nil {
		return err
	}

	return e.sendCategoryMenu(conv.PhoneNumber)
}

func (e *ConversationEngine) sendCategoryMenu(phoneNumber string) error {
	return e.messenger.SendList(phoneNumber, "Please choose a category:", "Categories", []whatsapp.ListRow{
		{ID: "flights", Title: "Flights"},
		{ID: "hotels", Title: "Hotels"},
	})
}

func (e *ConversationEngine) resendCategoryMenu(conv *models.Conversation, _ string) error {
	return e.sendCategoryMenu(conv.PhoneNumber)
}

func (e *ConversationEngine) handleCategorySelection(conv *models.Conversation, replyID string) error {
	switch replyID {
	case "flights":
		conv.Step = models.StepAwaitingFlightDetails
		return e.messenger.SendText(conv.PhoneNumber, msgFlightInstructions)
	case "hotels":
		return e.messenger.SendText(conv.PhoneNumber, msgHotelsComingSoon)
	default:
		return e.sendCategoryMenu(conv.PhoneNumber)
	}
}

// handleFlightDetails parses "from X to Y DATE [DATE]". The destination's
// resolution type and raw text are stored before the origin is handled, so
// the destination can be replayed after any origin sub-dialogue.
func (e *ConversationEngine) handleFlightDetails(conv *models.Conversation, text string) error {
	matches := flightDetailsRegex.FindStringSubmatch(text)
	if matches == nil {
		return e.messenger.SendText(conv.PhoneNumber, msgInvalidDetailsFormat)
	}

	fromText := strings.TrimSpace(matches[1])
	toText := strings.TrimSpace(matches[2])
	departureDate := matches[3]
	returnDate := matches[4]

	if !validator.ValidDate(departureDate) || (returnDate != "" && !validator.ValidDate(returnDate)) {
		return e.messenger.SendText(conv.PhoneNumber, msgInvalidDetailsFormat)
	}

	conv.DepartureDate = departureDate
	if returnDate != "" {
		conv.ReturnDate = &returnDate
		conv.NeedsReturn = true
	} else {
		conv.ReturnDate = nil
		conv.NeedsReturn = false
	}

	toResolved, err := e.resolver.Resolve(toText)
	if err != nil {
		return e.failTurn(conv, err)
	}
	conv.ToPending = &models.Disambiguation{
		Kind:      models.DisambiguationNone,
		Query:     toText,
		QueryType: toResolved.Type,
	}

	fromResolved, err := e.resolver.Resolve(fromText)
	if err != nil {
		return e.failTurn(conv, err)
	}

	switch fromResolved.Type {
	case models.LocationTypeCountry:
		conv.Step = models.StepAwaitingFromCity
		conv.FromPending = &models.Disambiguation{
			Kind:    models.DisambiguationAwaitingCity,
			Country: fromResolved.Name,
		}
		return e.messenger.SendText(conv.PhoneNumber,
			fmt.Sprintf("Please specify a city in %s for departure:", fromResolved.Name))

	case models.LocationTypeMultiCity:
		options, err := e.airportOptions(fromResolved.Name)
		if err != nil {
			return e.failTurn(conv, err)
		}
		conv.Step = models.StepAwaitingFromAirport
		conv.FromPending = &models.Disambiguation{
			Kind:       models.DisambiguationAwaitingChoice,
			Candidates: options,
		}
		return e.messenger.SendList(conv.PhoneNumber,
			fmt.Sprintf("Select departure airport in %s:", fromResolved.Name),
			"Airports", listRows("from_", options))

	case models.LocationTypeCity, models.LocationTypeAirport:
		conv.FromCode = fromResolved.Code
		conv.FromName = fromResolved.Name
		conv.FromPending = nil
		return e.resolveDestination(conv)

	default:
		return e.messenger.SendText(conv.PhoneNumber,
			"⚠️ Couldn't identify departure location. Please try again.")
	}
}

// resolveDestination replays the stored destination query once the origin
// side has resolved to a concrete airport.
func (e *ConversationEngine) resolveDestination(conv *models.Conversation) error {
	if conv.ToPending == nil || conv.ToPending.Query == "" {
		return e.messenger.SendText(conv.PhoneNumber, msgInvalidDetailsFormat)
	}

	resolved, err := e.resolver.Resolve(conv.ToPending.Query)
	if err != nil {
		return e.failTurn(conv, err)
	}

	switch resolved.Type {
	case models.LocationTypeCountry:
		conv.Step = models.StepAwaitingToCity
		conv.ToPending.Kind = models.DisambiguationAwaitingCity
		conv.ToPending.Country = resolved.Name
		conv.ToPending.Candidates = nil
		return e.messenger.SendText(conv.PhoneNumber,
			fmt.Sprintf("Please specify a city in %s for arrival:", resolved.Name))

	case models.LocationTypeMultiCity:
		options, err := e.airportOptions(resolved.Name)
		if err != nil {
			return e.failTurn(conv, err)
		}
		conv.Step = models.StepAwaitingToAirport
		conv.ToPending.Kind = models.DisambiguationAwaitingChoice
		conv.ToPending.Candidates = options
		return e.messenger.SendList(conv.PhoneNumber,
			fmt.Sprintf("Select arrival airport in %s:", resolved.Name),
			"Airports", listRows("to_", options))

	case models.LocationTypeCity, models.LocationTypeAirport:
		conv.ToCode = resolved.Code
		conv.ToName = resolved.Name
		conv.ToPending = nil
		return e.promptPassengers(conv)

	default:
		return e.messenger.SendText(conv.PhoneNumber,
			"⚠️ Couldn't identify arrival location. Please try again.")
	}
}

func (e *ConversationEngine) handleFromCity(conv *models.Conversation, text string) error {
	if conv.FromPending == nil || conv.FromPending.Kind != models.DisambiguationAwaitingCity {
		return e.messenger.SendText(conv.PhoneNumber, msgUnrecognized)
	}

	cityName := strings.TrimSpace(text)
	country := conv.FromPending.Country

	airports, err := e.airports.SearchInCountry(cityName, country)
	if err != nil {
		return e.failTurn(conv, err)
	}

	switch {
	case len(airports) == 1:
		conv.FromCode = airports[0].IATACode
		conv.FromName = airportDisplayName(airports[0])
		conv.FromPending = nil
		return e.resolveDestination(conv)

	case len(airports) > 1:
		options := optionsFromAirports(airports)
		conv.Step = models.StepAwaitingFromAirport
		conv.FromPending = &models.Disambiguation{
			Kind:       models.DisambiguationAwaitingChoice,
			Country:    country,
			Candidates: options,
		}
		return e.messenger.SendList(conv.PhoneNumber,
			fmt.Sprintf("Select departure airport in %s, %s:", cityName, country),
			"Airports", listRows("from_", options))

	default:
		return e.messenger.SendText(conv.PhoneNumber,
			fmt.Sprintf("⚠️ No airports found in %s, %s\nPlease try another city or enter airport code directly", cityName, country))
	}
}

func (e *ConversationEngine) handleToCity(conv *models.Conversation, text string) error {
	if conv.ToPending == nil || conv.ToPending.Kind != models.DisambiguationAwaitingCity {
		return e.messenger.SendText(conv.PhoneNumber, msgUnrecognized)
	}

	cityName := strings.TrimSpace(text)
	country := conv.ToPending.Country

	airports, err := e.airports.SearchInCountry(cityName, country)
	if err != nil {
		return e.failTurn(conv, err)
	}

	switch {
	case len(airports) == 1:
		conv.ToCode = airports[0].IATACode
		conv.ToName = airportDisplayName(airports[0])
		conv.ToPending = nil
		return e.promptPassengers(conv)

	case len(airports) > 1:
		options := optionsFromAirports(airports)
		conv.Step = models.StepAwaitingToAirport
		conv.ToPending.Kind = models.DisambiguationAwaitingChoice
		conv.ToPending.Candidates = options
		return e.messenger.SendList(conv.PhoneNumber,
			fmt.Sprintf("Select arrival airport in %s, %s:", cityName, country),
			"Airports", listRows("to_", options))

	default:
		return e.messenger.SendText(conv.PhoneNumber,
			fmt.Sprintf("⚠️ No airports found in %s, %s\nPlease try another city or enter airport code directly", cityName, country))
	}
}

func (e *ConversationEngine) handleFromAirportChoice(conv *models.Conversation, replyID string) error {
	code, ok := e.candidateCode(conv.FromPending, "from_", replyID)
	if !ok {
		return e.messenger.SendText(conv.PhoneNumber, "⚠️ Airport not found. Please try again.")
	}

	airport, err := e.airports.GetByCode(code)
	if err != nil {
		return e.failTurn(conv, err)
	}

	conv.FromCode = airport.IATACode
	conv.FromName = airportDisplayName(*airport)
	conv.FromPending = nil
	return e.resolveDestination(conv)
}

func (e *ConversationEngine) handleToAirportChoice(conv *models.Conversation, replyID string) error {
	code, ok := e.candidateCode(conv.ToPending, "to_", replyID)
	if !ok {
		return e.messenger.SendText(conv.PhoneNumber, "⚠️ Airport not found. Please try again.")
	}

	airport, err := e.airports.GetByCode(code)
	if err != nil {
		return e.failTurn(conv, err)
	}

	conv.ToCode = airport.IATACode
	conv.ToName = airportDisplayName(*airport)
	conv.ToPending = nil
	return e.promptPassengers(conv)
}

// candidateCode validates a list reply against the pending candidate set and
// returns the bare airport code.
func (e *ConversationEngine) candidateCode(pending *models.Disambiguation, prefix, replyID string) (string, bool) {
	if pending == nil || pending.Kind != models.DisambiguationAwaitingChoice {
		return "", false
	}
	if !strings.HasPrefix(replyID, prefix) {
		return "", false
	}
	code := strings.TrimPrefix(replyID, prefix)
	for _, candidate := range pending.Candidates {
		if candidate.Code == code {
			return code, true
		}
	}
	return "", false
}

// promptPassengers advances to passenger-count collection once both sides
// are resolved to concrete airports.
func (e *ConversationEngine) promptPassengers(conv *models.Conversation) error {
	conv.Step = models.StepAwaitingPassengers

	message := fmt.Sprintf("✈️ Flight from %s (%s) to %s (%s) on %s\n",
		conv.FromName, conv.FromCode, conv.ToName, conv.ToCode, conv.DepartureDate)
	if conv.NeedsReturn && conv.ReturnDate != nil {
		message += fmt.Sprintf("Returning on %s\n", *conv.ReturnDate)
	}
	message += "\nNow, how many passengers?\nFormat: Adults:X Children:Y\nExample: Adults:2 Children:1"

	return e.messenger.SendText(conv.PhoneNumber, message)
}

func (e *ConversationEngine) handlePassengerCounts(conv *models.Conversation, text string) error {
	matches := passengerCountRegex.FindStringSubmatch(text)
	if matches == nil {
		return e.messenger.SendText(conv.PhoneNumber, msgInvalidPassengerFormat)
	}

	adults, _ := strconv.Atoi(matches[1])
	children, _ := strconv.Atoi(matches[2])

	if adults < 1 {
		return e.messenger.SendText(conv.PhoneNumber, "❌ At least 1 adult is required. Please specify again.")
	}
	if adults+children > MaxPassengers {
		return e.messenger.SendText(conv.PhoneNumber,
			fmt.Sprintf("❌ Maximum %d passengers allowed. Please specify again.", MaxPassengers))
	}

	departureOffers, err := e.searchOffers(conv.FromCode, conv.ToCode, conv.DepartureDate, adults)
	if err != nil {
		if err == amadeus.ErrNoOffers {
			return e.messenger.SendText(conv.PhoneNumber, "❌ No flights found for your criteria")
		}
		e.logger.WithError(err).Warn("Departure flight search failed")
		return e.messenger.SendText(conv.PhoneNumber, msgSearchFailed)
	}

	var returnOffers []models.FlightOffer
	if conv.NeedsReturn && conv.ReturnDate != nil {
		returnOffers, err = e.searchOffers(conv.ToCode, conv.FromCode, *conv.ReturnDate, adults)
		if err != nil {
			if err == amadeus.ErrNoOffers {
				return e.messenger.SendText(conv.PhoneNumber,
					fmt.Sprintf("❌ No return flights found for %s", *conv.ReturnDate))
			}
			e.logger.WithError(err).Warn("Return flight search failed")
			return e.messenger.SendText(conv.PhoneNumber, msgSearchFailed)
		}
	}

	conv.Adults = adults
	conv.Children = children
	conv.DepartureOffers = departureOffers
	conv.ReturnOffers = returnOffers
	conv.Step = models.StepAwaitingFlightSelection

	message := formatOfferList("departure", conv.DepartureDate, departureOffers)
	if conv.NeedsReturn && conv.ReturnDate != nil {
		message += fmt.Sprintf("\nReturn date: %s - We'll show return options after you select departure flight.\n", *conv.ReturnDate)
	}
	message += fmt.Sprintf("Reply with the departure flight number (1 to %d)", len(departureOffers))

	return e.messenger.SendText(conv.PhoneNumber, message)
}

func (e *ConversationEngine) handleDepartureSelection(conv *models.Conversation, text string) error {
	index, ok := offerIndex(text, len(conv.DepartureOffers))
	if !ok {
		return e.messenger.SendText(conv.PhoneNumber, msgInvalidSelection)
	}

	selected := conv.DepartureOffers[index]

	if conv.NeedsReturn {
		// The passenger step only advances once both caches are filled, so a
		// round-trip row reaching this step always has return offers. The
		// guard keeps a malformed persisted row from rendering an empty list.
		if len(conv.ReturnOffers) == 0 {
			returnDate := ""
			if conv.ReturnDate != nil {
				returnDate = *conv.ReturnDate
			}
			return e.messenger.SendText(conv.PhoneNumber,
				fmt.Sprintf("❌ No return flights found for %s", returnDate))
		}

		conv.SelectedDeparture = &selected
		conv.Step = models.StepAwaitingReturnSelection

		returnDate := ""
		if conv.ReturnDate != nil {
			returnDate = *conv.ReturnDate
		}
		message := formatOfferList("return", returnDate, conv.ReturnOffers)
		message += fmt.Sprintf("Reply with the return flight number (1 to %d)", len(conv.ReturnOffers))
		return e.messenger.SendText(conv.PhoneNumber, message)
	}

	conv.SelectedDeparture = &selected
	conv.SelectedReturn = nil
	conv.Step = models.StepAwaitingConfirmation

	return e.messenger.SendText(conv.PhoneNumber, e.confirmationMessage(conv))
}

func (e *ConversationEngine) handleReturnSelection(conv *models.Conversation, text string) error {
	index, ok := offerIndex(text, len(conv.ReturnOffers))
	if !ok {
		return e.messenger.SendText(conv.PhoneNumber, msgInvalidSelection)
	}

	selected := conv.ReturnOffers[index]
	conv.SelectedReturn = &selected
	conv.Step = models.StepAwaitingConfirmation

	return e.messenger.SendText(conv.PhoneNumber, e.confirmationMessage(conv))
}

// handleConfirmation advances only on an exact keyword match. Any other
// input is ignored without a re-prompt; the gate is deliberate.
func (e *ConversationEngine) handleConfirmation(conv *models.Conversation, text string) error {
	if !strings.EqualFold(strings.TrimSpace(text), "CONFIRM") {
		return nil
	}

	conv.PassengerDetails = &models.PassengerManifest{
		Adults:   conv.Adults,
		Children: conv.Children,
	}
	conv.Step = models.CollectingStep(models.PassengerTypeAdult, 1)

	if err := e.messenger.SendText(conv.PhoneNumber,
		"✅ Selection confirmed!\n\nWe'll now collect passenger details. Please wait for the next message..."); err != nil {
		return err
	}

	return e.messenger.SendText(conv.PhoneNumber, e.collector.Template(1, models.PassengerTypeAdult))
}

func (e *ConversationEngine) handleCollecting(conv *models.Conversation, text string) error {
	passengerType, number, ok := models.ParseCollectingStep(conv.Step)
	if !ok {
		return e.startCategoryMenu(conv)
	}

	if conv.PassengerDetails == nil {
		conv.PassengerDetails = &models.PassengerManifest{
			Adults:   conv.Adults,
			Children: conv.Children,
		}
	}

	passenger := e.collector.Parse(text)
	passenger.Type = passengerType
	passenger.Number = number

	if err := e.collector.Validate(passenger, passengerType); err != nil {
		if sendErr := e.messenger.SendText(conv.PhoneNumber, "❌ Invalid details:\n"+err.Error()); sendErr != nil {
			return sendErr
		}
		return e.messenger.SendText(conv.PhoneNumber, e.collector.Template(number, passengerType))
	}

	conv.PassengerDetails.Passengers = append(conv.PassengerDetails.Passengers, passenger)

	if !conv.PassengerDetails.Complete() {
		nextType, nextNumber := conv.PassengerDetails.NextSlot()
		conv.Step = models.CollectingStep(nextType, nextNumber)
		return e.messenger.SendText(conv.PhoneNumber, e.collector.Template(nextNumber, nextType))
	}

	return e.finalizer.Finalize(conv)
}

// searchOffers runs one directional search and converts the result to the
// cached offer shape, capped at MaxOffers.
func (e *ConversationEngine) searchOffers(origin, destination, date string, adults int) ([]models.FlightOffer, error) {
	offers, err := e.flights.SearchOffers(origin, destination, date, adults, MaxOffers)
	if err != nil {
		return nil, err
	}

	converted := make([]models.FlightOffer, 0, len(offers))
	for _, offer := range offers {
		fo := models.FlightOffer{
			ID:       offer.ID,
			Price:    offer.Total,
			Currency: offer.Currency,
		}
		for _, seg := range offer.Segments {
			fo.Segments = append(fo.Segments, models.FlightSegment{
				CarrierCode:      seg.CarrierCode,
				FlightNumber:     seg.Number,
				DepartureAirport: seg.Origin,
				DepartureTime:    seg.DepartureAt,
				ArrivalAirport:   seg.Destination,
				ArrivalTime:      seg.ArrivalAt,
			})
		}
		converted = append(converted, fo)
	}

	if len(converted) > MaxOffers {
		converted = converted[:MaxOffers]
	}
	if len(converted) == 0 {
		return nil, amadeus.ErrNoOffers
	}

	return converted, nil
}

func (e *ConversationEngine) confirmationMessage(conv *models.Conversation) string {
	total := ComputeTotal(*conv.SelectedDeparture, conv.SelectedReturn, conv.Adults, conv.Children)

	var b strings.Builder
	if conv.SelectedReturn != nil {
		b.WriteString("✅ Please confirm your round-trip booking:\n\n")
		b.WriteString("✈️ Departure Flight:\n")
		writeOfferSummary(&b, *conv.SelectedDeparture)
		b.WriteString("\n✈️ Return Flight:\n")
		writeOfferSummary(&b, *conv.SelectedReturn)
	} else {
		b.WriteString("✅ Please confirm your one-way booking:\n\n")
		b.WriteString("✈️ Flight Details:\n")
		writeOfferSummary(&b, *conv.SelectedDeparture)
	}

	fmt.Fprintf(&b, "\n👥 Passengers:\nAdults: %d, Children: %d\n", conv.Adults, conv.Children)
	fmt.Fprintf(&b, "\n💰 Total Price: %.2f %s\n\n", total, conv.SelectedDeparture.Currency)
	b.WriteString("Type 'CONFIRM' to proceed with booking")

	return b.String()
}

// failTurn reports an unrecoverable collaborator failure for this turn. The
// step is left unchanged so the user can retry the same action.
func (e *ConversationEngine) failTurn(conv *models.Conversation, cause error) error {
	e.logger.WithError(cause).WithFields(logrus.Fields{
		"phone": conv.PhoneNumber,
		"step":  conv.Step,
	}).Error("Conversation turn failed")

	if err := e.messenger.SendText(conv.PhoneNumber,
		"❌ Something went wrong on our side. Please try again."); err != nil {
		e.logger.WithError(err).Error("Failed to send failure message")
	}

	return cause
}

func (e *ConversationEngine) airportOptions(municipality string) ([]models.AirportOption, error) {
	airports, err := e.airports.GetByMunicipality(municipality)
	if err != nil {
		return nil, fmt.Errorf("failed to list airports for %s: %w", municipality, err)
	}
	return optionsFromAirports(airports), nil
}

func optionsFromAirports(airports []models.Airport) []models.AirportOption {
	options := make([]models.AirportOption, 0, len(airports))
	for _, airport := range airports {
		options = append(options, models.AirportOption{
			Code:  airport.IATACode,
			Title: fmt.Sprintf("%s (%s)", airport.Name, airport.IATACode),
		})
	}
	return options
}

func listRows(prefix string, options []models.AirportOption) []whatsapp.ListRow {
	rows := make([]whatsapp.ListRow, 0, len(options))
	for _, option := range options {
		rows = append(rows, whatsapp.ListRow{
			ID:    prefix + option.Code,
			Title: option.Title,
		})
	}
	return rows
}

func airportDisplayName(airport models.Airport) string {
	if airport.Municipality != "" {
		return airport.Municipality
	}
	return airport.Name
}

func formatOfferList(direction, date string, offers []models.FlightOffer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✈️ Available %s flights for %s:\n\n", direction, date)
	for i, offer := range offers {
		seg := offer.FirstSegment()
		fmt.Fprintf(&b, "%d. %s%s\n", i+1, seg.CarrierCode, seg.FlightNumber)
		fmt.Fprintf(&b, "   🛫 %s %s\n", seg.DepartureAirport, seg.DepartureTime.Format("Jan 02, 15:04"))
		fmt.Fprintf(&b, "   🛬 %s %s\n", seg.ArrivalAirport, seg.ArrivalTime.Format("Jan 02, 15:04"))
		fmt.Fprintf(&b, "   💰 %.2f %s\n\n", offer.Price, offer.Currency)
	}
	return b.String()
}

func writeOfferSummary(b *strings.Builder, offer models.FlightOffer) {
	seg := offer.FirstSegment()
	fmt.Fprintf(b, "Flight: %s%s\n", seg.CarrierCode, seg.FlightNumber)
	fmt.Fprintf(b, "From: %s\n", seg.DepartureAirport)
	fmt.Fprintf(b, "To: %s\n", seg.ArrivalAirport)
	fmt.Fprintf(b, "Date: %s\n", seg.DepartureTime.Format("Jan 02, 2006 15:04"))
}

// offerIndex parses a 1-based offer choice, returning a 0-based index.
func offerIndex(text string, available int) (int, bool) {
	text = strings.TrimSpace(text)
	if !offerChoiceRegex.MatchString(text) {
		return 0, false
	}
	index, _ := strconv.Atoi(text)
	if index < 1 || index > available {
		return 0, false
	}
	return index - 1, true
}

// phoneLocks serializes transitions per channel identity.
type phoneLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPhoneLocks() *phoneLocks {
	return &phoneLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *phoneLocks) get(phone string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.locks[phone]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[phone] = lock
	}
	return lock
}

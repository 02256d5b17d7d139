package services

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/remmie/whatsapp-booking-backend/internal/models"
	"github.com/remmie/whatsapp-booking-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
)

const (
	// referenceCharset is the alphabet used for booking references
	referenceCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// referenceLength is the random suffix length of a booking reference
	referenceLength = 6

	// maxReferenceAttempts bounds retry-until-unique reference generation
	maxReferenceAttempts = 5
)

// BookingStore is the persistence surface the finalizer writes bookings to.
type BookingStore interface {
	Create(booking *models.Booking) error
	ReferenceExists(reference string) (bool, error)
}

// BookingFinalizer persists the completed itinerary and passenger set as a
// booking record and ends the conversation. It is the only writer of
// bookings and the only deleter of conversation state.
type BookingFinalizer struct {
	bookings       BookingStore
	conversations  ConversationStore
	messenger      Messenger
	tokens         *jwt.Service
	paymentBaseURL string
	logger         *logrus.Logger
}

// NewBookingFinalizer creates a new BookingFinalizer
func NewBookingFinalizer(
	bookings BookingStore,
	conversations ConversationStore,
	messenger Messenger,
	tokens *jwt.Service,
	paymentBaseURL string,
	logger *logrus.Logger,
) *BookingFinalizer {
	return &BookingFinalizer{
		bookings:       bookings,
		conversations:  conversations,
		messenger:      messenger,
		tokens:         tokens,
		paymentBaseURL: paymentBaseURL,
		logger:         logger,
	}
}

// Finalize creates the booking record from a completed conversation, sends
// the confirmation with a payment link, and deletes the conversation row.
// Failure here is fatal for the conversation: the user is told to contact
// support and must start over.
func (f *BookingFinalizer) Finalize(conv *models.Conversation) error {
	if conv.SelectedDeparture == nil || conv.PassengerDetails == nil {
		return f.fail(conv, fmt.Errorf("conversation is missing flight selection or passengers"))
	}

	selection := models.FlightSelection{
		Departure: *conv.SelectedDeparture,
		Return:    conv.SelectedReturn,
	}
	total := ComputeTotal(selection.Departure, selection.Return, conv.Adults, conv.Children)

	reference, err := f.generateUniqueReference()
	if err != nil {
		return f.fail(conv, err)
	}

	booking := &models.Booking{
		PhoneNumber:      conv.PhoneNumber,
		BookingReference: reference,
		FlightDetails:    selection,
		PassengerDetails: *conv.PassengerDetails,
		PaymentStatus:    models.PaymentStatusPending,
		Amount:           total,
		Currency:         selection.Departure.Currency,
	}

	if err := f.bookings.Create(booking); err != nil {
		return f.fail(conv, fmt.Errorf("failed to persist booking: %w", err))
	}

	token, err := f.tokens.GeneratePaymentToken(reference, conv.PhoneNumber)
	if err != nil {
		return f.fail(conv, fmt.Errorf("failed to generate payment token: %w", err))
	}
	paymentLink := fmt.Sprintf("%s?booking_ref=%s&token=%s", f.paymentBaseURL, reference, token)

	message := fmt.Sprintf(
		"🎉 Booking confirmed!\n"+
			"Booking Reference: %s\n"+
			"Total Amount: %.2f %s\n\n"+
			"✅ All passenger details received!\n\n"+
			"Please complete your payment here:\n%s\n\n"+
			"Once payment is confirmed, we'll issue your tickets.",
		reference, total, booking.Currency, paymentLink,
	)

	if err := f.messenger.SendText(conv.PhoneNumber, message); err != nil {
		// The booking exists; the payment page is still reachable by reference
		f.logger.WithError(err).WithField("reference", reference).Error("Failed to send booking confirmation")
	}

	if err := f.conversations.Delete(conv.PhoneNumber); err != nil {
		f.logger.WithError(err).WithField("phone", conv.PhoneNumber).Error("Failed to delete finished conversation")
	}
	conv.Terminal = true

	f.logger.WithFields(logrus.Fields{
		"reference": reference,
		"amount":    total,
		"currency":  booking.Currency,
	}).Info("Booking finalized")

	return nil
}

// fail reports a fatal finalization failure to the user and ends the
// conversation; the user must start over.
func (f *BookingFinalizer) fail(conv *models.Conversation, cause error) error {
	if err := f.messenger.SendText(conv.PhoneNumber,
		"❌ Error: Could not complete your booking. Please contact support."); err != nil {
		f.logger.WithError(err).Error("Failed to send finalization failure message")
	}

	if err := f.conversations.Delete(conv.PhoneNumber); err != nil {
		f.logger.WithError(err).WithField("phone", conv.PhoneNumber).Error("Failed to delete failed conversation")
	}
	conv.Terminal = true

	return fmt.Errorf("failed to finalize booking: %w", cause)
}

// generateUniqueReference generates a BOOK-XXXXXX reference, retrying until
// it does not collide with an existing booking.
func (f *BookingFinalizer) generateUniqueReference() (string, error) {
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		reference, err := generateReference()
		if err != nil {
			return "", fmt.Errorf("failed to generate booking reference: %w", err)
		}

		exists, err := f.bookings.ReferenceExists(reference)
		if err != nil {
			return "", fmt.Errorf("failed to check booking reference: %w", err)
		}
		if !exists {
			return reference, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique booking reference after %d attempts", maxReferenceAttempts)
}

func generateReference() (string, error) {
	suffix := make([]byte, referenceLength)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(referenceCharset))))
		if err != nil {
			return "", err
		}
		suffix[i] = referenceCharset[n.Int64()]
	}
	return "BOOK-" + string(suffix), nil
}

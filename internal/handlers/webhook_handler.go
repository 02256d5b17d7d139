package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/remmie/whatsapp-booking-backend/internal/services"
	"github.com/remmie/whatsapp-booking-backend/pkg/whatsapp"
	"github.com/sirupsen/logrus"
)

// ConversationDriver processes one inbound channel event.
type ConversationDriver interface {
	HandleEvent(phoneNumber string, ev services.Event) error
}

// WebhookHandler handles Meta webhook verification and inbound messages
type WebhookHandler struct {
	engine      ConversationDriver
	verifyToken string
	logger      *logrus.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(engine ConversationDriver, verifyToken string, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		engine:      engine,
		verifyToken: verifyToken,
		logger:      logger,
	}
}

// Verify handles GET /webhook/whatsapp
// Meta sends hub.mode, hub.verify_token and hub.challenge; the challenge is
// echoed back as plain text when the token matches.
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		h.logger.Info("Webhook verification succeeded")
		c.String(http.StatusOK, challenge)
		return
	}

	h.logger.WithField("mode", mode).Warn("Webhook verification rejected")
	c.Status(http.StatusForbidden)
}

// Receive handles POST /webhook/whatsapp
// The endpoint always acknowledges with 200 so Meta does not retry
// deliveries; processing failures are logged, not surfaced.
func (h *WebhookHandler) Receive(c *gin.Context) {
	var envelope whatsapp.Envelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		h.logger.WithError(err).Warn("Failed to parse webhook payload")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	message, ok := envelope.FirstMessage()
	if !ok {
		// Status updates and other non-message notifications
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	event := services.Event{}
	switch {
	case message.Type == "interactive" && message.Interactive != nil && message.Interactive.ListReply != nil:
		event.ListReply = message.Interactive.ListReply.ID
	case message.Text != nil:
		event.Text = message.Text.Body
	default:
		h.logger.WithField("type", message.Type).Debug("Ignoring unsupported message type")
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := h.engine.HandleEvent(message.From, event); err != nil {
		h.logger.WithError(err).WithField("phone", message.From).Error("Failed to process inbound message")
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}

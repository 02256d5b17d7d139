package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/remmie/whatsapp-booking-backend/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	phone string
	event services.Event
}

type fakeEngine struct {
	events []recordedEvent
	err    error
}

func (e *fakeEngine) HandleEvent(phone string, ev services.Event) error {
	e.events = append(e.events, recordedEvent{phone: phone, event: ev})
	return e.err
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func webhookRouter(engine *fakeEngine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewWebhookHandler(engine, "verify-secret", testLogger())

	router := gin.New()
	router.GET("/webhook/whatsapp", handler.Verify)
	router.POST("/webhook/whatsapp", handler.Receive)
	return router
}

func TestWebhookVerify(t *testing.T) {
	router := webhookRouter(&fakeEngine{})

	t.Run("Valid Token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet,
			"/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=verify-secret&hub.challenge=12345", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "12345", w.Body.String())
	})

	t.Run("Wrong Token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet,
			"/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Wrong Mode", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet,
			"/webhook/whatsapp?hub.mode=unsubscribe&hub.verify_token=verify-secret&hub.challenge=12345", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

const textDelivery = `{
	"object": "whatsapp_business_account",
	"entry": [{"id": "1", "changes": [{"field": "messages", "value": {
		"messaging_product": "whatsapp",
		"messages": [{"from": "96170123456", "id": "wamid.1", "type": "text", "text": {"body": "hi"}}]
	}}]}]
}`

const listReplyDelivery = `{
	"object": "whatsapp_business_account",
	"entry": [{"id": "1", "changes": [{"field": "messages", "value": {
		"messaging_product": "whatsapp",
		"messages": [{"from": "96170123456", "id": "wamid.2", "type": "interactive",
			"interactive": {"type": "list_reply", "list_reply": {"id": "flights", "title": "Flights"}}}]
	}}]}]
}`

const statusDelivery = `{
	"object": "whatsapp_business_account",
	"entry": [{"id": "1", "changes": [{"field": "messages", "value": {
		"messaging_product": "whatsapp"
	}}]}]
}`

func TestWebhookReceive(t *testing.T) {
	t.Run("Text Message", func(t *testing.T) {
		engine := &fakeEngine{}
		router := webhookRouter(engine)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(textDelivery))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.Len(t, engine.events, 1)
		assert.Equal(t, "96170123456", engine.events[0].phone)
		assert.Equal(t, "hi", engine.events[0].event.Text)
		assert.Empty(t, engine.events[0].event.ListReply)
	})

	t.Run("List Reply", func(t *testing.T) {
		engine := &fakeEngine{}
		router := webhookRouter(engine)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(listReplyDelivery))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		require.Len(t, engine.events, 1)
		assert.Equal(t, "flights", engine.events[0].event.ListReply)
		assert.Empty(t, engine.events[0].event.Text)
	})

	t.Run("Status Update Ignored", func(t *testing.T) {
		engine := &fakeEngine{}
		router := webhookRouter(engine)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(statusDelivery))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, engine.events)
	})

	t.Run("Malformed Payload Still Acknowledged", func(t *testing.T) {
		engine := &fakeEngine{}
		router := webhookRouter(engine)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader("not json"))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, engine.events)
	})

	t.Run("Engine Error Still Acknowledged", func(t *testing.T) {
		engine := &fakeEngine{err: assert.AnError}
		router := webhookRouter(engine)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(textDelivery))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

// Package whatsapp implements an outbound client for the WhatsApp Cloud API
// and the inbound webhook payload types.
package whatsapp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MaxRowTitleLength is the display-width bound WhatsApp imposes on
// interactive list row titles. Longer titles are truncated by the gateway.
const MaxRowTitleLength = 24

// Gateway sends messages via the WhatsApp Cloud API
type Gateway struct {
	apiURL  string
	phoneID string
	token   string
	client  *http.Client
}

// Config holds configuration for the WhatsApp gateway
type Config struct {
	APIURL  string
	PhoneID string
	Token   string
}

// NewGateway creates a new WhatsApp Cloud API gateway client
func NewGateway(config Config) *Gateway {
	return &Gateway{
		apiURL:  config.APIURL,
		phoneID: config.PhoneID,
		token:   config.Token,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ListRow is one selectable row in an interactive list message
type ListRow struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type textPayload struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

type interactivePayload struct {
	MessagingProduct string          `json:"messaging_product"`
	To               string          `json:"to"`
	Type             string          `json:"type"`
	Interactive      interactiveBody `json:"interactive"`
}

type interactiveBody struct {
	Type   string            `json:"type"`
	Body   textBody          `json:"body"`
	Action interactiveAction `json:"action"`
}

type interactiveAction struct {
	Button   string        `json:"button"`
	Sections []listSection `json:"sections"`
}

type listSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// SendText sends a plain text message to a phone number
func (g *Gateway) SendText(to, body string) error {
	payload := textPayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             textBody{Body: body},
	}

	return g.post(payload)
}

// SendList sends an interactive list message. Row titles longer than the
// display bound are truncated.
func (g *Gateway) SendList(to, body, sectionTitle string, rows []ListRow) error {
	truncated := make([]ListRow, len(rows))
	for i, row := range rows {
		truncated[i] = ListRow{ID: row.ID, Title: TruncateTitle(row.Title)}
	}

	payload := interactivePayload{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "interactive",
		Interactive: interactiveBody{
			Type: "list",
			Body: textBody{Body: body},
			Action: interactiveAction{
				Button: "Select Option",
				Sections: []listSection{
					{Title: sectionTitle, Rows: truncated},
				},
			},
		},
	}

	return g.post(payload)
}

// TruncateTitle shortens a row title to the WhatsApp display bound
func TruncateTitle(title string) string {
	if len(title) <= MaxRowTitleLength {
		return title
	}
	return title[:MaxRowTitleLength-3] + "..."
}

func (g *Gateway) post(payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", g.apiURL, g.phoneID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create message request: %w", err)
	}

	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", g.token))
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		var errResp apiError
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			return fmt.Errorf("message sending failed: %s (code: %d)", errResp.Error.Message, errResp.Error.Code)
		}
		return fmt.Errorf("message sending failed with status %d", resp.StatusCode)
	}

	return nil
}

package whatsapp

// Envelope is the webhook delivery payload posted by the Cloud API.
type Envelope struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one account-level entry inside a webhook delivery.
type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

// Change is one field change inside an entry.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue carries the messages (and statuses, ignored here) of a change.
type ChangeValue struct {
	MessagingProduct string           `json:"messaging_product"`
	Messages         []InboundMessage `json:"messages"`
}

// InboundMessage is one user message delivered by the webhook.
type InboundMessage struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *InboundText        `json:"text,omitempty"`
	Interactive *InboundInteractive `json:"interactive,omitempty"`
}

// InboundText is the body of a plain text message.
type InboundText struct {
	Body string `json:"body"`
}

// InboundInteractive carries the user's reply to an interactive prompt.
type InboundInteractive struct {
	Type      string            `json:"type"`
	ListReply *InboundListReply `json:"list_reply,omitempty"`
}

// InboundListReply is the selected row of a list prompt.
type InboundListReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// FirstMessage extracts the first user message from the envelope. Deliveries
// without messages (status updates and the like) return false.
func (e *Envelope) FirstMessage() (*InboundMessage, bool) {
	if len(e.Entry) == 0 || len(e.Entry[0].Changes) == 0 {
		return nil, false
	}
	messages := e.Entry[0].Changes[0].Value.Messages
	if len(messages) == 0 {
		return nil, false
	}
	return &messages[0], true
}

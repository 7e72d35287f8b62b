package messenger

// Wire shapes of the Messenger webhook delivery body. Only plain text
// messages are of interest; everything else is filtered upstream of the
// relay.

type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging"`
}

type MessagingEvent struct {
	Sender    Principal `json:"sender"`
	Recipient Principal `json:"recipient"`
	Timestamp int64     `json:"timestamp"`
	Message   *Message  `json:"message,omitempty"`
}

type Principal struct {
	ID string `json:"id"`
}

type Message struct {
	MID    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo"`
}

// Event is the normalized inbound event handed to the relay.
type Event struct {
	SenderID  string
	MessageID string
	Text      string
	IsEcho    bool
}

package messenger

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
)

// ackBody is what the platform expects back for every delivery. Anything but
// a 2xx makes the platform retry and eventually disable the integration, so
// the delivery endpoint acknowledges unconditionally.
const ackBody = "EVENT_RECEIVED"

const maxBodyBytes = 1 << 20

// Processor consumes one normalized inbound event. Implementations own all
// downstream failure handling; the webhook only filters transport-level
// garbage.
type Processor interface {
	Process(ctx context.Context, ev Event)
}

// Webhook terminates the platform's verification handshake and event
// deliveries.
type Webhook struct {
	verifyToken string
	processor   Processor
}

func NewWebhook(verifyToken string, processor Processor) *Webhook {
	return &Webhook{verifyToken: verifyToken, processor: processor}
}

// Handler returns the HTTP handler serving /webhook and /healthz.
func (wh *Webhook) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", wh.handle)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	return mux
}

func (wh *Webhook) handle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		wh.verify(w, r)
	case http.MethodPost:
		wh.receive(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (wh *Webhook) verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") == "subscribe" && q.Get("hub.verify_token") == wh.verifyToken {
		log.Printf("webhook verified")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, q.Get("hub.challenge"))
		return
	}
	http.Error(w, "Verification failed", http.StatusForbidden)
}

func (wh *Webhook) receive(w http.ResponseWriter, r *http.Request) {
	// The acknowledgment must go out no matter what happens below.
	defer func() {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, ackBody)
	}()

	var payload WebhookPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload); err != nil {
		log.Printf("malformed webhook payload: %v", err)
		return
	}

	for _, entry := range payload.Entry {
		for _, me := range entry.Messaging {
			ev := Event{SenderID: me.Sender.ID}
			if me.Message != nil {
				ev.MessageID = me.Message.MID
				ev.Text = me.Message.Text
				ev.IsEcho = me.Message.IsEcho
			}
			wh.processor.Process(r.Context(), ev)
		}
	}
}

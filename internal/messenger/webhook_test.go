package messenger

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type captureProcessor struct {
	events []Event
}

func (c *captureProcessor) Process(_ context.Context, ev Event) {
	c.events = append(c.events, ev)
}

func TestWebhookVerification(t *testing.T) {
	wh := NewWebhook("secret", &captureProcessor{})
	srv := httptest.NewServer(wh.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=secret&hub.challenge=12345")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "12345" {
		t.Fatalf("want 200 with raw challenge, got %d %q", resp.StatusCode, body)
	}

	resp, err = http.Get(srv.URL + "/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("want 403 for bad token, got %d", resp.StatusCode)
	}
}

func TestWebhookDelivery(t *testing.T) {
	proc := &captureProcessor{}
	wh := NewWebhook("secret", proc)
	srv := httptest.NewServer(wh.Handler())
	defer srv.Close()

	payload := `{
		"object": "page",
		"entry": [{"id": "page_1", "messaging": [
			{"sender": {"id": "U1"}, "message": {"mid": "m1", "text": "hello"}},
			{"sender": {"id": "U1"}, "message": {"mid": "m2", "text": "echo", "is_echo": true}}
		]}]
	}`
	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "EVENT_RECEIVED" {
		t.Fatalf("want 200 EVENT_RECEIVED, got %d %q", resp.StatusCode, body)
	}

	if len(proc.events) != 2 {
		t.Fatalf("want 2 events, got %d", len(proc.events))
	}
	if proc.events[0].SenderID != "U1" || proc.events[0].Text != "hello" || proc.events[0].MessageID != "m1" {
		t.Fatalf("event mismatch: %+v", proc.events[0])
	}
	if !proc.events[1].IsEcho {
		t.Fatalf("echo flag lost: %+v", proc.events[1])
	}
}

func TestWebhookMalformedBodyStillAcked(t *testing.T) {
	proc := &captureProcessor{}
	wh := NewWebhook("secret", proc)
	srv := httptest.NewServer(wh.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/webhook", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "EVENT_RECEIVED" {
		t.Fatalf("malformed body must still be acked, got %d %q", resp.StatusCode, body)
	}
	if len(proc.events) != 0 {
		t.Fatalf("no events expected, got %+v", proc.events)
	}
}

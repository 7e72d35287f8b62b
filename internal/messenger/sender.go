package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Sender delivers a text reply through the platform's send API.
type Sender struct {
	apiURL      string
	accessToken string
	httpClient  *http.Client
}

func NewSender(apiURL, accessToken string, timeout time.Duration) *Sender {
	return &Sender{
		apiURL:      apiURL,
		accessToken: accessToken,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	Recipient     Principal   `json:"recipient"`
	Message       sendMessage `json:"message"`
	MessagingType string      `json:"messaging_type"`
}

type sendMessage struct {
	Text string `json:"text"`
}

// Send posts one message to the recipient. Callers treat failure as
// log-and-continue; reply delivery never decides the webhook acknowledgment.
func (s *Sender) Send(ctx context.Context, recipientID, text string) error {
	body, err := json.Marshal(sendRequest{
		Recipient:     Principal{ID: recipientID},
		Message:       sendMessage{Text: text},
		MessagingType: "RESPONSE",
	})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	u, err := url.Parse(s.apiURL)
	if err != nil {
		return fmt.Errorf("parse send api url: %w", err)
	}
	q := u.Query()
	q.Set("access_token", s.accessToken)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("send api status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// Package notifier forwards completed interactions to a third-party
// automation webhook. Strictly fire and forget: every failure is logged and
// ignored.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Notifier posts interaction summaries to a configured destination. Only
// destinations in the recognized automation family are accepted; anything
// else disables the notifier rather than failing startup.
type Notifier struct {
	url        string
	httpClient *http.Client
}

func New(rawURL string, timeout time.Duration) *Notifier {
	n := &Notifier{httpClient: &http.Client{Timeout: timeout}}
	if rawURL == "" {
		return n
	}
	u, err := url.Parse(rawURL)
	if err != nil || !allowedDestination(u.Hostname()) {
		log.Printf("notifier destination %q not recognized, notifications disabled", rawURL)
		return n
	}
	n.url = rawURL
	return n
}

func (n *Notifier) Enabled() bool { return n.url != "" }

type notification struct {
	UserID      string `json:"userId"`
	UserMessage string `json:"userMessage"`
	AIResponse  string `json:"aiResponse"`
	Timestamp   string `json:"timestamp"`
}

// Notify posts one interaction. No return value: there is nothing for the
// caller to do with a side-channel failure.
func (n *Notifier) Notify(ctx context.Context, userID, userMessage, aiResponse string, ts time.Time) {
	if n.url == "" {
		return
	}
	body, err := json.Marshal(notification{
		UserID:      userID,
		UserMessage: userMessage,
		AIResponse:  aiResponse,
		Timestamp:   ts.UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Printf("notifier marshal failed: %v", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		log.Printf("notifier request build failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		log.Printf("notifier post failed: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("notifier destination returned status %d", resp.StatusCode)
	}
}

func allowedDestination(host string) bool {
	host = strings.ToLower(host)
	return host == "make.com" || strings.HasSuffix(host, ".make.com")
}

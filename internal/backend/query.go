package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"messenger-relay/internal/conversation"
)

// QueryService is the remote request/response variant. One POST per message;
// the session handle rides along as an opaque correlation token with no
// memory guarantee. Different deployments of these endpoints disagree on the
// reply field name, so extraction is tolerant.
type QueryService struct {
	url        string
	token      string
	httpClient *http.Client
}

func NewQueryService(url, token string, timeout time.Duration) *QueryService {
	return &QueryService{
		url:        url,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type queryRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

func (q *QueryService) Respond(ctx context.Context, prior []conversation.Turn, userText, session string) (*Result, error) {
	body, err := json.Marshal(queryRequest{Message: userText, ConversationID: session})
	if err != nil {
		return nil, fmt.Errorf("marshal query request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if q.token != "" {
		req.Header.Set("Authorization", "Bearer "+q.token)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query service call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read query response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("query service status %d: %s", resp.StatusCode, truncate(data, 200))
	}

	reply, ok := extractReply(data)
	if !ok {
		return nil, fmt.Errorf("unrecognized query response shape: %s", truncate(data, 200))
	}

	return &Result{
		Reply:   reply,
		History: appendExchange(prior, userText, reply),
		Session: session,
	}, nil
}

// extractReply normalizes the known response shapes: {"text": ...},
// {"response": ...}, {"answer": ...} or a bare JSON string.
func extractReply(data []byte) (string, bool) {
	var bare string
	if json.Unmarshal(data, &bare) == nil && bare != "" {
		return bare, true
	}
	var obj map[string]json.RawMessage
	if json.Unmarshal(data, &obj) != nil {
		return "", false
	}
	for _, key := range []string{"text", "response", "answer"} {
		var s string
		if json.Unmarshal(obj[key], &s) == nil && s != "" {
			return s, true
		}
	}
	return "", false
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

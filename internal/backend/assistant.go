package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"messenger-relay/internal/conversation"
)

// Assistant is the stateful session variant built on the OpenAI threads API.
// The backend owns the conversational memory behind a thread id; the stored
// transcript still gains the user and assistant turns so it stays a complete
// record for store compatibility.
type Assistant struct {
	client       *openai.Client
	assistantID  string
	pollInterval time.Duration
}

func NewAssistant(apiKey, baseURL, assistantID string) *Assistant {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Assistant{
		client:       openai.NewClientWithConfig(config),
		assistantID:  assistantID,
		pollInterval: time.Second,
	}
}

func (a *Assistant) Respond(ctx context.Context, prior []conversation.Turn, userText, session string) (*Result, error) {
	threadID := session
	if threadID == "" {
		thread, err := a.client.CreateThread(ctx, openai.ThreadRequest{})
		if err != nil {
			return nil, fmt.Errorf("create thread: %w", err)
		}
		threadID = thread.ID
	}

	if _, err := a.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: userText,
	}); err != nil {
		return nil, fmt.Errorf("add message to thread: %w", err)
	}

	run, err := a.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: a.assistantID})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	run, err = a.waitForRun(ctx, threadID, run.ID)
	if err != nil {
		return nil, err
	}
	if run.Status != openai.RunStatusCompleted {
		return nil, fmt.Errorf("run finished with status %s", run.Status)
	}

	reply, err := a.latestAssistantText(ctx, threadID)
	if err != nil {
		return nil, err
	}

	return &Result{
		Reply:   reply,
		History: appendExchange(prior, userText, reply),
		Session: threadID,
	}, nil
}

func (a *Assistant) waitForRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	for {
		run, err := a.client.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return openai.Run{}, fmt.Errorf("retrieve run: %w", err)
		}
		switch run.Status {
		case openai.RunStatusQueued, openai.RunStatusInProgress:
		default:
			return run, nil
		}
		select {
		case <-ctx.Done():
			return openai.Run{}, ctx.Err()
		case <-time.After(a.pollInterval):
		}
	}
}

func (a *Assistant) latestAssistantText(ctx context.Context, threadID string) (string, error) {
	limit := 20
	order := "desc"
	list, err := a.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("list thread messages: %w", err)
	}
	for _, msg := range list.Messages {
		if msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		for _, c := range msg.Content {
			if c.Type == "text" && c.Text != nil {
				return c.Text.Value, nil
			}
		}
	}
	return "", fmt.Errorf("no assistant text in thread %s", threadID)
}

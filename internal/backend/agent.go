package backend

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"messenger-relay/internal/conversation"
)

// Agent is the stateless history-replay variant: the full transcript is sent
// on every call as chat-completion messages and the backend keeps no memory
// of its own.
type Agent struct {
	client       *openai.Client
	model        string
	systemPrompt string
}

func NewAgent(apiKey, baseURL, model, systemPrompt string) *Agent {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Agent{
		client:       openai.NewClientWithConfig(config),
		model:        model,
		systemPrompt: systemPrompt,
	}
}

func (a *Agent) Respond(ctx context.Context, prior []conversation.Turn, userText, session string) (*Result, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(prior)+2)
	if a.systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: a.systemPrompt})
	}
	for _, t := range prior {
		// Opaque items without a plain role/content projection cannot be
		// replayed through the chat API; they stay in the stored history.
		if t.Role == "" || t.Content == "" {
			continue
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: userText})

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: msgs,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}
	reply := resp.Choices[0].Message.Content

	return &Result{
		Reply:   reply,
		History: appendExchange(prior, userText, reply),
		Session: session,
	}, nil
}

package backend

import (
	"fmt"
	"strings"
	"time"

	"messenger-relay/internal/config"
)

const (
	BackendAgent     = "agent"
	BackendAssistant = "assistant"
	BackendQuery     = "query"
	BackendYandex    = "yandex"
)

// New builds the configured responder. Selection happens exactly once here;
// nothing downstream switches on the backend kind at request time.
func New(cfg *config.Config, systemPrompt string, timeout time.Duration) (Responder, error) {
	switch strings.ToLower(cfg.AIBackend) {
	case BackendAgent:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("agent backend requires OPENAI_API_KEY")
		}
		return NewAgent(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, systemPrompt), nil
	case BackendAssistant:
		if cfg.OpenAIAPIKey == "" || cfg.OpenAIAssistantID == "" {
			return nil, fmt.Errorf("assistant backend requires OPENAI_API_KEY and OPENAI_ASSISTANT_ID")
		}
		return NewAssistant(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIAssistantID), nil
	case BackendQuery:
		if cfg.QueryServiceURL == "" {
			return nil, fmt.Errorf("query backend requires QUERY_SERVICE_URL")
		}
		return NewQueryService(cfg.QueryServiceURL, cfg.QueryServiceToken, timeout), nil
	case BackendYandex:
		if cfg.YandexOAuthToken == "" || cfg.YandexFolderID == "" {
			return nil, fmt.Errorf("yandex backend requires YANDEX_OAUTH_TOKEN and YANDEX_FOLDER_ID")
		}
		y, err := NewYandex(cfg.YandexOAuthToken, cfg.YandexFolderID, systemPrompt)
		if err != nil {
			return nil, err
		}
		return y, nil
	default:
		return nil, fmt.Errorf("unknown ai backend: %s", cfg.AIBackend)
	}
}

package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	ListenAddr      string `env:"LISTEN_ADDR" envDefault:":8080"`
	VerifyToken     string `env:"VERIFY_TOKEN,required"`
	PageAccessToken string `env:"PAGE_ACCESS_TOKEN,required"`
	GraphAPIURL     string `env:"GRAPH_API_URL" envDefault:"https://graph.facebook.com/v21.0/me/messages"`

	// AI backend selection and credentials
	AIBackend         string `env:"AI_BACKEND" envDefault:"agent"`
	OpenAIAPIKey      string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string `env:"OPENAI_BASE_URL"`
	OpenAIModel       string `env:"OPENAI_MODEL" envDefault:"gpt-4o"`
	OpenAIAssistantID string `env:"OPENAI_ASSISTANT_ID"`
	QueryServiceURL   string `env:"QUERY_SERVICE_URL"`
	QueryServiceToken string `env:"QUERY_SERVICE_TOKEN"`
	YandexOAuthToken  string `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID    string `env:"YANDEX_FOLDER_ID"`

	// Prompts
	SystemPromptPath string `env:"SYSTEM_PROMPT_PATH"`

	// Conversation store
	StoreBackend   string `env:"STORE_BACKEND" envDefault:"memory"`
	AirtableAPIKey string `env:"AIRTABLE_API_KEY"`
	AirtableBaseID string `env:"AIRTABLE_BASE_ID"`
	AirtableTable  string `env:"AIRTABLE_TABLE"`
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"data/conversations.db"`

	// Interaction log
	LogFilePath string `env:"LOG_FILE_PATH"`

	// Side-channel notifier
	NotifyWebhookURL string `env:"NOTIFY_WEBHOOK_URL"`

	// Per-call bounds
	StoreTimeout   time.Duration `env:"STORE_TIMEOUT" envDefault:"5s"`
	SendTimeout    time.Duration `env:"SEND_TIMEOUT" envDefault:"5s"`
	BackendTimeout time.Duration `env:"BACKEND_TIMEOUT" envDefault:"60s"`
	DedupeTTL      time.Duration `env:"DEDUPE_TTL" envDefault:"15m"`
}

func New() *Config {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

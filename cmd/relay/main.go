package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"messenger-relay/internal/backend"
	"messenger-relay/internal/config"
	"messenger-relay/internal/dedupe"
	"messenger-relay/internal/messenger"
	"messenger-relay/internal/notifier"
	"messenger-relay/internal/relay"
	"messenger-relay/internal/storage"
	"messenger-relay/internal/store"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	conversations, err := newConversationStore(cfg)
	if err != nil {
		log.Fatalf("failed to init conversation store: %v", err)
	}

	systemPrompt := readSystemPrompt(cfg.SystemPromptPath)

	responder, err := backend.New(cfg, systemPrompt, cfg.BackendTimeout)
	if err != nil {
		log.Fatalf("failed to create ai backend: %v", err)
	}

	var rec storage.Recorder
	if cfg.LogFilePath != "" {
		fr, err := storage.NewFileRecorder(cfg.LogFilePath)
		if err != nil {
			log.Printf("failed to init interaction log: %v", err)
		} else {
			rec = fr
		}
	}

	sender := messenger.NewSender(cfg.GraphAPIURL, cfg.PageAccessToken, cfg.SendTimeout)
	ntf := notifier.New(cfg.NotifyWebhookURL, cfg.SendTimeout)
	seen := dedupe.New(cfg.DedupeTTL, 4096)

	rel := relay.New(conversations, responder, sender, ntf, rec, seen, relay.Options{
		StoreTimeout:   cfg.StoreTimeout,
		SendTimeout:    cfg.SendTimeout,
		BackendTimeout: cfg.BackendTimeout,
	})

	webhook := messenger.NewWebhook(cfg.VerifyToken, rel)
	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      webhook.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	go func() {
		log.Printf("listening on %s (backend=%s, store=%s)", cfg.ListenAddr, cfg.AIBackend, cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if c, ok := conversations.(interface{ Close() error }); ok {
		_ = c.Close()
	}
	if s, ok := responder.(interface{ Stop() }); ok {
		s.Stop()
	}
}

func newConversationStore(cfg *config.Config) (store.Conversations, error) {
	switch strings.ToLower(cfg.StoreBackend) {
	case "airtable":
		if cfg.AirtableAPIKey == "" || cfg.AirtableBaseID == "" || cfg.AirtableTable == "" {
			return nil, fmt.Errorf("airtable store requires AIRTABLE_API_KEY, AIRTABLE_BASE_ID and AIRTABLE_TABLE")
		}
		return store.NewAirtable(cfg.AirtableAPIKey, cfg.AirtableBaseID, cfg.AirtableTable, cfg.StoreTimeout), nil
	case "sqlite":
		return store.NewSQLite(cfg.SQLitePath)
	case "memory":
		log.Printf("using in-memory conversation store; state is lost on restart")
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}

func readSystemPrompt(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("system prompt file not found or unreadable at %s: %v", path, err)
		return ""
	}
	return string(data)
}

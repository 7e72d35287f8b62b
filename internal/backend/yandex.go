package backend

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/Morwran/yagpt"
	"github.com/robfig/cron/v3"

	"messenger-relay/internal/conversation"
)

// Yandex is a stateless history-replay variant on top of YandexGPT. IAM
// tokens minted from the OAuth token expire, so a cron job re-mints one
// every hour for the lifetime of the process.
type Yandex struct {
	ya           yagpt.YaGPTFace
	systemPrompt string
	mint         func() (string, error)
	cron         *cron.Cron

	mu       sync.RWMutex
	iamToken string
}

func NewYandex(oauthToken, folderID, systemPrompt string) (*Yandex, error) {
	iam, err := yagpt.NewYaIam(oauthToken)
	if err != nil {
		return nil, fmt.Errorf("init yandex iam: %w", err)
	}
	ya, err := yagpt.NewYagpt(folderID)
	if err != nil {
		return nil, fmt.Errorf("init yagpt: %w", err)
	}

	y := &Yandex{
		ya:           ya,
		systemPrompt: systemPrompt,
		cron:         cron.New(),
		mint: func() (string, error) {
			resp, err := iam.Create()
			if err != nil {
				return "", err
			}
			return resp.IamToken, nil
		},
	}

	token, err := y.mint()
	if err != nil {
		return nil, fmt.Errorf("create iam token: %w", err)
	}
	y.iamToken = token

	if _, err := y.cron.AddFunc("@every 1h", y.refreshToken); err != nil {
		return nil, fmt.Errorf("schedule iam refresh: %w", err)
	}
	y.cron.Start()
	return y, nil
}

func (y *Yandex) refreshToken() {
	token, err := y.mint()
	if err != nil {
		log.Printf("yandex iam refresh failed: %v", err)
		return
	}
	y.mu.Lock()
	y.iamToken = token
	y.mu.Unlock()
}

func (y *Yandex) token() string {
	y.mu.RLock()
	defer y.mu.RUnlock()
	return y.iamToken
}

// Stop cancels the token refresh schedule.
func (y *Yandex) Stop() {
	y.cron.Stop()
}

func (y *Yandex) Respond(ctx context.Context, prior []conversation.Turn, userText, session string) (*Result, error) {
	msgs := make([]yagpt.Message, 0, len(prior)+2)
	if y.systemPrompt != "" {
		msgs = append(msgs, yagpt.Message{Role: "system", Content: y.systemPrompt})
	}
	for _, t := range prior {
		if t.Role == "" || t.Content == "" {
			continue
		}
		msgs = append(msgs, yagpt.Message{Role: t.Role, Content: t.Content})
	}
	msgs = append(msgs, yagpt.Message{Role: conversation.RoleUser, Content: userText})

	resp, err := y.ya.CompletionWithCtx(ctx, y.token(), msgs)
	if err != nil {
		return nil, fmt.Errorf("yagpt completion: %w", err)
	}
	if resp == nil || len(resp.Alternatives) == 0 {
		return nil, fmt.Errorf("yagpt returned empty response")
	}
	reply := resp.Alternatives[0].Message.Content

	return &Result{
		Reply:   reply,
		History: appendExchange(prior, userText, reply),
		Session: session,
	}, nil
}

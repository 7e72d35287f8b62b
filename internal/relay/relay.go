// Package relay composes the conversation pipeline: filter inbound events,
// load stored history, invoke the AI backend, persist, reply and notify.
// Every step past the filter is best effort; nothing here can fail the
// webhook acknowledgment.
package relay

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"messenger-relay/internal/backend"
	"messenger-relay/internal/conversation"
	"messenger-relay/internal/dedupe"
	"messenger-relay/internal/messenger"
	"messenger-relay/internal/storage"
	"messenger-relay/internal/store"
)

// FallbackReply is sent when the backend cannot produce a response. It is
// fixed and configuration-independent.
const FallbackReply = "Sorry, my brain is having a moment. I'll get back to you soon."

// ReplySender delivers a text reply to the platform.
type ReplySender interface {
	Send(ctx context.Context, recipientID, text string) error
}

// Notifier forwards a completed interaction to a side channel.
type Notifier interface {
	Notify(ctx context.Context, userID, userMessage, aiResponse string, ts time.Time)
}

// Options bound each external call. Zero values fall back to defaults.
type Options struct {
	StoreTimeout   time.Duration
	SendTimeout    time.Duration
	BackendTimeout time.Duration
}

func (o *Options) fill() {
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 5 * time.Second
	}
	if o.BackendTimeout <= 0 {
		o.BackendTimeout = 60 * time.Second
	}
}

type Relay struct {
	store     store.Conversations
	responder backend.Responder
	sender    ReplySender
	notifier  Notifier
	recorder  storage.Recorder
	seen      *dedupe.Cache
	opts      Options

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// New wires the pipeline. notifier, recorder and seen may be nil; the
// corresponding steps are skipped.
func New(conversations store.Conversations, responder backend.Responder, sender ReplySender,
	notifier Notifier, recorder storage.Recorder, seen *dedupe.Cache, opts Options) *Relay {
	opts.fill()
	return &Relay{
		store:     conversations,
		responder: responder,
		sender:    sender,
		notifier:  notifier,
		recorder:  recorder,
		seen:      seen,
		opts:      opts,
		userLocks: make(map[string]*sync.Mutex),
	}
}

// Process runs one inbound event through the pipeline. It never returns an
// error: by the time an event reaches the relay the platform has already
// been promised an acknowledgment.
func (r *Relay) Process(ctx context.Context, ev messenger.Event) {
	if ev.IsEcho || ev.SenderID == "" || strings.TrimSpace(ev.Text) == "" {
		return
	}
	if r.seen != nil && r.seen.Seen(ev.MessageID) {
		log.Printf("duplicate delivery of %s for user %s, skipping", ev.MessageID, ev.SenderID)
		return
	}

	// Serialize the load-respond-save cycle per user; concurrent deliveries
	// for different users proceed independently.
	unlock := r.lockUser(ev.SenderID)
	defer unlock()

	log.Printf("processing message from %s: %q", ev.SenderID, ev.Text)

	rec := r.loadRecord(ctx, ev.SenderID)
	res := r.respond(ctx, rec, ev.Text)

	rec.Turns = res.History
	if res.Session != "" {
		rec.SessionHandle = res.Session
	}

	r.save(ctx, rec)
	r.send(ctx, ev.SenderID, res.Reply)
	r.record(ev.SenderID, ev.Text, res.Reply)
	r.notify(ctx, ev.SenderID, ev.Text, res.Reply)
}

func (r *Relay) lockUser(userID string) func() {
	r.mu.Lock()
	l, ok := r.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		r.userLocks[userID] = l
	}
	r.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// loadRecord fetches the stored conversation. A store failure degrades to an
// empty record with no store key, so the following save performs a create.
func (r *Relay) loadRecord(ctx context.Context, userID string) *conversation.Record {
	sctx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
	defer cancel()
	rec, err := r.store.Load(sctx, userID)
	if err != nil {
		log.Printf("store unavailable for %s, continuing with empty history: %v", userID, err)
	}
	if rec == nil {
		rec = &conversation.Record{UserID: userID}
	}
	return rec
}

// respond invokes the backend; on failure it substitutes the fallback reply
// and still extends the transcript with the user's turn so the exchange is
// not silently dropped.
func (r *Relay) respond(ctx context.Context, rec *conversation.Record, userText string) *backend.Result {
	bctx, cancel := context.WithTimeout(ctx, r.opts.BackendTimeout)
	defer cancel()
	res, err := r.responder.Respond(bctx, rec.Turns, userText, rec.SessionHandle)
	if err == nil && res != nil && res.Reply != "" {
		return res
	}
	if err != nil {
		log.Printf("backend invocation failed for %s: %v", rec.UserID, err)
	} else {
		log.Printf("backend returned empty result for %s", rec.UserID)
	}
	history := make([]conversation.Turn, 0, len(rec.Turns)+2)
	history = append(history, rec.Turns...)
	history = append(history,
		conversation.NewTurn(conversation.RoleUser, userText),
		conversation.NewTurn(conversation.RoleAssistant, FallbackReply),
	)
	return &backend.Result{
		Reply:   FallbackReply,
		History: history,
		Session: rec.SessionHandle,
	}
}

func (r *Relay) save(ctx context.Context, rec *conversation.Record) {
	sctx, cancel := context.WithTimeout(ctx, r.opts.StoreTimeout)
	defer cancel()
	if err := r.store.Save(sctx, rec); err != nil {
		log.Printf("failed to persist conversation for %s: %v", rec.UserID, err)
	}
}

func (r *Relay) send(ctx context.Context, userID, text string) {
	sctx, cancel := context.WithTimeout(ctx, r.opts.SendTimeout)
	defer cancel()
	if err := r.sender.Send(sctx, userID, text); err != nil {
		log.Printf("failed to deliver reply to %s: %v", userID, err)
	}
}

func (r *Relay) record(userID, userText, reply string) {
	if r.recorder == nil {
		return
	}
	err := r.recorder.AppendInteraction(storage.Event{
		Timestamp:         time.Now().UTC(),
		UserID:            userID,
		UserMessage:       userText,
		AssistantResponse: reply,
	})
	if err != nil {
		log.Printf("failed to record interaction for %s: %v", userID, err)
	}
}

func (r *Relay) notify(ctx context.Context, userID, userText, reply string) {
	if r.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(ctx, r.opts.SendTimeout)
	defer cancel()
	r.notifier.Notify(nctx, userID, userText, reply, time.Now())
}

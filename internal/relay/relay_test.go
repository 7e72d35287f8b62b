package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"messenger-relay/internal/backend"
	"messenger-relay/internal/conversation"
	"messenger-relay/internal/dedupe"
	"messenger-relay/internal/messenger"
)

type fakeStore struct {
	records map[string]*conversation.Record
	loadErr error
	saveErr error
	loads   int
	creates int
	updates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]*conversation.Record)}
}

func (f *fakeStore) Load(_ context.Context, userID string) (*conversation.Record, error) {
	f.loads++
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	rec, ok := f.records[userID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	cp.Turns = append([]conversation.Turn(nil), rec.Turns...)
	return &cp, nil
}

func (f *fakeStore) Save(_ context.Context, rec *conversation.Record) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	if rec.ID == "" {
		f.creates++
		rec.ID = "row-1"
	} else {
		f.updates++
	}
	cp := *rec
	cp.Turns = append([]conversation.Turn(nil), rec.Turns...)
	f.records[rec.UserID] = &cp
	return nil
}

type fakeResponder struct {
	fn    func(prior []conversation.Turn, userText, session string) (*backend.Result, error)
	calls int
}

func (f *fakeResponder) Respond(_ context.Context, prior []conversation.Turn, userText, session string) (*backend.Result, error) {
	f.calls++
	return f.fn(prior, userText, session)
}

type sentMessage struct {
	userID string
	text   string
}

type fakeSender struct {
	sent []sentMessage
	err  error
}

func (f *fakeSender) Send(_ context.Context, recipientID, text string) error {
	f.sent = append(f.sent, sentMessage{recipientID, text})
	return f.err
}

type fakeNotifier struct {
	calls int
}

func (f *fakeNotifier) Notify(_ context.Context, _, _, _ string, _ time.Time) {
	f.calls++
}

func echoResponder(reply string) *fakeResponder {
	return &fakeResponder{fn: func(prior []conversation.Turn, userText, session string) (*backend.Result, error) {
		history := append(append([]conversation.Turn(nil), prior...),
			conversation.NewTurn(conversation.RoleUser, userText),
			conversation.NewTurn(conversation.RoleAssistant, reply),
		)
		return &backend.Result{Reply: reply, History: history, Session: session}, nil
	}}
}

func TestNewUserConversation(t *testing.T) {
	st := newFakeStore()
	resp := echoResponder("Hi, how can I help?")
	snd := &fakeSender{}
	ntf := &fakeNotifier{}
	r := New(st, resp, snd, ntf, nil, nil, Options{})

	r.Process(context.Background(), messenger.Event{SenderID: "U1", MessageID: "m1", Text: "hello"})

	if st.creates != 1 || st.updates != 0 {
		t.Fatalf("want one create, got creates=%d updates=%d", st.creates, st.updates)
	}
	rec := st.records["U1"]
	if rec == nil || len(rec.Turns) != 2 {
		t.Fatalf("stored record wrong: %+v", rec)
	}
	if rec.Turns[0].Role != conversation.RoleUser || rec.Turns[0].Content != "hello" ||
		rec.Turns[1].Role != conversation.RoleAssistant || rec.Turns[1].Content != "Hi, how can I help?" {
		t.Fatalf("transcript wrong: %+v", rec.Turns)
	}
	if len(snd.sent) != 1 || snd.sent[0] != (sentMessage{"U1", "Hi, how can I help?"}) {
		t.Fatalf("reply delivery wrong: %+v", snd.sent)
	}
	if ntf.calls != 1 {
		t.Fatalf("notifier not invoked")
	}
}

func TestExistingUserConversation(t *testing.T) {
	st := newFakeStore()
	st.records["U2"] = &conversation.Record{
		ID:     "row-9",
		UserID: "U2",
		Turns: []conversation.Turn{
			conversation.NewTurn(conversation.RoleUser, "a"),
			conversation.NewTurn(conversation.RoleAssistant, "b"),
		},
	}

	var gotPrior []conversation.Turn
	resp := &fakeResponder{fn: func(prior []conversation.Turn, userText, session string) (*backend.Result, error) {
		gotPrior = prior
		history := append(append([]conversation.Turn(nil), prior...),
			conversation.NewTurn(conversation.RoleUser, userText),
			conversation.NewTurn(conversation.RoleAssistant, "d"),
		)
		return &backend.Result{Reply: "d", History: history}, nil
	}}
	snd := &fakeSender{}
	r := New(st, resp, snd, nil, nil, nil, Options{})

	r.Process(context.Background(), messenger.Event{SenderID: "U2", MessageID: "m2", Text: "c"})

	if len(gotPrior) != 2 || gotPrior[1].Content != "b" {
		t.Fatalf("backend did not receive stored history: %+v", gotPrior)
	}
	if st.creates != 0 || st.updates != 1 {
		t.Fatalf("want one update, got creates=%d updates=%d", st.creates, st.updates)
	}
	if rec := st.records["U2"]; len(rec.Turns) != 4 {
		t.Fatalf("want 4-turn history, got %+v", rec.Turns)
	}
	if len(snd.sent) != 1 || snd.sent[0].text != "d" {
		t.Fatalf("reply wrong: %+v", snd.sent)
	}
}

func TestFilteredEventsTouchNothing(t *testing.T) {
	st := newFakeStore()
	resp := echoResponder("never")
	snd := &fakeSender{}
	r := New(st, resp, snd, nil, nil, nil, Options{})

	r.Process(context.Background(), messenger.Event{SenderID: "U1", Text: "hi", IsEcho: true})
	r.Process(context.Background(), messenger.Event{SenderID: "U1", Text: "   "})
	r.Process(context.Background(), messenger.Event{SenderID: "", Text: "hi"})

	if st.loads != 0 || resp.calls != 0 || len(snd.sent) != 0 {
		t.Fatalf("filtered events caused side effects: loads=%d backend=%d sends=%d",
			st.loads, resp.calls, len(snd.sent))
	}
}

func TestBackendFailureFallsBack(t *testing.T) {
	st := newFakeStore()
	st.records["U3"] = &conversation.Record{
		ID:     "row-3",
		UserID: "U3",
		Turns:  []conversation.Turn{conversation.NewTurn(conversation.RoleUser, "earlier")},
	}
	resp := &fakeResponder{fn: func([]conversation.Turn, string, string) (*backend.Result, error) {
		return nil, errors.New("backend down")
	}}
	snd := &fakeSender{}
	r := New(st, resp, snd, nil, nil, nil, Options{})

	r.Process(context.Background(), messenger.Event{SenderID: "U3", MessageID: "m3", Text: "are you there?"})

	rec := st.records["U3"]
	if len(rec.Turns) != 3 {
		t.Fatalf("fallback exchange not persisted: %+v", rec.Turns)
	}
	if rec.Turns[1].Content != "are you there?" || rec.Turns[2].Content != FallbackReply {
		t.Fatalf("fallback transcript wrong: %+v", rec.Turns)
	}
	if len(snd.sent) != 1 || snd.sent[0].text != FallbackReply {
		t.Fatalf("fallback reply not sent: %+v", snd.sent)
	}
}

func TestStoreUnavailableDegradesToEmptyHistory(t *testing.T) {
	st := newFakeStore()
	st.loadErr = errors.New("store down")
	var gotPrior []conversation.Turn
	resp := &fakeResponder{fn: func(prior []conversation.Turn, userText, session string) (*backend.Result, error) {
		gotPrior = prior
		return &backend.Result{
			Reply: "ok",
			History: []conversation.Turn{
				conversation.NewTurn(conversation.RoleUser, userText),
				conversation.NewTurn(conversation.RoleAssistant, "ok"),
			},
		}, nil
	}}
	snd := &fakeSender{}
	r := New(st, resp, snd, nil, nil, nil, Options{})

	r.Process(context.Background(), messenger.Event{SenderID: "U4", MessageID: "m4", Text: "hello"})

	if len(gotPrior) != 0 {
		t.Fatalf("degraded load should yield empty history, got %+v", gotPrior)
	}
	if st.creates != 1 {
		t.Fatalf("save after degraded load must create, got %d", st.creates)
	}
	if len(snd.sent) != 1 || snd.sent[0].text != "ok" {
		t.Fatalf("reply wrong: %+v", snd.sent)
	}
}

func TestEveryDependencyFailingStillCompletes(t *testing.T) {
	st := newFakeStore()
	st.loadErr = errors.New("load down")
	st.saveErr = errors.New("save down")
	resp := &fakeResponder{fn: func([]conversation.Turn, string, string) (*backend.Result, error) {
		return nil, errors.New("backend down")
	}}
	snd := &fakeSender{err: errors.New("send down")}
	ntf := &fakeNotifier{}
	r := New(st, resp, snd, ntf, nil, nil, Options{})

	// Must return normally; nothing to assert beyond the attempts being made.
	r.Process(context.Background(), messenger.Event{SenderID: "U5", MessageID: "m5", Text: "hi"})

	if len(snd.sent) != 1 || snd.sent[0].text != FallbackReply {
		t.Fatalf("fallback delivery not attempted: %+v", snd.sent)
	}
	if ntf.calls != 1 {
		t.Fatalf("notify skipped after earlier failures")
	}
}

func TestDuplicateDeliverySkipped(t *testing.T) {
	st := newFakeStore()
	resp := echoResponder("hi")
	snd := &fakeSender{}
	r := New(st, resp, snd, nil, nil, dedupe.New(time.Minute, 16), Options{})

	ev := messenger.Event{SenderID: "U6", MessageID: "m6", Text: "hello"}
	r.Process(context.Background(), ev)
	r.Process(context.Background(), ev)

	if resp.calls != 1 {
		t.Fatalf("duplicate delivery reached the backend %d times", resp.calls)
	}
	if len(snd.sent) != 1 {
		t.Fatalf("duplicate delivery produced %d sends", len(snd.sent))
	}
}

func TestSessionHandlePersisted(t *testing.T) {
	st := newFakeStore()
	resp := &fakeResponder{fn: func(prior []conversation.Turn, userText, session string) (*backend.Result, error) {
		if session != "" {
			t.Fatalf("expected empty session on first call, got %q", session)
		}
		return &backend.Result{
			Reply:   "hi",
			History: []conversation.Turn{conversation.NewTurn(conversation.RoleUser, userText)},
			Session: "thread_42",
		}, nil
	}}
	r := New(st, resp, &fakeSender{}, nil, nil, nil, Options{})

	r.Process(context.Background(), messenger.Event{SenderID: "U7", MessageID: "m7", Text: "hello"})

	if rec := st.records["U7"]; rec.SessionHandle != "thread_42" {
		t.Fatalf("session handle not persisted: %+v", rec)
	}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/abhisek/examdrill/internal/card"
	"github.com/abhisek/examdrill/internal/clock"
	"github.com/abhisek/examdrill/internal/recovery"
	"github.com/abhisek/examdrill/internal/spacedrep"
)

var t0 = time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCards is an in-memory CardRepo.
type fakeCards struct {
	mu      sync.Mutex
	cards   map[string][]card.Card
	updates map[string]spacedrep.Data
}

func newFakeCards(subject string, n int) *fakeCards {
	f := &fakeCards{cards: map[string][]card.Card{}, updates: map[string]spacedrep.Data{}}
	for i := range n {
		id := fmt.Sprintf("card-%02d", i)
		f.cards[subject] = append(f.cards[subject], card.New(id, subject, card.Meaning{
			Direction:   card.GreekToEnglish,
			Word:        fmt.Sprintf("λέξη-%d", i),
			Translation: fmt.Sprintf("word-%d", i),
		}))
	}
	return f
}

func (f *fakeCards) Pool(_ context.Context, subject string) ([]card.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]card.Card(nil), f.cards[subject]...), nil
}

func (f *fakeCards) UpdateSRS(_ context.Context, id string, d spacedrep.Data) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[id] = d
	return nil
}

func (f *fakeCards) update(id string) (spacedrep.Data, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.updates[id]
	return d, ok
}

// fakeServer scores option 0 as correct for every question.
type fakeServer struct {
	mu        sync.Mutex
	sessionID string
	questions []Question
	resumed   bool
	recorded  map[string]RecordedAnswer
	elapsed   float64

	createErr   error
	submitErr   func(call int, req AnswerRequest) error
	completeErr error
	abandonErr  error
	// The first stallCompletes calls to CompleteSession wait for ctx.
	stallCompletes int

	// When block is non-nil SubmitAnswer signals entered and waits on it.
	block   chan struct{}
	entered chan struct{}

	submitCalls   int
	completeCalls int
	abandoned     []string
}

func newFakeServer(n int) *fakeServer {
	f := &fakeServer{sessionID: "srv-1", recorded: map[string]RecordedAnswer{}}
	for i := range n {
		f.questions = append(f.questions, Question{
			ID:      fmt.Sprintf("q%02d", i+1),
			Prompt:  fmt.Sprintf("Question %d", i+1),
			Options: []string{"a", "b", "c", "d"},
		})
	}
	return f
}

func (f *fakeServer) CreateOrResumeSession(_ context.Context, req CreateRequest) (*CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	resp := &CreateResponse{
		SessionID:      f.sessionID,
		Questions:      append([]Question(nil), f.questions...),
		IsResumed:      f.resumed,
		ElapsedSeconds: f.elapsed,
	}
	for _, a := range f.recorded {
		resp.Answers = append(resp.Answers, a)
	}
	return resp, nil
}

func (f *fakeServer) SubmitAnswer(ctx context.Context, req AnswerRequest) (*AnswerResponse, error) {
	f.mu.Lock()
	f.submitCalls++
	call := f.submitCalls
	block, entered, hook := f.block, f.entered, f.submitErr
	f.mu.Unlock()

	if block != nil {
		entered <- struct{}{}
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if hook != nil {
		if err := hook(call, req); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	_, dup := f.recorded[req.QuestionID]
	correct := req.Selection == 0
	xp := 0
	if correct && !dup {
		xp = 5
	}
	if !dup {
		f.recorded[req.QuestionID] = RecordedAnswer{
			QuestionID: req.QuestionID, Selection: req.Selection,
			IsCorrect: correct, XPEarned: xp, ElapsedSeconds: req.ElapsedSeconds,
		}
	}
	return &AnswerResponse{IsCorrect: correct, CorrectOption: 0, XPEarned: xp, Duplicate: dup}, nil
}

func (f *fakeServer) CompleteSession(ctx context.Context, id string, _ float64) (*ServerResult, error) {
	f.mu.Lock()
	f.completeCalls++
	stall := f.completeCalls <= f.stallCompletes
	f.mu.Unlock()
	if stall {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	correct := 0
	for _, a := range f.recorded {
		if a.IsCorrect {
			correct++
		}
	}
	score := float64(correct) / float64(len(f.questions)) * 100
	return &ServerResult{Score: score, Passed: score >= 60, CorrectCount: correct, TotalQuestions: len(f.questions)}, nil
}

func (f *fakeServer) AbandonSession(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned = append(f.abandoned, id)
	return f.abandonErr
}

func (f *fakeServer) calls() (submit, complete int, abandoned []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls, f.completeCalls, append([]string(nil), f.abandoned...)
}

func netErr(op string) error {
	return &NetworkError{Op: op, Err: errors.New("connection reset")}
}

// recordingNotifier collects XP events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []XPEvent
	err    error
}

func (n *recordingNotifier) AnswerRecorded(_ context.Context, ev XPEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// eventLog records observer events.
type eventLog struct {
	mu     sync.Mutex
	events []EventType
}

func (l *eventLog) OnEvent(_ context.Context, ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev.Type)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]EventType(nil), l.events...)
}

type harness struct {
	clock    *clock.Fake
	kv       *recovery.MemoryKV
	cards    *fakeCards
	server   *fakeServer
	notifier *recordingNotifier
	events   *eventLog

	attemptTimeout time.Duration
}

func newHarness() *harness {
	return &harness{
		clock:    clock.NewFake(t0),
		kv:       recovery.NewMemoryKV(),
		cards:    newFakeCards("greek-a2", 5),
		server:   newFakeServer(25),
		notifier: &recordingNotifier{},
		events:   &eventLog{},
	}
}

func (h *harness) machine(t *testing.T) *Machine {
	t.Helper()
	attempt := h.attemptTimeout
	if attempt == 0 {
		attempt = time.Second
	}
	m := NewMachine(Deps{
		Cards:     h.cards,
		Server:    h.server,
		Notifier:  h.notifier,
		Observers: []Observer{h.events},
		Recovery:  recovery.New[Session](h.kv, h.clock, discardLogger()),
		Clock:     h.clock,
		Logger:    discardLogger(),
		Sync: SyncPolicy{
			InitialInterval: time.Millisecond,
			MaxInterval:     2 * time.Millisecond,
			MaxElapsedTime:  time.Second,
			MaxRetries:      3,
			AttemptTimeout:  attempt,
		},
	})
	t.Cleanup(m.Close)
	return m
}

func (h *harness) snapshot(t *testing.T, key string) *recovery.Snapshot[Session] {
	t.Helper()
	snap, err := recovery.New[Session](h.kv, h.clock, discardLogger()).Load(context.Background(), key)
	if err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	return snap
}

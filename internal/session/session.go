package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abhisek/examdrill/internal/clock"
	"github.com/abhisek/examdrill/internal/queue"
	"github.com/abhisek/examdrill/internal/recovery"
	"github.com/abhisek/examdrill/internal/spacedrep"
	"github.com/abhisek/examdrill/internal/timer"
)

// XP awarded locally for review answers.
const (
	XPReviewSuccess = 10
	XPReviewFailure = 0
)

// Deps are the collaborators of a Machine. Only Server is required, and
// only for exam and quiz sessions.
type Deps struct {
	Cards     CardRepo
	Server    Server
	Notifier  Notifier
	Observers []Observer
	Recovery  *recovery.Store[Session]
	Queue     queue.Builder
	Scheduler *spacedrep.Scheduler
	Clock     clock.Clock
	Logger    *slog.Logger
	Sync      SyncPolicy
	NewID     func() string
}

// AnswerOutcome is what Answer recorded.
type AnswerOutcome struct {
	QuestionID string
	// Ignored is set when the call was a no-op: another submission for the
	// same question was still in flight, or the session ended meanwhile.
	Ignored       bool
	Correct       bool
	CorrectKnown  bool
	CorrectOption *int
	XPEarned      int
	Duplicate     bool
	// Queued is set when the server was unreachable and the answer will
	// be synced in the background.
	Queued bool
	SRS    *spacedrep.Data
	Stats  Stats
}

// Machine drives one practice session through its lifecycle:
// idle → active ⇄ paused → completed | abandoned | expired.
// A Machine runs a single session; start a new Machine for the next one.
// All methods are safe for concurrent use.
type Machine struct {
	cards     CardRepo
	server    Server
	notifier  Notifier
	observers []Observer
	recovery  *recovery.Store[Session]
	queue     queue.Builder
	scheduler *spacedrep.Scheduler
	clock     clock.Clock
	logger    *slog.Logger
	sync      SyncPolicy
	newID     func() string

	mu         sync.Mutex
	persistMu  sync.Mutex
	cfg        Config
	starting   bool
	session    *Session
	ctrl       *timer.Controller
	timerFired bool
	inFlight   map[string]bool
	summary    *Summary
	done       chan struct{}
	doneOnce   sync.Once

	outMu      sync.Mutex
	outQueue   []syncJob
	outFailed  []syncJob
	outRunning bool

	bgCtx    context.Context
	bgCancel context.CancelFunc
	wg       sync.WaitGroup
}

// NewMachine creates an idle machine.
func NewMachine(d Deps) *Machine {
	m := &Machine{
		cards:     d.Cards,
		server:    d.Server,
		notifier:  d.Notifier,
		observers: d.Observers,
		recovery:  d.Recovery,
		queue:     d.Queue,
		scheduler: d.Scheduler,
		clock:     d.Clock,
		logger:    d.Logger,
		sync:      d.Sync.withDefaults(),
		newID:     d.NewID,
		inFlight:  make(map[string]bool),
		done:      make(chan struct{}),
	}
	if m.clock == nil {
		m.clock = clock.Real{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.recovery == nil {
		m.recovery = recovery.New[Session](recovery.NewMemoryKV(), m.clock, m.logger)
	}
	if m.queue == nil {
		m.queue = queue.NewBuilder(nil)
	}
	if m.scheduler == nil {
		m.scheduler = spacedrep.NewScheduler(spacedrep.DefaultConfig())
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	m.bgCtx, m.bgCancel = context.WithCancel(context.Background())
	return m
}

// Start begins a session, or resumes the recoverable snapshot for the
// same subject. A snapshot for a different subject fails with
// *RecoveryConflictError unless cfg.DiscardExisting is set.
func (m *Machine) Start(ctx context.Context, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Variant.ServerScored() && m.server == nil {
		return nil, &ValidationError{Field: "variant", Message: string(cfg.Variant) + " sessions need a server"}
	}

	m.mu.Lock()
	if m.session != nil || m.starting {
		st := StatusActive
		if m.session != nil {
			st = m.session.Status
		}
		m.mu.Unlock()
		return nil, &StateError{Action: "start", State: st}
	}
	m.starting = true
	m.cfg = cfg
	m.mu.Unlock()

	s, err := m.recover(ctx, cfg)
	if err == nil && s == nil {
		s, err = m.fresh(ctx, cfg)
	}
	if err != nil {
		m.mu.Lock()
		m.starting = false
		m.mu.Unlock()
		return nil, err
	}
	return m.install(ctx, cfg, s)
}

// recover returns the resumable session for cfg, or nil to start fresh.
func (m *Machine) recover(ctx context.Context, cfg Config) (*Session, error) {
	key := cfg.Variant.RecoveryKey()
	snap, err := m.recovery.Load(ctx, key)
	if err != nil {
		m.logger.Warn("recovery check failed", "key", key, "error", err)
		return nil, nil
	}
	if snap == nil {
		return nil, nil
	}

	prev := &snap.Session
	info := recoveryInfo(snap, m.clock.Now(), cfg.MaxSnapshotAge)
	switch {
	case prev.Status.Terminal() || prev.Variant != cfg.Variant || len(prev.Questions) == 0:
		m.logger.Info("discarding finished snapshot", "key", key, "session_id", prev.ID)
		m.clearKey(ctx, key)
		return nil, nil
	case info.Stale:
		m.logger.Info("discarding stale snapshot", "key", key, "session_id", prev.ID, "saved_at", info.SavedAt)
		m.clearKey(ctx, key)
		return nil, nil
	case prev.SubjectID != cfg.SubjectID:
		if !cfg.DiscardExisting {
			return nil, &RecoveryConflictError{Existing: info}
		}
		m.logger.Info("discarding snapshot of another subject", "key", key, "session_id", prev.ID, "subject", prev.SubjectID)
		m.clearKey(ctx, key)
		m.abandonRemote(prev.Variant, prev.ID)
		return nil, nil
	}

	s := prev.Clone()
	s.IsResumed = true
	if cfg.Variant.ServerScored() {
		return m.reconcile(ctx, cfg, s), nil
	}
	return s, nil
}

// reconcile merges the server's record into a recovered session. If the
// server is unreachable the local snapshot is used as is.
func (m *Machine) reconcile(ctx context.Context, cfg Config, s *Session) *Session {
	resp, err := m.server.CreateOrResumeSession(ctx, createRequest(cfg))
	if err != nil {
		m.logger.Warn("could not reconcile recovered session", "session_id", s.ID, "error", err)
		return s
	}
	if resp.SessionID != s.ID {
		m.logger.Info("server replaced recovered session", "session_id", s.ID, "server_session_id", resp.SessionID)
		fresh := newSession(resp.SessionID, cfg, serverQuestions(resp.Questions), m.clock.Now())
		applyRecorded(fresh, resp.Answers)
		fresh.IsResumed = resp.IsResumed
		return fresh
	}
	applyRecorded(s, resp.Answers)
	return s
}

func (m *Machine) fresh(ctx context.Context, cfg Config) (*Session, error) {
	now := m.clock.Now()
	if cfg.Variant == VariantReview {
		if m.cards == nil {
			return nil, &ValidationError{Field: "variant", Message: "review sessions need a card repository"}
		}
		pool, err := m.cards.Pool(ctx, cfg.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("load cards: %w", err)
		}
		qcfg := cfg.Queue
		qcfg.Randomize = qcfg.Randomize || cfg.Randomize
		cards := m.queue.Build(pool, qcfg, now)
		if cfg.QuestionCount > 0 && len(cards) > cfg.QuestionCount {
			cards = cards[:cfg.QuestionCount]
		}
		if len(cards) == 0 {
			return nil, &ValidationError{Field: "subject", Message: "no cards are due", Err: ErrEmptyQueue}
		}
		return newSession(m.newID(), cfg, reviewQuestions(cards), now), nil
	}

	resp, err := m.server.CreateOrResumeSession(ctx, createRequest(cfg))
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if len(resp.Questions) == 0 {
		return nil, &ValidationError{Field: "subject", Message: "server returned no questions", Err: ErrEmptyQueue}
	}
	s := newSession(resp.SessionID, cfg, serverQuestions(resp.Questions), now)
	if resp.IsResumed {
		s.IsResumed = true
		applyRecorded(s, resp.Answers)
		s.CurrentIndex = firstUnanswered(s)
		if q := s.Current(); q != nil && q.ShownAt == nil {
			q.ShownAt = &now
		}
		if resp.ElapsedSeconds > 0 {
			s.StartedAt = now.Add(-time.Duration(resp.ElapsedSeconds * float64(time.Second)))
		}
	}
	return s, nil
}

func createRequest(cfg Config) CreateRequest {
	return CreateRequest{
		SubjectID:     cfg.SubjectID,
		Variant:       cfg.Variant,
		Language:      cfg.Language,
		QuestionCount: cfg.QuestionCount,
		Randomize:     cfg.Randomize,
	}
}

// install makes s the machine's session, wires the timer, and writes the
// first snapshot.
func (m *Machine) install(ctx context.Context, cfg Config, s *Session) (*Session, error) {
	m.mu.Lock()
	m.starting = false
	now := m.clock.Now()

	if cfg.Variant.Timed() {
		opts := []timer.Option{
			timer.WithOnExpire(func() { m.timerFired = true }),
			timer.WithLogger(m.logger.With("session_id", s.ID)),
		}
		switch {
		case s.Timer != nil:
			m.ctrl = timer.Restore(*s.Timer, m.clock, opts...)
			m.ctrl.Tick()
		case s.IsResumed:
			elapsed := now.Sub(s.StartedAt).Seconds()
			m.ctrl = timer.Restore(timer.State{
				TotalSeconds:     cfg.TotalSeconds,
				RemainingSeconds: float64(cfg.TotalSeconds) - elapsed,
				IsRunning:        true,
				WarningLevel:     timer.WarningNone,
				LastTickAt:       now,
			}, m.clock, opts...)
			m.ctrl.Tick()
		default:
			m.ctrl = timer.New(m.clock, opts...)
			m.ctrl.Start(cfg.TotalSeconds)
		}
		st := m.ctrl.State()
		s.Timer = &st
	}

	s.refresh(now)
	m.session = s
	expired := m.timerFired

	var resend []syncJob
	if m.server != nil && s.Variant.ServerScored() {
		for _, q := range s.Questions {
			if q.Answered && !q.Synced && q.Selection != nil {
				resend = append(resend, syncJob{kind: jobAnswer, answer: AnswerRequest{
					SessionID:      s.ID,
					QuestionID:     q.Question.ID,
					Selection:      q.Selection.Option,
					ElapsedSeconds: q.ElapsedSeconds,
				}})
			}
		}
	}

	evType := EventStarted
	if s.IsResumed {
		evType = EventRecovered
	}
	ev := m.eventLocked(evType, nil, now)
	m.logger.Info("session started",
		"session_id", s.ID, "variant", s.Variant, "subject", s.SubjectID,
		"questions", len(s.Questions), "resumed", s.IsResumed)
	m.unlockAndSave(ctx)

	for _, job := range resend {
		m.enqueue(job)
	}
	m.emit(ctx, ev)

	if expired {
		m.expire(ctx)
	}
	return m.Session(), nil
}

// Answer records sel for the current question. For reviews the card is
// rescheduled; for exams and quizzes the answer is submitted to the
// server. While a submission for the question is in flight, further
// calls are no-ops reported as Ignored.
func (m *Machine) Answer(ctx context.Context, sel Selection) (AnswerOutcome, error) {
	m.mu.Lock()
	if err := m.requireLocked("answer", StatusActive); err != nil {
		m.mu.Unlock()
		return AnswerOutcome{}, err
	}
	if m.ctrl != nil {
		st := m.ctrl.Tick()
		m.session.Timer = &st
		if m.timerFired {
			m.mu.Unlock()
			m.expire(ctx)
			return AnswerOutcome{}, &StateError{Action: "answer", State: StatusExpired}
		}
	}

	q := m.session.Current()
	if q == nil {
		m.mu.Unlock()
		return AnswerOutcome{}, &ValidationError{Field: "question", Message: "no current question"}
	}
	if m.inFlight[q.Question.ID] {
		id := q.Question.ID
		m.mu.Unlock()
		m.logger.Debug("answer already in flight", "question_id", id)
		return AnswerOutcome{QuestionID: id, Ignored: true}, nil
	}
	if q.Answered {
		m.mu.Unlock()
		return AnswerOutcome{}, &ValidationError{Field: "question", Message: "already answered"}
	}
	if err := validateSelection(m.session.Variant, q, sel); err != nil {
		m.mu.Unlock()
		return AnswerOutcome{}, err
	}

	now := m.clock.Now()
	elapsed := 0.0
	if q.ShownAt != nil {
		elapsed = max(0, now.Sub(*q.ShownAt).Seconds())
	}
	if m.session.Variant == VariantReview {
		return m.answerReviewLocked(ctx, q, sel, now, elapsed)
	}
	return m.answerServerLocked(ctx, q, sel, now, elapsed)
}

func validateSelection(v Variant, q *QuestionState, sel Selection) error {
	if v == VariantReview {
		if q.Card == nil {
			return &ValidationError{Field: "question", Message: "review question has no card"}
		}
		if !sel.Rating.Valid() {
			return &ValidationError{Field: "rating", Message: fmt.Sprintf("unknown rating %q", sel.Rating)}
		}
		return nil
	}
	if sel.Option < 0 || (len(q.Question.Options) > 0 && sel.Option >= len(q.Question.Options)) {
		return &ValidationError{Field: "option", Message: fmt.Sprintf("option %d out of range", sel.Option)}
	}
	return nil
}

func (m *Machine) record(q *QuestionState, sel Selection, now time.Time, elapsed float64) {
	q.Answered = true
	q.Selection = &sel
	q.AnsweredAt = &now
	q.ElapsedSeconds = elapsed
	limit := m.session.QuestionTimeLimit
	q.OverTime = limit > 0 && elapsed > limit
}

func (m *Machine) answerReviewLocked(ctx context.Context, q *QuestionState, sel Selection, now time.Time, elapsed float64) (AnswerOutcome, error) {
	next := m.scheduler.Schedule(q.Card.SRS, sel.Rating, now)
	q.Card.SRS = next
	m.record(q, sel, now, elapsed)
	q.Correct = sel.Rating.Success()
	q.CorrectKnown = true
	q.Synced = true
	q.XPEarned = XPReviewFailure
	if q.Correct {
		q.XPEarned = XPReviewSuccess
	}
	m.session.refresh(now)

	srs := next.Clone()
	out := AnswerOutcome{
		QuestionID:   q.Question.ID,
		Correct:      q.Correct,
		CorrectKnown: true,
		XPEarned:     q.XPEarned,
		SRS:          &srs,
		Stats:        m.session.Stats,
	}
	cardID := q.Card.ID
	ev := m.eventLocked(EventAnswered, q, now)
	xp := m.xpEventLocked(q, now)
	m.unlockAndSave(ctx)

	if m.cards != nil {
		if err := m.cards.UpdateSRS(ctx, cardID, next); err != nil {
			m.logger.Warn("could not store card schedule", "card_id", cardID, "error", err)
		}
	}
	m.emit(ctx, ev)
	m.notify(xp)
	return out, nil
}

func (m *Machine) answerServerLocked(ctx context.Context, q *QuestionState, sel Selection, now time.Time, elapsed float64) (AnswerOutcome, error) {
	id := q.Question.ID
	req := AnswerRequest{
		SessionID:      m.session.ID,
		QuestionID:     id,
		Selection:      sel.Option,
		ElapsedSeconds: elapsed,
	}
	m.inFlight[id] = true
	m.mu.Unlock()

	resp, err := m.server.SubmitAnswer(ctx, req)

	m.mu.Lock()
	delete(m.inFlight, id)
	if m.session.Status.Terminal() {
		status := m.session.Status
		m.mu.Unlock()
		m.logger.Info("answer arrived after session ended", "question_id", id, "status", status, "error", err)
		return AnswerOutcome{QuestionID: id, Ignored: true}, nil
	}
	if err != nil && !IsNetwork(err) {
		m.mu.Unlock()
		return AnswerOutcome{}, fmt.Errorf("submit answer: %w", err)
	}

	q = m.session.question(id)
	m.record(q, sel, now, elapsed)
	out := AnswerOutcome{QuestionID: id}
	var (
		job *syncJob
		xp  *XPEvent
	)
	if err != nil {
		q.CorrectKnown = false
		q.Synced = false
		out.Queued = true
		job = &syncJob{kind: jobAnswer, answer: req}
		m.logger.Warn("answer not synced, will retry", "session_id", req.SessionID, "question_id", id, "error", err)
	} else {
		applyVerdict(q, resp)
		out.Correct = q.Correct
		out.CorrectKnown = true
		out.CorrectOption = cloneInt(q.CorrectOption)
		out.XPEarned = q.XPEarned
		out.Duplicate = resp.Duplicate
		if !resp.Duplicate {
			xp = m.xpEventLocked(q, now)
		}
	}
	m.session.refresh(m.clock.Now())
	out.Stats = m.session.Stats
	ev := m.eventLocked(EventAnswered, q, now)
	m.unlockAndSave(ctx)

	if job != nil {
		m.enqueue(*job)
	}
	m.emit(ctx, ev)
	m.notify(xp)
	return out, nil
}

// Next moves to the following question. It reports false when the
// current question is the last one; the caller should then Complete.
func (m *Machine) Next(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if err := m.requireLocked("advance", StatusActive); err != nil {
		m.mu.Unlock()
		return false, err
	}
	s := m.session
	if q := s.Current(); q == nil || !q.Answered {
		m.mu.Unlock()
		return false, &ValidationError{Field: "question", Message: "current question is not answered"}
	}
	if s.CurrentIndex >= len(s.Questions)-1 {
		m.mu.Unlock()
		return false, nil
	}
	now := m.clock.Now()
	s.CurrentIndex++
	if q := s.Current(); q.ShownAt == nil {
		q.ShownAt = &now
	}
	s.refresh(now)
	m.unlockAndSave(ctx)
	return true, nil
}

// Pause freezes the session and its timer in one step.
func (m *Machine) Pause(ctx context.Context) error {
	m.mu.Lock()
	if err := m.requireLocked("pause", StatusActive); err != nil {
		m.mu.Unlock()
		return err
	}
	s := m.session
	now := m.clock.Now()
	if m.ctrl != nil {
		st := m.ctrl.Pause()
		s.Timer = &st
		if m.timerFired {
			m.mu.Unlock()
			m.expire(ctx)
			return &StateError{Action: "pause", State: StatusExpired}
		}
		if st.PausedAt != nil {
			now = *st.PausedAt
		}
	}
	s.PausedAt = &now
	s.Status = StatusPaused
	s.refresh(now)
	ev := m.eventLocked(EventPaused, nil, now)
	m.unlockAndSave(ctx)
	m.emit(ctx, ev)
	return nil
}

// Resume continues a paused session. Time spent paused is not charged to
// the timer or to the current question.
func (m *Machine) Resume(ctx context.Context) error {
	m.mu.Lock()
	if err := m.requireLocked("resume", StatusPaused); err != nil {
		m.mu.Unlock()
		return err
	}
	s := m.session
	now := m.clock.Now()
	m.closePauseLocked(now)
	s.Status = StatusActive
	if m.ctrl != nil {
		st := m.ctrl.Resume()
		s.Timer = &st
	}
	s.refresh(now)
	ev := m.eventLocked(EventResumed, nil, now)
	m.unlockAndSave(ctx)
	m.emit(ctx, ev)
	return nil
}

func (m *Machine) closePauseLocked(now time.Time) {
	s := m.session
	if s.PausedAt == nil {
		return
	}
	if d := now.Sub(*s.PausedAt); d > 0 {
		s.PausedSeconds += d.Seconds()
		if q := s.Current(); q != nil && !q.Answered && q.ShownAt != nil {
			shown := q.ShownAt.Add(d)
			q.ShownAt = &shown
		}
	}
	s.PausedAt = nil
}

// Tick advances the countdown of a timed session. When the countdown
// reaches zero the session is completed as expired.
func (m *Machine) Tick(ctx context.Context) (*timer.State, error) {
	m.mu.Lock()
	if m.session == nil || m.ctrl == nil {
		m.mu.Unlock()
		return nil, nil
	}
	if m.session.Status.Terminal() {
		st := m.session.Status
		m.mu.Unlock()
		return nil, &StateError{Action: "tick", State: st}
	}
	prev := m.ctrl.State().WarningLevel
	st := m.ctrl.Tick()
	m.session.Timer = &st
	if m.timerFired {
		m.mu.Unlock()
		m.expire(ctx)
		return &st, nil
	}
	if st.WarningLevel != prev {
		m.logger.Info("time warning", "session_id", m.session.ID, "level", st.WarningLevel)
		m.session.refresh(m.clock.Now())
		m.unlockAndSave(ctx)
		return &st, nil
	}
	m.mu.Unlock()
	return &st, nil
}

func (m *Machine) expire(ctx context.Context) {
	if _, err := m.Complete(ctx, true); err != nil {
		m.logger.Debug("expiry after session ended", "error", err)
	}
}

// Complete ends the session and returns its Summary. Without
// timerExpired every question must be answered; with it the session ends
// as expired and unanswered questions are flagged in the Summary.
func (m *Machine) Complete(ctx context.Context, timerExpired bool) (*Summary, error) {
	m.mu.Lock()
	s := m.session
	switch {
	case s == nil:
		m.mu.Unlock()
		return nil, &StateError{Action: "complete", State: StatusIdle}
	case timerExpired:
		if s.Status != StatusActive && s.Status != StatusPaused {
			m.mu.Unlock()
			return nil, &StateError{Action: "expire", State: s.Status}
		}
	default:
		if err := m.requireLocked("complete", StatusActive); err != nil {
			m.mu.Unlock()
			return nil, err
		}
		if n := s.Unanswered(); n > 0 {
			m.mu.Unlock()
			return nil, &ValidationError{Field: "questions", Message: fmt.Sprintf("%d questions unanswered", n)}
		}
	}

	now := m.clock.Now()
	m.closePauseLocked(now)
	if m.ctrl != nil {
		if !timerExpired {
			m.ctrl.Tick()
		}
		m.ctrl.Stop()
		st := m.ctrl.State()
		s.Timer = &st
	}
	evType := EventCompleted
	s.Status = StatusCompleted
	if timerExpired {
		evType = EventExpired
		s.Status = StatusExpired
		s.TimerExpired = true
	}
	s.EndedAt = &now
	s.refresh(now)

	serverScored := s.Variant.ServerScored() && m.server != nil
	sum := BuildSummary(s)
	busy := serverScored && m.outboxBusy()
	if busy {
		sum.SyncPending = true
	}
	m.summary = sum
	sessionID, duration, key := s.ID, sum.Duration, s.Variant.RecoveryKey()
	ev := m.eventLocked(evType, nil, now)
	m.logger.Info("session finished",
		"session_id", sessionID, "status", s.Status,
		"answered", s.Stats.QuestionsAnswered, "correct", s.Stats.CorrectCount)
	m.unlockAndClear(ctx, key)

	job := syncJob{kind: jobComplete, sessionID: sessionID, elapsed: duration}
	retry := busy
	if serverScored && !busy {
		if err := m.attempt(ctx, job); err != nil {
			if IsNetwork(err) {
				m.markSummaryPending()
				retry = true
			} else {
				m.logger.Error("server rejected completion", "session_id", sessionID, "error", err)
			}
		}
	}
	// The caller sees the summary as of completion; a late verdict shows
	// up in later calls to Summary.
	out := m.Summary()
	if retry {
		m.enqueue(job)
	}

	m.closeDone()
	m.emit(ctx, ev)
	return out, nil
}

func (m *Machine) markSummaryPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.summary != nil && !m.summary.Verified {
		sum := m.summary.clone()
		sum.SyncPending = true
		m.summary = sum
	}
}

// Abandon discards the session without a Summary. The server is told in
// the background; failures there, or of answers still in flight, are
// logged and never returned.
func (m *Machine) Abandon(ctx context.Context) error {
	m.mu.Lock()
	s := m.session
	if s == nil {
		m.mu.Unlock()
		return &StateError{Action: "abandon", State: StatusIdle}
	}
	if s.Status != StatusActive && s.Status != StatusPaused {
		st := s.Status
		m.mu.Unlock()
		return &StateError{Action: "abandon", State: st}
	}
	now := m.clock.Now()
	m.closePauseLocked(now)
	if m.ctrl != nil {
		m.ctrl.Stop()
		st := m.ctrl.State()
		s.Timer = &st
	}
	s.Status = StatusAbandoned
	s.EndedAt = &now
	s.refresh(now)
	ev := m.eventLocked(EventAbandoned, nil, now)
	variant, id, key := s.Variant, s.ID, s.Variant.RecoveryKey()
	m.logger.Info("session abandoned", "session_id", id, "answered", s.Stats.QuestionsAnswered)
	m.unlockAndClear(ctx, key)

	m.outMu.Lock()
	m.outQueue = nil
	m.outFailed = nil
	m.outMu.Unlock()

	m.abandonRemote(variant, id)
	m.closeDone()
	m.emit(ctx, ev)
	return nil
}

func (m *Machine) abandonRemote(v Variant, sessionID string) {
	if m.server == nil || !v.ServerScored() {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(m.bgCtx, m.sync.AttemptTimeout)
		defer cancel()
		if err := m.server.AbandonSession(ctx, sessionID); err != nil {
			m.logger.Warn("could not abandon session on server", "session_id", sessionID, "error", err)
		}
	}()
}

// CheckRecovery reports the recoverable snapshot for cfg.Variant without
// touching it. Staleness is judged by cfg.MaxSnapshotAge, as in Start.
// It returns nil when there is none.
func (m *Machine) CheckRecovery(ctx context.Context, cfg Config) (*RecoveryInfo, error) {
	cfg = cfg.withDefaults()
	snap, err := m.recovery.Load(ctx, cfg.Variant.RecoveryKey())
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, nil
	}
	info := recoveryInfo(snap, m.clock.Now(), cfg.MaxSnapshotAge)
	return &info, nil
}

// DiscardRecovery deletes the snapshot for variant and tells the server
// the session was abandoned.
func (m *Machine) DiscardRecovery(ctx context.Context, v Variant) error {
	snap, err := m.recovery.Load(ctx, v.RecoveryKey())
	if err != nil {
		return err
	}
	if err := m.recovery.Clear(ctx, v.RecoveryKey()); err != nil {
		return err
	}
	if snap != nil && !snap.Session.Status.Terminal() {
		m.abandonRemote(v, snap.Session.ID)
	}
	return nil
}

func recoveryInfo(snap *recovery.Snapshot[Session], now time.Time, maxAge time.Duration) RecoveryInfo {
	s := &snap.Session
	return RecoveryInfo{
		SessionID: s.ID,
		SubjectID: s.SubjectID,
		Variant:   s.Variant,
		Status:    s.Status,
		Answered:  len(s.Questions) - s.Unanswered(),
		Total:     len(s.Questions),
		SavedAt:   snap.SavedAt,
		Stale:     maxAge > 0 && snap.Age(now) > maxAge,
	}
}

// Session returns a copy of the current session, or nil before Start.
func (m *Machine) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

// Status returns the lifecycle state.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return StatusIdle
	}
	return m.session.Status
}

// Summary returns the outcome once the session has completed or
// expired, and nil otherwise.
func (m *Machine) Summary() *Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.summary == nil {
		return nil
	}
	return m.summary.clone()
}

// SyncPending reports whether any answer or completion has not reached
// the server yet.
func (m *Machine) SyncPending() bool {
	m.mu.Lock()
	pending := m.session != nil && m.session.SyncPending
	m.mu.Unlock()
	return pending || m.PendingSync() > 0
}

// Done is closed when the session reaches a terminal state.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until background work (syncing, notifications) finishes.
func (m *Machine) Wait() {
	m.wg.Wait()
}

// Close cancels background work and waits for it to stop.
func (m *Machine) Close() {
	m.bgCancel()
	m.wg.Wait()
}

func (m *Machine) closeDone() {
	m.doneOnce.Do(func() { close(m.done) })
}

func (m *Machine) requireLocked(action string, want Status) error {
	if m.session == nil {
		return &StateError{Action: action, State: StatusIdle}
	}
	if m.session.Status != want {
		return &StateError{Action: action, State: m.session.Status}
	}
	return nil
}

// unlockAndSave snapshots the session, releases m.mu, and writes the
// snapshot. Writes are serialized in mutation order. A failed write is
// logged; the next mutation writes the full session again.
func (m *Machine) unlockAndSave(ctx context.Context) {
	snap := m.session.Clone()
	key := snap.Variant.RecoveryKey()
	m.persistMu.Lock()
	m.mu.Unlock()
	defer m.persistMu.Unlock()

	if err := m.recovery.Save(context.WithoutCancel(ctx), key, *snap); err != nil {
		m.logger.Warn("snapshot write failed", "session_id", snap.ID, "key", key, "error", err)
	}
}

func (m *Machine) unlockAndClear(ctx context.Context, key string) {
	m.persistMu.Lock()
	m.mu.Unlock()
	defer m.persistMu.Unlock()
	m.clearKey(ctx, key)
}

func (m *Machine) clearKey(ctx context.Context, key string) {
	if err := m.recovery.Clear(context.WithoutCancel(ctx), key); err != nil {
		m.logger.Warn("snapshot clear failed", "key", key, "error", err)
	}
}

func (m *Machine) eventLocked(t EventType, q *QuestionState, now time.Time) Event {
	s := m.session
	ev := Event{
		Type:      t,
		SessionID: s.ID,
		SubjectID: s.SubjectID,
		Variant:   s.Variant,
		Status:    s.Status,
		Stats:     s.Stats,
		At:        now,
	}
	if q != nil {
		ev.QuestionID = q.Question.ID
		ev.Correct = q.Correct
		ev.Elapsed = q.ElapsedSeconds
	}
	return ev
}

func (m *Machine) xpEventLocked(q *QuestionState, now time.Time) *XPEvent {
	return &XPEvent{
		SessionID:  m.session.ID,
		SubjectID:  m.session.SubjectID,
		Variant:    m.session.Variant,
		QuestionID: q.Question.ID,
		Correct:    q.Correct,
		XPEarned:   q.XPEarned,
		At:         now,
	}
}

func (m *Machine) emit(ctx context.Context, ev Event) {
	for _, o := range m.observers {
		o.OnEvent(ctx, ev)
	}
}

func (m *Machine) emitSyncFailed(job syncJob) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return
	}
	ev := m.eventLocked(EventSyncFailed, m.session.question(job.answer.QuestionID), m.clock.Now())
	m.mu.Unlock()
	m.emit(m.bgCtx, ev)
}

// notify sends ev to the XP collaborator without waiting.
func (m *Machine) notify(ev *XPEvent) {
	if m.notifier == nil || ev == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ctx, cancel := context.WithTimeout(m.bgCtx, m.sync.AttemptTimeout)
		defer cancel()
		if err := m.notifier.AnswerRecorded(ctx, *ev); err != nil {
			m.logger.Warn("xp notification failed", "session_id", ev.SessionID, "question_id", ev.QuestionID, "error", err)
		}
	}()
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

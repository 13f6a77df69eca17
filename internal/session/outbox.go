package session

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// SyncPolicy controls background retries of server calls that failed
// with a NetworkError.
type SyncPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
	// AttemptTimeout bounds each server call.
	AttemptTimeout time.Duration
}

// DefaultSyncPolicy returns the retry policy used when none is set.
func DefaultSyncPolicy() SyncPolicy {
	return SyncPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		MaxElapsedTime:  5 * time.Minute,
		MaxRetries:      8,
		AttemptTimeout:  10 * time.Second,
	}
}

func (p SyncPolicy) withDefaults() SyncPolicy {
	d := DefaultSyncPolicy()
	if p.InitialInterval <= 0 {
		p.InitialInterval = d.InitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = d.MaxInterval
	}
	if p.MaxElapsedTime <= 0 {
		p.MaxElapsedTime = d.MaxElapsedTime
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = d.AttemptTimeout
	}
	return p
}

func (p SyncPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.MaxElapsedTime = p.MaxElapsedTime
	var b backoff.BackOff = exp
	if p.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, p.MaxRetries)
	}
	return backoff.WithContext(b, ctx)
}

type jobKind string

const (
	jobAnswer   jobKind = "answer"
	jobComplete jobKind = "complete"
)

// syncJob is a server call waiting to be replayed.
type syncJob struct {
	kind      jobKind
	answer    AnswerRequest
	sessionID string
	elapsed   float64
}

// enqueue appends job to the outbox and starts the drain worker if it is
// not already running. Jobs are replayed in order.
func (m *Machine) enqueue(job syncJob) {
	m.outMu.Lock()
	m.outQueue = append(m.outQueue, job)
	start := !m.outRunning
	m.outRunning = true
	m.outMu.Unlock()

	if start {
		m.wg.Add(1)
		go m.drain()
	}
}

func (m *Machine) drain() {
	defer m.wg.Done()
	for {
		m.outMu.Lock()
		if len(m.outQueue) == 0 || m.bgCtx.Err() != nil {
			m.outFailed = append(m.outFailed, m.outQueue...)
			m.outQueue = nil
			m.outRunning = false
			m.outMu.Unlock()
			return
		}
		job := m.outQueue[0]
		m.outQueue = m.outQueue[1:]
		m.outMu.Unlock()

		err := backoff.RetryNotify(
			func() error { return m.attempt(m.bgCtx, job) },
			m.sync.backOff(m.bgCtx),
			func(err error, wait time.Duration) {
				m.logger.Warn("sync attempt failed",
					"kind", job.kind,
					"question_id", job.answer.QuestionID,
					"retry_in", wait,
					"error", err)
			},
		)
		if err != nil {
			m.logger.Error("sync gave up", "kind", job.kind, "question_id", job.answer.QuestionID, "error", err)
			m.outMu.Lock()
			m.outFailed = append(m.outFailed, job)
			m.outMu.Unlock()
			m.emitSyncFailed(job)
		}
	}
}

// attempt runs one server call for job, bounded by AttemptTimeout.
// Errors other than NetworkError are permanent and stop the retry loop.
func (m *Machine) attempt(parent context.Context, job syncJob) error {
	ctx, cancel := context.WithTimeout(parent, m.sync.AttemptTimeout)
	defer cancel()

	switch job.kind {
	case jobAnswer:
		resp, err := m.server.SubmitAnswer(ctx, job.answer)
		if err != nil {
			return classify(parent, job.kind, err)
		}
		m.applySynced(job.answer, resp)
	case jobComplete:
		res, err := m.server.CompleteSession(ctx, job.sessionID, job.elapsed)
		if err != nil {
			return classify(parent, job.kind, err)
		}
		m.applyServerResult(res)
	}
	return nil
}

// classify marks err permanent unless it is transient. A call that ran
// out its own AttemptTimeout while parent is still live counts as a
// NetworkError.
func classify(parent context.Context, kind jobKind, err error) error {
	if IsNetwork(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return &NetworkError{Op: string(kind), Err: err}
	}
	return backoff.Permanent(err)
}

// outboxBusy reports whether jobs are queued or being replayed.
func (m *Machine) outboxBusy() bool {
	m.outMu.Lock()
	defer m.outMu.Unlock()
	return m.outRunning || len(m.outQueue) > 0
}

// PendingSync returns the number of server calls not yet delivered.
func (m *Machine) PendingSync() int {
	m.outMu.Lock()
	defer m.outMu.Unlock()
	return len(m.outQueue) + len(m.outFailed)
}

// SubmitPending replays every server call whose background retries were
// exhausted, once each, in order. It is the bulk fallback for offline or
// recovered sessions; per-answer submission remains the primary path.
func (m *Machine) SubmitPending(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	m.outMu.Lock()
	jobs := m.outFailed
	m.outFailed = nil
	m.outMu.Unlock()

	var (
		errs  []error
		retry []syncJob
	)
	for _, job := range jobs {
		if err := m.attempt(ctx, job); err != nil {
			var perm *backoff.PermanentError
			if errors.As(err, &perm) {
				err = perm.Err
			}
			errs = append(errs, err)
			retry = append(retry, job)
		}
	}
	if len(retry) > 0 {
		m.outMu.Lock()
		m.outFailed = append(retry, m.outFailed...)
		m.outMu.Unlock()
	}
	return errors.Join(errs...)
}

// applySynced records the server's verdict for an answer that was first
// stored optimistically.
func (m *Machine) applySynced(req AnswerRequest, resp *AnswerResponse) {
	m.mu.Lock()
	s := m.session
	if s == nil || s.ID != req.SessionID {
		m.mu.Unlock()
		return
	}
	q := s.question(req.QuestionID)
	if q == nil || q.Synced {
		m.mu.Unlock()
		return
	}
	now := m.clock.Now()
	applyVerdict(q, resp)
	s.refresh(now)
	ev := m.eventLocked(EventSynced, q, now)
	var xp *XPEvent
	if !resp.Duplicate {
		xp = m.xpEventLocked(q, now)
	}

	if s.Status.Terminal() {
		m.mu.Unlock()
	} else {
		m.unlockAndSave(m.bgCtx)
	}
	m.emit(m.bgCtx, ev)
	m.notify(xp)
}

// applyServerResult stores a completion verdict delivered late.
func (m *Machine) applyServerResult(res *ServerResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.summary != nil {
		sum := m.summary.clone()
		sum.apply(res)
		sum.SyncPending = false
		m.summary = sum
	}
}

func applyVerdict(q *QuestionState, resp *AnswerResponse) {
	q.Correct = resp.IsCorrect
	q.CorrectKnown = true
	opt := resp.CorrectOption
	q.CorrectOption = &opt
	q.XPEarned = resp.XPEarned
	q.Synced = true
}

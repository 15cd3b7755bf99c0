// Package session runs one student's timed attempt on the client side: it owns the
// answer state, the countdown, the autosave schedule and the submit latch.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coachline/testdesk/internal/exam"
	"github.com/coachline/testdesk/internal/grading"
)

type State int

const (
	NotStarted State = iota
	InProgress
	Submitting
	Submitted
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Submitting:
		return "submitting"
	case Submitted:
		return "submitted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrNotInProgress    = errors.New("attempt is not in progress")
	ErrSubmitInFlight   = errors.New("submission already in progress")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrUnknownQuestion  = errors.New("question is not part of this exam")

	// ErrAutosave wraps a failed save. The attempt continues.
	ErrAutosave = errors.New("autosave failed")
)

// Backend is the server side of an attempt.
type Backend interface {
	Paper(ctx context.Context, examID int64) (exam.Paper, error)
	SaveAnswer(ctx context.Context, examID int64, a exam.Answer) error
	SaveAll(ctx context.Context, examID int64, answers []exam.Answer) error
	Submit(ctx context.Context, sub grading.Submission) (grading.Summary, error)
}

const (
	DefaultTickInterval     = time.Second
	DefaultAutosaveInterval = 30 * time.Second
)

type Option func(*Session)

func WithClock(now func() time.Time) Option       { return func(s *Session) { s.now = now } }
func WithLogger(l *slog.Logger) Option            { return func(s *Session) { s.log = l } }
func WithTickInterval(d time.Duration) Option     { return func(s *Session) { s.tickEvery = d } }
func WithAutosaveInterval(d time.Duration) Option { return func(s *Session) { s.saveEvery = d } }
func WithDefaultDuration(d time.Duration) Option  { return func(s *Session) { s.defaultDuration = d } }

type Session struct {
	backend   Backend
	studentID string
	examID    int64

	now             func() time.Time
	log             *slog.Logger
	tickEvery       time.Duration
	saveEvery       time.Duration
	defaultDuration time.Duration

	mu          sync.Mutex
	state       State
	autoFired   bool
	paper       exam.Paper
	order       []int64
	answers     map[int64]*exam.Option
	startedAt   time.Time
	deadline    time.Time
	lastSavedAt time.Time
	lastErr     error
	summary     grading.Summary
	done        chan struct{}
}

func New(backend Backend, studentID string, examID int64, opts ...Option) *Session {
	s := &Session{
		backend:         backend,
		studentID:       studentID,
		examID:          examID,
		now:             time.Now,
		log:             slog.Default(),
		tickEvery:       DefaultTickInterval,
		saveEvery:       DefaultAutosaveInterval,
		defaultDuration: 180 * time.Minute,
		done:            make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start loads the paper, restores saved selections and starts the clock.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != NotStarted {
		s.mu.Unlock()
		return fmt.Errorf("start: %w", ErrNotInProgress)
	}
	s.mu.Unlock()

	p, err := s.backend.Paper(ctx, s.examID)
	if err != nil {
		return fmt.Errorf("load paper: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != NotStarted {
		return fmt.Errorf("start: %w", ErrNotInProgress)
	}
	s.paper = p
	s.order = make([]int64, len(p.Questions))
	s.answers = make(map[int64]*exam.Option, len(p.Questions))
	for i, q := range p.Questions {
		s.order[i] = q.ID
		s.answers[q.ID] = p.Answers[q.ID]
	}
	dur := time.Duration(p.Exam.DurationMinutes) * time.Minute
	if dur <= 0 {
		dur = s.defaultDuration
	}
	s.startedAt = s.now()
	s.deadline = s.startedAt.Add(dur)
	s.state = InProgress
	return nil
}

// Remaining is recomputed from the deadline on every call, so a suspended
// process catches up instead of drifting. Never negative.
func (s *Session) Remaining(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingLocked(now)
}

func (s *Session) remainingLocked(now time.Time) time.Duration {
	if s.state == NotStarted {
		return 0
	}
	d := s.deadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Select records the answer for one question and saves it immediately.
// A nil option clears the selection. Save failures come back wrapped in ErrAutosave;
// the answer stays recorded locally and goes out with the next bulk save.
func (s *Session) Select(ctx context.Context, questionID int64, opt *exam.Option) error {
	if opt != nil && !opt.Valid() {
		return fmt.Errorf("%w: option %q", exam.ErrInvalidRequest, *opt)
	}
	s.mu.Lock()
	if s.state != InProgress {
		s.mu.Unlock()
		return ErrNotInProgress
	}
	if _, ok := s.answers[questionID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownQuestion, questionID)
	}
	s.answers[questionID] = opt
	s.mu.Unlock()

	err := s.backend.SaveAnswer(ctx, s.examID, exam.Answer{QuestionID: questionID, Selected: opt})
	return s.recordSave("answer", err)
}

// AutosaveNow writes the full answer set, unanswered questions included as null.
func (s *Session) AutosaveNow(ctx context.Context) error {
	s.mu.Lock()
	if s.state != InProgress {
		s.mu.Unlock()
		return ErrNotInProgress
	}
	answers := s.snapshotLocked()
	s.mu.Unlock()

	err := s.backend.SaveAll(ctx, s.examID, answers)
	return s.recordSave("periodic", err)
}

func (s *Session) recordSave(kind string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = fmt.Errorf("%w: %w", ErrAutosave, err)
		s.log.Warn("autosave failed", "kind", kind, "exam_id", s.examID, "err", err)
		return s.lastErr
	}
	s.lastSavedAt = s.now()
	s.lastErr = nil
	return nil
}

// Submit sends the answers for scoring. Only one submission runs at a time; if it
// fails the session returns to InProgress and Submit may be called again.
func (s *Session) Submit(ctx context.Context) (grading.Summary, error) {
	sub, err := s.beginSubmit(false, time.Time{})
	if err != nil {
		return grading.Summary{}, err
	}
	return s.finishSubmit(ctx, sub)
}

// Tick advances the countdown. When time is up it submits, once per session: a
// failed automatic submission is not retried by later ticks, only by Submit.
func (s *Session) Tick(ctx context.Context, now time.Time) (fired bool, err error) {
	sub, err := s.beginSubmit(true, now)
	if err != nil {
		return false, nil
	}
	s.log.Info("time is up, submitting", "exam_id", s.examID)
	_, err = s.finishSubmit(ctx, sub)
	return true, err
}

var errNotDue = errors.New("not due")

func (s *Session) beginSubmit(auto bool, now time.Time) (grading.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Submitting:
		return grading.Submission{}, ErrSubmitInFlight
	case Submitted:
		return grading.Submission{}, ErrAlreadySubmitted
	case InProgress:
	default:
		return grading.Submission{}, ErrNotInProgress
	}
	if auto {
		if s.autoFired || s.remainingLocked(now) > 0 {
			return grading.Submission{}, errNotDue
		}
		s.autoFired = true
	}
	s.state = Submitting
	return grading.Submission{
		StudentID: s.studentID,
		ExamID:    s.examID,
		StartedAt: s.startedAt,
		Responses: s.snapshotLocked(),
	}, nil
}

func (s *Session) finishSubmit(ctx context.Context, sub grading.Submission) (grading.Summary, error) {
	sum, err := s.backend.Submit(ctx, sub)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = InProgress
		s.lastErr = err
		s.log.Error("submit failed", "exam_id", s.examID, "err", err)
		return grading.Summary{}, err
	}
	s.state = Submitted
	s.summary = sum
	s.lastErr = nil
	close(s.done)
	return sum, nil
}

func (s *Session) snapshotLocked() []exam.Answer {
	out := make([]exam.Answer, len(s.order))
	for i, id := range s.order {
		out[i] = exam.Answer{QuestionID: id, Selected: s.answers[id]}
	}
	return out
}

// Run drives the countdown and periodic autosave until the attempt is submitted
// or ctx ends. Select and Submit may be called concurrently from other goroutines.
func (s *Session) Run(ctx context.Context) error {
	if s.State() == NotStarted {
		return ErrNotInProgress
	}
	tick := time.NewTicker(s.tickEvery)
	defer tick.Stop()
	save := time.NewTicker(s.saveEvery)
	defer save.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-tick.C:
			// failures are logged and kept in LastError; manual Submit still works
			_, _ = s.Tick(ctx, s.now())
		case <-save.C:
			_ = s.AutosaveNow(ctx)
		}
	}
}

// Done is closed once the attempt has been submitted.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Paper() exam.Paper {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paper
}

func (s *Session) Answers() []exam.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) StartedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startedAt
}

// LastSavedAt is the time of the most recent successful save, zero if none.
func (s *Session) LastSavedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSavedAt
}

// LastError is the most recent save or submit failure, cleared by the next success.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) Summary() (grading.Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary, s.state == Submitted
}

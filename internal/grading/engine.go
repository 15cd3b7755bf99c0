package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/coachline/testdesk/internal/exam"
	"github.com/coachline/testdesk/internal/metrics"
	syncx "github.com/coachline/testdesk/internal/sync"
)

type Submission struct {
	StudentID string        `json:"student_id" validate:"required"`
	ExamID    int64         `json:"exam_id" validate:"required"`
	StartedAt time.Time     `json:"started_at" validate:"required"`
	Responses []exam.Answer `json:"responses" validate:"required,dive"`
}

// Summary is the aggregate result returned to the caller.
type Summary struct {
	ExamID           int64 `json:"exam_id"`
	Score            int   `json:"score"`
	TotalQuestions   int   `json:"total_questions"`
	Correct          int   `json:"correct"`
	Wrong            int   `json:"wrong"`
	Unanswered       int   `json:"unanswered"`
	TimeTakenMinutes int   `json:"time_taken_minutes"`
}

// EventSink receives a record of each successful submission.
type EventSink interface {
	Append(ctx context.Context, typ, key string, payload any) error
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }
func WithEvents(s EventSink) Option         { return func(e *Engine) { e.events = s } }
func WithLogger(l *slog.Logger) Option      { return func(e *Engine) { e.log = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// Engine scores submissions and persists the responses and the attempt record.
// It keeps no state between calls.
type Engine struct {
	bank      exam.QuestionBank
	responses exam.ResponseStore
	attempts  exam.AttemptStore

	now     func() time.Time
	events  EventSink
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewEngine(bank exam.QuestionBank, responses exam.ResponseStore, attempts exam.AttemptStore, opts ...Option) *Engine {
	e := &Engine{
		bank:      bank,
		responses: responses,
		attempts:  attempts,
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Submit scores sub against the exam's answer key. Every write is an upsert on its
// natural key, so a failed submission may be resent as is.
func (e *Engine) Submit(ctx context.Context, sub Submission) (Summary, error) {
	sum, err := e.submit(ctx, sub)
	e.metrics.Submission(outcome(err))
	if err != nil {
		return Summary{}, err
	}
	e.metrics.Score(sum.Score, sum.TotalQuestions)
	return sum, nil
}

func (e *Engine) submit(ctx context.Context, sub Submission) (Summary, error) {
	sub.normalize()
	if err := exam.Validate(sub); err != nil {
		return Summary{}, err
	}

	key, err := e.bank.AnswerKey(ctx, sub.ExamID)
	if err != nil {
		return Summary{}, asPersistence("fetch answer key", err)
	}
	if len(key) == 0 {
		return Summary{}, fmt.Errorf("%w: no questions for exam %d", exam.ErrExamNotFound, sub.ExamID)
	}

	selected := make(map[int64]*exam.Option, len(sub.Responses))
	foreign := 0
	for _, r := range sub.Responses {
		if _, ok := key[r.QuestionID]; !ok {
			foreign++
			continue
		}
		selected[r.QuestionID] = r.Selected
	}
	if foreign > 0 {
		e.log.Warn("ignoring responses for questions outside exam",
			"user_id", sub.StudentID, "exam_id", sub.ExamID, "count", foreign)
	}

	ids := make([]int64, 0, len(key))
	for id := range key {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var t Tally
	rows := make([]exam.StudentResponse, 0, len(ids))
	for _, id := range ids {
		sel := selected[id]
		out := Classify(sel, key[id])
		t.Add(out)
		rows = append(rows, exam.StudentResponse{
			StudentID:  sub.StudentID,
			QuestionID: id,
			Selected:   sel,
			IsCorrect:  out.IsCorrect(),
		})
	}

	if err := e.responses.PutResponses(ctx, rows); err != nil {
		e.log.Error("save responses failed", "user_id", sub.StudentID, "exam_id", sub.ExamID, "err", err)
		return Summary{}, asPersistence("save responses", err)
	}

	submitted := e.now().UTC()
	elapsed := ElapsedMinutes(sub.StartedAt, submitted)
	attempt := exam.ExamAttempt{
		StudentID:        sub.StudentID,
		ExamID:           sub.ExamID,
		Score:            t.Correct,
		TotalQuestions:   t.Total(),
		CorrectAnswers:   t.Correct,
		WrongAnswers:     t.Wrong,
		Unanswered:       t.Unanswered,
		StartedAt:        sub.StartedAt.UTC(),
		SubmittedAt:      submitted,
		TimeTakenMinutes: elapsed,
	}
	if err := e.attempts.PutAttempt(ctx, attempt); err != nil {
		e.log.Error("record attempt failed", "user_id", sub.StudentID, "exam_id", sub.ExamID, "err", err)
		return Summary{}, asPersistence("record attempt", err)
	}

	sum := Summary{
		ExamID:           sub.ExamID,
		Score:            t.Correct,
		TotalQuestions:   t.Total(),
		Correct:          t.Correct,
		Wrong:            t.Wrong,
		Unanswered:       t.Unanswered,
		TimeTakenMinutes: elapsed,
	}
	if e.events != nil {
		if err := e.events.Append(ctx, syncx.TypeExamSubmitted, syncx.AttemptKey(sub.StudentID, sub.ExamID), attempt); err != nil {
			e.log.Warn("append submit event", "user_id", sub.StudentID, "exam_id", sub.ExamID, "err", err)
		}
	}
	e.log.Info("test submitted", "user_id", sub.StudentID, "exam_id", sub.ExamID,
		"score", sum.Score, "total", sum.TotalQuestions)
	return sum, nil
}

// normalize treats an empty option label as no selection. It copies Responses
// so the caller's slice is left untouched.
func (s *Submission) normalize() {
	if s.Responses == nil {
		return
	}
	rs := make([]exam.Answer, len(s.Responses))
	copy(rs, s.Responses)
	for i := range rs {
		if sel := rs[i].Selected; sel != nil && *sel == "" {
			rs[i].Selected = nil
		}
	}
	s.Responses = rs
}

// ElapsedMinutes floors (end - start) to whole minutes, never below zero.
func ElapsedMinutes(start, end time.Time) int {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

func asPersistence(op string, err error) error {
	if errors.Is(err, exam.ErrPersistence) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, exam.ErrPersistence, err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, exam.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, exam.ErrExamNotFound):
		return "not_found"
	default:
		return "persistence"
	}
}

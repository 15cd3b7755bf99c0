package grading

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachline/testdesk/internal/exam"
	"github.com/coachline/testdesk/internal/metrics"
)

func opt(o exam.Option) *exam.Option { return &o }

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// seedExam publishes a three question exam with answers A, B, C.
func seedExam(t *testing.T, store exam.Store) (exam.Exam, []exam.Question) {
	t.Helper()
	e, qs, err := store.PutExam(context.Background(), exam.Exam{
		Name:            "Mock Test 1",
		DurationMinutes: 180,
		Active:          true,
		ConductedDate:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}, []exam.Question{
		{Number: 1, Subject: "physics", Text: "q1", OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d", Correct: exam.OptionA},
		{Number: 2, Subject: "chemistry", Text: "q2", OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d", Correct: exam.OptionB},
		{Number: 3, Subject: "maths", Text: "q3", OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d", Correct: exam.OptionC},
	})
	require.NoError(t, err)
	return e, qs
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

type recordedEvent struct {
	typ, key string
	payload  any
}

type eventRecorder struct {
	events []recordedEvent
	err    error
}

func (r *eventRecorder) Append(_ context.Context, typ, key string, payload any) error {
	r.events = append(r.events, recordedEvent{typ, key, payload})
	return r.err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		selected *exam.Option
		correct  exam.Option
		want     Outcome
	}{
		{"match", opt(exam.OptionA), exam.OptionA, Correct},
		{"mismatch", opt(exam.OptionD), exam.OptionB, Wrong},
		{"no selection", nil, exam.OptionC, Unanswered},
		{"empty label", opt(""), exam.OptionC, Unanswered},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.selected, tt.correct))
		})
	}
}

func TestOutcomeIsCorrect(t *testing.T) {
	assert.Nil(t, Unanswered.IsCorrect())
	require.NotNil(t, Correct.IsCorrect())
	assert.True(t, *Correct.IsCorrect())
	require.NotNil(t, Wrong.IsCorrect())
	assert.False(t, *Wrong.IsCorrect())
}

func TestTally(t *testing.T) {
	var tl Tally
	for _, o := range []Outcome{Correct, Wrong, Unanswered, Correct, Unanswered} {
		tl.Add(o)
	}
	assert.Equal(t, Tally{Correct: 2, Wrong: 1, Unanswered: 2}, tl)
	assert.Equal(t, 5, tl.Total())
}

func TestElapsedMinutes(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, ElapsedMinutes(start, start))
	assert.Equal(t, 0, ElapsedMinutes(start, start.Add(59*time.Second)))
	assert.Equal(t, 42, ElapsedMinutes(start, start.Add(42*time.Minute+30*time.Second)))
	assert.Equal(t, 0, ElapsedMinutes(start, start.Add(-5*time.Minute)))
}

func TestSubmit_MixedOutcomes(t *testing.T) {
	ctx := context.Background()
	store := exam.NewInMemoryStore()
	e, qs := seedExam(t, store)
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{t: start.Add(42 * time.Minute)}
	events := &eventRecorder{}
	engine := NewEngine(store, store, store, WithClock(clock.Now), WithEvents(events), WithLogger(quiet))

	sum, err := engine.Submit(ctx, Submission{
		StudentID: "s1",
		ExamID:    e.ID,
		StartedAt: start,
		Responses: []exam.Answer{
			{QuestionID: qs[0].ID, Selected: opt(exam.OptionA)},
			{QuestionID: qs[1].ID, Selected: opt(exam.OptionD)},
			{QuestionID: qs[2].ID, Selected: nil},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, Summary{
		ExamID:           e.ID,
		Score:            1,
		TotalQuestions:   3,
		Correct:          1,
		Wrong:            1,
		Unanswered:       1,
		TimeTakenMinutes: 42,
	}, sum)

	rs, err := store.ResponsesFor(ctx, "s1", []int64{qs[0].ID, qs[1].ID, qs[2].ID})
	require.NoError(t, err)
	require.Len(t, rs, 3)
	require.NotNil(t, rs[qs[0].ID].IsCorrect)
	assert.True(t, *rs[qs[0].ID].IsCorrect)
	require.NotNil(t, rs[qs[1].ID].IsCorrect)
	assert.False(t, *rs[qs[1].ID].IsCorrect)
	assert.Nil(t, rs[qs[2].ID].Selected)
	assert.Nil(t, rs[qs[2].ID].IsCorrect)

	a, err := store.GetAttempt(ctx, "s1", e.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Score)
	assert.Equal(t, 1, a.WrongAnswers)
	assert.Equal(t, 1, a.Unanswered)
	assert.Equal(t, 42, a.TimeTakenMinutes)
	assert.True(t, a.SubmittedAt.Equal(clock.t))

	require.Len(t, events.events, 1)
	assert.Equal(t, "ExamSubmitted", events.events[0].typ)
	assert.Equal(t, "s1|1", events.events[0].key)
}

func TestSubmit_RetakeOverwrites(t *testing.T) {
	ctx := context.Background()
	store := exam.NewInMemoryStore()
	e, qs := seedExam(t, store)
	engine := NewEngine(store, store, store, WithLogger(quiet))
	start := time.Now().Add(-10 * time.Minute)

	_, err := engine.Submit(ctx, Submission{
		StudentID: "s1", ExamID: e.ID, StartedAt: start,
		Responses: []exam.Answer{{QuestionID: qs[0].ID, Selected: opt(exam.OptionD)}},
	})
	require.NoError(t, err)

	sum, err := engine.Submit(ctx, Submission{
		StudentID: "s1", ExamID: e.ID, StartedAt: start,
		Responses: []exam.Answer{
			{QuestionID: qs[0].ID, Selected: opt(exam.OptionA)},
			{QuestionID: qs[1].ID, Selected: opt(exam.OptionB)},
			{QuestionID: qs[2].ID, Selected: opt(exam.OptionC)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Score)

	list, err := store.ListAttemptsForExam(ctx, e.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].Score)
	assert.Equal(t, 0, list[0].Unanswered)
}

func TestSubmit_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := exam.NewInMemoryStore()
	e, qs := seedExam(t, store)
	engine := NewEngine(store, store, store, WithLogger(quiet))
	sub := Submission{
		StudentID: "s1", ExamID: e.ID, StartedAt: time.Now().Add(-time.Hour),
		Responses: []exam.Answer{{QuestionID: qs[1].ID, Selected: opt(exam.OptionB)}},
	}

	first, err := engine.Submit(ctx, sub)
	require.NoError(t, err)
	second, err := engine.Submit(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Unanswered, second.Unanswered)

	list, err := store.ListAttemptsForStudent(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSubmit_MissingAndForeignQuestions(t *testing.T) {
	ctx := context.Background()
	store := exam.NewInMemoryStore()
	e, qs := seedExam(t, store)
	engine := NewEngine(store, store, store, WithLogger(quiet))

	sum, err := engine.Submit(ctx, Submission{
		StudentID: "s1", ExamID: e.ID, StartedAt: time.Now(),
		Responses: []exam.Answer{
			{QuestionID: qs[0].ID, Selected: opt(exam.OptionA)},
			{QuestionID: 9999, Selected: opt(exam.OptionA)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalQuestions)
	assert.Equal(t, 1, sum.Correct)
	assert.Equal(t, 2, sum.Unanswered)

	rs, err := store.ResponsesFor(ctx, "s1", []int64{9999})
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestSubmit_DuplicateQuestionLastWins(t *testing.T) {
	store := exam.NewInMemoryStore()
	e, qs := seedExam(t, store)
	engine := NewEngine(store, store, store, WithLogger(quiet))

	sum, err := engine.Submit(context.Background(), Submission{
		StudentID: "s1", ExamID: e.ID, StartedAt: time.Now(),
		Responses: []exam.Answer{
			{QuestionID: qs[0].ID, Selected: opt(exam.OptionB)},
			{QuestionID: qs[0].ID, Selected: opt(exam.OptionA)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Correct)
	assert.Equal(t, 0, sum.Wrong)
}

func TestSubmit_Invalid(t *testing.T) {
	store := exam.NewInMemoryStore()
	e, qs := seedExam(t, store)
	engine := NewEngine(store, store, store, WithLogger(quiet))
	ok := []exam.Answer{{QuestionID: qs[0].ID, Selected: opt(exam.OptionA)}}

	tests := []struct {
		name string
		sub  Submission
	}{
		{"missing student", Submission{ExamID: e.ID, StartedAt: time.Now(), Responses: ok}},
		{"missing exam", Submission{StudentID: "s1", StartedAt: time.Now(), Responses: ok}},
		{"missing start", Submission{StudentID: "s1", ExamID: e.ID, Responses: ok}},
		{"missing responses", Submission{StudentID: "s1", ExamID: e.ID, StartedAt: time.Now()}},
		{"bad option", Submission{StudentID: "s1", ExamID: e.ID, StartedAt: time.Now(),
			Responses: []exam.Answer{{QuestionID: qs[0].ID, Selected: opt("E")}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Submit(context.Background(), tt.sub)
			assert.ErrorIs(t, err, exam.ErrInvalidRequest)
		})
	}

	list, err := store.ListAttemptsForExam(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSubmit_EmptyResponsesAllUnanswered(t *testing.T) {
	store := exam.NewInMemoryStore()
	e, _ := seedExam(t, store)
	engine := NewEngine(store, store, store, WithLogger(quiet))

	sum, err := engine.Submit(context.Background(), Submission{
		StudentID: "s1", ExamID: e.ID, StartedAt: time.Now(), Responses: []exam.Answer{},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Score)
	assert.Equal(t, 3, sum.Unanswered)
}

func TestSubmit_UnknownExam(t *testing.T) {
	store := exam.NewInMemoryStore()
	engine := NewEngine(store, store, store, WithLogger(quiet))

	_, err := engine.Submit(context.Background(), Submission{
		StudentID: "s1", ExamID: 42, StartedAt: time.Now(), Responses: []exam.Answer{},
	})
	assert.ErrorIs(t, err, exam.ErrExamNotFound)
}

// failingAttempts fails every attempt write.
type failingAttempts struct {
	exam.AttemptStore
}

func (failingAttempts) PutAttempt(context.Context, exam.ExamAttempt) error {
	return errors.New("disk full")
}

func TestSubmit_PersistenceFailure(t *testing.T) {
	store := exam.NewInMemoryStore()
	e, qs := seedExam(t, store)
	events := &eventRecorder{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	engine := NewEngine(store, store, failingAttempts{store}, WithEvents(events), WithLogger(quiet), WithMetrics(m))

	_, err := engine.Submit(context.Background(), Submission{
		StudentID: "s1", ExamID: e.ID, StartedAt: time.Now(),
		Responses: []exam.Answer{{QuestionID: qs[0].ID, Selected: opt(exam.OptionA)}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, exam.ErrPersistence)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, events.events)

	families, err := reg.Gather()
	require.NoError(t, err)
	var failed float64
	for _, mf := range families {
		if mf.GetName() != "testdesk_submissions_total" {
			continue
		}
		for _, mt := range mf.GetMetric() {
			for _, lp := range mt.GetLabel() {
				if lp.GetName() == "outcome" && lp.GetValue() == "persistence" {
					failed += mt.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, 1.0, failed)
}

func TestSubmit_EventFailureIsNotFatal(t *testing.T) {
	store := exam.NewInMemoryStore()
	e, _ := seedExam(t, store)
	events := &eventRecorder{err: errors.New("event log down")}
	engine := NewEngine(store, store, store, WithEvents(events), WithLogger(quiet))

	sum, err := engine.Submit(context.Background(), Submission{
		StudentID: "s1", ExamID: e.ID, StartedAt: time.Now(), Responses: []exam.Answer{},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.TotalQuestions)
	assert.Len(t, events.events, 1)
}

func TestSubmit_DoesNotMutateCaller(t *testing.T) {
	store := exam.NewInMemoryStore()
	e, qs := seedExam(t, store)
	engine := NewEngine(store, store, store, WithLogger(quiet))
	empty := exam.Option("")
	rs := []exam.Answer{{QuestionID: qs[0].ID, Selected: &empty}}

	_, err := engine.Submit(context.Background(), Submission{
		StudentID: "s1", ExamID: e.ID, StartedAt: time.Now(), Responses: rs,
	})
	require.NoError(t, err)
	assert.NotNil(t, rs[0].Selected)
}

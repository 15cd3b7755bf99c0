package exam_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachline/testdesk/internal/db"
	"github.com/coachline/testdesk/internal/exam"
)

func opt(o exam.Option) *exam.Option { return &o }
func boolp(b bool) *bool             { return &b }

func newSQLStore(t *testing.T) exam.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", name)
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbh.Close() })
	return exam.NewSQLStore(dbh, string(db.DriverSQLite))
}

// eachStore runs fn against the in-memory store and a sqlite-backed SQL store.
func eachStore(t *testing.T, fn func(t *testing.T, s exam.Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, exam.NewInMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLStore(t)) })
}

func question(n int, correct exam.Option) exam.Question {
	return exam.Question{
		Number:  n,
		Subject: "physics",
		Text:    fmt.Sprintf("question %d", n),
		OptionA: "alpha",
		OptionB: "beta",
		OptionC: "gamma",
		OptionD: "delta",
		Correct: correct,
	}
}

func publish(t *testing.T, s exam.Store, name string, active bool, day int, qs ...exam.Question) (exam.Exam, []exam.Question) {
	t.Helper()
	e, out, err := s.PutExam(context.Background(), exam.Exam{
		Name:            name,
		DurationMinutes: 180,
		Active:          active,
		ConductedDate:   time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC),
	}, qs)
	require.NoError(t, err)
	return e, out
}

func TestPutExam(t *testing.T) {
	eachStore(t, func(t *testing.T, s exam.Store) {
		ctx := context.Background()
		e, qs := publish(t, s, "Mock 1", true, 1, question(2, exam.OptionB), question(1, exam.OptionA))
		require.NotZero(t, e.ID)
		assert.Equal(t, 2, e.TotalQuestions)
		require.Len(t, qs, 2)

		got, err := s.GetExam(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, "Mock 1", got.Name)
		assert.True(t, got.Active)
		assert.True(t, got.ConductedDate.Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)))

		stored, err := s.Questions(ctx, e.ID)
		require.NoError(t, err)
		require.Len(t, stored, 2)
		assert.Equal(t, 1, stored[0].Number)
		assert.Equal(t, exam.OptionA, stored[0].Correct)
		assert.Equal(t, 2, stored[1].Number)

		key, err := s.AnswerKey(ctx, e.ID)
		require.NoError(t, err)
		assert.Len(t, key, 2)
		for _, q := range stored {
			assert.Equal(t, q.Correct, key[q.ID])
		}
	})
}

func TestPutExam_ReplacesQuestions(t *testing.T) {
	eachStore(t, func(t *testing.T, s exam.Store) {
		ctx := context.Background()
		e, _ := publish(t, s, "Mock 1", true, 1, question(1, exam.OptionA), question(2, exam.OptionB))

		e.Name = "Mock 1 (revised)"
		_, _, err := s.PutExam(ctx, e, []exam.Question{question(1, exam.OptionD)})
		require.NoError(t, err)

		got, err := s.GetExam(ctx, e.ID)
		require.NoError(t, err)
		assert.Equal(t, "Mock 1 (revised)", got.Name)
		qs, err := s.Questions(ctx, e.ID)
		require.NoError(t, err)
		require.Len(t, qs, 1)
		assert.Equal(t, exam.OptionD, qs[0].Correct)
	})
}

func TestPutExam_IgnoresCallerQuestionIDs(t *testing.T) {
	eachStore(t, func(t *testing.T, s exam.Store) {
		ctx := context.Background()
		first, firstQs := publish(t, s, "First", true, 1, question(1, exam.OptionA))

		clash := question(1, exam.OptionD)
		clash.ID = firstQs[0].ID
		second, secondQs := publish(t, s, "Second", true, 2, clash)
		require.Len(t, secondQs, 1)
		assert.NotEqual(t, firstQs[0].ID, secondQs[0].ID)

		key, err := s.AnswerKey(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, exam.AnswerKey{firstQs[0].ID: exam.OptionA}, key)

		require.NoError(t, exam.SaveAnswers(ctx, s, s, "s1", second.ID, []exam.Answer{
			{QuestionID: secondQs[0].ID, Selected: opt(exam.OptionD)},
		}))
		got, err := s.ResponsesFor(ctx, "s1", []int64{firstQs[0].ID})
		require.NoError(t, err)
		assert.Empty(t, got, "a save on one exam must not touch another exam's rows")
	})
}

func TestPutExam_Invalid(t *testing.T) {
	eachStore(t, func(t *testing.T, s exam.Store) {
		ctx := context.Background()
		good := exam.Exam{Name: "x", Active: true}

		_, _, err := s.PutExam(ctx, good, nil)
		assert.ErrorIs(t, err, exam.ErrInvalidRequest)

		_, _, err = s.PutExam(ctx, exam.Exam{}, []exam.Question{question(1, exam.OptionA)})
		assert.ErrorIs(t, err, exam.ErrInvalidRequest)

		_, _, err = s.PutExam(ctx, good, []exam.Question{question(1, "E")})
		assert.ErrorIs(t, err, exam.ErrInvalidRequest)

		_, _, err = s.PutExam(ctx, good, []exam.Question{question(1, exam.OptionA), question(1, exam.OptionB)})
		assert.ErrorIs(t, err, exam.ErrInvalidRequest)
	})
}

func TestGetExam_NotFound(t *testing.T) {
	eachStore(t, func(t *testing.T, s exam.Store) {
		_, err := s.GetExam(context.Background(), 404)
		assert.ErrorIs(t, err, exam.ErrExamNotFound)

		key, err := s.AnswerKey(context.Background(), 404)
		require.NoError(t, err)
		assert.Empty(t, key)
	})
}

func TestListActiveExams(t *testing.T) {
	eachStore(t, func(t *testing.T, s exam.Store) {
		older, _ := publish(t, s, "older", true, 1, question(1, exam.OptionA))
		newer, _ := publish(t, s, "newer", true, 9, question(1, exam.OptionA))
		publish(t, s, "draft", false, 20, question(1, exam.OptionA))

		list, err := s.ListActiveExams(context.Background())
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Equal(t, older.ID, list[1].ID)
	})
}

func TestResponses_Upsert(t *testing.T) {
	eachStore(t, func(t *testing.T, s exam.Store) {
		ctx := context.Background()
		_, qs := publish(t, s, "Mock", true, 1, question(1, exam.OptionA), question(2, exam.OptionB))

		require.NoError(t, s.PutResponse(ctx, exam.StudentResponse{StudentID: "s1", QuestionID: qs[0].ID, Selected: opt(exam.OptionC)}))
		require.NoError(t, s.PutResponse(ctx, exam.StudentResponse{StudentID: "s1", QuestionID: qs[0].ID, Selected: opt(exam.OptionA)}))
		require.NoError(t, s.PutResponses(ctx, []exam.StudentResponse{
			{StudentID: "s1", QuestionID: qs[1].ID, Selected: nil},
			{StudentID: "s2", QuestionID: qs[0].ID, Selected: opt(exam.OptionB), IsCorrect: boolp(false)},
		}))

		got, err := s.ResponsesFor(ctx, "s1", []int64{qs[0].ID, qs[1].ID})
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.NotNil(t, got[qs[0].ID].Selected)
		assert.Equal(t, exam.OptionA, *got[qs[0].ID].Selected)
		assert.Nil(t, got[qs[0].ID].IsCorrect)
		assert.Nil(t, got[qs[1].ID].Selected)

		other, err := s.ResponsesFor(ctx, "s2", []int64{qs[0].ID})
		require.NoError(t, err)
		require.NotNil(t, other[qs[0].ID].IsCorrect)
		assert.False(t, *other[qs[0].ID].IsCorrect)

		none, err := s.ResponsesFor(ctx, "s1", nil)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestAttempts_OnePerStudentAndExam(t *testing.T) {
	eachStore(t, func(t *testing.T, s exam.Store) {
		ctx := context.Background()
		e, _ := publish(t, s, "Mock", true, 1, question(1, exam.OptionA))
		start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
		a := exam.ExamAttempt{
			StudentID: "s1", ExamID: e.ID, Score: 0, TotalQuestions: 1, Unanswered: 1,
			StartedAt: start, SubmittedAt: start.Add(time.Hour), TimeTakenMinutes: 60,
		}
		require.NoError(t, s.PutAttempt(ctx, a))
		a.Score, a.CorrectAnswers, a.Unanswered = 1, 1, 0
		require.NoError(t, s.PutAttempt(ctx, a))
		require.NoError(t, s.PutAttempt(ctx, exam.ExamAttempt{
			StudentID: "s2", ExamID: e.ID, Score: 0, TotalQuestions: 1, WrongAnswers: 1,
			StartedAt: start, SubmittedAt: start.Add(2 * time.Hour), TimeTakenMinutes: 120,
		}))

		got, err := s.GetAttempt(ctx, "s1", e.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Score)
		assert.Equal(t, 1, got.CorrectAnswers)
		assert.True(t, got.SubmittedAt.Equal(start.Add(time.Hour)))

		mine, err := s.ListAttemptsForStudent(ctx, "s1")
		require.NoError(t, err)
		assert.Len(t, mine, 1)

		all, err := s.ListAttemptsForExam(ctx, e.ID)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "s1", all[0].StudentID)
		assert.Equal(t, "s2", all[1].StudentID)

		_, err = s.GetAttempt(ctx, "nobody", e.ID)
		assert.ErrorIs(t, err, exam.ErrAttemptNotFound)
	})
}

package exam

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// LoadPaper returns an active exam's questions without correct options, plus the
// student's previously saved selections (nil for every unanswered question).
// A zero duration is replaced by defaultMinutes.
func LoadPaper(ctx context.Context, bank QuestionBank, responses ResponseStore, studentID string, examID int64, defaultMinutes int) (Paper, error) {
	e, err := bank.GetExam(ctx, examID)
	if err != nil {
		return Paper{}, err
	}
	if !e.Active {
		return Paper{}, fmt.Errorf("%w: exam %d is not active", ErrExamNotFound, examID)
	}
	qs, err := bank.Questions(ctx, examID)
	if err != nil {
		return Paper{}, err
	}
	if len(qs) == 0 {
		return Paper{}, fmt.Errorf("%w: no questions for exam %d", ErrExamNotFound, examID)
	}
	if e.DurationMinutes <= 0 {
		e.DurationMinutes = defaultMinutes
	}
	e.TotalQuestions = len(qs)

	ids := make([]int64, len(qs))
	for i := range qs {
		ids[i] = qs[i].ID
		qs[i] = qs[i].Redacted()
	}
	prior, err := responses.ResponsesFor(ctx, studentID, ids)
	if err != nil {
		return Paper{}, err
	}
	answers := make(map[int64]*Option, len(ids))
	for _, id := range ids {
		answers[id] = nil
		if r, ok := prior[id]; ok {
			answers[id] = r.Selected
		}
	}
	return Paper{Exam: e, Questions: qs, Answers: answers}, nil
}

// SaveAnswers upserts in-progress selections for one exam. Every question must belong
// to examID; correctness is left unset until the exam is submitted.
func SaveAnswers(ctx context.Context, bank QuestionBank, responses ResponseStore, studentID string, examID int64, answers []Answer) error {
	if studentID == "" || examID == 0 {
		return fmt.Errorf("%w: student and exam are required", ErrInvalidRequest)
	}
	for i := range answers {
		if err := Validate(answers[i]); err != nil {
			return err
		}
	}
	key, err := bank.AnswerKey(ctx, examID)
	if err != nil {
		return err
	}
	if len(key) == 0 {
		return fmt.Errorf("%w: no questions for exam %d", ErrExamNotFound, examID)
	}
	rows := make([]StudentResponse, 0, len(answers))
	for _, a := range answers {
		if _, ok := key[a.QuestionID]; !ok {
			return fmt.Errorf("%w: question %d, exam %d", ErrQuestionNotInExam, a.QuestionID, examID)
		}
		rows = append(rows, StudentResponse{StudentID: studentID, QuestionID: a.QuestionID, Selected: a.Selected})
	}
	if len(rows) == 1 {
		return responses.PutResponse(ctx, rows[0])
	}
	return responses.PutResponses(ctx, rows)
}

type CatalogueEntry struct {
	Exam    Exam         `json:"exam"`
	Attempt *ExamAttempt `json:"attempt"`
}

// Catalogue lists active exams, newest first, each with the student's attempt if any.
func Catalogue(ctx context.Context, bank QuestionBank, attempts AttemptStore, studentID string) ([]CatalogueEntry, error) {
	var (
		exams []Exam
		mine  []ExamAttempt
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		exams, err = bank.ListActiveExams(gctx)
		return err
	})
	g.Go(func() (err error) {
		mine, err = attempts.ListAttemptsForStudent(gctx, studentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	byExam := make(map[int64]ExamAttempt, len(mine))
	for _, a := range mine {
		byExam[a.ExamID] = a
	}
	out := make([]CatalogueEntry, 0, len(exams))
	for _, e := range exams {
		entry := CatalogueEntry{Exam: e}
		if a, ok := byExam[e.ID]; ok {
			entry.Attempt = &a
		}
		out = append(out, entry)
	}
	return out, nil
}

type ReviewItem struct {
	Question Question         `json:"question"`
	Response *StudentResponse `json:"response"`
}

type Review struct {
	Exam    Exam         `json:"exam"`
	Attempt ExamAttempt  `json:"attempt"`
	Items   []ReviewItem `json:"items"`
}

// LoadReview assembles the post-submission view: exam, attempt and each question with
// its correct option next to the student's stored response.
func LoadReview(ctx context.Context, store Store, studentID string, examID int64) (Review, error) {
	var (
		e       Exam
		attempt ExamAttempt
		qs      []Question
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		e, err = store.GetExam(gctx, examID)
		return err
	})
	g.Go(func() (err error) {
		attempt, err = store.GetAttempt(gctx, studentID, examID)
		return err
	})
	g.Go(func() (err error) {
		qs, err = store.Questions(gctx, examID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Review{}, err
	}

	ids := make([]int64, len(qs))
	for i := range qs {
		ids[i] = qs[i].ID
	}
	rs, err := store.ResponsesFor(ctx, studentID, ids)
	if err != nil {
		return Review{}, err
	}
	items := make([]ReviewItem, len(qs))
	for i, q := range qs {
		items[i] = ReviewItem{Question: q}
		if r, ok := rs[q.ID]; ok {
			items[i].Response = &r
		}
	}
	return Review{Exam: e, Attempt: attempt, Items: items}, nil
}

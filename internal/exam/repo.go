package exam

import "context"

// QuestionBank reads published exams. It never mutates them.
type QuestionBank interface {
	GetExam(ctx context.Context, examID int64) (Exam, error)
	ListActiveExams(ctx context.Context) ([]Exam, error)
	// Questions returns the exam's questions ordered by question number,
	// correct options included. Callers serving students must Redact them.
	Questions(ctx context.Context, examID int64) ([]Question, error)
	// AnswerKey returns question id -> correct option; empty if the exam has no questions.
	AnswerKey(ctx context.Context, examID int64) (AnswerKey, error)
}

// Publisher stores an exam together with its questions, replacing any previous version.
// Question ids are assigned by the store; ids set by the caller are ignored.
type Publisher interface {
	PutExam(ctx context.Context, e Exam, qs []Question) (Exam, []Question, error)
}

// ResponseStore upserts on the (student, question) natural key.
type ResponseStore interface {
	PutResponse(ctx context.Context, r StudentResponse) error
	PutResponses(ctx context.Context, rs []StudentResponse) error
	ResponsesFor(ctx context.Context, studentID string, questionIDs []int64) (map[int64]StudentResponse, error)
}

// AttemptStore upserts on the (student, exam) natural key.
type AttemptStore interface {
	PutAttempt(ctx context.Context, a ExamAttempt) error
	GetAttempt(ctx context.Context, studentID string, examID int64) (ExamAttempt, error)
	ListAttemptsForStudent(ctx context.Context, studentID string) ([]ExamAttempt, error)
	ListAttemptsForExam(ctx context.Context, examID int64) ([]ExamAttempt, error)
}

type Store interface {
	QuestionBank
	Publisher
	ResponseStore
	AttemptStore
}

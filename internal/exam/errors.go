package exam

import "errors"

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrExamNotFound      = errors.New("exam not found")
	ErrQuestionNotInExam = errors.New("question does not belong to exam")
	ErrAttemptNotFound   = errors.New("no attempt found for this exam")
	ErrPersistence       = errors.New("persistence failure")
)

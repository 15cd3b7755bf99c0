package exam

import (
	"strings"
	"time"
)

// Option is one of the four labelled choices of a question.
type Option string

const (
	OptionA Option = "A"
	OptionB Option = "B"
	OptionC Option = "C"
	OptionD Option = "D"
)

var Options = []Option{OptionA, OptionB, OptionC, OptionD}

func (o Option) Valid() bool {
	switch o {
	case OptionA, OptionB, OptionC, OptionD:
		return true
	}
	return false
}

// ParseOption accepts upper or lower case labels; "" and "-" mean no selection.
func ParseOption(s string) (*Option, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == "-" {
		return nil, true
	}
	o := Option(s)
	if !o.Valid() {
		return nil, false
	}
	return &o, true
}

type Exam struct {
	ID              int64     `json:"exam_id"`
	Name            string    `json:"exam_name" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"gte=0"`
	TotalQuestions  int       `json:"total_questions"`
	Active          bool      `json:"is_active"`
	ConductedDate   time.Time `json:"conducted_date"`
}

type Question struct {
	ID      int64  `json:"question_id"`
	ExamID  int64  `json:"exam_id"`
	Number  int    `json:"question_number" validate:"gte=1"`
	Subject string `json:"subject"` // maths|physics|chemistry
	Text    string `json:"question_text" validate:"required"`
	OptionA string `json:"option_a" validate:"required"`
	OptionB string `json:"option_b" validate:"required"`
	OptionC string `json:"option_c" validate:"required"`
	OptionD string `json:"option_d" validate:"required"`
	Correct Option `json:"correct_option,omitempty" validate:"required,option"`
}

// OptionText returns the option text for label o.
func (q Question) OptionText(o Option) string {
	switch o {
	case OptionA:
		return q.OptionA
	case OptionB:
		return q.OptionB
	case OptionC:
		return q.OptionC
	case OptionD:
		return q.OptionD
	}
	return ""
}

// Redacted returns a copy without the correct option, safe to serve during an attempt.
func (q Question) Redacted() Question {
	q.Correct = ""
	return q
}

// StudentResponse is keyed by (StudentID, QuestionID).
// IsCorrect stays nil until the response is scored, and for unanswered questions.
type StudentResponse struct {
	StudentID  string  `json:"user_id"`
	QuestionID int64   `json:"question_id"`
	Selected   *Option `json:"selected_option"`
	IsCorrect  *bool   `json:"is_correct"`
}

// ExamAttempt is keyed by (StudentID, ExamID); a retake replaces the row.
type ExamAttempt struct {
	StudentID        string    `json:"user_id"`
	ExamID           int64     `json:"exam_id"`
	Score            int       `json:"score"`
	TotalQuestions   int       `json:"total_questions"`
	CorrectAnswers   int       `json:"correct_answers"`
	WrongAnswers     int       `json:"wrong_answers"`
	Unanswered       int       `json:"unanswered"`
	StartedAt        time.Time `json:"started_at"`
	SubmittedAt      time.Time `json:"submitted_at"`
	TimeTakenMinutes int       `json:"time_taken_minutes"`
}

// Answer is one (question, selection) pair sent by the client. A nil Selected means skipped.
type Answer struct {
	QuestionID int64   `json:"question_id" validate:"required"`
	Selected   *Option `json:"selected_option" validate:"omitempty,option"`
}

// AnswerKey maps question id to its correct option.
type AnswerKey map[int64]Option

// Paper is what a student sees while taking an exam.
type Paper struct {
	Exam      Exam              `json:"exam"`
	Questions []Question        `json:"questions"`
	Answers   map[int64]*Option `json:"answers"`
}

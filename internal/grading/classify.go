package grading

import "github.com/coachline/testdesk/internal/exam"

type Outcome int

const (
	Unanswered Outcome = iota
	Correct
	Wrong
)

func (o Outcome) String() string {
	switch o {
	case Correct:
		return "correct"
	case Wrong:
		return "wrong"
	default:
		return "unanswered"
	}
}

// IsCorrect is the value stored on the response row: nil for unanswered.
func (o Outcome) IsCorrect() *bool {
	if o == Unanswered {
		return nil
	}
	b := o == Correct
	return &b
}

// Classify puts one question into exactly one of correct, wrong or unanswered.
// No selection is never wrong.
func Classify(selected *exam.Option, correct exam.Option) Outcome {
	if selected == nil || *selected == "" {
		return Unanswered
	}
	if *selected == correct {
		return Correct
	}
	return Wrong
}

type Tally struct {
	Correct    int
	Wrong      int
	Unanswered int
}

func (t *Tally) Add(o Outcome) {
	switch o {
	case Correct:
		t.Correct++
	case Wrong:
		t.Wrong++
	default:
		t.Unanswered++
	}
}

func (t Tally) Total() int { return t.Correct + t.Wrong + t.Unanswered }

package exam

import (
	"context"
	"sort"
	"sync"
)

type responseKey struct {
	student  string
	question int64
}

type attemptKey struct {
	student string
	exam    int64
}

type memoryStore struct {
	mu        sync.RWMutex
	exams     map[int64]Exam
	questions map[int64][]Question // exam id -> ordered questions
	responses map[responseKey]StudentResponse
	attempts  map[attemptKey]ExamAttempt
	nextExam  int64
	nextQ     int64
}

// NewInMemoryStore returns a Store backed by maps. Used by tests and the dev server.
func NewInMemoryStore() Store {
	return &memoryStore{
		exams:     map[int64]Exam{},
		questions: map[int64][]Question{},
		responses: map[responseKey]StudentResponse{},
		attempts:  map[attemptKey]ExamAttempt{},
	}
}

func (m *memoryStore) PutExam(_ context.Context, e Exam, qs []Question) (Exam, []Question, error) {
	if err := ValidatePublish(e, qs); err != nil {
		return Exam{}, nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == 0 {
		m.nextExam++
		e.ID = m.nextExam
	} else if e.ID > m.nextExam {
		m.nextExam = e.ID
	}
	// question ids come from the store only; caller ids are ignored
	out := make([]Question, len(qs))
	for i, q := range qs {
		m.nextQ++
		q.ID = m.nextQ
		q.ExamID = e.ID
		out[i] = q
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	e.TotalQuestions = len(out)
	m.exams[e.ID] = e
	m.questions[e.ID] = out
	return e, append([]Question(nil), out...), nil
}

func (m *memoryStore) GetExam(_ context.Context, id int64) (Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.exams[id]
	if !ok {
		return Exam{}, ErrExamNotFound
	}
	return e, nil
}

func (m *memoryStore) ListActiveExams(_ context.Context) ([]Exam, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Exam, 0, len(m.exams))
	for _, e := range m.exams {
		if e.Active {
			out = append(out, e)
		}
	}
	sortExams(out)
	return out, nil
}

func (m *memoryStore) Questions(_ context.Context, examID int64) ([]Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Question(nil), m.questions[examID]...), nil
}

func (m *memoryStore) AnswerKey(_ context.Context, examID int64) (AnswerKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key := AnswerKey{}
	for _, q := range m.questions[examID] {
		key[q.ID] = q.Correct
	}
	return key, nil
}

func (m *memoryStore) PutResponse(_ context.Context, r StudentResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[responseKey{r.StudentID, r.QuestionID}] = r
	return nil
}

func (m *memoryStore) PutResponses(_ context.Context, rs []StudentResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rs {
		m.responses[responseKey{r.StudentID, r.QuestionID}] = r
	}
	return nil
}

func (m *memoryStore) ResponsesFor(_ context.Context, studentID string, questionIDs []int64) (map[int64]StudentResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]StudentResponse, len(questionIDs))
	for _, id := range questionIDs {
		if r, ok := m.responses[responseKey{studentID, id}]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (m *memoryStore) PutAttempt(_ context.Context, a ExamAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[attemptKey{a.StudentID, a.ExamID}] = a
	return nil
}

func (m *memoryStore) GetAttempt(_ context.Context, studentID string, examID int64) (ExamAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[attemptKey{studentID, examID}]
	if !ok {
		return ExamAttempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (m *memoryStore) ListAttemptsForStudent(_ context.Context, studentID string) ([]ExamAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ExamAttempt
	for k, a := range m.attempts {
		if k.student == studentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExamID < out[j].ExamID })
	return out, nil
}

func (m *memoryStore) ListAttemptsForExam(_ context.Context, examID int64) ([]ExamAttempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ExamAttempt
	for k, a := range m.attempts {
		if k.exam == examID {
			out = append(out, a)
		}
	}
	sortAttemptsByScore(out)
	return out, nil
}

// newest conducted first, id as tiebreak
func sortExams(es []Exam) {
	sort.Slice(es, func(i, j int) bool {
		if !es[i].ConductedDate.Equal(es[j].ConductedDate) {
			return es[i].ConductedDate.After(es[j].ConductedDate)
		}
		return es[i].ID > es[j].ID
	})
}

func sortAttemptsByScore(as []ExamAttempt) {
	sort.Slice(as, func(i, j int) bool {
		if as[i].Score != as[j].Score {
			return as[i].Score > as[j].Score
		}
		return as[i].SubmittedAt.Before(as[j].SubmittedAt)
	})
}

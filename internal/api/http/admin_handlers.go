package http

import (
	"net/http"

	"github.com/coachline/testdesk/internal/exam"
)

type publishRequest struct {
	exam.Exam
	Questions []exam.Question `json:"questions"`
}

type publishResponse struct {
	Exam      exam.Exam       `json:"exam"`
	Questions []exam.Question `json:"questions"`
}

// POST /exams: publish an exam with its questions (admin).
// Re-posting an existing exam_id replaces the exam and its question list.
func UploadExamHandler(pub exam.Publisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req publishRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		e, qs, err := pub.PutExam(r.Context(), req.Exam, req.Questions)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, publishResponse{Exam: e, Questions: qs})
	}
}

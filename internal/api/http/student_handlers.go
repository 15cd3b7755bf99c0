package http

import (
	"net/http"

	"github.com/coachline/testdesk/internal/exam"
	"github.com/coachline/testdesk/internal/grading"
	"github.com/coachline/testdesk/internal/metrics"
	"github.com/coachline/testdesk/internal/rbac"
)

type savedBody struct {
	Success bool `json:"success"`
	Saved   int  `json:"saved"`
}

// PUT /exams/{examID}/responses/{questionID}  { "selected_option": "A" | null }
func SaveResponseHandler(bank exam.QuestionBank, responses exam.ResponseStore, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		examID, err := int64Param(r, "examID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		questionID, err := int64Param(r, "questionID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req struct {
			Selected *exam.Option `json:"selected_option"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if req.Selected != nil && *req.Selected == "" {
			req.Selected = nil
		}
		ans := exam.Answer{QuestionID: questionID, Selected: req.Selected}
		err = exam.SaveAnswers(r.Context(), bank, responses, rbac.SubjectFromContext(r.Context()), examID, []exam.Answer{ans})
		m.Save("single", err)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, savedBody{Success: true, Saved: 1})
	}
}

// PUT /exams/{examID}/responses  { "responses": [ {question_id, selected_option}, ... ] }
func SaveResponsesHandler(bank exam.QuestionBank, responses exam.ResponseStore, m *metrics.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		examID, err := int64Param(r, "examID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req struct {
			Responses []exam.Answer `json:"responses"`
		}
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		for i := range req.Responses {
			if sel := req.Responses[i].Selected; sel != nil && *sel == "" {
				req.Responses[i].Selected = nil
			}
		}
		err = exam.SaveAnswers(r.Context(), bank, responses, rbac.SubjectFromContext(r.Context()), examID, req.Responses)
		m.Save("bulk", err)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, savedBody{Success: true, Saved: len(req.Responses)})
	}
}

type submitBody struct {
	Success bool `json:"success"`
	grading.Summary
	Message string `json:"message"`
}

// POST /attempts
// { student_id, exam_id, started_at, responses: [ {question_id, selected_option}, ... ] }
// Callers without attempt:view-all always submit as themselves.
func SubmitHandler(engine *grading.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var sub grading.Submission
		if err := decodeJSON(w, r, &sub); err != nil {
			writeError(w, r, err)
			return
		}
		if sub.StudentID == "" || !rbac.Can(r.Context(), "attempt:view-all") {
			sub.StudentID = rbac.SubjectFromContext(r.Context())
		}
		sum, err := engine.Submit(r.Context(), sub)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, submitBody{Success: true, Summary: sum, Message: "Test submitted successfully"})
	}
}

package http

import (
	"net/http"

	"github.com/coachline/testdesk/internal/exam"
	"github.com/coachline/testdesk/internal/rbac"
)

// GET /exams: active exams, newest first, with the caller's attempt summary.
func ListExamsHandler(bank exam.QuestionBank, attempts exam.AttemptStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := exam.Catalogue(r.Context(), bank, attempts, rbac.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// GET /exams/{examID}: the paper to answer, with saved selections for resume.
func GetPaperHandler(bank exam.QuestionBank, responses exam.ResponseStore, defaultMinutes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		examID, err := int64Param(r, "examID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		p, err := exam.LoadPaper(r.Context(), bank, responses, rbac.SubjectFromContext(r.Context()), examID, defaultMinutes)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// GET /exams/{examID}/result: attempt summary and per-question review.
func ResultHandler(store exam.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		examID, err := int64Param(r, "examID")
		if err != nil {
			writeError(w, r, err)
			return
		}
		rev, err := exam.LoadReview(r.Context(), store, rbac.SubjectFromContext(r.Context()), examID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rev)
	}
}

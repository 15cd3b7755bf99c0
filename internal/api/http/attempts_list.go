package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/coachline/testdesk/internal/exam"
)

// GET /attempts?exam_id=...&limit=50&offset=0
// Attempts for one exam, best score first. Admin only (attempt:view-all, enforced by the router).
func ListAttemptsHandler(attempts exam.AttemptStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		examID, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("exam_id")), 10, 64)
		if err != nil || examID <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "exam_id required"})
			return
		}
		limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
		offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

		list, err := attempts.ListAttemptsForExam(r.Context(), examID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if offset > len(list) {
			offset = len(list)
		}
		list = list[offset:]
		if limit > 0 && limit < len(list) {
			list = list[:limit]
		}
		writeJSON(w, http.StatusOK, list)
	}
}

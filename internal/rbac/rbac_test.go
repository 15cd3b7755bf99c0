package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecker(t *testing.T) {
	c := NewChecker(nil)
	assert.True(t, c.Has("student", "attempt:submit"))
	assert.False(t, c.Has("student", "exam:create"))
	assert.True(t, c.Has("admin", "exam:create"))
	assert.False(t, c.Has("guest", "exam:view"))
	assert.True(t, c.Any("student", "attempt:view-all", "attempt:view-own"))

	custom := NewChecker(map[string][]string{"proctor": {"attempt:*"}})
	assert.True(t, custom.Has("proctor", "attempt:view-all"))
	assert.False(t, custom.Has("proctor", "exam:view"))
}

func TestContext(t *testing.T) {
	ctx := WithRole(WithSubject(context.Background(), "u1"), "student")
	assert.Equal(t, "u1", SubjectFromContext(ctx))
	assert.Equal(t, "student", RoleFromContext(ctx))
	assert.True(t, Can(ctx, "response:save"))
	assert.False(t, Can(ctx, "attempt:view-all"))
	assert.Empty(t, SubjectFromContext(context.Background()))
}

func TestRequire(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	tests := []struct {
		name string
		role string
		mw   func(http.Handler) http.Handler
		want int
	}{
		{"allowed", "student", Require("exam:view"), http.StatusNoContent},
		{"denied", "student", Require("exam:create"), http.StatusForbidden},
		{"no role", "", Require("exam:view"), http.StatusForbidden},
		{"any of", "student", RequireAny("attempt:view-own", "attempt:view-all"), http.StatusNoContent},
		{"none of", "student", RequireAny("exam:create"), http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(WithRole(req.Context(), tt.role))
			rec := httptest.NewRecorder()
			tt.mw(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden {
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
				assert.JSONEq(t, `{"success":false,"error":"forbidden"}`, rec.Body.String())
			}
		})
	}
}

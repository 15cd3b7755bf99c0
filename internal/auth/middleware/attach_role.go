package auth

import (
	"database/sql"
	"net/http"

	"github.com/coachline/testdesk/internal/rbac"
)

// AttachRoleFromDB replaces the token's role with the one stored for the subject,
// so a role change takes effect before the token expires.
// allowClaimFallback=true in dev; false in prod.
func AttachRoleFromDB(db *sql.DB, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := rbac.SubjectFromContext(ctx)

			var role string
			err := db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, sub).Scan(&role)
			switch {
			case err == nil && role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case err != nil && allowClaimFallback:
				// keep whatever JWTMiddleware set
				next.ServeHTTP(w, r)
			default:
				writeError(w, http.StatusForbidden, "forbidden")
			}
		})
	}
}

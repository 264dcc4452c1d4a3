package middleware

import (
	"encoding/json"
	"net/http"

	"interviewkey/database"
	"interviewkey/models"
)

// RequireRoles 관리자 역할이 allowedRoles에 속할 때만 핸들러를 실행합니다.
func RequireRoles(allowedRoles ...string) func(http.HandlerFunc) http.HandlerFunc {
	set := make(map[string]struct{}, len(allowedRoles))
	for _, r := range allowedRoles {
		set[r] = struct{}{}
	}
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			// JWT 클레임이 오래됐을 수 있으므로 역할은 항상 DB에서 재확인
			adminID, _ := r.Context().Value("admin_id").(string)
			if adminID == "" {
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(models.ErrorResponse("Unauthorized", nil))
				return
			}
			var role string
			if err := database.DB.QueryRow("SELECT role FROM admins WHERE id = ?", adminID).Scan(&role); err != nil {
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(models.ErrorResponse("Forbidden: insufficient role", err))
				return
			}
			if _, ok := set[role]; !ok {
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(models.ErrorResponse("Forbidden: insufficient role", nil))
				return
			}
			next.ServeHTTP(w, r)
		}
	}
}

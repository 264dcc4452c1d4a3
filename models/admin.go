package models

// Admin 관리자 정보
type Admin struct {
	ID        string `json:"id" db:"id"`
	Username  string `json:"username" db:"username"`
	Password  string `json:"-" db:"password"` // bcrypt 해시
	Email     string `json:"email" db:"email"`
	Role      string `json:"role" db:"role"` // super_admin, admin
	CreatedAt string `json:"created_at" db:"created_at"`
	UpdatedAt string `json:"updated_at" db:"updated_at"`
}

// 관리자 역할 상수
const (
	RoleSuperAdmin = "super_admin"
	RoleAdmin      = "admin"
)

// LoginRequest 로그인 요청
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 로그인 응답
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	Admin     *Admin `json:"admin"`
}

// ChangePasswordRequest 비밀번호 변경 요청
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// AdminActivityLog 관리자 활동 로그
type AdminActivityLog struct {
	ID        int64  `json:"id" db:"id"`
	AdminID   string `json:"admin_id" db:"admin_id"`
	Username  string `json:"username" db:"username"`
	Action    string `json:"action" db:"action"`
	Details   string `json:"details" db:"details"`
	CreatedAt string `json:"created_at" db:"created_at"`
}

// AdminAction 관리자 활동 액션 상수
const (
	AdminActionLogin          = "login"
	AdminActionChangePassword = "change_password"
	AdminActionCreateKey      = "create_key"
	AdminActionUpdateKey      = "update_key"
	AdminActionRevokeKey      = "revoke_key"
	AdminActionSweepKeys      = "sweep_keys"
)

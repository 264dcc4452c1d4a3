package models

// LicenseKey 라이선스 키 정보
type LicenseKey struct {
	ID                      string `json:"id" db:"id"`
	KeyString               string `json:"key_string" db:"key_string"`
	Status                  string `json:"status" db:"status"` // inactive, active, paused, expired, revoked
	DurationHours           int    `json:"duration_hours" db:"duration_hours"`
	CreatedAt               string `json:"created_at" db:"created_at"`
	ActivatedAt             string `json:"activated_at,omitempty" db:"activated_at"`
	ExpiresAt               string `json:"expires_at,omitempty" db:"expires_at"` // active 상태에서만 의미 있음
	RemainingSecondsOnPause *int64 `json:"remaining_seconds_on_pause,omitempty" db:"remaining_seconds_on_pause"`
	ActivatedIP             string `json:"activated_ip,omitempty" db:"activated_ip"`
	HardwareName            string `json:"hardware_name,omitempty" db:"hardware_name"`
	Notes                   string `json:"notes" db:"notes"`
	UpdatedAt               string `json:"updated_at" db:"updated_at"`
}

// KeyStatus 상태 상수
const (
	KeyStatusInactive = "inactive"
	KeyStatusActive   = "active"
	KeyStatusPaused   = "paused"
	KeyStatusExpired  = "expired"
	KeyStatusRevoked  = "revoked"
)

// IsTerminal 말단 상태 여부 (관리자 재발급 전까지 복구 불가)
func (k *LicenseKey) IsTerminal() bool {
	return k.Status == KeyStatusExpired || k.Status == KeyStatusRevoked
}

// CreateKeyRequest 키 생성 요청
type CreateKeyRequest struct {
	DurationHours int    `json:"duration_hours" binding:"required,min=1"`
	Notes         string `json:"notes"`
}

// UpdateKeyRequest 키 메모 수정 요청
type UpdateKeyRequest struct {
	Notes string `json:"notes"`
}

// ActivateKeyRequest 키 활성화 요청
type ActivateKeyRequest struct {
	KeyString    string `json:"key_string" binding:"required"`
	HardwareName string `json:"hardware_name"`
}

// KeyStringRequest 키 문자열만 담는 요청 (pause/resume/revoke)
type KeyStringRequest struct {
	KeyString string `json:"key_string" binding:"required"`
}

// MeterKeyRequest 사용량 차감 요청
type MeterKeyRequest struct {
	KeyString string `json:"key_string" binding:"required"`
	Seconds   int64  `json:"seconds" binding:"required,min=1"`
}

// KeyActivityLog 키 활동 로그
type KeyActivityLog struct {
	ID        int64  `json:"id" db:"id"`
	KeyID     string `json:"key_id" db:"key_id"`
	KeyString string `json:"key_string" db:"key_string"`
	Action    string `json:"action" db:"action"`
	Details   string `json:"details" db:"details"`
	CreatedAt string `json:"created_at" db:"created_at"`
}

// KeyAction 활동 로그 액션 상수
const (
	KeyActionCreated   = "created"
	KeyActionActivated = "activated"
	KeyActionPaused    = "paused"
	KeyActionResumed   = "resumed"
	KeyActionMetered   = "metered"
	KeyActionRevoked   = "revoked"
	KeyActionExpired   = "expired"
)

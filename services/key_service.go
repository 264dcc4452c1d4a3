package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"interviewkey/logger"
	"interviewkey/models"
	"interviewkey/utils"
)

var (
	// ErrKeyNotFound는 키 문자열에 해당하는 레코드가 없을 때 반환됩니다.
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyExpired는 키의 사용 시간이 만료되었을 때 반환됩니다.
	ErrKeyExpired = errors.New("key has expired")
	// ErrKeyRevoked는 관리자가 회수한 키에 대한 모든 조작 시 반환됩니다.
	ErrKeyRevoked = errors.New("key has been revoked")
	// ErrKeyNotActive는 active 상태를 요구하는 조작의 전제조건 위반 시 반환됩니다.
	ErrKeyNotActive = errors.New("key is not active")
	// ErrKeyNotPaused는 paused 상태를 요구하는 조작의 전제조건 위반 시 반환됩니다.
	ErrKeyNotPaused = errors.New("key is not paused")
	// ErrInsufficientEntitlement는 남은 시간이 요청량보다 부족할 때의 분류용 센티넬입니다.
	ErrInsufficientEntitlement = errors.New("insufficient entitlement")
)

// InsufficientEntitlementError는 부족량 정보를 담는 에러입니다.
// errors.Is(err, ErrInsufficientEntitlement)로 분류할 수 있습니다.
type InsufficientEntitlementError struct {
	NeededSeconds    int64
	RemainingSeconds int64
}

func (e *InsufficientEntitlementError) Error() string {
	return fmt.Sprintf("insufficient entitlement: need %ds, have %ds", e.NeededSeconds, e.RemainingSeconds)
}

// Is는 errors.Is가 센티넬과 매칭되도록 합니다.
func (e *InsufficientEntitlementError) Is(target error) bool {
	return target == ErrInsufficientEntitlement
}

// KeyFilter는 관리자 키 목록 조회 필터입니다.
type KeyFilter struct {
	Status   string
	Page     int
	PageSize int
}

// KeyService는 라이선스 키 수명주기 상태 기계에 대한 비즈니스 로직을 정의합니다.
// 모든 변경 조작은 키 단위로 직렬화됩니다 (트랜잭션 + 행 잠금).
type KeyService interface {
	Create(ctx context.Context, durationHours int, notes string) (models.LicenseKey, error)
	Get(ctx context.Context, keyString string) (models.LicenseKey, error)
	GetByID(ctx context.Context, id string) (models.LicenseKey, error)
	List(ctx context.Context, filter KeyFilter) ([]models.LicenseKey, int, error)
	Activate(ctx context.Context, keyString, ip, hardwareName string) (models.LicenseKey, error)
	Pause(ctx context.Context, keyString string) (models.LicenseKey, error)
	Resume(ctx context.Context, keyString string) (models.LicenseKey, error)
	Meter(ctx context.Context, keyString string, seconds int64) (models.LicenseKey, error)
	Revoke(ctx context.Context, keyString string) (models.LicenseKey, error)
	UpdateNotes(ctx context.Context, id, notes string) (models.LicenseKey, error)
	SweepExpired(ctx context.Context) (int64, error)
	RecentActivity(ctx context.Context, limit int) ([]models.KeyActivityLog, error)
}

type keyService struct {
	db      SQLExecutor
	dialect string // "sqlite" 또는 "mysql"
}

// NewKeyService는 KeyService 구현체를 생성합니다.
func NewKeyService(db SQLExecutor, dialect string) KeyService {
	return &keyService{db: db, dialect: dialect}
}

const keyColumns = `id, key_string, status, duration_hours, created_at, activated_at, expires_at,
	remaining_seconds_on_pause, activated_ip, hardware_name, notes, updated_at`

// lockSuffix MySQL에서는 행 잠금으로 키 단위 직렬화를 보장합니다.
// SQLite는 단일 쓰기 커넥션으로 직렬화되므로 잠금 구문이 없습니다.
func (s *keyService) lockSuffix() string {
	if s.dialect == "mysql" {
		return " FOR UPDATE"
	}
	return ""
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKey(row rowScanner) (models.LicenseKey, error) {
	var (
		key         models.LicenseKey
		activatedAt sql.NullString
		expiresAt   sql.NullString
		remaining   sql.NullInt64
		activatedIP sql.NullString
		hardware    sql.NullString
		notes       sql.NullString
	)

	err := row.Scan(
		&key.ID, &key.KeyString, &key.Status, &key.DurationHours, &key.CreatedAt,
		&activatedAt, &expiresAt, &remaining, &activatedIP, &hardware, &notes, &key.UpdatedAt,
	)
	if err != nil {
		return models.LicenseKey{}, err
	}

	key.ActivatedAt = activatedAt.String
	key.ExpiresAt = expiresAt.String
	if remaining.Valid {
		v := remaining.Int64
		key.RemainingSecondsOnPause = &v
	}
	key.ActivatedIP = activatedIP.String
	key.HardwareName = hardware.String
	key.Notes = notes.String

	return key, nil
}

// Create는 inactive 상태의 새 키를 발급합니다.
func (s *keyService) Create(ctx context.Context, durationHours int, notes string) (models.LicenseKey, error) {
	if durationHours < 1 {
		return models.LicenseKey{}, fmt.Errorf("duration_hours must be at least 1")
	}

	id, err := utils.GenerateID("key")
	if err != nil {
		return models.LicenseKey{}, err
	}

	now := utils.FormatDateTimeForDB(utils.NowShanghai())

	// UNIQUE 충돌 시 1회 재시도 (8바이트 랜덤이라 사실상 발생하지 않음)
	for attempt := 0; attempt < 2; attempt++ {
		keyString, err := utils.GenerateKeyString()
		if err != nil {
			return models.LicenseKey{}, err
		}

		_, err = s.db.ExecContext(ctx, `
			INSERT INTO license_keys (id, key_string, status, duration_hours, notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, keyString, models.KeyStatusInactive, durationHours, notes, now, now,
		)
		if err != nil {
			if isUniqueViolation(err) && attempt == 0 {
				continue
			}
			return models.LicenseKey{}, fmt.Errorf("failed to insert key: %w", err)
		}

		s.logActivity(ctx, s.db, id, keyString, models.KeyActionCreated,
			fmt.Sprintf("Key created with %d hour entitlement", durationHours))

		return s.Get(ctx, keyString)
	}

	return models.LicenseKey{}, fmt.Errorf("failed to generate unique key string")
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "Duplicate entry")
}

// Get은 키 문자열로 레코드를 조회합니다. 상태를 변경하지 않습니다.
func (s *keyService) Get(ctx context.Context, keyString string) (models.LicenseKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM license_keys WHERE key_string = ?`, keyString)
	key, err := scanKey(row)
	if err == sql.ErrNoRows {
		return models.LicenseKey{}, ErrKeyNotFound
	}
	if err != nil {
		return models.LicenseKey{}, fmt.Errorf("failed to query key: %w", err)
	}
	return key, nil
}

// GetByID는 내부 ID로 레코드를 조회합니다.
func (s *keyService) GetByID(ctx context.Context, id string) (models.LicenseKey, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM license_keys WHERE id = ?`, id)
	key, err := scanKey(row)
	if err == sql.ErrNoRows {
		return models.LicenseKey{}, ErrKeyNotFound
	}
	if err != nil {
		return models.LicenseKey{}, fmt.Errorf("failed to query key: %w", err)
	}
	return key, nil
}

// List는 관리자용 키 목록을 페이징하여 반환합니다.
func (s *keyService) List(ctx context.Context, filter KeyFilter) ([]models.LicenseKey, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	where := ""
	args := []any{}
	if filter.Status != "" {
		where = " WHERE status = ?"
		args = append(args, filter.Status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM license_keys`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count keys: %w", err)
	}

	offset := (filter.Page - 1) * filter.PageSize
	listArgs := append(args, filter.PageSize, offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+keyColumns+` FROM license_keys`+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	keys := []models.LicenseKey{}
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			logger.Warn("Failed to scan key row: %v", err)
			continue
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate keys: %w", err)
	}

	return keys, total, nil
}

// mutateKey는 키 한 개에 대한 변경 조작을 트랜잭션으로 감쌉니다.
// fn이 에러를 반환하면 전체가 롤백되어 부분 반영이 남지 않습니다.
func (s *keyService) mutateKey(ctx context.Context, keyString string, fn func(tx *sql.Tx, key *models.LicenseKey) error) (models.LicenseKey, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.LicenseKey{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+keyColumns+` FROM license_keys WHERE key_string = ?`+s.lockSuffix(), keyString)
	key, err := scanKey(row)
	if err == sql.ErrNoRows {
		return models.LicenseKey{}, ErrKeyNotFound
	}
	if err != nil {
		return models.LicenseKey{}, fmt.Errorf("failed to query key: %w", err)
	}

	if err := fn(tx, &key); err != nil {
		return models.LicenseKey{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.LicenseKey{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return key, nil
}

// checkTerminal 말단 상태 공통 검사
func checkTerminal(key *models.LicenseKey) error {
	switch key.Status {
	case models.KeyStatusRevoked:
		return ErrKeyRevoked
	case models.KeyStatusExpired:
		return ErrKeyExpired
	}
	return nil
}

// Activate는 inactive 키를 active로 전환하고 만료 시각을 계산합니다.
// 이미 active이고 만료 전이면 현재 레코드를 그대로 반환합니다 (클라이언트 재시도 허용).
func (s *keyService) Activate(ctx context.Context, keyString, ip, hardwareName string) (models.LicenseKey, error) {
	return s.mutateKey(ctx, keyString, func(tx *sql.Tx, key *models.LicenseKey) error {
		if err := checkTerminal(key); err != nil {
			return err
		}

		now := utils.NowShanghai()
		nowStr := utils.FormatDateTimeForDB(now)

		switch key.Status {
		case models.KeyStatusActive:
			expires, err := utils.ParseDBDate(key.ExpiresAt)
			if err != nil {
				return fmt.Errorf("corrupt expires_at on key %s: %w", key.ID, err)
			}
			if expires.After(now) {
				// 재활성화는 멱등 no-op
				return nil
			}
			// 만료 시각이 지났지만 아직 스윕되지 않은 키. 상태 전환은 스윕이 담당한다.
			return ErrKeyExpired

		case models.KeyStatusPaused:
			// 일시정지된 키는 resume으로만 복귀한다
			return ErrKeyNotActive

		case models.KeyStatusInactive:
			expiresAt := utils.FormatDateTimeForDB(now.Add(time.Duration(key.DurationHours) * time.Hour))
			_, err := tx.ExecContext(ctx, `
				UPDATE license_keys
				SET status = ?, activated_at = ?, expires_at = ?, activated_ip = ?, hardware_name = ?, updated_at = ?
				WHERE id = ?`,
				models.KeyStatusActive, nowStr, expiresAt, ip, hardwareName, nowStr, key.ID,
			)
			if err != nil {
				return fmt.Errorf("failed to activate key: %w", err)
			}

			key.Status = models.KeyStatusActive
			key.ActivatedAt = nowStr
			key.ExpiresAt = expiresAt
			key.ActivatedIP = ip
			key.HardwareName = hardwareName
			key.UpdatedAt = nowStr

			s.logActivity(ctx, tx, key.ID, key.KeyString, models.KeyActionActivated,
				fmt.Sprintf("Activated from %s (%s), expires at %s", ip, hardwareName, expiresAt))
			return nil

		default:
			return fmt.Errorf("unknown key status: %s", key.Status)
		}
	})
}

// Pause는 active 키의 남은 시간을 적립하고 paused로 전환합니다.
// 일시정지 중에는 벽시계 시간이 차감되지 않습니다.
func (s *keyService) Pause(ctx context.Context, keyString string) (models.LicenseKey, error) {
	return s.mutateKey(ctx, keyString, func(tx *sql.Tx, key *models.LicenseKey) error {
		if err := checkTerminal(key); err != nil {
			return err
		}
		if key.Status != models.KeyStatusActive {
			return ErrKeyNotActive
		}

		now := utils.NowShanghai()
		nowStr := utils.FormatDateTimeForDB(now)

		expires, err := utils.ParseDBDate(key.ExpiresAt)
		if err != nil {
			return fmt.Errorf("corrupt expires_at on key %s: %w", key.ID, err)
		}

		remaining := int64(expires.Sub(now) / time.Second)
		if remaining <= 0 {
			return ErrKeyExpired
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE license_keys
			SET status = ?, expires_at = NULL, remaining_seconds_on_pause = ?, updated_at = ?
			WHERE id = ?`,
			models.KeyStatusPaused, remaining, nowStr, key.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to pause key: %w", err)
		}

		key.Status = models.KeyStatusPaused
		key.ExpiresAt = ""
		key.RemainingSecondsOnPause = &remaining
		key.UpdatedAt = nowStr

		s.logActivity(ctx, tx, key.ID, key.KeyString, models.KeyActionPaused,
			fmt.Sprintf("Paused with %ds remaining", remaining))
		return nil
	})
}

// Resume은 paused 키의 적립 시간으로 만료 시각을 재계산하고 active로 전환합니다.
func (s *keyService) Resume(ctx context.Context, keyString string) (models.LicenseKey, error) {
	return s.mutateKey(ctx, keyString, func(tx *sql.Tx, key *models.LicenseKey) error {
		if err := checkTerminal(key); err != nil {
			return err
		}
		if key.Status != models.KeyStatusPaused {
			return ErrKeyNotPaused
		}

		var banked int64
		if key.RemainingSecondsOnPause != nil {
			banked = *key.RemainingSecondsOnPause
		}
		if banked <= 0 {
			return &InsufficientEntitlementError{NeededSeconds: 1, RemainingSeconds: banked}
		}

		now := utils.NowShanghai()
		nowStr := utils.FormatDateTimeForDB(now)
		expiresAt := utils.FormatDateTimeForDB(now.Add(time.Duration(banked) * time.Second))

		_, err := tx.ExecContext(ctx, `
			UPDATE license_keys
			SET status = ?, expires_at = ?, remaining_seconds_on_pause = NULL, updated_at = ?
			WHERE id = ?`,
			models.KeyStatusActive, expiresAt, nowStr, key.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to resume key: %w", err)
		}

		key.Status = models.KeyStatusActive
		key.ExpiresAt = expiresAt
		key.RemainingSecondsOnPause = nil
		key.UpdatedAt = nowStr

		s.logActivity(ctx, tx, key.ID, key.KeyString, models.KeyActionResumed,
			fmt.Sprintf("Resumed with %ds, expires at %s", banked, expiresAt))
		return nil
	})
}

// Meter는 active 키의 남은 시간에서 seconds만큼 차감합니다.
// 남은 시간이 부족하면 아무것도 변경하지 않고 InsufficientEntitlementError를 반환합니다.
func (s *keyService) Meter(ctx context.Context, keyString string, seconds int64) (models.LicenseKey, error) {
	if seconds <= 0 {
		return models.LicenseKey{}, fmt.Errorf("meter seconds must be positive")
	}

	return s.mutateKey(ctx, keyString, func(tx *sql.Tx, key *models.LicenseKey) error {
		if err := checkTerminal(key); err != nil {
			return err
		}
		if key.Status != models.KeyStatusActive {
			return ErrKeyNotActive
		}

		now := utils.NowShanghai()
		nowStr := utils.FormatDateTimeForDB(now)

		expires, err := utils.ParseDBDate(key.ExpiresAt)
		if err != nil {
			return fmt.Errorf("corrupt expires_at on key %s: %w", key.ID, err)
		}

		remaining := int64(expires.Sub(now) / time.Second)
		if remaining < seconds {
			if remaining < 0 {
				remaining = 0
			}
			return &InsufficientEntitlementError{NeededSeconds: seconds, RemainingSeconds: remaining}
		}

		newExpires := utils.FormatDateTimeForDB(expires.Add(-time.Duration(seconds) * time.Second))
		_, err = tx.ExecContext(ctx, `
			UPDATE license_keys SET expires_at = ?, updated_at = ? WHERE id = ?`,
			newExpires, nowStr, key.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to meter key: %w", err)
		}

		key.ExpiresAt = newExpires
		key.UpdatedAt = nowStr

		s.logActivity(ctx, tx, key.ID, key.KeyString, models.KeyActionMetered,
			fmt.Sprintf("Metered %ds, expires at %s", seconds, newExpires))
		return nil
	})
}

// Revoke는 말단이 아닌 키를 revoked로 전환합니다. 이후 모든 조작이 거부됩니다.
func (s *keyService) Revoke(ctx context.Context, keyString string) (models.LicenseKey, error) {
	return s.mutateKey(ctx, keyString, func(tx *sql.Tx, key *models.LicenseKey) error {
		if key.Status == models.KeyStatusRevoked {
			return ErrKeyRevoked
		}

		nowStr := utils.FormatDateTimeForDB(utils.NowShanghai())
		_, err := tx.ExecContext(ctx, `
			UPDATE license_keys
			SET status = ?, expires_at = NULL, remaining_seconds_on_pause = NULL, updated_at = ?
			WHERE id = ?`,
			models.KeyStatusRevoked, nowStr, key.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to revoke key: %w", err)
		}

		key.Status = models.KeyStatusRevoked
		key.ExpiresAt = ""
		key.RemainingSecondsOnPause = nil
		key.UpdatedAt = nowStr

		s.logActivity(ctx, tx, key.ID, key.KeyString, models.KeyActionRevoked, "Key revoked by admin")
		return nil
	})
}

// UpdateNotes는 키 메모를 수정합니다. 상태/시간 필드에는 손대지 않습니다.
func (s *keyService) UpdateNotes(ctx context.Context, id, notes string) (models.LicenseKey, error) {
	nowStr := utils.FormatDateTimeForDB(utils.NowShanghai())
	result, err := s.db.ExecContext(ctx,
		`UPDATE license_keys SET notes = ?, updated_at = ? WHERE id = ?`, notes, nowStr, id)
	if err != nil {
		return models.LicenseKey{}, fmt.Errorf("failed to update key notes: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return models.LicenseKey{}, ErrKeyNotFound
	}
	return s.GetByID(ctx, id)
}

// SweepExpired는 만료 시각이 지난 active 키를 일괄 expired 처리합니다.
// 개별 키 조작과 동시에 실행해도 안전하며, 반복 실행은 멱등입니다.
func (s *keyService) SweepExpired(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin sweep transaction: %w", err)
	}
	defer tx.Rollback()

	nowStr := utils.FormatDateTimeForDB(utils.NowShanghai())

	// 활동 로그를 남기기 위해 대상을 먼저 조회
	rows, err := tx.QueryContext(ctx, `
		SELECT id, key_string, expires_at FROM license_keys
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?`+s.lockSuffix(),
		models.KeyStatusActive, nowStr,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to query expired keys: %w", err)
	}

	type expiredKey struct {
		id, keyString, expiresAt string
	}
	expired := []expiredKey{}
	for rows.Next() {
		var k expiredKey
		if scanErr := rows.Scan(&k.id, &k.keyString, &k.expiresAt); scanErr != nil {
			logger.Warn("Failed to scan expired key row: %v", scanErr)
			continue
		}
		expired = append(expired, k)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("failed to iterate expired keys: %w", err)
	}
	rows.Close()

	if len(expired) == 0 {
		return 0, tx.Commit()
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE license_keys SET status = ?, updated_at = ?
		WHERE status = ? AND expires_at IS NOT NULL AND expires_at < ?`,
		models.KeyStatusExpired, nowStr, models.KeyStatusActive, nowStr,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired keys: %w", err)
	}

	for _, k := range expired {
		s.logActivity(ctx, tx, k.id, k.keyString, models.KeyActionExpired,
			fmt.Sprintf("Swept, expired at %s", k.expiresAt))
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit sweep: %w", err)
	}

	count, _ := result.RowsAffected()
	return count, nil
}

// RecentActivity는 최근 키 활동 로그를 최신순으로 반환합니다.
func (s *keyService) RecentActivity(ctx context.Context, limit int) ([]models.KeyActivityLog, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT al.id, al.key_id, k.key_string, al.action, al.details, al.created_at
		FROM key_activity_logs al
		JOIN license_keys k ON al.key_id = k.id
		ORDER BY al.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query key activity: %w", err)
	}
	defer rows.Close()

	logs := []models.KeyActivityLog{}
	for rows.Next() {
		var l models.KeyActivityLog
		if err := rows.Scan(&l.ID, &l.KeyID, &l.KeyString, &l.Action, &l.Details, &l.CreatedAt); err != nil {
			logger.Warn("Failed to scan key activity row: %v", err)
			continue
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// logActivity 키 활동 로그 기록. 실패해도 본 조작을 막지 않습니다.
func (s *keyService) logActivity(ctx context.Context, exec execer, keyID, keyString, action, details string) {
	_, err := exec.ExecContext(ctx,
		`INSERT INTO key_activity_logs (key_id, action, details, created_at) VALUES (?, ?, ?, ?)`,
		keyID, action, details, utils.FormatDateTimeForDB(utils.NowShanghai()),
	)
	if err != nil {
		logger.Error("Failed to log key activity for %s: %v", keyString, err)
	}
}

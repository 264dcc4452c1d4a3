package services_test

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interviewkey/database"
	"interviewkey/models"
	"interviewkey/services"
	"interviewkey/utils"
)

var keyStringPattern = regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`)

func newTestService(t *testing.T) services.KeyService {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, database.Initialize("sqlite", dbPath))
	t.Cleanup(database.Close)

	return services.NewKeyService(services.NewSQLExecutor(database.DB), database.Type())
}

// newActiveKey 발급 후 바로 활성화된 키를 준비합니다.
func newActiveKey(t *testing.T, svc services.KeyService, durationHours int) models.LicenseKey {
	t.Helper()

	created, err := svc.Create(context.Background(), durationHours, "")
	require.NoError(t, err)

	key, err := svc.Activate(context.Background(), created.KeyString, "127.0.0.1", "test-machine")
	require.NoError(t, err)
	return key
}

// forceExpiresAt 테스트용으로 만료 시각을 직접 덮어씁니다.
func forceExpiresAt(t *testing.T, id string, expiresAt time.Time) {
	t.Helper()
	_, err := database.DB.Exec(`UPDATE license_keys SET expires_at = ? WHERE id = ?`,
		utils.FormatDateTimeForDB(expiresAt), id)
	require.NoError(t, err)
}

func TestCreateKey(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	key, err := svc.Create(ctx, 24, "batch A")
	require.NoError(t, err)

	assert.Regexp(t, keyStringPattern, key.KeyString)
	assert.Equal(t, models.KeyStatusInactive, key.Status)
	assert.Equal(t, 24, key.DurationHours)
	assert.Equal(t, "batch A", key.Notes)
	assert.Empty(t, key.ActivatedAt)
	assert.Empty(t, key.ExpiresAt)
	assert.Nil(t, key.RemainingSecondsOnPause)

	_, err = svc.Create(ctx, 0, "")
	assert.Error(t, err)
}

func TestActivate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, 2, "")
	require.NoError(t, err)

	key, err := svc.Activate(ctx, created.KeyString, "10.0.0.5", "dev-laptop")
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusActive, key.Status)
	assert.Equal(t, "10.0.0.5", key.ActivatedIP)
	assert.Equal(t, "dev-laptop", key.HardwareName)

	expires, err := utils.ParseDBDate(key.ExpiresAt)
	require.NoError(t, err)
	assert.InDelta(t, 2*time.Hour.Seconds(), time.Until(expires).Seconds(), 5)

	// 만료 전 재활성화는 멱등 no-op
	again, err := svc.Activate(ctx, created.KeyString, "10.0.0.9", "other-machine")
	require.NoError(t, err)
	assert.Equal(t, key.ExpiresAt, again.ExpiresAt)
	assert.Equal(t, "10.0.0.5", again.ActivatedIP)
}

func TestActivateUnknownKey(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Activate(context.Background(), "0000-0000-0000-0000", "1.2.3.4", "m")
	assert.ErrorIs(t, err, services.ErrKeyNotFound)
}

func TestPauseAndResume(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	key := newActiveKey(t, svc, 1)

	paused, err := svc.Pause(ctx, key.KeyString)
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusPaused, paused.Status)
	assert.Empty(t, paused.ExpiresAt)
	require.NotNil(t, paused.RemainingSecondsOnPause)
	assert.InDelta(t, 3600, *paused.RemainingSecondsOnPause, 5)

	// 일시정지 중에는 차감 불가
	_, err = svc.Meter(ctx, key.KeyString, 60)
	assert.ErrorIs(t, err, services.ErrKeyNotActive)

	// 일시정지 키를 다시 활성화할 수는 없다
	_, err = svc.Activate(ctx, key.KeyString, "1.2.3.4", "m")
	assert.ErrorIs(t, err, services.ErrKeyNotActive)

	resumed, err := svc.Resume(ctx, key.KeyString)
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusActive, resumed.Status)
	assert.Nil(t, resumed.RemainingSecondsOnPause)

	expires, err := utils.ParseDBDate(resumed.ExpiresAt)
	require.NoError(t, err)
	// pause → resume 왕복으로 잔여 시간이 보존된다
	assert.InDelta(t, float64(*paused.RemainingSecondsOnPause), time.Until(expires).Seconds(), 5)

	// active 키에 resume은 전제조건 위반
	_, err = svc.Resume(ctx, key.KeyString)
	assert.ErrorIs(t, err, services.ErrKeyNotPaused)
}

func TestPauseRequiresActive(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, "")
	require.NoError(t, err)

	_, err = svc.Pause(ctx, created.KeyString)
	assert.ErrorIs(t, err, services.ErrKeyNotActive)
}

func TestResumeWithZeroBankFails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	key := newActiveKey(t, svc, 1)
	_, err := svc.Pause(ctx, key.KeyString)
	require.NoError(t, err)

	_, err = database.DB.Exec(
		`UPDATE license_keys SET remaining_seconds_on_pause = 0 WHERE key_string = ?`, key.KeyString)
	require.NoError(t, err)

	_, err = svc.Resume(ctx, key.KeyString)
	assert.ErrorIs(t, err, services.ErrInsufficientEntitlement)
}

func TestMeter(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	key := newActiveKey(t, svc, 1)
	before, err := utils.ParseDBDate(key.ExpiresAt)
	require.NoError(t, err)

	metered, err := svc.Meter(ctx, key.KeyString, 600)
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusActive, metered.Status)

	after, err := utils.ParseDBDate(metered.ExpiresAt)
	require.NoError(t, err)
	// 정확히 요청한 초만큼 당겨진다
	assert.Equal(t, 600*time.Second, before.Sub(after))

	_, err = svc.Meter(ctx, key.KeyString, 0)
	assert.Error(t, err)
}

func TestMeterInsufficient(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	key := newActiveKey(t, svc, 1)

	_, err := svc.Meter(ctx, key.KeyString, 2*3600)
	require.ErrorIs(t, err, services.ErrInsufficientEntitlement)

	var insufficient *services.InsufficientEntitlementError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(2*3600), insufficient.NeededSeconds)
	assert.InDelta(t, 3600, insufficient.RemainingSeconds, 5)

	// 부족 시에는 아무것도 차감되지 않는다
	current, err := svc.Get(ctx, key.KeyString)
	require.NoError(t, err)
	assert.Equal(t, key.ExpiresAt, current.ExpiresAt)
	assert.Equal(t, models.KeyStatusActive, current.Status)
}

func TestRevoke(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	key := newActiveKey(t, svc, 1)

	revoked, err := svc.Revoke(ctx, key.KeyString)
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusRevoked, revoked.Status)
	assert.Empty(t, revoked.ExpiresAt)
	assert.Nil(t, revoked.RemainingSecondsOnPause)

	// revoked는 흡수 상태: 이후 모든 조작이 거부된다
	_, err = svc.Activate(ctx, key.KeyString, "1.2.3.4", "m")
	assert.ErrorIs(t, err, services.ErrKeyRevoked)
	_, err = svc.Pause(ctx, key.KeyString)
	assert.ErrorIs(t, err, services.ErrKeyRevoked)
	_, err = svc.Resume(ctx, key.KeyString)
	assert.ErrorIs(t, err, services.ErrKeyRevoked)
	_, err = svc.Meter(ctx, key.KeyString, 1)
	assert.ErrorIs(t, err, services.ErrKeyRevoked)
	_, err = svc.Revoke(ctx, key.KeyString)
	assert.ErrorIs(t, err, services.ErrKeyRevoked)
}

func TestRevokePausedKey(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	key := newActiveKey(t, svc, 1)
	_, err := svc.Pause(ctx, key.KeyString)
	require.NoError(t, err)

	revoked, err := svc.Revoke(ctx, key.KeyString)
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusRevoked, revoked.Status)
	assert.Nil(t, revoked.RemainingSecondsOnPause)
}

func TestPastExpiryBeforeSweep(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	key := newActiveKey(t, svc, 1)
	forceExpiresAt(t, key.ID, utils.NowShanghai().Add(-time.Hour))

	// 스윕 전까지 조회는 active + 과거 만료 시각을 그대로 보고한다
	current, err := svc.Get(ctx, key.KeyString)
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusActive, current.Status)

	// 변경 조작은 거부되고, 상태 전환은 스윕 몫이다
	_, err = svc.Activate(ctx, key.KeyString, "1.2.3.4", "m")
	assert.ErrorIs(t, err, services.ErrKeyExpired)
	_, err = svc.Pause(ctx, key.KeyString)
	assert.ErrorIs(t, err, services.ErrKeyExpired)
	_, err = svc.Meter(ctx, key.KeyString, 60)
	assert.ErrorIs(t, err, services.ErrInsufficientEntitlement)

	current, err = svc.Get(ctx, key.KeyString)
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusActive, current.Status)
}

func TestSweepExpired(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	expiredA := newActiveKey(t, svc, 1)
	forceExpiresAt(t, expiredA.ID, utils.NowShanghai().Add(-time.Minute))
	expiredB := newActiveKey(t, svc, 1)
	forceExpiresAt(t, expiredB.ID, utils.NowShanghai().Add(-24*time.Hour))

	alive := newActiveKey(t, svc, 1)
	pausedKey := newActiveKey(t, svc, 1)
	_, err := svc.Pause(ctx, pausedKey.KeyString)
	require.NoError(t, err)

	count, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	for _, ks := range []string{expiredA.KeyString, expiredB.KeyString} {
		key, err := svc.Get(ctx, ks)
		require.NoError(t, err)
		assert.Equal(t, models.KeyStatusExpired, key.Status)
	}

	// 스윕은 active + 만료 시각 경과 키만 건드린다
	key, err := svc.Get(ctx, alive.KeyString)
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusActive, key.Status)
	key, err = svc.Get(ctx, pausedKey.KeyString)
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusPaused, key.Status)

	// 반복 실행은 멱등
	count, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// 스윕 이후 만료 키는 말단 상태
	_, err = svc.Activate(ctx, expiredA.KeyString, "1.2.3.4", "m")
	assert.ErrorIs(t, err, services.ErrKeyExpired)
}

func TestUpdateNotes(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, 1, "old")
	require.NoError(t, err)

	updated, err := svc.UpdateNotes(ctx, created.ID, "new note")
	require.NoError(t, err)
	assert.Equal(t, "new note", updated.Notes)
	assert.Equal(t, created.Status, updated.Status)

	_, err = svc.UpdateNotes(ctx, "missing-id", "x")
	assert.ErrorIs(t, err, services.ErrKeyNotFound)
}

func TestListKeys(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, 1, "")
		require.NoError(t, err)
	}
	newActiveKey(t, svc, 1)

	keys, total, err := svc.List(ctx, services.KeyFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, keys, 4)

	keys, total, err = svc.List(ctx, services.KeyFilter{Status: models.KeyStatusInactive})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	for _, k := range keys {
		assert.Equal(t, models.KeyStatusInactive, k.Status)
	}

	keys, total, err = svc.List(ctx, services.KeyFilter{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, keys, 2)
}

func TestRecentActivity(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	key := newActiveKey(t, svc, 1)
	_, err := svc.Meter(ctx, key.KeyString, 60)
	require.NoError(t, err)

	logs, err := svc.RecentActivity(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 3)

	// 최신순: metered → activated → created
	assert.Equal(t, models.KeyActionMetered, logs[0].Action)
	assert.Equal(t, models.KeyActionActivated, logs[1].Action)
	assert.Equal(t, models.KeyActionCreated, logs[2].Action)
	assert.Equal(t, key.KeyString, logs[0].KeyString)
}

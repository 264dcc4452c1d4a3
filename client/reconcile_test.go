package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interviewkey/models"
	"interviewkey/services"
	"interviewkey/utils"
)

func writeKeyJSON(t *testing.T, w http.ResponseWriter, key models.LicenseKey) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(models.SuccessResponse("ok", key)))
}

func writeCodedError(t *testing.T, w http.ResponseWriter, status int, code string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(models.CodedErrorResponse(code, "rejected", nil)))
}

func writeCodedErrorWithData(t *testing.T, w http.ResponseWriter, code string, data interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	require.NoError(t, json.NewEncoder(w).Encode(models.CodedErrorResponse(code, "rejected", data)))
}

func activeKey(keyString string, until time.Duration) models.LicenseKey {
	return models.LicenseKey{
		KeyString: keyString,
		Status:    models.KeyStatusActive,
		ExpiresAt: utils.FormatDateTimeForDB(utils.NowShanghai().Add(until)),
	}
}

func newTestClient(t *testing.T, baseURL string) *ReconcileClient {
	t.Helper()
	rc, err := NewReconcileClient(Config{
		BaseURL:        baseURL,
		StatePath:      filepath.Join(t.TempDir(), "activation.json"),
		RequestTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(rc.StopReconciliation)
	return rc
}

func setCache(t *testing.T, rc *ReconcileClient, state *LocalActivation) {
	t.Helper()
	rc.mu.Lock()
	rc.cache = state
	if state != nil {
		require.NoError(t, rc.store.Save(state))
	}
	rc.mu.Unlock()
}

func TestActivateUpdatesCacheAndPersists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/key/activate", r.URL.Path)
		writeKeyJSON(t, w, activeKey("AAAA-BBBB-CCCC-DDDD", time.Hour))
	}))
	defer srv.Close()

	rc := newTestClient(t, srv.URL)

	key, err := rc.Activate(context.Background(), "AAAA-BBBB-CCCC-DDDD", "test-machine")
	require.NoError(t, err)
	assert.Equal(t, models.KeyStatusActive, key.Status)

	ent := rc.CurrentEntitlement()
	assert.True(t, ent.Active)
	assert.InDelta(t, 3600, ent.RemainingSeconds, 5)

	// 재시작 시 저장된 캐시로 복원된다
	rc2, err := NewReconcileClient(Config{BaseURL: srv.URL, StatePath: rc.store.path})
	require.NoError(t, err)
	ent = rc2.CurrentEntitlement()
	assert.True(t, ent.Active)
	assert.InDelta(t, 3600, ent.RemainingSeconds, 5)
}

func TestActivateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCodedError(t, w, http.StatusForbidden, models.CodeKeyRevoked)
	}))
	defer srv.Close()

	rc := newTestClient(t, srv.URL)

	_, err := rc.Activate(context.Background(), "AAAA-BBBB-CCCC-DDDD", "test-machine")
	assert.ErrorIs(t, err, services.ErrKeyRevoked)

	_, ok := rc.snapshot()
	assert.False(t, ok)
}

func TestReconcileOnceWithoutCache(t *testing.T) {
	rc := newTestClient(t, "http://127.0.0.1:1")
	assert.False(t, rc.ReconcileOnce())
}

func TestReconcileTransportFailureKeepsCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rc := newTestClient(t, srv.URL)
	srv.Close() // 이후 모든 요청은 연결 실패

	setCache(t, rc, &LocalActivation{
		KeyString:    "AAAA-BBBB-CCCC-DDDD",
		Status:       models.KeyStatusActive,
		ExpiresAt:    utils.NowShanghai().Add(time.Hour),
		LastSyncTime: utils.NowShanghai(),
	})
	fileBefore, err := os.ReadFile(rc.store.path)
	require.NoError(t, err)

	assert.False(t, rc.ReconcileOnce())

	// 통신 실패는 캐시를 전혀 건드리지 않는다
	state, ok := rc.snapshot()
	require.True(t, ok)
	assert.Equal(t, models.KeyStatusActive, state.Status)

	fileAfter, err := os.ReadFile(rc.store.path)
	require.NoError(t, err)
	assert.Equal(t, fileBefore, fileAfter)
}

func TestReconcileExpiredClearsCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCodedError(t, w, http.StatusForbidden, models.CodeKeyExpired)
	}))
	defer srv.Close()

	rc := newTestClient(t, srv.URL)
	setCache(t, rc, &LocalActivation{
		KeyString: "AAAA-BBBB-CCCC-DDDD",
		Status:    models.KeyStatusActive,
		ExpiresAt: utils.NowShanghai().Add(time.Hour),
	})

	assert.False(t, rc.ReconcileOnce())

	_, ok := rc.snapshot()
	assert.False(t, ok)
	_, err := os.Stat(rc.store.path)
	assert.True(t, os.IsNotExist(err))
}

func TestReconcilePausedBanksTime(t *testing.T) {
	banked := int64(1234)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeKeyJSON(t, w, models.LicenseKey{
			KeyString:               "AAAA-BBBB-CCCC-DDDD",
			Status:                  models.KeyStatusPaused,
			RemainingSecondsOnPause: &banked,
		})
	}))
	defer srv.Close()

	rc := newTestClient(t, srv.URL)
	setCache(t, rc, &LocalActivation{
		KeyString: "AAAA-BBBB-CCCC-DDDD",
		Status:    models.KeyStatusActive,
		ExpiresAt: utils.NowShanghai().Add(time.Hour),
	})

	assert.False(t, rc.ReconcileOnce())

	ent := rc.CurrentEntitlement()
	assert.False(t, ent.Active)
	assert.Equal(t, banked, ent.RemainingSeconds)

	state, ok := rc.snapshot()
	require.True(t, ok)
	assert.Equal(t, models.KeyStatusPaused, state.Status)
}

func TestReconcileActivePastExpiryClears(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 스윕 전의 키: 서버는 active를 보고하지만 만료 시각이 지났다
		writeKeyJSON(t, w, activeKey("AAAA-BBBB-CCCC-DDDD", -time.Minute))
	}))
	defer srv.Close()

	rc := newTestClient(t, srv.URL)
	setCache(t, rc, &LocalActivation{
		KeyString: "AAAA-BBBB-CCCC-DDDD",
		Status:    models.KeyStatusActive,
		ExpiresAt: utils.NowShanghai().Add(time.Minute),
	})

	assert.False(t, rc.ReconcileOnce())

	_, ok := rc.snapshot()
	assert.False(t, ok)
}

func TestReconcileSkipsWhenInFlight(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		writeKeyJSON(t, w, activeKey("AAAA-BBBB-CCCC-DDDD", time.Hour))
	}))
	defer srv.Close()

	rc := newTestClient(t, srv.URL)
	setCache(t, rc, &LocalActivation{
		KeyString: "AAAA-BBBB-CCCC-DDDD",
		Status:    models.KeyStatusActive,
		ExpiresAt: utils.NowShanghai().Add(time.Hour),
	})

	rc.mu.Lock()
	rc.inFlight = true
	rc.mu.Unlock()

	assert.False(t, rc.ReconcileOnce())
	assert.Equal(t, int64(0), requests.Load())
}

func TestStaleSessionResponseDiscarded(t *testing.T) {
	rc := newTestClient(t, "")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 응답이 도착하기 전에 세션이 바뀐 상황을 재현한다
		rc.mu.Lock()
		rc.sessionID = "superseded"
		rc.mu.Unlock()
		writeCodedError(t, w, http.StatusForbidden, models.CodeKeyExpired)
	}))
	defer srv.Close()
	rc.api = NewAPIClient(srv.URL, 2*time.Second)

	setCache(t, rc, &LocalActivation{
		KeyString: "AAAA-BBBB-CCCC-DDDD",
		Status:    models.KeyStatusActive,
		ExpiresAt: utils.NowShanghai().Add(time.Hour),
	})

	assert.False(t, rc.ReconcileOnce())

	// 무효화된 세션의 응답은 캐시를 강등시키지 못한다
	state, ok := rc.snapshot()
	require.True(t, ok)
	assert.Equal(t, models.KeyStatusActive, state.Status)
}

func TestStartStopIdempotent(t *testing.T) {
	rc := newTestClient(t, "http://127.0.0.1:1")

	rc.StopReconciliation() // 시작 전 Stop은 no-op

	rc.StartReconciliation()
	rc.StartReconciliation()
	rc.StopReconciliation()
	rc.StopReconciliation()
}

func TestLogoutClearsEverything(t *testing.T) {
	rc := newTestClient(t, "http://127.0.0.1:1")
	setCache(t, rc, &LocalActivation{
		KeyString: "AAAA-BBBB-CCCC-DDDD",
		Status:    models.KeyStatusActive,
		ExpiresAt: utils.NowShanghai().Add(time.Hour),
	})
	rc.StartReconciliation()

	require.NoError(t, rc.Logout())

	_, ok := rc.snapshot()
	assert.False(t, ok)
	_, err := os.Stat(rc.store.path)
	assert.True(t, os.IsNotExist(err))
}

func TestStateStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activation.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	state, err := NewStateStore(path).Load()
	require.NoError(t, err)
	assert.Nil(t, state)
}

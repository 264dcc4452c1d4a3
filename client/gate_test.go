package client

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interviewkey/models"
	"interviewkey/utils"
)

// gateProbe 훅 호출 기록용
type gateProbe struct {
	activationRequired bool
	resumeRequired     bool
	insufficientNeeded int64
	insufficientHave   int64
}

func (p *gateProbe) hooks() GateHooks {
	return GateHooks{
		OnActivationRequired: func() { p.activationRequired = true },
		OnResumeRequired:     func() { p.resumeRequired = true },
		OnInsufficient: func(needed, remaining int64) {
			p.insufficientNeeded = needed
			p.insufficientHave = remaining
		},
	}
}

func TestGuardRequiresActivation(t *testing.T) {
	rc := newTestClient(t, "http://127.0.0.1:1")
	probe := &gateProbe{}
	gate := NewGate(rc, probe.hooks())

	ran := false
	ok := gate.Guard(func() { ran = true }, 0)

	assert.False(t, ok)
	assert.False(t, ran)
	assert.True(t, probe.activationRequired)
}

func TestGuardPausedPromptsResume(t *testing.T) {
	rc := newTestClient(t, "http://127.0.0.1:1")
	setCache(t, rc, &LocalActivation{
		KeyString:               "AAAA-BBBB-CCCC-DDDD",
		Status:                  models.KeyStatusPaused,
		RemainingSecondsOnPause: 600,
	})
	probe := &gateProbe{}
	gate := NewGate(rc, probe.hooks())

	ran := false
	ok := gate.Guard(func() { ran = true }, 0)

	assert.False(t, ok)
	assert.False(t, ran)
	assert.True(t, probe.resumeRequired)
	assert.False(t, probe.activationRequired)
}

func TestGuardActiveRunsAction(t *testing.T) {
	rc := newTestClient(t, "http://127.0.0.1:1")
	setCache(t, rc, &LocalActivation{
		KeyString: "AAAA-BBBB-CCCC-DDDD",
		Status:    models.KeyStatusActive,
		ExpiresAt: utils.NowShanghai().Add(time.Hour),
	})
	gate := NewGate(rc, GateHooks{})

	ran := false
	assert.True(t, gate.Guard(func() { ran = true }, 0))
	assert.True(t, ran)
}

func TestGuardLocallyExpired(t *testing.T) {
	rc := newTestClient(t, "http://127.0.0.1:1")
	setCache(t, rc, &LocalActivation{
		KeyString: "AAAA-BBBB-CCCC-DDDD",
		Status:    models.KeyStatusActive,
		ExpiresAt: utils.NowShanghai().Add(-10 * time.Second),
	})
	probe := &gateProbe{}
	gate := NewGate(rc, probe.hooks())

	ran := false
	ok := gate.Guard(func() { ran = true }, 0)

	assert.False(t, ok)
	assert.False(t, ran)
	assert.True(t, probe.activationRequired)
}

func TestGuardWithinGraceBuffer(t *testing.T) {
	rc := newTestClient(t, "http://127.0.0.1:1")
	// 만료 직후지만 유예(5초) 이내. 다음 동기화 전까지는 통과시킨다.
	setCache(t, rc, &LocalActivation{
		KeyString: "AAAA-BBBB-CCCC-DDDD",
		Status:    models.KeyStatusActive,
		ExpiresAt: utils.NowShanghai().Add(-2 * time.Second),
	})
	gate := NewGate(rc, GateHooks{})

	ran := false
	assert.True(t, gate.Guard(func() { ran = true }, 0))
	assert.True(t, ran)
}

func TestGuardInsufficientLocally(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	rc := newTestClient(t, srv.URL)
	setCache(t, rc, &LocalActivation{
		KeyString: "AAAA-BBBB-CCCC-DDDD",
		Status:    models.KeyStatusActive,
		ExpiresAt: utils.NowShanghai().Add(100 * time.Second),
	})
	probe := &gateProbe{}
	gate := NewGate(rc, probe.hooks())

	ran := false
	ok := gate.Guard(func() { ran = true }, 200)

	assert.False(t, ok)
	assert.False(t, ran)
	assert.Equal(t, int64(200), probe.insufficientNeeded)
	assert.InDelta(t, 100, probe.insufficientHave, 5)
	// 로컬에서 이미 부족하면 서버 호출 없이 차단한다
	assert.Equal(t, int64(0), requests.Load())
}

func TestGuardMeterSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/key/meter", r.URL.Path)
		writeKeyJSON(t, w, activeKey("AAAA-BBBB-CCCC-DDDD", 30*time.Minute))
	}))
	defer srv.Close()

	rc := newTestClient(t, srv.URL)
	setCache(t, rc, &LocalActivation{
		KeyString: "AAAA-BBBB-CCCC-DDDD",
		Status:    models.KeyStatusActive,
		ExpiresAt: utils.NowShanghai().Add(time.Hour),
	})
	gate := NewGate(rc, GateHooks{})

	ran := false
	assert.True(t, gate.Guard(func() { ran = true }, 600))
	assert.True(t, ran)

	// 차감 응답으로 캐시 만료 시각이 갱신된다
	state, ok := rc.snapshot()
	require.True(t, ok)
	assert.InDelta(t, 30*time.Minute.Seconds(), time.Until(state.ExpiresAt).Seconds(), 5)
}

func TestGuardMeterTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rc := newTestClient(t, srv.URL)
	srv.Close()

	setCache(t, rc, &LocalActivation{
		KeyString: "AAAA-BBBB-CCCC-DDDD",
		Status:    models.KeyStatusActive,
		ExpiresAt: utils.NowShanghai().Add(time.Hour),
	})
	gate := NewGate(rc, GateHooks{})

	// 기본값: 통신 실패 시 로컬 캐시 기준으로 허용
	ran := false
	assert.True(t, gate.Guard(func() { ran = true }, 60))
	assert.True(t, ran)

	// 엄격 모드에서는 차단
	gate.AllowOnMeterFailure = false
	ran = false
	assert.False(t, gate.Guard(func() { ran = true }, 60))
	assert.False(t, ran)

	// 어느 쪽이든 캐시는 유지된다
	state, ok := rc.snapshot()
	require.True(t, ok)
	assert.Equal(t, models.KeyStatusActive, state.Status)
}

func TestGuardMeterServerRevoked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCodedError(t, w, http.StatusForbidden, models.CodeKeyRevoked)
	}))
	defer srv.Close()

	rc := newTestClient(t, srv.URL)
	setCache(t, rc, &LocalActivation{
		KeyString: "AAAA-BBBB-CCCC-DDDD",
		Status:    models.KeyStatusActive,
		ExpiresAt: utils.NowShanghai().Add(time.Hour),
	})
	probe := &gateProbe{}
	gate := NewGate(rc, probe.hooks())

	ran := false
	ok := gate.Guard(func() { ran = true }, 60)

	assert.False(t, ok)
	assert.False(t, ran)
	assert.True(t, probe.activationRequired)

	// 서버의 명시적 거부는 캐시를 정리한다
	_, cached := rc.snapshot()
	assert.False(t, cached)
}

func TestGuardMeterServerInsufficient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCodedErrorWithData(t, w, models.CodeInsufficientTime, map[string]int64{
			"needed_seconds":    60,
			"remaining_seconds": 10,
		})
	}))
	defer srv.Close()

	rc := newTestClient(t, srv.URL)
	// 로컬 캐시는 아직 넉넉하지만 서버가 진실을 안다
	setCache(t, rc, &LocalActivation{
		KeyString: "AAAA-BBBB-CCCC-DDDD",
		Status:    models.KeyStatusActive,
		ExpiresAt: utils.NowShanghai().Add(time.Hour),
	})
	probe := &gateProbe{}
	gate := NewGate(rc, probe.hooks())

	ran := false
	ok := gate.Guard(func() { ran = true }, 60)

	assert.False(t, ok)
	assert.False(t, ran)
	assert.Equal(t, int64(60), probe.insufficientNeeded)
	assert.Equal(t, int64(10), probe.insufficientHave)

	// 부족 거부는 캐시를 지우지 않는다. 다음 동기화가 바로잡는다.
	state, cached := rc.snapshot()
	require.True(t, cached)
	assert.Equal(t, models.KeyStatusActive, state.Status)
}

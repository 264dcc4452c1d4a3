package client

import (
	"context"
	"errors"

	"interviewkey/logger"
	"interviewkey/models"
	"interviewkey/services"
	"interviewkey/utils"
)

// GateHooks 차단 시 호출되는 콜백. nil 필드는 무시됩니다.
type GateHooks struct {
	OnActivationRequired func()                           // 캐시 없음 또는 키가 더 이상 유효하지 않음
	OnResumeRequired     func()                           // 키가 일시정지 상태
	OnInsufficient       func(needed, remaining int64)    // 잔여 시간 부족
}

// Gate 보호 구간 진입을 통제하는 게이트.
// AllowOnMeterFailure가 true면(기본값) 차감 요청이 통신 실패했을 때
// 로컬 캐시 기준으로 진입을 허용합니다.
type Gate struct {
	rc    *ReconcileClient
	hooks GateHooks

	AllowOnMeterFailure bool
}

// NewGate Gate 생성
func NewGate(rc *ReconcileClient, hooks GateHooks) *Gate {
	return &Gate{
		rc:                  rc,
		hooks:               hooks,
		AllowOnMeterFailure: true,
	}
}

// Guard 자격이 있으면 action을 실행하고 true를 반환합니다.
// meterSeconds > 0이면 실행 전에 서버에 해당 시간만큼 차감을 요청합니다.
func (g *Gate) Guard(action func(), meterSeconds int64) bool {
	state, ok := g.rc.snapshot()
	if !ok {
		g.callActivationRequired()
		return false
	}

	switch state.Status {
	case models.KeyStatusPaused:
		if g.hooks.OnResumeRequired != nil {
			g.hooks.OnResumeRequired()
		}
		return false

	case models.KeyStatusActive:
		remaining := int64(state.ExpiresAt.Sub(utils.NowShanghai()).Seconds())
		if remaining+int64(g.rc.graceBuffer.Seconds()) <= 0 {
			// 로컬 기준으로도 만료. 재활성화 안내 후 다음 동기화에 맡깁니다.
			g.callActivationRequired()
			return false
		}

		if meterSeconds > 0 {
			if remaining < meterSeconds {
				if g.hooks.OnInsufficient != nil {
					g.hooks.OnInsufficient(meterSeconds, maxInt64(remaining, 0))
				}
				return false
			}
			if !g.meter(state.KeyString, meterSeconds) {
				return false
			}
		}

		action()
		return true
	}

	g.callActivationRequired()
	return false
}

// meter 서버에 차감을 요청하고 결과를 캐시에 반영합니다.
func (g *Gate) meter(keyString string, seconds int64) bool {
	ctx, cancel := context.WithTimeout(context.Background(), g.rc.requestTimeout)
	key, err := g.rc.api.Meter(ctx, keyString, seconds)
	cancel()

	if err == nil {
		g.rc.mu.Lock()
		g.rc.applyKeyLocked(&key)
		g.rc.mu.Unlock()
		return true
	}

	if errors.Is(err, ErrTransport) {
		if g.AllowOnMeterFailure {
			logger.WithFields(map[string]interface{}{
				"key":     keyString,
				"seconds": seconds,
				"error":   err.Error(),
			}).Warn("Meter request failed, allowing entry on local cache")
			return true
		}
		return false
	}

	// 서버가 명시적으로 거부한 경우 캐시에 반영합니다.
	var insufficient *services.InsufficientEntitlementError
	if errors.As(err, &insufficient) {
		if g.hooks.OnInsufficient != nil {
			g.hooks.OnInsufficient(insufficient.NeededSeconds, insufficient.RemainingSeconds)
		}
		return false
	}

	g.rc.mu.Lock()
	g.rc.applyErrorLocked(keyString, err)
	g.rc.mu.Unlock()

	if errors.Is(err, services.ErrKeyNotPaused) || errors.Is(err, services.ErrKeyNotActive) {
		if g.hooks.OnResumeRequired != nil {
			g.hooks.OnResumeRequired()
		}
		return false
	}

	g.callActivationRequired()
	return false
}

func (g *Gate) callActivationRequired() {
	if g.hooks.OnActivationRequired != nil {
		g.hooks.OnActivationRequired()
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

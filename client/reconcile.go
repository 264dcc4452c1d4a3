package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"interviewkey/logger"
	"interviewkey/models"
	"interviewkey/services"
	"interviewkey/utils"
)

// Config ReconcileClient 설정. 0 값은 기본값으로 대체됩니다.
type Config struct {
	BaseURL        string
	StatePath      string
	GraceBuffer    time.Duration // 로컬 만료 판정 유예 (기본 5초)
	FirstSyncDelay time.Duration // 활성화 후 첫 동기화 지연 (기본 10초)
	SyncInterval   time.Duration // 주기 동기화 간격 (기본 5분)
	RequestTimeout time.Duration // 요청 타임아웃 (기본 10초)
}

// Entitlement 현재 사용 자격 스냅샷
type Entitlement struct {
	Active           bool  `json:"active"`
	RemainingSeconds int64 `json:"remaining_seconds"`
}

// ReconcileClient 서버 상태를 로컬 캐시로 동기화하는 클라이언트.
// 캐시는 서버 응답으로만 바뀌고, 통신 실패 시에는 그대로 유지됩니다.
type ReconcileClient struct {
	api   *APIClient
	store *StateStore

	graceBuffer    time.Duration
	firstSyncDelay time.Duration
	syncInterval   time.Duration
	requestTimeout time.Duration

	mu        sync.Mutex
	cache     *LocalActivation
	sessionID string // 진행 중인 동기화 세션. 불일치 응답은 버립니다.
	inFlight  bool
	running   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewReconcileClient ReconcileClient 생성. 저장된 캐시가 있으면 읽어옵니다.
func NewReconcileClient(cfg Config) (*ReconcileClient, error) {
	if cfg.GraceBuffer <= 0 {
		cfg.GraceBuffer = 5 * time.Second
	}
	if cfg.FirstSyncDelay <= 0 {
		cfg.FirstSyncDelay = 10 * time.Second
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 5 * time.Minute
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	store := NewStateStore(cfg.StatePath)
	cache, err := store.Load()
	if err != nil {
		return nil, err
	}

	return &ReconcileClient{
		api:            NewAPIClient(cfg.BaseURL, cfg.RequestTimeout),
		store:          store,
		graceBuffer:    cfg.GraceBuffer,
		firstSyncDelay: cfg.FirstSyncDelay,
		syncInterval:   cfg.SyncInterval,
		requestTimeout: cfg.RequestTimeout,
		cache:          cache,
	}, nil
}

// Activate 서버에 활성화를 요청하고 성공 시 캐시를 갱신한 뒤
// 백그라운드 동기화를 시작합니다.
func (r *ReconcileClient) Activate(ctx context.Context, keyString, hardwareName string) (models.LicenseKey, error) {
	key, err := r.api.Activate(ctx, keyString, hardwareName)
	if err != nil {
		return models.LicenseKey{}, err
	}

	r.mu.Lock()
	r.applyKeyLocked(&key)
	r.mu.Unlock()

	r.StartReconciliation()
	return key, nil
}

// CurrentEntitlement 현재 캐시 기준 사용 자격을 반환합니다. 블로킹 없음.
func (r *ReconcileClient) CurrentEntitlement() Entitlement {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cache == nil {
		return Entitlement{}
	}

	switch r.cache.Status {
	case models.KeyStatusActive:
		remaining := int64(time.Until(r.cache.ExpiresAt).Seconds())
		if remaining+int64(r.graceBuffer.Seconds()) <= 0 {
			return Entitlement{}
		}
		if remaining < 0 {
			remaining = 0
		}
		return Entitlement{Active: true, RemainingSeconds: remaining}
	case models.KeyStatusPaused:
		return Entitlement{Active: false, RemainingSeconds: r.cache.RemainingSecondsOnPause}
	}
	return Entitlement{}
}

// StartReconciliation 백그라운드 동기화 루프 시작. 재호출은 무시됩니다.
func (r *ReconcileClient) StartReconciliation() {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	logger.WithFields(map[string]interface{}{
		"first_sync_delay": r.firstSyncDelay.String(),
		"sync_interval":    r.syncInterval.String(),
	}).Debug("Reconciliation loop started")

	go func() {
		defer close(doneCh)

		firstSync := time.NewTimer(r.firstSyncDelay)
		defer firstSync.Stop()

		select {
		case <-firstSync.C:
			r.ReconcileOnce()
		case <-stopCh:
			return
		}

		ticker := time.NewTicker(r.syncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.ReconcileOnce()
			case <-stopCh:
				return
			}
		}
	}()
}

// StopReconciliation 동기화 루프를 멈추고 진행 중인 세션을 무효화합니다.
func (r *ReconcileClient) StopReconciliation() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.sessionID = ""
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// Logout 동기화를 멈추고 로컬 캐시를 삭제합니다. 서버 키 상태는 바꾸지 않습니다.
func (r *ReconcileClient) Logout() error {
	r.StopReconciliation()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = nil
	r.sessionID = ""
	return r.store.Clear()
}

// ReconcileOnce 서버 상태를 한 번 조회해 캐시에 반영합니다.
// 반영 후 캐시가 활성 상태면 true를 반환합니다.
// 이미 진행 중인 동기화가 있으면 이번 회차를 건너뜁니다.
func (r *ReconcileClient) ReconcileOnce() bool {
	r.mu.Lock()
	if r.inFlight || r.cache == nil {
		r.mu.Unlock()
		return false
	}
	r.inFlight = true
	session := uuid.NewString()
	r.sessionID = session
	keyString := r.cache.KeyString
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.requestTimeout)
	key, err := r.api.GetKey(ctx, keyString)
	cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight = false

	// 그 사이 Logout/Stop 등으로 세션이 바뀌었으면 응답을 버립니다.
	if r.sessionID != session {
		logger.WithFields(map[string]interface{}{"key": keyString}).Debug("Stale reconciliation response discarded")
		return false
	}

	if err != nil {
		return r.applyErrorLocked(keyString, err)
	}

	r.applyKeyLocked(&key)
	return r.cache != nil && r.cache.Status == models.KeyStatusActive
}

// applyErrorLocked 서버 판정 에러를 캐시에 반영합니다. 통신 실패는 무시.
// r.mu를 잡은 상태에서 호출해야 합니다.
func (r *ReconcileClient) applyErrorLocked(keyString string, err error) bool {
	if errors.Is(err, ErrTransport) {
		logger.WithFields(map[string]interface{}{
			"key":   keyString,
			"error": err.Error(),
		}).Warn("Reconciliation skipped, server unreachable")
		return false
	}

	if errors.Is(err, services.ErrKeyNotFound) ||
		errors.Is(err, services.ErrKeyExpired) ||
		errors.Is(err, services.ErrKeyRevoked) {
		logger.WithFields(map[string]interface{}{
			"key":   keyString,
			"error": err.Error(),
		}).Info("Server rejected key, clearing local activation")
		r.clearLocked()
		return false
	}

	logger.WithFields(map[string]interface{}{
		"key":   keyString,
		"error": err.Error(),
	}).Warn("Reconciliation failed")
	return false
}

// applyKeyLocked 서버가 보고한 키 상태를 캐시에 반영합니다.
// r.mu를 잡은 상태에서 호출해야 합니다.
func (r *ReconcileClient) applyKeyLocked(key *models.LicenseKey) {
	now := utils.NowShanghai()

	switch key.Status {
	case models.KeyStatusExpired, models.KeyStatusRevoked:
		r.clearLocked()

	case models.KeyStatusPaused:
		var banked int64
		if key.RemainingSecondsOnPause != nil {
			banked = *key.RemainingSecondsOnPause
		}
		r.cache = &LocalActivation{
			KeyString:               key.KeyString,
			Status:                  models.KeyStatusPaused,
			RemainingSecondsOnPause: banked,
			LastSyncTime:            now,
		}
		r.persistLocked()

	case models.KeyStatusActive:
		expiresAt, err := utils.ParseDBDate(key.ExpiresAt)
		if err != nil || !expiresAt.After(now) {
			// 스윕 전에 만료 시각을 지난 키는 만료로 취급합니다.
			r.clearLocked()
			return
		}
		r.cache = &LocalActivation{
			KeyString:    key.KeyString,
			Status:       models.KeyStatusActive,
			ExpiresAt:    expiresAt,
			LastSyncTime: now,
		}
		r.persistLocked()

	default:
		// inactive 등: 자격 없음으로 기록만 남깁니다.
		r.cache = &LocalActivation{
			KeyString:    key.KeyString,
			Status:       key.Status,
			LastSyncTime: now,
		}
		r.persistLocked()
	}
}

func (r *ReconcileClient) clearLocked() {
	r.cache = nil
	if err := r.store.Clear(); err != nil {
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Error("Failed to clear activation cache")
	}
}

func (r *ReconcileClient) persistLocked() {
	if err := r.store.Save(r.cache); err != nil {
		logger.WithFields(map[string]interface{}{"error": err.Error()}).Error("Failed to persist activation cache")
	}
}

// snapshot 현재 캐시 복사본을 반환합니다.
func (r *ReconcileClient) snapshot() (LocalActivation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil {
		return LocalActivation{}, false
	}
	return *r.cache, true
}

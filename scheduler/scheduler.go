package scheduler

import (
	"context"
	"sync"
	"time"

	"interviewkey/logger"
	"interviewkey/services"
)

// Scheduler 만료 키 스윕을 주기적으로 실행합니다.
// 타이머를 인스턴스가 소유하므로 Stop으로 결정적으로 종료할 수 있습니다.
type Scheduler struct {
	keys     services.KeyService
	interval time.Duration

	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// New 스케줄러 생성. interval이 0이면 1시간 주기를 사용합니다.
func New(keys services.KeyService, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{keys: keys, interval: interval}
}

// Start 주기 실행 시작. 시작 시 즉시 한 번 스윕합니다. 중복 호출은 무시됩니다.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	logger.Info("Scheduler started (sweep interval: %s)", s.interval)

	s.sweep()

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop 주기 실행 중지. 진행 중인 스윕은 끝까지 수행됩니다.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
	logger.Info("Scheduler stopped")
}

// sweep 만료된 키 일괄 처리
func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := s.keys.SweepExpired(ctx)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"error": err.Error(),
		}).Error("Scheduled sweep failed")
		return
	}

	if count > 0 {
		logger.WithFields(map[string]interface{}{
			"count": count,
		}).Info("Expired keys swept")
	}
}

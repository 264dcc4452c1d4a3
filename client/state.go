package client

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// LocalActivation 로컬에 저장되는 활성화 캐시. 서버 응답으로만 갱신되며
// 클라이언트가 스스로 상태를 전이시키지 않습니다.
type LocalActivation struct {
	KeyString               string    `json:"key_string"`
	Status                  string    `json:"status"`
	ExpiresAt               time.Time `json:"expires_at,omitempty"`
	RemainingSecondsOnPause int64     `json:"remaining_seconds_on_pause,omitempty"`
	LastSyncTime            time.Time `json:"last_sync_time"`
}

// StateStore 활성화 캐시 파일 저장소
type StateStore struct {
	path string
}

// NewStateStore StateStore 생성
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Load 저장된 캐시를 읽습니다. 파일이 없으면 (nil, nil)을 반환합니다.
func (s *StateStore) Load() (*LocalActivation, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var state LocalActivation
	if err := json.Unmarshal(data, &state); err != nil {
		// 손상된 캐시는 없는 것으로 취급
		return nil, nil
	}
	if state.KeyString == "" {
		return nil, nil
	}
	return &state, nil
}

// Save 캐시를 임시 파일에 쓴 뒤 rename으로 교체합니다.
func (s *StateStore) Save(state *LocalActivation) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Clear 캐시 파일 삭제
func (s *StateStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

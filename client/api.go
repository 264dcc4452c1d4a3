package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"interviewkey/models"
	"interviewkey/services"
)

// ErrTransport 서버와의 통신 실패. 서버의 판정 에러와 달리
// 이 에러만은 로컬 캐시를 절대 강등시키지 않습니다.
var ErrTransport = errors.New("transport failure")

// APIClient 키 서버 HTTP 클라이언트
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient APIClient 생성. timeout이 0이면 10초를 사용합니다.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type apiEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// insufficientData 부족량 응답 파싱용
type insufficientData struct {
	NeededSeconds    int64 `json:"needed_seconds"`
	RemainingSeconds int64 `json:"remaining_seconds"`
}

// mapCode 서버 에러 코드를 서비스 센티넬로 변환합니다.
func mapCode(env *apiEnvelope, httpStatus int) error {
	switch env.Code {
	case models.CodeKeyNotFound:
		return services.ErrKeyNotFound
	case models.CodeKeyExpired:
		return services.ErrKeyExpired
	case models.CodeKeyRevoked:
		return services.ErrKeyRevoked
	case models.CodeKeyNotActive:
		return services.ErrKeyNotActive
	case models.CodeKeyNotPaused:
		return services.ErrKeyNotPaused
	case models.CodeInsufficientTime:
		var d insufficientData
		if len(env.Data) > 0 {
			json.Unmarshal(env.Data, &d)
		}
		return &services.InsufficientEntitlementError{
			NeededSeconds:    d.NeededSeconds,
			RemainingSeconds: d.RemainingSeconds,
		}
	}
	if httpStatus == http.StatusNotFound {
		return services.ErrKeyNotFound
	}
	return fmt.Errorf("server error (%d): %s", httpStatus, env.Message)
}

// do 요청 실행 후 응답 data를 key로 디코딩합니다.
// 네트워크/타임아웃 문제는 모두 ErrTransport로 분류됩니다.
func (c *APIClient) do(req *http.Request) (models.LicenseKey, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.LicenseKey{}, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return models.LicenseKey{}, fmt.Errorf("%w: invalid response body: %v", ErrTransport, err)
	}

	if env.Status != "success" {
		return models.LicenseKey{}, mapCode(&env, resp.StatusCode)
	}

	var key models.LicenseKey
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &key); err != nil {
			return models.LicenseKey{}, fmt.Errorf("%w: invalid key payload: %v", ErrTransport, err)
		}
	}
	return key, nil
}

func (c *APIClient) postJSON(ctx context.Context, path string, body interface{}) (models.LicenseKey, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return models.LicenseKey{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return models.LicenseKey{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

// Activate 키 활성화 요청
func (c *APIClient) Activate(ctx context.Context, keyString, hardwareName string) (models.LicenseKey, error) {
	return c.postJSON(ctx, "/api/key/activate", models.ActivateKeyRequest{
		KeyString:    keyString,
		HardwareName: hardwareName,
	})
}

// GetKey 키 상태 조회 (부작용 없음)
func (c *APIClient) GetKey(ctx context.Context, keyString string) (models.LicenseKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/key/status?key="+url.QueryEscape(keyString), nil)
	if err != nil {
		return models.LicenseKey{}, err
	}
	return c.do(req)
}

// Pause 키 일시정지 요청
func (c *APIClient) Pause(ctx context.Context, keyString string) (models.LicenseKey, error) {
	return c.postJSON(ctx, "/api/key/pause", models.KeyStringRequest{KeyString: keyString})
}

// Resume 키 재개 요청
func (c *APIClient) Resume(ctx context.Context, keyString string) (models.LicenseKey, error) {
	return c.postJSON(ctx, "/api/key/resume", models.KeyStringRequest{KeyString: keyString})
}

// Meter 사용 시간 차감 요청
func (c *APIClient) Meter(ctx context.Context, keyString string, seconds int64) (models.LicenseKey, error) {
	return c.postJSON(ctx, "/api/key/meter", models.MeterKeyRequest{
		KeyString: keyString,
		Seconds:   seconds,
	})
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"interviewkey/logger"
	"interviewkey/middleware"
	"interviewkey/models"
	"interviewkey/services"
)

var keyService services.KeyService

// SetKeyService 핸들러가 사용할 KeyService 주입
func SetKeyService(s services.KeyService) {
	keyService = s
}

// writeKeyError 서비스 에러를 HTTP 상태와 에러 코드로 변환해 응답합니다.
// 클라이언트 SDK는 메시지가 아닌 code 필드로 분기합니다.
func writeKeyError(w http.ResponseWriter, requestID interface{}, keyString string, err error) {
	var insufficient *services.InsufficientEntitlementError

	switch {
	case errors.Is(err, services.ErrKeyNotFound):
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(models.CodedErrorResponse(models.CodeKeyNotFound,
			"Key not found", nil))

	case errors.Is(err, services.ErrKeyExpired):
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(models.CodedErrorResponse(models.CodeKeyExpired,
			"Key has expired", nil))

	case errors.Is(err, services.ErrKeyRevoked):
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(models.CodedErrorResponse(models.CodeKeyRevoked,
			"Key has been revoked, contact support", nil))

	case errors.As(err, &insufficient):
		// 부족량을 명시해 사용자에게 필요/보유 시간을 알려준다
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(models.CodedErrorResponse(models.CodeInsufficientTime,
			insufficient.Error(), map[string]interface{}{
				"needed_seconds":    insufficient.NeededSeconds,
				"remaining_seconds": insufficient.RemainingSeconds,
			}))

	case errors.Is(err, services.ErrKeyNotActive):
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(models.CodedErrorResponse(models.CodeKeyNotActive,
			"Key is not active", nil))

	case errors.Is(err, services.ErrKeyNotPaused):
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(models.CodedErrorResponse(models.CodeKeyNotPaused,
			"Key is not paused", nil))

	default:
		logger.WithFields(map[string]interface{}{
			"request_id": requestID,
			"key_string": keyString,
			"error":      err.Error(),
		}).Error("Key operation failed")

		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Internal server error", err))
	}
}

// ActivateKey 키 활성화
// @Summary 키 활성화
// @Description 키 문자열로 사용 시간 카운트다운을 시작합니다. 이미 활성 상태면 현재 레코드를 반환합니다.
// @Tags 클라이언트 - 키
// @Accept json
// @Produce json
// @Param request body models.ActivateKeyRequest true "활성화 정보"
// @Success 200 {object} models.APIResponse{data=models.LicenseKey} "활성화 성공"
// @Failure 400 {object} models.APIResponse "잘못된 요청"
// @Failure 403 {object} models.APIResponse "만료/회수된 키"
// @Failure 404 {object} models.APIResponse "키 없음"
// @Router /api/key/activate [post]
func ActivateKey(w http.ResponseWriter, r *http.Request) {
	requestID := r.Context().Value("request_id")

	var req models.ActivateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.KeyString == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}

	ip := middleware.GetClientIP(r)
	logger.WithFields(map[string]interface{}{
		"request_id":    requestID,
		"key_string":    req.KeyString,
		"hardware_name": req.HardwareName,
		"ip":            ip,
	}).Info("Key activation attempt")

	key, err := keyService.Activate(r.Context(), req.KeyString, ip, req.HardwareName)
	if err != nil {
		writeKeyError(w, requestID, req.KeyString, err)
		return
	}

	logger.WithFields(map[string]interface{}{
		"request_id": requestID,
		"key_id":     key.ID,
		"expires_at": key.ExpiresAt,
	}).Info("Key activated successfully")

	json.NewEncoder(w).Encode(models.SuccessResponse("Key activated successfully", key))
}

// GetKeyStatus 키 상태 조회 (리컨실 폴링용)
// @Summary 키 상태 조회
// @Description 키의 현재 상태를 조회합니다. 상태를 변경하지 않습니다.
// @Tags 클라이언트 - 키
// @Produce json
// @Param key query string true "키 문자열"
// @Success 200 {object} models.APIResponse{data=models.LicenseKey} "조회 성공"
// @Failure 404 {object} models.APIResponse "키 없음"
// @Router /api/key/status [get]
func GetKeyStatus(w http.ResponseWriter, r *http.Request) {
	requestID := r.Context().Value("request_id")

	keyString := r.URL.Query().Get("key")
	if keyString == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Missing key parameter", nil))
		return
	}

	key, err := keyService.Get(r.Context(), keyString)
	if err != nil {
		writeKeyError(w, requestID, keyString, err)
		return
	}

	json.NewEncoder(w).Encode(models.SuccessResponse("Key status retrieved", key))
}

// PauseKey 키 일시정지
// @Summary 키 일시정지
// @Description 남은 시간을 적립하고 카운트다운을 멈춥니다. 정지 중에는 시간이 차감되지 않습니다.
// @Tags 클라이언트 - 키
// @Accept json
// @Produce json
// @Param request body models.KeyStringRequest true "키 문자열"
// @Success 200 {object} models.APIResponse{data=models.LicenseKey} "일시정지 성공"
// @Failure 403 {object} models.APIResponse "만료/회수된 키"
// @Failure 409 {object} models.APIResponse "active 상태가 아님"
// @Router /api/key/pause [post]
func PauseKey(w http.ResponseWriter, r *http.Request) {
	requestID := r.Context().Value("request_id")

	var req models.KeyStringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.KeyString == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}

	key, err := keyService.Pause(r.Context(), req.KeyString)
	if err != nil {
		writeKeyError(w, requestID, req.KeyString, err)
		return
	}

	logger.WithFields(map[string]interface{}{
		"request_id":        requestID,
		"key_id":            key.ID,
		"remaining_seconds": *key.RemainingSecondsOnPause,
	}).Info("Key paused")

	json.NewEncoder(w).Encode(models.SuccessResponse("Key paused", key))
}

// ResumeKey 키 재개
// @Summary 키 재개
// @Description 적립된 시간으로 만료 시각을 재계산하고 카운트다운을 재개합니다.
// @Tags 클라이언트 - 키
// @Accept json
// @Produce json
// @Param request body models.KeyStringRequest true "키 문자열"
// @Success 200 {object} models.APIResponse{data=models.LicenseKey} "재개 성공"
// @Failure 403 {object} models.APIResponse "적립 시간 부족"
// @Failure 409 {object} models.APIResponse "paused 상태가 아님"
// @Router /api/key/resume [post]
func ResumeKey(w http.ResponseWriter, r *http.Request) {
	requestID := r.Context().Value("request_id")

	var req models.KeyStringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.KeyString == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}

	key, err := keyService.Resume(r.Context(), req.KeyString)
	if err != nil {
		writeKeyError(w, requestID, req.KeyString, err)
		return
	}

	logger.WithFields(map[string]interface{}{
		"request_id": requestID,
		"key_id":     key.ID,
		"expires_at": key.ExpiresAt,
	}).Info("Key resumed")

	json.NewEncoder(w).Encode(models.SuccessResponse("Key resumed", key))
}

// MeterKey 사용 시간 차감
// @Summary 사용 시간 차감
// @Description 남은 시간에서 지정한 초만큼 차감합니다. 부족하면 아무것도 차감하지 않습니다.
// @Tags 클라이언트 - 키
// @Accept json
// @Produce json
// @Param request body models.MeterKeyRequest true "차감 정보"
// @Success 200 {object} models.APIResponse{data=models.LicenseKey} "차감 성공"
// @Failure 403 {object} models.APIResponse "남은 시간 부족"
// @Failure 409 {object} models.APIResponse "active 상태가 아님"
// @Router /api/key/meter [post]
func MeterKey(w http.ResponseWriter, r *http.Request) {
	requestID := r.Context().Value("request_id")

	var req models.MeterKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.KeyString == "" || req.Seconds <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}

	key, err := keyService.Meter(r.Context(), req.KeyString, req.Seconds)
	if err != nil {
		writeKeyError(w, requestID, req.KeyString, err)
		return
	}

	logger.WithFields(map[string]interface{}{
		"request_id": requestID,
		"key_id":     key.ID,
		"seconds":    req.Seconds,
		"expires_at": key.ExpiresAt,
	}).Info("Key metered")

	json.NewEncoder(w).Encode(models.SuccessResponse("Key metered", key))
}

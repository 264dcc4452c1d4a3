package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"interviewkey/logger"
	"interviewkey/models"
	"interviewkey/services"
	"interviewkey/utils"
)

// GetKeys 키 목록 조회
// @Summary 키 목록 조회
// @Description 라이선스 키 목록을 페이징하여 조회합니다
// @Tags 관리자 - 키
// @Produce json
// @Security BearerAuth
// @Param status query string false "상태 필터 (inactive/active/paused/expired/revoked)"
// @Param page query int false "페이지 번호"
// @Param page_size query int false "페이지 크기"
// @Success 200 {object} models.PaginatedResponse "조회 성공"
// @Router /api/admin/keys [get]
func GetKeys(w http.ResponseWriter, r *http.Request) {
	filter := services.KeyFilter{
		Status: r.URL.Query().Get("status"),
	}
	if p, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		filter.Page = p
	}
	if ps, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil {
		filter.PageSize = ps
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}

	keys, total, err := keyService.List(r.Context(), filter)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to list keys", err))
		return
	}

	totalPages := (total + filter.PageSize - 1) / filter.PageSize
	json.NewEncoder(w).Encode(models.PaginatedResponse{
		Status:  "success",
		Message: "Keys retrieved",
		Data:    keys,
		Meta: models.Pagination{
			Page:       filter.Page,
			PageSize:   filter.PageSize,
			TotalPages: totalPages,
			TotalCount: total,
		},
	})
}

// CreateKey 키 생성
// @Summary 키 생성
// @Description 지정한 사용 시간(시간 단위)을 가진 새 키를 발급합니다
// @Tags 관리자 - 키
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateKeyRequest true "생성 정보"
// @Success 201 {object} models.APIResponse{data=models.LicenseKey} "생성 성공"
// @Failure 400 {object} models.APIResponse "잘못된 요청"
// @Router /api/admin/keys [post]
func CreateKey(w http.ResponseWriter, r *http.Request) {
	requestID := r.Context().Value("request_id")

	var req models.CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}

	if req.DurationHours < 1 {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("duration_hours must be at least 1", nil))
		return
	}

	key, err := keyService.Create(r.Context(), req.DurationHours, req.Notes)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create key")

		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to create key", err))
		return
	}

	logger.WithFields(map[string]interface{}{
		"request_id":     requestID,
		"key_id":         key.ID,
		"duration_hours": key.DurationHours,
	}).Info("Key created")

	adminID, _ := r.Context().Value("admin_id").(string)
	username, _ := r.Context().Value("username").(string)
	utils.LogAdminActivity(adminID, username, models.AdminActionCreateKey,
		fmt.Sprintf("Created key %s (%d hours)", key.KeyString, key.DurationHours))

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.SuccessResponse("Key created", key))
}

// GetKey 키 상세 조회
// @Summary 키 상세 조회
// @Tags 관리자 - 키
// @Produce json
// @Security BearerAuth
// @Param key_id path string true "키 ID"
// @Success 200 {object} models.APIResponse{data=models.LicenseKey} "조회 성공"
// @Failure 404 {object} models.APIResponse "키 없음"
// @Router /api/admin/keys/{key_id} [get]
func GetKey(w http.ResponseWriter, r *http.Request) {
	keyID, _ := r.Context().Value("path_key_id").(string)
	if keyID == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Missing key id", nil))
		return
	}

	key, err := keyService.GetByID(r.Context(), keyID)
	if err != nil {
		writeKeyError(w, r.Context().Value("request_id"), keyID, err)
		return
	}

	json.NewEncoder(w).Encode(models.SuccessResponse("Key retrieved", key))
}

// UpdateKey 키 메모 수정
// @Summary 키 메모 수정
// @Tags 관리자 - 키
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param key_id path string true "키 ID"
// @Param request body models.UpdateKeyRequest true "수정 정보"
// @Success 200 {object} models.APIResponse{data=models.LicenseKey} "수정 성공"
// @Failure 404 {object} models.APIResponse "키 없음"
// @Router /api/admin/keys/{key_id} [put]
func UpdateKey(w http.ResponseWriter, r *http.Request) {
	keyID, _ := r.Context().Value("path_key_id").(string)

	var req models.UpdateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}

	key, err := keyService.UpdateNotes(r.Context(), keyID, req.Notes)
	if err != nil {
		writeKeyError(w, r.Context().Value("request_id"), keyID, err)
		return
	}

	adminID, _ := r.Context().Value("admin_id").(string)
	username, _ := r.Context().Value("username").(string)
	utils.LogAdminActivity(adminID, username, models.AdminActionUpdateKey,
		fmt.Sprintf("Updated notes on key %s", key.KeyString))

	json.NewEncoder(w).Encode(models.SuccessResponse("Key updated", key))
}

// RevokeKey 키 회수
// @Summary 키 회수
// @Description 키를 영구적으로 회수합니다. 이후 모든 조작이 거부됩니다.
// @Tags 관리자 - 키
// @Produce json
// @Security BearerAuth
// @Param key_id path string true "키 ID"
// @Success 200 {object} models.APIResponse{data=models.LicenseKey} "회수 성공"
// @Failure 404 {object} models.APIResponse "키 없음"
// @Router /api/admin/keys/{key_id} [delete]
func RevokeKey(w http.ResponseWriter, r *http.Request) {
	requestID := r.Context().Value("request_id")
	keyID, _ := r.Context().Value("path_key_id").(string)

	existing, err := keyService.GetByID(r.Context(), keyID)
	if err != nil {
		writeKeyError(w, requestID, keyID, err)
		return
	}

	key, err := keyService.Revoke(r.Context(), existing.KeyString)
	if err != nil {
		writeKeyError(w, requestID, existing.KeyString, err)
		return
	}

	logger.WithFields(map[string]interface{}{
		"request_id": requestID,
		"key_id":     key.ID,
	}).Info("Key revoked")

	adminID, _ := r.Context().Value("admin_id").(string)
	username, _ := r.Context().Value("username").(string)
	utils.LogAdminActivity(adminID, username, models.AdminActionRevokeKey,
		fmt.Sprintf("Revoked key %s", key.KeyString))

	json.NewEncoder(w).Encode(models.SuccessResponse("Key revoked", key))
}

// SweepKeys 만료 키 일괄 처리
// @Summary 만료 키 일괄 처리
// @Description 만료 시각이 지난 active 키를 즉시 expired로 전환합니다. 스케줄러와 무관하게 수동 실행할 수 있습니다.
// @Tags 관리자 - 키
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.APIResponse "처리 성공"
// @Router /api/admin/keys/sweep [post]
func SweepKeys(w http.ResponseWriter, r *http.Request) {
	requestID := r.Context().Value("request_id")

	count, err := keyService.SweepExpired(r.Context())
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Manual sweep failed")

		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to sweep expired keys", err))
		return
	}

	adminID, _ := r.Context().Value("admin_id").(string)
	username, _ := r.Context().Value("username").(string)
	utils.LogAdminActivity(adminID, username, models.AdminActionSweepKeys,
		fmt.Sprintf("Manually swept %d expired keys", count))

	json.NewEncoder(w).Encode(models.SuccessResponse("Sweep completed", map[string]interface{}{
		"expired_count": count,
	}))
}

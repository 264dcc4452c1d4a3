package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"interviewkey/database"
	"interviewkey/models"
	"interviewkey/utils"
)

// GetDashboardStats 대시보드 통계
// @Summary 대시보드 통계
// @Description 상태별 키 수와 오늘 차감된 사용 시간을 조회합니다
// @Tags 관리자 - 대시보드
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.APIResponse "조회 성공"
// @Router /api/admin/dashboard/stats [get]
func GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]interface{})

	var total int
	database.DB.QueryRow("SELECT COUNT(*) FROM license_keys").Scan(&total)
	stats["total_keys"] = total

	for _, status := range []string{
		models.KeyStatusInactive,
		models.KeyStatusActive,
		models.KeyStatusPaused,
		models.KeyStatusExpired,
		models.KeyStatusRevoked,
	} {
		var count int
		database.DB.QueryRow("SELECT COUNT(*) FROM license_keys WHERE status = ?", status).Scan(&count)
		stats[status+"_keys"] = count
	}

	// 오늘 기록된 차감/활성화 이벤트 수
	dayStart := utils.FormatDateTimeForDB(utils.StartOfDay(utils.NowShanghai()))
	var meteredToday, activatedToday int
	database.DB.QueryRow(
		"SELECT COUNT(*) FROM key_activity_logs WHERE action = ? AND created_at >= ?",
		models.KeyActionMetered, dayStart).Scan(&meteredToday)
	database.DB.QueryRow(
		"SELECT COUNT(*) FROM key_activity_logs WHERE action = ? AND created_at >= ?",
		models.KeyActionActivated, dayStart).Scan(&activatedToday)
	stats["metered_today"] = meteredToday
	stats["activated_today"] = activatedToday

	json.NewEncoder(w).Encode(models.SuccessResponse("Dashboard stats retrieved", stats))
}

// GetRecentActivities 최근 활동 내역
// @Summary 최근 활동 내역
// @Description 키 활동 로그와 관리자 활동 로그를 최신순으로 조회합니다
// @Tags 관리자 - 대시보드
// @Produce json
// @Security BearerAuth
// @Param type query string false "활동 종류 (key | admin)"
// @Param limit query int false "최대 건수 (기본 20, 최대 100)"
// @Success 200 {object} models.APIResponse "조회 성공"
// @Router /api/admin/dashboard/activities [get]
func GetRecentActivities(w http.ResponseWriter, r *http.Request) {
	qType := r.URL.Query().Get("type") // key | admin | ""
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	result := make(map[string]interface{})

	if qType == "" || qType == "key" {
		logs, err := keyService.RecentActivity(r.Context(), limit)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(models.ErrorResponse("Failed to load key activities", err))
			return
		}
		result["key_activities"] = logs
	}

	if qType == "" || qType == "admin" {
		rows, err := database.DB.Query(`
			SELECT id, admin_id, username, action, details, created_at
			FROM admin_activity_logs ORDER BY id DESC LIMIT ?`, limit)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(models.ErrorResponse("Failed to load admin activities", err))
			return
		}
		defer rows.Close()

		adminLogs := []models.AdminActivityLog{}
		for rows.Next() {
			var l models.AdminActivityLog
			if err := rows.Scan(&l.ID, &l.AdminID, &l.Username, &l.Action, &l.Details, &l.CreatedAt); err != nil {
				continue
			}
			adminLogs = append(adminLogs, l)
		}
		result["admin_activities"] = adminLogs
	}

	json.NewEncoder(w).Encode(models.SuccessResponse("Recent activities retrieved", result))
}

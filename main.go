package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"interviewkey/database"
	_ "interviewkey/docs" // Swagger 문서
	"interviewkey/handlers"
	"interviewkey/logger"
	"interviewkey/middleware"
	"interviewkey/models"
	"interviewkey/scheduler"
	"interviewkey/services"

	httpSwagger "github.com/swaggo/http-swagger"
)

// @title Interview Key Server API
// @version 1.0
// @description 키 기반 사용 시간 관리 서버
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT 토큰을 입력하세요. 형식: Bearer {token}

func main() {
	// 로거 초기화
	logConfig := logger.Config{
		Level:    logger.INFO, // 운영: INFO, 개발: DEBUG
		LogDir:   "./logs",
		MaxAge:   7, // 7일
		UseColor: true,
	}
	if err := logger.Initialize(logConfig); err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}

	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	logger.Info("🚀 Interview Key Server Starting")
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	// 데이터베이스 초기화
	// DB_TYPE=mysql 일 때 DB_DSN 형식: "user:password@tcp(host:port)/dbname"
	dbType := os.Getenv("DB_TYPE")
	dbDSN := os.Getenv("DB_DSN")
	if err := database.Initialize(dbType, dbDSN); err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// 서비스 계층 초기화
	sqlExecutor := services.NewSQLExecutor(database.DB)
	keyService := services.NewKeyService(sqlExecutor, database.Type())
	handlers.SetKeyService(keyService)

	// 스케줄러 시작 (만료된 키 자동 처리)
	sched := scheduler.New(keyService, time.Hour)
	sched.Start()

	// 라우터 설정
	mux := http.NewServeMux()

	// Swagger 문서
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Public 엔드포인트
	mux.HandleFunc("/", homeHandler)
	mux.HandleFunc("/health", healthHandler)

	// 인증 API (관리자)
	mux.HandleFunc("/api/admin/login",
		middleware.ChainMiddleware(
			handlers.Login,
			middleware.LoggingMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	mux.HandleFunc("/api/admin/me",
		middleware.ChainMiddleware(
			handlers.GetMe,
			middleware.LoggingMiddleware,
			middleware.AuthMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	mux.HandleFunc("/api/admin/change-password",
		middleware.ChainMiddleware(
			handlers.ChangePassword,
			middleware.LoggingMiddleware,
			middleware.AuthMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	// 키 관리 API (인증 필요)
	mux.HandleFunc("/api/admin/keys",
		middleware.ChainMiddleware(
			keyHandler,
			middleware.LoggingMiddleware,
			middleware.AuthMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	mux.HandleFunc("/api/admin/keys/sweep",
		middleware.ChainMiddleware(
			handlers.SweepKeys,
			middleware.LoggingMiddleware,
			middleware.AuthMiddleware,
			middleware.RequireRoles(models.RoleSuperAdmin),
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	mux.HandleFunc("/api/admin/keys/",
		middleware.ChainMiddleware(
			keyDetailHandler,
			middleware.LoggingMiddleware,
			middleware.AuthMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	// 대시보드 API
	mux.HandleFunc("/api/admin/dashboard/stats",
		middleware.ChainMiddleware(
			handlers.GetDashboardStats,
			middleware.LoggingMiddleware,
			middleware.AuthMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	mux.HandleFunc("/api/admin/dashboard/activities",
		middleware.ChainMiddleware(
			handlers.GetRecentActivities,
			middleware.LoggingMiddleware,
			middleware.AuthMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	// 클라이언트 API (인증 불필요)
	mux.HandleFunc("/api/key/activate",
		middleware.ChainMiddleware(
			handlers.ActivateKey,
			middleware.LoggingMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	mux.HandleFunc("/api/key/status",
		middleware.ChainMiddleware(
			handlers.GetKeyStatus,
			middleware.LoggingMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	mux.HandleFunc("/api/key/pause",
		middleware.ChainMiddleware(
			handlers.PauseKey,
			middleware.LoggingMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	mux.HandleFunc("/api/key/resume",
		middleware.ChainMiddleware(
			handlers.ResumeKey,
			middleware.LoggingMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	mux.HandleFunc("/api/key/meter",
		middleware.ChainMiddleware(
			handlers.MeterKey,
			middleware.LoggingMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	// 서버 설정
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Warn("Received shutdown signal")
		sched.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	logger.Info("Server listening on http://localhost:%s", port)
	logger.Info("Swagger UI: http://localhost:%s/swagger/index.html", port)
	logger.Info("Log directory: ./logs")
	logger.Info("Default admin - username: admin, password: admin123")
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Server failed to start: %v", err)
	}
}

// homeHandler 루트 핸들러
func homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"success","message":"Interview Key Server","version":"1.0.0"}`))
}

// healthHandler 헬스체크 핸들러
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"success","message":"Server is healthy"}`))
}

// keyHandler 키 목록/생성 핸들러
func keyHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		handlers.GetKeys(w, r)
	case http.MethodPost:
		handlers.CreateKey(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// keyDetailHandler 키 상세/수정/회수 핸들러
func keyDetailHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/admin/keys/")
	path = strings.Trim(path, "/")
	if path == "" || strings.Contains(path, "/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	ctx := context.WithValue(r.Context(), "path_key_id", path)
	r = r.WithContext(ctx)

	switch r.Method {
	case http.MethodGet:
		handlers.GetKey(w, r)
	case http.MethodPut:
		handlers.UpdateKey(w, r)
	case http.MethodDelete:
		handlers.RevokeKey(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

package database

import (
	"database/sql"
	"fmt"
	"time"

	"interviewkey/logger"

	_ "github.com/go-sql-driver/mysql"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// DB 전역 커넥션 풀
var DB *sql.DB

var dbType string

// Initialize 데이터베이스 초기화
// t: "sqlite" 또는 "mysql"
// dsn: SQLite 파일 경로 또는 MySQL DSN ("user:pass@tcp(host:port)/dbname?parseTime=false")
func Initialize(t, dsn string) error {
	if t == "" {
		t = "sqlite"
	}
	if dsn == "" && t == "sqlite" {
		dsn = "./interviewkey.db"
	}
	dbType = t

	var err error
	DB, err = sql.Open(dbType, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := DB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if dbType == "sqlite" {
		// 쓰기 직렬화: SQLite는 단일 커넥션으로 키 단위 순서를 보장한다
		DB.SetMaxOpenConns(1)
		if _, err := DB.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return fmt.Errorf("failed to enable foreign keys: %w", err)
		}
		if _, err := DB.Exec("PRAGMA journal_mode = WAL"); err != nil {
			return fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := createTables(); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	if err := createDefaultAdmin(); err != nil {
		return fmt.Errorf("failed to create default admin: %w", err)
	}

	logger.Info("Database initialized successfully (%s)", dbType)
	return nil
}

// Type 현재 데이터베이스 타입 ("sqlite" 또는 "mysql")
func Type() string {
	return dbType
}

// createTables 테이블 생성
func createTables() error {
	autoIncrement := "INTEGER PRIMARY KEY AUTOINCREMENT"
	tableSuffix := ""
	if dbType == "mysql" {
		autoIncrement = "BIGINT AUTO_INCREMENT PRIMARY KEY"
		tableSuffix = " CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci"
	}

	tables := []string{
		// 관리자 테이블
		`CREATE TABLE IF NOT EXISTS admins (
			id VARCHAR(50) PRIMARY KEY,
			username VARCHAR(100) UNIQUE NOT NULL,
			password VARCHAR(255) NOT NULL,
			email VARCHAR(100) NOT NULL DEFAULT '',
			role VARCHAR(50) NOT NULL DEFAULT 'admin',
			created_at VARCHAR(50) NOT NULL DEFAULT '',
			updated_at VARCHAR(50) NOT NULL DEFAULT ''
		)` + tableSuffix,

		// 라이선스 키 테이블
		// expires_at은 active 상태에서만, remaining_seconds_on_pause는 paused 상태에서만 값을 가진다
		`CREATE TABLE IF NOT EXISTS license_keys (
			id VARCHAR(50) PRIMARY KEY,
			key_string VARCHAR(50) UNIQUE NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'inactive',
			duration_hours INT NOT NULL,
			created_at VARCHAR(50) NOT NULL DEFAULT '',
			activated_at VARCHAR(50),
			expires_at VARCHAR(50),
			remaining_seconds_on_pause BIGINT,
			activated_ip VARCHAR(100),
			hardware_name VARCHAR(255),
			notes TEXT,
			updated_at VARCHAR(50) NOT NULL DEFAULT ''
		)` + tableSuffix,

		// 키 활동 로그 테이블
		`CREATE TABLE IF NOT EXISTS key_activity_logs (
			id ` + autoIncrement + `,
			key_id VARCHAR(50) NOT NULL,
			action VARCHAR(50) NOT NULL,
			details TEXT,
			created_at VARCHAR(50) NOT NULL DEFAULT '',
			FOREIGN KEY (key_id) REFERENCES license_keys(id) ON DELETE CASCADE
		)` + tableSuffix,

		// 관리자 활동 로그 테이블
		`CREATE TABLE IF NOT EXISTS admin_activity_logs (
			id ` + autoIncrement + `,
			admin_id VARCHAR(50) NOT NULL,
			username VARCHAR(100) NOT NULL DEFAULT '',
			action VARCHAR(50) NOT NULL,
			details TEXT,
			created_at VARCHAR(50) NOT NULL DEFAULT ''
		)` + tableSuffix,
	}

	for _, ddl := range tables {
		if _, err := DB.Exec(ddl); err != nil {
			return fmt.Errorf("failed to execute DDL: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_license_keys_status ON license_keys(status)`,
		`CREATE INDEX IF NOT EXISTS idx_key_activity_logs_key_id ON key_activity_logs(key_id)`,
	}
	for _, ddl := range indexes {
		if _, err := DB.Exec(ddl); err != nil {
			// MySQL 5.7은 IF NOT EXISTS 인덱스를 지원하지 않으므로 중복 에러는 무시
			logger.Debug("Index creation skipped: %v", err)
		}
	}

	return nil
}

// createDefaultAdmin 기본 관리자 계정 생성 (admin / admin123)
func createDefaultAdmin() error {
	var count int
	if err := DB.QueryRow("SELECT COUNT(*) FROM admins").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	// utils는 database를 임포트하므로 순환을 피해 여기서 직접 해싱한다
	hashed, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now().Format("2006-01-02 15:04:05")
	_, err = DB.Exec(`
		INSERT INTO admins (id, username, password, email, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		"admin-default", "admin", string(hashed), "admin@example.com", "super_admin", now, now,
	)
	if err != nil {
		return err
	}

	logger.Warn("Default admin created (username: admin) - change the password immediately")
	return nil
}

// Close 데이터베이스 연결 종료
func Close() {
	if DB != nil {
		DB.Close()
		logger.Info("Database connection closed")
	}
}

package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel 로그 심각도
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

var levelColors = [...]string{
	"\033[36m", // DEBUG: cyan
	"\033[32m", // INFO: green
	"\033[33m", // WARN: yellow
	"\033[31m", // ERROR: red
	"\033[35m", // FATAL: magenta
}

const resetColor = "\033[0m"

// Config 로거 설정
type Config struct {
	Level    LogLevel
	LogDir   string // 빈 값이면 콘솔만 사용
	MaxAge   int    // 로그 파일 보관 일수
	UseColor bool
	Prefix   string
}

// Logger 콘솔/파일 동시 기록 로거
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	console  io.Writer
	file     *os.File
	fileDay  string // 현재 파일의 날짜 (일 단위 회전)
	logDir   string
	maxAge   int
	useColor bool
	prefix   string
}

var (
	defaultLogger *Logger
	initOnce      sync.Once
)

// Initialize 전역 로거 초기화 (중복 호출 시 최초 설정 유지)
func Initialize(config Config) error {
	var err error
	initOnce.Do(func() {
		l := &Logger{
			level:    config.Level,
			console:  os.Stdout,
			logDir:   config.LogDir,
			maxAge:   config.MaxAge,
			useColor: config.UseColor,
			prefix:   config.Prefix,
		}
		if config.LogDir != "" {
			if err = os.MkdirAll(config.LogDir, 0o755); err != nil {
				return
			}
			if err = l.openDayFile(); err != nil {
				return
			}
			l.cleanOldFiles()
		}
		defaultLogger = l
	})
	return err
}

// openDayFile 오늘 날짜의 로그 파일 오픈. mu를 잡은 상태에서 호출할 것.
func (l *Logger) openDayFile() error {
	day := time.Now().Format("2006-01-02")
	path := filepath.Join(l.logDir, "interviewkey-"+day+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if l.file != nil {
		l.file.Close()
	}
	l.file = file
	l.fileDay = day
	return nil
}

// cleanOldFiles 보관 기한이 지난 로그 파일 삭제
func (l *Logger) cleanOldFiles() {
	if l.maxAge <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -l.maxAge)
	entries, err := os.ReadDir(l.logDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "interviewkey-") || !strings.HasSuffix(name, ".log") {
			continue
		}
		day := strings.TrimSuffix(strings.TrimPrefix(name, "interviewkey-"), ".log")
		ts, err := time.ParseInLocation("2006-01-02", day, time.Local)
		if err != nil {
			continue
		}
		if ts.Before(cutoff) {
			os.Remove(filepath.Join(l.logDir, name))
		}
	}
}

func (l *Logger) output(level LogLevel, fields map[string]interface{}, format string, args ...interface{}) {
	if l == nil || level < l.level {
		return
	}

	msg := fmt.Sprintf(format, args...)
	ts := time.Now().Format("2006-01-02 15:04:05.000")

	var fieldStr string
	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
		}
		fieldStr = " | " + strings.Join(parts, " ")
	}

	plain := fmt.Sprintf("[%s] [%s]%s %s%s\n", ts, levelNames[level], l.prefix, msg, fieldStr)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.useColor {
		fmt.Fprintf(l.console, "[%s] %s[%s]%s%s %s%s\n",
			ts, levelColors[level], levelNames[level], resetColor, l.prefix, msg, fieldStr)
	} else {
		io.WriteString(l.console, plain)
	}

	if l.file != nil {
		// 날짜가 바뀌면 파일 회전
		if day := time.Now().Format("2006-01-02"); day != l.fileDay {
			if err := l.openDayFile(); err == nil {
				l.cleanOldFiles()
			}
		}
		io.WriteString(l.file, plain)
	}

	if level == FATAL {
		os.Exit(1)
	}
}

// Debug 디버그 로그
func Debug(format string, args ...interface{}) {
	defaultLogger.output(DEBUG, nil, format, args...)
}

// Info 정보 로그
func Info(format string, args ...interface{}) {
	defaultLogger.output(INFO, nil, format, args...)
}

// Warn 경고 로그
func Warn(format string, args ...interface{}) {
	defaultLogger.output(WARN, nil, format, args...)
}

// Error 에러 로그
func Error(format string, args ...interface{}) {
	defaultLogger.output(ERROR, nil, format, args...)
}

// Fatal 치명적 에러 로그 후 프로세스 종료
func Fatal(format string, args ...interface{}) {
	if defaultLogger == nil {
		fmt.Fprintf(os.Stderr, "[FATAL] "+format+"\n", args...)
		os.Exit(1)
	}
	defaultLogger.output(FATAL, nil, format, args...)
}

// LogEntry 구조화 필드가 붙은 로그 항목
type LogEntry struct {
	fields map[string]interface{}
}

// WithFields 구조화 필드를 붙인 로그 항목 생성
func WithFields(fields map[string]interface{}) *LogEntry {
	return &LogEntry{fields: fields}
}

// Debug 디버그 로그
func (e *LogEntry) Debug(format string, args ...interface{}) {
	defaultLogger.output(DEBUG, e.fields, format, args...)
}

// Info 정보 로그
func (e *LogEntry) Info(format string, args ...interface{}) {
	defaultLogger.output(INFO, e.fields, format, args...)
}

// Warn 경고 로그
func (e *LogEntry) Warn(format string, args ...interface{}) {
	defaultLogger.output(WARN, e.fields, format, args...)
}

// Error 에러 로그
func (e *LogEntry) Error(format string, args ...interface{}) {
	defaultLogger.output(ERROR, e.fields, format, args...)
}

// Log 지정한 레벨로 기록
func (e *LogEntry) Log(level LogLevel, format string, args ...interface{}) {
	defaultLogger.output(level, e.fields, format, args...)
}

// SetLevel 전역 로그 레벨 변경
func SetLevel(level LogLevel) {
	if defaultLogger != nil {
		defaultLogger.mu.Lock()
		defaultLogger.level = level
		defaultLogger.mu.Unlock()
	}
}

// GetLevel 현재 로그 레벨 조회
func GetLevel() LogLevel {
	if defaultLogger == nil {
		return INFO
	}
	defaultLogger.mu.Lock()
	defer defaultLogger.mu.Unlock()
	return defaultLogger.level
}

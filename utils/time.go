package utils

import (
	"fmt"
	"sync"
	"time"
)

const (
	dbDateTimeLayout = "2006-01-02 15:04:05"
	dateOnlyLayout   = "2006-01-02"
)

var (
	shanghaiOnce sync.Once
	shanghaiLoc  *time.Location
)

// ShanghaiLocation 캐시된 Asia/Shanghai 타임존 반환
func ShanghaiLocation() *time.Location {
	shanghaiOnce.Do(func() {
		loc, err := time.LoadLocation("Asia/Shanghai")
		if err != nil {
			// 타임존 DB가 없는 환경에서는 고정 오프셋 사용
			loc = time.FixedZone("Asia/Shanghai", 8*60*60)
		}
		shanghaiLoc = loc
	})
	return shanghaiLoc
}

// NowShanghai 현재 시각을 Asia/Shanghai 기준으로 반환
func NowShanghai() time.Time {
	return time.Now().In(ShanghaiLocation())
}

// FormatDateTimeForDB DATETIME 컬럼용 포맷
func FormatDateTimeForDB(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(ShanghaiLocation()).Format(dbDateTimeLayout)
}

// ParseDBDate DB에서 읽은 날짜 문자열 파싱
func ParseDBDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	loc := ShanghaiLocation()
	if ts, err := time.ParseInLocation(dbDateTimeLayout, value, loc); err == nil {
		return ts, nil
	}
	if ts, err := time.ParseInLocation(dateOnlyLayout, value, loc); err == nil {
		return ts, nil
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.In(loc), nil
	}

	return time.Time{}, fmt.Errorf("unsupported db time format: %s", value)
}

// StartOfDay 해당 시각이 속한 날의 자정 (Asia/Shanghai 기준)
func StartOfDay(t time.Time) time.Time {
	loc := ShanghaiLocation()
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

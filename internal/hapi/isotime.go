package hapi

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HAPI 时间是受限的 ISO-8601：YYYY-MM-DD 或 YYYY-DDD，可选 THH[:MM[:SS[.fff]]] 与结尾 Z。
// 零填充的同精度字符串按字节比较即等价于时间先后，子集过滤依赖这一点。

const (
	dayStampLayout   = "20060102"
	rangeStampLayout = "20060102T150405Z"
	dayISOLayout     = "2006-01-02T15:04:05Z"
)

// ParseTime 解析 HAPI 时间串，结果为 UTC。
func ParseTime(s string) (time.Time, error) {
	raw := s
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	datePart, clockPart, hasClock := strings.Cut(s, "T")

	var (
		year, month, day, yday int
		err                    error
	)
	switch {
	case len(datePart) == 10 && datePart[4] == '-' && datePart[7] == '-':
		year, err = atoi(datePart[0:4], err)
		month, err = atoi(datePart[5:7], err)
		day, err = atoi(datePart[8:10], err)
	case len(datePart) == 8 && datePart[4] == '-':
		year, err = atoi(datePart[0:4], err)
		yday, err = atoi(datePart[5:8], err)
	case len(datePart) == 7 && datePart[4] == '-':
		year, err = atoi(datePart[0:4], err)
		month, err = atoi(datePart[5:7], err)
		day = 1
	case len(datePart) == 4:
		year, err = atoi(datePart, err)
		month, day = 1, 1
	default:
		return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized time %q: %w", raw, err)
	}

	var hour, minute, sec, nsec int
	if hasClock && clockPart != "" {
		fields := strings.Split(clockPart, ":")
		if len(fields) > 3 {
			return time.Time{}, fmt.Errorf("unrecognized time %q", raw)
		}
		hour, err = atoi(fields[0], err)
		if len(fields) > 1 {
			minute, err = atoi(fields[1], err)
		}
		if len(fields) > 2 {
			whole, frac, _ := strings.Cut(fields[2], ".")
			sec, err = atoi(whole, err)
			if frac != "" {
				if len(frac) > 9 {
					frac = frac[:9]
				}
				nsec, err = atoi(frac+strings.Repeat("0", 9-len(frac)), err)
			}
		}
		if err != nil {
			return time.Time{}, fmt.Errorf("unrecognized time %q: %w", raw, err)
		}
	}

	if yday > 0 {
		if yday > 366 {
			return time.Time{}, fmt.Errorf("day of year out of range in %q", raw)
		}
		t := time.Date(year, 1, 1, hour, minute, sec, nsec, time.UTC).AddDate(0, 0, yday-1)
		if t.Year() != year {
			return time.Time{}, fmt.Errorf("day of year out of range in %q", raw)
		}
		return t, nil
	}
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 24 || minute > 59 || sec > 60 {
		return time.Time{}, fmt.Errorf("field out of range in %q", raw)
	}
	t := time.Date(year, time.Month(month), day, hour, minute, sec, nsec, time.UTC)
	if t.Day() != day && hour != 24 {
		return time.Time{}, fmt.Errorf("field out of range in %q", raw)
	}
	return t, nil
}

func atoi(s string, prev error) (int, error) {
	if prev != nil {
		return 0, prev
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("non-digit in %q", s)
		}
	}
	if s == "" {
		return 0, fmt.Errorf("empty field")
	}
	return strconv.Atoi(s)
}

// Reformat 把 t 格式化成与 example 相同的形态和精度：年-日序或年-月-日、相同长度、
// 结尾 Z 与否一致。example 一般取自缓存文件第一条记录的时间戳。
func Reformat(example string, t time.Time) string {
	t = t.UTC()
	var full string
	if isOrdinal(example) {
		full = fmt.Sprintf("%04d-%03dT%02d:%02d:%02d.%09d",
			t.Year(), t.YearDay(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond())
	} else {
		full = fmt.Sprintf("%04d-%02d-%02dT%02d:%02d:%02d.%09d",
			t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond())
	}

	body, zulu := strings.CutSuffix(example, "Z")
	n := len(body)
	var out string
	if n <= len(full) {
		out = full[:n]
	} else {
		out = full + strings.Repeat("0", n-len(full))
	}
	if zulu {
		out += "Z"
	}
	return out
}

func isOrdinal(example string) bool {
	if len(example) < 8 || example[4] != '-' {
		return false
	}
	for _, c := range example[5:8] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(example) == 8 || example[8] == 'T' || example[8] == 'Z'
}

// IsRecordStart 判断一行（或一条二进制记录）是否以四位年份开头；注释行不是。
func IsRecordStart(b []byte) bool {
	if len(b) < 4 {
		return false
	}
	for _, c := range b[:4] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// FloorDay 截断到当天 00:00:00Z。
func FloorDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CeilDay 进位到下一个午夜；本身就在午夜时保持不变。
func CeilDay(t time.Time) time.Time {
	floor := FloorDay(t)
	if floor.Equal(t) {
		return floor
	}
	return floor.AddDate(0, 0, 1)
}

// IsWholeDay 报告 [start, stop) 是否恰好是一个从午夜到午夜的日历日。
func IsWholeDay(start, stop time.Time) bool {
	return FloorDay(start).Equal(start) && start.AddDate(0, 0, 1).Equal(stop)
}

// Days 返回覆盖 [floor(start), ceil(stop)) 的每个日历日的午夜时刻，按时间顺序。
func Days(start, stop time.Time) []time.Time {
	var days []time.Time
	end := CeilDay(stop)
	for d := FloorDay(start); d.Before(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// DayStamp 输出 YYYYMMDD。
func DayStamp(t time.Time) string {
	return t.UTC().Format(dayStampLayout)
}

// RangeStamp 输出 YYYYMMDDThhmmssZ。
func RangeStamp(t time.Time) string {
	return t.UTC().Format(rangeStampLayout)
}

// DayISO 输出用于子请求的 YYYY-MM-DDThh:mm:ssZ。
func DayISO(t time.Time) string {
	return t.UTC().Format(dayISOLayout)
}

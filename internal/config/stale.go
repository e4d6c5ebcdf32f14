package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var isoDuration = regexp.MustCompile(`^([-+]?)P(?:([-+]?[0-9]+)D)?(?:T(?:([-+]?[0-9]+)H)?(?:([-+]?[0-9]+)M)?(?:([-+]?[0-9]+(?:[.,][0-9]{0,9})?)S)?)?$`)

// ParseStaleAfter 解析新鲜度阈值。相对形式返回 duration：ISO-8601（P1DT2H）、
// N{d,h,m,s}（7d）或 Go duration（90m）；绝对形式返回时间点：YYYY-MM-DD 或
// YYYY-MM-DDTHH:MM:SS，按 UTC 解释。空串表示不设阈值。
func ParseStaleAfter(raw string) (time.Duration, time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, time.Time{}, nil
	}
	if d, ok := parseISODuration(raw); ok {
		return checkPositive(raw, d)
	}
	if d, ok := parseUnitDuration(raw); ok {
		return checkPositive(raw, d)
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return checkPositive(raw, d)
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return 0, t, nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("invalid stale-after value: %q", raw)
}

func checkPositive(raw string, d time.Duration) (time.Duration, time.Time, error) {
	if d <= 0 {
		return 0, time.Time{}, errors.New("stale-after duration must be positive: " + raw)
	}
	return d, time.Time{}, nil
}

func parseISODuration(raw string) (time.Duration, bool) {
	m := isoDuration.FindStringSubmatch(strings.ToUpper(raw))
	if m == nil || strings.HasSuffix(strings.ToUpper(raw), "T") {
		return 0, false
	}
	if m[2] == "" && m[3] == "" && m[4] == "" && m[5] == "" {
		return 0, false
	}
	var total time.Duration
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute}
	for i, unit := range units {
		if m[i+2] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+2], 10, 64)
		if err != nil {
			return 0, false
		}
		total += time.Duration(n) * unit
	}
	if m[5] != "" {
		secs, err := strconv.ParseFloat(strings.ReplaceAll(m[5], ",", "."), 64)
		if err != nil {
			return 0, false
		}
		total += time.Duration(secs * float64(time.Second))
	}
	if m[1] == "-" {
		total = -total
	}
	return total, true
}

func parseUnitDuration(raw string) (time.Duration, bool) {
	if len(raw) < 2 {
		return 0, false
	}
	n, err := strconv.ParseInt(raw[:len(raw)-1], 10, 64)
	if err != nil {
		return 0, false
	}
	switch raw[len(raw)-1] {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, true
	case 'h':
		return time.Duration(n) * time.Hour, true
	case 'm':
		return time.Duration(n) * time.Minute, true
	case 's':
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}

package scheduling

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
)

// NormalizeTime converts HHMM, HH:MM or HH:MM:SS into HH:MM:SS.
func NormalizeTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	var hh, mm, ss string
	switch {
	case len(s) == 4 && !strings.Contains(s, ":"):
		hh, mm, ss = s[:2], s[2:], "00"
	case len(s) == 5 && s[2] == ':':
		hh, mm, ss = s[:2], s[3:], "00"
	case len(s) == 8 && s[2] == ':' && s[5] == ':':
		hh, mm, ss = s[:2], s[3:5], s[6:]
	default:
		return "", apperror.Validation("time", fmt.Sprintf("%q is not HHMM, HH:MM or HH:MM:SS", s))
	}

	h, errH := twoDigits(hh, 23)
	m, errM := twoDigits(mm, 59)
	sec, errS := twoDigits(ss, 59)
	if errH != nil || errM != nil || errS != nil {
		return "", apperror.Validation("time", fmt.Sprintf("%q is not a valid time of day", s))
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, sec), nil
}

func twoDigits(s string, max int) (int, error) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, fmt.Errorf("not two digits")
	}
	n, _ := strconv.Atoi(s)
	if n > max {
		return 0, fmt.Errorf("out of range")
	}
	return n, nil
}

// ScheduledAt combines a YYYY-MM-DD date with a time of day in loc.
func ScheduledAt(date, timeOfDay string, loc *time.Location) (time.Time, error) {
	if strings.TrimSpace(date) == "" {
		return time.Time{}, apperror.Validation("date", "is required")
	}
	if strings.TrimSpace(timeOfDay) == "" {
		return time.Time{}, apperror.Validation("time", "is required")
	}
	clock, err := NormalizeTime(timeOfDay)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", strings.TrimSpace(date)+" "+clock, loc)
	if err != nil {
		return time.Time{}, apperror.Validation("date", fmt.Sprintf("%q is not YYYY-MM-DD", date))
	}
	return t, nil
}

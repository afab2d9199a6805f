package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Month is a calendar month encoded as year*12 + (month-1). The zero value is
// not a valid month; use IsZero to test for it.
type Month int32

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) Month {
	return Month(t.Year()*12 + int(t.Month()) - 1)
}

// ParseMonth accepts "YYYY-MM", "YYYY-MM-DD", "YYYYMM" and "YYYYMMDD".
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	var ys, ms string
	switch {
	case len(s) >= 7 && s[4] == '-':
		ys, ms = s[:4], s[5:7]
	case len(s) == 6 || len(s) == 8:
		ys, ms = s[:4], s[4:6]
	default:
		return 0, fmt.Errorf("invalid month %q", s)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return 0, fmt.Errorf("invalid month %q: %w", s, err)
	}
	m, err := strconv.Atoi(ms)
	if err != nil {
		return 0, fmt.Errorf("invalid month %q: %w", s, err)
	}
	if y < 1900 || m < 1 || m > 12 {
		return 0, fmt.Errorf("invalid month %q", s)
	}
	return Month(y*12 + m - 1), nil
}

func (m Month) IsZero() bool { return m == 0 }

func (m Month) Year() int { return int(m) / 12 }

func (m Month) Month() time.Month { return time.Month(int(m)%12 + 1) }

// AddMonths returns m shifted by n months (n may be negative).
func (m Month) AddMonths(n int) Month { return m + Month(n) }

// Start returns midnight UTC on the first day of the month.
func (m Month) Start() time.Time {
	return time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// String formats the month as "YYYY-MM"; the zero month formats as "".
func (m Month) String() string {
	if m.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", m.Year(), int(m.Month()))
}

// MarshalText implements encoding.TextMarshaler.
func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Month) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*m = 0
		return nil
	}
	v, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

var dateLayouts = []string{"2006-01-02", "01/02/2006", "20060102"}

// ParseDate parses the date formats found across the three datasets:
// ISO "2006-01-02", NPPES "01/02/2006" and LEIE "20060102". Empty strings and
// LEIE's all-zero placeholder return the zero time without error.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.Trim(s, "0") == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

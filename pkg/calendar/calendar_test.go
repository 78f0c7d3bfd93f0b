package calendar

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddMonths(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		n    int
		want time.Time
	}{
		{"plain", date(2024, 1, 15), 1, date(2024, 2, 15)},
		{"clamp leap year", date(2024, 1, 31), 1, date(2024, 2, 29)},
		{"clamp non leap", date(2023, 1, 31), 1, date(2023, 2, 28)},
		{"year rollover", date(2024, 11, 30), 3, date(2025, 2, 28)},
		{"backwards", date(2024, 3, 31), -1, date(2024, 2, 29)},
		{"zero", date(2024, 5, 5), 0, date(2024, 5, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AddMonths(tt.in, tt.n); !got.Equal(tt.want) {
				t.Errorf("AddMonths(%s, %d) = %s, want %s", tt.in.Format("2006-01-02"), tt.n, got.Format("2006-01-02"), tt.want.Format("2006-01-02"))
			}
		})
	}
}

func TestOccurrenceOnOrBefore(t *testing.T) {
	tests := []struct {
		name string
		day  int
		asOf time.Time
		want time.Time
	}{
		{"same day", 15, date(2024, 6, 15), date(2024, 6, 15)},
		{"later in month", 15, date(2024, 6, 20), date(2024, 6, 15)},
		{"previous month", 15, date(2024, 6, 10), date(2024, 5, 15)},
		{"clamped short month", 31, date(2024, 4, 30), date(2024, 4, 30)},
		{"clamped previous month", 31, date(2024, 3, 1), date(2024, 2, 29)},
		{"january wraps to december", 20, date(2025, 1, 5), date(2024, 12, 20)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OccurrenceOnOrBefore(tt.day, tt.asOf); !got.Equal(tt.want) {
				t.Errorf("got %s, want %s", got.Format("2006-01-02"), tt.want.Format("2006-01-02"))
			}
		})
	}
}

func TestDateOnlyNormalisesToUTC(t *testing.T) {
	loc := time.FixedZone("X", 5*3600)
	got := DateOnly(time.Date(2024, 7, 4, 23, 30, 0, 0, loc))
	if !got.Equal(date(2024, 7, 4)) || got.Location() != time.UTC {
		t.Errorf("DateOnly = %v", got)
	}
}

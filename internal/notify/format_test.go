package notify

import (
	"testing"
	"time"
)

func TestFormatDate(t *testing.T) {
	cases := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC), "1 juin 2024"},
		{time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC), "25 décembre 2024"},
		{time.Date(2025, 8, 9, 0, 0, 0, 0, time.UTC), "9 août 2025"},
		{time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), "29 février 2024"},
	}

	for _, tc := range cases {
		if got := FormatDate(tc.in); got != tc.want {
			t.Errorf("FormatDate(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatTime(t *testing.T) {
	in := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	if got := FormatTime(in); got != "10:00" {
		t.Errorf("FormatTime = %q, want 10:00", got)
	}
	in = time.Date(2024, 6, 1, 9, 5, 0, 0, time.UTC)
	if got := FormatTime(in); got != "09:05" {
		t.Errorf("FormatTime = %q, want 09:05", got)
	}
}

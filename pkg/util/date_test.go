package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2026-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2026, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2026, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestParseDate(t *testing.T) {
	got, ok := ParseDate(" 2026-11-20 ")
	if !ok {
		t.Fatalf("expected ok")
	}
	if !got.Equal(time.Date(2026, 11, 20, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %v", got)
	}
	if _, ok := ParseDate("20/11/2026"); ok {
		t.Fatalf("expected failure for non ISO date")
	}
}

func TestClampDays(t *testing.T) {
	cases := []struct{ in, want int }{{0, 30}, {-3, 30}, {7, 7}, {400, 180}}
	for _, tc := range cases {
		if got := ClampDays(tc.in, 30, 1, 180); got != tc.want {
			t.Fatalf("ClampDays(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" economy, ,business")
	if len(got) != 2 || got[0] != "ECONOMY" || got[1] != "BUSINESS" {
		t.Fatalf("unexpected list %v", got)
	}
}

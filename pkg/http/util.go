package http

import (
	"time"

	xutil "Farenheit/pkg/util"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// ParseDate parses a YYYY-MM-DD query value as a UTC calendar date.
func ParseDate(s string) (time.Time, bool) { return xutil.ParseDate(s) }

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseTimeDefault(s, def) }

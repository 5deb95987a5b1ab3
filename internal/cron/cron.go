// Package cron evaluates standard 5-field cron expressions
// (minute hour day-of-month month day-of-week) in IANA timezones.
package cron

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// Validate reports whether expr parses as a standard 5-field cron expression.
func Validate(expr string) bool {
	if len(strings.Fields(expr)) != 5 {
		return false
	}
	gx := gronx.New()
	return gx.IsValid(expr)
}

// Next computes the strictly-future next fire instant of expr in the named
// IANA timezone, evaluated from the given instant. An unknown or empty
// timezone silently falls back to UTC.
func Next(expr, tz string, from time.Time) (time.Time, error) {
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	next, err := gronx.NextTickAfter(expr, from.In(loc), false)
	if err != nil {
		return time.Time{}, fmt.Errorf("next run for %q: %w", expr, err)
	}
	return next, nil
}

// Describe returns a human-readable description of common cron patterns.
// Expressions it does not recognize are returned verbatim.
func Describe(expr string) string {
	parts := strings.Fields(expr)
	if len(parts) != 5 {
		return expr
	}
	minute, hour, dom, month, dow := parts[0], parts[1], parts[2], parts[3], parts[4]

	if expr == "* * * * *" {
		return "Every minute"
	}

	pad := func(m string) string {
		if len(m) == 1 {
			return "0" + m
		}
		return m
	}

	switch {
	case minute != "*" && hour != "*" && dom == "*" && month == "*" && dow == "*":
		return fmt.Sprintf("Daily at %s:%s", hour, pad(minute))
	case minute != "*" && hour != "*" && dow != "*" && dom == "*" && month == "*":
		days := map[string]string{
			"0": "Sunday", "1": "Monday", "2": "Tuesday", "3": "Wednesday",
			"4": "Thursday", "5": "Friday", "6": "Saturday", "7": "Sunday",
			"1-5": "weekdays", "0,6": "weekends",
		}
		day, ok := days[dow]
		if !ok {
			day = dow
		}
		return fmt.Sprintf("Every %s at %s:%s", day, hour, pad(minute))
	}

	return expr
}

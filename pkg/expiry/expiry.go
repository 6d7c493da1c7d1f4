// Package expiry turns an expiry date into an access status.
//
// All dates are calendar dates represented as time.Time at midnight UTC.
// Compute is pure: it never reads the clock, callers pass today.
package expiry

import (
	"strconv"
	"strings"
	"time"

	"github.com/plexshare/backend/pkg/apperr"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusExpiring Status = "expiring"
	StatusExpired  Status = "expired"
	StatusNever    Status = "never"
)

// ExpiringWindowDays is the largest remaining-days count still reported
// as expiring.
const ExpiringWindowDays = 30

const DateLayout = "2006-01-02"

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusExpiring, StatusExpired, StatusNever:
		return true
	default:
		return false
	}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date in the server's local time.
func Today() time.Time {
	return DateOf(time.Now())
}

// DaysBetween returns the whole days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// Parse accepts YYYY-MM-DD or an RFC 3339 timestamp. An empty string
// yields the zero time and no error.
func Parse(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(DateLayout, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return DateOf(t), nil
	}
	return time.Time{}, apperr.Validation("parse_expiry_date", "invalid expiry date "+strconv.Quote(value)+", expected YYYY-MM-DD")
}

// Compute returns the effective expiry date and status. A zero expiry is
// replaced by today plus defaultDays.
func Compute(expiry time.Time, neverExpire bool, today time.Time, defaultDays int) (time.Time, Status) {
	today = DateOf(today)
	if expiry.IsZero() {
		expiry = today.AddDate(0, 0, defaultDays)
	} else {
		expiry = DateOf(expiry)
	}

	if neverExpire {
		return expiry, StatusNever
	}

	delta := DaysBetween(today, expiry)
	switch {
	case delta < 0:
		return expiry, StatusExpired
	case delta <= ExpiringWindowDays:
		return expiry, StatusExpiring
	default:
		return expiry, StatusActive
	}
}

// ComputeString parses raw and delegates to Compute.
func ComputeString(raw string, neverExpire bool, today time.Time, defaultDays int) (time.Time, Status, error) {
	parsed, err := Parse(raw)
	if err != nil {
		return time.Time{}, "", err
	}
	date, status := Compute(parsed, neverExpire, today, defaultDays)
	return date, status, nil
}

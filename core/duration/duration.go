// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package duration provides the typed time interval used by poll
// schedules and retry strategies, with parsing for the spellings that
// appear in blueprint configuration.
package duration

import (
	"strconv"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/retry"
)

// Forever is the sentinel for an unbounded interval.
const Forever = Duration(-1)

// Duration is a time interval with nanosecond resolution. The zero
// value means "immediately"; negative values mean "forever".
type Duration time.Duration

// Of converts a stdlib duration.
func Of(d time.Duration) Duration {
	return Duration(d)
}

// Millis returns d in whole milliseconds.
func (d Duration) Millis() int64 {
	return time.Duration(d).Milliseconds()
}

// Std returns d as a stdlib duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Positive reports whether d is a real, non-zero interval.
func (d Duration) Positive() bool {
	return d > 0
}

// IsForever reports whether d is the unbounded sentinel.
func (d Duration) IsForever() bool {
	return d < 0
}

func (d Duration) String() string {
	if d.IsForever() {
		return "forever"
	}
	return time.Duration(d).String()
}

// Parse reads an interval from its configuration spelling. Accepted
// forms are the stdlib ones ("150ms", "1m30s"), a bare integer meaning
// milliseconds, and the words used by blueprints: "forever"/"never"
// for an unbounded interval, "always"/"immediately"/"now" for zero.
func Parse(s string) (Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, errors.NotValidf("empty duration")
	case "forever", "never":
		return Forever, nil
	case "always", "immediately", "now":
		return 0, nil
	}
	if ms, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return Duration(time.Duration(ms) * time.Millisecond), nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.NotValidf("duration %q", s)
	}
	return Duration(d), nil
}

// ExpBackoff returns a backoff strategy doubling from base and capped
// at max. The returned function has the juju/retry BackoffFunc shape
// so it can be handed straight to retry.CallArgs.
func ExpBackoff(base, max time.Duration) func(time.Duration, int) time.Duration {
	return retry.ExpBackoff(base, max, 2.0, false)
}

// Package rtime provides an immutable microsecond-resolution time value used
// throughout the reactor core for poll-return timestamps, timer expirations
// and log formatting.
package rtime

import (
	"fmt"
	"time"
)

const microsecondsPerSecond = int64(time.Second / time.Microsecond)

// Time is microseconds since the Unix epoch. The zero value is Invalid.
type Time int64

// Invalid is the zero Time, meaning "no time set".
const Invalid Time = 0

// Now returns the current wall-clock time.
func Now() Time {
	return Time(time.Now().UnixNano() / int64(time.Microsecond))
}

// Valid reports whether t is a meaningful (positive) time value.
func (t Time) Valid() bool {
	return t > Invalid
}

// Microseconds returns the raw microseconds-since-epoch value.
func (t Time) Microseconds() int64 {
	return int64(t)
}

// AddSeconds returns t advanced by seconds (which may be fractional or
// negative).
func (t Time) AddSeconds(seconds float64) Time {
	delta := int64(seconds * float64(microsecondsPerSecond))
	return Time(int64(t) + delta)
}

// DiffMicroseconds returns t-other in microseconds.
func (t Time) DiffMicroseconds(other Time) int64 {
	return int64(t) - int64(other)
}

// Before reports whether t occurs strictly before other.
func (t Time) Before(other Time) bool {
	return t < other
}

// String renders "seconds.microseconds", the conventional debug format for
// a microsecond timestamp value.
func (t Time) String() string {
	seconds := int64(t) / microsecondsPerSecond
	micro := int64(t) % microsecondsPerSecond
	return fmt.Sprintf("%d.%06d", seconds, micro)
}

// Format renders a calendar string to microsecond precision, local time.
func (t Time) Format() string {
	sec := int64(t) / microsecondsPerSecond
	micro := int64(t) % microsecondsPerSecond
	tm := time.Unix(sec, micro*int64(time.Microsecond))
	return tm.Format("2006-01-02 15:04:05.000000")
}

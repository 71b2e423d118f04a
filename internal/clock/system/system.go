// Package system provides a real clock implementation.
package system

import "time"

// Clock implements supervisor.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// NowMillis returns the current Unix time in milliseconds.
func (c Clock) NowMillis() int64 {
	return c.Now().UnixMilli()
}

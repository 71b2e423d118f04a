// Package system exercises the real-time clock adapter.
package system

import (
	"testing"
	"time"
)

// TestClockNowUTC ensures the clock returns UTC timestamps.
func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
}

// TestClockNowMillis checks millisecond timestamps track wall time.
func TestClockNowMillis(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UnixMilli()
	got := clk.NowMillis()
	after := time.Now().UnixMilli()
	if got < before || got > after {
		t.Fatalf("expected %d to be between %d and %d", got, before, after)
	}
}

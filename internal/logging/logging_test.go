// Package logging includes tests for the zap logger helpers.
package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

// TestNewSplitRoutesByLevel checks info lands on out and warnings on errOut.
func TestNewSplitRoutesByLevel(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer
	logger := NewSplit(true, &out, &errOut)
	logger.Info("polling")
	logger.Warn("zero items")
	logger.Error("post failed")

	assert.Contains(t, out.String(), "polling")
	assert.NotContains(t, out.String(), "zero items")
	assert.Contains(t, errOut.String(), "zero items")
	assert.Contains(t, errOut.String(), "post failed")
	assert.NotContains(t, errOut.String(), "polling")
}

// TestNewSplitProductionDropsDebug ensures debug output is suppressed outside development.
func TestNewSplitProductionDropsDebug(t *testing.T) {
	t.Parallel()

	var out, errOut bytes.Buffer
	logger := NewSplit(false, &out, &errOut)
	logger.Debug("noisy")
	logger.Info("kept")

	assert.NotContains(t, out.String(), "noisy")
	assert.Contains(t, out.String(), "kept")
}

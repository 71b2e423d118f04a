package logbook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndSnapshot(t *testing.T) {
	t.Parallel()

	b := New(filepath.Join(t.TempDir(), "relay.log"), 0, 0)
	assert.Empty(t, b.Snapshot())

	for i := 0; i < 250; i++ {
		b.Append(fmt.Sprintf("[out] line %d", i))
	}
	lines := b.Snapshot()
	require.Len(t, lines, DefaultTailLines)
	assert.Equal(t, "[out] line 50", lines[0])
	assert.Equal(t, "[out] line 249", lines[len(lines)-1])
}

func TestAppendTrimsAtLineBoundary(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "relay.log")
	b := New(path, 100, 40)
	b.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	for i := 0; i < 10; i++ {
		b.Append(fmt.Sprintf("line-%02d-xxxxxxxx", i))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.HasPrefix(text, "[supervisor] log trimmed at 2026-01-02T03:04:05Z\n"), text)
	assert.Contains(t, text, "line-09-xxxxxxxx\n")
	assert.NotContains(t, text, "line-00")
	for _, line := range strings.Split(strings.TrimSpace(text), "\n")[1:] {
		assert.True(t, strings.HasPrefix(line, "line-"), "partial line %q", line)
	}
}

func TestKeepFallsBackToHalf(t *testing.T) {
	t.Parallel()

	b := New("unused", 1000, 0)
	assert.Equal(t, int64(500), b.keepBytes)
}

func TestAppendSwallowsErrors(t *testing.T) {
	t.Parallel()

	b := New(filepath.Join(t.TempDir(), "missing", "relay.log"), 10, 5)
	b.Append("never written")
	assert.Empty(t, b.Snapshot())
}

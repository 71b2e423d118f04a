package procscan

import (
	"context"
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlive(t *testing.T) {
	t.Parallel()

	assert.True(t, Alive(os.Getpid()))
	assert.False(t, Alive(0))
	assert.False(t, Alive(-5))
}

func TestFinderMatchesSignature(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sleep binary not available")
	}
	cmd := exec.Command("sleep", "30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pids, err := NewFinder("sleep 30").Find(ctx)
	require.NoError(t, err)
	assert.Contains(t, pids, cmd.Process.Pid)

	require.NoError(t, Terminate(ctx, cmd.Process.Pid))
	state, _ := cmd.Process.Wait()
	require.NotNil(t, state)
	assert.False(t, state.Success())
}

func TestFinderIgnoresSelfAndEmptySignature(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pids, err := NewFinder("").Find(ctx)
	require.NoError(t, err)
	assert.Empty(t, pids)

	var nilFinder *Finder
	pids, err = nilFinder.Find(ctx)
	require.NoError(t, err)
	assert.Empty(t, pids)

	self, err := os.Executable()
	require.NoError(t, err)
	pids, err = NewFinder(self).Find(ctx)
	require.NoError(t, err)
	assert.NotContains(t, pids, os.Getpid())
}

func TestKillStopsProcessIgnoringTerm(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sh not available")
	}
	cmd := exec.Command("sh", "-c", "trap '' TERM; sleep 30")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() { _ = cmd.Process.Kill() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, Kill(ctx, cmd.Process.Pid))
	state, err := cmd.Process.Wait()
	require.NoError(t, err)
	assert.False(t, state.Success())
	assert.False(t, Alive(cmd.Process.Pid))

	assert.Error(t, Kill(ctx, 0))
}

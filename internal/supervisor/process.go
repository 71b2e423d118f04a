package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tagrelay/internal/envfile"
	"github.com/JakeFAU/tagrelay/internal/metrics"
	"github.com/JakeFAU/tagrelay/internal/procscan"
)

const maxLineBytes = 1024 * 1024

// handle tracks a spawned worker until it exits.
type handle struct {
	cmd          *exec.Cmd
	pid          int
	mode         Mode
	loginPending bool
	stdin        io.WriteCloser
	done         chan struct{}
}

// Start launches the worker. The duplicate guard consults the in-memory
// handle, the pid marker and the process table, in that order.
func (s *Supervisor) Start(ctx context.Context, mode Mode) (int, error) {
	if mode != ModeLogin {
		mode = ModeNormal
	}
	s.mu.Lock()
	if s.handle != nil || s.starting {
		s.mu.Unlock()
		return 0, ErrAlreadyRunning
	}
	s.starting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()

	if _, ok := s.marker.Alive(); ok {
		return 0, ErrAlreadyRunning
	}
	if pids, err := s.finder.Find(ctx); err == nil && len(pids) > 0 {
		return 0, ErrAlreadyRunning
	}

	s.Log(fmt.Sprintf("[supervisor] start requested mode=%s", mode))
	if err := s.checker.Ensure(ctx); err != nil {
		s.Log(fmt.Sprintf("[supervisor] dependency check failed: %v", err))
		return 0, fmt.Errorf("prepare runtime: %w", err)
	}
	s.Log("[supervisor] starting worker process...")

	h, err := s.spawn(mode)
	if err != nil {
		s.Log(fmt.Sprintf("[supervisor] worker failed to start: %v", err))
		return 0, err
	}
	metrics.ObserveWorkerStart(string(mode))
	return h.pid, nil
}

func (s *Supervisor) spawn(mode Mode) (*handle, error) {
	cmd := exec.Command(s.cfg.Executable, s.cfg.WorkerArgs...)
	cmd.Dir = s.cfg.Dir
	cmd.Env = s.workerEnv(mode)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	var stdin io.WriteCloser
	if mode == ModeLogin {
		if stdin, err = cmd.StdinPipe(); err != nil {
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	h := &handle{
		cmd:          cmd,
		pid:          cmd.Process.Pid,
		mode:         mode,
		loginPending: mode == ModeLogin,
		stdin:        stdin,
		done:         make(chan struct{}),
	}
	s.mu.Lock()
	s.handle = h
	s.mu.Unlock()
	if err := s.marker.Claim(h.pid); err != nil {
		s.logger.Warn("claim worker pid file", zap.Error(err))
	}

	var pumps sync.WaitGroup
	pumps.Add(2)
	go s.pump(&pumps, stdout, "out")
	go s.pump(&pumps, stderr, "err")
	go func() {
		pumps.Wait()
		_ = cmd.Wait()
		s.exited(h)
	}()
	return h, nil
}

// workerEnv layers the env file's recognized keys over the base environment.
// Later entries win when exec dedups duplicate keys.
func (s *Supervisor) workerEnv(mode Mode) []string {
	env := append([]string{}, s.cfg.Env...)
	values, err := envfile.Values(s.cfg.EnvFile)
	if err != nil {
		s.logger.Warn("read env file", zap.Error(err))
	}
	for _, key := range envfile.Keys {
		if val, ok := values[key]; ok {
			env = append(env, key+"="+val)
		}
	}
	if mode == ModeLogin {
		return append(env, "INIT_LOGIN=1", "HEADLESS=false")
	}
	return append(env, "INIT_LOGIN=0")
}

// pump tags each line of r with its stream name.
func (s *Supervisor) pump(wg *sync.WaitGroup, r io.Reader, name string) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		metrics.ObserveLogLine(name)
		s.logs.Publish("[" + name + "] " + line)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("read worker output", zap.String("stream", name), zap.Error(err))
		_, _ = io.Copy(io.Discard, r)
	}
}

func (s *Supervisor) exited(h *handle) {
	code, sig, outcome := describeExit(h.cmd.ProcessState)
	s.Log(fmt.Sprintf("[supervisor] worker exited code=%s signal=%s", code, sig))
	metrics.ObserveWorkerExit(outcome)

	s.mu.Lock()
	if s.handle == h {
		s.handle = nil
	}
	s.mu.Unlock()
	if err := s.marker.ReleaseIf(h.pid); err != nil {
		s.logger.Warn("release worker pid file", zap.Error(err))
	}
	close(h.done)
}

func describeExit(ps *os.ProcessState) (code, sig, outcome string) {
	if ps == nil {
		return "null", "null", "error"
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return "null", ws.Signal().String(), "signal"
	}
	if ps.ExitCode() == 0 {
		return "0", "null", "clean"
	}
	return strconv.Itoa(ps.ExitCode()), "null", "error"
}

// Stop asks the worker to terminate and reports whether a termination was
// sent. It does not wait for the exit. Targets are tried in order: the
// tracked handle, the pid marker, then every process-table match.
func (s *Supervisor) Stop(ctx context.Context) bool {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h != nil {
		if err := procscan.Terminate(ctx, h.pid); err != nil {
			s.logger.Warn("terminate worker", zap.Int("pid", h.pid), zap.Error(err))
			return false
		}
		return true
	}

	if pid, ok := s.marker.Alive(); ok {
		if err := procscan.Terminate(ctx, pid); err != nil {
			s.logger.Warn("terminate worker from pid file", zap.Int("pid", pid), zap.Error(err))
			return false
		}
		return true
	}

	pids, err := s.finder.Find(ctx)
	if err != nil {
		s.logger.Warn("scan process table", zap.Error(err))
		return false
	}
	stopped := false
	for _, pid := range pids {
		if err := procscan.Terminate(ctx, pid); err == nil {
			stopped = true
		}
	}
	return stopped
}

// CompleteLogin sends the confirmation line to a worker waiting in login mode.
func (s *Supervisor) CompleteLogin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handle
	if h == nil {
		return ErrNotRunning
	}
	if !h.loginPending || h.stdin == nil {
		return ErrNoLoginPending
	}
	if _, err := io.WriteString(h.stdin, "\n"); err != nil {
		return fmt.Errorf("write login confirmation: %w", err)
	}
	if err := h.stdin.Close(); err != nil {
		return fmt.Errorf("close worker stdin: %w", err)
	}
	h.loginPending = false
	return nil
}

func (s *Supervisor) running() bool {
	s.mu.Lock()
	tracked := s.handle != nil
	s.mu.Unlock()
	if tracked {
		return true
	}
	_, ok := s.marker.Alive()
	return ok
}

// waitStopped blocks until the worker is gone or RestartWait elapses and
// reports whether it is gone.
func (s *Supervisor) waitStopped(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RestartWait)
	defer cancel()

	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	if h != nil {
		select {
		case <-h.done:
			return true
		case <-ctx.Done():
			return false
		}
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if _, ok := s.marker.Alive(); !ok {
			return true
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false
		}
	}
}

// stopAndWait terminates the worker and waits for it to exit, killing it when
// it outlives RestartWait.
func (s *Supervisor) stopAndWait(ctx context.Context) {
	if !s.Stop(ctx) || s.waitStopped(ctx) {
		return
	}

	s.mu.Lock()
	pid := 0
	if s.handle != nil {
		pid = s.handle.pid
	}
	s.mu.Unlock()
	if pid == 0 {
		pid, _ = s.marker.Alive()
	}
	if pid == 0 {
		return
	}
	s.Log(fmt.Sprintf("[supervisor] worker did not exit in time, killing pid=%d", pid))
	if err := procscan.Kill(ctx, pid); err != nil {
		s.logger.Warn("kill worker", zap.Int("pid", pid), zap.Error(err))
		return
	}
	s.waitStopped(ctx)
}

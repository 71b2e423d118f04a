// Package procscan inspects the OS process table.
package procscan

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// Alive reports whether a process with pid exists.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// Terminate asks pid to exit (SIGTERM or the platform equivalent).
func Terminate(ctx context.Context, pid int) error {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := p.TerminateWithContext(ctx); err != nil {
		return fmt.Errorf("terminate process %d: %w", pid, err)
	}
	return nil
}

// Kill forcibly stops pid.
func Kill(ctx context.Context, pid int) error {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := p.KillWithContext(ctx); err != nil {
		return fmt.Errorf("kill process %d: %w", pid, err)
	}
	return nil
}

// Finder locates processes whose command line contains a signature.
type Finder struct {
	signature string
	self      int
}

// NewFinder builds a Finder that ignores the calling process.
func NewFinder(signature string) *Finder {
	return &Finder{signature: signature, self: os.Getpid()}
}

// Find returns matching pids in ascending order. An empty signature matches nothing.
func (f *Finder) Find(ctx context.Context) ([]int, error) {
	if f == nil || strings.TrimSpace(f.signature) == "" {
		return nil, nil
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	var pids []int
	for _, p := range procs {
		if int(p.Pid) == f.self {
			continue
		}
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil || cmdline == "" {
			continue
		}
		if strings.Contains(cmdline, f.signature) {
			pids = append(pids, int(p.Pid))
		}
	}
	sort.Ints(pids)
	return pids, nil
}

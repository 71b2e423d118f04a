// Package pidfile implements a durable instance marker backed by a pid file
// and a liveness probe.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/JakeFAU/tagrelay/internal/procscan"
)

// Marker records which process owns an instance slot.
type Marker struct {
	path  string
	alive func(pid int) bool
}

// New builds a Marker stored at path.
func New(path string) *Marker {
	return &Marker{path: path, alive: procscan.Alive}
}

// Path returns the backing file location.
func (m *Marker) Path() string { return m.path }

// Alive returns the recorded pid when it belongs to a running process. A
// marker pointing at a dead or unparsable pid is stale and is removed.
func (m *Marker) Alive() (int, bool) {
	pid, err := m.read()
	if err != nil {
		return 0, false
	}
	if pid <= 0 || !m.alive(pid) {
		_ = os.Remove(m.path)
		return 0, false
	}
	return pid, true
}

// Claim records pid as the owner.
func (m *Marker) Claim(pid int) error {
	if err := os.WriteFile(m.path, []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	return nil
}

// Release removes the marker. A missing file is not an error.
func (m *Marker) Release() error {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

// ReleaseIf removes the marker only when it still records pid.
func (m *Marker) ReleaseIf(pid int) error {
	recorded, err := m.read()
	if err != nil || recorded != pid {
		return nil
	}
	return m.Release()
}

// read returns -1 for a marker whose content is not a pid.
func (m *Marker) read() (int, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return -1, nil
	}
	return pid, nil
}

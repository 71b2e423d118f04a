// Package deps verifies, and installs when configured to, the browser the
// worker drives.
package deps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

const outputLimit = 1200

// ErrBrowserMissing is returned when no browser is found and none can be installed.
var ErrBrowserMissing = errors.New("no Chrome or Chromium browser found; install one, or set BROWSER_PATH or BROWSER_INSTALL_CMD")

// Candidates are the executable names probed on PATH.
var Candidates = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell", "chrome"}

// Config configures an Installer.
type Config struct {
	// Marker is written once a browser is known to be present; its existence
	// short-circuits later checks.
	Marker      string
	BrowserPath string
	InstallCmd  string
}

// Installer runs the first-time browser check synchronously, reporting
// progress through a line logger.
type Installer struct {
	cfg      Config
	logf     func(line string)
	lookPath func(file string) (string, error)
	run      func(ctx context.Context, command string) (stdout, stderr string, err error)
}

// New builds an Installer. logf receives human-readable progress lines.
func New(cfg Config, logf func(line string)) *Installer {
	if logf == nil {
		logf = func(string) {}
	}
	return &Installer{cfg: cfg, logf: logf, lookPath: exec.LookPath, run: runShell}
}

// Ensure returns nil once a browser is available. Failures carry a message
// suitable for showing to the operator.
func (i *Installer) Ensure(ctx context.Context) error {
	i.logf("[supervisor] checking runtime dependencies...")
	if i.cfg.Marker != "" {
		if _, err := os.Stat(i.cfg.Marker); err == nil {
			return nil
		}
	}

	if i.cfg.BrowserPath != "" {
		if _, err := os.Stat(i.cfg.BrowserPath); err != nil {
			return fmt.Errorf("browser not found at BROWSER_PATH %s: %w", i.cfg.BrowserPath, err)
		}
		return i.markReady(i.cfg.BrowserPath)
	}
	if path, ok := i.find(); ok {
		return i.markReady(path)
	}
	if strings.TrimSpace(i.cfg.InstallCmd) == "" {
		return ErrBrowserMissing
	}

	i.logf("[supervisor] preparing browser (first-time setup, may take a few minutes)...")
	stdout, stderr, err := i.run(ctx, i.cfg.InstallCmd)
	if err != nil {
		if s := clip(stdout); s != "" {
			i.logf("[supervisor] browser setup stdout: " + s)
		}
		if s := clip(stderr); s != "" {
			i.logf("[supervisor] browser setup stderr: " + s)
		}
		return fmt.Errorf("browser setup failed: %w", err)
	}
	path, ok := i.find()
	if !ok {
		return fmt.Errorf("browser setup finished but no browser was found: %w", ErrBrowserMissing)
	}
	i.logf("[supervisor] browser setup completed")
	return i.markReady(path)
}

func (i *Installer) find() (string, bool) {
	for _, name := range Candidates {
		if path, err := i.lookPath(name); err == nil {
			return path, true
		}
	}
	return "", false
}

func (i *Installer) markReady(path string) error {
	i.logf("[supervisor] using browser " + path)
	if i.cfg.Marker == "" {
		return nil
	}
	// A marker that cannot be written only costs a re-check next time.
	_ = os.WriteFile(i.cfg.Marker, []byte(path+"\n"), 0o600)
	return nil
}

func clip(s string) string {
	s = strings.TrimSpace(s)
	if r := []rune(s); len(r) > outputLimit {
		return string(r[:outputLimit])
	}
	return s
}

func runShell(ctx context.Context, command string) (string, string, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(ctx, "sh", "-c", command)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

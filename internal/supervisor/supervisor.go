// Package supervisor runs the crawl worker as a child process and fans its
// output and the overlay feed out to streaming subscribers.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tagrelay/internal/clock/system"
	"github.com/JakeFAU/tagrelay/internal/config"
	"github.com/JakeFAU/tagrelay/internal/deps"
	"github.com/JakeFAU/tagrelay/internal/envfile"
	"github.com/JakeFAU/tagrelay/internal/id/uuid"
	"github.com/JakeFAU/tagrelay/internal/logbook"
	"github.com/JakeFAU/tagrelay/internal/metrics"
	"github.com/JakeFAU/tagrelay/internal/pidfile"
	"github.com/JakeFAU/tagrelay/internal/procscan"
	"github.com/JakeFAU/tagrelay/internal/stream"
)

// OverlayCapacity is how many overlay messages are replayed to new subscribers.
const OverlayCapacity = 200

const defaultRestartWait = 10 * time.Second

var (
	// ErrAlreadyRunning is returned by Start while a worker is alive.
	ErrAlreadyRunning = errors.New("worker is already running")
	// ErrNotRunning is returned when an operation needs a tracked worker.
	ErrNotRunning = errors.New("no worker is running")
	// ErrNoLoginPending is returned by CompleteLogin outside a login run.
	ErrNoLoginPending = errors.New("no worker is waiting for login confirmation")
	// ErrContentRequired rejects overlay messages without content.
	ErrContentRequired = errors.New("content is required")
)

// Mode selects how the worker runs.
type Mode string

const (
	// ModeNormal runs the poll loop.
	ModeNormal Mode = "normal"
	// ModeLogin runs the interactive login handshake.
	ModeLogin Mode = "login"
)

// DependencyChecker prepares the worker's runtime before a launch.
type DependencyChecker interface {
	Ensure(ctx context.Context) error
}

// Clock supplies overlay timestamps.
type Clock interface {
	NowMillis() int64
}

// IDGenerator supplies overlay ids when the caller omits one.
type IDGenerator interface {
	NewID() (string, error)
}

// Config describes the worker process and the supervisor's files.
type Config struct {
	EnvFile         string
	Executable      string   // defaults to the running binary
	WorkerArgs      []string // defaults to: worker --env-file <EnvFile>
	Dir             string
	Env             []string // base child environment, defaults to os.Environ()
	PIDFile         string
	WorkerSignature string
	LogFile         string
	MaxLogBytes     int64
	KeepLogBytes    int64
	Highlight       []string
	Browser         deps.Config
	RestartWait     time.Duration
}

// FromConfig maps the loaded supervisor settings onto a Config.
func FromConfig(c config.Supervisor) Config {
	return Config{
		EnvFile:         c.EnvFile,
		PIDFile:         c.PIDFile,
		WorkerSignature: c.WorkerSignature,
		LogFile:         c.LogFile,
		MaxLogBytes:     c.MaxLogBytes,
		KeepLogBytes:    c.KeepLogBytes,
		Highlight:       c.Highlight,
		Browser: deps.Config{
			Marker:      c.BrowserMarker,
			BrowserPath: c.BrowserPath,
			InstallCmd:  c.BrowserInstallCmd,
		},
	}
}

// Dependencies are optional collaborators; nil fields get real implementations.
type Dependencies struct {
	Checker DependencyChecker
	Clock   Clock
	IDs     IDGenerator
}

// OverlayInput is an overlay message as submitted by a caller.
type OverlayInput struct {
	ID        string
	Content   string
	Username  string
	Handle    string
	AvatarURL string
}

// OverlayMessage is what overlay subscribers receive.
type OverlayMessage struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Username  string `json:"username"`
	Handle    string `json:"handle"`
	AvatarURL string `json:"avatar_url"`
	TS        int64  `json:"ts"`
}

// Status is a point-in-time view of the worker.
type Status struct {
	Running      bool              `json:"running"`
	PID          *int              `json:"pid"`
	Mode         Mode              `json:"mode"`
	LoginPending bool              `json:"loginPending"`
	Highlight    []string          `json:"highlight"`
	Env          map[string]string `json:"env"`
}

// Supervisor owns the worker handle and both subscriber registries.
type Supervisor struct {
	cfg     Config
	logger  *zap.Logger
	marker  *pidfile.Marker
	finder  *procscan.Finder
	checker DependencyChecker
	clock   Clock
	ids     IDGenerator

	logs    *stream.Hub[string]
	overlay *stream.Hub[OverlayMessage]

	mu        sync.Mutex
	handle    *handle
	starting  bool
	highlight []string
}

// New builds a Supervisor. Nothing is started until Start is called.
func New(cfg Config, d Dependencies, logger *zap.Logger) (*Supervisor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		cfg.Executable = exe
	}
	if cfg.WorkerArgs == nil {
		cfg.WorkerArgs = []string{"worker", "--env-file", cfg.EnvFile}
	}
	if cfg.Env == nil {
		cfg.Env = os.Environ()
	}
	if cfg.RestartWait <= 0 {
		cfg.RestartWait = defaultRestartWait
	}

	s := &Supervisor{
		cfg:       cfg,
		logger:    logger,
		marker:    pidfile.New(cfg.PIDFile),
		finder:    procscan.NewFinder(cfg.WorkerSignature),
		checker:   d.Checker,
		clock:     d.Clock,
		ids:       d.IDs,
		highlight: append([]string{}, cfg.Highlight...),
	}
	if s.clock == nil {
		s.clock = system.New()
	}
	if s.ids == nil {
		s.ids = uuid.New()
	}
	if s.checker == nil {
		s.checker = deps.New(cfg.Browser, s.Log)
	}
	s.logs = stream.NewHub(stream.Config[string]{
		Name:          "logs",
		Backlog:       logbook.New(cfg.LogFile, cfg.MaxLogBytes, cfg.KeepLogBytes),
		OnSubscribers: func(n int) { metrics.SetSubscribers("logs", n) },
		Logger:        logger,
	})
	s.overlay = stream.NewHub(stream.Config[OverlayMessage]{
		Name:          "overlay",
		Backlog:       stream.NewRing[OverlayMessage](OverlayCapacity),
		OnSubscribers: func(n int) { metrics.SetSubscribers("overlay", n) },
		Logger:        logger,
	})
	return s, nil
}

// Logs is the log-line registry.
func (s *Supervisor) Logs() *stream.Hub[string] { return s.logs }

// Overlay is the overlay-message registry.
func (s *Supervisor) Overlay() *stream.Hub[OverlayMessage] { return s.overlay }

// Log records a supervisor line in the log file and broadcasts it.
func (s *Supervisor) Log(line string) {
	s.logger.Info(line)
	metrics.ObserveLogLine("supervisor")
	s.logs.Publish(line)
}

// Status combines the in-memory handle, the pid marker and a process-table
// scan, so a restarted supervisor still sees a worker it did not spawn.
func (s *Supervisor) Status(ctx context.Context) Status {
	s.mu.Lock()
	st := Status{Mode: ModeNormal, Highlight: append([]string{}, s.highlight...)}
	if h := s.handle; h != nil {
		pid := h.pid
		st.Running = true
		st.PID = &pid
		st.Mode = h.mode
		st.LoginPending = h.loginPending
	}
	s.mu.Unlock()

	if !st.Running {
		if pid, ok := s.marker.Alive(); ok {
			st.Running = true
			st.PID = &pid
		}
	}
	if !st.Running {
		if pids, err := s.finder.Find(ctx); err == nil && len(pids) > 0 {
			st.Running = true
			st.PID = &pids[0]
		}
	}

	env, err := envfile.Values(s.cfg.EnvFile)
	if err != nil {
		s.logger.Warn("read env file", zap.Error(err))
	}
	st.Env = env
	return st
}

// Highlight returns the handles emphasized by the operator pages.
func (s *Supervisor) Highlight() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.highlight...)
}

// SetHighlight replaces the highlighted handles from a comma-separated list
// and, when persist is set, stores them as HIGHLIGHT_IDS.
func (s *Supervisor) SetHighlight(input string, persist bool) ([]string, error) {
	handles := config.SplitList(input)
	s.mu.Lock()
	s.highlight = handles
	s.mu.Unlock()
	if persist {
		if err := envfile.SetHighlight(s.cfg.EnvFile, handles); err != nil {
			return nil, fmt.Errorf("persist highlight: %w", err)
		}
	}
	return append([]string{}, handles...), nil
}

// ApplyEnv patches the recognized keys into the env file and restarts a
// running worker in normal mode so it picks them up.
func (s *Supervisor) ApplyEnv(ctx context.Context, patch map[string]string) (map[string]string, error) {
	if _, err := envfile.Patch(s.cfg.EnvFile, patch); err != nil {
		return nil, fmt.Errorf("save env: %w", err)
	}

	if s.running() {
		s.Log("[supervisor] settings changed, restarting worker")
		s.stopAndWait(ctx)
		if _, err := s.Start(ctx, ModeNormal); err != nil {
			return nil, fmt.Errorf("restart worker: %w", err)
		}
	}

	values, err := envfile.Values(s.cfg.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	return values, nil
}

// PushOverlay stores msg in the replay ring and sends it to live subscribers.
func (s *Supervisor) PushOverlay(in OverlayInput) (OverlayMessage, error) {
	if in.Content == "" {
		return OverlayMessage{}, ErrContentRequired
	}
	id := in.ID
	if id == "" {
		var err error
		if id, err = s.ids.NewID(); err != nil {
			return OverlayMessage{}, fmt.Errorf("overlay id: %w", err)
		}
	}
	msg := OverlayMessage{
		ID:        id,
		Content:   in.Content,
		Username:  in.Username,
		Handle:    in.Handle,
		AvatarURL: in.AvatarURL,
		TS:        s.clock.NowMillis(),
	}
	s.overlay.Publish(msg)
	metrics.ObserveOverlayMessage()
	return msg, nil
}

// Shutdown stops the worker, killing it if it ignores the request, and closes
// every subscriber connection.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.stopAndWait(ctx)
	s.logs.Close()
	s.overlay.Close()
}

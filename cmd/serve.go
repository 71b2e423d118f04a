package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tagrelay/internal/api"
	"github.com/JakeFAU/tagrelay/internal/config"
	"github.com/JakeFAU/tagrelay/internal/envfile"
	"github.com/JakeFAU/tagrelay/internal/logging"
	"github.com/JakeFAU/tagrelay/internal/metrics"
	"github.com/JakeFAU/tagrelay/internal/pidfile"
	"github.com/JakeFAU/tagrelay/internal/supervisor"
)

const (
	portProbeTimeout = 600 * time.Millisecond
	shutdownTimeout  = 5 * time.Second
	themeFile        = "overlay-theme.css"
)

// newServeCmd creates the 'serve' subcommand hosting the supervisor.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Runs the supervisor: operator page, worker control, log and overlay streams",
		RunE:  runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	created, err := envfile.Ensure(envFile)
	if err != nil {
		return fmt.Errorf("prepare env file: %w", err)
	}
	cfg, err := config.LoadSupervisor(envFile)
	if err != nil {
		return fmt.Errorf("load supervisor config: %w", err)
	}

	logger, err := logging.New(cfg.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	logger = logger.Named("supervisor")
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	if created {
		logger.Info("created env file with defaults", zap.String("path", envFile))
	}

	marker := pidfile.New(cfg.SupervisorPIDFile)
	if pid, ok := marker.Alive(); ok && pid != os.Getpid() {
		logger.Info("another supervisor is already running", zap.Int("pid", pid))
		return nil
	}
	if portInUse(cfg.Port) {
		logger.Info("port already in use; assuming a supervisor is running", zap.Int("port", cfg.Port))
		return nil
	}
	if err := marker.Claim(os.Getpid()); err != nil {
		return fmt.Errorf("claim supervisor marker: %w", err)
	}
	defer func() {
		if rerr := marker.ReleaseIf(os.Getpid()); rerr != nil {
			logger.Warn("release supervisor marker", zap.Error(rerr))
		}
	}()

	if err := loadBootEnv(envFile); err != nil {
		logger.Warn("load env file into environment", zap.Error(err))
	}
	if cfg.WorkerSignature == "" {
		if exe, exeErr := os.Executable(); exeErr == nil {
			cfg.WorkerSignature = exe + " worker"
		}
	}

	metrics.Init()
	sup, err := supervisor.New(supervisor.FromConfig(cfg), supervisor.Dependencies{}, logger)
	if err != nil {
		return fmt.Errorf("build supervisor: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiServer := api.NewServer(sup, api.Options{
		ThemeCSSPath: filepath.Join(filepath.Dir(envFile), themeFile),
		OnShutdown:   stop,
	}, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.String("url", fmt.Sprintf("http://localhost:%d", cfg.Port)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Closing the registries ends open event streams so Shutdown can drain.
	sup.Shutdown(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	return nil
}

// portInUse reports whether something already accepts connections on port.
func portInUse(port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), portProbeTimeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// loadBootEnv copies the recognized .env keys into this process's environment.
func loadBootEnv(path string) error {
	values, err := envfile.Values(path)
	if err != nil {
		return err
	}
	for key, val := range values {
		if err := os.Setenv(key, val); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

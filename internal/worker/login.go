package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// ErrLoginAborted is returned when the confirmation channel closes without a line.
var ErrLoginAborted = errors.New("login confirmation channel closed")

// StateSaver is the part of a feed session the login flow needs.
type StateSaver interface {
	SaveState(ctx context.Context) error
	Close()
}

// Login waits, without a timeout, for one line on confirm and then persists
// the session's authentication state. The session is closed either way.
func Login(ctx context.Context, sess StateSaver, confirm io.Reader, statePath string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	defer sess.Close()

	logger.Info("log in using the opened browser window, then confirm to save the session",
		zap.String("state_path", statePath))

	lines := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(confirm).ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			lines <- ErrLoginAborted
			return
		}
		lines <- nil
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("wait for login confirmation: %w", ctx.Err())
	case err := <-lines:
		if err != nil {
			return err
		}
	}

	if err := sess.SaveState(ctx); err != nil {
		return fmt.Errorf("save login state: %w", err)
	}
	logger.Info("login state saved; restart in normal mode", zap.String("state_path", statePath))
	return nil
}

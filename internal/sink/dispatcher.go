package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tagrelay/internal/relay"
)

// Target pairs a sink with its failure policy.
type Target struct {
	Name string
	Sink relay.Sink
	// BestEffort targets are sent in the background and their failures are
	// dropped silently. Other targets block and have failures logged.
	BestEffort bool
}

// Dispatcher fans one payload out to every target.
type Dispatcher struct {
	targets []Target
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher builds a dispatcher; targets with a nil sink are skipped.
func NewDispatcher(logger *zap.Logger, targets ...Target) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{logger: logger, timeout: 10 * time.Second}
	for _, t := range targets {
		if t.Sink != nil {
			d.targets = append(d.targets, t)
		}
	}
	return d
}

// Dispatch sends p to every target. It returns the joined errors of the
// required targets after logging each of them; best-effort failures never
// surface.
func (d *Dispatcher) Dispatch(ctx context.Context, p relay.Payload) error {
	var errs []error
	for _, t := range d.targets {
		if t.BestEffort {
			d.sendBackground(ctx, t, p)
			continue
		}
		if err := t.Sink.Send(ctx, p); err != nil {
			fields := []zap.Field{zap.String("target", t.Name), zap.String("id", p.ID)}
			var se *StatusError
			if errors.As(err, &se) {
				fields = append(fields, zap.Int("status", se.Code), zap.String("body", se.Body))
			} else {
				fields = append(fields, zap.Error(err))
			}
			d.logger.Error("delivery failed", fields...)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) sendBackground(ctx context.Context, t Target, p relay.Payload) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		_ = t.Sink.Send(sendCtx, p)
	}()
}

// Wait blocks until in-flight best-effort sends finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

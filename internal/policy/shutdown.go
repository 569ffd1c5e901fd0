package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/fabriziosalmi/rainroll/internal/lifecycle"
	"go.uber.org/zap"
)

type syncer interface {
	Sync() error
}

func (c *Coordinator) exitHook() lifecycle.Hook {
	return func(context.Context) {
		_ = c.Shutdown()
	}
}

// Shutdown uploads the last segment and waits for the worker to drain.
//
// With RollOnExit a final rollover closes the active file and its segment is
// queued; otherwise the active file is queued as is. The wait is bounded by
// the drain timeout, and the worker is stopped on every path, so exit is
// never held up indefinitely. Later calls return the first result.
func (c *Coordinator) Shutdown() error {
	c.shutdownOnce.Do(func() {
		c.shutdownErr = c.shutdown()
	})
	return c.shutdownErr
}

func (c *Coordinator) shutdown() (err error) {
	defer c.worker.Stop()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("policy: shutdown panic: %v", r)
			c.log.Error("failed to upload a log on exit", zap.Error(err))
		}
	}()

	c.stopClock()
	if c.clockDone != nil {
		<-c.clockDone
	}

	if c.rollOnExit {
		err = c.Rollover()
	} else {
		if s, ok := c.engine.(syncer); ok {
			if serr := s.Sync(); serr != nil {
				c.log.Warn("sync active file before upload", zap.Error(serr))
			}
		}
		err = c.Submit(c.engine.ActiveFileName())
	}
	if err != nil {
		c.log.Error("failed to upload a log on exit", zap.Error(err))
	}

	if derr := c.worker.DrainAndStop(c.drainTimeout); derr != nil {
		c.log.Error("upload drain did not finish before exit",
			zap.Duration("drain_timeout", c.drainTimeout),
			zap.Error(derr),
		)
		err = errors.Join(err, derr)
	}
	return err
}

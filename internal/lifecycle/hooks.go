// Package lifecycle holds the process-exit hooks. Go has no runtime shutdown
// hook, so main runs them explicitly once a termination signal arrives or
// the process returns normally.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// Hook is a registered exit callback.
type Hook func(ctx context.Context)

type namedHook struct {
	name string
	fn   Hook
}

// Hooks is a registry of exit hooks. The zero value is ready to use.
type Hooks struct {
	mu    sync.Mutex
	hooks []namedHook
	once  sync.Once
	log   *zap.Logger
}

// NewHooks returns a registry logging through log.
func NewHooks(log *zap.Logger) *Hooks {
	return &Hooks{log: log}
}

// Add registers fn. Hooks run in reverse registration order.
func (h *Hooks) Add(name string, fn Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, namedHook{name: name, fn: fn})
}

// Len returns the number of registered hooks.
func (h *Hooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hooks)
}

// Run runs every hook exactly once; later calls return immediately. A
// panicking hook is logged and does not prevent the others from running.
func (h *Hooks) Run(ctx context.Context) {
	h.once.Do(func() {
		h.mu.Lock()
		hooks := append([]namedHook(nil), h.hooks...)
		h.mu.Unlock()

		for i := len(hooks) - 1; i >= 0; i-- {
			h.runOne(ctx, hooks[i])
		}
	})
}

func (h *Hooks) runOne(ctx context.Context, hk namedHook) {
	log := h.log
	if log == nil {
		log = zap.NewNop()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("exit hook panicked", zap.String("hook", hk.name), zap.Any("panic", r))
		}
	}()
	log.Debug("running exit hook", zap.String("hook", hk.name))
	hk.fn(ctx)
}

// WaitForSignal blocks until SIGINT/SIGTERM or ctx is done and reports which.
func WaitForSignal(ctx context.Context) os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		return sig
	case <-ctx.Done():
		return nil
	}
}

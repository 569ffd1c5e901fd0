package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fabriziosalmi/rainroll/pkg/logger"
	"github.com/stretchr/testify/assert"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Sync() error { return nil }

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHeartbeat_WritesInProduction(t *testing.T) {
	out := &lockedBuffer{}
	appLog := logger.NewWriter("production", out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		heartbeat(ctx, appLog, 10*time.Millisecond)
	}()

	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "THE QUICK BROWN FOX JUMPS OVER THE LAZY DOG")
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	<-done
}

func TestHeartbeat_DisabledInterval(t *testing.T) {
	out := &lockedBuffer{}
	heartbeat(context.Background(), logger.NewWriter("production", out), 0)
	assert.Empty(t, out.String())
}

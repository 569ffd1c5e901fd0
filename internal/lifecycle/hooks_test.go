package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestHooks_RunOnceInReverseOrder(t *testing.T) {
	h := NewHooks(zap.NewNop())
	var order []string
	h.Add("first", func(context.Context) { order = append(order, "first") })
	h.Add("second", func(context.Context) { order = append(order, "second") })
	assert.Equal(t, 2, h.Len())

	h.Run(context.Background())
	h.Run(context.Background())

	assert.Equal(t, []string{"second", "first"}, order)
}

func TestHooks_PanicDoesNotStopOthers(t *testing.T) {
	var h Hooks
	ran := false
	h.Add("survivor", func(context.Context) { ran = true })
	h.Add("broken", func(context.Context) { panic("boom") })

	assert.NotPanics(t, func() { h.Run(context.Background()) })
	assert.True(t, ran)
}

func TestWaitForSignal_ContextDone(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Nil(t, WaitForSignal(ctx))
}

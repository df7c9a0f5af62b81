package logouthook

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerBeforeRegisterIsNoop(t *testing.T) {
	t.Parallel()

	h := New()
	require.False(t, h.Trigger(context.Background()))
}

func TestRegisterAndConcurrentTrigger(t *testing.T) {
	t.Parallel()

	h := New()
	var calls atomic.Int32
	h.Register(func(context.Context) { calls.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, h.Trigger(context.Background()))
		}()
	}
	wg.Wait()
	require.Equal(t, int32(16), calls.Load())

	h.Register(nil)
	require.False(t, h.Trigger(context.Background()))
}

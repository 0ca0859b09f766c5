package cleaner

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resource struct {
	data []byte
}

func TestCleanable_CleanRunsOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	obj := &resource{data: []byte("x")}
	cl := Register(New(), obj, func() { calls.Add(1) })

	cl.Clean()
	cl.Clean()
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, cl.Ran())
	runtime.KeepAlive(obj)
}

func TestCleanable_RunsWhenUnreachable(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	func() {
		obj := &resource{data: make([]byte, 64)}
		Register(New(), obj, func() { calls.Add(1) })
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return calls.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRegister_Tracker(t *testing.T) {
	t.Parallel()

	var tracked []any
	c := New(WithTracker(func(obj any, cl *Cleanable) {
		tracked = append(tracked, obj)
		assert.NotNil(t, cl)
	}))
	obj := &resource{}
	cl := Register(c, obj, func() {})
	require.Len(t, tracked, 1)
	assert.Same(t, obj, tracked[0])
	cl.Clean()
}

func TestCleanable_Nil(t *testing.T) {
	t.Parallel()

	var cl *Cleanable
	cl.Clean()
	assert.False(t, cl.Ran())
}

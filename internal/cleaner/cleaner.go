// Package cleaner releases resources held by objects that become unreachable
// without being closed.
//
// It is a backstop only: owners close their resources explicitly and the
// registered action runs at most once whichever path gets there first.
package cleaner

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Cleaner registers cleanup actions against objects.
type Cleaner struct {
	tracker func(obj any, c *Cleanable)
}

// Option configures a Cleaner.
type Option func(*Cleaner)

// WithTracker sets a function called for every registration.
func WithTracker(fn func(obj any, c *Cleanable)) Option {
	return func(c *Cleaner) {
		c.tracker = fn
	}
}

// New creates a Cleaner.
func New(opts ...Option) *Cleaner {
	c := &Cleaner{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Default is the cleaner used when none is configured.
var Default = New()

// Cleanable is a registered action.
type Cleanable struct {
	once    sync.Once
	action  func()
	cleanup runtime.Cleanup
	ran     atomic.Bool
}

// Clean runs the action if it has not run yet and cancels the runtime cleanup.
func (c *Cleanable) Clean() {
	if c == nil {
		return
	}
	c.cleanup.Stop()
	c.run()
}

// Ran reports whether the action has run.
func (c *Cleanable) Ran() bool {
	if c == nil {
		return false
	}
	return c.ran.Load()
}

func (c *Cleanable) run() {
	c.once.Do(func() {
		c.ran.Store(true)
		if c.action != nil {
			c.action()
		}
	})
}

// Register arranges for action to run when obj becomes unreachable, unless
// Clean is called first. action must not reference obj.
func Register[T any](c *Cleaner, obj *T, action func()) *Cleanable {
	if c == nil {
		c = Default
	}
	cl := &Cleanable{action: action}
	if action != nil {
		cl.cleanup = runtime.AddCleanup(obj, (*Cleanable).run, cl)
	}
	if c.tracker != nil {
		c.tracker(obj, cl)
	}
	return cl
}

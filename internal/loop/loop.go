// Copyright 2026 The Yggmq Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package loop runs a body function over and over on its own goroutine
// until it is told to stop.
package loop

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Hooks are the functions a Runner calls.  Any of them may be nil.
type Hooks struct {
	// Before runs once, before the first iteration.  An error skips the
	// loop.
	Before func() error

	// Body runs once per iteration.  The loop ends when it returns false
	// or an error, or when a break has been requested.
	Body func() (bool, error)

	// After runs once when the loop ends, whatever the reason.
	After func()
}

// Runner runs Hooks on a goroutine.
type Runner struct {
	name  string
	hooks Hooks
	log   *zap.Logger

	started  atomic.Bool
	brk      atomic.Bool
	finished atomic.Bool
	done     chan struct{}

	sync.Mutex
	err error
}

// New returns a Runner that has not been started yet.
func New(name string, hooks Hooks, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		name:  name,
		hooks: hooks,
		log:   log.Named("loop").With(zap.String("name", name)),
		done:  make(chan struct{}),
	}
}

// Name returns the name of the runner.
func (r *Runner) Name() string { return r.name }

// Start starts the goroutine.  It reports false if the runner had already
// been started.
func (r *Runner) Start() bool {
	if r.started.Swap(true) {
		return false
	}
	go r.run()
	return true
}

func (r *Runner) run() {
	defer close(r.done)
	defer r.finished.Store(true)
	defer func() {
		if r.hooks.After != nil {
			r.protect("after", func() error {
				r.hooks.After()
				return nil
			})
		}
		r.log.Debug("loop finished", zap.Bool("break", r.brk.Load()))
	}()

	if r.hooks.Before != nil {
		if err := r.protect("before", r.hooks.Before); err != nil {
			r.brk.Store(true)
			return
		}
	}
	for !r.brk.Load() {
		more := true
		err := r.protect("body", func() error {
			var err error
			more, err = r.hooks.Body()
			return err
		})
		if err != nil || !more {
			r.brk.Store(true)
		}
	}
}

// protect calls f, turning a panic into an error.  Errors are recorded;
// the first one is kept.
func (r *Runner) protect(stage string, f func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s: panic in %s: %v", r.name, stage, p)
		}
		if err != nil {
			r.log.Error("loop stopped by error",
				zap.String("stage", stage), zap.Error(err))
			r.setErr(err)
		}
	}()
	return f()
}

func (r *Runner) setErr(err error) {
	r.Lock()
	defer r.Unlock()
	if r.err == nil {
		r.err = err
	}
}

// Err returns the first error the hooks returned or panicked with.
func (r *Runner) Err() error {
	r.Lock()
	defer r.Unlock()
	return r.err
}

// SetBreak asks the loop to stop after the current iteration.
func (r *Runner) SetBreak() {
	r.brk.Store(true)
}

// WasBreak reports whether the loop was asked to stop, or stopped by
// itself.
func (r *Runner) WasBreak() bool {
	return r.brk.Load()
}

// IsAlive reports whether the goroutine is running.
func (r *Runner) IsAlive() bool {
	return r.started.Load() && !r.finished.Load()
}

// Started reports whether Start has been called.
func (r *Runner) Started() bool {
	return r.started.Load()
}

// Done returns a channel closed when the loop has finished.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Wait waits up to timeout for the loop to finish, and reports whether it
// did.  A negative timeout waits forever.  A runner that was never
// started counts as finished.
func (r *Runner) Wait(timeout time.Duration) bool {
	if !r.started.Load() {
		return true
	}
	if timeout < 0 {
		<-r.done
		return true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-r.done:
		return true
	case <-t.C:
		return false
	}
}

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

// Package registry keeps the table of live sockets of a process, so that
// every socket can be found by kind and address, double binds can be
// detected, and everything still open can be closed at shutdown.
package registry

import (
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Handle is a live socket tracked by a Registry.
type Handle interface {
	// CloseLinger closes the socket, waiting up to linger for queued
	// messages to be flushed first.
	CloseLinger(linger time.Duration) error

	// Closed reports whether the socket has been closed.
	Closed() bool
}

type key struct {
	kind    string
	address string
}

// Registry maps (kind, address) pairs to live socket handles.  All of its
// methods are safe for concurrent use; they are serialized by a single
// lock, which is fine because registration is a control path.
type Registry struct {
	sync.Mutex
	socks map[key]Handle
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{socks: make(map[key]Handle)}
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the Registry shared by every comm of this process that
// was not given one explicitly.  It is created on first use.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = New()
	})
	return defaultReg
}

// Register records h under kind and address.  A previous entry with the
// same key is replaced; it is not closed, that is up to the caller.
func (r *Registry) Register(kind, address string, h Handle) {
	r.Lock()
	defer r.Unlock()
	r.socks[key{kind, address}] = h
}

// Unregister closes the handle registered under kind and address, unless
// it already is closed, and removes the entry.  Unknown keys are ignored.
func (r *Registry) Unregister(kind, address string, linger time.Duration) error {
	r.Lock()
	defer r.Unlock()
	k := key{kind, address}
	h, ok := r.socks[k]
	if !ok {
		return nil
	}
	delete(r.socks, k)
	if !h.Closed() {
		return h.CloseLinger(linger)
	}
	return nil
}

// Release closes h, unless it already is closed, and removes the entry
// under kind and address if that entry is h.  Comms that share a kind and
// address, such as several receivers connected to one sender, use it so
// that closing one of them cannot close the socket of another.
func (r *Registry) Release(kind, address string, h Handle, linger time.Duration) error {
	r.Lock()
	defer r.Unlock()
	k := key{kind, address}
	if cur, ok := r.socks[k]; ok && cur == h {
		delete(r.socks, k)
	}
	if !h.Closed() {
		return h.CloseLinger(linger)
	}
	return nil
}

// Lookup returns the handle registered under kind and address.
func (r *Registry) Lookup(kind, address string) (Handle, bool) {
	r.Lock()
	defer r.Unlock()
	h, ok := r.socks[key{kind, address}]
	return h, ok
}

// CleanupAll closes every registered socket that is still open, without
// lingering, and empties the table.  It returns the number of sockets it
// closed, and the errors closing them.
func (r *Registry) CleanupAll() (int, error) {
	r.Lock()
	defer r.Unlock()
	count := 0
	var err error
	for _, h := range r.socks {
		if !h.Closed() {
			err = multierr.Append(err, h.CloseLinger(0))
			count++
		}
	}
	r.socks = make(map[key]Handle)
	return count, err
}

// Count returns the number of registered sockets.
func (r *Registry) Count() int {
	r.Lock()
	defer r.Unlock()
	return len(r.socks)
}

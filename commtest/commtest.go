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

// Package commtest provides in-memory comms for tests of code that
// depends only on yggmq.Comm.
package commtest

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yggmq/yggmq"
	"github.com/yggmq/yggmq/errors"
)

// queue is the medium shared by a sending and a receiving Comm.
type queue struct {
	sync.Mutex
	msgs [][]byte
}

// Comm is an in-memory yggmq.Comm.  A sending Comm delivers to the queue
// of its mate; nothing is ever lost, and a message counts as confirmed
// once its mate has received it.
type Comm struct {
	name string
	addr string
	dir  yggmq.Direction
	q    *queue

	sync.Mutex
	opened bool
	closed bool

	// BlockSends is the number of upcoming sends that report
	// WouldBlock.
	BlockSends int
}

// NewPair returns a sending Comm and the receiving Comm it delivers to.
// Both are closed until opened.
func NewPair(name string) (*Comm, *Comm) {
	q := &queue{}
	addr := "inproc://" + uuid.New().String()
	return &Comm{name: name, addr: addr, dir: yggmq.Send, q: q},
		&Comm{name: name, addr: addr, dir: yggmq.Recv, q: q}
}

// Name returns the name of the comm.
func (c *Comm) Name() string { return c.name }

// Address returns the address shared by the pair.
func (c *Comm) Address() string { return c.addr }

// Direction returns the direction of the comm.
func (c *Comm) Direction() yggmq.Direction { return c.dir }

// Open opens the comm.
func (c *Comm) Open() error {
	c.Lock()
	defer c.Unlock()
	if c.closed {
		return fmt.Errorf("%w: %s", errors.ErrClosed, c.name)
	}
	c.opened = true
	return nil
}

// Close closes the comm.
func (c *Comm) Close() error {
	c.Lock()
	defer c.Unlock()
	c.opened = false
	c.closed = true
	return nil
}

// IsOpen reports whether the comm is open.
func (c *Comm) IsOpen() bool {
	c.Lock()
	defer c.Unlock()
	return c.opened && !c.closed
}

// IsClosed reports whether the comm is not open.
func (c *Comm) IsClosed() bool { return !c.IsOpen() }

// Send queues a copy of msg for the mate.
func (c *Comm) Send(msg []byte) (yggmq.Status, error) {
	c.Lock()
	defer c.Unlock()
	if !c.opened || c.closed {
		return yggmq.Closed, nil
	}
	if c.dir != yggmq.Send {
		return yggmq.Failed, fmt.Errorf("%w: %s receives", errors.ErrSendFailed, c.name)
	}
	if c.BlockSends > 0 {
		c.BlockSends--
		return yggmq.WouldBlock, nil
	}
	c.q.Lock()
	c.q.msgs = append(c.q.msgs, append([]byte(nil), msg...))
	c.q.Unlock()
	return yggmq.Ready, nil
}

// Recv takes the next message, waiting up to timeout for one.
func (c *Comm) Recv(timeout time.Duration) ([]byte, yggmq.Status, error) {
	if c.dir != yggmq.Recv {
		return nil, yggmq.Failed, fmt.Errorf("%w for receiving: %s sends", errors.ErrNotOpen, c.name)
	}
	expire := time.Now().Add(timeout)
	for {
		if !c.IsOpen() {
			return nil, yggmq.Closed, nil
		}
		c.q.Lock()
		if len(c.q.msgs) > 0 {
			msg := c.q.msgs[0]
			c.q.msgs = c.q.msgs[1:]
			c.q.Unlock()
			return msg, yggmq.Ready, nil
		}
		c.q.Unlock()
		if !time.Now().Before(expire) {
			return nil, yggmq.WouldBlock, nil
		}
		time.Sleep(time.Millisecond)
	}
}

// NMsg returns the number of messages queued between the pair.
func (c *Comm) NMsg() int {
	if !c.IsOpen() {
		return 0
	}
	c.q.Lock()
	defer c.q.Unlock()
	return len(c.q.msgs)
}

// DrainMessages waits up to timeout for the queue to empty.
func (c *Comm) DrainMessages(timeout time.Duration) bool {
	expire := time.Now().Add(timeout)
	for c.NMsg() > 0 {
		if !time.Now().Before(expire) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}

// Collect receives messages until count have arrived or timeout expires.
func Collect(c yggmq.Comm, count int, timeout time.Duration) []string {
	var got []string
	expire := time.Now().Add(timeout)
	for len(got) < count && time.Now().Before(expire) {
		msg, st, _ := c.Recv(10 * time.Millisecond)
		if st == yggmq.Ready {
			got = append(got, string(msg))
		}
	}
	return got
}

// Returning wraps a Comm that already exists as a constructor.
func Returning(c yggmq.Comm) yggmq.NewCommFunc {
	return func() (yggmq.Comm, error) { return c, nil }
}

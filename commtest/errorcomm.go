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

package commtest

import (
	"sync/atomic"
	"time"

	"github.com/yggmq/yggmq"
)

// Injected is the error returned by the failures of ErrorComm.
const Injected = injected("injected failure")

type injected string

func (e injected) Error() string { return string(e) }

// ErrorComm wraps a Comm to inject failures.
type ErrorComm struct {
	yggmq.Comm

	// FailOpen makes Open fail.
	FailOpen bool
	// NeverOpen makes Open succeed without the comm ever reporting open.
	NeverOpen bool
	// FailClose makes Close fail, after closing the wrapped comm.
	FailClose bool
	// FailSend makes Send report Failed.
	FailSend bool
	// FailRecv makes Recv report Failed.
	FailRecv bool

	closes atomic.Int32
}

// Open opens the wrapped comm, unless told to fail.
func (c *ErrorComm) Open() error {
	if c.FailOpen {
		return Injected
	}
	if c.NeverOpen {
		return nil
	}
	return c.Comm.Open()
}

// IsOpen reports false if NeverOpen is set.
func (c *ErrorComm) IsOpen() bool {
	return !c.NeverOpen && c.Comm.IsOpen()
}

// IsClosed is the opposite of IsOpen.
func (c *ErrorComm) IsClosed() bool { return !c.IsOpen() }

// Close closes the wrapped comm.
func (c *ErrorComm) Close() error {
	c.closes.Add(1)
	err := c.Comm.Close()
	if c.FailClose {
		return Injected
	}
	return err
}

// Closes returns the number of times Close was called.
func (c *ErrorComm) Closes() int { return int(c.closes.Load()) }

// Send sends through the wrapped comm, unless told to fail.
func (c *ErrorComm) Send(msg []byte) (yggmq.Status, error) {
	if c.FailSend {
		return yggmq.Failed, Injected
	}
	return c.Comm.Send(msg)
}

// Recv receives from the wrapped comm, unless told to fail.
func (c *ErrorComm) Recv(timeout time.Duration) ([]byte, yggmq.Status, error) {
	if c.FailRecv {
		return nil, yggmq.Failed, Injected
	}
	return c.Comm.Recv(timeout)
}

// Failing returns a constructor that always fails.
func Failing() yggmq.NewCommFunc {
	return func() (yggmq.Comm, error) { return nil, Injected }
}

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

// Package yggmq moves raw byte messages reliably between named endpoints
// of independently running model processes.  A communicator (Comm) is a
// logical send or receive endpoint backed by a concrete transport socket;
// the sockcomm package provides the socket backed implementation, with an
// application level reply handshake confirming every delivery.  The driver
// package forwards messages from one Comm to another.
package yggmq

import (
	"bytes"
	"time"
)

// EOF is the reserved payload that marks the end of a message stream.
// It is recognized by drivers and by every Comm implementation.
var EOF = []byte("EOF!!!")

// IsEOF reports whether msg is the end-of-stream sentinel.
func IsEOF(msg []byte) bool {
	return bytes.Equal(msg, EOF)
}

// Status is the outcome of a single Send or Recv attempt.
type Status uint8

const (
	// Ready means the message was sent, or a message was received.
	Ready Status = iota

	// WouldBlock means that the operation could not complete without
	// waiting.  On Recv it means no message is ready yet; on Send that
	// the peer cannot accept the message yet.  The operation may be
	// retried.
	WouldBlock

	// Closed means the Comm is not open.
	Closed

	// Failed means a transport or protocol failure.  An error accompanies
	// this status.
	Failed
)

func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case WouldBlock:
		return "would-block"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Direction is the direction of message flow through a Comm.
type Direction uint8

const (
	// Send comms only send messages.
	Send Direction = iota
	// Recv comms only receive messages.
	Recv
)

func (d Direction) String() string {
	if d == Recv {
		return "recv"
	}
	return "send"
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Recv {
		return Send
	}
	return Recv
}

// Comm is the capability every communicator offers.  Drivers depend only
// on this interface, never on a concrete transport.
type Comm interface {
	// Name returns the logical name of the comm.  Process supervisors
	// export the address under this name to spawned models.
	Name() string

	// Address returns the resolved address of the comm.
	Address() string

	// Direction returns whether this comm sends or receives.
	Direction() Direction

	// Open opens the comm.  Opening an open comm is a no-op.
	Open() error

	// Close closes the comm.  Closing a closed comm is a no-op, and
	// Close is safe to call from several goroutines at once.
	Close() error

	// IsOpen reports whether the comm is open.
	IsOpen() bool

	// IsClosed reports whether the comm is closed.
	IsClosed() bool

	// Send tries once to send msg without blocking.
	Send(msg []byte) (Status, error)

	// Recv waits up to timeout for a message.  A zero timeout polls.
	Recv(timeout time.Duration) ([]byte, Status, error)

	// NMsg returns the number of messages waiting: for a receiving comm
	// the messages ready to be read, for a sending comm the messages not
	// yet confirmed by the receiver.
	NMsg() int

	// DrainMessages waits up to timeout for NMsg to reach zero, and
	// reports whether it did.
	DrainMessages(timeout time.Duration) bool
}

// NewCommFunc creates a Comm.  Drivers create their comms through these so
// that construction failures can be cleaned up.
type NewCommFunc func() (Comm, error)

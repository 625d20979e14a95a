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

package driver

import (
	"time"

	"go.uber.org/zap"

	"github.com/yggmq/yggmq"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultTimeout   = 10 * time.Second
	DefaultSleepTime = 10 * time.Millisecond
)

// Role is the place of a driver at a model boundary.
type Role uint8

const (
	// RoleNone drivers connect two comms that belong to no model.
	RoleNone Role = iota
	// RoleInput drivers feed a model.
	RoleInput
	// RoleOutput drivers carry the output of a model.
	RoleOutput
)

func (r Role) String() string {
	switch r {
	case RoleInput:
		return "input"
	case RoleOutput:
		return "output"
	}
	return "none"
}

// State is the last action taken by a driver.
type State string

// Driver states.
const (
	StateStarted    State = "started"
	StateOpening    State = "open pending"
	StateReceiving  State = "receiving"
	StateWaiting    State = "waiting"
	StateReceived   State = "received"
	StateProcessing State = "processing"
	StateProcessed  State = "processed"
	StateSending    State = "sending"
	StateSent       State = "sent"
	StateEOF        State = "eof"
	StateError      State = "error"
	StateDraining   State = "draining"
	StateAfterLoop  State = "after loop"
	StateClosed     State = "closed"
)

// Translator transforms a message before it is forwarded.  Returning an
// empty message skips it; returning an error stops the driver.
type Translator func(msg []byte) ([]byte, error)

// Config describes a Driver.
type Config struct {
	// Name names the driver in logs, metrics and status lines.
	Name string

	// NewInput and NewOutput create the receiving and the sending comm.
	NewInput  yggmq.NewCommFunc
	NewOutput yggmq.NewCommFunc

	// Translator, if set, is applied to every message.
	Translator Translator

	// Role decides how the driver reacts to the exit of its model, and
	// whether it sends EOF when its loop ends.
	Role Role

	// SingleUse drivers stop after forwarding one message.
	SingleUse bool

	// Timeout bounds every wait of the driver.  Default 10s.
	Timeout time.Duration

	// TimeoutSend1st bounds the retries of the first send, which may be
	// made before any receiver connected.  Defaults to Timeout.
	TimeoutSend1st time.Duration

	// SleepTime is the pause between polls.  Default 10ms.
	SleepTime time.Duration

	// Metrics, if set, counts the messages of the driver.
	Metrics *Metrics

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

func (cfg *Config) defaults() {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TimeoutSend1st <= 0 {
		cfg.TimeoutSend1st = cfg.Timeout
	}
	if cfg.SleepTime <= 0 {
		cfg.SleepTime = DefaultSleepTime
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
}

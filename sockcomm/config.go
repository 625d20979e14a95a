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

package sockcomm

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yggmq/yggmq"
	"github.com/yggmq/yggmq/address"
	"github.com/yggmq/yggmq/registry"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultSleepTime    = 10 * time.Millisecond
	DefaultReplyTimeout = 100 * time.Millisecond
	DefaultRetryTimeout = 2 * DefaultSleepTime
	DefaultLinger       = DefaultReplyTimeout
)

// pollTime bounds every wait for a single socket operation that is meant
// not to block.
const pollTime = time.Millisecond

// Config describes a socket comm.
type Config struct {
	// Name is the logical name of the comm.
	Name string

	// Address is where the comm binds or connects.  If empty, a new
	// address is made from Protocol and Host.  A network address without
	// a port gets a free port when it is bound.
	Address string

	// Protocol and Host are used to make a new address when Address is
	// empty.  See address.New for their defaults.
	Protocol address.Protocol
	Host     string

	// Pattern is the socket type.  Defaults to Pair.
	Pattern Pattern

	// Direction selects the role of PAIR, ROUTER and DEALER sockets.
	// Every other socket type has a fixed direction.
	Direction yggmq.Direction

	// Action forces bind or connect.  By default it is chosen from the
	// socket type and the address.
	Action Action

	// TopicFilter is the topic of a PUB socket and the subscription of a
	// SUB socket.
	TopicFilter []byte

	// DealerIdentity names a receiving DEALER to the ROUTER sending to
	// it.  A ROUTER sends to this identity unless told otherwise.
	// Defaults to a fresh unique identity.
	DealerIdentity string

	// SleepTime is the interval between polls.  Default 10ms.
	SleepTime time.Duration

	// ReplyTimeout is how long a receiver waits for the sender to echo a
	// handshake.  Default 100ms.
	ReplyTimeout time.Duration

	// RetryTimeout is the pause before retrying a bind that failed with
	// the address in use.  Negative disables the retry.  Default 20ms.
	RetryTimeout time.Duration

	// Linger is how long Close waits for outstanding confirmations of
	// sent messages.  Default 100ms.
	Linger time.Duration

	// ManualConfirm disables the background goroutine that performs the
	// reply handshake while the comm is open.  The caller must then call
	// ConfirmSend or ConfirmRecv itself.
	ManualConfirm bool

	// Registry records the sockets of this comm.  Defaults to
	// registry.Default().
	Registry *registry.Registry

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

func (cfg *Config) defaults() {
	if cfg.SleepTime <= 0 {
		cfg.SleepTime = DefaultSleepTime
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = DefaultReplyTimeout
	}
	if cfg.RetryTimeout == 0 {
		cfg.RetryTimeout = DefaultRetryTimeout
	}
	if cfg.Linger <= 0 {
		cfg.Linger = DefaultLinger
	}
	if cfg.DealerIdentity == "" {
		cfg.DealerIdentity = uuid.New().String()
	}
	if cfg.Registry == nil {
		cfg.Registry = registry.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
}

// Mate returns the configuration of the comm at the other end of cfg:
// the complementary socket type and direction at the same address, with
// the same topic filter and dealer identity.  The action is left to its
// default, so that the mate connects to an address cfg bound.
func Mate(cfg Config) Config {
	mate := cfg
	mate.Name = cfg.Name + ".mate"
	mate.Pattern = cfg.Pattern.Mate()
	mate.Direction = cfg.Direction.Opposite()
	mate.Action = ActionDefault
	return mate
}

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
	"fmt"
	"strings"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pair"
	"go.nanomsg.org/mangos/v3/protocol/pub"
	"go.nanomsg.org/mangos/v3/protocol/pull"
	"go.nanomsg.org/mangos/v3/protocol/push"
	"go.nanomsg.org/mangos/v3/protocol/rep"
	"go.nanomsg.org/mangos/v3/protocol/sub"
	"go.nanomsg.org/mangos/v3/protocol/xrep"
	"go.nanomsg.org/mangos/v3/protocol/xreq"

	"github.com/yggmq/yggmq"
	"github.com/yggmq/yggmq/address"
	"github.com/yggmq/yggmq/errors"
)

// Pattern is a socket type.  The nine types form five complementary
// pairs: PUSH/PULL, PUB/SUB, REP/REQ, ROUTER/DEALER and PAIR/PAIR, where
// the first of each pair is the sending type.
type Pattern uint8

// Socket types.  The zero value selects Pair.
const (
	Default Pattern = iota
	Push
	Pull
	Pub
	Sub
	Rep
	Req
	Router
	Dealer
	Pair
)

// Action is what a socket does with its address.
type Action uint8

// Actions.  ActionDefault picks the action from the pattern and address.
const (
	ActionDefault Action = iota
	ActionBind
	ActionConnect
)

func (a Action) String() string {
	switch a {
	case ActionBind:
		return "bind"
	case ActionConnect:
		return "connect"
	}
	return "default"
}

type patternInfo struct {
	name string
	mate Pattern
	dir  yggmq.Direction

	// localSend and localRecv are the default actions on inproc and ipc
	// addresses, by direction.
	localSend Action
	localRecv Action

	// identified patterns carry a routing envelope per message.
	identified bool
	// filtered patterns carry a topic prefix per message.
	filtered bool
	// exclusive patterns admit a single writer per address.
	exclusive bool
	// either is set for patterns whose role (direction) is configurable.
	either bool

	newSocket func() (mangos.Socket, error)
}

var patterns = [...]patternInfo{
	Push: {
		name: "PUSH", mate: Pull, dir: yggmq.Send,
		localSend: ActionBind, localRecv: ActionBind,
		newSocket: func() (mangos.Socket, error) { return push.NewSocket() },
	},
	Pull: {
		name: "PULL", mate: Push, dir: yggmq.Recv,
		localSend: ActionConnect, localRecv: ActionConnect,
		newSocket: func() (mangos.Socket, error) { return pull.NewSocket() },
	},
	Pub: {
		name: "PUB", mate: Sub, dir: yggmq.Send,
		localSend: ActionBind, localRecv: ActionBind,
		filtered:  true,
		newSocket: func() (mangos.Socket, error) { return pub.NewSocket() },
	},
	Sub: {
		name: "SUB", mate: Pub, dir: yggmq.Recv,
		localSend: ActionConnect, localRecv: ActionConnect,
		filtered:  true,
		newSocket: func() (mangos.Socket, error) { return sub.NewSocket() },
	},
	Rep: {
		name: "REP", mate: Req, dir: yggmq.Send,
		localSend: ActionBind, localRecv: ActionBind,
		newSocket: func() (mangos.Socket, error) { return rep.NewSocket() },
	},
	Req: {
		// A raw socket keeps outstanding requests alive across receive
		// timeouts, so that no reply is dropped.
		name: "REQ", mate: Rep, dir: yggmq.Recv,
		localSend: ActionConnect, localRecv: ActionConnect,
		newSocket: func() (mangos.Socket, error) { return xreq.NewSocket() },
	},
	Router: {
		name: "ROUTER", mate: Dealer, dir: yggmq.Send,
		localSend: ActionBind, localRecv: ActionBind,
		identified: true, either: true,
		newSocket:  func() (mangos.Socket, error) { return xrep.NewSocket() },
	},
	Dealer: {
		name: "DEALER", mate: Router, dir: yggmq.Recv,
		localSend: ActionConnect, localRecv: ActionConnect,
		identified: true, either: true,
		newSocket:  func() (mangos.Socket, error) { return xreq.NewSocket() },
	},
	Pair: {
		name: "PAIR", mate: Pair, dir: yggmq.Send,
		localSend: ActionBind, localRecv: ActionConnect,
		exclusive: true, either: true,
		newSocket: func() (mangos.Socket, error) { return pair.NewSocket() },
	},
}

func (p Pattern) info() (*patternInfo, error) {
	if p == Default {
		p = Pair
	}
	if int(p) >= len(patterns) || patterns[p].name == "" {
		return nil, fmt.Errorf("%w: %d", errors.ErrUnknownSocketType, p)
	}
	return &patterns[p], nil
}

// String returns the conventional upper case name of the socket type.
func (p Pattern) String() string {
	if info, err := p.info(); err == nil {
		return info.name
	}
	return fmt.Sprintf("Pattern(%d)", uint8(p))
}

// Mate returns the complementary socket type.
func (p Pattern) Mate() Pattern {
	if info, err := p.info(); err == nil {
		return info.mate
	}
	return p
}

// Direction returns the direction the socket type moves messages in by
// default.  PAIR, ROUTER and DEALER may be used in either direction.
func (p Pattern) Direction() yggmq.Direction {
	if info, err := p.info(); err == nil {
		return info.dir
	}
	return yggmq.Send
}

// ParsePattern looks a socket type up by name, ignoring case.
func ParsePattern(name string) (Pattern, error) {
	for p := range patterns {
		if patterns[p].name != "" && strings.EqualFold(patterns[p].name, name) {
			return Pattern(p), nil
		}
	}
	return Default, fmt.Errorf("%w: %q", errors.ErrUnknownSocketType, name)
}

// defaultAction picks bind or connect.  Local transports use the table
// entry for the direction; network addresses bind when they have no port
// yet and connect otherwise.
func (info *patternInfo) defaultAction(a address.Address, dir yggmq.Direction) Action {
	switch {
	case a.Protocol.IsLocal():
		if dir == yggmq.Recv {
			return info.localRecv
		}
		return info.localSend
	case a.Port == 0:
		return ActionBind
	}
	return ActionConnect
}

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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/yggmq/yggmq"
	"github.com/yggmq/yggmq/address"
	yerr "github.com/yggmq/yggmq/errors"
)

func TestPatternTable(t *testing.T) {
	pairs := [][2]Pattern{
		{Push, Pull}, {Pub, Sub}, {Rep, Req}, {Router, Dealer}, {Pair, Pair},
	}
	for _, p := range pairs {
		if p[0].Mate() != p[1] || p[1].Mate() != p[0] {
			t.Errorf("%v and %v are not mates", p[0], p[1])
		}
		if p[0].Direction() != yggmq.Send {
			t.Errorf("%v should send", p[0])
		}
	}
	for p := Push; p <= Pair; p++ {
		got, err := ParsePattern(p.String())
		if err != nil || got != p {
			t.Errorf("ParsePattern(%q) = %v, %v", p.String(), got, err)
		}
	}
	if got, err := ParsePattern("dealer"); err != nil || got != Dealer {
		t.Errorf("Case insensitive lookup failed: %v, %v", got, err)
	}
	if _, err := ParsePattern("BUS"); !errors.Is(err, yerr.ErrUnknownSocketType) {
		t.Errorf("Got %v for an unknown type", err)
	}
	if Default.String() != "PAIR" {
		t.Errorf("Default pattern is %v", Default)
	}
}

func TestDefaultAction(t *testing.T) {
	inproc := address.Address{Protocol: address.Inproc, Host: "x"}
	ipc := address.Address{Protocol: address.IPC, Host: "x"}
	noPort := address.Address{Protocol: address.TCP, Host: "127.0.0.1"}
	port := address.Address{Protocol: address.TCP, Host: "127.0.0.1", Port: 5555}

	tests := []struct {
		pattern Pattern
		addr    address.Address
		dir     yggmq.Direction
		action  Action
	}{
		{Push, inproc, yggmq.Send, ActionBind},
		{Pull, inproc, yggmq.Recv, ActionConnect},
		{Pub, ipc, yggmq.Send, ActionBind},
		{Sub, ipc, yggmq.Recv, ActionConnect},
		{Rep, inproc, yggmq.Send, ActionBind},
		{Req, inproc, yggmq.Recv, ActionConnect},
		{Router, inproc, yggmq.Send, ActionBind},
		{Dealer, inproc, yggmq.Recv, ActionConnect},
		{Pair, inproc, yggmq.Send, ActionBind},
		{Pair, inproc, yggmq.Recv, ActionConnect},
		{Pull, noPort, yggmq.Recv, ActionBind},
		{Push, port, yggmq.Send, ActionConnect},
		{Pair, port, yggmq.Send, ActionConnect},
	}
	for _, tt := range tests {
		info, err := tt.pattern.info()
		if err != nil {
			t.Fatalf("No info for %v: %v", tt.pattern, err)
		}
		if got := info.defaultAction(tt.addr, tt.dir); got != tt.action {
			t.Errorf("%v %v on %v: got %v, expected %v",
				tt.pattern, tt.dir, tt.addr, got, tt.action)
		}
	}
}

func TestMate(t *testing.T) {
	cfg := Config{
		Name:           "out",
		Address:        "inproc://abc",
		Pattern:        Router,
		Direction:      yggmq.Send,
		Action:         ActionBind,
		DealerIdentity: "d1",
		TopicFilter:    []byte("t"),
	}
	m := Mate(cfg)
	if m.Pattern != Dealer || m.Direction != yggmq.Recv {
		t.Errorf("Got mate %v %v", m.Pattern, m.Direction)
	}
	if m.Address != cfg.Address || m.DealerIdentity != "d1" || string(m.TopicFilter) != "t" {
		t.Errorf("Mate lost settings: %+v", m)
	}
	if m.Action != ActionDefault {
		t.Errorf("Mate action should be default, got %v", m.Action)
	}
}

func TestTransportAddr(t *testing.T) {
	if got, want := transportAddr("ipc://abc"), "ipc://"+filepath.Join(os.TempDir(), "abc"); got != want {
		t.Errorf("Got %q, expected %q", got, want)
	}
	for _, addr := range []string{"ipc:///var/run/x", "tcp://127.0.0.1:5555", "inproc://abc"} {
		if got := transportAddr(addr); got != addr {
			t.Errorf("Got %q for %q", got, addr)
		}
	}
}

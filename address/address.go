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

// Package address parses and formats transport addresses of the form
// "<protocol>://<host>[:<port>]" and binds sockets to them, allocating a
// random port when none is given.
package address

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yggmq/yggmq/errors"
)

// Protocol is a transport protocol name.
type Protocol string

// Recognized protocols.
const (
	TCP    Protocol = "tcp"
	UDP    Protocol = "udp"
	IPC    Protocol = "ipc"
	Inproc Protocol = "inproc"
	PGM    Protocol = "pgm"
	EPGM   Protocol = "epgm"
)

// DefaultProtocol is used for new addresses when no protocol is named.
const DefaultProtocol = TCP

const schemeSep = "://"

// Valid reports whether p is a recognized protocol.
func (p Protocol) Valid() bool {
	switch p {
	case TCP, UDP, IPC, Inproc, PGM, EPGM:
		return true
	}
	return false
}

// IsLocal reports whether p is a process or host local transport.  Local
// addresses carry an opaque host token and no port.
func (p Protocol) IsLocal() bool {
	return p == IPC || p == Inproc
}

// Address is a parsed transport address.  Port is zero when the address
// does not carry a port.
type Address struct {
	Protocol Protocol
	Host     string
	Port     int
}

// HasPort reports whether an address can be dialed as is, that is whether
// it is local or names an explicit port.
func (a Address) HasPort() bool {
	return a.Protocol.IsLocal() || a.Port > 0
}

// PortString returns the port as text.  For local transports, which have
// no port, the protocol name is returned in its place; for addresses
// without a port the empty string is returned.
func (a Address) PortString() string {
	switch {
	case a.Protocol.IsLocal():
		return string(a.Protocol)
	case a.Port > 0:
		return strconv.Itoa(a.Port)
	}
	return ""
}

func (a Address) String() string {
	s, err := Format(a.Protocol, a.Host, a.Port)
	if err != nil {
		return string(a.Protocol) + schemeSep + a.Host
	}
	return s
}

// Format assembles an address from its parts.  A host of "localhost" is
// replaced with the loopback address.  The port is ignored for local
// transports and is only appended when positive.
func Format(p Protocol, host string, port int) (string, error) {
	if host == "localhost" {
		host = "127.0.0.1"
	}
	if p.IsLocal() {
		return string(p) + schemeSep + host, nil
	}
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", errors.ErrInvalidProtocol, p)
	}
	s := string(p) + schemeSep + host
	if port > 0 {
		s += ":" + strconv.Itoa(port)
	}
	return s, nil
}

// Parse splits an address into its parts.
func Parse(s string) (Address, error) {
	idx := strings.Index(s, schemeSep)
	if idx < 0 {
		return Address{}, fmt.Errorf("%w: %q must contain %q",
			errors.ErrMalformedAddress, s, schemeSep)
	}
	a := Address{Protocol: Protocol(s[:idx])}
	if !a.Protocol.Valid() {
		return Address{}, fmt.Errorf("%w: %q", errors.ErrInvalidProtocol,
			a.Protocol)
	}
	rest := s[idx+len(schemeSep):]
	if a.Protocol.IsLocal() {
		a.Host = rest
		return a, nil
	}
	colon := strings.LastIndex(rest, ":")
	if colon < 0 {
		a.Host = rest
		return a, nil
	}
	port, err := strconv.Atoi(rest[colon+1:])
	if err != nil || port <= 0 || port > 65535 {
		return Address{}, fmt.Errorf("%w: bad port in %q",
			errors.ErrMalformedAddress, s)
	}
	a.Host = rest[:colon]
	a.Port = port
	return a, nil
}

// New returns the address for a new comm.  An empty protocol selects
// DefaultProtocol.  An empty host becomes a fresh unique token for local
// transports and the loopback address otherwise.
func New(p Protocol, host string, port int) (string, error) {
	if p == "" {
		p = DefaultProtocol
	}
	if host == "" {
		if p.IsLocal() {
			host = uuid.New().String()
		} else {
			host = "localhost"
		}
	}
	return Format(p, host, port)
}

// BindWithRetry binds to addr by calling bind.  When addr is a network
// address without a port, a free port is chosen and appended; the address
// actually bound is returned.  If the transport reports that the address
// is in use and retry is not negative, BindWithRetry sleeps for retry and
// tries exactly once more.  Any other failure is returned immediately.
func BindWithRetry(bind func(string) error, addr string, retry time.Duration) (string, error) {
	a, err := Parse(addr)
	if err != nil {
		return "", err
	}
	target := addr
	if !a.HasPort() {
		port, err := freePort(a.Protocol, a.Host)
		if err != nil {
			return "", err
		}
		target = addr + ":" + strconv.Itoa(port)
	}
	if err = bind(target); err != nil {
		if !IsAddrInUse(err) || retry < 0 {
			return "", err
		}
		time.Sleep(retry)
		return BindWithRetry(bind, addr, -1)
	}
	return target, nil
}

// freePort asks the operating system for an unused port on host.
func freePort(p Protocol, host string) (int, error) {
	if p == UDP {
		pc, err := net.ListenPacket("udp", net.JoinHostPort(host, "0"))
		if err != nil {
			return 0, err
		}
		defer pc.Close()
		return pc.LocalAddr().(*net.UDPAddr).Port, nil
	}
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

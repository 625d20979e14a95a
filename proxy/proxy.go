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

// Package proxy forwards the messages of many clients to one server.
//
// Clients send on DEALER comms to the client side of the proxy, a ROUTER
// socket.  The proxy drops the routing envelope and pushes every message
// on to whichever server comms pull from its server address.  Messages
// keep their reply header, so servers confirm them with each client
// directly.
package proxy

import (
	"sync"
	"sync/atomic"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/push"
	"go.nanomsg.org/mangos/v3/protocol/xrep"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/yggmq/yggmq/address"
	"github.com/yggmq/yggmq/internal/loop"
	"github.com/yggmq/yggmq/registry"
	"github.com/yggmq/yggmq/sockcomm"
)

// Registry kinds of the two proxy sockets.
const (
	ClientKind = "ROUTER_server"
	ServerKind = "PUSH_server"
)

const pollTime = time.Millisecond

// Config describes a Proxy.
type Config struct {
	// ServerAddress is the address servers pull from.  If empty, a new
	// tcp address with a free port is used.
	ServerAddress string

	// ClientProtocol and ClientHost make the client address, which always
	// gets a fresh token or port.  See address.New for the defaults.
	ClientProtocol address.Protocol
	ClientHost     string

	// RetryTimeout is the pause before retrying a bind that failed with
	// the address in use.  Default sockcomm.DefaultRetryTimeout.
	RetryTimeout time.Duration

	// Registry defaults to registry.Default().
	Registry *registry.Registry

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Proxy is a running or stopped forwarder.
type Proxy struct {
	front mangos.Socket
	back  mangos.Socket

	clientAddr string
	serverAddr string

	frontH registry.Handle
	backH  registry.Handle
	reg    *registry.Registry
	log    *zap.Logger
	runner *loop.Runner

	forwarded atomic.Int64

	sync.Mutex
	stopped bool
	lasterr error
}

// New creates a proxy and binds both of its sockets.  Forwarding is not
// started until Start.
func New(cfg Config) (*Proxy, error) {
	if cfg.RetryTimeout == 0 {
		cfg.RetryTimeout = sockcomm.DefaultRetryTimeout
	}
	if cfg.Registry == nil {
		cfg.Registry = registry.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	serverAddr := cfg.ServerAddress
	clientAddr, err := address.New(cfg.ClientProtocol, cfg.ClientHost, 0)
	if err != nil {
		return nil, err
	}
	if serverAddr == "" {
		if serverAddr, err = address.New(address.TCP, "", 0); err != nil {
			return nil, err
		}
	}

	p := &Proxy{reg: cfg.Registry}
	if p.front, err = xrep.NewSocket(); err != nil {
		return nil, err
	}
	if p.back, err = push.NewSocket(); err != nil {
		p.front.Close()
		return nil, err
	}
	p.front.SetOption(mangos.OptionRecvDeadline, pollTime)
	p.back.SetOption(mangos.OptionSendDeadline, pollTime)
	p.frontH = sockcomm.NewHandle(p.front)
	p.backH = sockcomm.NewHandle(p.back)

	if p.serverAddr, _, err = sockcomm.Listen(p.back, serverAddr, cfg.RetryTimeout); err != nil {
		p.frontH.CloseLinger(0)
		p.backH.CloseLinger(0)
		return nil, err
	}
	if p.clientAddr, _, err = sockcomm.Listen(p.front, clientAddr, cfg.RetryTimeout); err != nil {
		p.frontH.CloseLinger(0)
		p.backH.CloseLinger(0)
		return nil, err
	}
	p.reg.Register(ClientKind, p.clientAddr, p.frontH)
	p.reg.Register(ServerKind, p.serverAddr, p.backH)

	p.log = cfg.Logger.Named("proxy").With(
		zap.String("name", "ProxyRouter."+p.serverAddr),
		zap.String("address", p.clientAddr))
	p.runner = loop.New("ProxyRouter."+p.serverAddr, loop.Hooks{
		Body:  p.forward,
		After: p.closeSockets,
	}, p.log)
	p.log.Debug("proxy created", zap.String("server", p.serverAddr))
	return p, nil
}

// ClientAddress is where clients send to.
func (p *Proxy) ClientAddress() string { return p.clientAddr }

// ServerAddress is where servers receive from.
func (p *Proxy) ServerAddress() string { return p.serverAddr }

// Forwarded returns the number of messages forwarded so far.
func (p *Proxy) Forwarded() int64 { return p.forwarded.Load() }

// Start starts forwarding.
func (p *Proxy) Start() error {
	p.runner.Start()
	return nil
}

// Stop stops forwarding and closes both sockets.  A message that is being
// forwarded is sent first.  Stop waits up to timeout for the proxy to
// finish; a negative timeout waits forever.
func (p *Proxy) Stop(timeout time.Duration) error {
	p.runner.SetBreak()
	if !p.runner.Started() {
		p.closeSockets()
		return nil
	}
	p.runner.Wait(timeout)
	return p.LastError()
}

// IsStopped reports whether the proxy has stopped.
func (p *Proxy) IsStopped() bool {
	p.Lock()
	defer p.Unlock()
	return p.stopped
}

// LastError returns the error that stopped forwarding, if any.
func (p *Proxy) LastError() error {
	if err := p.runner.Err(); err != nil {
		return err
	}
	p.Lock()
	defer p.Unlock()
	return p.lasterr
}

// StopChan returns a channel closed when the proxy has fully stopped.
func (p *Proxy) StopChan() <-chan struct{} {
	return p.runner.Done()
}

// forward moves at most one message from the client side to the server
// side.
func (p *Proxy) forward() (bool, error) {
	m, err := p.front.RecvMsg()
	switch err {
	case nil:
	case mangos.ErrRecvTimeout:
		return true, nil
	case mangos.ErrClosed:
		return false, nil
	default:
		return false, err
	}
	if sockcomm.IsControl(m.Body) {
		m.Free()
		return true, nil
	}

	// The envelope only routes replies, and this proxy never replies.
	m.Header = m.Header[:0]
	for {
		switch err = p.back.SendMsg(m); err {
		case nil:
			p.forwarded.Add(1)
			return true, nil
		case mangos.ErrSendTimeout:
			if p.runner.WasBreak() {
				p.log.Debug("message dropped at stop")
				return false, nil
			}
		case mangos.ErrClosed:
			return false, nil
		default:
			return false, err
		}
	}
}

func (p *Proxy) closeSockets() {
	p.Lock()
	defer p.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	err := multierr.Append(
		p.reg.Release(ClientKind, p.clientAddr, p.frontH, 0),
		p.reg.Release(ServerKind, p.serverAddr, p.backH, 0))
	if err != nil {
		p.log.Debug("proxy sockets closed with errors", zap.Error(err))
		p.lasterr = err
	}
	p.log.Debug("proxy stopped", zap.Int64("forwarded", p.Forwarded()))
}

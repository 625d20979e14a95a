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

// Package sockcomm implements yggmq.Comm on top of mangos sockets.
//
// A Comm is bound to one address and moves messages in one direction.
// Sent messages are prefixed with the address of a reply socket owned by
// the sender, and the receiver confirms every message through it; see
// ConfirmSend and ConfirmRecv.  Unless ManualConfirm is set, a goroutine
// does this in the background while the comm is open.
//
// The REQ and REP types are inverted with respect to their usual roles:
// a receiving REQ comm requests each message, and the sending REP comm
// answers every request with the next message.
package sockcomm

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	// Register the inproc, ipc and tcp transports.
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/yggmq/yggmq"
	"github.com/yggmq/yggmq/address"
	"github.com/yggmq/yggmq/errors"
	"github.com/yggmq/yggmq/registry"
)

// Comm is a communicator backed by a mangos socket.
type Comm struct {
	sync.Mutex // guards the socket and the fields below

	cfg     Config
	pattern Pattern
	pat     *patternInfo
	name    string
	addr    string
	dir     yggmq.Direction
	action  Action
	sock    mangos.Socket
	h       *handle
	reg     *registry.Registry
	log     *zap.Logger

	listener   mangos.Listener
	bound      bool
	connected  bool
	registered bool
	opened     bool
	closed     bool
	open       atomic.Bool

	pending   []*mangos.Message
	routes    map[string][]byte
	announced bool
	credit    bool
	request   bool
	reqID     uint32

	hs         handshake
	stop       chan struct{}
	confirmers sync.WaitGroup
}

// New creates a comm, and binds it right away if it binds, so that its
// address is final when New returns.
func New(cfg Config) (*Comm, error) {
	cfg.defaults()
	pattern := cfg.Pattern
	if pattern == Default {
		pattern = Pair
	}
	info, err := pattern.info()
	if err != nil {
		return nil, err
	}
	addr := cfg.Address
	if addr == "" {
		if addr, err = address.New(cfg.Protocol, cfg.Host, 0); err != nil {
			return nil, err
		}
	}
	a, err := address.Parse(addr)
	if err != nil {
		return nil, err
	}
	dir := info.dir
	if info.either {
		dir = cfg.Direction
	}
	action := cfg.Action
	if action == ActionDefault {
		action = info.defaultAction(a, dir)
	}

	sock, err := info.newSocket()
	if err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("%s.%s", info.name, dir)
	}
	c := &Comm{
		cfg:     cfg,
		pattern: pattern,
		pat:     info,
		name:    name,
		addr:    addr,
		dir:     dir,
		action:  action,
		sock:    sock,
		reg:     cfg.Registry,
		routes:  make(map[string][]byte),
		reqID:   uint32(time.Now().UnixNano()),
		log: cfg.Logger.Named("sockcomm").With(
			zap.String("name", name), zap.Stringer("pattern", pattern),
			zap.Stringer("direction", dir)),
	}
	c.hs.init()
	var flush func() bool
	if dir == yggmq.Send {
		flush = c.flushConfirmations
	}
	c.h = newHandle(sock, flush, cfg.SleepTime)

	if err = c.Bind(); err != nil {
		c.h.CloseLinger(0)
		return nil, err
	}
	c.log = c.log.With(zap.String("address", c.addr))
	c.log.Debug("comm created", zap.Stringer("action", action))
	return c, nil
}

// Name returns the logical name of the comm.
func (c *Comm) Name() string { return c.name }

// Address returns the resolved address of the comm.
func (c *Comm) Address() string {
	c.Lock()
	defer c.Unlock()
	return c.addr
}

// Direction returns whether the comm sends or receives.
func (c *Comm) Direction() yggmq.Direction { return c.dir }

// Pattern returns the socket type.
func (c *Comm) Pattern() Pattern { return c.pattern }

// Action returns whether the comm binds or connects.
func (c *Comm) Action() Action { return c.action }

// Config returns the configuration the comm was made with, with its
// address resolved.
func (c *Comm) Config() Config {
	c.Lock()
	defer c.Unlock()
	cfg := c.cfg
	cfg.Name = c.name
	cfg.Address = c.addr
	cfg.Pattern = c.pattern
	cfg.Direction = c.dir
	return cfg
}

// MateConfig returns the configuration of a comm at the other end of c.
func (c *Comm) MateConfig() Config {
	return Mate(c.Config())
}

// transportAddr maps an address to the form the mangos transports want.
// IPC addresses with a relative host token live in the temporary
// directory.
func transportAddr(addr string) string {
	a, err := address.Parse(addr)
	if err != nil || a.Protocol != address.IPC || filepath.IsAbs(a.Host) {
		return addr
	}
	return string(address.IPC) + "://" + filepath.Join(os.TempDir(), a.Host)
}

func listen(sock mangos.Socket, addr string) (mangos.Listener, error) {
	l, err := sock.NewListener(transportAddr(addr), nil)
	if err != nil {
		return nil, err
	}
	if err = l.Listen(); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// Listen binds sock to addr, choosing a free port if addr is a network
// address without one, and retrying once after retry if the address is in
// use.  It returns the address bound and its listener.
func Listen(sock mangos.Socket, addr string, retry time.Duration) (string, mangos.Listener, error) {
	var l mangos.Listener
	bound, err := address.BindWithRetry(func(a string) error {
		var err error
		l, err = listen(sock, a)
		return err
	}, addr, retry)
	if err != nil {
		return "", nil, err
	}
	return bound, l, nil
}

// Bind binds the socket, if its action is bind or its address still
// lacks a port.  A comm that connects releases the bound address again,
// keeping only the port it claimed.
func (c *Comm) Bind() error {
	c.Lock()
	defer c.Unlock()
	return c.bindLocked()
}

func (c *Comm) bindLocked() error {
	if c.opened || c.bound || c.connected {
		return nil
	}
	a, err := address.Parse(c.addr)
	if err != nil {
		return err
	}
	if c.action != ActionBind && a.HasPort() {
		return nil
	}
	addr, l, err := Listen(c.sock, c.addr, c.cfg.RetryTimeout)
	if err != nil {
		if c.pat.exclusive && address.IsAddrInUse(err) {
			return fmt.Errorf("%w: there is already a %s socket sending to %s, "+
				"maybe you meant to create a recv %s",
				errors.ErrAddressConflict, c.pat.name, c.addr, c.pat.name)
		}
		return fmt.Errorf("bind %s: %w", c.addr, err)
	}
	c.addr = addr
	c.listener = l
	c.bound = true
	if c.action == ActionConnect {
		c.unbindLocked()
		return nil
	}
	c.reg.Register(c.pat.name, c.addr, c.h)
	c.registered = true
	return nil
}

// Connect dials the address of the comm.  The dial is asynchronous, so
// the peer need not be listening yet.
func (c *Comm) Connect() error {
	c.Lock()
	defer c.Unlock()
	return c.connectLocked()
}

func (c *Comm) connectLocked() error {
	if c.bound || c.connected {
		return nil
	}
	err := c.sock.DialOptions(transportAddr(c.addr), map[string]interface{}{
		mangos.OptionDialAsynch: true,
	})
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.addr, err)
	}
	c.connected = true
	c.reg.Register(c.pat.name, c.addr, c.h)
	c.registered = true
	return nil
}

// Unbind stops listening on the address of the comm.  If the socket was
// registered, it is released, which closes it.
func (c *Comm) Unbind() {
	c.Lock()
	defer c.Unlock()
	c.unbindLocked()
}

func (c *Comm) unbindLocked() {
	if c.listener != nil {
		c.listener.Close()
		c.listener = nil
	}
	c.bound = false
	if c.registered {
		c.reg.Release(c.pat.name, c.addr, c.h, 0)
		c.registered = false
	}
}

// Open makes the comm ready to send or receive.
func (c *Comm) Open() error {
	c.Lock()
	defer c.Unlock()
	if c.closed {
		return fmt.Errorf("%w: %s", errors.ErrClosed, c.name)
	}
	if c.opened {
		return nil
	}
	if c.pattern == Sub {
		filter := c.cfg.TopicFilter
		if filter == nil {
			filter = []byte{}
		}
		if err := c.sock.SetOption(mangos.OptionSubscribe, filter); err != nil {
			return err
		}
	}
	if err := c.bindLocked(); err != nil {
		return err
	}
	if c.action == ActionConnect {
		c.unbindLocked()
		if err := c.connectLocked(); err != nil {
			return err
		}
	}
	if c.pattern == Dealer && c.dir == yggmq.Recv {
		c.announceLocked()
	}
	c.opened = true
	c.open.Store(true)
	if !c.cfg.ManualConfirm {
		c.stop = make(chan struct{})
		c.confirmers.Add(1)
		go c.confirmLoop(c.stop)
	}
	c.log.Debug("comm opened")
	return nil
}

// IsOpen reports whether the comm is open.
func (c *Comm) IsOpen() bool {
	return c.open.Load() && !c.h.Closed()
}

// IsClosed reports whether the comm is not open.
func (c *Comm) IsClosed() bool {
	return !c.IsOpen()
}

// statusOf maps a mangos error onto a status.
func statusOf(err error) yggmq.Status {
	switch err {
	case nil:
		return yggmq.Ready
	case mangos.ErrRecvTimeout, mangos.ErrSendTimeout:
		return yggmq.WouldBlock
	case mangos.ErrClosed:
		return yggmq.Closed
	}
	return yggmq.Failed
}

func (c *Comm) sendLocked(m *mangos.Message) error {
	c.sock.SetOption(mangos.OptionSendDeadline, pollTime)
	return c.sock.SendMsg(m)
}

func (c *Comm) nextRequestID() []byte {
	c.reqID++
	id := make([]byte, 4)
	binary.BigEndian.PutUint32(id, c.reqID|0x80000000)
	return id
}

// announceLocked tells the router at the other end the identity of a
// receiving dealer.
func (c *Comm) announceLocked() {
	m := mangos.NewMessage(len(identTag) + len(c.cfg.DealerIdentity))
	m.Header = append(m.Header, c.nextRequestID()...)
	m.Body = append(m.Body, identTag...)
	m.Body = append(m.Body, c.cfg.DealerIdentity...)
	if err := c.sendLocked(m); err != nil {
		c.log.Debug("identity not announced yet", zap.Error(err))
		return
	}
	c.announced = true
}

// Send sends msg.  See SendWith.
func (c *Comm) Send(msg []byte) (yggmq.Status, error) {
	return c.SendWith(msg, nil, "")
}

// SendWith sends msg without blocking.  A PUB comm publishes it under
// topic, or under its topic filter if topic is nil.  A ROUTER comm sends
// it to the dealer with the given identity, or to its configured dealer
// identity if identity is empty; until that dealer has announced itself,
// WouldBlock is returned along with ErrUnknownIdentity.
func (c *Comm) SendWith(msg, topic []byte, identity string) (yggmq.Status, error) {
	c.Lock()
	defer c.Unlock()
	if !c.IsOpen() {
		return yggmq.Closed, nil
	}
	if c.dir != yggmq.Send {
		return yggmq.Failed, fmt.Errorf("%w: %s is a receiving comm",
			errors.ErrSendFailed, c.name)
	}
	reply, err := c.replyAddress()
	if err != nil {
		return yggmq.Failed, fmt.Errorf("%w: %v", errors.ErrSendFailed, err)
	}
	body := wrapHeader(reply, msg)
	if c.pattern == Pub {
		if topic == nil {
			topic = c.cfg.TopicFilter
		}
		body = wrapTopic(topic, body)
	}

	m := mangos.NewMessage(len(body))
	switch c.pattern {
	case Rep:
		if st, err := c.awaitRequestLocked(); st != yggmq.Ready {
			return st, err
		}
	case Router:
		env, ok := c.routeLocked(identity)
		if !ok {
			return yggmq.WouldBlock, fmt.Errorf("%w: %q", errors.ErrUnknownIdentity, identity)
		}
		m.Header = append(m.Header, env...)
	case Dealer:
		m.Header = append(m.Header, c.nextRequestID()...)
	}
	m.Body = append(m.Body, body...)

	// Counted first, so that a fast receiver never finds the message
	// unaccounted for.
	c.hs.Lock()
	c.hs.nSent++
	c.hs.Unlock()
	if err := c.sendLocked(m); err != nil {
		c.hs.Lock()
		if c.hs.nSent > c.hs.nConfirmedSent {
			c.hs.nSent--
		}
		c.hs.Unlock()
		st := statusOf(err)
		if st == yggmq.Failed {
			return st, fmt.Errorf("%w: %v", errors.ErrSendFailed, err)
		}
		return st, nil
	}
	c.request = false
	return yggmq.Ready, nil
}

// awaitRequestLocked makes sure a REP comm holds a request to answer.
func (c *Comm) awaitRequestLocked() (yggmq.Status, error) {
	for !c.request {
		c.sock.SetOption(mangos.OptionRecvDeadline, pollTime)
		m, err := c.sock.RecvMsg()
		if err != nil {
			return statusOf(err), nil
		}
		if string(m.Body) != pullCredit {
			c.log.Debug("unexpected request ignored", zap.ByteString("request", m.Body))
			continue
		}
		c.request = true
	}
	return yggmq.Ready, nil
}

// routeLocked returns the routing envelope of a dealer, reading pending
// announcements if it is not known yet.
func (c *Comm) routeLocked(identity string) ([]byte, bool) {
	if identity == "" {
		identity = c.cfg.DealerIdentity
	}
	if env, ok := c.routes[identity]; ok {
		return env, true
	}
	for {
		c.sock.SetOption(mangos.OptionRecvDeadline, pollTime)
		m, err := c.sock.RecvMsg()
		if err != nil {
			break
		}
		if !c.controlLocked(m) {
			c.log.Debug("message to sending router dropped")
		}
	}
	env, ok := c.routes[identity]
	return env, ok
}

// IsControl reports whether a frame body is an announcement a receiving
// DEALER sends to its ROUTER, rather than a message.
func IsControl(body []byte) bool {
	return len(body) >= len(identTag) && string(body[:len(identTag)]) == identTag
}

// controlLocked consumes announcement frames, and reports whether m was
// one.
func (c *Comm) controlLocked(m *mangos.Message) bool {
	if !c.pat.identified || len(m.Header) < 4 {
		return false
	}
	if !IsControl(m.Body) {
		return false
	}
	if c.pattern == Router {
		identity := string(m.Body[len(identTag):])
		c.routes[identity] = append([]byte(nil), m.Header...)
		c.log.Debug("dealer announced", zap.String("identity", identity))
	}
	return true
}

// recvLocked receives one raw frame, waiting up to d.
func (c *Comm) recvLocked(d time.Duration) (*mangos.Message, error) {
	if d < pollTime {
		d = pollTime
	}
	switch {
	case c.pattern == Req && !c.credit:
		m := mangos.NewMessage(len(pullCredit))
		m.Header = append(m.Header, c.nextRequestID()...)
		m.Body = append(m.Body, pullCredit...)
		if err := c.sendLocked(m); err != nil {
			return nil, err
		}
		c.credit = true
	case c.pattern == Dealer && c.dir == yggmq.Recv && !c.announced:
		c.announceLocked()
	}
	c.sock.SetOption(mangos.OptionRecvDeadline, d)
	m, err := c.sock.RecvMsg()
	if err != nil {
		return nil, err
	}
	if c.pattern == Req {
		c.credit = false
	}
	return m, nil
}

// pollLocked returns the next data frame, waiting up to d for one.
func (c *Comm) pollLocked(d time.Duration) (*mangos.Message, error) {
	if len(c.pending) > 0 {
		m := c.pending[0]
		c.pending = c.pending[1:]
		return m, nil
	}
	expire := time.Now().Add(d)
	for {
		m, err := c.recvLocked(time.Until(expire))
		if err != nil {
			return nil, err
		}
		if !c.controlLocked(m) {
			return m, nil
		}
		if !time.Now().Before(expire) {
			return nil, mangos.ErrRecvTimeout
		}
	}
}

// Recv waits up to timeout for a message.  A timeout below a millisecond
// polls once.
func (c *Comm) Recv(timeout time.Duration) ([]byte, yggmq.Status, error) {
	c.Lock()
	defer c.Unlock()
	if !c.IsOpen() {
		return nil, yggmq.Closed, nil
	}
	if c.dir != yggmq.Recv {
		return nil, yggmq.Failed, fmt.Errorf("%w for receiving: %s is a sending comm",
			errors.ErrNotOpen, c.name)
	}
	m, err := c.pollLocked(timeout)
	if err != nil {
		st := statusOf(err)
		if st == yggmq.Failed {
			return nil, st, err
		}
		return nil, st, nil
	}
	msg, err := c.unwrapLocked(m)
	if err != nil {
		return nil, yggmq.Failed, err
	}
	return msg, yggmq.Ready, nil
}

// unwrapLocked strips the routing, topic and reply information from a
// received frame, and counts it for the handshake.
func (c *Comm) unwrapLocked(m *mangos.Message) ([]byte, error) {
	body := m.Body
	if c.pattern == Router && len(m.Header) >= 4 {
		c.routes[hex.EncodeToString(m.Header[:4])] = append([]byte(nil), m.Header...)
	}
	if c.pattern == Sub {
		topic, rest, ok := unwrapTopic(body)
		if !ok || string(topic) != string(c.cfg.TopicFilter) {
			return nil, fmt.Errorf("%w: got %q, subscribed to %q",
				errors.ErrTopicMismatch, topic, c.cfg.TopicFilter)
		}
		body = rest
	}
	peer, msg, ok := unwrapHeader(body)
	if !ok {
		return nil, fmt.Errorf("%w: message received by %s",
			errors.ErrMissingReplyAddress, c.name)
	}
	if err := c.countRecv(peer); err != nil {
		return nil, fmt.Errorf("reply socket %s: %w", peer, err)
	}
	return msg, nil
}

// Peers returns the routing keys of the senders a ROUTER comm has
// received from, and the identities of the dealers that announced
// themselves to it.
func (c *Comm) Peers() []string {
	c.Lock()
	defer c.Unlock()
	keys := make([]string, 0, len(c.routes))
	for k := range c.routes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NMsg returns the number of messages ready to be received, or, for a
// sending comm, the number of messages not confirmed yet.
func (c *Comm) NMsg() int {
	if !c.IsOpen() {
		return 0
	}
	if c.dir == yggmq.Send {
		return c.unconfirmedSent()
	}
	c.Lock()
	defer c.Unlock()
	if len(c.pending) == 0 {
		if m, err := c.pollLocked(pollTime); err == nil {
			c.pending = append(c.pending, m)
		}
	}
	return len(c.pending)
}

// DrainMessages waits up to timeout until NMsg reports zero.  A
// receiving comm also waits until every message it received has been
// confirmed with its sender.
func (c *Comm) DrainMessages(timeout time.Duration) bool {
	expire := time.Now().Add(timeout)
	for {
		if c.NMsg() == 0 && (c.dir == yggmq.Send || c.unconfirmedRecv() == 0) {
			return true
		}
		if !time.Now().Before(expire) {
			return false
		}
		time.Sleep(c.cfg.SleepTime)
	}
}

// Close closes the comm, waiting up to the configured linger time for
// outstanding confirmations.
func (c *Comm) Close() error {
	return c.CloseLinger(c.cfg.Linger)
}

// CloseLinger closes the comm.  It first waits up to linger for the
// handshake of every message sent or received to complete.  Closing a
// closed comm does nothing.
func (c *Comm) CloseLinger(linger time.Duration) error {
	c.Lock()
	defer c.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	if linger > 0 {
		flush := c.flushReceipts
		if c.dir == yggmq.Send {
			flush = c.flushConfirmations
		}
		expire := time.Now().Add(linger)
		done := flush()
		for !done && time.Now().Before(expire) {
			time.Sleep(pollTime)
			done = flush()
		}
		if !done {
			c.log.Debug("closing with unconfirmed messages",
				zap.Int("sent", c.unconfirmedSent()),
				zap.Int("received", c.unconfirmedRecv()))
		}
	}
	var err error
	if c.registered {
		err = c.reg.Release(c.pat.name, c.addr, c.h, 0)
		c.registered = false
	} else {
		err = c.h.CloseLinger(0)
	}

	c.open.Store(false)
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.confirmers.Wait()

	err = multierr.Append(err, c.closeReplySockets())
	c.listener = nil
	c.opened = false
	c.bound = false
	c.connected = false
	c.pending = nil
	if err != nil {
		c.log.Debug("comm closed with errors", zap.Error(err))
		return err
	}
	c.log.Debug("comm closed")
	return nil
}

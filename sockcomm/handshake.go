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
	"bytes"
	"sync"
	"time"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/rep"
	"go.nanomsg.org/mangos/v3/protocol/req"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/yggmq/yggmq"
	"github.com/yggmq/yggmq/address"
)

// Every message sent by a sending comm carries the address of a reply
// socket owned by the sender.  The receiver connects a request socket to
// that address and confirms each message by sending a token, which the
// sender echoes back.  This makes delivery observable at both ends.
const (
	replyTag    = "YGG_REPLY"
	topicMarker = "_YGGFILTER_"
	identTag    = ":YGG_IDENT:"
	pullCredit  = ":YGG_PULL:"

	replyProtocol = address.TCP
	replyHost     = "127.0.0.1"
)

var (
	replyMark      = []byte(":" + replyTag + ":")
	handshakeToken = []byte(replyTag)
)

func wrapHeader(replyAddr string, msg []byte) []byte {
	b := make([]byte, 0, 2*len(replyMark)+len(replyAddr)+len(msg))
	b = append(b, replyMark...)
	b = append(b, replyAddr...)
	b = append(b, replyMark...)
	return append(b, msg...)
}

// unwrapHeader splits the reply header from msg.
func unwrapHeader(msg []byte) (string, []byte, bool) {
	if !bytes.HasPrefix(msg, replyMark) {
		return "", msg, false
	}
	rest := msg[len(replyMark):]
	end := bytes.Index(rest, replyMark)
	if end < 0 {
		return "", msg, false
	}
	return string(rest[:end]), rest[end+len(replyMark):], true
}

func wrapTopic(topic, msg []byte) []byte {
	b := make([]byte, 0, len(topic)+len(topicMarker)+len(msg))
	b = append(b, topic...)
	b = append(b, topicMarker...)
	return append(b, msg...)
}

// unwrapTopic splits the topic from msg at the first topic marker.
func unwrapTopic(msg []byte) ([]byte, []byte, bool) {
	idx := bytes.Index(msg, []byte(topicMarker))
	if idx < 0 {
		return nil, msg, false
	}
	return msg[:idx], msg[idx+len(topicMarker):], true
}

// HandshakeStats is a snapshot of the handshake counters of a comm.
// Sending comms count messages sent and confirmed; receiving comms count
// per reply address of the peer that sent them.
type HandshakeStats struct {
	Sent              int
	ConfirmedSent     int
	Received          map[string]int
	ConfirmedReceived map[string]int
}

type handshake struct {
	// confirm serializes handshakes; it is taken before the lock below,
	// never after.
	confirm sync.Mutex

	sync.Mutex
	replyAddr string
	replySend mangos.Socket
	replyRecv map[string]mangos.Socket

	nSent          int
	nConfirmedSent int
	nRecv          map[string]int
	nConfirmedRecv map[string]int
}

func (hs *handshake) init() {
	hs.replyRecv = make(map[string]mangos.Socket)
	hs.nRecv = make(map[string]int)
	hs.nConfirmedRecv = make(map[string]int)
}

// Handshake returns the current handshake counters.
func (c *Comm) Handshake() HandshakeStats {
	hs := &c.hs
	hs.Lock()
	defer hs.Unlock()
	st := HandshakeStats{
		Sent:              hs.nSent,
		ConfirmedSent:     hs.nConfirmedSent,
		Received:          make(map[string]int, len(hs.nRecv)),
		ConfirmedReceived: make(map[string]int, len(hs.nRecv)),
	}
	for k, n := range hs.nRecv {
		st.Received[k] = n
		st.ConfirmedReceived[k] = hs.nConfirmedRecv[k]
	}
	return st
}

// replyAddress returns the address of the reply socket of a sending
// comm, binding it on first use.
func (c *Comm) replyAddress() (string, error) {
	hs := &c.hs
	hs.Lock()
	defer hs.Unlock()
	if hs.replySend != nil {
		return hs.replyAddr, nil
	}
	sock, err := rep.NewSocket()
	if err != nil {
		return "", err
	}
	base, err := address.Format(replyProtocol, replyHost, 0)
	if err != nil {
		sock.Close()
		return "", err
	}
	addr, err := address.BindWithRetry(sock.Listen, base, c.cfg.RetryTimeout)
	if err != nil {
		sock.Close()
		return "", err
	}
	hs.replySend = sock
	hs.replyAddr = addr
	c.log.Debug("reply socket bound", zap.String("reply", addr))
	return addr, nil
}

func (c *Comm) unconfirmedSent() int {
	c.hs.Lock()
	defer c.hs.Unlock()
	return c.hs.nSent - c.hs.nConfirmedSent
}

func (c *Comm) unconfirmedRecv() int {
	c.hs.Lock()
	defer c.hs.Unlock()
	n := 0
	for k, v := range c.hs.nRecv {
		n += v - c.hs.nConfirmedRecv[k]
	}
	return n
}

// countRecv records a message received from the sender owning the reply
// socket at peer, connecting to that socket on first contact.
func (c *Comm) countRecv(peer string) error {
	hs := &c.hs
	hs.Lock()
	defer hs.Unlock()
	if _, ok := hs.replyRecv[peer]; !ok {
		sock, err := req.NewSocket()
		if err != nil {
			return err
		}
		sock.SetOption(mangos.OptionSendDeadline, c.cfg.ReplyTimeout)
		sock.SetOption(mangos.OptionRecvDeadline, c.cfg.ReplyTimeout)
		err = sock.DialOptions(peer, map[string]interface{}{
			mangos.OptionDialAsynch: true,
		})
		if err != nil {
			sock.Close()
			return err
		}
		hs.replyRecv[peer] = sock
		c.log.Debug("reply socket connected", zap.String("reply", peer))
	}
	hs.nRecv[peer]++
	return nil
}

// ConfirmSend performs the sending side of the handshake for one message.
// It reports whether every message sent so far is confirmed.  If blocking
// is false, the counters are advanced without waiting for the receiver;
// delivery is then no longer confirmed.
func (c *Comm) ConfirmSend(blocking bool) bool {
	if !c.IsOpen() {
		return true
	}
	if !blocking {
		hs := &c.hs
		hs.Lock()
		if n := hs.nSent - hs.nConfirmedSent; n > 0 {
			c.log.Warn("advancing send confirmations without handshake",
				zap.Int("unconfirmed", n))
			hs.nConfirmedSent = hs.nSent
		}
		hs.Unlock()
		return true
	}
	if c.unconfirmedSent() == 0 {
		return true
	}
	c.confirmSendOnce()
	return c.unconfirmedSent() == 0
}

// confirmSendOnce answers at most one handshake request waiting on the
// reply socket.  It reports whether a message was confirmed.
func (c *Comm) confirmSendOnce() bool {
	hs := &c.hs
	hs.confirm.Lock()
	defer hs.confirm.Unlock()

	hs.Lock()
	sock := hs.replySend
	hs.Unlock()
	if sock == nil {
		return false
	}

	sock.SetOption(mangos.OptionRecvDeadline, pollTime)
	msg, err := sock.Recv()
	if err != nil {
		if statusOf(err) == yggmq.Failed {
			c.log.Error("reply socket receive failed", zap.Error(err))
		}
		return false
	}
	if yggmq.IsEOF(msg) {
		c.log.Error("EOF received on reply socket")
		return false
	}
	sock.SetOption(mangos.OptionSendDeadline, c.cfg.ReplyTimeout)
	if err = sock.Send(msg); err != nil {
		c.log.Debug("handshake echo failed", zap.Error(err))
		return false
	}

	// Late requests are echoed, but never counted twice.
	hs.Lock()
	defer hs.Unlock()
	if hs.nConfirmedSent < hs.nSent {
		hs.nConfirmedSent++
		return true
	}
	return false
}

// ConfirmRecv performs the receiving side of the handshake, one message
// per peer.  It reports whether every message received so far is
// confirmed.  If blocking is false, the counters are advanced without
// contacting the senders.
func (c *Comm) ConfirmRecv(blocking bool) bool {
	if !c.IsOpen() {
		return true
	}
	if !blocking {
		hs := &c.hs
		hs.Lock()
		for k, n := range hs.nRecv {
			if hs.nConfirmedRecv[k] != n {
				c.log.Warn("advancing receive confirmations without handshake",
					zap.String("reply", k), zap.Int("unconfirmed", n-hs.nConfirmedRecv[k]))
				hs.nConfirmedRecv[k] = n
			}
		}
		hs.Unlock()
		return true
	}
	c.confirmRecvAll()
	return c.unconfirmedRecv() == 0
}

// confirmRecvAll confirms one message with every peer that has messages
// outstanding, and reports whether any was confirmed.
func (c *Comm) confirmRecvAll() bool {
	hs := &c.hs
	hs.confirm.Lock()
	defer hs.confirm.Unlock()

	type peer struct {
		addr string
		sock mangos.Socket
	}
	var peers []peer
	hs.Lock()
	for k, n := range hs.nRecv {
		if hs.nConfirmedRecv[k] < n {
			peers = append(peers, peer{k, hs.replyRecv[k]})
		}
	}
	hs.Unlock()

	progress := false
	for _, p := range peers {
		if c.confirmRecvPeer(p.addr, p.sock) {
			progress = true
		}
	}
	return progress
}

func (c *Comm) confirmRecvPeer(peer string, sock mangos.Socket) bool {
	if sock == nil {
		return false
	}
	log := c.log.With(zap.String("reply", peer))
	if err := sock.Send(handshakeToken); err != nil {
		log.Debug("handshake request failed", zap.Error(err))
		return false
	}
	msg, err := sock.Recv()
	if err != nil {
		log.Debug("handshake reply missing", zap.Error(err))
		return false
	}
	if !bytes.Equal(msg, handshakeToken) {
		log.Error("handshake reply garbled", zap.ByteString("reply", msg))
		return false
	}
	hs := &c.hs
	hs.Lock()
	defer hs.Unlock()
	if hs.nConfirmedRecv[peer] < hs.nRecv[peer] {
		hs.nConfirmedRecv[peer]++
	}
	return true
}

// confirmLoop runs the handshake in the background while the comm is
// open.
func (c *Comm) confirmLoop(stop <-chan struct{}) {
	defer c.confirmers.Done()
	for {
		var progress bool
		if c.dir == yggmq.Send {
			progress = c.confirmSendOnce()
		} else {
			progress = c.confirmRecvAll()
		}
		if progress {
			select {
			case <-stop:
				return
			default:
				continue
			}
		}
		select {
		case <-stop:
			return
		case <-time.After(c.cfg.SleepTime):
		}
	}
}

// flushConfirmations answers handshake requests, and reports whether
// every sent message is confirmed.
func (c *Comm) flushConfirmations() bool {
	if c.unconfirmedSent() == 0 {
		return true
	}
	c.confirmSendOnce()
	return c.unconfirmedSent() == 0
}

// flushReceipts confirms received messages with their senders, and
// reports whether every received message is confirmed.
func (c *Comm) flushReceipts() bool {
	if c.unconfirmedRecv() == 0 {
		return true
	}
	c.confirmRecvAll()
	return c.unconfirmedRecv() == 0
}

func (c *Comm) closeReplySockets() error {
	hs := &c.hs
	hs.confirm.Lock()
	defer hs.confirm.Unlock()
	hs.Lock()
	defer hs.Unlock()

	var err error
	if hs.replySend != nil {
		err = multierr.Append(err, hs.replySend.Close())
		hs.replySend = nil
	}
	for k, sock := range hs.replyRecv {
		err = multierr.Append(err, sock.Close())
		delete(hs.replyRecv, k)
	}
	return err
}

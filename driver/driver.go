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

// Package driver forwards messages from one comm to another.
//
// A Driver owns an input comm, which receives, and an output comm, which
// sends.  Its loop receives each message, translates it if a Translator
// is set, and sends it on, counting what it does.  An EOF message is
// forwarded once, after which the driver stops.
package driver

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/yggmq/yggmq"
	"github.com/yggmq/yggmq/errors"
	"github.com/yggmq/yggmq/internal/loop"
)

// Stats are the counters of a driver.
type Stats struct {
	Received  int
	Processed int
	Sent      int
	Skipped   int
	State     State
}

// Driver forwards messages between two comms.
type Driver struct {
	cfg    Config
	name   string
	icomm  yggmq.Comm
	ocomm  yggmq.Comm
	env    map[string]string
	runner *loop.Runner
	log    *zap.Logger

	sync.Mutex // guards the fields below
	state      State
	nrecv      int
	nproc      int
	nsent      int
	nskip      int
	eofSent    bool
	firstSent  bool
	commClosed bool
	used       bool
	skipAfter  bool
	err        error
}

// New creates the comms of a driver, without opening them.  If the
// output comm cannot be created, the input comm is closed again.
func New(cfg Config) (*Driver, error) {
	cfg.defaults()
	if cfg.NewInput == nil || cfg.NewOutput == nil {
		return nil, fmt.Errorf("driver %s: input and output comms are required", cfg.Name)
	}
	icomm, err := cfg.NewInput()
	if err != nil {
		return nil, fmt.Errorf("driver %s: input comm: %w", cfg.Name, err)
	}
	ocomm, err := cfg.NewOutput()
	if err != nil {
		icomm.Close()
		return nil, fmt.Errorf("driver %s: output comm: %w", cfg.Name, err)
	}
	d := &Driver{
		cfg:   cfg,
		name:  cfg.Name,
		icomm: icomm,
		ocomm: ocomm,
		env: map[string]string{
			icomm.Name(): icomm.Address(),
			ocomm.Name(): ocomm.Address(),
		},
		log:   cfg.Logger.Named("driver").With(zap.String("name", cfg.Name)),
		state: StateStarted,
	}
	d.runner = loop.New(cfg.Name, loop.Hooks{
		Before: d.beforeLoop,
		Body:   d.runLoop,
		After:  d.afterLoop,
	}, cfg.Logger)
	d.log.Debug("driver created",
		zap.Stringer("role", cfg.Role),
		zap.String("input", icomm.Name()),
		zap.String("input_address", icomm.Address()),
		zap.String("output", ocomm.Name()),
		zap.String("output_address", ocomm.Address()))
	return d, nil
}

// Name returns the name of the driver.
func (d *Driver) Name() string { return d.name }

// Input returns the receiving comm.
func (d *Driver) Input() yggmq.Comm { return d.icomm }

// Output returns the sending comm.
func (d *Driver) Output() yggmq.Comm { return d.ocomm }

// Env maps the names of the comms of the driver to their addresses, for
// passing on to model processes.
func (d *Driver) Env() map[string]string {
	env := make(map[string]string, len(d.env))
	for k, v := range d.env {
		env[k] = v
	}
	return env
}

func (d *Driver) setState(s State) {
	d.Lock()
	d.state = s
	d.Unlock()
}

// State returns the last action of the driver.
func (d *Driver) State() State {
	d.Lock()
	defer d.Unlock()
	return d.state
}

// Stats returns the counters of the driver.
func (d *Driver) Stats() Stats {
	d.Lock()
	defer d.Unlock()
	return Stats{
		Received:  d.nrecv,
		Processed: d.nproc,
		Sent:      d.nsent,
		Skipped:   d.nskip,
		State:     d.state,
	}
}

// Err returns the error that stopped the loop, if any.
func (d *Driver) Err() error {
	if err := d.runner.Err(); err != nil {
		return err
	}
	d.Lock()
	defer d.Unlock()
	return d.err
}

// Status returns a one line summary of the driver.
func (d *Driver) Status() string {
	st := d.Stats()
	return fmt.Sprintf("%-50s%-30s%-15s%-15s%-15s%-15s%-15s",
		"driver("+d.name+"): ",
		"last action: "+string(st.State),
		fmt.Sprintf("%d received, ", st.Received),
		fmt.Sprintf("%d processed, ", st.Processed),
		fmt.Sprintf("%d skipped, ", st.Skipped),
		fmt.Sprintf("%d sent, ", st.Sent),
		fmt.Sprintf("%d ready", d.NMsg()))
}

// NMsg returns the number of messages waiting in the input comm.
func (d *Driver) NMsg() int {
	return d.icomm.NMsg()
}

// IsCommOpen reports whether both comms are open.
func (d *Driver) IsCommOpen() bool {
	d.Lock()
	closed := d.commClosed
	d.Unlock()
	return !closed && d.icomm.IsOpen() && d.ocomm.IsOpen()
}

// IsCommClosed reports whether both comms are closed.
func (d *Driver) IsCommClosed() bool {
	return d.icomm.IsClosed() && d.ocomm.IsClosed()
}

// IsValid reports whether the driver can still forward messages.
func (d *Driver) IsValid() bool {
	if d.runner.WasBreak() || !d.IsCommOpen() {
		return false
	}
	d.Lock()
	defer d.Unlock()
	return !(d.cfg.SingleUse && d.used)
}

// OpenComm opens both comms.  If either fails to open, both are closed.
// Once the comms have been closed, OpenComm does nothing.
func (d *Driver) OpenComm() error {
	d.Lock()
	closed := d.commClosed
	d.Unlock()
	if closed {
		d.log.Debug("comms already closed, not opening")
		return nil
	}
	err := d.icomm.Open()
	if err == nil {
		err = d.ocomm.Open()
	}
	if err != nil {
		return multierr.Append(fmt.Errorf("driver %s: open: %w", d.name, err), d.CloseComm())
	}
	return nil
}

// CloseComm closes both comms.  It may be called any number of times,
// from any goroutine.
func (d *Driver) CloseComm() error {
	d.Lock()
	d.commClosed = true
	d.skipAfter = true
	d.Unlock()
	return multierr.Append(d.icomm.Close(), d.ocomm.Close())
}

// Start opens the comms, waits until they report open, and starts the
// loop.
func (d *Driver) Start() error {
	d.setState(StateOpening)
	if err := d.OpenComm(); err != nil {
		return err
	}
	if !d.poll(d.cfg.Timeout, d.IsCommOpen) {
		return fmt.Errorf("%w: %s", errors.ErrConnectionTimeout, d.name)
	}
	d.runner.Start()
	return nil
}

// poll calls f until it reports true or timeout expires.
func (d *Driver) poll(timeout time.Duration, f func() bool) bool {
	expire := time.Now().Add(timeout)
	for !f() {
		if !time.Now().Before(expire) {
			return false
		}
		time.Sleep(d.cfg.SleepTime)
	}
	return true
}

// WaitForRoute waits up to timeout until every message received has been
// sent or skipped.
func (d *Driver) WaitForRoute(timeout time.Duration) bool {
	return d.poll(timeout, func() bool {
		d.Lock()
		defer d.Unlock()
		return d.nrecv == d.nsent+d.nskip
	})
}

// Wait waits up to timeout for the loop to end.  A negative timeout waits
// forever.
func (d *Driver) Wait(timeout time.Duration) bool {
	return d.runner.Wait(timeout)
}

// IsAlive reports whether the loop is running.
func (d *Driver) IsAlive() bool {
	return d.runner.IsAlive()
}

// Stop asks the loop to end, and waits for it up to the driver timeout.
func (d *Driver) Stop() {
	d.runner.SetBreak()
	d.runner.Wait(d.cfg.Timeout)
}

// GracefulStop lets the driver forward what is waiting in its input,
// then closes both comms and stops the loop.  It waits up to timeout for
// each of these steps; a timeout of zero means the driver timeout.
func (d *Driver) GracefulStop(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = d.cfg.Timeout
	}
	d.Lock()
	d.skipAfter = true
	d.Unlock()
	d.log.Debug("graceful stop", zap.String("status", d.Status()))

	var err error
	if !d.icomm.DrainMessages(timeout) {
		err = fmt.Errorf("driver %s: input not drained after %v", d.name, timeout)
	}
	if !d.WaitForRoute(timeout) {
		st := d.Stats()
		err = multierr.Append(err, fmt.Errorf("driver %s: %d received, %d sent, %d skipped",
			d.name, st.Received, st.Sent, st.Skipped))
	}
	d.setState(StateDraining)
	err = multierr.Append(err, d.CloseComm())
	d.Stop()
	d.setState(StateClosed)
	d.log.Debug("graceful stop done", zap.String("status", d.Status()))
	return err
}

// OnModelExit reacts to the exit of the model the driver serves.  An
// input driver closes its output, since nobody reads it anymore; an
// output driver forwards what the model left in its input and closes it.
func (d *Driver) OnModelExit() {
	switch d.cfg.Role {
	case RoleInput:
		d.ocomm.Close()
	case RoleOutput:
		d.icomm.DrainMessages(d.cfg.Timeout)
		d.icomm.Close()
	}
}

// Terminate closes both comms and stops the loop.
func (d *Driver) Terminate() error {
	err := d.CloseComm()
	d.Stop()
	d.setState(StateClosed)
	return err
}

// Cleanup makes sure the comms are closed.
func (d *Driver) Cleanup() error {
	d.runner.SetBreak()
	return d.CloseComm()
}

func (d *Driver) beforeLoop() error {
	if err := d.OpenComm(); err != nil {
		d.CloseComm()
		return err
	}
	// Give peers a chance to connect before the first message.
	time.Sleep(d.cfg.SleepTime)
	d.log.Debug("loop starting", zap.Bool("valid", d.IsValid()))
	return nil
}

func (d *Driver) afterLoop() {
	d.setState(StateAfterLoop)
	d.Lock()
	skip := d.skipAfter
	d.Unlock()
	if skip {
		d.log.Debug("after loop skipped")
		return
	}
	d.icomm.Close()
	if !d.cfg.SingleUse && d.cfg.Role != RoleNone {
		if _, err := d.SendEOF(); err != nil {
			d.log.Error("EOF not sent", zap.Error(err))
		}
	}
}

func (d *Driver) fail(err error) (bool, error) {
	d.Lock()
	d.state = StateError
	if d.err == nil {
		d.err = err
	}
	d.Unlock()
	return false, err
}

// runLoop handles at most one message.
func (d *Driver) runLoop() (bool, error) {
	if !d.IsValid() {
		return false, nil
	}

	d.setState(StateReceiving)
	msg, more, err := d.recvMessage()
	if err != nil {
		return d.fail(err)
	}
	if !more {
		d.log.Debug("no more messages")
		return false, nil
	}
	if len(msg) == 0 {
		d.setState(StateWaiting)
		time.Sleep(d.cfg.SleepTime)
		return true, nil
	}
	d.Lock()
	d.nrecv++
	d.state = StateReceived
	d.Unlock()
	d.cfg.Metrics.recordReceived(d.name)
	d.log.Debug("message received", zap.Int("size", len(msg)))

	d.setState(StateProcessing)
	if d.cfg.Translator != nil {
		if msg, err = d.cfg.Translator(msg); err != nil {
			return d.fail(fmt.Errorf("%w: %v", errors.ErrTranslate, err))
		}
		if len(msg) == 0 {
			d.Lock()
			d.nskip++
			d.Unlock()
			d.cfg.Metrics.recordSkipped(d.name)
			d.log.Debug("message skipped")
			return true, nil
		}
	}
	d.Lock()
	d.nproc++
	d.state = StateProcessed
	d.Unlock()
	d.cfg.Metrics.recordProcessed(d.name)

	d.setState(StateSending)

	if err = d.SendMessage(msg); err != nil {
		return d.fail(err)
	}
	d.Lock()
	d.nsent++
	d.state = StateSent
	d.Unlock()
	d.cfg.Metrics.recordSent(d.name)
	return true, nil
}

// recvMessage polls the input once.  It returns an empty message when
// nothing was ready, and more set to false when the loop should end.
func (d *Driver) recvMessage() (msg []byte, more bool, err error) {
	if d.icomm.IsClosed() {
		return nil, false, nil
	}
	msg, st, err := d.icomm.Recv(0)
	switch st {
	case yggmq.Ready:
		if yggmq.IsEOF(msg) {
			return nil, false, d.onEOF()
		}
		return msg, true, nil
	case yggmq.WouldBlock:
		return nil, true, nil
	case yggmq.Closed:
		return nil, false, nil
	}
	return nil, false, fmt.Errorf("driver %s: receive: %w", d.name, err)
}

// onEOF forwards EOF and closes the input.
func (d *Driver) onEOF() error {
	d.log.Debug("EOF received")
	d.setState(StateEOF)
	_, err := d.SendEOF()
	d.icomm.DrainMessages(d.cfg.Timeout)
	d.icomm.Close()
	return err
}

// SendEOF sends EOF on the output, unless it was sent before.  It
// reports whether it tried.
func (d *Driver) SendEOF() (bool, error) {
	d.Lock()
	if d.eofSent {
		d.Unlock()
		return false, nil
	}
	d.eofSent = true
	d.Unlock()
	return true, d.SendMessage(yggmq.EOF)
}

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
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/yggmq/yggmq"
	"github.com/yggmq/yggmq/errors"
)

// SendMessage sends msg on the output comm.  The first send of a driver
// is retried on any failure for up to TimeoutSend1st, since the receiver
// may not be up yet.  Later sends are retried only while they would block,
// for up to Timeout.
func (d *Driver) SendMessage(msg []byte) error {
	d.Lock()
	first := !d.firstSent
	d.used = true
	d.Unlock()

	var err error
	if first {
		err = d.sendRetry(msg, d.cfg.TimeoutSend1st, true)
	} else {
		err = d.sendRetry(msg, d.cfg.Timeout, false)
	}
	if err == nil && first {
		d.Lock()
		d.firstSent = true
		d.Unlock()
	}
	return err
}

func (d *Driver) sendRetry(msg []byte, timeout time.Duration, first bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	op := func() error {
		st, err := d.ocomm.Send(msg)
		switch st {
		case yggmq.Ready:
			return nil
		case yggmq.Closed:
			return backoff.Permanent(fmt.Errorf("%w: output %s", errors.ErrClosed, d.ocomm.Name()))
		case yggmq.WouldBlock:
			return errWouldBlock
		}
		if err == nil {
			err = fmt.Errorf("status %v", st)
		}
		if first {
			return err
		}
		return backoff.Permanent(fmt.Errorf("%w: %v", errors.ErrSendFailed, err))
	}
	notify := func(err error, wait time.Duration) {
		d.log.Debug("send retry", zap.Bool("first", first), zap.Error(err))
	}
	b := backoff.WithContext(backoff.NewConstantBackOff(d.cfg.SleepTime), ctx)
	err := backoff.RetryNotify(op, b, notify)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || err == errWouldBlock {
		return fmt.Errorf("%w: %s timed out after %v: %v", errors.ErrSendFailed, d.ocomm.Name(), timeout, err)
	}
	return err
}

type sendErr string

func (e sendErr) Error() string { return string(e) }

// errWouldBlock marks a send that may be retried.
const errWouldBlock = sendErr("send would block")

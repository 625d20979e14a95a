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
	"sync/atomic"
	"time"

	"go.nanomsg.org/mangos/v3"

	"github.com/yggmq/yggmq/registry"
)

// handle is the registry entry of a mangos socket.  Closing it closes the
// socket; flush, if set, is called until it reports that nothing is left
// outstanding or the linger time runs out.
type handle struct {
	sock   mangos.Socket
	flush  func() bool
	sleep  time.Duration
	closed atomic.Bool
}

func newHandle(sock mangos.Socket, flush func() bool, sleep time.Duration) *handle {
	return &handle{sock: sock, flush: flush, sleep: sleep}
}

// NewHandle returns a registry handle that closes sock.
func NewHandle(sock mangos.Socket) registry.Handle {
	return newHandle(sock, nil, 0)
}

func (h *handle) CloseLinger(linger time.Duration) error {
	if h.closed.Load() {
		return nil
	}
	if h.flush != nil && linger > 0 {
		expire := time.Now().Add(linger)
		for !h.flush() && time.Now().Before(expire) {
			time.Sleep(h.sleep)
		}
	}
	if h.closed.Swap(true) {
		return nil
	}
	return h.sock.Close()
}

func (h *handle) Closed() bool {
	return h.closed.Load()
}

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

package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

type fakeHandle struct {
	sync.Mutex
	closed int
	linger time.Duration
	err    error
}

func (h *fakeHandle) CloseLinger(linger time.Duration) error {
	h.Lock()
	defer h.Unlock()
	h.closed++
	h.linger = linger
	return h.err
}

func (h *fakeHandle) Closed() bool {
	h.Lock()
	defer h.Unlock()
	return h.closed > 0
}

func TestRegistry(t *testing.T) {
	Convey("Given an empty registry", t, func() {
		r := New()
		So(r.Count(), ShouldEqual, 0)

		Convey("Unregister closes the socket and drops the entry", func() {
			h := &fakeHandle{}
			r.Register("PUSH", "tcp://127.0.0.1:5555", h)
			r.Register("PULL", "tcp://127.0.0.1:5556", &fakeHandle{})
			So(r.Count(), ShouldEqual, 2)

			So(r.Unregister("PUSH", "tcp://127.0.0.1:5555", 10*time.Millisecond), ShouldBeNil)
			So(r.Count(), ShouldEqual, 1)
			So(h.Closed(), ShouldBeTrue)
			So(h.linger, ShouldEqual, 10*time.Millisecond)

			_, ok := r.Lookup("PUSH", "tcp://127.0.0.1:5555")
			So(ok, ShouldBeFalse)
		})

		Convey("Unregistering an unknown key is harmless", func() {
			So(r.Unregister("PUSH", "tcp://127.0.0.1:1", 0), ShouldBeNil)
			So(r.Count(), ShouldEqual, 0)
		})

		Convey("Closed sockets are not closed twice", func() {
			h := &fakeHandle{}
			h.CloseLinger(0)
			r.Register("PAIR", "inproc://x", h)
			So(r.Unregister("PAIR", "inproc://x", 0), ShouldBeNil)
			So(h.closed, ShouldEqual, 1)
		})

		Convey("Registering a duplicate key replaces without closing", func() {
			h1 := &fakeHandle{}
			h2 := &fakeHandle{}
			r.Register("PUB", "inproc://x", h1)
			r.Register("PUB", "inproc://x", h2)
			So(r.Count(), ShouldEqual, 1)
			So(h1.Closed(), ShouldBeFalse)
			got, ok := r.Lookup("PUB", "inproc://x")
			So(ok, ShouldBeTrue)
			So(got, ShouldEqual, h2)
		})

		Convey("Release only drops its own entry", func() {
			h1 := &fakeHandle{}
			h2 := &fakeHandle{}
			r.Register("PULL", "tcp://127.0.0.1:5557", h1)
			r.Register("PULL", "tcp://127.0.0.1:5557", h2)

			So(r.Release("PULL", "tcp://127.0.0.1:5557", h1, 0), ShouldBeNil)
			So(h1.Closed(), ShouldBeTrue)
			So(h2.Closed(), ShouldBeFalse)
			So(r.Count(), ShouldEqual, 1)

			So(r.Release("PULL", "tcp://127.0.0.1:5557", h2, 0), ShouldBeNil)
			So(h2.Closed(), ShouldBeTrue)
			So(r.Count(), ShouldEqual, 0)
		})

		Convey("CleanupAll closes everything still open", func() {
			hs := []*fakeHandle{{}, {}, {}}
			hs[2].CloseLinger(0)
			r.Register("PUSH", "inproc://a", hs[0])
			r.Register("PULL", "inproc://a", hs[1])
			r.Register("PAIR", "inproc://b", hs[2])

			n, err := r.CleanupAll()
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)
			So(r.Count(), ShouldEqual, 0)
			for _, h := range hs {
				So(h.Closed(), ShouldBeTrue)
			}
		})

		Convey("CleanupAll reports the errors of every close", func() {
			e1, e2 := errors.New("close a"), errors.New("close b")
			r.Register("PUSH", "inproc://a", &fakeHandle{err: e1})
			r.Register("PULL", "inproc://b", &fakeHandle{})
			r.Register("PAIR", "inproc://c", &fakeHandle{err: e2})

			n, err := r.CleanupAll()
			So(n, ShouldEqual, 3)
			So(errors.Is(err, e1), ShouldBeTrue)
			So(errors.Is(err, e2), ShouldBeTrue)
			So(r.Count(), ShouldEqual, 0)
		})
	})
}

func TestRegistryConcurrent(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			addr := "inproc://" + string(rune('a'+i))
			r.Register("PUSH", addr, &fakeHandle{})
			r.Unregister("PUSH", addr, 0)
		}(i)
	}
	wg.Wait()
	if n := r.Count(); n != 0 {
		t.Errorf("Got %d entries left, expected none", n)
	}
}

func TestDefaultIsShared(t *testing.T) {
	if Default() != Default() {
		t.Errorf("Default registry is not a singleton")
	}
}

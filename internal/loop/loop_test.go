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

package loop

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRunner(t *testing.T) {
	Convey("Given a runner counting iterations", t, func() {
		var before, iters, after atomic.Int32
		r := New("count", Hooks{
			Before: func() error { before.Add(1); return nil },
			Body: func() (bool, error) {
				time.Sleep(time.Millisecond)
				return iters.Add(1) < 5, nil
			},
			After: func() { after.Add(1) },
		}, nil)
		So(r.IsAlive(), ShouldBeFalse)
		So(r.Wait(0), ShouldBeTrue)

		Convey("It runs until the body says stop", func() {
			So(r.Start(), ShouldBeTrue)
			So(r.Start(), ShouldBeFalse)
			So(r.Wait(time.Second), ShouldBeTrue)
			So(int(before.Load()), ShouldEqual, 1)
			So(int(iters.Load()), ShouldEqual, 5)
			So(int(after.Load()), ShouldEqual, 1)
			So(r.WasBreak(), ShouldBeTrue)
			So(r.IsAlive(), ShouldBeFalse)
			So(r.Err(), ShouldBeNil)
			<-r.Done()
		})
	})

	Convey("A break stops an endless loop", t, func() {
		var after atomic.Bool
		r := New("endless", Hooks{
			Body: func() (bool, error) {
				time.Sleep(time.Millisecond)
				return true, nil
			},
			After: func() { after.Store(true) },
		}, nil)
		r.Start()
		So(r.Wait(20*time.Millisecond), ShouldBeFalse)
		So(r.IsAlive(), ShouldBeTrue)
		r.SetBreak()
		So(r.Wait(time.Second), ShouldBeTrue)
		So(after.Load(), ShouldBeTrue)
	})

	Convey("Errors stop the loop and are kept", t, func() {
		boom := errors.New("boom")
		r := New("fail", Hooks{
			Body: func() (bool, error) { return true, boom },
		}, nil)
		r.Start()
		So(r.Wait(time.Second), ShouldBeTrue)
		So(r.Err(), ShouldEqual, boom)
	})

	Convey("Panics are recovered", t, func() {
		var after atomic.Bool
		r := New("panic", Hooks{
			Body:  func() (bool, error) { panic("oops") },
			After: func() { after.Store(true) },
		}, nil)
		r.Start()
		So(r.Wait(time.Second), ShouldBeTrue)
		So(r.Err(), ShouldNotBeNil)
		So(r.Err().Error(), ShouldContainSubstring, "oops")
		So(after.Load(), ShouldBeTrue)
	})

	Convey("A failing Before skips the body", t, func() {
		var iters atomic.Int32
		r := New("before", Hooks{
			Before: func() error { return errors.New("no") },
			Body:   func() (bool, error) { iters.Add(1); return false, nil },
		}, nil)
		r.Start()
		So(r.Wait(time.Second), ShouldBeTrue)
		So(int(iters.Load()), ShouldEqual, 0)
		So(r.Err(), ShouldNotBeNil)
	})
}

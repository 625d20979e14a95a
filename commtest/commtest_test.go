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

package commtest

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/yggmq/yggmq"
)

func TestPair(t *testing.T) {
	Convey("Given an open in-memory pair", t, func() {
		send, recv := NewPair("p")
		So(send.Address(), ShouldEqual, recv.Address())
		So(send.IsClosed(), ShouldBeTrue)
		So(send.Open(), ShouldBeNil)
		So(recv.Open(), ShouldBeNil)

		Convey("Messages pass in order", func() {
			for _, m := range []string{"a", "b"} {
				st, err := send.Send([]byte(m))
				So(err, ShouldBeNil)
				So(st, ShouldEqual, yggmq.Ready)
			}
			So(send.NMsg(), ShouldEqual, 2)
			So(Collect(recv, 2, time.Second), ShouldResemble, []string{"a", "b"})
			So(send.DrainMessages(0), ShouldBeTrue)
		})

		Convey("Blocked sends would block", func() {
			send.BlockSends = 1
			st, _ := send.Send([]byte("a"))
			So(st, ShouldEqual, yggmq.WouldBlock)
			st, _ = send.Send([]byte("a"))
			So(st, ShouldEqual, yggmq.Ready)
		})

		Convey("Closed comms report Closed", func() {
			So(recv.Close(), ShouldBeNil)
			So(recv.Close(), ShouldBeNil)
			_, st, _ := recv.Recv(0)
			So(st, ShouldEqual, yggmq.Closed)
			So(recv.Open(), ShouldNotBeNil)
		})
	})
}

func TestErrorComm(t *testing.T) {
	Convey("Injected failures surface", t, func() {
		send, _ := NewPair("e")
		c := &ErrorComm{Comm: send, FailOpen: true}
		So(errors.Is(c.Open(), Injected), ShouldBeTrue)

		c.FailOpen, c.NeverOpen = false, true
		So(c.Open(), ShouldBeNil)
		So(c.IsOpen(), ShouldBeFalse)

		c.NeverOpen, c.FailSend = false, true
		So(c.Open(), ShouldBeNil)
		st, err := c.Send([]byte("x"))
		So(st, ShouldEqual, yggmq.Failed)
		So(err, ShouldEqual, Injected)

		c.FailClose = true
		So(c.Close(), ShouldEqual, Injected)
		So(c.Closes(), ShouldEqual, 1)
		So(send.IsClosed(), ShouldBeTrue)

		_, err = Failing()()
		So(err, ShouldEqual, Injected)
	})
}

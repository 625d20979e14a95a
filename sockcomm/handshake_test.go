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
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestHeaders(t *testing.T) {
	Convey("The reply header", t, func() {
		b := wrapHeader("tcp://127.0.0.1:4000", []byte("hello"))
		So(string(b), ShouldEqual, ":YGG_REPLY:tcp://127.0.0.1:4000:YGG_REPLY:hello")

		addr, body, ok := unwrapHeader(b)
		So(ok, ShouldBeTrue)
		So(addr, ShouldEqual, "tcp://127.0.0.1:4000")
		So(string(body), ShouldEqual, "hello")

		Convey("Is required", func() {
			_, body, ok := unwrapHeader([]byte("hello"))
			So(ok, ShouldBeFalse)
			So(string(body), ShouldEqual, "hello")
		})
		Convey("Must be terminated", func() {
			_, _, ok := unwrapHeader([]byte(":YGG_REPLY:tcp://x"))
			So(ok, ShouldBeFalse)
		})
		Convey("May carry an empty message", func() {
			_, body, ok := unwrapHeader(wrapHeader("inproc://x", nil))
			So(ok, ShouldBeTrue)
			So(len(body), ShouldEqual, 0)
		})
	})

	Convey("The topic marker", t, func() {
		b := wrapTopic([]byte("temp"), wrapHeader("tcp://h:1", []byte("x")))
		So(string(b), ShouldStartWith, "temp_YGGFILTER_:YGG_REPLY:")

		topic, rest, ok := unwrapTopic(b)
		So(ok, ShouldBeTrue)
		So(string(topic), ShouldEqual, "temp")
		addr, body, ok := unwrapHeader(rest)
		So(ok, ShouldBeTrue)
		So(addr, ShouldEqual, "tcp://h:1")
		So(string(body), ShouldEqual, "x")

		_, _, ok = unwrapTopic([]byte("no marker"))
		So(ok, ShouldBeFalse)
	})
}

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
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/yggmq/yggmq"
	"github.com/yggmq/yggmq/address"
	"github.com/yggmq/yggmq/commtest"
	yerr "github.com/yggmq/yggmq/errors"
	"github.com/yggmq/yggmq/registry"
	"github.com/yggmq/yggmq/sockcomm"
)

const waitTime = 2 * time.Second

// fixture is an upstream comm feeding a driver, and the downstream comm
// the driver feeds.
type fixture struct {
	up   *commtest.Comm
	in   *commtest.Comm
	out  *commtest.Comm
	down *commtest.Comm
}

func newFixture() *fixture {
	f := &fixture{}
	f.up, f.in = commtest.NewPair("in")
	f.out, f.down = commtest.NewPair("out")
	So(f.up.Open(), ShouldBeNil)
	So(f.down.Open(), ShouldBeNil)
	return f
}

func (f *fixture) config(name string) Config {
	return Config{
		Name:      name,
		NewInput:  commtest.Returning(f.in),
		NewOutput: commtest.Returning(f.out),
		Timeout:   waitTime,
	}
}

func (f *fixture) send(msgs ...string) {
	for _, m := range msgs {
		st, err := f.up.Send([]byte(m))
		So(err, ShouldBeNil)
		So(st, ShouldEqual, yggmq.Ready)
	}
}

func startDriver(cfg Config) *Driver {
	d, err := New(cfg)
	So(err, ShouldBeNil)
	So(d.Start(), ShouldBeNil)
	return d
}

func TestForwarding(t *testing.T) {
	Convey("Given a started driver", t, func() {
		f := newFixture()
		d := startDriver(f.config("fwd"))
		defer d.Terminate()

		So(d.Name(), ShouldEqual, "fwd")
		So(d.IsCommOpen(), ShouldBeTrue)
		So(d.IsAlive(), ShouldBeTrue)
		So(d.Env(), ShouldResemble, map[string]string{
			"in":  f.in.Address(),
			"out": f.out.Address(),
		})

		Convey("Messages are forwarded in order and counted", func() {
			f.send("a", "b", "c")
			So(commtest.Collect(f.down, 3, waitTime), ShouldResemble, []string{"a", "b", "c"})
			So(d.WaitForRoute(waitTime), ShouldBeTrue)
			st := d.Stats()
			So(st.Received, ShouldEqual, 3)
			So(st.Processed, ShouldEqual, 3)
			So(st.Sent, ShouldEqual, 3)
			So(st.Skipped, ShouldEqual, 0)
			So(d.Status(), ShouldStartWith, "driver(fwd): ")
			So(d.Status(), ShouldContainSubstring, "3 sent")
		})

		Convey("EOF is forwarded once and stops the driver", func() {
			f.send("a", string(yggmq.EOF))
			So(d.Wait(waitTime), ShouldBeTrue)
			So(d.Err(), ShouldBeNil)
			So(f.in.IsClosed(), ShouldBeTrue)
			got := commtest.Collect(f.down, 3, 100*time.Millisecond)
			So(got, ShouldResemble, []string{"a", string(yggmq.EOF)})
			sent, err := d.SendEOF()
			So(sent, ShouldBeFalse)
			So(err, ShouldBeNil)
		})

		Convey("A graceful stop forwards what is waiting first", func() {
			f.send("a", "b", "c")
			So(d.GracefulStop(waitTime), ShouldBeNil)
			So(d.IsAlive(), ShouldBeFalse)
			So(d.IsCommClosed(), ShouldBeTrue)
			So(d.State(), ShouldEqual, StateClosed)
			got := commtest.Collect(f.down, 4, 100*time.Millisecond)
			So(got, ShouldResemble, []string{"a", "b", "c"})
		})

		Convey("Closing the comms twice, or at once, is fine", func() {
			So(d.CloseComm(), ShouldBeNil)
			So(d.CloseComm(), ShouldBeNil)
			var wg sync.WaitGroup
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					d.CloseComm()
				}()
			}
			wg.Wait()
			So(d.IsCommClosed(), ShouldBeTrue)
			So(d.Wait(waitTime), ShouldBeTrue)
			So(d.OpenComm(), ShouldBeNil)
			So(d.IsCommOpen(), ShouldBeFalse)
		})
	})
}

func TestTranslator(t *testing.T) {
	Convey("Given a driver with a translator", t, func() {
		f := newFixture()
		cfg := f.config("upper")
		cfg.Translator = func(msg []byte) ([]byte, error) {
			switch string(msg) {
			case "skip":
				return nil, nil
			case "bad":
				return nil, errors.New("unreadable")
			}
			return bytes.ToUpper(msg), nil
		}
		d := startDriver(cfg)
		defer d.Terminate()

		Convey("Messages are translated, and empty results skipped", func() {
			f.send("a", "skip", "b")
			So(commtest.Collect(f.down, 2, waitTime), ShouldResemble, []string{"A", "B"})
			So(d.WaitForRoute(waitTime), ShouldBeTrue)
			st := d.Stats()
			So(st.Received, ShouldEqual, 3)
			So(st.Skipped, ShouldEqual, 1)
			So(st.Sent, ShouldEqual, 2)
		})

		Convey("A translation error stops the driver", func() {
			f.send("bad")
			So(d.Wait(waitTime), ShouldBeTrue)
			So(errors.Is(d.Err(), yerr.ErrTranslate), ShouldBeTrue)
			So(d.State(), ShouldEqual, StateError)
		})
	})
}

func TestSingleUse(t *testing.T) {
	Convey("A single use driver forwards one message", t, func() {
		f := newFixture()
		cfg := f.config("once")
		cfg.SingleUse = true
		cfg.Role = RoleOutput
		d := startDriver(cfg)
		defer d.Terminate()

		f.send("a", "b")
		So(d.Wait(waitTime), ShouldBeTrue)
		So(commtest.Collect(f.down, 2, 100*time.Millisecond), ShouldResemble, []string{"a"})
		So(d.IsValid(), ShouldBeFalse)
		So(f.in.IsClosed(), ShouldBeTrue)
	})
}

func TestFirstSend(t *testing.T) {
	Convey("The first send is retried while the output would block", t, func() {
		f := newFixture()
		f.out.BlockSends = 3
		d := startDriver(f.config("first"))
		defer d.Terminate()

		f.send("a")
		So(commtest.Collect(f.down, 1, waitTime), ShouldResemble, []string{"a"})
	})

	Convey("A send that keeps failing stops the driver", t, func() {
		f := newFixture()
		out := &commtest.ErrorComm{Comm: f.out, FailSend: true}
		cfg := f.config("failing")
		cfg.NewOutput = commtest.Returning(out)
		cfg.TimeoutSend1st = 50 * time.Millisecond
		d := startDriver(cfg)
		defer d.Terminate()

		f.send("a")
		So(d.Wait(waitTime), ShouldBeTrue)
		So(errors.Is(d.Err(), yerr.ErrSendFailed), ShouldBeTrue)
		So(d.Stats().Sent, ShouldEqual, 0)
	})

	Convey("A later send that keeps blocking times out", t, func() {
		f := newFixture()
		f.out.BlockSends = 1 << 20
		cfg := f.config("blocked")
		cfg.Timeout = 50 * time.Millisecond
		d, err := New(cfg)
		So(err, ShouldBeNil)
		So(f.out.Open(), ShouldBeNil)
		d.firstSent = true
		err = d.SendMessage([]byte("a"))
		So(errors.Is(err, yerr.ErrSendFailed), ShouldBeTrue)
	})

	Convey("Sending to a closed output fails at once", t, func() {
		f := newFixture()
		d, err := New(f.config("closed"))
		So(err, ShouldBeNil)
		err = d.SendMessage([]byte("a"))
		So(errors.Is(err, yerr.ErrClosed), ShouldBeTrue)
	})
}

func TestConstruction(t *testing.T) {
	Convey("Given comms that fail", t, func() {
		f := newFixture()

		Convey("A required comm constructor is missing", func() {
			_, err := New(Config{Name: "none"})
			So(err, ShouldNotBeNil)
		})

		Convey("The input is closed if the output cannot be created", func() {
			in := &commtest.ErrorComm{Comm: f.in}
			_, err := New(Config{
				Name:      "noout",
				NewInput:  commtest.Returning(in),
				NewOutput: commtest.Failing(),
			})
			So(errors.Is(err, commtest.Injected), ShouldBeTrue)
			So(in.Closes(), ShouldEqual, 1)
		})

		Convey("A failed open closes both comms", func() {
			out := &commtest.ErrorComm{Comm: f.out, FailOpen: true}
			cfg := f.config("noopen")
			cfg.NewOutput = commtest.Returning(out)
			d, err := New(cfg)
			So(err, ShouldBeNil)
			err = d.Start()
			So(errors.Is(err, commtest.Injected), ShouldBeTrue)
			So(d.IsCommClosed(), ShouldBeTrue)
			So(out.Closes(), ShouldEqual, 1)
		})

		Convey("A comm that never opens times out", func() {
			out := &commtest.ErrorComm{Comm: f.out, NeverOpen: true}
			cfg := f.config("never")
			cfg.NewOutput = commtest.Returning(out)
			cfg.Timeout = 50 * time.Millisecond
			d, err := New(cfg)
			So(err, ShouldBeNil)
			err = d.Start()
			So(errors.Is(err, yerr.ErrConnectionTimeout), ShouldBeTrue)
			So(d.IsAlive(), ShouldBeFalse)
			So(d.Cleanup(), ShouldBeNil)
		})
	})
}

func TestModelExit(t *testing.T) {
	Convey("Given a driver feeding a model", t, func() {
		f := newFixture()
		cfg := f.config("model")
		cfg.Role = RoleInput
		d := startDriver(cfg)
		defer d.Terminate()

		Convey("The model exit closes the output and ends the loop", func() {
			d.OnModelExit()
			So(f.out.IsClosed(), ShouldBeTrue)
			So(d.Wait(waitTime), ShouldBeTrue)
		})
	})

	Convey("Given a driver carrying a model output", t, func() {
		f := newFixture()
		cfg := f.config("model")
		cfg.Role = RoleOutput
		d := startDriver(cfg)
		defer d.Terminate()

		Convey("The model exit forwards what is left, then EOF", func() {
			f.send("a", "b")
			d.OnModelExit()
			So(f.in.IsClosed(), ShouldBeTrue)
			So(d.Wait(waitTime), ShouldBeTrue)
			got := commtest.Collect(f.down, 4, 100*time.Millisecond)
			So(got, ShouldResemble, []string{"a", "b", string(yggmq.EOF)})
		})
	})
}

func TestMetrics(t *testing.T) {
	Convey("Metrics are disabled without a registerer", t, func() {
		m, err := NewMetrics(nil, nil)
		So(err, ShouldBeNil)
		So(m, ShouldBeNil)
		So(func() { m.recordSent("x") }, ShouldNotPanic)
	})

	Convey("Given driver metrics", t, func() {
		reg := prometheus.NewRegistry()
		sockets := registry.New()
		m, err := NewMetrics(reg, sockets)
		So(err, ShouldBeNil)

		_, err = NewMetrics(reg, nil)
		So(err, ShouldNotBeNil)

		f := newFixture()
		cfg := f.config("counted")
		cfg.Metrics = m
		cfg.Translator = func(msg []byte) ([]byte, error) {
			if string(msg) == "skip" {
				return nil, nil
			}
			return msg, nil
		}
		d := startDriver(cfg)
		defer d.Terminate()

		f.send("a", "skip", "b")
		So(commtest.Collect(f.down, 2, waitTime), ShouldHaveLength, 2)
		So(d.WaitForRoute(waitTime), ShouldBeTrue)
		So(testutil.ToFloat64(m.received.WithLabelValues("counted")), ShouldEqual, 3.0)
		So(testutil.ToFloat64(m.processed.WithLabelValues("counted")), ShouldEqual, 2.0)
		So(testutil.ToFloat64(m.sent.WithLabelValues("counted")), ShouldEqual, 2.0)
		So(testutil.ToFloat64(m.skipped.WithLabelValues("counted")), ShouldEqual, 1.0)
		n, err := testutil.GatherAndCount(reg, "yggmq_registry_sockets")
		So(err, ShouldBeNil)
		So(n, ShouldEqual, 1)
	})
}

func TestStopAll(t *testing.T) {
	Convey("Several drivers stop together", t, func() {
		var drivers []*Driver
		var fixtures []*fixture
		for i := 0; i < 3; i++ {
			f := newFixture()
			fixtures = append(fixtures, f)
			drivers = append(drivers, startDriver(f.config(fmt.Sprintf("d%d", i))))
		}
		for _, f := range fixtures {
			f.send("a")
		}
		So(StopAll(waitTime, drivers...), ShouldBeNil)
		for i, d := range drivers {
			So(d.IsAlive(), ShouldBeFalse)
			So(commtest.Collect(fixtures[i].down, 1, waitTime), ShouldResemble, []string{"a"})
		}
	})
}

func TestSocketDriver(t *testing.T) {
	Convey("Given a driver between socket comms", t, func() {
		reg := registry.New()
		defer reg.CleanupAll()

		up, err := sockcomm.New(sockcomm.Config{
			Name:     "in",
			Pattern:  sockcomm.Push,
			Protocol: address.Inproc,
			Registry: reg,
		})
		So(err, ShouldBeNil)
		So(up.Open(), ShouldBeNil)
		defer up.Close()

		d, err := New(Config{
			Name: "relay",
			NewInput: func() (yggmq.Comm, error) {
				return sockcomm.New(up.MateConfig())
			},
			NewOutput: func() (yggmq.Comm, error) {
				return sockcomm.New(sockcomm.Config{
					Name:     "out",
					Pattern:  sockcomm.Push,
					Protocol: address.Inproc,
					Registry: reg,
				})
			},
			Timeout: waitTime,
		})
		So(err, ShouldBeNil)
		So(d.Start(), ShouldBeNil)
		defer d.Terminate()

		down, err := sockcomm.New(d.Output().(*sockcomm.Comm).MateConfig())
		So(err, ShouldBeNil)
		So(down.Open(), ShouldBeNil)
		defer down.Close()

		Convey("Messages and EOF go through, and are confirmed", func() {
			for _, m := range []string{"x", "y", string(yggmq.EOF)} {
				st, err := up.Send([]byte(m))
				So(err, ShouldBeNil)
				So(st, ShouldEqual, yggmq.Ready)
			}
			So(commtest.Collect(down, 3, waitTime), ShouldResemble, []string{"x", "y", string(yggmq.EOF)})
			So(up.DrainMessages(waitTime), ShouldBeTrue)
			So(d.Wait(waitTime), ShouldBeTrue)
			So(d.Output().DrainMessages(waitTime), ShouldBeTrue)
		})
	})
}

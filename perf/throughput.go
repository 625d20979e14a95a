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

package main

import (
	"fmt"
	"time"

	"github.com/yggmq/yggmq"
	"github.com/yggmq/yggmq/address"
	"github.com/yggmq/yggmq/driver"
	"github.com/yggmq/yggmq/registry"
	"github.com/yggmq/yggmq/sockcomm"
)

func report(size, count int, delta time.Duration) {
	deltasec := float64(delta) / float64(time.Second)
	msgpersec := float64(count) / deltasec
	mbps := (float64(count*8*size) / deltasec) / 1000000.0
	fmt.Printf("message size: %d [B]\n", size)
	fmt.Printf("message count: %d\n", count)
	fmt.Printf("throughput: %d [msg/s]\n", uint64(msgpersec))
	fmt.Printf("throughput: %.3f [Mb/s]\n", mbps)
}

func mustComm(cfg sockcomm.Config) *sockcomm.Comm {
	c, err := sockcomm.New(cfg)
	if err != nil {
		log.Fatalf("Failed to make comm: %v", err)
	}
	if err = c.Open(); err != nil {
		log.Fatalf("Failed to open comm: %v", err)
	}
	return c
}

func mustSend(c yggmq.Comm, body []byte) {
	for {
		st, err := c.Send(body)
		switch st {
		case yggmq.Ready:
			return
		case yggmq.WouldBlock:
			time.Sleep(time.Millisecond)
		default:
			log.Fatalf("Failed to send: %v %v", st, err)
		}
	}
}

func mustRecv(c yggmq.Comm) []byte {
	for {
		msg, st, err := c.Recv(time.Second)
		switch st {
		case yggmq.Ready:
			return msg
		case yggmq.WouldBlock:
		default:
			log.Fatalf("Failed to recv: %v %v", st, err)
		}
	}
}

// ThroughputServer is the receiving side, equivalent to local_thr in
// nanomsg/perf.  It counts the messages received from a PUSH comm bound
// at addr.
func ThroughputServer(addr string, size int, count int) {
	c := mustComm(sockcomm.Config{
		Name:    "local_thr",
		Address: addr,
		Pattern: sockcomm.Pull,
		Action:  sockcomm.ActionConnect,
	})
	defer c.Close()

	// start message
	mustRecv(c)
	start := time.Now()
	for i := 0; i != count; i++ {
		msg := mustRecv(c)
		if len(msg) != size {
			log.Fatalf("Received wrong message size: %d != %d", len(msg), size)
		}
	}
	report(size, count, time.Since(start))
}

// ThroughputClient is the sending side.  It binds addr and sends count
// messages of the given size, then waits until all are confirmed.
func ThroughputClient(addr string, size int, count int) {
	c := mustComm(sockcomm.Config{
		Name:    "remote_thr",
		Address: addr,
		Pattern: sockcomm.Push,
		Action:  sockcomm.ActionBind,
		Linger:  time.Second,
	})
	defer c.Close()

	body := make([]byte, size)
	for i := range body {
		body[i] = 111
	}
	// The start message must not be empty, or it would read as a poll.
	mustSend(c, []byte{0})
	for i := 0; i < count; i++ {
		mustSend(c, body)
	}
	if !c.DrainMessages(time.Minute) {
		log.Fatalf("%d messages not confirmed", c.NMsg())
	}
}

// RelayThroughput sends count messages through a driver between two
// inproc comm pairs, and reports the rate at the far end.
func RelayThroughput(size int, count int) {
	reg := registry.New()
	defer reg.CleanupAll()

	src := mustComm(sockcomm.Config{Name: "src", Pattern: sockcomm.Push,
		Protocol: address.Inproc, Registry: reg})
	defer src.Close()

	d, err := driver.New(driver.Config{
		Name: "relay",
		NewInput: func() (yggmq.Comm, error) {
			return sockcomm.New(src.MateConfig())
		},
		NewOutput: func() (yggmq.Comm, error) {
			return sockcomm.New(sockcomm.Config{Name: "dst", Pattern: sockcomm.Push,
				Protocol: address.Inproc, Registry: reg})
		},
	})
	if err != nil {
		log.Fatalf("Failed to make driver: %v", err)
	}
	if err = d.Start(); err != nil {
		log.Fatalf("Failed to start driver: %v", err)
	}
	dst := mustComm(d.Output().(*sockcomm.Comm).MateConfig())
	defer dst.Close()

	body := make([]byte, size)
	for i := range body {
		body[i] = 111
	}
	go func() {
		for i := 0; i < count; i++ {
			mustSend(src, body)
		}
		mustSend(src, yggmq.EOF)
	}()

	start := time.Now()
	for i := 0; i < count; i++ {
		if msg := mustRecv(dst); len(msg) != size {
			log.Fatalf("Received wrong message size: %d != %d", len(msg), size)
		}
	}
	report(size, count, time.Since(start))
	if !d.Wait(driver.DefaultTimeout) {
		log.Fatalf("driver did not stop: %s", d.Status())
	}
	fmt.Println(d.Status())
}

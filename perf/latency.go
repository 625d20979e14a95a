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

	"github.com/yggmq/yggmq/address"
	"github.com/yggmq/yggmq/registry"
	"github.com/yggmq/yggmq/sockcomm"
)

// ConfirmLatency measures how long a message takes from Send until its
// receiver has confirmed it, over an inproc PUSH and PULL pair.
func ConfirmLatency(size int, count int) {
	reg := registry.New()
	defer reg.CleanupAll()

	send := mustComm(sockcomm.Config{Name: "lat", Pattern: sockcomm.Push,
		Protocol: address.Inproc, Registry: reg})
	defer send.Close()
	recv := mustComm(send.MateConfig())
	defer recv.Close()

	body := make([]byte, size)
	for i := range body {
		body[i] = 111
	}
	start := time.Now()
	for i := 0; i < count; i++ {
		mustSend(send, body)
		mustRecv(recv)
		if !send.DrainMessages(time.Second) {
			log.Fatalf("message %d not confirmed", i)
		}
	}
	delta := time.Since(start)
	fmt.Printf("message size: %d [B]\n", size)
	fmt.Printf("round trip count: %d\n", count)
	fmt.Printf("average latency: %.3f [us]\n",
		float64(delta/time.Microsecond)/float64(count))
}

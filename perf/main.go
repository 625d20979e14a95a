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

// perf measures the throughput and confirmation latency of yggmq comms
// and drivers.
package main

import (
	"fmt"
	"os"
	"path"
	"strconv"

	"go.uber.org/zap"
)

var log = newLogger()

func newLogger() *zap.SugaredLogger {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	return l.Sugar()
}

func usage() {
	fmt.Printf("Usage: perf local_thr|remote_thr|inproc_thr|relay_thr|inproc_lat ARGS\n")
	os.Exit(1)
}

// sizeCount parses the trailing <msg-size> <msg-count> arguments.
func sizeCount(cmd string, args []string) (int, int) {
	if len(args) < 2 {
		log.Fatalf("Usage: %s <msg-size> <msg-count>", cmd)
	}
	size, err := strconv.Atoi(args[0])
	if err != nil {
		log.Fatalf("Bad msg-size: %v", err)
	}
	count, err := strconv.Atoi(args[1])
	if err != nil {
		log.Fatalf("Bad msg-count: %v", err)
	}
	return size, count
}

func doLocalThroughput(args []string) {
	if len(args) < 3 {
		log.Fatalf("Usage: local_thr <connect-to> <msg-size> <msg-count>")
	}
	size, count := sizeCount("local_thr", args[1:])
	ThroughputServer(args[0], size, count)
	os.Exit(0)
}

func doRemoteThroughput(args []string) {
	if len(args) < 3 {
		log.Fatalf("Usage: remote_thr <bind-to> <msg-size> <msg-count>")
	}
	size, count := sizeCount("remote_thr", args[1:])
	ThroughputClient(args[0], size, count)
	os.Exit(0)
}

func doInprocThr(args []string) {
	size, count := sizeCount("inproc_thr", args)
	addr := "inproc://inproc_thr"
	go ThroughputClient(addr, size, count)
	ThroughputServer(addr, size, count)
	os.Exit(0)
}

func doRelayThr(args []string) {
	size, count := sizeCount("relay_thr", args)
	RelayThroughput(size, count)
	os.Exit(0)
}

func doInprocLat(args []string) {
	size, count := sizeCount("inproc_lat", args)
	ConfirmLatency(size, count)
	os.Exit(0)
}

func main() {
	args := os.Args

	for tries := 0; tries < 2; tries++ {
		switch path.Base(args[0]) {
		case "throughput_server", "local_thr":
			doLocalThroughput(args[1:])
		case "throughput_client", "remote_thr":
			doRemoteThroughput(args[1:])
		case "inproc_thr":
			doInprocThr(args[1:])
		case "relay_thr":
			doRelayThr(args[1:])
		case "inproc_lat":
			doInprocLat(args[1:])
		default:
			if len(args) < 2 {
				usage()
			}
			args = args[1:]
		}
	}
	usage()
}

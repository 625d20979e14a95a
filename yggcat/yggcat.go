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

// yggcat sends and receives messages on a single comm from the command
// line, with the reply handshake and the message markers of yggmq.
package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/droundy/goopt"
	"go.uber.org/zap"

	"github.com/yggmq/yggmq"
	"github.com/yggmq/yggmq/sockcomm"
)

var verbose int
var pattern sockcomm.Pattern
var patternSet bool
var direction = yggmq.Send
var directionSet bool
var action sockcomm.Action
var addr string
var topic string
var identity string
var recvTimeout int
var sendDelay int
var sendInterval int
var sendCount = 1
var sendEOF bool
var sendData []byte
var printFormat string

func setPattern(name string) error {
	if patternSet {
		return errors.New("socket type already selected")
	}
	p, err := sockcomm.ParsePattern(name)
	if err != nil {
		return err
	}
	pattern = p
	patternSet = true
	return nil
}

func setAddr(a sockcomm.Action, s string) error {
	if addr != "" {
		return errors.New("address already set")
	}
	if !strings.Contains(s, "://") {
		return errors.New("invalid address format")
	}
	addr = s
	action = a
	return nil
}

func setDirection(d yggmq.Direction) error {
	if directionSet {
		return errors.New("direction already set")
	}
	direction = d
	directionSet = true
	return nil
}

func setSendData(data string) error {
	if sendData != nil {
		return errors.New("data or file already set")
	}
	sendData = []byte(data)
	return nil
}

func setSendFile(path string) error {
	if sendData != nil {
		return errors.New("data or file already set")
	}
	var err error
	sendData, err = os.ReadFile(path)
	return err
}

func setFormat(f string) error {
	if len(printFormat) > 0 {
		return errors.New("output format already set")
	}
	if err := checkFormat(f); err != nil {
		return err
	}
	printFormat = f
	return nil
}

func intArg(v *int) func(string) error {
	return func(s string) error {
		var err error
		if *v, err = strconv.Atoi(s); err != nil {
			return errors.New("value not an integer")
		}
		return nil
	}
}

func fatalf(format string, v ...interface{}) {
	fmt.Fprintln(os.Stderr, fmt.Sprintf(format, v...))
	os.Exit(1)
}

func init() {
	goopt.NoArg([]string{"--verbose", "-v"}, "Increase verbosity",
		func() error {
			verbose++
			return nil
		})

	for _, name := range []string{"push", "pull", "pub", "sub", "req", "rep", "router", "dealer", "pair"} {
		name := name
		goopt.NoArg([]string{"--" + name},
			"Use "+strings.ToUpper(name)+" socket type",
			func() error { return setPattern(name) })
	}
	goopt.NoArg([]string{"--send", "-s"}, "Send, for PAIR, ROUTER and DEALER",
		func() error { return setDirection(yggmq.Send) })
	goopt.NoArg([]string{"--recv", "-r"}, "Receive, for PAIR, ROUTER and DEALER",
		func() error { return setDirection(yggmq.Recv) })

	goopt.ReqArg([]string{"--bind"}, "ADDR", "Bind socket to ADDR",
		func(s string) error { return setAddr(sockcomm.ActionBind, s) })
	goopt.ReqArg([]string{"--connect"}, "ADDR", "Connect socket to ADDR",
		func(s string) error { return setAddr(sockcomm.ActionConnect, s) })
	goopt.ReqArg([]string{"--bind-ipc", "-X"}, "PATH",
		"Bind socket to IPC PATH",
		func(s string) error { return setAddr(sockcomm.ActionBind, "ipc://"+s) })
	goopt.ReqArg([]string{"--connect-ipc", "-x"}, "PATH",
		"Connect socket to IPC PATH",
		func(s string) error { return setAddr(sockcomm.ActionConnect, "ipc://"+s) })
	goopt.ReqArg([]string{"--bind-local", "-L"}, "PORT",
		"Bind socket to TCP localhost PORT",
		func(s string) error { return setAddr(sockcomm.ActionBind, "tcp://127.0.0.1:"+s) })
	goopt.ReqArg([]string{"--connect-local", "-l"}, "PORT",
		"Connect socket to TCP localhost PORT",
		func(s string) error { return setAddr(sockcomm.ActionConnect, "tcp://127.0.0.1:"+s) })

	goopt.ReqArg([]string{"--topic", "--subscribe"}, "TOPIC",
		"Publish on, or subscribe to, TOPIC",
		func(s string) error {
			topic = s
			return nil
		})
	goopt.ReqArg([]string{"--identity"}, "ID",
		"DEALER identity to receive as, or ROUTER identity to send to",
		func(s string) error {
			identity = s
			return nil
		})

	goopt.ReqArg([]string{"--recv-timeout"}, "SEC",
		"Stop receiving after SEC seconds without a message", intArg(&recvTimeout))
	goopt.ReqArg([]string{"--send-delay", "-d"}, "SEC",
		"Set initial send delay", intArg(&sendDelay))
	goopt.ReqArg([]string{"--interval", "-i"}, "SEC",
		"Send DATA every SEC seconds", intArg(&sendInterval))
	goopt.ReqArg([]string{"--count", "-n"}, "N",
		"Send DATA N times, 0 for ever (default 1)", intArg(&sendCount))
	goopt.NoArg([]string{"--eof"}, "Send EOF after the data",
		func() error {
			sendEOF = true
			return nil
		})

	goopt.NoArg([]string{"--raw"}, "Raw output, no delimiters",
		func() error { return setFormat(formatRaw) })
	goopt.NoArg([]string{"--ascii", "-A"}, "ASCII output, one per line",
		func() error { return setFormat(formatASCII) })
	goopt.NoArg([]string{"--quoted", "-Q"}, "Quoted output, one per line",
		func() error { return setFormat(formatQuoted) })
	goopt.NoArg([]string{"--msgpack"},
		"Msgpacked binary output (see msgpack.org)",
		func() error { return setFormat(formatMsgpack) })

	goopt.ReqArg([]string{"--data", "-D"}, "DATA", "Data to send",
		setSendData)
	goopt.ReqArg([]string{"--file", "-F"}, "FILE", "Send contents of FILE",
		setSendFile)

	goopt.Description = func() string {
		return `yggcat is a command-line interface to send and receive
messages on a yggmq comm.  Every message sent is confirmed by its
receiver before yggcat exits. `
	}
	goopt.Suite = "yggmq"
	goopt.Summary = "command line interface to yggmq comms"
}

func newLogger() *zap.Logger {
	if verbose == 0 {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	if verbose < 2 {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		fatalf("Failed creating logger: %v", err)
	}
	return log
}

func sendLoop(c *sockcomm.Comm) {
	if sendData == nil {
		fatalf("No data to send!")
	}
	for i := 0; sendCount == 0 || i < sendCount; i++ {
		if i > 0 && sendInterval > 0 {
			time.Sleep(time.Duration(sendInterval) * time.Second)
		}
		send(c, sendData)
	}
	if sendEOF {
		send(c, yggmq.EOF)
	}
}

// send retries while the peer cannot take the message yet.
func send(c *sockcomm.Comm, msg []byte) {
	for {
		st, err := c.SendWith(msg, []byte(topic), identity)
		switch st {
		case yggmq.Ready:
			return
		case yggmq.WouldBlock:
			time.Sleep(sockcomm.DefaultSleepTime)
		default:
			fatalf("Send failed: %v %v", st, err)
		}
	}
}

func recvLoop(c *sockcomm.Comm) {
	last := time.Now()
	for {
		msg, st, err := c.Recv(100 * time.Millisecond)
		switch st {
		case yggmq.Ready:
			if yggmq.IsEOF(msg) {
				return
			}
			if err := printMsg(os.Stdout, printFormat, msg); err != nil {
				fatalf("Write failed: %v", err)
			}
			last = time.Now()
		case yggmq.WouldBlock:
			if recvTimeout > 0 && time.Since(last) > time.Duration(recvTimeout)*time.Second {
				return
			}
		default:
			fatalf("Recv failed: %v %v", st, err)
		}
	}
}

func main() {
	goopt.Parse(nil)

	if !patternSet {
		fatalf("Socket type not specified.")
	}
	if addr == "" {
		fatalf("No address specified.")
	}
	if printFormat == "" {
		printFormat = formatASCII
	}
	log := newLogger()
	defer log.Sync()

	c, err := sockcomm.New(sockcomm.Config{
		Name:           "yggcat",
		Address:        addr,
		Pattern:        pattern,
		Direction:      direction,
		Action:         action,
		TopicFilter:    []byte(topic),
		DealerIdentity: identity,
		Logger:         log,
	})
	if err != nil {
		fatalf("Failed creating comm: %v", err)
	}
	if err = c.Open(); err != nil {
		fatalf("Failed opening comm: %v", err)
	}
	defer c.Close()
	log.Info("comm open", zap.String("address", c.Address()),
		zap.Stringer("pattern", c.Pattern()), zap.Stringer("direction", c.Direction()))

	time.Sleep(time.Second * time.Duration(sendDelay))

	if c.Direction() == yggmq.Send {
		sendLoop(c)
		if !c.DrainMessages(10 * time.Second) {
			fmt.Fprintf(os.Stderr, "%d messages not confirmed\n", c.NMsg())
		}
		return
	}
	recvLoop(c)
}

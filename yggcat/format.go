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
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Output formats.
const (
	formatNo      = "no"
	formatRaw     = "raw"
	formatASCII   = "ascii"
	formatQuoted  = "quoted"
	formatMsgpack = "msgpack"
)

func checkFormat(f string) error {
	switch f {
	case formatNo, formatRaw, formatASCII, formatQuoted, formatMsgpack:
		return nil
	}
	return errors.New("invalid format type")
}

// printMsg writes body to w in the given format.
func printMsg(w io.Writer, format string, body []byte) error {
	bw := bufio.NewWriter(w)
	switch format {
	case formatNo:
		return nil
	case formatRaw:
		bw.Write(body)
	case formatASCII:
		for _, b := range body {
			if strconv.IsPrint(rune(b)) {
				bw.WriteByte(b)
			} else {
				bw.WriteByte('.')
			}
		}
		bw.WriteString("\n")
	case formatQuoted:
		for _, b := range body {
			switch b {
			case '\n':
				bw.WriteString("\\n")
			case '\r':
				bw.WriteString("\\r")
			case '\\':
				bw.WriteString("\\\\")
			case '"':
				bw.WriteString("\\\"")
			default:
				if strconv.IsPrint(rune(b)) {
					bw.WriteByte(b)
				} else {
					fmt.Fprintf(bw, "\\x%02x", b)
				}
			}
		}
		bw.WriteString("\n")
	case formatMsgpack:
		enc := make([]byte, 5)
		switch {
		case len(body) < 256:
			enc = enc[:2]
			enc[0] = 0xc4
			enc[1] = byte(len(body))
		case len(body) < 65536:
			enc = enc[:3]
			enc[0] = 0xc5
			binary.BigEndian.PutUint16(enc[1:], uint16(len(body)))
		default:
			enc[0] = 0xc6
			binary.BigEndian.PutUint32(enc[1:], uint32(len(body)))
		}
		bw.Write(enc)
		bw.Write(body)
	}
	return bw.Flush()
}

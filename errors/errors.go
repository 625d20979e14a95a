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

// Package errors just defines some constant error codes, and is intended
// to be directly imported.  It is safe to import using ".", so that
// short names can be used without concern about unrelated namespace
// pollution.
package errors

type err string

func (e err) Error() string {
	return string(e)
}

// Predefined error values.
const (
	ErrInvalidProtocol     = err("invalid or unsupported protocol")
	ErrMalformedAddress    = err("malformed address")
	ErrUnknownSocketType   = err("unknown socket type")
	ErrAddressConflict     = err("address already bound by another writer")
	ErrMissingReplyAddress = err("no reply socket address attached")
	ErrTopicMismatch       = err("topic does not match subscription")
	ErrConnectionTimeout   = err("connection never finished opening")
	ErrClosed              = err("object closed")
	ErrNotOpen             = err("comm not open")
	ErrUnknownIdentity     = err("no route to identity")
	ErrTranslate           = err("could not translate message")
	ErrSendFailed          = err("could not send message")
)

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

package yggmq

import (
	"github.com/yggmq/yggmq/errors"
)

// Errors are re-exported here so that most applications only need to
// import the top level package.
const (
	ErrInvalidProtocol     = errors.ErrInvalidProtocol
	ErrMalformedAddress    = errors.ErrMalformedAddress
	ErrUnknownSocketType   = errors.ErrUnknownSocketType
	ErrAddressConflict     = errors.ErrAddressConflict
	ErrMissingReplyAddress = errors.ErrMissingReplyAddress
	ErrTopicMismatch       = errors.ErrTopicMismatch
	ErrConnectionTimeout   = errors.ErrConnectionTimeout
	ErrClosed              = errors.ErrClosed
	ErrNotOpen             = errors.ErrNotOpen
	ErrUnknownIdentity     = errors.ErrUnknownIdentity
	ErrTranslate           = errors.ErrTranslate
	ErrSendFailed          = errors.ErrSendFailed
)

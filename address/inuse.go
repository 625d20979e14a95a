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

package address

import (
	"errors"
	"strings"

	"go.nanomsg.org/mangos/v3"
)

// IsAddrInUse reports whether err means that an address is already bound,
// either by another socket in this process or by another process.
func IsAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, mangos.ErrAddrInUse) || isAddrInUseErrno(err) {
		return true
	}
	return strings.Contains(err.Error(), "address already in use")
}

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
	"time"

	"golang.org/x/sync/errgroup"
)

// StopAll gracefully stops every driver at once, and returns the first
// error any of them reported.
func StopAll(timeout time.Duration, drivers ...*Driver) error {
	var g errgroup.Group
	for _, d := range drivers {
		d := d
		g.Go(func() error {
			return d.GracefulStop(timeout)
		})
	}
	return g.Wait()
}

// Copyright 2024 privexec authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package passwd

import (
	"syscall"
)

// recordSize bounds the strings copied out of a single entry, like the
// fixed 16 KiB buffer handed to getpwnam_r. Overflowing it is the only
// source of AllocationFailed.
const recordSize = 16 * 1024

// record is the fixed-capacity buffer the strings of one entry are copied
// into before they leave the isolated thread.
type record struct {
	buf []byte
}

func newRecord() *record {
	return &record{buf: make([]byte, 0, recordSize)}
}

// dup copies s into the record and returns an independent copy of it.
func (r *record) dup(s string) (string, error) {
	if len(s) > cap(r.buf)-len(r.buf) {
		return "", syscall.ERANGE
	}
	start := len(r.buf)
	r.buf = append(r.buf, s...)
	return string(r.buf[start:]), nil
}

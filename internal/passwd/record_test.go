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
	"strings"
	"syscall"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestRecordDup(t *testing.T) {
	rec := newRecord()

	name, err := rec.dup("foo")
	assert.NilError(t, err)
	home, err := rec.dup("/home/foo")
	assert.NilError(t, err)

	assert.Check(t, is.Equal(name, "foo"))
	assert.Check(t, is.Equal(home, "/home/foo"))

	// Reusing the buffer must not alias earlier results.
	rec.buf = rec.buf[:0]
	_, err = rec.dup("bar")
	assert.NilError(t, err)
	assert.Check(t, is.Equal(name, "foo"))
}

func TestRecordOverflow(t *testing.T) {
	rec := newRecord()

	_, err := rec.dup(strings.Repeat("a", recordSize-1))
	assert.NilError(t, err)
	_, err = rec.dup("a")
	assert.NilError(t, err)
	_, err = rec.dup("a")
	assert.Check(t, is.ErrorIs(err, syscall.ERANGE))
}

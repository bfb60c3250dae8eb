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

package errdefs

import (
	"fmt"
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

func TestWrapfKeepsErrno(t *testing.T) {
	err := Wrapf(ChrootFailed, syscall.EPERM, "entering root %q", "/srv")

	assert.Check(t, Is(err, ChrootFailed))
	assert.Check(t, !Is(err, OpenFailed))
	assert.Check(t, errors.Is(err, syscall.EPERM))
	assert.Check(t, is.ErrorContains(err, `entering root "/srv"`))

	errno, ok := Errno(err)
	assert.Check(t, ok)
	assert.Check(t, is.Equal(errno, syscall.EPERM))
}

func TestWrapfNilError(t *testing.T) {
	err := Wrapf(WaitFailed, nil, "no result")
	assert.Check(t, Is(err, WaitFailed))
	assert.Check(t, is.Error(err, "no result"))

	_, ok := Errno(err)
	assert.Check(t, !ok)
}

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		kind Kind
	}{
		{name: "nil", err: nil, kind: Unknown},
		{name: "plain", err: errors.New("plain"), kind: Unknown},
		{name: "direct", err: Errorf(ProbeFailed, "nothing"), kind: ProbeFailed},
		{name: "wrapped", err: errors.Wrap(Errorf(LookupFailed, "bad"), "outer"), kind: LookupFailed},
		{name: "fmt wrapped", err: fmt.Errorf("outer: %w", Errorf(OpenFailed, "bad")), kind: OpenFailed},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Check(t, is.Equal(KindOf(tc.err), tc.kind))
		})
	}
	assert.Check(t, !Is(nil, Unknown))
}

func TestKindString(t *testing.T) {
	assert.Check(t, is.Equal(IdentitySwitchFailed.String(), "identity switch failed"))
	assert.Check(t, is.Equal(Kind(99).String(), "kind(99)"))
}

func TestFormatVerbose(t *testing.T) {
	err := Wrapf(AllocationFailed, syscall.ERANGE, "copying")
	assert.Check(t, is.Equal(fmt.Sprintf("%v", err), "copying: "+syscall.ERANGE.Error()))
	assert.Check(t, is.Contains(fmt.Sprintf("%+v", err), "allocation failed: "))
}

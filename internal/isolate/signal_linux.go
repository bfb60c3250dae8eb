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

package isolate

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// faultSignals are raised synchronously by the faulting instruction. The
// kernel kills the whole process when one of them arrives blocked, so they
// stay deliverable and runtime faults in a payload still become panics.
var faultSignals = []unix.Signal{
	unix.SIGSEGV,
	unix.SIGBUS,
	unix.SIGFPE,
	unix.SIGILL,
	unix.SIGTRAP,
	unix.SIGSYS,
}

// blockSignals blocks every asynchronous signal on the calling thread so no
// runtime handler runs on it while its identity is in transition. The mask
// is never restored; the thread is discarded with it.
func blockSignals() error {
	var set unix.Sigset_t
	for i := range set.Val {
		set.Val[i] = ^set.Val[i]
	}
	for _, sig := range faultSignals {
		sigdel(&set, sig)
	}
	return unix.PthreadSigmask(unix.SIG_BLOCK, &set, nil)
}

func sigdel(set *unix.Sigset_t, sig unix.Signal) {
	bits := uint(unsafe.Sizeof(set.Val[0])) * 8
	n := uint(sig) - 1
	set.Val[n/bits] &^= 1 << (n % bits)
}

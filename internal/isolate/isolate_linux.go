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
	"runtime"

	"github.com/docker/privexec/internal/errdefs"
	"golang.org/x/sys/unix"
)

func init() {
	// /proc/self and /proc/<pid> report the per-thread state of the startup
	// thread. Keep the main goroutine on it so an isolated goroutine can
	// never lock and discard it, which would leave the whole process
	// appearing to run with the switched ids, umask and root.
	runtime.LockOSThread()
}

// enter detaches the calling thread from the rest of the process, applies
// req and runs fn. It must be called on a locked thread that is discarded
// afterwards.
func enter(req Request, fn Payload) (int, error) {
	if err := blockSignals(); err != nil {
		return -1, errdefs.Wrapf(errdefs.ContextCreationFailed, err, "blocking signals")
	}

	// Under Linux, threads are processes sharing a virtual memory space, so
	// unshare(2) detaches the root, cwd and umask of this thread only.
	if err := unix.Unshare(unix.CLONE_FS); err != nil {
		return -1, errdefs.Wrapf(errdefs.ContextCreationFailed, err, "unsharing fs context")
	}

	if req.Root != "" {
		if err := chroot(req.Root); err != nil {
			return -1, errdefs.Wrapf(errdefs.ChrootFailed, err, "entering root %q", req.Root)
		}
	}

	if req.Identity != nil {
		return withIdentity(*req.Identity, fn)
	}
	return fn()
}

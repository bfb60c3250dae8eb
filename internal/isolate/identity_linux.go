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
	"github.com/docker/privexec/internal/errdefs"
	"golang.org/x/sys/unix"
)

// identityUmask is applied before any id changes so nothing created by the
// payload is ever accessible to other principals.
const identityUmask = 0o077

// withIdentity switches the calling thread to id and runs body.
//
// The group is switched before the user: once the euid is lowered the
// thread may no longer be allowed to change its gid. A failed switch leaves
// the thread half-switched, which is fine as it is about to be discarded.
func withIdentity(id Identity, body Payload) (int, error) {
	if id.UID < 0 || id.GID < 0 {
		return -1, errdefs.Wrapf(errdefs.IdentitySwitchFailed, unix.EINVAL, "invalid identity %s", id)
	}

	unix.Umask(identityUmask)

	if unix.Getegid() != id.GID {
		if err := setegid(id.GID); err != nil {
			return -1, errdefs.Wrapf(errdefs.IdentitySwitchFailed, err, "setting egid %d", id.GID)
		}
	}
	if unix.Geteuid() != id.UID {
		if err := seteuid(id.UID); err != nil {
			return -1, errdefs.Wrapf(errdefs.IdentitySwitchFailed, err, "setting euid %d", id.UID)
		}
	}

	return body()
}

// keep is the -1 id argument to setres[ug]id(2).
const keep = ^uintptr(0)

// The syscall and x/sys/unix setters apply to every thread of the process,
// so the per-thread system calls are issued directly.
func setegid(gid int) error {
	if _, _, errno := unix.RawSyscall(sysSetresgid, keep, uintptr(gid), keep); errno != 0 {
		return errno
	}
	return nil
}

func seteuid(uid int) error {
	if _, _, errno := unix.RawSyscall(sysSetresuid, keep, uintptr(uid), keep); errno != 0 {
		return errno
	}
	return nil
}

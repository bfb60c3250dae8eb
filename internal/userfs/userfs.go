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

// Package userfs performs filesystem operations as another user.
//
// Every operation runs on its own isolated thread that switches to the
// target effective uid/gid with a umask of 077, optionally after chrooting
// into a root filesystem. Permission checks therefore apply to the target
// user and anything created is owned by it and private to it.
package userfs

import (
	"context"
	"os"

	"github.com/docker/privexec/internal/errdefs"
	"github.com/docker/privexec/internal/isolate"
	"github.com/docker/privexec/internal/log"
	"golang.org/x/sys/unix"
)

// FS is a view of the filesystem as a given identity.
type FS struct {
	root string
	id   isolate.Identity
}

// As returns the filesystem as seen by uid and gid.
func As(uid, gid int) FS {
	return FS{id: isolate.Identity{UID: uid, GID: gid}}
}

// InRoot returns a copy of f that resolves paths inside root.
func (f FS) InRoot(root string) FS {
	f.root = root
	return f
}

func (f FS) run(ctx context.Context, fn isolate.Payload) (int, error) {
	id := f.id
	return isolate.Run(ctx, isolate.Request{Root: f.root, Identity: &id}, fn)
}

// OpenFile opens name as the identity. The descriptor belongs to the whole
// process and outlives the isolated thread; it is close-on-exec.
func (f FS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := f.run(ctx, func() (int, error) {
		fd, err := unix.Open(name, flag|unix.O_CLOEXEC, uint32(perm.Perm()))
		if err != nil {
			return -1, errdefs.Wrapf(errdefs.OperationFailed, &os.PathError{Op: "open", Path: name, Err: err}, "as %s", f.id)
		}
		return fd, nil
	})
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), name), nil
}

// Create creates or truncates name for writing as the identity.
func (f FS) Create(ctx context.Context, name string, perm os.FileMode) (*os.File, error) {
	return f.OpenFile(ctx, name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
}

// MkdirAll creates path and any missing parents as the identity. Existing
// directories are left alone, so calling it again is a no-op.
func (f FS) MkdirAll(ctx context.Context, path string, perm os.FileMode) error {
	_, err := f.run(ctx, func() (int, error) {
		if err := mkdirAll(path, uint32(perm.Perm())); err != nil {
			return -1, errdefs.Wrapf(errdefs.OperationFailed, err, "as %s", f.id)
		}
		return 0, nil
	})
	return err
}

// Rename renames oldpath to newpath as the identity.
func (f FS) Rename(ctx context.Context, oldpath, newpath string) error {
	_, err := f.run(ctx, func() (int, error) {
		if err := unix.Rename(oldpath, newpath); err != nil {
			return -1, errdefs.Wrapf(errdefs.OperationFailed, &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: err}, "as %s", f.id)
		}
		return 0, nil
	})
	if err == nil {
		log.WithFields("from", oldpath, "to", newpath, "identity", f.id).Tracef("renamed")
	}
	return err
}

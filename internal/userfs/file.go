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

package userfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// WriteFile replaces name with data as the identity. The data is written to
// a sibling temporary file that is renamed over name, so readers never see
// a partial file.
func (f FS) WriteFile(ctx context.Context, name string, data []byte, perm os.FileMode) error {
	tmp := filepath.Join(filepath.Dir(name), "."+filepath.Base(name)+".tmp-"+uuid.NewString())

	file, err := f.OpenFile(ctx, tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		f.remove(ctx, tmp)
		return errors.Wrapf(err, "writing %s", tmp)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		f.remove(ctx, tmp)
		return errors.Wrapf(err, "syncing %s", tmp)
	}
	if err := file.Close(); err != nil {
		f.remove(ctx, tmp)
		return err
	}

	if err := f.Rename(ctx, tmp, name); err != nil {
		f.remove(ctx, tmp)
		return err
	}
	return nil
}

// ReadFile reads name as the identity.
func (f FS) ReadFile(ctx context.Context, name string) ([]byte, error) {
	file, err := f.OpenFile(ctx, name, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// ReadDirNames lists the directory name as the identity, sorted.
func (f FS) ReadDirNames(ctx context.Context, name string) ([]string, error) {
	dir, err := f.OpenFile(ctx, name, os.O_RDONLY|unix.O_DIRECTORY, 0)
	if err != nil {
		return nil, err
	}
	defer dir.Close()

	names, err := dir.Readdirnames(-1)
	if err != nil {
		return nil, errors.Wrapf(err, "reading directory %s", name)
	}
	sort.Strings(names)
	return names, nil
}

// Lock takes an exclusive advisory lock on name, creating it as the identity
// if needed. The returned function releases the lock.
func (f FS) Lock(ctx context.Context, name string) (func() error, error) {
	file, err := f.OpenFile(ctx, name, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX); err != nil {
		file.Close()
		return nil, errors.Wrapf(&os.PathError{Op: "flock", Path: name, Err: err}, "as %s", f.id)
	}
	return func() error {
		if err := unix.Flock(int(file.Fd()), unix.LOCK_UN); err != nil {
			file.Close()
			return errors.Wrapf(err, "unlocking %s", name)
		}
		return file.Close()
	}, nil
}

// remove is best effort cleanup of a temporary file.
func (f FS) remove(ctx context.Context, name string) {
	f.run(ctx, func() (int, error) {
		return 0, unix.Unlink(name)
	})
}

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
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/docker/privexec/internal/errdefs"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/fs"
	"gotest.tools/v3/skip"
)

const (
	testPasswd = "root:x:0:0:root:/root:/bin/sh\nfoo:x:44:4242::/home/foo:/bin/false\n"
	testGroup  = "root:x:0:\nfoo:x:4242:\n"
)

func newRoot(t *testing.T, passwd, group string) *fs.Dir {
	t.Helper()
	return fs.NewDir(t, "passwd-root",
		fs.WithDir("etc",
			fs.WithFile("passwd", passwd),
			fs.WithFile("group", group)))
}

func TestLookupUser(t *testing.T) {
	skip.If(t, os.Geteuid() != 0, "chroot requires root")

	root := newRoot(t, testPasswd, testGroup)
	wd, err := os.Getwd()
	assert.NilError(t, err)

	usr, found, err := LookupUser(context.Background(), root.Path(), "foo")
	assert.NilError(t, err)
	assert.Check(t, found)
	assert.Check(t, is.DeepEqual(usr, User{Name: "foo", UID: 44, GID: 4242, Home: "/home/foo"}))

	after, err := os.Getwd()
	assert.NilError(t, err)
	assert.Check(t, is.Equal(after, wd))
	assert.Check(t, is.Equal(os.Geteuid(), 0))
}

func TestLookupUserNotFound(t *testing.T) {
	skip.If(t, os.Geteuid() != 0, "chroot requires root")

	root := newRoot(t, testPasswd, testGroup)
	usr, found, err := LookupUser(context.Background(), root.Path(), "bar")
	assert.NilError(t, err)
	assert.Check(t, !found)
	assert.Check(t, is.DeepEqual(usr, User{}))
}

func TestLookupGroup(t *testing.T) {
	skip.If(t, os.Geteuid() != 0, "chroot requires root")

	root := newRoot(t, testPasswd, testGroup)

	grp, found, err := LookupGroup(context.Background(), root.Path(), "foo")
	assert.NilError(t, err)
	assert.Check(t, found)
	assert.Check(t, is.DeepEqual(grp, Group{Name: "foo", GID: 4242}))

	_, found, err = LookupGroup(context.Background(), root.Path(), "bar")
	assert.NilError(t, err)
	assert.Check(t, !found)
}

func TestLookupMissingDatabase(t *testing.T) {
	skip.If(t, os.Geteuid() != 0, "chroot requires root")

	root := fs.NewDir(t, "passwd-root")
	_, _, err := LookupUser(context.Background(), root.Path(), "foo")
	assert.Check(t, errdefs.Is(err, errdefs.LookupFailed), "got %v", err)
}

func TestLookupUserTooLarge(t *testing.T) {
	skip.If(t, os.Geteuid() != 0, "chroot requires root")

	home := "/" + strings.Repeat("h", recordSize)
	root := newRoot(t, "big:x:1:1::"+home+":/bin/sh\n", testGroup)

	_, found, err := LookupUser(context.Background(), root.Path(), "big")
	assert.Check(t, errdefs.Is(err, errdefs.AllocationFailed), "got %v", err)
	assert.Check(t, !found)
}

func TestLookupBadRoot(t *testing.T) {
	_, _, err := LookupUser(context.Background(), filepath.Join(t.TempDir(), "missing"), "foo")
	assert.Check(t, errdefs.Is(err, errdefs.ChrootFailed), "got %v", err)
}

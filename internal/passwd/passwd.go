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

// Package passwd resolves users and groups against the passwd and group
// databases of another root filesystem.
//
// The lookup runs on an isolated thread chrooted into the root, so it sees
// the root's /etc/passwd and /etc/group rather than the host's, and the
// host process never changes its own root.
package passwd

import (
	"context"

	"github.com/docker/privexec/internal/errdefs"
	"github.com/docker/privexec/internal/isolate"
	"github.com/docker/privexec/internal/log"
	"github.com/moby/sys/user"
	"github.com/pkg/errors"
)

// User is a passwd entry copied out of a root.
type User struct {
	Name string `json:"name"`
	UID  int    `json:"uid"`
	GID  int    `json:"gid"`
	Home string `json:"home"`
}

// Group is a group entry copied out of a root.
type Group struct {
	Name string `json:"name"`
	GID  int    `json:"gid"`
}

// LookupUser looks up name in root's passwd database. A missing user is
// reported with found set to false and a nil error.
func LookupUser(ctx context.Context, root, name string) (usr User, found bool, err error) {
	_, err = isolate.Run(ctx, isolate.Request{Root: root}, func() (int, error) {
		u, err := user.LookupUser(name)
		if errors.Is(err, user.ErrNoPasswdEntries) {
			return 0, nil
		}
		if err != nil {
			return -1, errdefs.Wrapf(errdefs.LookupFailed, err, "looking up user %q", name)
		}

		// Copy out before the thread and its view of the root go away.
		rec := newRecord()
		if usr.Name, err = rec.dup(u.Name); err != nil {
			return -1, errdefs.Wrapf(errdefs.AllocationFailed, err, "copying user %q", name)
		}
		if usr.Home, err = rec.dup(u.Home); err != nil {
			return -1, errdefs.Wrapf(errdefs.AllocationFailed, err, "copying home of user %q", name)
		}
		usr.UID = u.Uid
		usr.GID = u.Gid
		found = true
		return 0, nil
	})
	if err != nil {
		return User{}, false, err
	}

	log.WithFields("root", root, "user", name, "found", found).Debugf("user lookup finished")
	return usr, found, nil
}

// LookupGroup looks up name in root's group database. A missing group is
// reported with found set to false and a nil error.
func LookupGroup(ctx context.Context, root, name string) (grp Group, found bool, err error) {
	_, err = isolate.Run(ctx, isolate.Request{Root: root}, func() (int, error) {
		g, err := user.LookupGroup(name)
		if errors.Is(err, user.ErrNoGroupEntries) {
			return 0, nil
		}
		if err != nil {
			return -1, errdefs.Wrapf(errdefs.LookupFailed, err, "looking up group %q", name)
		}

		rec := newRecord()
		if grp.Name, err = rec.dup(g.Name); err != nil {
			return -1, errdefs.Wrapf(errdefs.AllocationFailed, err, "copying group %q", name)
		}
		grp.GID = g.Gid
		found = true
		return 0, nil
	})
	if err != nil {
		return Group{}, false, err
	}

	log.WithFields("root", root, "group", name, "found", found).Debugf("group lookup finished")
	return grp, found, nil
}

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

package internal

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/docker/privexec/internal/log"
	"github.com/docker/privexec/internal/passwd"
	"github.com/docker/privexec/internal/userfs"
	"github.com/pkg/errors"
)

// ErrPrincipalNotFound is returned when a user or group is required but
// missing from the target's databases.
var ErrPrincipalNotFound = errors.New("principal not found")

// Target is a root filesystem being provisioned.
type Target struct {
	Path string
}

func (t Target) Name() string {
	if t.Path == "" {
		return "/"
	}
	return filepath.Base(t.Path)
}

func (t Target) LookupUser(ctx context.Context, name string) (passwd.User, error) {
	u, found, err := passwd.LookupUser(ctx, t.Path, name)
	if err != nil {
		return passwd.User{}, err
	}
	if !found {
		return passwd.User{}, errors.Wrapf(ErrPrincipalNotFound, "user %q in %s", name, t.Name())
	}
	return u, nil
}

func (t Target) LookupGroup(ctx context.Context, name string) (passwd.Group, error) {
	g, found, err := passwd.LookupGroup(ctx, t.Path, name)
	if err != nil {
		return passwd.Group{}, err
	}
	if !found {
		return passwd.Group{}, errors.Wrapf(ErrPrincipalNotFound, "group %q in %s", name, t.Name())
	}
	return g, nil
}

// HomeDir returns the host path of u's home directory.
func (t Target) HomeDir(u passwd.User) string {
	if t.Path == "" {
		return u.Home
	}
	return filepath.Join(t.Path, u.Home)
}

// FS returns the target's filesystem as seen by uid and gid.
func (t Target) FS(uid, gid int) userfs.FS {
	fs := userfs.As(uid, gid)
	if t.Path != "" {
		fs = fs.InRoot(t.Path)
	}
	return fs
}

const (
	sshDir               = ".ssh"
	authorizedKeysFile   = "authorized_keys"
	authorizedKeysDir    = "authorized_keys.d"
	authorizedKeysLock   = ".authorized_keys.d.lock"
	authorizedKeysHeader = "# auto-generated from " + authorizedKeysDir + ", do not edit\n"
)

// AuthorizeSSHKeys installs keys for user as the named fragment under
// ~/.ssh/authorized_keys.d and regenerates ~/.ssh/authorized_keys from all
// fragments in name order. Everything is created as the user.
func (t Target) AuthorizeSSHKeys(ctx context.Context, username, fragment string, keys []string) error {
	if err := validateFragment(fragment); err != nil {
		return err
	}

	u, err := t.LookupUser(ctx, username)
	if err != nil {
		return err
	}
	fs := t.FS(u.UID, u.GID)

	keysDir := filepath.Join(u.Home, sshDir, authorizedKeysDir)
	if err := fs.MkdirAll(ctx, keysDir, 0o700); err != nil {
		return err
	}

	// Serializes fragment updates with the regeneration of authorized_keys.
	unlock, err := fs.Lock(ctx, filepath.Join(u.Home, sshDir, authorizedKeysLock))
	if err != nil {
		return err
	}
	defer unlock()

	if err := fs.WriteFile(ctx, filepath.Join(keysDir, fragment), joinKeys(keys), 0o600); err != nil {
		return err
	}

	names, err := fs.ReadDirNames(ctx, keysDir)
	if err != nil {
		return err
	}
	var combined strings.Builder
	combined.WriteString(authorizedKeysHeader)
	for _, name := range names {
		if strings.HasPrefix(name, ".") {
			continue
		}
		data, err := fs.ReadFile(ctx, filepath.Join(keysDir, name))
		if err != nil {
			return err
		}
		combined.Write(data)
	}

	if err := fs.WriteFile(ctx, filepath.Join(u.Home, sshDir, authorizedKeysFile), []byte(combined.String()), 0o600); err != nil {
		return err
	}
	log.WithFields("target", t.Name(), "user", username, "fragment", fragment).Infof("authorized %d ssh keys", len(keys))
	return nil
}

func validateFragment(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, '/') || strings.HasPrefix(name, ".") {
		return errors.Errorf("invalid authorized keys fragment name %q", name)
	}
	return nil
}

func joinKeys(keys []string) []byte {
	var b strings.Builder
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		b.WriteString(k)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

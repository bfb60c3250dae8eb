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
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// mkdirAll creates every missing directory along path, shallowest first.
// It works on the calling thread's root and cwd, which is why it cannot
// simply be os.MkdirAll's caller-side stat walk.
func mkdirAll(path string, mode uint32) error {
	for _, dir := range ancestry(path) {
		err := unix.Mkdir(dir, mode)
		if err == nil {
			continue
		}
		if err != unix.EEXIST {
			return &os.PathError{Op: "mkdir", Path: dir, Err: err}
		}

		var st unix.Stat_t
		if err := unix.Stat(dir, &st); err != nil {
			return &os.PathError{Op: "stat", Path: dir, Err: err}
		}
		if st.Mode&unix.S_IFMT != unix.S_IFDIR {
			return &os.PathError{Op: "mkdir", Path: dir, Err: unix.ENOTDIR}
		}
	}
	return nil
}

// ancestry lists path and its parents from the outermost down, skipping "/"
// and ".". The empty path has no ancestry.
func ancestry(path string) []string {
	if path == "" {
		return nil
	}

	var dirs []string
	for p := filepath.Clean(path); p != "/" && p != "."; p = filepath.Dir(p) {
		dirs = append(dirs, p)
	}
	for i, j := 0, len(dirs)-1; i < j; i, j = i+1, j-1 {
		dirs[i], dirs[j] = dirs[j], dirs[i]
	}
	return dirs
}

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

package probe

import (
	"path/filepath"

	"github.com/moby/sys/mountinfo"
	"github.com/pkg/errors"
)

// DeviceForMount returns the source device mounted at mountpoint.
func DeviceForMount(mountpoint string) (string, error) {
	mp, err := filepath.Abs(mountpoint)
	if err != nil {
		return "", err
	}
	mounts, err := mountinfo.GetMounts(mountpointFilter(mp))
	if err != nil {
		return "", errors.Wrapf(err, "reading mounts for %s", mp)
	}
	if len(mounts) == 0 {
		return "", errors.Errorf("%s is not a mountpoint", mp)
	}
	// The last entry is the one visible at mountpoint.
	return mounts[len(mounts)-1].Source, nil
}

// mountpointFilter keeps every mount stacked on mp, in mount order.
func mountpointFilter(mp string) mountinfo.FilterFunc {
	return func(m *mountinfo.Info) (skip, stop bool) {
		return m.Mountpoint != mp, false
	}
}

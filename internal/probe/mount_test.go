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
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/moby/sys/mountinfo"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
	"gotest.tools/v3/skip"
)

func TestDeviceForMountNotMountpoint(t *testing.T) {
	skip.If(t, runtime.GOOS != "linux", "mountinfo is read from procfs")

	dir := filepath.Join(t.TempDir(), "plain")
	assert.NilError(t, os.Mkdir(dir, 0o755))

	_, err := DeviceForMount(dir)
	assert.Check(t, is.ErrorContains(err, "is not a mountpoint"))
}

func TestDeviceForMountRoot(t *testing.T) {
	skip.If(t, runtime.GOOS != "linux", "mountinfo is read from procfs")

	source, err := DeviceForMount("/")
	assert.NilError(t, err)
	assert.Check(t, source != "")
}

func TestMountpointFilterKeepsStackedMounts(t *testing.T) {
	filter := mountpointFilter("/mnt")
	mounts := []*mountinfo.Info{
		{Mountpoint: "/mnt", Source: "/dev/sda1"},
		{Mountpoint: "/mnt/sub", Source: "/dev/sdb1"},
		{Mountpoint: "/mnt", Source: "/dev/sdc1"},
	}

	var sources []string
	for _, m := range mounts {
		skipped, stopped := filter(m)
		assert.Check(t, !stopped)
		if !skipped {
			sources = append(sources, m.Source)
		}
	}
	assert.Check(t, is.DeepEqual(sources, []string{"/dev/sda1", "/dev/sdc1"}))
}

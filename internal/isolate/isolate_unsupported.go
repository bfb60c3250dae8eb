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

//go:build !linux

package isolate

import (
	"syscall"

	"github.com/docker/privexec/internal/errdefs"
)

// Only Linux lets a single thread own its root, umask and effective ids.
func enter(req Request, fn Payload) (int, error) {
	return -1, errdefs.Wrapf(errdefs.ContextCreationFailed, syscall.ENOTSUP, "isolated threads are not supported on this platform")
}

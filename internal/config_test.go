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
	"os"
	"path/filepath"
	"testing"

	"github.com/docker/privexec/internal/isolate"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

// unsetenv removes name for the duration of the test.
func unsetenv(t *testing.T, name string) {
	t.Helper()
	t.Setenv(name, "")
	assert.NilError(t, os.Unsetenv(name))
}

func TestConfigDefaults(t *testing.T) {
	for _, name := range []string{envRoot, envProber, envMaxThreads, envLogLevel} {
		unsetenv(t, name)
	}

	cfg, err := NewConfigFromEnvironment()
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(*cfg, Config{
		Root:       "",
		MaxThreads: isolate.DefaultMaxThreads,
		LogLevel:   defaultLogLevel,
	}))
}

func TestConfigFromEnvironment(t *testing.T) {
	root := t.TempDir()
	t.Setenv(envRoot, root)
	t.Setenv(envProber, "native")
	t.Setenv(envMaxThreads, "8")
	t.Setenv(envLogLevel, "debug")

	cfg, err := NewConfigFromEnvironment()
	assert.NilError(t, err)
	assert.Check(t, is.DeepEqual(*cfg, Config{
		Root:       root,
		Prober:     "native",
		MaxThreads: 8,
		LogLevel:   "debug",
	}))
}

func TestConfigInvalid(t *testing.T) {
	testCases := []struct {
		name     string
		env      map[string]string
		expected string
	}{
		{
			name:     "missing root",
			env:      map[string]string{envRoot: filepath.Join(t.TempDir(), "missing")},
			expected: `variable "PRIVEXEC_ROOT"`,
		},
		{
			name:     "threads not a number",
			env:      map[string]string{envMaxThreads: "many"},
			expected: `variable "PRIVEXEC_MAX_THREADS" ("many") is not a number`,
		},
		{
			name:     "threads not positive",
			env:      map[string]string{envMaxThreads: "0"},
			expected: `variable "PRIVEXEC_MAX_THREADS" must be positive`,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			unsetenv(t, envRoot)
			unsetenv(t, envMaxThreads)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := NewConfigFromEnvironment()
			assert.Check(t, is.ErrorContains(err, tc.expected))
		})
	}
}

func TestLoadPathFromEnvironment(t *testing.T) {
	const name = "PRIVEXEC_TEST_PATH"
	unsetenv(t, name)

	_, err := loadPathFromEnvironment(name, true)
	assert.Check(t, is.ErrorContains(err, `required variable "PRIVEXEC_TEST_PATH" not set`))

	p, err := loadPathFromEnvironment(name, false)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(p, ""))

	dir := t.TempDir()
	t.Setenv(name, dir)
	p, err = loadPathFromEnvironment(name, true)
	assert.NilError(t, err)
	assert.Check(t, is.Equal(p, dir))
}

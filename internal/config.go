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
	"strconv"

	"github.com/docker/privexec/internal/isolate"
	"github.com/pkg/errors"
)

type Config struct {
	// Root is the filesystem tree operations resolve paths in. Empty means
	// the host root.
	Root       string
	Prober     string
	MaxThreads int64
	LogLevel   string
}

const (
	envLogLevel   = "LOG_LEVEL"
	envRoot       = "PRIVEXEC_ROOT"
	envProber     = "PRIVEXEC_PROBER"
	envMaxThreads = "PRIVEXEC_MAX_THREADS"
)

const defaultLogLevel = "warn"

func NewConfigFromEnvironment() (*Config, error) {
	root, err := loadPathFromEnvironment(envRoot, false)
	if err != nil {
		return nil, err
	}

	maxThreads := int64(isolate.DefaultMaxThreads)
	if v, ok := os.LookupEnv(envMaxThreads); ok {
		maxThreads, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "variable %q (%q) is not a number", envMaxThreads, v)
		}
		if maxThreads <= 0 {
			return nil, errors.Errorf("variable %q must be positive, got %d", envMaxThreads, maxThreads)
		}
	}

	level, ok := os.LookupEnv(envLogLevel)
	if !ok {
		level = defaultLogLevel
	}

	cfg := Config{
		Root:       root,
		Prober:     os.Getenv(envProber),
		MaxThreads: maxThreads,
		LogLevel:   level,
	}
	return &cfg, nil
}

func loadPathFromEnvironment(name string, required bool) (string, error) {
	p, ok := os.LookupEnv(name)
	if !ok {
		if !required {
			return "", nil
		}
		return "", errors.Errorf("required variable %q not set", name)
	}

	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", errors.Wrapf(err, "variable %q (%q) does not exist", name, p)
		}
		return "", err
	}
	return p, nil
}

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

package main

import (
	"fmt"
	"os"

	"github.com/anchore/go-logger"
	alogrus "github.com/anchore/go-logger/adapter/logrus"
	"github.com/docker/privexec/internal"
	"github.com/docker/privexec/internal/errdefs"
	"github.com/docker/privexec/internal/log"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := internal.NewConfigFromEnvironment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "privexec: %v\n", err)
		os.Exit(exitUsage)
	}

	cmd := newRootCommand(cfg)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "privexec: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func enableLogs(level string, jsonFormat bool) error {
	cfg := alogrus.Config{
		EnableConsole: true,
		Level:         logger.Level(level),
	}
	if jsonFormat {
		cfg.Formatter = alogrus.DefaultJSONFormatter()
	}
	// Drive the standard logrus logger so direct logrus calls share the
	// same level and output.
	logWrapper, err := alogrus.Use(logrus.StandardLogger(), cfg)
	if err != nil {
		return err
	}
	log.Set(logWrapper.Nested("from-lib", "privexec"))
	return nil
}

const (
	exitFailure  = 1
	exitUsage    = 2
	exitNotFound = 3
)

var kindExitCodes = map[errdefs.Kind]int{
	errdefs.ResourceExhausted:     10,
	errdefs.ContextCreationFailed: 11,
	errdefs.WaitFailed:            12,
	errdefs.ChrootFailed:          13,
	errdefs.IdentitySwitchFailed:  14,
	errdefs.AllocationFailed:      15,
	errdefs.OpenFailed:            16,
	errdefs.ProbeFailed:           17,
	errdefs.LookupFailed:          18,
	errdefs.OperationFailed:       19,
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if errors.Is(err, internal.ErrPrincipalNotFound) {
		return exitNotFound
	}
	var usage usageError
	if errors.As(err, &usage) {
		return exitUsage
	}
	if code, ok := kindExitCodes[errdefs.KindOf(err)]; ok {
		return code
	}
	return exitFailure
}

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

package log

import (
	"sync"

	"github.com/anchore/go-logger"
	alogrus "github.com/anchore/go-logger/adapter/logrus"
)

var (
	mu  sync.RWMutex
	log = discard()
)

// discard builds a logger with no console, no file and logging disabled.
func discard() logger.Logger {
	l, err := alogrus.New(alogrus.Config{Level: logger.DisabledLevel})
	if err != nil {
		panic(err)
	}
	return l
}

// Set replaces the process logger. A nil logger disables logging.
func Set(l logger.Logger) {
	if l == nil {
		l = discard()
	}
	mu.Lock()
	log = l
	mu.Unlock()
}

// Get returns the current process logger.
func Get() logger.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Nested returns a logger that attaches the key-value pairs to every entry.
func Nested(fields ...interface{}) logger.Logger {
	return Get().Nested(fields...)
}

func WithFields(fields ...interface{}) logger.MessageLogger {
	return Get().WithFields(fields...)
}

func Errorf(format string, args ...interface{}) {
	Get().Errorf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Get().Warnf(format, args...)
}

func Infof(format string, args ...interface{}) {
	Get().Infof(format, args...)
}

func Debugf(format string, args ...interface{}) {
	Get().Debugf(format, args...)
}

func Tracef(format string, args ...interface{}) {
	Get().Tracef(format, args...)
}

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
	"testing"

	"github.com/anchore/go-logger"
	alogrus "github.com/anchore/go-logger/adapter/logrus"
	"gotest.tools/v3/assert"
)

func TestSetAndReset(t *testing.T) {
	l, err := alogrus.New(alogrus.Config{Level: logger.DebugLevel})
	assert.NilError(t, err)

	Set(l)
	defer Set(nil)
	assert.Check(t, Get() == l)

	Nested("component", "test").Debugf("nested")
	WithFields("key", "value").Infof("fields")

	Set(nil)
	assert.Check(t, Get() != nil)
	assert.Check(t, Get() != l)
	Errorf("discarded")
}

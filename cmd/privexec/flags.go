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
	"strconv"

	"github.com/spf13/pflag"
)

// modeValue is an octal file permission flag.
type modeValue os.FileMode

var _ pflag.Value = (*modeValue)(nil)

func newModeValue(def os.FileMode, p *os.FileMode) *modeValue {
	*p = def
	return (*modeValue)(p)
}

func (m *modeValue) Set(s string) error {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return fmt.Errorf("invalid mode %q: must be octal", s)
	}
	if v&^uint64(os.ModePerm) != 0 {
		return fmt.Errorf("invalid mode %q: only permission bits are allowed", s)
	}
	*m = modeValue(v)
	return nil
}

func (m *modeValue) String() string {
	return fmt.Sprintf("%04o", uint32(*m))
}

func (m *modeValue) Type() string {
	return "mode"
}

// identityFlags are the --uid and --gid flags shared by the file commands.
type identityFlags struct {
	uid int
	gid int
}

func (f *identityFlags) install(flags *pflag.FlagSet) {
	flags.IntVar(&f.uid, "uid", os.Getuid(), "effective user id to act as")
	flags.IntVar(&f.gid, "gid", os.Getgid(), "effective group id to act as")
}

// usageError marks errors in the command line itself.
type usageError struct {
	error
}

func (e usageError) Unwrap() error {
	return e.error
}

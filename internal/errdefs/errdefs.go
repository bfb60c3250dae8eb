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

// Package errdefs defines the failure kinds shared by the isolated executor,
// its adapters and the device probe.
//
// Every failure is reported as an *Error carrying a Kind. The underlying
// error, usually a syscall.Errno, stays reachable through errors.As and
// errors.Is so callers can still inspect the originating OS error code.
//
// A principal or field that does not exist is not a failure and has no Kind.
package errdefs

import (
	"fmt"
	"syscall"

	"github.com/pkg/errors"
)

// Kind classifies a failure.
type Kind int

const (
	Unknown Kind = iota
	ResourceExhausted
	ContextCreationFailed
	WaitFailed
	ChrootFailed
	IdentitySwitchFailed
	AllocationFailed
	OpenFailed
	ProbeFailed
	LookupFailed
	OperationFailed
)

var kindNames = map[Kind]string{
	Unknown:               "unknown",
	ResourceExhausted:     "resource exhausted",
	ContextCreationFailed: "context creation failed",
	WaitFailed:            "wait failed",
	ChrootFailed:          "chroot failed",
	IdentitySwitchFailed:  "identity switch failed",
	AllocationFailed:      "allocation failed",
	OpenFailed:            "open failed",
	ProbeFailed:           "probe failed",
	LookupFailed:          "lookup failed",
	OperationFailed:       "operation failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Format keeps the stack recorded by pkg/errors reachable through %+v.
func (e *Error) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') && e.Err != nil {
		fmt.Fprintf(s, "%s: %+v", e.Kind, e.Err)
		return
	}
	fmt.Fprint(s, e.Error())
}

// Wrapf classifies err as kind, annotating it with a message. A nil err
// still produces a failure so callers can report kinds without an errno.
func Wrapf(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return Errorf(kind, format, args...)
	}
	return &Error{Kind: kind, Err: errors.Wrapf(err, format, args...)}
}

// Errorf creates a failure of the given kind.
func Errorf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Err: errors.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Errno returns the OS error code preserved in err's chain.
func Errno(err error) (syscall.Errno, bool) {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno, true
	}
	return 0, false
}

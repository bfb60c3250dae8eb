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

// Package probe reads filesystem metadata fields such as TYPE, UUID and
// LABEL from block devices and images.
//
// Probing is read-only and needs no isolation. A field the device does not
// carry is not an error: it reads as the empty string.
package probe

import (
	"bytes"
	"os/exec"

	"github.com/docker/privexec/internal/errdefs"
	"github.com/docker/privexec/internal/log"
	"github.com/pkg/errors"
)

const (
	FieldType  = "TYPE"
	FieldUUID  = "UUID"
	FieldLabel = "LABEL"
)

// valueSize is the buffer Lookup reads values into.
const valueSize = 256

// Prober opens probe sessions on devices.
type Prober interface {
	Open(device string) (Session, error)
}

// Session is a single probe of one device.
type Session interface {
	// Probe identifies the device. It is called exactly once per session.
	Probe() error
	// Lookup returns the value of field, with ok false if the device has
	// no such field.
	Lookup(field string) (value string, ok bool, err error)
	Close() error
}

// errNothingFound is returned by Probe when no known signature is present.
// It is the only probe failure read as "no filesystem".
var errNothingFound = errors.New("no filesystem signature found")

// Field probes device once and copies the value of field into buf.
//
// At most len(buf)-1 bytes are copied and the result is always NUL
// terminated; longer values are silently truncated. A missing field yields
// an empty string. It returns the number of value bytes written.
func Field(p Prober, device, field string, buf []byte) (int, error) {
	s, err := p.Open(device)
	if err != nil {
		return 0, errdefs.Wrapf(errdefs.OpenFailed, err, "failed to open %q", device)
	}
	defer s.Close()

	if err := s.Probe(); err != nil {
		return 0, errdefs.Wrapf(errdefs.ProbeFailed, err, "failed to probe %q", device)
	}

	value, ok, err := s.Lookup(field)
	if err != nil {
		return 0, errdefs.Wrapf(errdefs.LookupFailed, err, "failed to lookup %s of %q", field, device)
	}
	if !ok {
		value = ""
	}

	n := fill(buf, value)
	log.WithFields("device", device, "field", field, "present", ok).Tracef("probed %d bytes", n)
	return n, nil
}

func fill(buf []byte, value string) int {
	if len(buf) == 0 {
		return 0
	}
	n := copy(buf[:len(buf)-1], value)
	buf[n] = 0
	return n
}

// Lookup returns the value of field on device, truncated to 255 bytes.
func Lookup(p Prober, device, field string) (string, error) {
	var buf [valueSize]byte
	n, err := Field(p, device, field, buf[:])
	if err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf[:n], "\x00")), nil
}

func FilesystemType(p Prober, device string) (string, error) {
	return filesystemLookup(p, device, FieldType)
}

func FilesystemUUID(p Prober, device string) (string, error) {
	return filesystemLookup(p, device, FieldUUID)
}

func FilesystemLabel(p Prober, device string) (string, error) {
	return filesystemLookup(p, device, FieldLabel)
}

func filesystemLookup(p Prober, device, field string) (string, error) {
	value, err := Lookup(p, device, field)
	if errdefs.Is(err, errdefs.ProbeFailed) && errors.Is(err, errNothingFound) {
		// If the probe failed, there's no filesystem created yet on this device
		log.Debugf("no filesystem found on %q: %v", device, err)
		return "", nil
	}
	return value, err
}

// New returns the prober called name: "blkid", "native", or "auto" (or
// empty), which picks blkid when it is installed.
func New(name string) (Prober, error) {
	switch name {
	case "blkid":
		return Blkid{}, nil
	case "native":
		return Native{}, nil
	case "", "auto":
		if path, err := exec.LookPath(blkidBinary); err == nil {
			return Blkid{Path: path}, nil
		}
		log.Debugf("%s not found, using native prober", blkidBinary)
		return Native{}, nil
	default:
		return nil, errors.Errorf("unknown prober %q", name)
	}
}

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
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Native probes by reading well-known superblock signatures directly. It
// recognizes ext2/3/4, xfs, btrfs, swap and vfat.
type Native struct{}

func (Native) Open(device string) (Session, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, err
	}
	return &nativeSession{file: f}, nil
}

type nativeSession struct {
	file   *os.File
	values map[string]string
}

// detector inspects r and returns the fields of the filesystem it
// recognizes, or nil if r does not carry its signature.
type detector func(r io.ReaderAt) (map[string]string, error)

var detectors = []detector{
	detectBtrfs,
	detectXFS,
	detectExt,
	detectSwap,
	detectVFAT,
}

func (s *nativeSession) Probe() error {
	if s.values != nil {
		return errors.Errorf("%s already probed", s.file.Name())
	}
	for _, detect := range detectors {
		values, err := detect(s.file)
		if err != nil {
			return errors.Wrapf(err, "reading %s", s.file.Name())
		}
		if values != nil {
			s.values = values
			return nil
		}
	}
	return errNothingFound
}

func (s *nativeSession) Lookup(field string) (string, bool, error) {
	if s.values == nil {
		return "", false, errors.Errorf("%s has not been probed", s.file.Name())
	}
	v, ok := s.values[field]
	return v, ok, nil
}

func (s *nativeSession) Close() error {
	return s.file.Close()
}

// readAt reads n bytes at off. A device too small to hold the region
// returns nil without an error.
func readAt(r io.ReaderAt, off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := r.ReadAt(buf, off); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, nil
		}
		return nil, err
	}
	return buf, nil
}

// fields builds the value map, leaving out empty values.
func fields(typ, id, label string) map[string]string {
	values := map[string]string{FieldType: typ}
	if id != "" {
		values[FieldUUID] = id
	}
	if label != "" {
		values[FieldLabel] = label
	}
	return values
}

func uuidString(b []byte) string {
	id, err := uuid.FromBytes(b)
	if err != nil || id == uuid.Nil {
		return ""
	}
	return id.String()
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

const (
	extSuperblockOffset = 1024
	extMagic            = 0xEF53

	extCompatHasJournal   = 0x0004
	extIncompatJournalDev = 0x0008
	// Feature bits an ext3 driver understands; anything else is ext4.
	ext3IncompatSupported = 0x0002 | 0x0004 | 0x0010
	ext3RoCompatSupported = 0x0001 | 0x0002 | 0x0004
)

func detectExt(r io.ReaderAt) (map[string]string, error) {
	sb, err := readAt(r, extSuperblockOffset, 1024)
	if sb == nil || err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint16(sb[0x38:]) != extMagic {
		return nil, nil
	}
	compat := binary.LittleEndian.Uint32(sb[0x5c:])
	incompat := binary.LittleEndian.Uint32(sb[0x60:])
	roCompat := binary.LittleEndian.Uint32(sb[0x64:])

	var typ string
	switch {
	case incompat&extIncompatJournalDev != 0:
		typ = "jbd"
	case incompat&^ext3IncompatSupported != 0, roCompat&^ext3RoCompatSupported != 0:
		typ = "ext4"
	case compat&extCompatHasJournal != 0:
		typ = "ext3"
	default:
		typ = "ext2"
	}
	return fields(typ, uuidString(sb[0x68:0x78]), cstring(sb[0x78:0x88])), nil
}

func detectXFS(r io.ReaderAt) (map[string]string, error) {
	sb, err := readAt(r, 0, 512)
	if sb == nil || err != nil {
		return nil, err
	}
	if !bytes.Equal(sb[0:4], []byte("XFSB")) {
		return nil, nil
	}
	return fields("xfs", uuidString(sb[32:48]), cstring(sb[108:120])), nil
}

const btrfsSuperblockOffset = 0x10000

func detectBtrfs(r io.ReaderAt) (map[string]string, error) {
	sb, err := readAt(r, btrfsSuperblockOffset, 0x1000)
	if sb == nil || err != nil {
		return nil, err
	}
	if !bytes.Equal(sb[0x40:0x48], []byte("_BHRfS_M")) {
		return nil, nil
	}
	return fields("btrfs", uuidString(sb[0x20:0x30]), cstring(sb[0x12b:0x22b])), nil
}

var swapPageSizes = []int64{4096, 8192, 16384, 65536}

func detectSwap(r io.ReaderAt) (map[string]string, error) {
	for _, pageSize := range swapPageSizes {
		magic, err := readAt(r, pageSize-10, 10)
		if err != nil {
			return nil, err
		}
		if magic == nil {
			return nil, nil
		}
		switch string(magic) {
		case "SWAP-SPACE":
			return fields("swap", "", ""), nil
		case "SWAPSPACE2":
			hdr, err := readAt(r, 1024, 64)
			if hdr == nil || err != nil {
				return nil, err
			}
			return fields("swap", uuidString(hdr[12:28]), cstring(hdr[28:44])), nil
		}
	}
	return nil, nil
}

// vfatNoLabel is what mkfs writes when no volume label was given.
const vfatNoLabel = "NO NAME"

func detectVFAT(r io.ReaderAt) (map[string]string, error) {
	bs, err := readAt(r, 0, 512)
	if bs == nil || err != nil {
		return nil, err
	}
	if bs[510] != 0x55 || bs[511] != 0xAA {
		return nil, nil
	}

	var serial, label []byte
	switch {
	case bytes.Equal(bs[82:90], []byte("FAT32   ")):
		serial, label = bs[67:71], bs[71:82]
	case bytes.HasPrefix(bs[54:62], []byte("FAT1")), bytes.Equal(bs[54:62], []byte("FAT     ")):
		serial, label = bs[39:43], bs[43:54]
	default:
		return nil, nil
	}

	id := binary.LittleEndian.Uint32(serial)
	name := strings.TrimRight(cstring(label), " ")
	if name == vfatNoLabel {
		name = ""
	}
	var uuidStr string
	if id != 0 {
		uuidStr = fmt.Sprintf("%04X-%04X", id>>16, id&0xffff)
	}
	return fields("vfat", uuidStr, name), nil
}

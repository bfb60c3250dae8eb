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
	"bufio"
	"bytes"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

const blkidBinary = "blkid"

// blkidNothingFound is blkid's exit status when no signature was identified.
const blkidNothingFound = 2

// Blkid probes with the util-linux blkid tool in low-level probe mode,
// bypassing its cache.
type Blkid struct {
	// Path to the blkid binary; looked up in PATH when empty.
	Path string
}

func (b Blkid) Open(device string) (Session, error) {
	bin := b.Path
	if bin == "" {
		bin = blkidBinary
	}
	bin, err := exec.LookPath(bin)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(device)
	if err != nil {
		return nil, err
	}
	return &blkidSession{bin: bin, device: device, file: f}, nil
}

type blkidSession struct {
	bin    string
	device string
	file   *os.File
	values map[string]string
}

func (s *blkidSession) Probe() error {
	if s.values != nil {
		return errors.Errorf("%s already probed", s.device)
	}

	// Probe the descriptor opened by Open, which blkid sees as fd 3.
	cmd := exec.Command(s.bin, "-p", "-o", "export", "/dev/fd/3")
	cmd.ExtraFiles = []*os.File{s.file}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == blkidNothingFound {
			return errNothingFound
		}
		return errors.Wrapf(err, "%s: %s", s.bin, strings.TrimSpace(stderr.String()))
	}

	values, err := parseExport(out)
	if err != nil {
		return err
	}
	s.values = values
	return nil
}

func (s *blkidSession) Lookup(field string) (string, bool, error) {
	if s.values == nil {
		return "", false, errors.Errorf("%s has not been probed", s.device)
	}
	v, ok := s.values[field]
	return v, ok, nil
}

func (s *blkidSession) Close() error {
	return s.file.Close()
}

// parseExport parses blkid's export format: one KEY=value pair per line
// with shell-special characters in values escaped by a backslash.
func parseExport(out []byte) (map[string]string, error) {
	values := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			return nil, errors.Errorf("malformed blkid output line %q", line)
		}
		values[key] = unescape(value)
	}
	return values, scanner.Err()
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		b.WriteByte(c)
	}
	return b.String()
}

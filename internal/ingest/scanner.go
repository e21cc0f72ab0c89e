// internal/ingest/scanner.go
package ingest

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/goburrow/serial"
)

// lineScanner accumulates bytes from a serial port into newline
// terminated records. Read timeouts are not errors: the port is quiet
// between frames, so a timeout simply means no complete line yet.
type lineScanner struct {
	r    io.Reader
	buf  bytes.Buffer
	read [256]byte
}

func newLineScanner(r io.Reader) *lineScanner {
	return &lineScanner{r: r}
}

// Next returns the next complete line with the terminator stripped, or
// "" when no full line has arrived yet. Non-UTF8 bytes from a noisy
// link are dropped rather than failing the record.
func (s *lineScanner) Next() (string, error) {
	if line, ok := s.takeLine(); ok {
		return line, nil
	}

	n, err := s.r.Read(s.read[:])
	if n > 0 {
		s.buf.Write(s.read[:n])
	}
	if err != nil {
		if errors.Is(err, serial.ErrTimeout) {
			line, _ := s.takeLine()
			return line, nil
		}
		return "", err
	}

	line, _ := s.takeLine()
	return line, nil
}

func (s *lineScanner) takeLine() (string, bool) {
	raw := s.buf.Bytes()
	i := bytes.IndexByte(raw, '\n')
	if i < 0 {
		return "", false
	}
	line := string(raw[:i])
	s.buf.Next(i + 1)

	line = strings.TrimRight(line, "\r")
	line = strings.ToValidUTF8(line, "")
	return strings.TrimSpace(line), true
}

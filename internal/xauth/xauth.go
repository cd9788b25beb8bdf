// Package xauth reads and writes Xauthority files.
package xauth

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmylchreest/vigil/internal/auth"
)

// Address families understood by Xlib.
const (
	FamilyLocal uint16 = 256
	FamilyWild  uint16 = 65535
)

// MagicCookieName is the only authorization protocol vigil issues.
const MagicCookieName = "MIT-MAGIC-COOKIE-1"

// Entry is one record of an Xauthority file.
type Entry struct {
	Family  uint16
	Address string
	Number  string
	Name    string
	Data    []byte
}

// EntriesFor returns the records needed for display to accept cookie:
// a local-host entry and a wildcard entry.
func EntriesFor(display string, cookie auth.Cookie) ([]Entry, error) {
	number, err := DisplayNumber(display)
	if err != nil {
		return nil, err
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	return []Entry{
		{Family: FamilyLocal, Address: hostname, Number: number, Name: MagicCookieName, Data: cookie},
		{Family: FamilyWild, Number: number, Name: MagicCookieName, Data: cookie},
	}, nil
}

// DisplayNumber extracts "0" from ":0" or ":0.1".
func DisplayNumber(display string) (string, error) {
	idx := strings.LastIndex(display, ":")
	if idx < 0 || idx == len(display)-1 {
		return "", fmt.Errorf("invalid display %q", display)
	}
	number := display[idx+1:]
	if dot := strings.Index(number, "."); dot >= 0 {
		number = number[:dot]
	}
	for _, r := range number {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("invalid display %q", display)
		}
	}
	return number, nil
}

// Write encodes entries in Xauthority format.
func Write(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if err := binary.Write(bw, binary.BigEndian, e.Family); err != nil {
			return err
		}
		for _, field := range [][]byte{[]byte(e.Address), []byte(e.Number), []byte(e.Name), e.Data} {
			if err := writeField(bw, field); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func writeField(w io.Writer, b []byte) error {
	if len(b) > 0xffff {
		return fmt.Errorf("xauth field too long: %d bytes", len(b))
	}
	if err := binary.Write(w, binary.BigEndian, uint16(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// Read decodes every entry from r.
func Read(r io.Reader) ([]Entry, error) {
	br := bufio.NewReader(r)
	var entries []Entry
	for {
		var e Entry
		if err := binary.Read(br, binary.BigEndian, &e.Family); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return nil, err
		}
		fields := make([][]byte, 4)
		for i := range fields {
			b, err := readField(br)
			if err != nil {
				return nil, fmt.Errorf("truncated xauth entry: %w", err)
			}
			fields[i] = b
		}
		e.Address = string(fields[0])
		e.Number = string(fields[1])
		e.Name = string(fields[2])
		e.Data = fields[3]
		entries = append(entries, e)
	}
}

func readField(r io.Reader) ([]byte, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// WriteFile atomically writes an Xauthority file granting display access via cookie.
// The file is created 0600 under a random name in the target directory and
// renamed into place, so a planted symlink at path or beside it is replaced
// rather than followed. When uid/gid are >= 0 the file is chowned to them.
func WriteFile(path, display string, cookie auth.Cookie, uid, gid int) error {
	entries, err := EntriesFor(display, cookie)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0711); err != nil {
		return fmt.Errorf("failed to create xauth directory: %w", err)
	}

	// CreateTemp opens with O_EXCL and mode 0600.
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create xauth file: %w", err)
	}
	tmpPath := f.Name()
	fail := func(msg string, err error) error {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%s: %w", msg, err)
	}

	if uid >= 0 && gid >= 0 {
		if err := f.Chown(uid, gid); err != nil {
			return fail("failed to chown xauth file", err)
		}
	}
	if err := Write(f, entries); err != nil {
		return fail("failed to write xauth file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close xauth file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to install xauth file: %w", err)
	}
	return nil
}

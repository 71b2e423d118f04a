// Package logbook persists the supervisor's combined log stream to a file
// that is trimmed in place once it outgrows a ceiling.
package logbook

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultTailLines is how many lines Snapshot replays.
	DefaultTailLines = 200
	tailWindow       = 256 * 1024
)

// Book is an append-only log file with size-bounded rotation. Every
// maintenance or write failure is swallowed.
type Book struct {
	mu        sync.Mutex
	path      string
	maxBytes  int64
	keepBytes int64
	tailLines int
	now       func() time.Time
}

// New builds a Book. keepBytes <= 0 keeps half of maxBytes; maxBytes <= 0
// disables trimming.
func New(path string, maxBytes, keepBytes int64) *Book {
	if keepBytes <= 0 {
		keepBytes = maxBytes / 2
	}
	return &Book{
		path:      path,
		maxBytes:  maxBytes,
		keepBytes: keepBytes,
		tailLines: DefaultTailLines,
		now:       time.Now,
	}
}

// Append trims the file when needed and appends line.
func (b *Book) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trim()
	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	_, _ = f.WriteString(line + "\n")
	_ = f.Close()
}

// trim keeps the last keepBytes cut at the next line boundary and prepends a
// rotation marker.
func (b *Book) trim() {
	if b.maxBytes <= 0 {
		return
	}
	info, err := os.Stat(b.path)
	if err != nil || info.Size() <= b.maxBytes {
		return
	}
	data, err := os.ReadFile(b.path)
	if err != nil {
		return
	}
	tail := data
	if int64(len(data)) > b.keepBytes {
		tail = data[int64(len(data))-b.keepBytes:]
	}
	if i := bytes.IndexByte(tail, '\n'); i >= 0 {
		tail = tail[i+1:]
	}
	marker := "[supervisor] log trimmed at " + b.now().UTC().Format(time.RFC3339) + "\n"
	_ = os.WriteFile(b.path, append([]byte(marker), tail...), 0o600)
}

// Snapshot returns up to the last DefaultTailLines lines, oldest first.
func (b *Book) Snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	f, err := os.Open(b.path)
	if err != nil {
		return nil
	}
	defer f.Close() //nolint:errcheck // read-only
	info, err := f.Stat()
	if err != nil {
		return nil
	}
	offset := info.Size() - tailWindow
	if offset < 0 {
		offset = 0
	}
	data, err := io.ReadAll(io.NewSectionReader(f, offset, info.Size()-offset))
	if err != nil {
		return nil
	}
	text := string(data)
	if offset > 0 {
		if i := strings.IndexByte(text, '\n'); i >= 0 {
			text = text[i+1:]
		}
	}
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil
	}
	if len(lines) > b.tailLines {
		lines = lines[len(lines)-b.tailLines:]
	}
	return lines
}

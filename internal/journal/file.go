package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// FileSink persists entries as JSON lines in a local file. It is meant for a
// single client and keeps no index, so it relies on the reconciler's ledger
// to avoid duplicates within a snapshot epoch.
type FileSink struct {
	mu     sync.Mutex
	path   string
	closed bool
}

// Compile-time interface check.
var _ Sink = (*FileSink)(nil)

// NewFileSink creates a FileSink that appends to the given path. The file is
// created on first write.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Name implements [Sink].
func (fs *FileSink) Name() string { return "file" }

// Path returns the file the sink writes to.
func (fs *FileSink) Path() string { return fs.path }

// Append writes one line per entry. The whole batch is written with a single
// write call.
func (fs *FileSink) Append(_ context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	var data []byte
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("journal: marshal %s: %w", e.DedupKey, err)
		}
		data = append(data, line...)
		data = append(data, '\n')
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return ErrClosed
	}

	f, err := os.OpenFile(fs.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	return nil
}

// Close implements [Sink]. It is idempotent.
func (fs *FileSink) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.closed = true
	return nil
}

// ReadFile loads all entries from a journal file in write order. A missing
// file yields no entries.
func ReadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("journal: open %q: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes JSON lines from r. Blank lines are skipped.
func Read(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("journal: line %d: %w", line, err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("journal: read: %w", err)
	}
	return entries, nil
}

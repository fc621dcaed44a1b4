// Package offline manages the newline-delimited batch of usage events recorded
// while the Code Time API was unreachable.
package offline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrInvalidEvent is returned by Append for payloads that are not a JSON object.
var ErrInvalidEvent = errors.New("event must be a JSON object")

// Batch is the offline event file. Each line holds one JSON event record.
type Batch struct {
	path string
	mu   sync.Mutex
}

// New returns the batch stored at path. The file is created on first Append.
func New(path string) *Batch {
	return &Batch{path: path}
}

// Path returns the batch file location.
func (b *Batch) Path() string {
	return b.path
}

// Exists reports whether the batch file is present.
func (b *Batch) Exists() bool {
	_, err := os.Stat(b.path)
	return err == nil
}

// Append writes event as a single line at the end of the batch.
func (b *Batch) Append(event json.RawMessage) error {
	if !isObject(event) {
		return ErrInvalidEvent
	}

	var line bytes.Buffer
	if err := json.Compact(&line, event); err != nil {
		return fmt.Errorf("compact event: %w", err)
	}
	line.WriteByte('\n')

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("create batch directory: %w", err)
	}
	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open batch file: %w", err)
	}
	if _, err := f.Write(line.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("append event: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close batch file: %w", err)
	}
	return nil
}

// Read returns every well-formed event in the batch, in file order. Blank and
// malformed lines are dropped. A missing file yields no events and no error.
func (b *Batch) Read() ([]json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	return parseLines(data), nil
}

// Remove deletes the batch file. Removing a missing file is not an error.
func (b *Batch) Remove() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove batch file: %w", err)
	}
	return nil
}

func parseLines(data []byte) []json.RawMessage {
	var events []json.RawMessage
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || !isObject(line) {
			continue
		}
		events = append(events, json.RawMessage(bytes.Clone(line)))
	}
	return events
}

func isObject(raw []byte) bool {
	var obj map[string]json.RawMessage
	return json.Unmarshal(raw, &obj) == nil && obj != nil
}

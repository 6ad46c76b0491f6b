// Package featurelog provides append-only JSON-per-line sinks for feature
// and prediction records.
package featurelog

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Writer appends JSON records, one per line, to a file opened for the
// engine's lifetime. Write errors are logged and tolerated; the engine must
// not stall on a failing log sink.
type Writer struct {
	mu     sync.Mutex
	f      *os.File
	logger *log.Logger
}

// NewWriter opens (creating directories as needed) the sink at path.
func NewWriter(path string, logger *log.Logger) (*Writer, error) {
	if logger == nil {
		logger = log.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	return &Writer{f: f, logger: logger}, nil
}

// Append writes one record as a JSON line.
func (w *Writer) Append(record interface{}) {
	data, err := json.Marshal(record)
	if err != nil {
		w.logger.Printf("[featurelog] marshal: %v", err)
		return
	}
	data = append(data, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write(data); err != nil {
		w.logger.Printf("[featurelog] write: %v", err)
	}
}

// Close flushes and closes the sink.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/alanyoungcy/polyscan/internal/domain"
)

// JSONLWriter appends one JSON object per line. It is safe for concurrent
// use.
type JSONLWriter struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer
}

// NewJSONLWriter returns a writer that appends to path, opening it lazily.
func NewJSONLWriter(path string) *JSONLWriter {
	return &JSONLWriter{path: path}
}

func (j *JSONLWriter) ensureOpenLocked() error {
	if j.file != nil {
		return nil
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("output: open %s: %w", j.path, err)
	}
	j.file = f
	j.buf = bufio.NewWriter(f)
	return nil
}

// Append encodes each trade on its own line and flushes.
func (j *JSONLWriter) Append(trades []domain.FormattedTrade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.ensureOpenLocked(); err != nil {
		return err
	}

	enc := json.NewEncoder(j.buf)
	for _, t := range trades {
		if err := enc.Encode(t); err != nil {
			return fmt.Errorf("output: encode trade: %w", err)
		}
	}
	return j.buf.Flush()
}

// Close flushes and closes the file.
func (j *JSONLWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.buf.Flush()
	if cerr := j.file.Close(); err == nil {
		err = cerr
	}
	j.file = nil
	j.buf = nil
	return err
}

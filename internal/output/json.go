package output

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/alanyoungcy/polyscan/internal/domain"
)

// JSONWriter accumulates trades in memory and writes a single JSON array on
// Close. If the file already holds an array, its entries are preserved and
// the new trades appended after them.
type JSONWriter struct {
	mu     sync.Mutex
	path   string
	trades []domain.FormattedTrade
	loaded bool
	closed bool
}

// NewJSONWriter returns a writer targeting path.
func NewJSONWriter(path string) *JSONWriter {
	return &JSONWriter{path: path}
}

func (j *JSONWriter) loadLocked() error {
	if j.loaded {
		return nil
	}
	j.loaded = true

	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("output: read %s: %w", j.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &j.trades); err != nil {
		return fmt.Errorf("output: %s is not a trade array: %w", j.path, err)
	}
	return nil
}

// Append buffers the trades; nothing hits disk until Close.
func (j *JSONWriter) Append(trades []domain.FormattedTrade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.loadLocked(); err != nil {
		return err
	}
	j.trades = append(j.trades, trades...)
	return nil
}

// Close writes the accumulated array. Closing twice is a no-op.
func (j *JSONWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true

	if err := j.loadLocked(); err != nil {
		return err
	}

	out := j.trades
	if out == nil {
		out = []domain.FormattedTrade{}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("output: marshal trades: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(j.path, data, 0o644); err != nil {
		return fmt.Errorf("output: write %s: %w", j.path, err)
	}
	return nil
}

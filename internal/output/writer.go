package output

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/alanyoungcy/polyscan/internal/domain"
)

// Writer appends formatted trades to a sink. Append may be called once per
// batch (historical) or once per trade (live). Close flushes and releases
// the sink.
type Writer interface {
	Append(trades []domain.FormattedTrade) error
	Close() error
}

// NewFileWriter selects a writer by the path's extension: .csv, .jsonl, or
// .json. An unsupported extension fails here, before any network work
// begins.
func NewFileWriter(path string) (Writer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return NewCSVWriter(path), nil
	case ".jsonl":
		return NewJSONLWriter(path), nil
	case ".json":
		return NewJSONWriter(path), nil
	default:
		return nil, fmt.Errorf("output: %q: %w (use .csv, .json, or .jsonl)",
			filepath.Ext(path), domain.ErrUnsupportedFormat)
	}
}

package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/alanyoungcy/polyscan/internal/domain"
)

// csvHeader is the column order for CSV output.
var csvHeader = []string{
	"block_number", "tx_hash", "wallet", "side", "tokens", "price", "total_usdc",
}

// CSVWriter appends trades to a CSV file, writing the header only when the
// file is newly created or empty. It is safe for concurrent use.
type CSVWriter struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *csv.Writer
}

// NewCSVWriter returns a writer that appends to path. The file is opened
// lazily on first Append.
func NewCSVWriter(path string) *CSVWriter {
	return &CSVWriter{path: path}
}

func (c *CSVWriter) ensureOpenLocked() error {
	if c.file != nil {
		return nil
	}

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("output: open %s: %w", c.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("output: stat %s: %w", c.path, err)
	}

	c.file = f
	c.w = csv.NewWriter(f)

	if info.Size() == 0 {
		if err := c.w.Write(csvHeader); err != nil {
			return fmt.Errorf("output: write csv header: %w", err)
		}
	}
	return nil
}

// Append writes one row per trade and flushes so tailers see the records.
func (c *CSVWriter) Append(trades []domain.FormattedTrade) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureOpenLocked(); err != nil {
		return err
	}

	for _, t := range trades {
		row := []string{
			strconv.FormatUint(t.BlockNumber, 10),
			t.TxHash,
			t.Wallet,
			t.Side,
			strconv.FormatFloat(t.Tokens, 'f', -1, 64),
			strconv.FormatFloat(t.Price, 'f', -1, 64),
			strconv.FormatFloat(t.TotalUSDC, 'f', -1, 64),
		}
		if err := c.w.Write(row); err != nil {
			return fmt.Errorf("output: write csv row: %w", err)
		}
	}

	c.w.Flush()
	return c.w.Error()
}

// Close flushes and closes the file.
func (c *CSVWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.file == nil {
		return nil
	}
	c.w.Flush()
	err := c.w.Error()
	if cerr := c.file.Close(); err == nil {
		err = cerr
	}
	c.file = nil
	c.w = nil
	return err
}

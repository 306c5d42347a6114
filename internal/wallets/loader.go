// Package wallets loads the tracked wallet list from disk.
package wallets

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Load reads one address per line from path, skipping blanks and lines
// starting with '#'. Addresses are validated, lowercased, and de-duplicated
// preserving first-seen order. A missing file is not an error: it means
// track-all mode.
func Load(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("wallets: open %s: %w", path, err)
	}
	defer f.Close()

	var (
		addrs []string
		seen  = make(map[string]struct{})
	)

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !common.IsHexAddress(line) {
			return nil, fmt.Errorf("wallets: %s:%d: invalid address %q", path, lineNo, line)
		}
		addr := strings.ToLower(common.HexToAddress(line).Hex())
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		addrs = append(addrs, addr)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("wallets: read %s: %w", path, err)
	}
	return addrs, nil
}

package output

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/alanyoungcy/polyscan/internal/domain"
)

const (
	ansiGreen = "\033[32m"
	ansiRed   = "\033[31m"
	ansiDim   = "\033[2m"
	ansiReset = "\033[0m"
)

// Printer writes human-readable trade lines to a terminal, coloring BUY
// green and SELL red. Colors are dropped when the destination is not a
// terminal.
type Printer struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

// NewPrinter returns a Printer on stdout with color enabled when stdout is a
// terminal.
func NewPrinter() *Printer {
	info, err := os.Stdout.Stat()
	isTTY := err == nil && info.Mode()&os.ModeCharDevice != 0
	return &Printer{out: os.Stdout, color: isTTY}
}

// NewPrinterTo returns a Printer on w with explicit color control.
func NewPrinterTo(w io.Writer, color bool) *Printer {
	return &Printer{out: w, color: color}
}

// Print writes one trade line.
func (p *Printer) Print(t domain.FormattedTrade) {
	p.mu.Lock()
	defer p.mu.Unlock()

	side := t.Side
	link := "https://polygonscan.com/tx/" + t.TxHash
	dim, reset := "", ""
	if p.color {
		if t.Side == domain.SideBuy.String() {
			side = ansiGreen + side + ansiReset
		} else {
			side = ansiRed + side + ansiReset
		}
		dim, reset = ansiDim, ansiReset
		// OSC 8 hyperlink: terminals that support it render the tx hash as
		// a clickable polygonscan link.
		link = "\033]8;;" + link + "\033\\" + t.TxHash + "\033]8;;\033\\"
	}

	fmt.Fprintf(p.out, "%s %s %.2f @ %.4f = $%.2f %sblock=%d %s%s\n",
		side, t.Wallet, t.Tokens, t.Price, t.TotalUSDC, dim, t.BlockNumber, link, reset)
}

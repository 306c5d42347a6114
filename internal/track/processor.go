package track

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/polyscan/internal/decode"
	"github.com/alanyoungcy/polyscan/internal/domain"
	"github.com/alanyoungcy/polyscan/internal/polygon"
)

// Gateway is the slice of the RPC client the processor needs.
type Gateway interface {
	BlockByNumber(ctx context.Context, number uint64) (*polygon.Block, error)
	BlockReceipts(ctx context.Context, number uint64) ([]polygon.Receipt, error)
}

// Processor extracts attributed trades from single blocks.
type Processor struct {
	gw     Gateway
	dec    *decode.Decoder
	filter *Filter
	logger *slog.Logger
}

// NewProcessor creates a Processor.
func NewProcessor(gw Gateway, dec *decode.Decoder, filter *Filter, logger *slog.Logger) *Processor {
	return &Processor{
		gw:     gw,
		dec:    dec,
		filter: filter,
		logger: logger.With(slog.String("component", "processor")),
	}
}

// Process fetches the block and its receipt set, decodes every transaction,
// applies the wallet filter, and returns the resulting trade records in the
// transactions' block order. A block with no matches returns an empty slice.
//
// Receipts are matched to transactions by hash; the node does not guarantee
// the two lists share an order. A transaction without a receipt never
// matches.
func (p *Processor) Process(ctx context.Context, blockNumber uint64) ([]domain.TradeRecord, error) {
	block, err := p.gw.BlockByNumber(ctx, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("track: fetch block %d: %w", blockNumber, err)
	}
	if block == nil {
		return nil, fmt.Errorf("track: block %d not found", blockNumber)
	}

	receipts, err := p.gw.BlockReceipts(ctx, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("track: fetch receipts %d: %w", blockNumber, err)
	}

	receiptByHash := make(map[string]*polygon.Receipt, len(receipts))
	for i := range receipts {
		receiptByHash[receipts[i].TransactionHash] = &receipts[i]
	}

	p.logger.Debug("processing block",
		slog.Uint64("block", blockNumber),
		slog.Int("txs", len(block.Transactions)),
	)

	var trades []domain.TradeRecord
	for _, tx := range block.Transactions {
		if name, ok := decode.KnownContracts[strings.ToLower(tx.To)]; ok {
			p.logger.Debug("polymarket contract transaction",
				slog.String("contract", name),
				slog.String("tx", tx.Hash),
			)
		}

		orders, ok := p.dec.Decode(tx.Input)
		if !ok {
			continue
		}

		matched := p.filter.Select(orders, receiptByHash[tx.Hash])
		if matched == nil {
			continue
		}

		trades = append(trades, domain.TradeRecord{
			BlockNumber:     blockNumber,
			TransactionHash: tx.Hash,
			Wallet:          matched.Maker,
			TokenID:         matched.TokenID,
			Side:            matched.Side,
			MakerAmount:     matched.MakerAmount,
			TakerAmount:     matched.TakerAmount,
		})
	}

	return trades, nil
}

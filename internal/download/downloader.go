// Package download drives the block processor over a historical block range
// with bounded concurrency, batched ordered delivery, and progress reporting.
package download

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyscan/internal/domain"
)

// Gateway resolves the chain head when no end block is given.
type Gateway interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Processor extracts trades from one block.
type Processor interface {
	Process(ctx context.Context, blockNumber uint64) ([]domain.TradeRecord, error)
}

// Options selects the block range. Nil Start/End fall back to the defaults:
// End resolves to the chain head, Start to max(0, End-MaxBlocks).
type Options struct {
	StartBlock *uint64
	EndBlock   *uint64
	MaxBlocks  uint64
}

// Stats summarizes a completed download.
type Stats struct {
	Blocks   uint64
	Trades   uint64
	Requests uint64
	Elapsed  time.Duration
}

// BatchFunc receives one batch's trade records, sorted ascending by block
// number. A non-nil error aborts the download.
type BatchFunc func(trades []domain.TradeRecord) error

// Downloader scans a block range batch by batch. Within a batch, blocks are
// processed concurrently by a worker pool bounded by maxRPS; each worker's
// two RPC calls (block, receipts) run sequentially, which keeps the request
// rate near 2*maxRPS without client-side token buckets. Batches never
// overlap: batch n+1 starts only after batch n is delivered, bounding
// in-flight memory to one batch.
type Downloader struct {
	gw     Gateway
	proc   Processor
	maxRPS int
	logger *slog.Logger
}

// New creates a Downloader. maxRPS bounds concurrent block workers.
func New(gw Gateway, proc Processor, maxRPS int, logger *slog.Logger) *Downloader {
	if maxRPS < 1 {
		maxRPS = 1
	}
	return &Downloader{
		gw:     gw,
		proc:   proc,
		maxRPS: maxRPS,
		logger: logger.With(slog.String("component", "downloader")),
	}
}

// Download processes the inclusive resolved block range and delivers each
// batch's trades through onBatch in ascending block order. Any RPC call that
// exhausts its retries aborts the whole download: a partially fetched range
// would silently misrepresent history.
//
// The context is checked between batches, so cancellation takes effect at
// batch granularity.
func (d *Downloader) Download(ctx context.Context, opts Options, onBatch BatchFunc) (Stats, error) {
	endBlock, err := d.resolveEnd(ctx, opts)
	if err != nil {
		return Stats{}, err
	}
	startBlock := resolveStart(opts, endBlock)
	if startBlock > endBlock {
		return Stats{}, fmt.Errorf("download: start block %d after end block %d", startBlock, endBlock)
	}

	totalBlocks := endBlock - startBlock + 1
	batchSize := uint64(2 * d.maxRPS)
	runID := uuid.New().String()

	d.logger.Info("downloading trades",
		slog.String("run_id", runID),
		slog.Uint64("start_block", startBlock),
		slog.Uint64("end_block", endBlock),
		slog.Uint64("total_blocks", totalBlocks),
		slog.Uint64("batch_size", batchSize),
		slog.Int("max_rps", d.maxRPS),
	)

	started := time.Now()
	var completed, totalTrades uint64

	for batchStart := startBlock; ; batchStart += batchSize {
		if err := ctx.Err(); err != nil {
			return d.stats(completed, totalTrades, started), fmt.Errorf("download: cancelled: %w", err)
		}

		batchEnd := batchStart + batchSize - 1
		if batchEnd > endBlock || batchEnd < batchStart {
			batchEnd = endBlock
		}

		batchTrades, err := d.processBatch(ctx, batchStart, batchEnd)
		if err != nil {
			return d.stats(completed, totalTrades, started), err
		}

		completed += batchEnd - batchStart + 1
		totalTrades += uint64(len(batchTrades))

		if len(batchTrades) > 0 && onBatch != nil {
			if err := onBatch(batchTrades); err != nil {
				return d.stats(completed, totalTrades, started), fmt.Errorf("download: deliver batch: %w", err)
			}
		}

		elapsed := time.Since(started)
		bps := float64(completed) / elapsed.Seconds()
		d.logger.Info("progress",
			slog.String("run_id", runID),
			slog.String("blocks", fmt.Sprintf("%d/%d", completed, totalBlocks)),
			slog.Uint64("trades_found", totalTrades),
			slog.Int("trades_in_batch", len(batchTrades)),
			slog.String("bps", fmt.Sprintf("%.1f", bps)),
			slog.String("rps", fmt.Sprintf("%.0f", bps*2)),
		)

		if batchEnd == endBlock {
			break
		}
	}

	stats := d.stats(completed, totalTrades, started)
	d.logger.Info("download complete",
		slog.String("run_id", runID),
		slog.Uint64("total_blocks", stats.Blocks),
		slog.Uint64("total_trades", stats.Trades),
		slog.Duration("elapsed", stats.Elapsed),
	)
	return stats, nil
}

// processBatch runs every block in [batchStart, batchEnd] through the block
// processor with at most maxRPS workers in flight. Results are collected in
// a slice indexed by block offset, so flattening yields strictly ascending
// block order no matter how workers interleave.
func (d *Downloader) processBatch(ctx context.Context, batchStart, batchEnd uint64) ([]domain.TradeRecord, error) {
	n := int(batchEnd - batchStart + 1)
	results := make([][]domain.TradeRecord, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxRPS)

	for i := 0; i < n; i++ {
		i := i
		blockNumber := batchStart + uint64(i)
		g.Go(func() error {
			trades, err := d.proc.Process(gctx, blockNumber)
			if err != nil {
				return fmt.Errorf("download: block %d: %w", blockNumber, err)
			}
			results[i] = trades
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var flat []domain.TradeRecord
	for _, trades := range results {
		flat = append(flat, trades...)
	}
	return flat, nil
}

func (d *Downloader) resolveEnd(ctx context.Context, opts Options) (uint64, error) {
	if opts.EndBlock != nil {
		return *opts.EndBlock, nil
	}
	head, err := d.gw.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("download: resolve head: %w", err)
	}
	return head, nil
}

func resolveStart(opts Options, endBlock uint64) uint64 {
	if opts.StartBlock != nil {
		return *opts.StartBlock
	}
	if endBlock > opts.MaxBlocks {
		return endBlock - opts.MaxBlocks
	}
	return 0
}

func (d *Downloader) stats(blocks, trades uint64, started time.Time) Stats {
	return Stats{
		Blocks:   blocks,
		Trades:   trades,
		Requests: blocks * 2,
		Elapsed:  time.Since(started),
	}
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/alanyoungcy/polyscan/internal/domain"
	"github.com/alanyoungcy/polyscan/internal/download"
	"github.com/alanyoungcy/polyscan/internal/monitor"
	"github.com/alanyoungcy/polyscan/internal/output"
	"github.com/alanyoungcy/polyscan/internal/polygon"
)

// ListenOptions selects what the live monitor tracks. An empty Wallets slice
// means every trade is tracked.
type ListenOptions struct {
	Wallets []string
}

// DownloadOptions selects the historical range and output target.
type DownloadOptions struct {
	Wallets    []string
	StartBlock *uint64
	EndBlock   *uint64
	MaxBlocks  uint64
	Output     string
	MaxRPS     int
}

// runListen starts the live monitor and blocks until the context is
// cancelled or the transport fails with reconnect disabled.
func (a *App) runListen(ctx context.Context, deps *Dependencies) error {
	if a.cfg.Polygon.WSSURL == "" {
		return fmt.Errorf("app: listen requires polygon.wss_url")
	}

	a.logger.Info("live monitor starting",
		slog.Bool("track_all", deps.Filter.TrackingAll()),
		slog.Bool("reconnect", a.cfg.Monitor.Reconnect),
	)

	dial := func() monitor.HeadStream {
		return polygon.NewHeadSubscriber(a.cfg.Polygon.WSSURL)
	}

	mon := monitor.New(dial, deps.Processor, monitor.Config{
		Reconnect:             a.cfg.Monitor.Reconnect,
		InitialReconnectDelay: a.cfg.Monitor.InitialReconnectDelay(),
		MaxReconnectDelay:     a.cfg.Monitor.MaxReconnectDelay(),
	}, a.logger)

	obs := &liveObserver{
		ctx:     ctx,
		logger:  a.logger,
		printer: output.NewPrinter(),
	}
	// Assign sinks only when present: a typed nil pointer stored in an
	// interface field would defeat the nil checks in OnTrade.
	if deps.Publisher != nil {
		obs.publisher = deps.Publisher
	}
	if deps.TradeStore != nil {
		obs.store = deps.TradeStore
	}
	mon.AddObserver(obs)

	stop := context.AfterFunc(ctx, mon.Stop)
	defer stop()

	return mon.Start(ctx)
}

// runDownload scans the block range and writes the formatted trades to the
// output file, then mirrors the file to S3 when configured.
func (a *App) runDownload(ctx context.Context, deps *Dependencies, opts DownloadOptions) error {
	writer, err := output.NewFileWriter(opts.Output)
	if err != nil {
		return err
	}

	dl := download.New(deps.RPC, deps.Processor, opts.MaxRPS, a.logger)

	onBatch := func(trades []domain.TradeRecord) error {
		formatted := make([]domain.FormattedTrade, len(trades))
		for i, t := range trades {
			formatted[i] = output.Format(t)
		}
		if err := writer.Append(formatted); err != nil {
			return err
		}
		if deps.TradeStore != nil {
			if err := deps.TradeStore.InsertBatch(ctx, trades); err != nil {
				return err
			}
		}
		return nil
	}

	stats, err := dl.Download(ctx, download.Options{
		StartBlock: opts.StartBlock,
		EndBlock:   opts.EndBlock,
		MaxBlocks:  opts.MaxBlocks,
	}, onBatch)

	if cerr := writer.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	a.logger.Info("download finished",
		slog.Uint64("blocks", stats.Blocks),
		slog.Uint64("trades", stats.Trades),
		slog.Duration("elapsed", stats.Elapsed),
		slog.String("output", opts.Output),
	)

	if deps.Uploader != nil && stats.Trades > 0 {
		key := path.Join(a.cfg.S3.Prefix,
			time.Now().UTC().Format("2006-01-02"), filepath.Base(opts.Output))
		if err := deps.Uploader.UploadFile(ctx, key, opts.Output); err != nil {
			return fmt.Errorf("app: upload output: %w", err)
		}
		a.logger.Info("output uploaded",
			slog.String("bucket", a.cfg.S3.Bucket),
			slog.String("key", key),
		)
	}

	return nil
}

// liveObserver fans live monitor events out to the terminal and the optional
// Redis and Postgres sinks. Sink failures are logged, never fatal: losing a
// mirror should not stop the stream.
type liveObserver struct {
	ctx       context.Context
	logger    *slog.Logger
	printer   *output.Printer
	publisher interface {
		Publish(ctx context.Context, trade domain.FormattedTrade) error
	}
	store interface {
		InsertBatch(ctx context.Context, trades []domain.TradeRecord) error
	}
}

func (o *liveObserver) OnTrade(trade domain.TradeRecord) {
	formatted := output.Format(trade)
	o.printer.Print(formatted)

	if o.publisher != nil {
		if err := o.publisher.Publish(o.ctx, formatted); err != nil {
			o.logger.Warn("publish trade", slog.String("error", err.Error()))
		}
	}
	if o.store != nil {
		if err := o.store.InsertBatch(o.ctx, []domain.TradeRecord{trade}); err != nil {
			o.logger.Warn("store trade", slog.String("error", err.Error()))
		}
	}
}

func (o *liveObserver) OnError(err error) {
	o.logger.Error("monitor error", slog.String("error", err.Error()))
}

func (o *liveObserver) OnClose(reason string) {
	o.logger.Info("monitor closed", slog.String("reason", reason))
}

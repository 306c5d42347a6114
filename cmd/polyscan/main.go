// Command polyscan scans Polygon for Polymarket trades. It has two modes:
// "listen" follows the chain head over WebSocket and prints trades as they
// land; "download" scans a historical block range into a file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/polyscan/internal/app"
	"github.com/alanyoungcy/polyscan/internal/config"
	"github.com/alanyoungcy/polyscan/internal/wallets"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Usage = usage
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		return 1
	}

	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	switch args[0] {
	case "listen":
		err = runListen(ctx, application, cfg, logger, args[1:])
	case "download":
		err = runDownload(ctx, application, cfg, logger, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		return 2
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("command failed", slog.String("error", err.Error()))
		return 1
	}
	return 0
}

func runListen(ctx context.Context, application *app.App, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("listen", flag.ExitOnError)
	walletsFile := fs.String("wallets", "", "wallet list file (overrides config)")
	trackAll := fs.Bool("all", false, "track every trade regardless of wallet list")
	fs.Parse(args)

	addrs, err := resolveWallets(cfg, *walletsFile, *trackAll, logger)
	if err != nil {
		return err
	}

	return application.Listen(ctx, app.ListenOptions{Wallets: addrs})
}

func runDownload(ctx context.Context, application *app.App, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	blocks := fs.Uint64("blocks", cfg.Download.MaxBlocks, "number of recent blocks when no range is given")
	start := fs.Uint64("start", 0, "first block of the range (inclusive)")
	end := fs.Uint64("end", 0, "last block of the range (inclusive, 0 = chain head)")
	outPath := fs.String("output", cfg.Download.Output, "output file (.csv, .json, or .jsonl)")
	maxRPS := fs.Int("max-rps", cfg.Download.MaxRPS, "maximum requests per second")
	walletsFile := fs.String("wallets", "", "wallet list file (overrides config)")
	trackAll := fs.Bool("all", false, "track every trade regardless of wallet list")
	fs.Parse(args)

	addrs, err := resolveWallets(cfg, *walletsFile, *trackAll, logger)
	if err != nil {
		return err
	}

	opts := app.DownloadOptions{
		Wallets:   addrs,
		MaxBlocks: *blocks,
		Output:    *outPath,
		MaxRPS:    *maxRPS,
	}
	if isSet(fs, "start") {
		opts.StartBlock = start
	}
	if isSet(fs, "end") {
		opts.EndBlock = end
	}

	return application.Download(ctx, opts)
}

// resolveWallets loads the tracked wallet list. -all and a missing file both
// mean track-all mode.
func resolveWallets(cfg *config.Config, override string, trackAll bool, logger *slog.Logger) ([]string, error) {
	if trackAll {
		return nil, nil
	}

	path := cfg.Wallets.File
	if override != "" {
		path = override
	}
	if path == "" {
		return nil, nil
	}

	addrs, err := wallets.Load(path)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		logger.Info("no wallets loaded, tracking all trades", slog.String("file", path))
	} else {
		logger.Info("tracking wallets", slog.Int("count", len(addrs)), slog.String("file", path))
	}
	return addrs, nil
}

func isSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `polyscan - Polymarket trade scanner for Polygon

Usage:
  polyscan [-config config.toml] listen   [-wallets file] [-all]
  polyscan [-config config.toml] download [-blocks n] [-start n] [-end n]
           [-output file] [-max-rps n] [-wallets file] [-all]

`)
	flag.PrintDefaults()
}

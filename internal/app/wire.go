package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/polyscan/internal/blob/s3"
	"github.com/alanyoungcy/polyscan/internal/cache/redis"
	"github.com/alanyoungcy/polyscan/internal/config"
	"github.com/alanyoungcy/polyscan/internal/decode"
	"github.com/alanyoungcy/polyscan/internal/polygon"
	"github.com/alanyoungcy/polyscan/internal/store/postgres"
	"github.com/alanyoungcy/polyscan/internal/track"
)

// Dependencies bundles everything the operating modes need. The optional
// sinks (TradeStore, Publisher, Uploader) are nil when their backend is not
// configured.
type Dependencies struct {
	RPC       *polygon.Client
	Processor *track.Processor
	Filter    *track.Filter

	TradeStore *postgres.TradeStore
	Publisher  *redis.TradePublisher
	Uploader   *s3blob.Writer
}

// Wire constructs the concrete dependencies from the configuration and
// returns them with a cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, wallets []string, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	rpc := polygon.NewClient(polygon.ClientConfig{
		HTTPURL:    cfg.Polygon.EffectiveHTTPURL(),
		Timeout:    cfg.Polygon.RequestTimeout(),
		MaxRetries: cfg.Polygon.MaxRetries,
		RetryDelay: cfg.Polygon.RetryDelay(),
	}, logger)
	closers = append(closers, rpc.Close)

	filter := track.NewFilter(wallets)
	proc := track.NewProcessor(rpc, decode.NewDecoder(logger), filter, logger)

	deps := &Dependencies{
		RPC:       rpc,
		Processor: proc,
		Filter:    filter,
	}

	if cfg.Postgres.DSN != "" {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
			MinConns: cfg.Postgres.MinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if err := pgClient.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres schema: %w", err)
		}
		deps.TradeStore = postgres.NewTradeStore(pgClient.Pool())
	}

	if cfg.Redis.Addr != "" {
		rdb, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = rdb.Close() })
		deps.Publisher = redis.NewTradePublisher(rdb, cfg.Redis.Channel)
	}

	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Uploader = s3blob.NewWriter(s3Client)
	}

	return deps, cleanup, nil
}

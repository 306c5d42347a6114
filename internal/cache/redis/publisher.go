package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyscan/internal/domain"
)

// TradePublisher fans live trades out to a Redis Pub/Sub channel as JSON so
// other processes can consume them without tailing the output file.
type TradePublisher struct {
	rdb     *redis.Client
	channel string
}

// NewTradePublisher creates a publisher on the given channel.
func NewTradePublisher(c *Client, channel string) *TradePublisher {
	return &TradePublisher{rdb: c.Underlying(), channel: channel}
}

// Publish sends one formatted trade.
func (p *TradePublisher) Publish(ctx context.Context, trade domain.FormattedTrade) error {
	payload, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("redis: marshal trade: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", p.channel, err)
	}
	return nil
}

// Subscribe returns a channel of raw trade payloads published on the
// publisher's channel. The subscription closes with the context.
func (p *TradePublisher) Subscribe(ctx context.Context) (<-chan []byte, error) {
	pubsub := p.rdb.Subscribe(ctx, p.channel)

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", p.channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

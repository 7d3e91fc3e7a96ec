package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

const (
	// streamMaxLen caps each stream via XADD MAXLEN ~.
	streamMaxLen int64 = 10000
	payloadField       = "payload"
	subscriberBuffer   = 128
)

// SignalBus implements domain.SignalBus: Pub/Sub for live fan-out of market
// events and Streams for a replayable history. Channel and stream names are
// namespaced by the client.
type SignalBus struct {
	c *Client
}

// NewSignalBus creates a SignalBus backed by c.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{c: c}
}

func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.c.rdb.Publish(ctx, sb.c.Key("bus", channel), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe delivers payloads published on channel until ctx is done, then
// closes the returned channel. Glob patterns use PSUBSCRIBE.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	name := sb.c.Key("bus", channel)
	var ps *redis.PubSub
	if isPattern(channel) {
		ps = sb.c.rdb.PSubscribe(ctx, name)
	} else {
		ps = sb.c.rdb.Subscribe(ctx, name)
	}
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
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

func isPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.c.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: sb.c.Key("stream", stream),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{payloadField: payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after lastID ("0" reads from the
// start). An empty stream yields no messages and no error.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	res, err := sb.c.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{sb.c.Key("stream", stream), lastID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var out []domain.StreamMessage
	for _, s := range res {
		for _, m := range s.Messages {
			switch v := m.Values[payloadField].(type) {
			case string:
				out = append(out, domain.StreamMessage{ID: m.ID, Payload: []byte(v)})
			case []byte:
				out = append(out, domain.StreamMessage{ID: m.ID, Payload: v})
			}
		}
	}
	return out, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)

package relay

import (
	"context"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/KelkeFranvin/coco-quiz/internal/domain"
)

// RedisRelay carries relay events over a Redis pub/sub channel so that
// multiple server instances share one bus. Redis pub/sub is fire-and-forget,
// which matches the relay contract: unordered, best effort, duplicates
// possible across reconnects.
type RedisRelay struct {
	client  *redis.Client
	channel string
}

func NewRedisRelay(client *redis.Client, channel string) *RedisRelay {
	if channel == "" {
		channel = "coco-quiz:relay"
	}
	return &RedisRelay{client: client, channel: channel}
}

func (r *RedisRelay) Publish(ctx context.Context, event domain.RelayEvent) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

func (r *RedisRelay) Subscribe(ctx context.Context) (<-chan domain.RelayEvent, func(), error) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	// Force the SUBSCRIBE round trip so errors surface here, not later.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan domain.RelayEvent, 8)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				event, err := Decode([]byte(msg.Payload))
				if err != nil {
					log.Printf("relay: dropping undecodable message: %v", err)
					continue
				}
				select {
				case out <- event:
				case <-done:
					return
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

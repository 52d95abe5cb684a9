package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/hive-corporation/threatpulse/internal/core/ports"
	"github.com/hive-corporation/threatpulse/pkg/log"
)

// RedisSource receives envelopes from Redis pub/sub channels. Channel names
// may be patterns ("alerts:*").
type RedisSource struct {
	client   redis.UniversalClient
	channels []string
	logger   log.Logger
}

func NewRedisSource(client redis.UniversalClient, channels []string, logger log.Logger) *RedisSource {
	return &RedisSource{client: client, channels: channels, logger: logger}
}

func (s *RedisSource) Name() string {
	return "redis"
}

func (s *RedisSource) Listen(ctx context.Context, handler func(ports.Batch)) (func() error, error) {
	pubsub := s.client.PSubscribe(ctx, s.channels...)

	// Wait for confirmation that subscription is created
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				deliver(ctx, s.logger, "RedisSource", []byte(msg.Payload), handler)
			case <-quit:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Infof(ctx, "provider.RedisSource.Listen: subscribed to %v", s.channels)

	var once sync.Once
	var closeErr error
	return func() error {
		once.Do(func() {
			close(quit)
			closeErr = pubsub.Close()
			wg.Wait()
		})
		return closeErr
	}, nil
}

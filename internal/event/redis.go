package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/timmy/photovault/internal/config"
	"github.com/timmy/photovault/internal/domain"
)

// Message is the envelope published to Redis.
type Message struct {
	Event     domain.EventName `json:"event"`
	Payload   any              `json:"payload"`
	EmittedAt time.Time        `json:"emitted_at"`
}

// RedisPublisher fans events out to other processes over Redis pub/sub.
// Each event name has its own channel, <prefix>:<event>.
type RedisPublisher struct {
	rdb    *goredis.Client
	prefix string
}

func NewRedisPublisher(ctx context.Context, cfg config.RedisConfig) (*RedisPublisher, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = "photovault:events"
	}
	return &RedisPublisher{rdb: rdb, prefix: prefix}, nil
}

// Channel returns the pub/sub channel for an event.
func (p *RedisPublisher) Channel(name domain.EventName) string {
	return Channel(p.prefix, name)
}

func Channel(prefix string, name domain.EventName) string {
	return prefix + ":" + string(name)
}

// Handle is a bus Handler that publishes the event.
func (p *RedisPublisher) Handle(ctx context.Context, name domain.EventName, payload any) error {
	raw, err := json.Marshal(Message{Event: name, Payload: payload, EmittedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return p.rdb.Publish(ctx, p.Channel(name), raw).Err()
}

func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}

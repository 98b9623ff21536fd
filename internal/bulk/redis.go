package bulk

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

// RedisPublisher публикует события в канал Redis, чтобы их получили все экземпляры сервиса.
// Собственные события экземпляра StartForwarder пропускает: локальная шина получает их напрямую.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
	origin  string
	log     *logger.Logger
}

// envelope - сообщение в канале Redis.
type envelope struct {
	Origin string           `json:"origin"`
	Event  models.BulkEvent `json:"event"`
}

// NewRedisClient подключается к Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewRedisPublisher создает издателя событий в Redis.
func NewRedisPublisher(rdb *redis.Client, channel string, log *logger.Logger) *RedisPublisher {
	return &RedisPublisher{
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		log:     log.With("component", "RedisBulkBus"),
	}
}

// Publish отправляет событие в канал.
func (p *RedisPublisher) Publish(ctx context.Context, ev models.BulkEvent) error {
	raw, err := json.Marshal(envelope{Origin: p.origin, Event: ev})
	if err != nil {
		return fmt.Errorf("ошибка кодирования события: %w", err)
	}
	if err = p.rdb.Publish(ctx, p.channel, raw).Err(); err != nil {
		return fmt.Errorf("ошибка публикации события в Redis: %w", err)
	}
	return nil
}

// StartForwarder подписывается на канал и передает события в локальную шину до отмены ctx.
func (p *RedisPublisher) StartForwarder(ctx context.Context, local Publisher) error {
	sub := p.rdb.Subscribe(ctx, p.channel)

	// Дожидаемся подтверждения подписки
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					p.log.Warn("Некорректное событие в Redis", "error", err)
					continue
				}
				if env.Origin == p.origin {
					continue
				}
				_ = local.Publish(ctx, env.Event)
			}
		}
	}()
	return nil
}

// MultiPublisher рассылает событие нескольким издателям; ошибки не прерывают рассылку.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, ev models.BulkEvent) error {
	var firstErr error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

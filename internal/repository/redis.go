package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/lvdashuaibi/ballotbot/config"
	"github.com/lvdashuaibi/ballotbot/internal/model"
)

const (
	// SelectionKey is a hash of "messageId|voter" -> candidate.
	SelectionKey = "ballot:selection"
)

// RedisRepository keeps selection contexts in Redis so several ballot
// instances behind a load balancer see the same tentative choices.
type RedisRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRepository(cfg config.RedisConfig, ttl time.Duration) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.DataAddress,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisRepositoryWithClient(client, ttl), nil
}

func NewRedisRepositoryWithClient(client *redis.Client, ttl time.Duration) *RedisRepository {
	return &RedisRepository{client: client, ttl: ttl}
}

// SaveSelection overwrites the candidate for key and pushes the hash expiry
// forward, so selections of an abandoned poll eventually disappear.
func (r *RedisRepository) SaveSelection(ctx context.Context, key model.SelectionKey, candidate string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, SelectionKey, key.String(), candidate)
		if r.ttl > 0 {
			pipe.Expire(ctx, SelectionKey, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}

func (r *RedisRepository) GetSelection(ctx context.Context, key model.SelectionKey) (string, bool, error) {
	candidate, err := r.client.HGet(ctx, SelectionKey, key.String()).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get selection: %w", err)
	}
	return candidate, true, nil
}

func (r *RedisRepository) ClearSelections(ctx context.Context) error {
	if err := r.client.Del(ctx, SelectionKey).Err(); err != nil {
		return fmt.Errorf("clear selections: %w", err)
	}
	return nil
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

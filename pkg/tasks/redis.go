package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps each task as a JSON value plus a sorted-set index scored
// by creation time
type RedisStore struct {
	client *redis.Client
	prefix string
}

// OpenRedis connects to url and verifies the connection
func OpenRedis(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStore(client, prefix), nil
}

// NewRedisStore wraps an existing client
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "stager:tasks"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Client exposes the underlying client for health checks
func (s *RedisStore) Client() *redis.Client { return s.client }

func (s *RedisStore) taskKey(id string) string { return s.prefix + ":task:" + id }

func (s *RedisStore) indexKey() string { return s.prefix + ":index" }

func (s *RedisStore) Create(ctx context.Context, t *Task) error {
	if err := validate(t); err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.taskKey(t.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskExists, t.ID)
	}

	score := float64(t.CreatedAt.UnixNano())
	if err := s.client.ZAdd(ctx, s.indexKey(), &redis.Z{Score: score, Member: t.ID}).Err(); err != nil {
		return fmt.Errorf("redis index failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, t *Task) error {
	if err := validate(t); err != nil {
		return err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	ok, err := s.client.SetXX(ctx, s.taskKey(t.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, t.ID)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Task, error) {
	data, err := s.client.Get(ctx, s.taskKey(id)).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	} else if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &t, nil
}

func (s *RedisStore) List(ctx context.Context, limit int) ([]*Task, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis index read failed: %w", err)
	}
	return s.load(ctx, ids)
}

// load fetches tasks by ID, skipping index entries whose value is gone
func (s *RedisStore) load(ctx context.Context, ids []string) ([]*Task, error) {
	if len(ids) == 0 {
		return []*Task{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.taskKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}

	out := make([]*Task, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var t Task
		if err := json.Unmarshal([]byte(str), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task: %w", err)
		}
		out = append(out, &t)
	}
	return out, nil
}

func (s *RedisStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("redis index read failed: %w", err)
	}
	all, err := s.load(ctx, ids)
	if err != nil {
		return 0, err
	}

	pipe := s.client.TxPipeline()
	removed := 0
	for _, t := range all {
		if t.State.Terminal() && t.UpdatedAt.Before(cutoff) {
			pipe.Del(ctx, s.taskKey(t.ID))
			pipe.ZRem(ctx, s.indexKey(), t.ID)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis delete failed: %w", err)
	}
	return removed, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

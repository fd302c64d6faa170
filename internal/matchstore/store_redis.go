package matchstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const ttlMatch = 24 * time.Hour

type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

// OpenRedis connects to redisURL (redis:// or rediss://) and pings it.
func OpenRedis(ctx context.Context, redisURL string) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis match store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(rdb), nil
}

func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func keyMatch(id string) string { return "match:" + strings.TrimSpace(id) }
func keyCurrent() string        { return "match:current" }

func (s *RedisStore) Open(ctx context.Context, white, black string) (*Match, error) {
	now := s.now()
	m := &Match{
		ID:        uuid.NewString(),
		Status:    StatusActive,
		White:     strings.TrimSpace(white),
		Black:     strings.TrimSpace(black),
		CreatedAt: now,
		UpdatedAt: now,
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, keyMatch(m.ID), raw, ttlMatch)
	pipe.Set(ctx, keyCurrent(), m.ID, ttlMatch)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *RedisStore) Current(ctx context.Context) (*Match, error) {
	id, err := s.rdb.Get(ctx, keyCurrent()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.get(ctx, s.rdb, id)
}

// Load returns the match by ID, or nil when it expired.
func (s *RedisStore) Load(ctx context.Context, id string) (*Match, error) {
	return s.get(ctx, s.rdb, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) get(ctx context.Context, c getter, id string) (*Match, error) {
	raw, err := c.Get(ctx, keyMatch(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m Match
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *RedisStore) CommitSnapshot(ctx context.Context, id string, version uint64, board string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, ErrInvalidArgs
	}
	accepted := false
	err := s.update(ctx, id, func(m *Match) error {
		if m.Status != StatusActive {
			return ErrFinished
		}
		accepted = m.accept(version, board, s.now())
		if !accepted {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return false, nil
	}
	return accepted, err
}

func (s *RedisStore) Finish(ctx context.Context, id, result string) (*Match, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(result) == "" {
		return nil, ErrInvalidArgs
	}
	var out *Match
	err := s.update(ctx, id, func(m *Match) error {
		if m.Status == StatusFinished {
			return ErrFinished
		}
		m.finish(result, s.now())
		out = m.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

var errUnchanged = errors.New("unchanged")

// update runs fn on the stored match under WATCH and writes the result back
// in a transaction. A concurrent writer makes Exec fail with TxFailedErr; the
// update is retried a few times before giving up.
func (s *RedisStore) update(ctx context.Context, id string, fn func(*Match) error) error {
	key := keyMatch(id)
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			m, err := s.get(ctx, tx, id)
			if err != nil {
				return err
			}
			if m == nil {
				return ErrMatchGone
			}
			if err := fn(m); err != nil {
				return err
			}
			raw, err := json.Marshal(m)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, raw, ttlMatch)
				return nil
			})
			return err
		}, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}

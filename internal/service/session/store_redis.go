package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	sessionModel "github.com/lingobridge/backend/internal/model/session"
)

const (
	sessionKeyPrefix = "session:"
	codeKeyPrefix    = "session:code:"

	// Sessions outlive any realistic encounter; keys expire a day after the
	// last write so ended sessions eventually vanish.
	defaultSessionTTL = 24 * time.Hour
)

// RedisStore persists sessions as JSON blobs so they survive relay restarts
// and can be shared by multiple relay nodes.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Create(ctx context.Context, s *sessionModel.Session) error {
	key := sessionKeyPrefix + s.ID
	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ok, err := r.client.SetNX(ctx, key, val, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicateID
	}

	if s.SessionCode != "" {
		if err := r.client.Set(ctx, codeKeyPrefix+s.SessionCode, s.ID, r.ttl).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*sessionModel.Session, error) {
	val, err := r.client.Get(ctx, sessionKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s sessionModel.Session
	if err := json.Unmarshal([]byte(val), &s); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) GetByCode(ctx context.Context, code string) (*sessionModel.Session, error) {
	id, err := r.client.Get(ctx, codeKeyPrefix+code).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

func (r *RedisStore) Update(ctx context.Context, s *sessionModel.Session) error {
	key := sessionKeyPrefix + s.ID
	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ok, err := r.client.SetXX(ctx, key, val, r.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownID
	}
	if s.SessionCode != "" {
		if err := r.client.Set(ctx, codeKeyPrefix+s.SessionCode, s.ID, r.ttl).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }

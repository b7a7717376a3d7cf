package devidp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyIdentity      = "devidp:identity:"
	keyIdentityEmail = "devidp:identity_email:"
	keyIdentities    = "devidp:identities"
	keyFlow          = "devidp:flow:"
	keySession       = "devidp:session:"

	// expired flows stay readable for a while so they answer 410, not 404
	flowRetention = time.Hour
)

// RedisStore keeps devidp state in Redis so several instances can share it.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisStoreWithURL creates a store from a redis:// URL.
func NewRedisStoreWithURL(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return NewRedisStore(redis.NewClient(opts)), nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) CreateIdentity(ctx context.Context, identity *Identity) error {
	ok, err := s.client.SetNX(ctx, keyIdentityEmail+identity.Email, identity.ID, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}

	raw, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, keyIdentity+identity.ID, raw, 0)
	pipe.SAdd(ctx, keyIdentities, identity.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) IdentityByID(ctx context.Context, id string) (*Identity, error) {
	var identity Identity
	if err := s.getJSON(ctx, keyIdentity+id, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

func (s *RedisStore) IdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	id, err := s.client.Get(ctx, keyIdentityEmail+email).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.IdentityByID(ctx, id)
}

func (s *RedisStore) ListIdentities(ctx context.Context) ([]*Identity, error) {
	ids, err := s.client.SMembers(ctx, keyIdentities).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*Identity, 0, len(ids))
	for _, id := range ids {
		identity, err := s.IdentityByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *RedisStore) SaveFlow(ctx context.Context, flow *Flow) error {
	return s.setJSON(ctx, keyFlow+flow.ID, flow, time.Until(flow.ExpiresAt)+flowRetention)
}

func (s *RedisStore) Flow(ctx context.Context, id string) (*Flow, error) {
	var flow Flow
	if err := s.getJSON(ctx, keyFlow+id, &flow); err != nil {
		return nil, err
	}
	return &flow, nil
}

func (s *RedisStore) SaveSession(ctx context.Context, session *Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("devidp: session %s already expired", session.ID)
	}
	return s.setJSON(ctx, keySession+session.Token, session, ttl)
}

func (s *RedisStore) SessionByToken(ctx context.Context, token string) (*Session, error) {
	var session Session
	if err := s.getJSON(ctx, keySession+token, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, token string) error {
	n, err := s.client.Del(ctx, keySession+token).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, raw, ttl).Err()
}

func (s *RedisStore) getJSON(ctx context.Context, key string, v any) error {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal(raw, v)
}

// Package redisstore keeps the session in Redis so several processes can share
// one login.
package redisstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/jrsteele09/go-fleet-client/session"
)

var _ session.Store = (*Store)(nil)

type Store struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
}

type Option func(*Store)

// WithKeyPrefix namespaces every key as "<prefix>:<key>".
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.keyPrefix = prefix
	}
}

// WithTTL expires every written key after ttl. Zero keeps keys forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

func New(client redis.Cmdable, opts ...Option) *Store {
	if client == nil {
		panic("[redisstore.New] client is required")
	}
	s := &Store{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromURL connects using a redis:// URL and verifies the connection.
func NewFromURL(ctx context.Context, url string, opts ...Option) (*Store, *redis.Client, error) {
	o, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, errors.Wrap(err, "redisstore.NewFromURL parse")
	}
	client := redis.NewClient(o)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, errors.Wrapf(err, "redisstore.NewFromURL ping %s", o.Addr)
	}
	return New(client, opts...), client, nil
}

func (s *Store) key(k string) string {
	if s.keyPrefix == "" {
		return k
	}
	return s.keyPrefix + ":" + k
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(err, "Store.Get")
	}
	return v, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return errors.Wrap(s.client.Set(ctx, s.key(key), value, s.ttl).Err(), "Store.Set")
}

func (s *Store) Clear(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	return errors.Wrap(s.client.Del(ctx, full...).Err(), "Store.Clear")
}

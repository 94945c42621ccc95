// Package redisstore is a storage.LocalStore kept in Redis, for kiosks and
// shared terminals where the profile should outlive the local disk.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/jrsteele09/go-hotspot-client/internal/errors"
	"github.com/jrsteele09/go-hotspot-client/storage"
	"github.com/redis/go-redis/v9"
)

var _ storage.LocalStore = (*Store)(nil)

const defaultOpTimeout = 3 * time.Second

// Store keeps each record at <prefix><key>.
type Store struct {
	client    redis.UniversalClient
	prefix    string
	opTimeout time.Duration
}

type Option func(*Store)

// WithPrefix namespaces keys, e.g. per device.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithOpTimeout bounds each Redis round trip.
func WithOpTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:    client,
		prefix:    "hotspot:",
		opTimeout: defaultOpTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, url string, opts ...Option) (*Store, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("[redisstore Connect] parse url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("[redisstore Connect] ping: %w", err)
	}
	return New(client, opts...), nil
}

func (s *Store) Load(key string, v any) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("[redisstore Load] %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.Wrapf(err, "[redisstore Load] decode %s", key)
	}
	return nil
}

func (s *Store) Save(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("[redisstore Save] encode %s: %w", key, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()
	if err := s.client.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("[redisstore Save] %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.opTimeout)
	defer cancel()
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("[redisstore Remove] %s: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

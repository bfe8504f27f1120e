package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/hash"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key the store writes.
const DefaultPrefix = "weft:"

// Store implements ports.EffectStore using Redis. Resolutions are stored as JSON,
// so numeric values come back as float64.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Store)

// WithTTL sets the expiration for resolutions.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithClock replaces the clock used for timestamps and index expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Client exposes the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(id hash.Hash) string {
	return s.prefix + "effect:" + id.String()
}

func (s *Store) indexKey() string {
	return s.prefix + "effects"
}

// Resolve records value as the effect's result.
func (s *Store) Resolve(ctx context.Context, effect *domain.Effect, value any) error {
	if _, err := domain.ResultOf(value); err != nil {
		return fmt.Errorf("resolve %s: %w", effect.ID, err)
	}
	return s.save(ctx, &domain.Resolution{EffectID: effect.ID, Type: effect.Type, Value: value})
}

// Reject records a failure for the effect.
func (s *Store) Reject(ctx context.Context, effect *domain.Effect, message string) error {
	return s.save(ctx, &domain.Resolution{EffectID: effect.ID, Type: effect.Type, Error: message, Failed: true})
}

func (s *Store) save(ctx context.Context, r *domain.Resolution) error {
	now := s.now()
	r.UpdatedAt = now
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal resolution: %w", err)
	}

	pipe := s.client.TxPipeline()

	pipe.Set(ctx, s.key(r.EffectID), data, s.ttl)

	// Index score is the expiry time; entries without TTL never expire.
	score := float64(now.Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{
		Score:  score,
		Member: r.EffectID.String(),
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Get retrieves the stored resolution.
func (s *Store) Get(ctx context.Context, id hash.Hash) (*domain.Resolution, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("%s: %w", id, domain.ErrResolutionNotFound)
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var r domain.Resolution
	if err := json.Unmarshal(val, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal resolution: %w", err)
	}
	return &r, nil
}

// Lookup serves the store as an effect source.
func (s *Store) Lookup(ctx context.Context, id hash.Hash) (domain.Expression, bool, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrResolutionNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	expr, err := r.Expression()
	if err != nil {
		return nil, false, err
	}
	return expr, true, nil
}

// Forget removes resolutions and their index entries.
func (s *Store) Forget(ctx context.Context, ids ...hash.Hash) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
		members[i] = id.String()
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, s.indexKey(), members...)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns the stored effect ids, pruning expired index entries first.
func (s *Store) List(ctx context.Context) ([]hash.Hash, error) {
	now := float64(s.now().Unix())
	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("(%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired resolutions: %w", err)
	}

	members, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list resolutions: %w", err)
	}

	ids := make([]hash.Hash, 0, len(members))
	for _, m := range members {
		id, err := hash.Parse(m)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

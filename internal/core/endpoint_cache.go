package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/target/pushgate/internal/domain/model"
)

// EndpointCacheService is a read-through cache of endpoint + channel snapshots.
//
// Concurrent misses for the same id may each read the store and overwrite the entry;
// the store read is idempotent so no locking is done.
type EndpointCacheService struct {
	cache     CacheRepository
	endpoints EndpointRepository
	ttl       time.Duration
	logger    *slog.Logger
}

// EndpointCacheConfig holds configuration for endpoint caching.
type EndpointCacheConfig struct {
	TTL time.Duration `json:"ttl"`
}

// EndpointCacheServiceOptions bundles dependencies for NewEndpointCacheService.
type EndpointCacheServiceOptions struct {
	Cache     CacheRepository
	Endpoints EndpointRepository
	Config    EndpointCacheConfig
	Logger    *slog.Logger
}

// DefaultEndpointCacheConfig returns an EndpointCacheConfig with a 60 second TTL.
func DefaultEndpointCacheConfig() EndpointCacheConfig {
	return EndpointCacheConfig{TTL: 60 * time.Second}
}

// NewEndpointCacheService creates a new EndpointCacheService.
func NewEndpointCacheService(opts EndpointCacheServiceOptions) (*EndpointCacheService, error) {
	if opts.Cache == nil {
		return nil, errors.New("cache repository is required")
	}
	if opts.Endpoints == nil {
		return nil, errors.New("endpoint repository is required")
	}
	ttl := opts.Config.TTL
	if ttl <= 0 {
		ttl = DefaultEndpointCacheConfig().TTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EndpointCacheService{
		cache:     opts.Cache,
		endpoints: opts.Endpoints,
		ttl:       ttl,
		logger:    logger.With("component", "endpoint_cache"),
	}, nil
}

// Get returns the endpoint snapshot for id, or nil when the endpoint does not exist.
// Only store failures are returned as errors; cache failures fall back to the store.
func (s *EndpointCacheService) Get(ctx context.Context, id string) (*model.EndpointWithChannel, error) {
	if id == "" {
		return nil, nil
	}

	key := endpointKey(id)
	if ep, ok := s.lookup(ctx, key); ok {
		return ep, nil
	}

	ep, err := s.endpoints.GetWithChannel(ctx, id)
	if errors.Is(err, model.ErrEndpointNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load endpoint %s: %w", id, err)
	}

	s.store(ctx, key, ep)
	return ep, nil
}

// Invalidate removes the cached snapshot for id.
// Call after an endpoint is edited or deleted.
func (s *EndpointCacheService) Invalidate(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := s.cache.Delete(ctx, endpointKey(id)); err != nil {
		return fmt.Errorf("invalidate endpoint %s: %w", id, err)
	}
	return nil
}

// InvalidateByChannel removes the cached snapshot of every endpoint bound to channelID.
// Call after a channel's credentials change so no endpoint keeps serving stale values.
func (s *EndpointCacheService) InvalidateByChannel(ctx context.Context, channelID string) (int, error) {
	if channelID == "" {
		return 0, nil
	}

	ids, err := s.endpoints.ListIDsByChannel(ctx, channelID)
	if err != nil {
		return 0, fmt.Errorf("list endpoints for channel %s: %w", channelID, err)
	}

	var errs []error
	for _, id := range ids {
		if err := s.Invalidate(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return len(ids), errors.Join(errs...)
}

func (s *EndpointCacheService) lookup(ctx context.Context, key string) (*model.EndpointWithChannel, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "endpoint cache read failed", "key", key, "error", err)
		return nil, false
	}
	if len(raw) == 0 {
		return nil, false
	}

	var ep model.EndpointWithChannel
	if err := json.Unmarshal(raw, &ep); err != nil || ep.ID == "" {
		s.logger.WarnContext(ctx, "evicting corrupt endpoint cache entry", "key", key, "error", err)
		if _, derr := s.cache.Delete(ctx, key); derr != nil {
			s.logger.WarnContext(ctx, "endpoint cache evict failed", "key", key, "error", derr)
		}
		return nil, false
	}
	return &ep, true
}

func (s *EndpointCacheService) store(ctx context.Context, key string, ep *model.EndpointWithChannel) {
	raw, err := json.Marshal(ep)
	if err != nil {
		s.logger.WarnContext(ctx, "endpoint cache encode failed", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "endpoint cache write failed", "key", key, "error", err)
	}
}

// endpointKey generates a cache key for an endpoint snapshot.
// EndpointKeyPrefix prefixes every endpoint snapshot key.
const EndpointKeyPrefix = "push:endpoint:"

func endpointKey(id string) string {
	return EndpointKeyPrefix + id
}

package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/relaynet/go-relay-network/pkg/network"
	"github.com/relaynet/go-relay-network/pkg/request"
	"github.com/relaynet/go-relay-network/pkg/response"
)

// DefaultCacheTTL - default time to live of a cached response.
const DefaultCacheTTL = 5 * time.Minute

// Store keeps encoded responses, see MemoryStore and RedisStore.
type Store interface {
	// Get returns the value, found is false if the key does not exist or it is expired.
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	// Set stores the value with the time to live.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Clear removes all values.
	Clear(ctx context.Context) error
}

// CacheConfig configures the Cache middleware.
type CacheConfig struct {
	Store Store
	// TTL of cached responses, DefaultCacheTTL is used if zero.
	TTL time.Duration
	// ClearOnMutation clears the store after each successful mutation.
	ClearOnMutation bool
	// OnStoreError is called if the store fails. The failed read is handled as a miss.
	OnStoreError func(ctx context.Context, req *request.Request, err error)
}

// Cache returns cached responses of queries.
//
// On a hit, the rest of the chain is not called. On a miss, a successful response is stored.
// Mutations and form data requests are never cached.
// A request with Cache.Skip bypasses the cache, a request with Cache.Force skips the read
// but its response is stored.
func Cache(cfg CacheConfig) network.Middleware {
	if cfg.Store == nil {
		panic(fmt.Errorf("cache store cannot be nil"))
	}
	if cfg.TTL == 0 {
		cfg.TTL = DefaultCacheTTL
	}

	storeError := func(ctx context.Context, req *request.Request, err error) {
		if cfg.OnStoreError != nil {
			cfg.OnStoreError(ctx, req, err)
		}
	}

	return func(next network.NextFunc) network.NextFunc {
		return func(ctx context.Context, req *request.Request) (*response.Response, error) {
			if req.IsMutation() || req.IsFormData() {
				res, err := next(ctx, req)
				if err == nil && cfg.ClearOnMutation && req.IsMutation() {
					if clearErr := cfg.Store.Clear(ctx); clearErr != nil {
						storeError(ctx, req, fmt.Errorf("cannot clear cache: %w", clearErr))
					}
				}
				return res, err
			}

			if req.Cache.Skip {
				return next(ctx, req)
			}

			key, err := req.ID()
			if err != nil {
				// Not cacheable, the transport reports the encoding error
				storeError(ctx, req, fmt.Errorf("cannot create cache key: %w", err))
				return next(ctx, req)
			}
			if !req.Cache.Force {
				res, found, err := cacheGet(ctx, cfg.Store, key)
				if err != nil {
					storeError(ctx, req, err)
				} else if found {
					return res, nil
				}
			}

			res, err := next(ctx, req)
			if err == nil && isCacheable(res) {
				if setErr := cacheSet(ctx, cfg.Store, key, res, cfg.TTL); setErr != nil {
					storeError(ctx, req, setErr)
				}
			}
			return res, err
		}
	}
}

func isCacheable(res *response.Response) bool {
	return res != nil && res.OK && !res.HasErrors() && res.Data != nil
}

func cacheGet(ctx context.Context, store Store, key string) (*response.Response, bool, error) {
	value, found, err := store.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("cannot read cache: %w", err)
	} else if !found {
		return nil, false, nil
	}

	res := &response.Response{}
	if err := json.Unmarshal(value, res); err != nil {
		return nil, false, fmt.Errorf("cannot decode cached response: %w", err)
	}
	return res, true, nil
}

func cacheSet(ctx context.Context, store Store, key string, res *response.Response, ttl time.Duration) error {
	value, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("cannot encode response: %w", err)
	}
	if err := store.Set(ctx, key, value, ttl); err != nil {
		return fmt.Errorf("cannot write cache: %w", err)
	}
	return nil
}

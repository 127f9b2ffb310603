package push

import (
	"context"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"mediapipe/internal/metrics"
	"mediapipe/internal/store"
)

// TokenStore is the persistence behind the directory.
type TokenStore interface {
	RegisterDeviceToken(ctx context.Context, token store.DeviceToken) error
	RemoveDeviceTokens(ctx context.Context, tokens ...string) (int64, error)
	DeviceTokens(ctx context.Context, userIDs []string) (map[string][]string, error)
}

// TokenDirectory resolves user ids to device tokens.
type TokenDirectory struct {
	store TokenStore
	cache *expirable.LRU[string, []string]
}

// NewTokenDirectory creates a directory caching up to size users for ttl.
func NewTokenDirectory(st TokenStore, size int, ttl time.Duration) *TokenDirectory {
	if size <= 0 {
		size = 1024
	}
	return &TokenDirectory{
		store: st,
		cache: expirable.NewLRU[string, []string](size, nil, ttl),
	}
}

// Tokens returns the deduplicated tokens of every user in userIDs. Users
// without tokens contribute nothing.
func (d *TokenDirectory) Tokens(ctx context.Context, userIDs []string) ([]string, error) {
	var (
		tokens  []string
		missing []string
	)
	for _, id := range userIDs {
		if cached, ok := d.cache.Get(id); ok {
			metrics.TokenCacheHitsTotal.Inc()
			tokens = append(tokens, cached...)
			continue
		}
		metrics.TokenCacheMissesTotal.Inc()
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		fetched, err := d.store.DeviceTokens(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, id := range missing {
			userTokens := fetched[id]
			d.cache.Add(id, userTokens)
			tokens = append(tokens, userTokens...)
		}
	}

	slices.Sort(tokens)
	return slices.Compact(tokens), nil
}

// Register stores a token and drops cached entries it affects. A token that
// moves between users invalidates its previous owner too.
func (d *TokenDirectory) Register(ctx context.Context, token store.DeviceToken) error {
	if err := d.store.RegisterDeviceToken(ctx, token); err != nil {
		return err
	}
	d.forget(token.Token)
	d.cache.Remove(token.UserID)
	return nil
}

// Remove deletes tokens from the store and the cache.
func (d *TokenDirectory) Remove(ctx context.Context, tokens ...string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	removed, err := d.store.RemoveDeviceTokens(ctx, tokens...)
	if err != nil {
		return 0, err
	}
	d.forget(tokens...)
	return removed, nil
}

func (d *TokenDirectory) forget(tokens ...string) {
	for _, user := range d.cache.Keys() {
		cached, ok := d.cache.Peek(user)
		if !ok {
			continue
		}
		for _, token := range tokens {
			if slices.Contains(cached, token) {
				d.cache.Remove(user)
				break
			}
		}
	}
}

// Package cache provides the adapters backing derived authorization caches
// such as role hierarchy reachability.
//
// Keys are namespaced by a scope prefix (see Key). Adapters implementing
// PrefixClearer can evict a single scope, others only support a full Clear.
package cache

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidKey is returned for empty cache keys
var ErrInvalidKey = errors.New("invalid cache key")

// Separator joins a scope prefix and the rest of a key
const Separator = ":"

// Adapter stores string lists under string keys
type Adapter interface {
	// Get returns the cached value and whether it was found
	Get(ctx context.Context, key string) ([]string, bool, error)

	// Set stores a value
	Set(ctx context.Context, key string, value []string) error

	// Clear drops every entry
	Clear(ctx context.Context) error
}

// PrefixClearer is implemented by adapters able to evict a single scope
type PrefixClearer interface {
	ClearByPrefixes(ctx context.Context, prefixes ...string) error
}

// Key builds a scoped cache key
func Key(prefix, id string) string {
	return prefix + Separator + id
}

// hasScope reports whether key belongs to one of the scope prefixes
func hasScope(key string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix+Separator) {
			return true
		}
	}
	return false
}

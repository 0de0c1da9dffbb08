// Package revocation implements the access-token blacklist. Entries live
// exactly as long as the token they revoke would have, so the set never
// outgrows the population of live tokens.
//
// Callers must treat any error from IsRevoked as "revoked": the check is a
// security gate and fails closed.
package revocation

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps backend failures.
var ErrUnavailable = errors.New("revocation store unavailable")

// Store is a TTL-keyed set of revoked token digests.
type Store interface {
	// Add revokes key for ttl. Non-positive ttls are ignored: the token has
	// already expired on its own.
	Add(ctx context.Context, key string, ttl time.Duration) error
	// IsRevoked reports whether key is currently revoked.
	IsRevoked(ctx context.Context, key string) (bool, error)
	// Close releases backend resources.
	Close() error
}

const keyPrefix = "blacklist:"

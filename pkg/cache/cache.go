// Package cache stores rendered diagrams so repeated renders of an unchanged
// scenario skip the replay and the Graphviz pass.
//
// A scenario replay is deterministic, so a diagram is fully determined by
// the manifest bytes and the render options. [DiagramKey] hashes both.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Cache is a byte store with optional expiry.
type Cache interface {
	// Get returns the stored value and whether it was found.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores data under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

// Hash computes the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DiagramKey identifies a diagram rendered from a manifest.
func DiagramKey(manifest []byte, format string, detailed bool, drain int) string {
	return fmt.Sprintf("diagram:%s:%s:%t:%d", Hash(manifest), format, detailed, drain)
}

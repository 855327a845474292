// Package store provides the badger-backed durable storage: the
// encrypted interaction log and the key-value state.
package store

import "github.com/user/preflight/internal/types"

// Compile-time interface compliance checks.
var _ types.InteractionStore = (*Interactions)(nil)
var _ types.KeyValueStore = (*KV)(nil)

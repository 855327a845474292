// Package crypto is the AES-GCM field encryption service. Random-IV
// output protects data at rest; deterministic-IV output keeps equal
// plaintexts joinable for server-side aggregation without revealing
// them.
package crypto

import "github.com/user/preflight/internal/types"

// Compile-time interface compliance check.
var _ types.Cipher = (*Service)(nil)

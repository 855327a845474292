// internal/types/ids.go
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppID string
type ComponentID string
type ActionType string
type SubscriptionID string

// NewSubscriptionID returns a unique id for an interaction-bus listener.
func NewSubscriptionID() SubscriptionID {
	return SubscriptionID(uuid.New().String())
}

// NewRequestID returns a unique id attached to outbound sync requests.
func NewRequestID() string {
	return uuid.New().String()
}

// FallbackAppID returns the local-only app id used when registration with
// the aggregator fails. The daemon keeps operating; sync calls carrying a
// fallback id are expected to be rejected server-side.
func FallbackAppID(now time.Time) AppID {
	return AppID(fmt.Sprintf("fallback-%d", now.UnixMilli()))
}

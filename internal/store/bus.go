// internal/store/bus.go
package store

import (
	"sync"

	"github.com/user/preflight/internal/types"
)

// bus fans a saved interaction out to listeners, synchronously and in
// registration order. Save publishes only after commit, while still
// holding the save serialization lock, so listeners observe saves in
// commit order.
type bus struct {
	mu   sync.RWMutex
	subs []subscriber
}

type subscriber struct {
	id types.SubscriptionID
	fn func(*types.InteractionData)
}

func (b *bus) subscribe(fn func(*types.InteractionData)) types.SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := types.NewSubscriptionID()
	b.subs = append(b.subs, subscriber{id: id, fn: fn})
	return id
}

func (b *bus) publish(rec *types.InteractionData) {
	b.mu.RLock()
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()
	for _, s := range subs {
		s.fn(rec)
	}
}

// internal/types/interfaces.go
package types

import "context"

// InteractionStore is the durable, encrypted interaction log. Save
// publishes the plaintext record to subscribers only after the row has
// committed; listeners run in registration order.
type InteractionStore interface {
	Save(ctx context.Context, rec *InteractionData) error
	List(ctx context.Context) ([]*InteractionData, error)
	LookupByComponent(ctx context.Context, id ComponentID) (*InteractionData, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
	Subscribe(fn func(*InteractionData)) SubscriptionID
}

// KeyValueStore holds small durable state (app id, deterministic IV map).
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Cipher seals and opens field values. Encrypt draws a fresh random IV;
// EncryptDeterministic reuses a per-plaintext IV persisted through the
// key-value store so equal plaintexts yield equal ciphertexts.
type Cipher interface {
	Encrypt(plaintext string) (ciphertext, iv string, err error)
	EncryptDeterministic(ctx context.Context, plaintext string) (ciphertext, iv string, err error)
	Decrypt(ciphertext, iv string) (string, error)
}

// Fetcher is the application-supplied preload hook. Fetch is expected to
// bring the component's resources into whatever cache the application
// uses; URL conventions are the application's choice.
type Fetcher interface {
	Fetch(ctx context.Context, desc *ComponentDescriptor) error
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, desc *ComponentDescriptor) error

func (f FetcherFunc) Fetch(ctx context.Context, desc *ComponentDescriptor) error {
	return f(ctx, desc)
}

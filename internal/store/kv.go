// internal/store/kv.go
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const statePrefix = "state/"

// KV is small durable key-value state (app id, deterministic IV map)
// kept alongside the interaction log in the same database.
type KV struct {
	db *badger.DB
}

// NewKV wraps the database in a KeyValueStore.
func NewKV(db *badger.DB) *KV {
	return &KV{db: db}
}

// Get returns the value for key, reporting presence separately from
// errors.
func (s *KV) Get(_ context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(statePrefix + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set writes the value for key in a single transaction.
func (s *KV) Set(_ context.Context, key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(statePrefix+key), value)
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// internal/store/interactions.go
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/user/preflight/internal/telemetry"
	"github.com/user/preflight/internal/types"
)

const (
	interactionPrefix = "interaction/"
	componentPrefix   = "component/"
	interactionSeqKey = "seq/interactions"
)

// Interactions is the durable append-only interaction log. Rows are
// encrypted per field before the transaction opens: the action type with
// a fresh random IV (no equality leaks at rest), the component id with
// its deterministic IV so the component/<ct>/<seq> secondary index is
// usable for equality lookup.
type Interactions struct {
	db     *badger.DB
	cipher types.Cipher
	seq    *badger.Sequence

	// saveMu makes encrypt → transaction → commit → notify one critical
	// section, so listener notification order equals commit order.
	saveMu sync.Mutex
	bus    bus
}

// NewInteractions opens the interaction log over an already-open
// database. Close releases the id sequence.
func NewInteractions(db *badger.DB, cipher types.Cipher) (*Interactions, error) {
	seq, err := db.GetSequence([]byte(interactionSeqKey), 64)
	if err != nil {
		return nil, fmt.Errorf("open interaction sequence: %w", err)
	}
	return &Interactions{db: db, cipher: cipher, seq: seq}, nil
}

// Close releases the auto-increment sequence lease.
func (s *Interactions) Close() error {
	return s.seq.Release()
}

func interactionKey(id uint64) []byte {
	return fmt.Appendf(nil, "%s%020d", interactionPrefix, id)
}

func componentIndexKey(ciphertext string, id uint64) []byte {
	return fmt.Appendf(nil, "%s%s/%020d", componentPrefix, ciphertext, id)
}

// Save encrypts, commits, and then publishes the plaintext record to
// subscribers. On commit failure nothing is published and the error is
// surfaced; the row commits atomically or not at all.
func (s *Interactions) Save(ctx context.Context, rec *types.InteractionData) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	actionCT, actionIV, err := s.cipher.Encrypt(string(rec.ActionType))
	if err != nil {
		return fmt.Errorf("encrypt action type: %w", err)
	}
	compCT, compIV, err := s.cipher.EncryptDeterministic(ctx, string(rec.ComponentID))
	if err != nil {
		return fmt.Errorf("encrypt component id: %w", err)
	}

	row := types.StoredInteraction{
		ActionType:    actionCT,
		ActionTypeIV:  actionIV,
		ComponentID:   compCT,
		ComponentIDIV: compIV,
		Timestamp:     rec.Timestamp,
	}
	data, err := json.Marshal(&row)
	if err != nil {
		return fmt.Errorf("marshal interaction: %w", err)
	}

	id, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next interaction id: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		key := interactionKey(id)
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(componentIndexKey(compCT, id), key)
	})
	if err != nil {
		return fmt.Errorf("commit interaction: %w", err)
	}

	telemetry.InteractionsSaved.Inc()
	s.bus.publish(rec)
	return nil
}

// List returns all interactions decrypted, in insertion order.
func (s *Interactions) List(_ context.Context) ([]*types.InteractionData, error) {
	var recs []*types.InteractionData
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(interactionPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var row types.StoredInteraction
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &row)
			})
			if err != nil {
				return fmt.Errorf("read interaction row: %w", err)
			}
			rec, err := s.decryptRow(&row)
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// LookupByComponent returns the first stored interaction for the given
// component id, or nil when none exists. The component ciphertext is
// deterministic, so the lookup is a prefix scan on the secondary index.
func (s *Interactions) LookupByComponent(ctx context.Context, id types.ComponentID) (*types.InteractionData, error) {
	compCT, _, err := s.cipher.EncryptDeterministic(ctx, string(id))
	if err != nil {
		return nil, fmt.Errorf("encrypt component id: %w", err)
	}

	var rowKey []byte
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(componentPrefix + compCT + "/")
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Rewind()
		if !it.Valid() {
			return nil
		}
		rowKey, err = it.Item().ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("scan component index: %w", err)
	}
	if rowKey == nil {
		return nil, nil
	}

	var row types.StoredInteraction
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(rowKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &row)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read interaction row: %w", err)
	}
	return s.decryptRow(&row)
}

// Count returns the number of stored interactions.
func (s *Interactions) Count(_ context.Context) (int64, error) {
	var count int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(interactionPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// Clear drops all interaction rows and their index entries.
func (s *Interactions) Clear(_ context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	err := s.db.DropPrefix([]byte(interactionPrefix), []byte(componentPrefix))
	if err != nil {
		return fmt.Errorf("clear interactions: %w", err)
	}
	return nil
}

// Subscribe registers a listener for saved interactions. Listeners run
// synchronously after commit, in registration order.
func (s *Interactions) Subscribe(fn func(*types.InteractionData)) types.SubscriptionID {
	return s.bus.subscribe(fn)
}

func (s *Interactions) decryptRow(row *types.StoredInteraction) (*types.InteractionData, error) {
	action, err := s.cipher.Decrypt(row.ActionType, row.ActionTypeIV)
	if err != nil {
		return nil, fmt.Errorf("decrypt action type: %w", err)
	}
	comp, err := s.cipher.Decrypt(row.ComponentID, row.ComponentIDIV)
	if err != nil {
		return nil, fmt.Errorf("decrypt component id: %w", err)
	}
	return &types.InteractionData{
		ComponentID: types.ComponentID(comp),
		ActionType:  types.ActionType(action),
		Timestamp:   row.Timestamp,
	}, nil
}

// internal/crypto/ivmap.go
package crypto

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/user/preflight/internal/types"
)

// ivMapKey is the key-value storage key holding the deterministic IV map,
// a JSON array of [plaintext, base64 IV] pairs.
const ivMapKey = "ivMap"

// ivMap maps plaintexts to their deterministic IVs. Entries are
// append-only: once written, a pair is never mutated, so ciphertexts for
// a given plaintext stay stable within and across sessions. The map is
// persisted before a newly allocated IV is ever used.
type ivMap struct {
	mu    sync.Mutex
	kv    types.KeyValueStore
	ivs   map[string][]byte
	order []string
}

func loadIVMap(ctx context.Context, kv types.KeyValueStore) (*ivMap, error) {
	m := &ivMap{kv: kv, ivs: make(map[string][]byte)}
	data, ok, err := kv.Get(ctx, ivMapKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return m, nil
	}
	var pairs [][2]string
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("parse iv map: %w", err)
	}
	for _, p := range pairs {
		iv, err := base64.StdEncoding.DecodeString(p[1])
		if err != nil {
			return nil, fmt.Errorf("decode iv for %q: %w", p[0], err)
		}
		m.ivs[p[0]] = iv
		m.order = append(m.order, p[0])
	}
	return m, nil
}

// ivFor returns the IV recorded for plaintext, allocating, inserting, and
// persisting a fresh one first if absent. The insert-and-persist is one
// critical section so concurrent callers cannot race two IVs for the same
// plaintext.
func (m *ivMap) ivFor(ctx context.Context, plaintext string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if iv, ok := m.ivs[plaintext]; ok {
		return iv, nil
	}
	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	m.ivs[plaintext] = iv
	m.order = append(m.order, plaintext)
	if err := m.persist(ctx); err != nil {
		// Roll back so a later call retries the persist.
		delete(m.ivs, plaintext)
		m.order = m.order[:len(m.order)-1]
		return nil, fmt.Errorf("persist iv map: %w", err)
	}
	return iv, nil
}

// persist writes the map as ordered pairs. Caller must hold mu.
func (m *ivMap) persist(ctx context.Context) error {
	pairs := make([][2]string, 0, len(m.order))
	for _, pt := range m.order {
		pairs = append(pairs, [2]string{pt, base64.StdEncoding.EncodeToString(m.ivs[pt])})
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return err
	}
	return m.kv.Set(ctx, ivMapKey, data)
}

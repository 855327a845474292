// internal/remote/sync_test.go
package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/user/preflight/internal/crypto"
	"github.com/user/preflight/internal/predict"
	"github.com/user/preflight/internal/registry"
	"github.com/user/preflight/internal/types"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type fakeKV struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newFakeKV() *fakeKV {
	return &fakeKV{m: make(map[string][]byte)}
}

func (f *fakeKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.m[key]
	return v, ok, nil
}

func (f *fakeKV) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[key] = append([]byte(nil), value...)
	return nil
}

func newTestSyncer(t *testing.T, baseURL string, kv *fakeKV) (*Syncer, *crypto.Service, *predict.Engine) {
	t.Helper()
	cipher, err := crypto.New(context.Background(), testKey, kv)
	if err != nil {
		t.Fatal(err)
	}
	engine := predict.New(predict.DefaultParams(), registry.New())
	return NewSyncer(fastRetryClient(baseURL), engine, cipher, kv), cipher, engine
}

func TestEnsureAppIDRegistersAndPersists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"appId": "app-123"})
	}))
	defer server.Close()

	kv := newFakeKV()
	syncer, _, _ := newTestSyncer(t, server.URL, kv)
	syncer.ensureAppID(context.Background())

	if syncer.AppID() != "app-123" {
		t.Errorf("expected app-123, got %q", syncer.AppID())
	}
	stored, ok, _ := kv.Get(context.Background(), appIDKey)
	if !ok || string(stored) != "app-123" {
		t.Errorf("expected persisted app id, got %q (ok=%v)", stored, ok)
	}

	// A second syncer over the same storage loads without registering.
	syncer2, _, _ := newTestSyncer(t, "http://127.0.0.1:0", kv)
	syncer2.ensureAppID(context.Background())
	if syncer2.AppID() != "app-123" {
		t.Errorf("expected stored app id, got %q", syncer2.AppID())
	}
}

func TestEnsureAppIDFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadRequest)
	}))
	defer server.Close()

	syncer, _, _ := newTestSyncer(t, server.URL, newFakeKV())
	syncer.ensureAppID(context.Background())

	if !strings.HasPrefix(string(syncer.AppID()), "fallback-") {
		t.Errorf("expected fallback id, got %q", syncer.AppID())
	}
}

func TestUploadSkipsWithEmptyHistory(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer server.Close()

	syncer, _, _ := newTestSyncer(t, server.URL, newFakeKV())
	syncer.mu.Lock()
	syncer.appID = "app-123"
	syncer.mu.Unlock()

	if err := syncer.UploadNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if hits != 0 {
		t.Errorf("expected no upload for empty history, got %d requests", hits)
	}
}

func TestUploadEncryptsDeterministically(t *testing.T) {
	var got uploadRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
	}))
	defer server.Close()

	syncer, cipher, engine := newTestSyncer(t, server.URL, newFakeKV())
	syncer.mu.Lock()
	syncer.appID = "app-123"
	syncer.mu.Unlock()

	for i, action := range []types.ActionType{"clickX", "clickY", "clickX"} {
		engine.Update(&types.InteractionData{
			ComponentID: "c1",
			ActionType:  action,
			Timestamp:   int64(i + 1),
		})
	}

	if err := syncer.UploadNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got.AppID != "app-123" {
		t.Errorf("expected appId app-123, got %q", got.AppID)
	}
	if len(got.Interactions) != 2 {
		t.Fatalf("expected 2 histogram entries, got %d", len(got.Interactions))
	}

	// First-appearance order: clickX before clickY.
	first := got.Interactions[0]
	if first.Count != 2 {
		t.Errorf("expected count 2 for first action, got %d", first.Count)
	}
	plain, err := cipher.Decrypt(first.ActionType, first.ActionTypeIV)
	if err != nil {
		t.Fatal(err)
	}
	if plain != "clickX" {
		t.Errorf("expected clickX, got %q", plain)
	}

	// The ciphertext must match an independent deterministic encryption.
	ct, iv, err := cipher.EncryptDeterministic(context.Background(), "clickX")
	if err != nil {
		t.Fatal(err)
	}
	if first.ActionType != ct || first.ActionTypeIV != iv {
		t.Error("upload ciphertext not deterministic")
	}
}

func TestFetchAndInstall(t *testing.T) {
	kv := newFakeKV()
	cipher, err := crypto.New(context.Background(), testKey, kv)
	if err != nil {
		t.Fatal(err)
	}

	// The server aggregates ciphertexts produced by clients; simulate
	// with the same deterministic encryption.
	ctX, ivX, err := cipher.EncryptDeterministic(context.Background(), "clickX")
	if err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(GlobalModelResponse{
			GlobalActionCounter:    map[string]int64{ctX: 9},
			GlobalActionCounterIVs: map[string]string{ctX: ivX},
			TimePatterns:           map[string]map[string]int64{ctX: {"14": 9}},
			TimePatternsIVs:        map[string]string{ctX: ivX},
		})
	}))
	defer server.Close()

	engine := predict.New(predict.DefaultParams(), registry.New())
	syncer := NewSyncer(fastRetryClient(server.URL), engine, cipher, kv)
	syncer.mu.Lock()
	syncer.appID = "app-123"
	syncer.mu.Unlock()

	if err := syncer.FetchAndInstall(context.Background()); err != nil {
		t.Fatal(err)
	}

	st := engine.ModelStats()
	if st.ActionsObserved != 9 || st.DistinctActions != 1 {
		t.Errorf("expected installed model, got %+v", st)
	}
}

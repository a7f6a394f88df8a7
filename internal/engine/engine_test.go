// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/accumulatenetwork/sigreq/config"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/internal/logging"
	"gitlab.com/accumulatenetwork/sigreq/internal/signers"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

var start = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func hexKey(b byte) string { return strings.Repeat(fmt.Sprintf("%02x", b), 32) }

func pubKey(t *testing.T, b byte) keytree.PublicKey {
	k, err := keytree.ParsePublicKey(hexKey(b))
	require.NoError(t, err)
	return k
}

type fakeMirror struct {
	mu       sync.Mutex
	calls    map[string]int
	accounts map[string]any
}

func newFakeMirror(t *testing.T) (*fakeMirror, string) {
	m := &fakeMirror{calls: map[string]int{}, accounts: map[string]any{}}
	srv := httptest.NewServer(m)
	t.Cleanup(srv.Close)
	return m, srv.URL
}

func (m *fakeMirror) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/accounts/")
	m.calls[id]++
	v, ok := m.accounts[id]
	if !ok {
		http.NotFound(w, r)
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func (m *fakeMirror) setAccount(id string, key any, receiverSigRequired bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[id] = map[string]any{
		"account":               id,
		"key":                   key,
		"receiver_sig_required": receiverSigRequired,
	}
}

func (m *fakeMirror) Calls(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[id]
}

func ed25519(b byte) map[string]any {
	return map[string]any{"_type": "ED25519", "key": hexKey(b)}
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestEngine(t *testing.T, mirrorURL string, clk *clock) *Engine {
	cfg := config.Default()
	cfg.Storage.Type = config.MemoryStorage
	cfg.Mirror.Networks = []config.Network{{Name: "testnet", URL: mirrorURL}}
	e, err := New(cfg, WithLogger(logging.NewTestLogger(t)), WithClock(clk.Now))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, e.Close()) })
	return e
}

func transferTx(validStart time.Time) []byte {
	return []byte(fmt.Sprintf(`{
		"transactionId": {"accountId": "0.0.1001", "validStart": %q},
		"validDuration": 180,
		"body": {"type": "cryptoTransfer", "transfers": [
			{"accountId": "0.0.1001", "amount": -5},
			{"accountId": "0.0.1002", "amount": 5}
		]}
	}`, validStart.Format(time.RFC3339)))
}

func TestReceiverToggle(t *testing.T) {
	mirror, url := newFakeMirror(t)
	mirror.setAccount("0.0.1001", ed25519(0xa), false)
	mirror.setAccount("0.0.1002", ed25519(0xb), false)
	clk := &clock{t: start}
	e := newTestEngine(t, url, clk)
	ctx := context.Background()

	audit, err := e.ResolveSignatureRequirement(ctx, transferTx(clk.Now()), ledger.Testnet)
	require.NoError(t, err)
	require.True(t, keytree.NewSet(pubKey(t, 0xa)).Equal(audit.RequiredKeys()))
	require.Equal(t, []ledger.EntityID{ledger.NewEntityID(1002)}, audit.ReceiverAccounts)

	// Within the fresh window the mirror is not asked again
	_, err = e.ResolveSignatureRequirement(ctx, transferTx(clk.Now()), ledger.Testnet)
	require.NoError(t, err)
	require.Equal(t, 1, mirror.Calls("0.0.1001"))
	require.Equal(t, 1, mirror.Calls("0.0.1002"))

	// Once the cached material is old the new flag is picked up
	mirror.setAccount("0.0.1002", ed25519(0xb), true)
	clk.Advance(10 * time.Minute)
	audit, err = e.ResolveSignatureRequirement(ctx, transferTx(clk.Now()), ledger.Testnet)
	require.NoError(t, err)
	require.True(t, keytree.NewSet(pubKey(t, 0xa), pubKey(t, 0xb)).Equal(audit.RequiredKeys()))
	require.Equal(t, 2, mirror.Calls("0.0.1002"))
}

func TestKeysStillOwed(t *testing.T) {
	mirror, url := newFakeMirror(t)
	mirror.setAccount("0.0.1001", map[string]any{
		"_type": "ProtobufEncoding",
		"key": protoThreshold(2,
			ledger.Ed25519Key(pubKey(t, 0xa)),
			ledger.Ed25519Key(pubKey(t, 0xb)),
			ledger.Ed25519Key(pubKey(t, 0xc))),
	}, false)
	mirror.setAccount("0.0.1002", nil, false)
	clk := &clock{t: start}
	e := newTestEngine(t, url, clk)

	audit, err := e.ResolveSignatureRequirement(context.Background(), transferTx(clk.Now()), ledger.Testnet)
	require.NoError(t, err)

	a, b, c := pubKey(t, 0xa), pubKey(t, 0xb), pubKey(t, 0xc)
	recorded := []signers.RecordedSignature{{PublicKey: a}}
	owed := e.KeysStillOwed(audit, keytree.NewSet(b, c), recorded)
	require.True(t, keytree.NewSet(b, c).Equal(owed))
	require.False(t, signers.IsComplete(audit, recorded))

	recorded = append(recorded, signers.RecordedSignature{PublicKey: b})
	require.True(t, signers.IsComplete(audit, recorded))
}

func protoThreshold(m uint32, keys ...*ledger.Key) string {
	return fmt.Sprintf("%x", ledger.NewThresholdKey(m, keys...).MarshalProto())
}

func TestSessions(t *testing.T) {
	mirror, url := newFakeMirror(t)
	mirror.setAccount("0.0.1001", ed25519(0xa), false)
	mirror.setAccount("0.0.1002", ed25519(0xb), false)
	clk := &clock{t: start}
	e := newTestEngine(t, url, clk)
	ctx := context.Background()

	// Sessions have their own in-process caches, but share the store
	for _, id := range []string{"one", "two"} {
		_, err := e.Session(id).ResolveBytes(ctx, transferTx(clk.Now()), ledger.Testnet)
		require.NoError(t, err)
	}
	require.Equal(t, 1, mirror.Calls("0.0.1001"))
	e.EndSession("one")
}

func TestLookup(t *testing.T) {
	mirror, url := newFakeMirror(t)
	mirror.setAccount("0.0.1001", ed25519(0xa), true)
	clk := &clock{t: start}
	e := newTestEngine(t, url, clk)
	ctx := context.Background()
	key := keycache.AccountKey(ledger.Testnet, ledger.NewEntityID(1001))

	_, err := e.Peek(ctx, key)
	require.ErrorIs(t, err, errors.NotFound)

	r, err := e.Lookup(ctx, key, false)
	require.NoError(t, err)
	require.True(t, r.ReceiverRequired())

	clk.Advance(time.Minute)
	_, err = e.Lookup(ctx, key, true)
	require.NoError(t, err)
	require.Equal(t, 2, mirror.Calls("0.0.1001"))

	r, err = e.Peek(ctx, key)
	require.NoError(t, err)
	require.True(t, clk.Now().Equal(r.LastCheckedAt))
}

func TestLookupFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	clk := &clock{t: start}
	e := newTestEngine(t, srv.URL, clk)

	audit, err := e.ResolveSignatureRequirement(context.Background(), transferTx(clk.Now()), ledger.Testnet)
	require.ErrorIs(t, err, errors.LookupFailed)
	require.Nil(t, audit)
}

func TestOpenStore(t *testing.T) {
	for _, typ := range []config.StorageType{config.MemoryStorage, config.BadgerStorage, config.SQLiteStorage} {
		t.Run(string(typ), func(t *testing.T) {
			cfg := config.Default()
			cfg.Storage.Type = typ
			cfg.Storage.Path = "keycache.db"
			s, err := OpenStore(cfg, t.TempDir(), logging.NewTestLogger(t))
			require.NoError(t, err)
			require.NoError(t, s.Close())
		})
	}

	cfg := config.Default()
	cfg.Storage.Type = "cassandra"
	_, err := OpenStore(cfg, t.TempDir(), logging.NewTestLogger(t))
	require.ErrorIs(t, err, errors.BadRequest)
}

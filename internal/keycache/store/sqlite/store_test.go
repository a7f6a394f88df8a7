// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache/storetest"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

func TestStore(t *testing.T) {
	storetest.TestStore(t, func(t testing.TB) keycache.Store {
		s, err := Open(filepath.Join(t.TempDir(), "keycache.db"))
		require.NoError(t, err)
		return s
	})
}

func TestSharedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "keycache.db")
	a, err := Open(file)
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(file)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	key := keycache.AccountKey(ledger.Testnet, ledger.NewEntityID(1001))
	_, ok, err := a.Claim(ctx, key, "a", storetest.Epoch, storetest.Epoch.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	r, ok, err := b.Claim(ctx, key, "b", storetest.Epoch, storetest.Epoch.Add(-time.Minute))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, "a", r.RefreshLease)

	_, ok, err = a.Complete(ctx, key, "a", &keycache.Update{KeyTree: storetest.Tree, VersionTag: "v1", CheckedAt: storetest.Epoch})
	require.NoError(t, err)
	require.True(t, ok)

	r, err = b.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, storetest.Tree.Equal(r.KeyTree))
	require.Equal(t, "v1", r.SourceVersionTag)
	require.Empty(t, r.RefreshLease)
}

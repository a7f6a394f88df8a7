// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package storetest is a conformance suite for keycache stores.
package storetest

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

type Opener = func(t testing.TB) keycache.Store

// Epoch is a millisecond aligned time so every backend stores it exactly.
var Epoch = time.UnixMilli(1_700_000_000_000).UTC()

// Tree is a sample key: 2 of {A, B, C}.
var Tree = keytree.NewThreshold(2,
	keytree.Leaf("A"),
	keytree.Leaf("B"),
	keytree.Leaf("C"),
)

func openStore(t testing.TB, open Opener) keycache.Store {
	s := open(t)
	t.Cleanup(func() { require.NoError(t, s.(io.Closer).Close()) })
	return s
}

// network returns a unique network so that tests against a shared database
// do not see each other's records.
func network() ledger.Network {
	return ledger.Network("test-" + uuid.NewString())
}

func TestStore(t *testing.T, open Opener) {
	s := openStore(t, open)
	ctx := context.Background()
	yes := true

	t.Run("Get missing", func(t *testing.T) {
		_, err := s.Get(ctx, keycache.AccountKey(network(), ledger.NewEntityID(5)))
		require.ErrorIs(t, err, errors.NotFound)
	})

	t.Run("Claim creates placeholder", func(t *testing.T) {
		key := keycache.AccountKey(network(), ledger.NewEntityID(5))
		r, ok, err := s.Claim(ctx, key, "lease-1", Epoch, Epoch.Add(-time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, key, r.Entity)
		require.Equal(t, "lease-1", r.RefreshLease)
		require.False(t, r.Populated())
		require.Nil(t, r.KeyTree)
		require.True(t, Epoch.Equal(r.CreatedAt))
		require.True(t, Epoch.Equal(r.UpdatedAt))

		r, err = s.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, "lease-1", r.RefreshLease)
	})

	t.Run("Claim is exclusive", func(t *testing.T) {
		key := keycache.AccountKey(network(), ledger.NewEntityID(5))
		_, ok, err := s.Claim(ctx, key, "lease-1", Epoch, Epoch.Add(-time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		r, ok, err := s.Claim(ctx, key, "lease-2", Epoch.Add(time.Second), Epoch.Add(time.Second-time.Minute))
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, "lease-1", r.RefreshLease)
	})

	t.Run("Complete", func(t *testing.T) {
		key := keycache.AccountKey(network(), ledger.NewEntityID(5))
		_, ok, err := s.Claim(ctx, key, "lease-1", Epoch, Epoch.Add(-time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		checked := Epoch.Add(time.Second)
		r, ok, err := s.Complete(ctx, key, "lease-1", &keycache.Update{
			KeyTree:                   Tree,
			ReceiverSignatureRequired: &yes,
			VersionTag:                "v1",
			CheckedAt:                 checked,
		})
		require.NoError(t, err)
		require.True(t, ok)
		require.Empty(t, r.RefreshLease)

		r, err = s.Get(ctx, key)
		require.NoError(t, err)
		require.True(t, Tree.Equal(r.KeyTree))
		require.True(t, keytree.NewSet("A", "B", "C").Equal(r.LeafKeys))
		require.True(t, r.ReceiverRequired())
		require.Equal(t, "v1", r.SourceVersionTag)
		require.Empty(t, r.RefreshLease)
		require.True(t, checked.Equal(r.LastCheckedAt))
		require.True(t, Epoch.Equal(r.CreatedAt))
		require.True(t, checked.Equal(r.UpdatedAt))
	})

	t.Run("Complete not modified", func(t *testing.T) {
		key := keycache.AccountKey(network(), ledger.NewEntityID(5))
		populate(t, s, key, Epoch, "v1")

		later := Epoch.Add(time.Hour)
		_, ok, err := s.Claim(ctx, key, "lease-2", later, later.Add(-time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		r, ok, err := s.Complete(ctx, key, "lease-2", &keycache.Update{
			NotModified: true,
			CheckedAt:   later.Add(time.Second),
		})
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, Tree.Equal(r.KeyTree))
		require.Equal(t, "v1", r.SourceVersionTag)
		require.True(t, later.Add(time.Second).Equal(r.LastCheckedAt))
	})

	t.Run("Complete without key", func(t *testing.T) {
		key := keycache.NodeKey(network(), 3)
		populate(t, s, key, Epoch, "v1")

		_, ok, err := s.Claim(ctx, key, "lease-2", Epoch.Add(time.Hour), Epoch)
		require.NoError(t, err)
		require.True(t, ok)
		_, ok, err = s.Complete(ctx, key, "lease-2", &keycache.Update{CheckedAt: Epoch.Add(time.Hour)})
		require.NoError(t, err)
		require.True(t, ok)

		r, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.Nil(t, r.KeyTree)
		require.Empty(t, r.LeafKeys)
		require.True(t, r.Populated())
	})

	t.Run("Complete lost lease", func(t *testing.T) {
		key := keycache.AccountKey(network(), ledger.NewEntityID(5))
		_, ok, err := s.Claim(ctx, key, "lease-1", Epoch, Epoch.Add(-time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		// Reclaimed after expiring
		later := Epoch.Add(2 * time.Minute)
		_, ok, err = s.Claim(ctx, key, "lease-2", later, later.Add(-time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		r, ok, err := s.Complete(ctx, key, "lease-1", &keycache.Update{KeyTree: Tree, CheckedAt: later})
		require.NoError(t, err)
		require.False(t, ok)
		require.Equal(t, "lease-2", r.RefreshLease)

		r, err = s.Get(ctx, key)
		require.NoError(t, err)
		require.False(t, r.Populated())
	})

	t.Run("Release", func(t *testing.T) {
		key := keycache.AccountKey(network(), ledger.NewEntityID(5))
		_, ok, err := s.Claim(ctx, key, "lease-1", Epoch, Epoch.Add(-time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		// Releasing someone else's lease does nothing
		require.NoError(t, s.Release(ctx, key, "lease-2"))
		r, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, "lease-1", r.RefreshLease)

		require.NoError(t, s.Release(ctx, key, "lease-1"))
		r, err = s.Get(ctx, key)
		require.NoError(t, err)
		require.Empty(t, r.RefreshLease)

		_, ok, err = s.Claim(ctx, key, "lease-3", Epoch.Add(time.Second), Epoch.Add(time.Second-time.Minute))
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("Kinds and networks do not collide", func(t *testing.T) {
		net := network()
		account := keycache.AccountKey(net, ledger.NewEntityID(3))
		populate(t, s, account, Epoch, "v1")

		_, err := s.Get(ctx, keycache.NodeKey(net, 3))
		require.ErrorIs(t, err, errors.NotFound)
		_, err = s.Get(ctx, keycache.AccountKey(network(), ledger.NewEntityID(3)))
		require.ErrorIs(t, err, errors.NotFound)
	})

	t.Run("Concurrent claim", func(t *testing.T) {
		key := keycache.AccountKey(network(), ledger.NewEntityID(5))
		populate(t, s, key, Epoch, "v1")
		claimConcurrently(t, s, key, Epoch.Add(time.Hour), Epoch.Add(time.Hour-time.Minute))
	})

	t.Run("Concurrent reclaim", func(t *testing.T) {
		key := keycache.AccountKey(network(), ledger.NewEntityID(5))
		_, ok, err := s.Claim(ctx, key, "abandoned", Epoch, Epoch.Add(-time.Minute))
		require.NoError(t, err)
		require.True(t, ok)

		// The lease expires a minute after it was taken
		later := Epoch.Add(2 * time.Minute)
		claimConcurrently(t, s, key, later, later.Add(-time.Minute))
	})
}

func populate(t testing.TB, s keycache.Store, key keycache.EntityKey, at time.Time, tag string) {
	t.Helper()
	ctx := context.Background()
	_, ok, err := s.Claim(ctx, key, "populate", at, at.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = s.Complete(ctx, key, "populate", &keycache.Update{KeyTree: Tree, VersionTag: tag, CheckedAt: at})
	require.NoError(t, err)
	require.True(t, ok)
}

// claimConcurrently verifies that exactly one of many concurrent claims
// succeeds, and that every claimant sees the key material as it was before
// the claims.
func claimConcurrently(t *testing.T, s keycache.Store, key keycache.EntityKey, now, reclaimBefore time.Time) {
	before, err := s.Get(context.Background(), key)
	require.NoError(t, err)

	const N = 10
	var wg sync.WaitGroup
	acquired := make([]bool, N)
	records := make([]*keycache.Record, N)
	errs := make([]error, N)
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records[i], acquired[i], errs[i] = s.Claim(context.Background(), key, uuid.NewString(), now, reclaimBefore)
		}(i)
	}
	wg.Wait()

	var winner string
	var count int
	for i := range acquired {
		require.NoError(t, errs[i])
		if acquired[i] {
			count++
			winner = records[i].RefreshLease
		}
	}
	require.Equal(t, 1, count, "exactly one claim must succeed")
	require.NotEqual(t, before.RefreshLease, winner)

	for i, r := range records {
		if !acquired[i] {
			require.Equal(t, winner, r.RefreshLease)
		}
		require.Equal(t, key, r.Entity)
		require.True(t, before.KeyTree.Equal(r.KeyTree), "claim %d changed the key tree", i)
		require.Equal(t, before.Populated(), r.Populated())
		require.Equal(t, before.SourceVersionTag, r.SourceVersionTag)
		require.True(t, before.LastCheckedAt.Equal(r.LastCheckedAt), "claim %d changed the check time", i)
	}

	after, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	require.Equal(t, winner, after.RefreshLease)
	require.True(t, before.KeyTree.Equal(after.KeyTree))
	require.Equal(t, before.SourceVersionTag, after.SourceVersionTag)
	require.True(t, before.LastCheckedAt.Equal(after.LastCheckedAt))
}

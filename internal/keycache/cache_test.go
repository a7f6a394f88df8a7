// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package keycache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	. "gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/internal/logging"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

func record(key EntityKey, at time.Time) *Record {
	r := NewPlaceholder(key, "", at)
	NewUpdate(&FetchResult{KeyTree: treeA}, at).Apply(r)
	return r
}

func TestCacheSingleFlight(t *testing.T) {
	release := make(chan struct{})
	src := newCountingSource(func(ctx context.Context, key EntityKey) (*Record, error) {
		<-release
		return record(key, epoch), nil
	})
	c := NewCache(CacheOptions{Source: src, Freshness: freshness, Logger: logging.NewTestLogger(t)})

	const N = 8
	var wg sync.WaitGroup
	records := make([]*Record, N)
	errs := make([]error, N)
	for i := 0; i < N; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records[i], errs[i] = c.Lookup(context.Background(), alice, false)
		}(i)
	}

	// Let the lookups pile up
	require.Eventually(t, func() bool { return src.Calls(alice) == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, 1, src.Calls(alice))
	for i := range records {
		require.NoError(t, errs[i])
		require.Same(t, records[0], records[i])
	}

	// Distinct entities are looked up separately
	_, err := c.Lookup(context.Background(), bob, false)
	require.NoError(t, err)
	require.Equal(t, 1, src.Calls(bob))
	require.Equal(t, 2, c.Len())
}

func TestCacheEvictsFailures(t *testing.T) {
	fail := true
	src := newCountingSource(func(ctx context.Context, key EntityKey) (*Record, error) {
		if fail {
			return nil, errors.LookupFailed.With("mirror unavailable")
		}
		return record(key, epoch), nil
	})
	c := NewCache(CacheOptions{Source: src, Freshness: freshness, Logger: logging.NewTestLogger(t)})

	_, err := c.Lookup(context.Background(), alice, false)
	require.ErrorIs(t, err, errors.LookupFailed)
	require.Equal(t, 0, c.Len())

	fail = false
	r, err := c.Lookup(context.Background(), alice, false)
	require.NoError(t, err)
	require.True(t, treeA.Equal(r.KeyTree))
	require.Equal(t, 2, src.Calls(alice))
}

func TestCacheDetachesFetch(t *testing.T) {
	release := make(chan struct{})
	fetchErr := make(chan error, 1)
	src := newCountingSource(func(ctx context.Context, key EntityKey) (*Record, error) {
		<-release
		fetchErr <- ctx.Err()
		return record(key, epoch), nil
	})
	c := NewCache(CacheOptions{Source: src, Freshness: freshness, Logger: logging.NewTestLogger(t)})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		_, err := c.Lookup(ctx, alice, false)
		done <- err
	}()
	require.Eventually(t, func() bool { return src.Calls(alice) == 1 }, time.Second, time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// The shared lookup carries on and its result is kept
	close(release)
	require.NoError(t, <-fetchErr)
	r, err := c.Lookup(context.Background(), alice, false)
	require.NoError(t, err)
	require.NotNil(t, r)
	require.Equal(t, 1, src.Calls(alice))
}

func TestCacheFreshness(t *testing.T) {
	clk := newClock()
	src := newCountingSource(func(ctx context.Context, key EntityKey) (*Record, error) {
		return record(key, clk.Now()), nil
	})
	c := NewCache(CacheOptions{Source: src, Freshness: freshness, Now: clk.Now})
	ctx := context.Background()

	lookup := func(key EntityKey, force bool) {
		t.Helper()
		_, err := c.Lookup(ctx, key, force)
		require.NoError(t, err)
	}

	lookup(alice, false)
	lookup(node3, false)

	// Within the fresh window, even forced lookups are hits
	clk.Advance(10 * time.Second)
	lookup(alice, true)
	require.Equal(t, 1, src.Calls(alice))

	// Young: used unless forced
	clk.Advance(time.Minute)
	lookup(alice, false)
	require.Equal(t, 1, src.Calls(alice))
	lookup(alice, true)
	require.Equal(t, 2, src.Calls(alice))

	// Old accounts are refreshed, nodes stay young for longer
	clk.Advance(10 * time.Minute)
	lookup(alice, false)
	require.Equal(t, 3, src.Calls(alice))
	lookup(node3, false)
	require.Equal(t, 1, src.Calls(node3))

	c.Forget(node3)
	lookup(node3, false)
	require.Equal(t, 2, src.Calls(node3))
}

func TestFreshness(t *testing.T) {
	cases := []struct {
		Name  string
		Kind  EntityKind
		Age   time.Duration
		Force bool
		Fresh bool
	}{
		{"Fresh", EntityKindAccount, 29 * time.Second, false, true},
		{"Fresh forced", EntityKindAccount, 29 * time.Second, true, true},
		{"Young", EntityKindAccount, 5 * time.Minute, false, true},
		{"Young forced", EntityKindAccount, 5 * time.Minute, true, false},
		{"Old account", EntityKindAccount, 6 * time.Minute, false, false},
		{"Young node", EntityKindNode, 6 * time.Hour, false, true},
		{"Old node", EntityKindNode, 7 * time.Hour, false, false},
	}
	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			require.Equal(t, c.Fresh, freshness.IsFresh(c.Kind, epoch, epoch.Add(c.Age), c.Force))
		})
	}

	require.False(t, freshness.IsFresh(EntityKindAccount, time.Time{}, epoch, false), "never checked")
}

func TestCacheSize(t *testing.T) {
	src := newCountingSource(func(ctx context.Context, key EntityKey) (*Record, error) {
		return record(key, epoch), nil
	})
	c := NewCache(CacheOptions{Source: src, Freshness: freshness, Size: 2, Now: newClock().Now})
	ctx := context.Background()

	for _, key := range []EntityKey{alice, bob, alice, node3} {
		_, err := c.Lookup(ctx, key, false)
		require.NoError(t, err)
	}
	require.Equal(t, 2, c.Len())

	// Bob was the least recently used
	_, err := c.Lookup(ctx, bob, false)
	require.NoError(t, err)
	require.Equal(t, 2, src.Calls(bob))
	require.Equal(t, 1, src.Calls(alice))
	require.Equal(t, 2, c.Len())

	// The default size is bounded too
	require.Positive(t, DefaultCacheSize)
	c = NewCache(CacheOptions{Source: src, Freshness: freshness, Now: newClock().Now})
	for i := 0; i < DefaultCacheSize+10; i++ {
		_, err := c.Lookup(ctx, AccountKey(ledger.Testnet, ledger.NewEntityID(uint64(2000+i))), false)
		require.NoError(t, err)
	}
	require.Equal(t, DefaultCacheSize, c.Len())
}

func TestArena(t *testing.T) {
	src := newCountingSource(func(ctx context.Context, key EntityKey) (*Record, error) {
		return record(key, epoch), nil
	})
	a, err := NewArena(2, CacheOptions{Source: src, Freshness: freshness, Now: newClock().Now})
	require.NoError(t, err)

	s1 := a.Session("one")
	require.Same(t, s1, a.Session("one"))
	_, err = s1.Lookup(context.Background(), alice, false)
	require.NoError(t, err)

	// Sessions do not share entries
	_, err = a.Session("two").Lookup(context.Background(), alice, false)
	require.NoError(t, err)
	require.Equal(t, 2, src.Calls(alice))

	// The least recently used session is dropped
	a.Session("three")
	require.Equal(t, 2, a.Len())
	require.NotSame(t, s1, a.Session("one"))

	a.Drop("one")
	require.Equal(t, 1, a.Len())

	_, err = NewArena(0, CacheOptions{Source: src})
	require.ErrorIs(t, err, errors.BadRequest)
}

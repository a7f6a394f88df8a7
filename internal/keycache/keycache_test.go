// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package keycache_test

import (
	"context"
	"sync"
	"time"

	. "gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

var freshness = Freshness{
	Fresh:        30 * time.Second,
	AccountYoung: 5 * time.Minute,
	NodeYoung:    6 * time.Hour,
}

var epoch = time.UnixMilli(1_700_000_000_000).UTC()

var (
	alice = AccountKey(ledger.Mainnet, ledger.NewEntityID(1001))
	bob   = AccountKey(ledger.Mainnet, ledger.NewEntityID(1002))
	node3 = NodeKey(ledger.Mainnet, 3)
)

var treeA = keytree.Leaves("A")
var treeB = keytree.NewThreshold(1, keytree.Leaf("B"), keytree.Leaf("C"))

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock { return &clock{t: epoch} }

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

// countingSource is a Lookuper that counts calls.
type countingSource struct {
	mu    sync.Mutex
	calls map[EntityKey]int
	fn    func(ctx context.Context, key EntityKey) (*Record, error)
}

func newCountingSource(fn func(ctx context.Context, key EntityKey) (*Record, error)) *countingSource {
	return &countingSource{calls: map[EntityKey]int{}, fn: fn}
}

func (s *countingSource) Lookup(ctx context.Context, key EntityKey, _ bool) (*Record, error) {
	s.mu.Lock()
	s.calls[key]++
	s.mu.Unlock()
	return s.fn(ctx, key)
}

func (s *countingSource) Calls(key EntityKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

// countingFetcher is a Fetcher that counts calls and records the version
// tags it was given.
type countingFetcher struct {
	mu   sync.Mutex
	tags []string
	fn   func(key EntityKey, tag string) (*FetchResult, error)
}

func (f *countingFetcher) Fetch(_ context.Context, key EntityKey, tag string) (*FetchResult, error) {
	f.mu.Lock()
	f.tags = append(f.tags, tag)
	f.mu.Unlock()
	return f.fn(key, tag)
}

func (f *countingFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tags)
}

func (f *countingFetcher) LastTag() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tags[len(f.tags)-1]
}

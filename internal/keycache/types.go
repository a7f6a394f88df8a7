// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package keycache caches entity key material. Cache is an in-process,
// single-flight cache. Durable is a cache shared between processes through a
// Store, refreshed under a lease so that one process fetches at a time.
package keycache

import (
	"context"
	"io"
	"time"

	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
)

// Lookuper returns the key material of an entity. If force is set, only
// material checked within the fresh window is acceptable.
type Lookuper interface {
	Lookup(ctx context.Context, key EntityKey, force bool) (*Record, error)
}

// FetchResult is the state of an entity as reported by the mirror.
type FetchResult struct {
	// NotModified means the entity has not changed since the version tag
	// passed to Fetch.
	NotModified bool

	// KeyTree is nil if the entity does not exist or has no key.
	KeyTree                   *keytree.KeyTree
	ReceiverSignatureRequired *bool
	VersionTag                string
}

// Fetcher reads the current key of an entity from the mirror.
type Fetcher interface {
	Fetch(ctx context.Context, key EntityKey, versionTag string) (*FetchResult, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, key EntityKey, versionTag string) (*FetchResult, error)

func (f FetcherFunc) Fetch(ctx context.Context, key EntityKey, versionTag string) (*FetchResult, error) {
	return f(ctx, key, versionTag)
}

// Store persists records. Every implementation enforces one record per
// entity key, and makes Claim, Complete, and Release atomic with respect to
// other processes.
type Store interface {
	io.Closer

	// Get returns the record or an error with status NotFound.
	Get(ctx context.Context, key EntityKey) (*Record, error)

	// Claim takes the refresh lease of the record, creating a placeholder
	// if none exists. The lease is taken if the record has no lease or was
	// last updated before reclaimBefore, in which case UpdatedAt is set to
	// now. Claim returns the record after the write and whether the lease
	// was taken. If it was not, the record is the current snapshot.
	Claim(ctx context.Context, key EntityKey, lease string, now, reclaimBefore time.Time) (*Record, bool, error)

	// Complete applies the update and clears the lease if the lease is
	// still held. It returns the updated record and true, or the current
	// record and false if the lease was lost.
	Complete(ctx context.Context, key EntityKey, lease string, update *Update) (*Record, bool, error)

	// Release clears the lease if it is still held.
	Release(ctx context.Context, key EntityKey, lease string) error
}

// Freshness decides whether cached material can be used without asking the
// mirror.
type Freshness struct {
	// Fresh material is always used.
	Fresh time.Duration

	// Young material is used unless a refresh is forced. Young is measured
	// from the end of the fresh window.
	AccountYoung time.Duration
	NodeYoung    time.Duration
}

// IsFresh returns true if material checked at checkedAt can be used at now.
func (f Freshness) IsFresh(kind EntityKind, checkedAt, now time.Time, force bool) bool {
	if checkedAt.IsZero() {
		return false
	}
	age := now.Sub(checkedAt)
	if age < f.Fresh {
		return true
	}
	if force {
		return false
	}

	young := f.AccountYoung
	if kind == EntityKindNode {
		young = f.NodeYoung
	}
	return age < f.Fresh+young
}

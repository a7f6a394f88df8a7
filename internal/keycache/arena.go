// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package keycache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
)

// Arena holds a cache per session, all in front of the same source. The
// least recently used sessions are dropped once the arena is full.
type Arena struct {
	opts     CacheOptions
	mu       sync.Mutex
	sessions *lru.Cache[string, *Cache]
}

func NewArena(size int, opts CacheOptions) (*Arena, error) {
	sessions, err := lru.New[string, *Cache](size)
	if err != nil {
		return nil, errors.BadRequest.WithFormat("session cache: %w", err)
	}
	return &Arena{opts: opts, sessions: sessions}, nil
}

// Session returns the cache of the session, creating it if necessary.
func (a *Arena) Session(id string) *Cache {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.sessions.Get(id); ok {
		return c
	}
	c := NewCache(a.opts)
	a.sessions.Add(id, c)
	return c
}

// Drop discards the session's cache.
func (a *Arena) Drop(id string) {
	a.sessions.Remove(id)
}

// Len returns the number of live sessions.
func (a *Arena) Len() int {
	return a.sessions.Len()
}

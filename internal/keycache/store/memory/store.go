// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package memory is a Store for a single process.
package memory

import (
	"context"
	"sync"
	"time"

	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
)

type Store struct {
	mu      sync.Mutex
	records map[keycache.EntityKey]*keycache.Record
}

var _ keycache.Store = (*Store)(nil)

func New() *Store {
	return &Store{records: map[keycache.EntityKey]*keycache.Record{}}
}

func (s *Store) Get(_ context.Context, key keycache.EntityKey) (*keycache.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[key]
	if !ok {
		return nil, errors.NotFound.WithFormat("%v not found", key)
	}
	return r.Copy(), nil
}

func (s *Store) Claim(_ context.Context, key keycache.EntityKey, lease string, now, reclaimBefore time.Time) (*keycache.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[key]
	switch {
	case !ok:
		r = keycache.NewPlaceholder(key, lease, now)
		s.records[key] = r
	case r.Claimable(reclaimBefore):
		r.RefreshLease = lease
		r.UpdatedAt = now
	default:
		return r.Copy(), false, nil
	}
	return r.Copy(), true, nil
}

func (s *Store) Complete(_ context.Context, key keycache.EntityKey, lease string, update *keycache.Update) (*keycache.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[key]
	if !ok {
		return nil, false, errors.NotFound.WithFormat("%v not found", key)
	}
	if r.RefreshLease != lease {
		return r.Copy(), false, nil
	}
	update.Apply(r)
	return r.Copy(), true, nil
}

func (s *Store) Release(_ context.Context, key keycache.EntityKey, lease string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[key]
	if ok && r.RefreshLease == lease {
		r.RefreshLease = ""
	}
	return nil
}

// Export returns a copy of every record.
func (s *Store) Export() []*keycache.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]*keycache.Record, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r.Copy())
	}
	return records
}

// Import adds or replaces records.
func (s *Store) Import(records []*keycache.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.Entity] = r.Copy()
	}
}

func (s *Store) Close() error { return nil }

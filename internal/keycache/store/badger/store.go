// Copyright 2023 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package badger is a Store backed by Badger. Badger allows one process per
// database, so this store shares a cache between the goroutines of a single
// process and persists it across restarts.
package badger

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/internal/logging"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
)

// TruncateBadger controls whether Badger is configured to truncate corrupted
// data. Especially on Windows, if the process is terminated abruptly, setting
// this may be necessary to recover the database.
var TruncateBadger = false

// maxConflictRetries bounds how many times a conflicting transaction is
// retried.
const maxConflictRetries = 100

type Store struct {
	badger *badger.DB
	logger *slog.Logger
	ready  bool
	mu     sync.RWMutex
	done   chan struct{}
}

var _ keycache.Store = (*Store)(nil)

func New(filepath string, options ...Option) (*Store, error) {
	s := new(Store)
	for _, o := range options {
		o(s)
	}
	s.logger = logging.Module(s.logger, "badger")

	// Make sure all directories exist
	err := os.MkdirAll(filepath, 0700)
	if err != nil {
		return nil, errors.UnknownError.WithFormat("open badger: create %q: %w", filepath, err)
	}

	opts := badger.DefaultOptions(filepath)
	opts = opts.WithLogger(badgerLogger{s.logger})

	// Truncate corrupted data
	if TruncateBadger {
		opts = opts.WithTruncate(true)
	}

	s.badger, err = badger.Open(opts)
	if err != nil {
		return nil, errors.UnknownError.WithFormat("open badger: %w", err)
	}
	s.ready = true
	s.done = make(chan struct{})
	mDbOpen.Inc()

	// Run GC every hour
	go s.gc()

	return s, nil
}

func dbKey(key keycache.EntityKey) []byte {
	return []byte("keycache/" + string(key.Network) + "/" + key.EntityID())
}

func (s *Store) Get(_ context.Context, key keycache.EntityKey) (*keycache.Record, error) {
	l, err := s.lock(false)
	if err != nil {
		return nil, err
	}
	defer l.Unlock()

	var r *keycache.Record
	err = s.badger.View(func(txn *badger.Txn) error {
		var err error
		r, err = get(txn, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errors.NotFound.WithFormat("%v not found", key)
	}
	return r, nil
}

func (s *Store) Claim(_ context.Context, key keycache.EntityKey, lease string, now, reclaimBefore time.Time) (*keycache.Record, bool, error) {
	var r *keycache.Record
	var acquired bool
	err := s.update(func(txn *badger.Txn) error {
		var err error
		r, err = get(txn, key)
		if err != nil {
			return err
		}

		switch {
		case r == nil:
			r = keycache.NewPlaceholder(key, lease, now)
		case r.Claimable(reclaimBefore):
			r.RefreshLease = lease
			r.UpdatedAt = now
		default:
			acquired = false
			return nil
		}

		acquired = true
		return put(txn, r)
	})
	if err != nil {
		return nil, false, err
	}
	return r, acquired, nil
}

func (s *Store) Complete(_ context.Context, key keycache.EntityKey, lease string, update *keycache.Update) (*keycache.Record, bool, error) {
	var r *keycache.Record
	var ok bool
	err := s.update(func(txn *badger.Txn) error {
		var err error
		r, err = get(txn, key)
		switch {
		case err != nil:
			return err
		case r == nil:
			return errors.NotFound.WithFormat("%v not found", key)
		case r.RefreshLease != lease:
			ok = false
			return nil
		}

		ok = true
		update.Apply(r)
		return put(txn, r)
	})
	if err != nil {
		return nil, false, err
	}
	return r, ok, nil
}

func (s *Store) Release(_ context.Context, key keycache.EntityKey, lease string) error {
	return s.update(func(txn *badger.Txn) error {
		r, err := get(txn, key)
		if err != nil || r == nil || r.RefreshLease != lease {
			return err
		}
		r.RefreshLease = ""
		return put(txn, r)
	})
}

// update runs fn in a read-write transaction, retrying if it conflicts
// with a concurrent transaction.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	l, err := s.lock(false)
	if err != nil {
		return err
	}
	defer l.Unlock()

	for i := 0; ; i++ {
		start := time.Now()
		err = s.badger.Update(fn)
		mCommitDuration.Set(time.Since(start).Seconds())
		if !errors.Is(err, badger.ErrConflict) || i >= maxConflictRetries {
			break
		}
		mConflicts.Inc()
	}
	if err != nil {
		return errors.UnknownError.WithFormat("badger: %w", err)
	}
	return nil
}

func get(txn *badger.Txn, key keycache.EntityKey) (*keycache.Record, error) {
	item, err := txn.Get(dbKey(key))
	switch {
	case err == nil:
		// Ok
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, nil
	default:
		return nil, errors.UnknownError.WithFormat("get %v: %w", key, err)
	}

	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, errors.UnknownError.WithFormat("get %v: %w", key, err)
	}

	r := new(keycache.Record)
	err = json.Unmarshal(v, r)
	if err != nil {
		return nil, errors.EncodingError.WithFormat("decode %v: %w", key, err)
	}
	return r, nil
}

func put(txn *badger.Txn, r *keycache.Record) error {
	v, err := json.Marshal(r)
	if err != nil {
		return errors.EncodingError.WithFormat("encode %v: %w", r.Entity, err)
	}
	return txn.Set(dbKey(r.Entity), v)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if l, err := s.lock(true); err != nil {
		return err
	} else {
		defer l.Unlock()
	}

	s.ready = false
	close(s.done)
	mDbOpen.Dec()
	return s.badger.Close()
}

func (s *Store) gc() {
	tick := time.NewTicker(time.Hour)
	defer tick.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-tick.C:
		}

		// Still open?
		l, err := s.lock(false)
		if err != nil {
			return
		}

		// Run GC if 50% space could be reclaimed
		start := time.Now()
		err = s.badger.RunValueLogGC(0.5)
		if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
			s.logger.Error("Badger GC failed", "error", err)
		}
		mGcRun.Inc()
		mGcDuration.Set(time.Since(start).Seconds())

		// Release the lock
		l.Unlock()
	}
}

// lock acquires a lock on the ready mutex and checks for readiness. This
// prevents races between transactions and Close.
func (s *Store) lock(closing bool) (sync.Locker, error) {
	var l sync.Locker = &s.mu
	if !closing {
		l = s.mu.RLocker()
	}

	l.Lock()
	if !s.ready {
		l.Unlock()
		return nil, errors.NotReady.With("badger store is closed")
	}

	return l, nil
}

// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package sqlite is a Store backed by a SQLite file. Processes on the same
// host can share the file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"

	_ "modernc.org/sqlite"
)

const maxBusyTimeoutMs = 5000

const schema = `
CREATE TABLE IF NOT EXISTS cached_keys (
	entity_id                   TEXT    NOT NULL,
	network                     TEXT    NOT NULL,
	key_tree                    TEXT,
	leaf_keys                   TEXT,
	receiver_signature_required INTEGER,
	source_version_tag          TEXT    NOT NULL DEFAULT '',
	last_checked_at             INTEGER,
	refresh_lease               TEXT,
	created_at                  INTEGER NOT NULL,
	updated_at                  INTEGER NOT NULL,
	PRIMARY KEY (entity_id, network)
)`

const columns = `entity_id, network, key_tree, leaf_keys, receiver_signature_required,
	source_version_tag, last_checked_at, refresh_lease, created_at, updated_at`

type Store struct {
	db *sql.DB
}

var _ keycache.Store = (*Store)(nil)

// Open opens or creates the database file.
func Open(file string) (*Store, error) {
	err := os.MkdirAll(filepath.Dir(file), 0o755)
	if err != nil {
		return nil, errors.UnknownError.WithFormat("create db directory: %w", err)
	}

	// Transactions take the write lock up front so that a read-then-write
	// never has to upgrade its lock
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_txlock=immediate",
		filepath.Clean(file), maxBusyTimeoutMs)

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, errors.UnknownError.WithFormat("open sqlite: %w", err)
	}

	// One writer at a time within the process
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.UnknownError.WithFormat("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.UnknownError.WithFormat("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(ctx context.Context, key keycache.EntityKey) (*keycache.Record, error) {
	return get(ctx, s.db, key)
}

func (s *Store) Claim(ctx context.Context, key keycache.EntityKey, lease string, now, reclaimBefore time.Time) (*keycache.Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO cached_keys (entity_id, network, refresh_lease, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_id, network) DO UPDATE SET
			refresh_lease = excluded.refresh_lease,
			updated_at = excluded.updated_at
		WHERE cached_keys.refresh_lease IS NULL OR cached_keys.updated_at < ?
		RETURNING `+columns,
		key.EntityID(), string(key.Network), lease, now.UnixMilli(), now.UnixMilli(), reclaimBefore.UnixMilli())

	r, err := scan(row)
	switch {
	case err == nil:
		return r, true, nil
	case errors.Is(err, sql.ErrNoRows):
		// The lease is held
	default:
		return nil, false, errors.UnknownError.WithFormat("claim %v: %w", key, err)
	}

	r, err = get(ctx, s.db, key)
	if err != nil {
		return nil, false, err
	}
	return r, false, nil
}

func (s *Store) Complete(ctx context.Context, key keycache.EntityKey, lease string, update *keycache.Update) (*keycache.Record, bool, error) {
	var r *keycache.Record
	var ok bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		r, err = get(ctx, tx, key)
		if err != nil {
			return err
		}
		if r.RefreshLease != lease {
			return nil
		}

		ok = true
		update.Apply(r)
		return put(ctx, tx, r)
	})
	if err != nil {
		return nil, false, err
	}
	return r, ok, nil
}

func (s *Store) Release(ctx context.Context, key keycache.EntityKey, lease string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cached_keys SET refresh_lease = NULL
		WHERE entity_id = ? AND network = ? AND refresh_lease = ?`,
		key.EntityID(), string(key.Network), lease)
	if err != nil {
		return errors.UnknownError.WithFormat("release %v: %w", key, err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.UnknownError.WithFormat("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = fn(tx)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return errors.UnknownError.WithFormat("commit: %w", err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func get(ctx context.Context, q querier, key keycache.EntityKey) (*keycache.Record, error) {
	row := q.QueryRowContext(ctx, `SELECT `+columns+` FROM cached_keys WHERE entity_id = ? AND network = ?`,
		key.EntityID(), string(key.Network))
	r, err := scan(row)
	switch {
	case err == nil:
		return r, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, errors.NotFound.WithFormat("%v not found", key)
	default:
		return nil, errors.UnknownError.WithFormat("get %v: %w", key, err)
	}
}

func put(ctx context.Context, q querier, r *keycache.Record) error {
	var tree, leaves sql.NullString
	if r.KeyTree != nil {
		b, err := json.Marshal(r.KeyTree)
		if err != nil {
			return errors.EncodingError.WithFormat("encode key tree: %w", err)
		}
		tree = sql.NullString{String: string(b), Valid: true}

		b, err = json.Marshal(r.LeafKeys)
		if err != nil {
			return errors.EncodingError.WithFormat("encode leaf keys: %w", err)
		}
		leaves = sql.NullString{String: string(b), Valid: true}
	}

	var receiver sql.NullBool
	if r.ReceiverSignatureRequired != nil {
		receiver = sql.NullBool{Bool: *r.ReceiverSignatureRequired, Valid: true}
	}

	var checked sql.NullInt64
	if !r.LastCheckedAt.IsZero() {
		checked = sql.NullInt64{Int64: r.LastCheckedAt.UnixMilli(), Valid: true}
	}

	var lease sql.NullString
	if r.RefreshLease != "" {
		lease = sql.NullString{String: r.RefreshLease, Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		UPDATE cached_keys SET
			key_tree = ?,
			leaf_keys = ?,
			receiver_signature_required = ?,
			source_version_tag = ?,
			last_checked_at = ?,
			refresh_lease = ?,
			updated_at = ?
		WHERE entity_id = ? AND network = ?`,
		tree, leaves, receiver, r.SourceVersionTag, checked, lease, r.UpdatedAt.UnixMilli(),
		r.Entity.EntityID(), string(r.Entity.Network))
	if err != nil {
		return errors.UnknownError.WithFormat("update %v: %w", r.Entity, err)
	}
	return nil
}

func scan(row *sql.Row) (*keycache.Record, error) {
	var entityID, network string
	var tree, leaves, lease sql.NullString
	var receiver sql.NullBool
	var checked sql.NullInt64
	var created, updated int64
	r := new(keycache.Record)
	err := row.Scan(&entityID, &network, &tree, &leaves, &receiver,
		&r.SourceVersionTag, &checked, &lease, &created, &updated)
	if err != nil {
		return nil, err
	}

	r.Entity, err = keycache.ParseEntityKey(ledger.Network(network), entityID)
	if err != nil {
		return nil, err
	}
	if tree.Valid {
		r.KeyTree = new(keytree.KeyTree)
		if err := json.Unmarshal([]byte(tree.String), r.KeyTree); err != nil {
			return nil, errors.EncodingError.WithFormat("decode key tree of %s: %w", entityID, err)
		}
	}
	if leaves.Valid {
		if err := json.Unmarshal([]byte(leaves.String), &r.LeafKeys); err != nil {
			return nil, errors.EncodingError.WithFormat("decode leaf keys of %s: %w", entityID, err)
		}
	}
	if receiver.Valid {
		v := receiver.Bool
		r.ReceiverSignatureRequired = &v
	}
	if checked.Valid {
		r.LastCheckedAt = time.UnixMilli(checked.Int64).UTC()
	}
	r.RefreshLease = lease.String
	r.CreatedAt = time.UnixMilli(created).UTC()
	r.UpdatedAt = time.UnixMilli(updated).UTC()
	return r, nil
}

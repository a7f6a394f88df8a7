// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package postgres is a Store backed by PostgreSQL, for deployments where
// processes on many hosts share a cache.
package postgres

import (
	"context"
	"time"

	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

var _ keycache.Store = (*Store)(nil)

// Open connects to the database and creates the table if it does not exist.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.BadRequest.With("postgres DSN is required")
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.UnknownError.WithFormat("connect postgres: %w", err)
	}

	err = gdb.AutoMigrate(&CachedKeyModel{})
	if err != nil {
		return nil, errors.UnknownError.WithFormat("migrate: %w", err)
	}

	return &Store{db: gdb}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, key keycache.EntityKey) (*keycache.Record, error) {
	return get(s.db.WithContext(ctx), key)
}

func (s *Store) Claim(ctx context.Context, key keycache.EntityKey, lease string, now, reclaimBefore time.Time) (*keycache.Record, bool, error) {
	var m CachedKeyModel
	res := s.db.WithContext(ctx).Raw(
		`INSERT INTO cached_keys (entity_id, network, refresh_lease, source_version_tag, created_at, updated_at)
		 VALUES (?, ?, ?, '', ?, ?)
		 ON CONFLICT (entity_id, network)
		 DO UPDATE SET refresh_lease = EXCLUDED.refresh_lease, updated_at = EXCLUDED.updated_at
		 WHERE cached_keys.refresh_lease IS NULL OR cached_keys.updated_at < ?
		 RETURNING *`,
		key.EntityID(), string(key.Network), lease, now.UTC(), now.UTC(), reclaimBefore.UTC(),
	).Scan(&m)
	if res.Error != nil {
		return nil, false, errors.UnknownError.WithFormat("claim %v: %w", key, res.Error)
	}

	if res.RowsAffected > 0 {
		r, err := m.toRecord()
		if err != nil {
			return nil, false, err
		}
		return r, true, nil
	}

	// The lease is held
	r, err := get(s.db.WithContext(ctx), key)
	if err != nil {
		return nil, false, err
	}
	return r, false, nil
}

func (s *Store) Complete(ctx context.Context, key keycache.EntityKey, lease string, update *keycache.Update) (*keycache.Record, bool, error) {
	var r *keycache.Record
	var ok bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		r, err = get(tx.Clauses(clause.Locking{Strength: "UPDATE"}), key)
		if err != nil {
			return err
		}
		if r.RefreshLease != lease {
			return nil
		}

		ok = true
		update.Apply(r)
		m, err := fromRecord(r)
		if err != nil {
			return err
		}
		return tx.Save(m).Error
	})
	if err != nil {
		return nil, false, errors.UnknownError.WithFormat("complete %v: %w", key, err)
	}
	return r, ok, nil
}

func (s *Store) Release(ctx context.Context, key keycache.EntityKey, lease string) error {
	err := s.db.WithContext(ctx).
		Model(&CachedKeyModel{}).
		Where("entity_id = ? AND network = ? AND refresh_lease = ?", key.EntityID(), string(key.Network), lease).
		Update("refresh_lease", nil).Error
	if err != nil {
		return errors.UnknownError.WithFormat("release %v: %w", key, err)
	}
	return nil
}

func get(db *gorm.DB, key keycache.EntityKey) (*keycache.Record, error) {
	var m CachedKeyModel
	err := db.Where("entity_id = ? AND network = ?", key.EntityID(), string(key.Network)).Take(&m).Error
	switch {
	case err == nil:
		return m.toRecord()
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, errors.NotFound.WithFormat("%v not found", key)
	default:
		return nil, errors.UnknownError.WithFormat("get %v: %w", key, err)
	}
}

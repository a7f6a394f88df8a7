// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package postgres

import (
	"encoding/json"
	"time"

	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

type CachedKeyModel struct {
	EntityID                  string `gorm:"primaryKey"`
	Network                   string `gorm:"primaryKey"`
	KeyTree                   []byte `gorm:"type:jsonb"`
	LeafKeys                  []byte `gorm:"type:jsonb"`
	ReceiverSignatureRequired *bool
	SourceVersionTag          string `gorm:"not null;default:''"`
	LastCheckedAt             *time.Time
	RefreshLease              *string   `gorm:"index"`
	CreatedAt                 time.Time `gorm:"not null;autoCreateTime:false"`
	UpdatedAt                 time.Time `gorm:"not null;autoUpdateTime:false"`
}

func (CachedKeyModel) TableName() string { return "cached_keys" }

func fromRecord(r *keycache.Record) (*CachedKeyModel, error) {
	m := &CachedKeyModel{
		EntityID:                  r.Entity.EntityID(),
		Network:                   string(r.Entity.Network),
		ReceiverSignatureRequired: r.ReceiverSignatureRequired,
		SourceVersionTag:          r.SourceVersionTag,
		CreatedAt:                 r.CreatedAt,
		UpdatedAt:                 r.UpdatedAt,
	}
	if r.KeyTree != nil {
		var err error
		m.KeyTree, err = json.Marshal(r.KeyTree)
		if err != nil {
			return nil, errors.EncodingError.WithFormat("encode key tree: %w", err)
		}
		m.LeafKeys, err = json.Marshal(r.LeafKeys)
		if err != nil {
			return nil, errors.EncodingError.WithFormat("encode leaf keys: %w", err)
		}
	}
	if !r.LastCheckedAt.IsZero() {
		t := r.LastCheckedAt
		m.LastCheckedAt = &t
	}
	if r.RefreshLease != "" {
		s := r.RefreshLease
		m.RefreshLease = &s
	}
	return m, nil
}

func (m *CachedKeyModel) toRecord() (*keycache.Record, error) {
	key, err := keycache.ParseEntityKey(ledger.Network(m.Network), m.EntityID)
	if err != nil {
		return nil, err
	}

	r := &keycache.Record{
		Entity:                    key,
		ReceiverSignatureRequired: m.ReceiverSignatureRequired,
		SourceVersionTag:          m.SourceVersionTag,
		CreatedAt:                 m.CreatedAt.UTC(),
		UpdatedAt:                 m.UpdatedAt.UTC(),
	}
	if len(m.KeyTree) > 0 {
		r.KeyTree = new(keytree.KeyTree)
		if err := json.Unmarshal(m.KeyTree, r.KeyTree); err != nil {
			return nil, errors.EncodingError.WithFormat("decode key tree of %v: %w", key, err)
		}
	}
	if len(m.LeafKeys) > 0 {
		if err := json.Unmarshal(m.LeafKeys, &r.LeafKeys); err != nil {
			return nil, errors.EncodingError.WithFormat("decode leaf keys of %v: %w", key, err)
		}
	}
	if m.LastCheckedAt != nil {
		r.LastCheckedAt = m.LastCheckedAt.UTC()
	}
	if m.RefreshLease != nil {
		r.RefreshLease = *m.RefreshLease
	}
	return r, nil
}

// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package signers works out which of a user's keys could still help
// authorize a transaction.
package signers

import (
	"context"

	"gitlab.com/accumulatenetwork/sigreq/internal/resolver"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

// RecordedSignature is a signature already recorded for a transaction.
type RecordedSignature struct {
	PublicKey keytree.PublicKey `json:"publicKey"`
	Revoked   bool              `json:"revoked,omitempty"`
}

// Source provides the signatures recorded for a transaction.
type Source interface {
	RecordedSignatures(ctx context.Context, id ledger.TransactionID) ([]RecordedSignature, error)
}

// Signed returns the keys of the signatures that have not been revoked.
func Signed(recorded []RecordedSignature) keytree.Set {
	s := keytree.NewSet()
	for _, r := range recorded {
		if !r.Revoked {
			s.Add(r.PublicKey)
		}
	}
	return s
}

// KeysStillOwed returns the user's keys that appear in the requirement and
// have not signed yet. Any of them could help. Whether the requirement is
// met is decided by [IsComplete] over everyone's signatures.
func KeysStillOwed(audit *resolver.SignatureAudit, userKeys keytree.Set, recorded []RecordedSignature) keytree.Set {
	if audit == nil || audit.Expired {
		return keytree.NewSet()
	}
	return userKeys.Intersect(audit.RequiredKeys()).Difference(Signed(recorded))
}

// IsComplete returns true if the recorded signatures satisfy the
// requirement. An expired transaction can never be completed.
func IsComplete(audit *resolver.SignatureAudit, recorded []RecordedSignature) bool {
	if audit == nil || audit.Expired {
		return false
	}
	return keytree.IsSatisfied(audit.Root, Signed(recorded))
}

// Calculator combines a signature source with the calculations above.
type Calculator struct {
	source Source
}

func NewCalculator(source Source) *Calculator {
	return &Calculator{source: source}
}

// KeysStillOwed loads the recorded signatures of the transaction and
// returns the user's keys that are still owed.
func (c *Calculator) KeysStillOwed(ctx context.Context, id ledger.TransactionID, audit *resolver.SignatureAudit, userKeys keytree.Set) (keytree.Set, error) {
	recorded, err := c.source.RecordedSignatures(ctx, id)
	if err != nil {
		return nil, errors.UnknownError.WithFormat("load signatures of %v: %w", id, err)
	}
	return KeysStillOwed(audit, userKeys, recorded), nil
}

// IsComplete loads the recorded signatures of the transaction and checks
// the requirement against them.
func (c *Calculator) IsComplete(ctx context.Context, id ledger.TransactionID, audit *resolver.SignatureAudit) (bool, error) {
	recorded, err := c.source.RecordedSignatures(ctx, id)
	if err != nil {
		return false, errors.UnknownError.WithFormat("load signatures of %v: %w", id, err)
	}
	return IsComplete(audit, recorded), nil
}

// StaticSource is a Source backed by a map.
type StaticSource map[ledger.TransactionID][]RecordedSignature

func (s StaticSource) RecordedSignatures(_ context.Context, id ledger.TransactionID) ([]RecordedSignature, error) {
	return s[id], nil
}

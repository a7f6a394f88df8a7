// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package resolver

import (
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

// SignatureAudit is the outcome of one resolution. It is recomputed
// whenever it is needed, since entity keys can change.
type SignatureAudit struct {
	// Root is an all-of node with a child for each contributing entity
	// and each key the transaction introduces.
	Root *keytree.KeyTree `json:"root"`

	ConsultedAccounts []ledger.EntityID `json:"consultedAccounts"`

	// ReceiverAccounts are accounts that only receive. Their keys are
	// part of Root only if they require a signature to receive.
	ReceiverAccounts []ledger.EntityID `json:"receiverAccounts"`

	ConsultedNodes      []uint64    `json:"consultedNodes"`
	NewlyIntroducedKeys keytree.Set `json:"newlyIntroducedKeys"`

	// Expired is set if the transaction can no longer be submitted, in
	// which case nothing else is.
	Expired bool `json:"expired,omitempty"`
}

// RequiredKeys returns every key that could contribute to the requirement.
func (a *SignatureAudit) RequiredKeys() keytree.Set {
	return keytree.Flatten(a.Root)
}

// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package resolver

import (
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

// entities are the parties a transaction implicates.
type entities struct {
	systemMax uint64

	signers   map[ledger.EntityID]struct{}
	receivers map[ledger.EntityID]struct{}
	nodes     map[uint64]struct{}

	// newKeys are keys the transaction sets, in the order they appear.
	newKeys []newKey
}

type newKey struct {
	label string
	key   *ledger.Key
}

func newEntities(systemMax uint64) *entities {
	return &entities{
		systemMax: systemMax,
		signers:   map[ledger.EntityID]struct{}{},
		receivers: map[ledger.EntityID]struct{}{},
		nodes:     map[uint64]struct{}{},
	}
}

func (e *entities) signer(id ledger.EntityID) {
	if id.IsZero() {
		return
	}
	e.signers[id] = struct{}{}
}

func (e *entities) receiver(id ledger.EntityID) {
	if id.IsZero() {
		return
	}
	e.receivers[id] = struct{}{}
}

func (e *entities) node(id uint64) {
	e.nodes[id] = struct{}{}
}

func (e *entities) newKey(label string, key *ledger.Key) {
	if key == nil {
		return
	}
	e.newKeys = append(e.newKeys, newKey{label, key})
}

// owner returns the allowance owner, which defaults to the payer.
func owner(id *ledger.EntityID, payer ledger.EntityID) ledger.EntityID {
	if id == nil || id.IsZero() {
		return payer
	}
	return *id
}

// classify collects the entities implicated by the transaction.
func (e *entities) classify(tx *ledger.Transaction) error {
	payer := tx.Payer()
	e.signer(payer)

	switch body := tx.Body.(type) {
	case *ledger.CryptoTransfer:
		e.transfers(body.Transfers)
		for _, tl := range body.TokenTransfers {
			e.transfers(tl.Transfers)
			for _, nft := range tl.NftTransfers {
				// An approved transfer is authorized by the spender, who
				// pays for it
				if !nft.IsApproval {
					e.signer(nft.SenderAccountID)
				}
				e.receiver(nft.ReceiverAccountID)
			}
		}

	case *ledger.CryptoCreateAccount:
		e.newKey("new account key", body.Key)

	case *ledger.CryptoUpdateAccount:
		if body.AccountIDToUpdate.IsSystem(e.systemMax) {
			break
		}
		e.signer(body.AccountIDToUpdate)
		e.newKey("new key of "+body.AccountIDToUpdate.String(), body.Key)

	case *ledger.CryptoDelete:
		e.signer(body.DeleteAccountID)
		e.receiver(body.TransferAccountID)

	case *ledger.CryptoApproveAllowance:
		for _, a := range body.CryptoAllowances {
			e.signer(owner(a.Owner, payer))
		}
		for _, a := range body.TokenAllowances {
			e.signer(owner(a.Owner, payer))
		}
		for _, a := range body.NftAllowances {
			e.signer(owner(a.Owner, payer))
		}

	case *ledger.CryptoDeleteAllowance:
		for _, a := range body.NftAllowances {
			e.signer(owner(a.Owner, payer))
		}

	case *ledger.FileUpdate:
		if !body.FileID.IsSystem(e.systemMax) {
			return errors.BadRequest.WithFormat("cannot resolve the keys of file %v", body.FileID)
		}

	case *ledger.FileAppend:
		if !body.FileID.IsSystem(e.systemMax) {
			return errors.BadRequest.WithFormat("cannot resolve the keys of file %v", body.FileID)
		}

	case *ledger.Freeze:
		// Only the payer

	case *ledger.NodeCreate:
		e.newKey("admin key of new node", body.AdminKey)

	case *ledger.NodeUpdate:
		e.node(body.NodeID)
		if body.AccountID != nil {
			e.signer(*body.AccountID)
		}
		e.newKey("new admin key of node "+nodeLabel(body.NodeID), body.AdminKey)

	case *ledger.NodeDelete:
		e.node(body.NodeID)

	default:
		return errors.WrongType.WithFormat("unsupported transaction type %v", tx.Body.Type())
	}

	// An account that signs is not also counted as a receiver
	for id := range e.signers {
		delete(e.receivers, id)
	}
	return nil
}

func (e *entities) transfers(transfers []ledger.AccountAmount) {
	for _, t := range transfers {
		switch {
		case t.Amount < 0 && !t.IsApproval:
			e.signer(t.AccountID)
		case t.Amount > 0:
			e.receiver(t.AccountID)
		}
	}
}

// newKeyTrees translates the keys the transaction sets.
func (e *entities) newKeyTrees() ([]*keytree.KeyTree, []string, error) {
	trees := make([]*keytree.KeyTree, 0, len(e.newKeys))
	labels := make([]string, 0, len(e.newKeys))
	for _, k := range e.newKeys {
		t, err := k.key.KeyTree()
		if err != nil {
			return nil, nil, errors.BadRequest.WithFormat("%s: %w", k.label, err)
		}
		if t == nil {
			continue
		}
		trees = append(trees, t)
		labels = append(labels, k.label)
	}
	return trees, labels, nil
}

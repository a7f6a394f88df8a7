// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package ledger

import (
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
)

// Key is the ledger's native key object. Exactly one field is set.
type Key struct {
	Ed25519               *keytree.PublicKey `json:"ed25519,omitempty"`
	ECDSASecp256k1        *keytree.PublicKey `json:"ecdsaSecp256k1,omitempty"`
	ECDSA384              *keytree.PublicKey `json:"ecdsa384,omitempty"`
	RSA3072               *keytree.PublicKey `json:"rsa3072,omitempty"`
	KeyList               *KeyList           `json:"keyList,omitempty"`
	ThresholdKey          *ThresholdKey      `json:"thresholdKey,omitempty"`
	ContractID            *EntityID          `json:"contractId,omitempty"`
	DelegatableContractID *EntityID          `json:"delegatableContractId,omitempty"`
}

// KeyList requires every key.
type KeyList struct {
	Keys []*Key `json:"keys"`
}

// ThresholdKey requires Threshold of its keys.
type ThresholdKey struct {
	Threshold uint32   `json:"threshold"`
	Keys      *KeyList `json:"keys"`
}

// Ed25519Key returns a key holding an ED25519 public key.
func Ed25519Key(k keytree.PublicKey) *Key { return &Key{Ed25519: &k} }

// Secp256k1Key returns a key holding an ECDSA secp256k1 public key.
func Secp256k1Key(k keytree.PublicKey) *Key { return &Key{ECDSASecp256k1: &k} }

// NewKeyList returns a key list over the keys.
func NewKeyList(keys ...*Key) *Key { return &Key{KeyList: &KeyList{Keys: keys}} }

// NewThresholdKey returns an m-of-n key over the keys.
func NewThresholdKey(m uint32, keys ...*Key) *Key {
	return &Key{ThresholdKey: &ThresholdKey{Threshold: m, Keys: &KeyList{Keys: keys}}}
}

// KeyTree translates the key into a key tree. This is the only place native
// keys are interpreted. Contract keys cannot be satisfied by a signature and
// become unsignable leaves. The result is not sanitized.
func (k *Key) KeyTree() (*keytree.KeyTree, error) {
	return k.keyTree(0)
}

func (k *Key) keyTree(depth int) (*keytree.KeyTree, error) {
	if k == nil {
		return nil, nil
	}
	// Anything this deep is far past what the evaluator will accept. Stop
	// before recursion becomes a problem.
	if depth > 4*keytree.MaxDepth {
		return nil, errors.MalformedKey.WithFormat("key nested deeper than %d", 4*keytree.MaxDepth)
	}

	set := 0
	var t *keytree.KeyTree
	leaf := func(pk *keytree.PublicKey) {
		if pk == nil {
			return
		}
		set++
		t = keytree.Leaf(*pk)
	}
	leaf(k.Ed25519)
	leaf(k.ECDSASecp256k1)
	leaf(k.ECDSA384)
	leaf(k.RSA3072)

	if k.ContractID != nil {
		set++
		t = keytree.Leaf(keytree.Unsignable("contract " + k.ContractID.String()))
	}
	if k.DelegatableContractID != nil {
		set++
		t = keytree.Leaf(keytree.Unsignable("delegatable contract " + k.DelegatableContractID.String()))
	}

	if k.KeyList != nil {
		set++
		children, err := keyTrees(k.KeyList, depth)
		if err != nil {
			return nil, err
		}
		t = keytree.All(children...)
	}

	if k.ThresholdKey != nil {
		set++
		children, err := keyTrees(k.ThresholdKey.Keys, depth)
		if err != nil {
			return nil, err
		}
		t = keytree.NewThreshold(k.ThresholdKey.Threshold, children...)
	}

	switch set {
	case 0:
		return nil, errors.MalformedKey.With("key has no value")
	case 1:
		return t, nil
	default:
		return nil, errors.MalformedKey.WithFormat("key has %d values", set)
	}
}

func keyTrees(l *KeyList, depth int) ([]*keytree.KeyTree, error) {
	if l == nil {
		return nil, nil
	}
	children := make([]*keytree.KeyTree, 0, len(l.Keys))
	for i, c := range l.Keys {
		if c == nil {
			return nil, errors.MalformedKey.WithFormat("key %d of list is null", i)
		}
		t, err := c.keyTree(depth + 1)
		if err != nil {
			return nil, err
		}
		children = append(children, t)
	}
	return children, nil
}

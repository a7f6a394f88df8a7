// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package keytree implements the recursive authorization key structure: a
// key is either a single public key or an m-of-n threshold over other keys.
package keytree

import (
	"encoding/json"

	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
)

// MaxDepth is the deepest nesting the engine evaluates. Ledger keys are far
// shallower; anything deeper is treated as malformed.
const MaxDepth = 32

// Kind is the variant of a KeyTree.
type Kind uint8

const (
	KindLeaf Kind = iota + 1
	KindThreshold
)

func (k Kind) String() string {
	switch k {
	case KindLeaf:
		return "leaf"
	case KindThreshold:
		return "threshold"
	default:
		return "unknown"
	}
}

// KeyTree is a tagged variant. A leaf has Kind == KindLeaf and a Key. A
// threshold node has Kind == KindThreshold, a Threshold, and Children. A
// plain key list is a threshold node whose Threshold equals the number of
// children.
type KeyTree struct {
	Kind      Kind
	Key       PublicKey
	Threshold uint32
	Children  []*KeyTree
}

// Leaf returns a leaf for the key.
func Leaf(key PublicKey) *KeyTree {
	return &KeyTree{Kind: KindLeaf, Key: key}
}

// NewThreshold returns an m-of-n node over the children.
func NewThreshold(m uint32, children ...*KeyTree) *KeyTree {
	return &KeyTree{Kind: KindThreshold, Threshold: m, Children: children}
}

// All returns a node that requires every child.
func All(children ...*KeyTree) *KeyTree {
	return NewThreshold(uint32(len(children)), children...)
}

// Leaves returns an all-of node over a leaf for each key.
func Leaves(keys ...PublicKey) *KeyTree {
	children := make([]*KeyTree, len(keys))
	for i, k := range keys {
		children[i] = Leaf(k)
	}
	return All(children...)
}

// Union composes trees into a single all-of node, skipping nil trees. The
// union of nothing has no children and is satisfied by anything.
func Union(trees ...*KeyTree) *KeyTree {
	children := make([]*KeyTree, 0, len(trees))
	for _, t := range trees {
		if t != nil {
			children = append(children, t)
		}
	}
	return All(children...)
}

func (t *KeyTree) IsLeaf() bool { return t != nil && t.Kind == KindLeaf }

// IsKeyList returns true if the node requires all of its children.
func (t *KeyTree) IsKeyList() bool {
	return t != nil && t.Kind == KindThreshold && int(t.Threshold) == len(t.Children)
}

// Copy returns a deep copy.
func (t *KeyTree) Copy() *KeyTree {
	if t == nil {
		return nil
	}
	u := &KeyTree{Kind: t.Kind, Key: t.Key, Threshold: t.Threshold}
	if t.Children != nil {
		u.Children = make([]*KeyTree, len(t.Children))
		for i, c := range t.Children {
			u.Children[i] = c.Copy()
		}
	}
	return u
}

// Equal returns true if the trees have the same shape and keys.
func (t *KeyTree) Equal(u *KeyTree) bool {
	if t == nil || u == nil {
		return t == u
	}
	if t.Kind != u.Kind || t.Key != u.Key || t.Threshold != u.Threshold || len(t.Children) != len(u.Children) {
		return false
	}
	for i := range t.Children {
		if !t.Children[i].Equal(u.Children[i]) {
			return false
		}
	}
	return true
}

type jsonKeyTree struct {
	Key       *PublicKey `json:"key,omitempty"`
	Threshold *uint32    `json:"threshold,omitempty"`
	Keys      []*KeyTree `json:"keys,omitempty"`
}

func (t *KeyTree) MarshalJSON() ([]byte, error) {
	var v jsonKeyTree
	switch t.Kind {
	case KindLeaf:
		v.Key = &t.Key
	case KindThreshold:
		v.Threshold = &t.Threshold
		v.Keys = t.Children
		if v.Keys == nil {
			v.Keys = []*KeyTree{}
		}
	default:
		return nil, errors.WrongType.WithFormat("cannot marshal key tree of kind %v", t.Kind)
	}
	return json.Marshal(v)
}

func (t *KeyTree) UnmarshalJSON(b []byte) error {
	var v jsonKeyTree
	err := json.Unmarshal(b, &v)
	if err != nil {
		return errors.EncodingError.WithFormat("decode key tree: %w", err)
	}

	switch {
	case v.Key != nil && v.Threshold == nil:
		*t = KeyTree{Kind: KindLeaf, Key: *v.Key}
	case v.Key == nil && v.Threshold != nil:
		*t = KeyTree{Kind: KindThreshold, Threshold: *v.Threshold, Children: v.Keys}
	default:
		return errors.EncodingError.With("key tree must have exactly one of key or threshold")
	}
	return nil
}

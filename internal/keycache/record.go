// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package keycache

import (
	"strconv"
	"strings"
	"time"

	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

// EntityKind distinguishes accounts from nodes. Their numbers overlap.
type EntityKind uint8

const (
	EntityKindAccount EntityKind = iota + 1
	EntityKindNode
)

func (k EntityKind) String() string {
	switch k {
	case EntityKindAccount:
		return "account"
	case EntityKindNode:
		return "node"
	default:
		return "EntityKind:" + strconv.Itoa(int(k))
	}
}

// EntityKindByName returns the named kind.
func EntityKindByName(s string) (EntityKind, bool) {
	switch strings.ToLower(s) {
	case "account":
		return EntityKindAccount, true
	case "node":
		return EntityKindNode, true
	}
	return 0, false
}

func (k EntityKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *EntityKind) UnmarshalText(b []byte) error {
	v, ok := EntityKindByName(string(b))
	if !ok {
		return errors.EncodingError.WithFormat("invalid entity kind %q", b)
	}
	*k = v
	return nil
}

// EntityKey identifies the cached key material of one entity on one
// network.
type EntityKey struct {
	Kind    EntityKind     `json:"kind"`
	ID      string         `json:"id"`
	Network ledger.Network `json:"network"`
}

// AccountKey returns the key of an account.
func AccountKey(network ledger.Network, id ledger.EntityID) EntityKey {
	return EntityKey{Kind: EntityKindAccount, ID: id.String(), Network: network}
}

// NodeKey returns the key of a consensus node.
func NodeKey(network ledger.Network, id uint64) EntityKey {
	return EntityKey{Kind: EntityKindNode, ID: strconv.FormatUint(id, 10), Network: network}
}

// ParseEntityKey parses "account/0.0.123", "node/3", or a bare account ID.
func ParseEntityKey(network ledger.Network, s string) (EntityKey, error) {
	kind, id, ok := strings.Cut(s, "/")
	if !ok {
		kind, id = "account", s
	}

	k, ok := EntityKindByName(kind)
	if !ok {
		return EntityKey{}, errors.BadRequest.WithFormat("invalid entity %q: unknown kind %q", s, kind)
	}

	switch k {
	case EntityKindAccount:
		v, err := ledger.ParseEntityID(id)
		if err != nil {
			return EntityKey{}, err
		}
		return AccountKey(network, v), nil
	default:
		v, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return EntityKey{}, errors.BadRequest.WithFormat("invalid node ID %q: %w", id, err)
		}
		return NodeKey(network, v), nil
	}
}

// EntityID renders the kind and ID, such as "account/0.0.123". This is the
// entity_id column of the durable stores.
func (k EntityKey) EntityID() string {
	return k.Kind.String() + "/" + k.ID
}

func (k EntityKey) String() string {
	return k.EntityID() + "@" + string(k.Network)
}

// AccountID returns the account ID of an account key.
func (k EntityKey) AccountID() (ledger.EntityID, error) {
	if k.Kind != EntityKindAccount {
		return ledger.EntityID{}, errors.WrongType.WithFormat("%v is not an account", k)
	}
	return ledger.ParseEntityID(k.ID)
}

// NodeID returns the node ID of a node key.
func (k EntityKey) NodeID() (uint64, error) {
	if k.Kind != EntityKindNode {
		return 0, errors.WrongType.WithFormat("%v is not a node", k)
	}
	v, err := strconv.ParseUint(k.ID, 10, 64)
	if err != nil {
		return 0, errors.BadRequest.WithFormat("invalid node ID %q: %w", k.ID, err)
	}
	return v, nil
}

// Record is the cached key material of an entity. Records are created
// lazily, updated in place, and never deleted. Callers must not modify a
// record returned by a cache.
type Record struct {
	Entity EntityKey `json:"entity"`

	// KeyTree is nil if the entity has no controlling key or does not exist.
	KeyTree  *keytree.KeyTree `json:"keyTree,omitempty"`
	LeafKeys keytree.Set      `json:"leafKeys,omitempty"`

	// ReceiverSignatureRequired is only set for accounts.
	ReceiverSignatureRequired *bool `json:"receiverSignatureRequired,omitempty"`

	SourceVersionTag string    `json:"sourceVersionTag,omitempty"`
	LastCheckedAt    time.Time `json:"lastCheckedAt,omitempty"`
	RefreshLease     string    `json:"refreshLease,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// NewPlaceholder returns the record inserted by the first claim of an
// entity. It holds no key material.
func NewPlaceholder(key EntityKey, lease string, now time.Time) *Record {
	return &Record{
		Entity:       key,
		RefreshLease: lease,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Populated returns true if the record has ever been filled from the
// mirror.
func (r *Record) Populated() bool { return !r.LastCheckedAt.IsZero() }

// Claimable returns true if a refresh lease can be taken on the record.
func (r *Record) Claimable(reclaimBefore time.Time) bool {
	return r.RefreshLease == "" || r.UpdatedAt.Before(reclaimBefore)
}

// ReceiverRequired returns true if the record says the account's signature
// is needed to receive funds.
func (r *Record) ReceiverRequired() bool {
	return r.ReceiverSignatureRequired != nil && *r.ReceiverSignatureRequired
}

func (r *Record) Copy() *Record {
	s := *r
	s.KeyTree = r.KeyTree.Copy()
	if r.LeafKeys != nil {
		s.LeafKeys = r.LeafKeys.Union(nil)
	}
	if r.ReceiverSignatureRequired != nil {
		v := *r.ReceiverSignatureRequired
		s.ReceiverSignatureRequired = &v
	}
	return &s
}

// Update is the outcome of a refresh.
type Update struct {
	// NotModified means the mirror reported no change since the record's
	// version tag. Only the check time is updated.
	NotModified bool

	KeyTree                   *keytree.KeyTree
	ReceiverSignatureRequired *bool
	VersionTag                string
	CheckedAt                 time.Time
}

// NewUpdate converts a fetch result into an update.
func NewUpdate(r *FetchResult, checkedAt time.Time) *Update {
	return &Update{
		NotModified:               r.NotModified,
		KeyTree:                   r.KeyTree,
		ReceiverSignatureRequired: r.ReceiverSignatureRequired,
		VersionTag:                r.VersionTag,
		CheckedAt:                 checkedAt,
	}
}

// Apply writes the update to the record and clears its lease.
func (u *Update) Apply(r *Record) {
	r.RefreshLease = ""
	r.LastCheckedAt = u.CheckedAt
	r.UpdatedAt = u.CheckedAt
	if u.VersionTag != "" {
		r.SourceVersionTag = u.VersionTag
	}
	if u.NotModified {
		return
	}

	r.KeyTree = u.KeyTree
	r.LeafKeys = keytree.Flatten(u.KeyTree)
	r.ReceiverSignatureRequired = u.ReceiverSignatureRequired
	r.SourceVersionTag = u.VersionTag
}

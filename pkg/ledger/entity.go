// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package ledger holds the ledger's native types and the translation of
// ledger keys into key trees.
package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
)

// DefaultSystemEntityMax is the highest entity number reserved for the
// ledger's own accounts and files.
const DefaultSystemEntityMax = 1000

// EntityID identifies an account, file, contract, or token as
// shard.realm.num.
type EntityID struct {
	Shard uint64
	Realm uint64
	Num   uint64
}

// NewEntityID returns 0.0.num.
func NewEntityID(num uint64) EntityID {
	return EntityID{Num: num}
}

// ParseEntityID parses shard.realm.num. A trailing checksum such as
// 0.0.123-vfmkw is ignored.
func ParseEntityID(s string) (EntityID, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '-'); i >= 0 {
		s = s[:i]
	}

	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return EntityID{}, errors.BadRequest.WithFormat("invalid entity ID %q: want shard.realm.num", s)
	}

	var v [3]uint64
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return EntityID{}, errors.BadRequest.WithFormat("invalid entity ID %q: %w", s, err)
		}
		v[i] = n
	}
	return EntityID{Shard: v[0], Realm: v[1], Num: v[2]}, nil
}

// MustParseEntityID calls ParseEntityID and panics on error.
func MustParseEntityID(s string) EntityID {
	id, err := ParseEntityID(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id EntityID) String() string {
	return fmt.Sprintf("%d.%d.%d", id.Shard, id.Realm, id.Num)
}

func (id EntityID) IsZero() bool { return id == EntityID{} }

// IsSystem returns true if the entity is one of the reserved entities in
// shard 0, realm 0 numbered up to max.
func (id EntityID) IsSystem(max uint64) bool {
	return id.Shard == 0 && id.Realm == 0 && id.Num <= max
}

// Compare orders entity IDs by shard, realm, then number.
func (id EntityID) Compare(other EntityID) int {
	switch {
	case id.Shard != other.Shard:
		return cmp(id.Shard, other.Shard)
	case id.Realm != other.Realm:
		return cmp(id.Realm, other.Realm)
	default:
		return cmp(id.Num, other.Num)
	}
}

func cmp(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (id EntityID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *EntityID) UnmarshalText(b []byte) error {
	v, err := ParseEntityID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// Network names a ledger. Cached key material is namespaced by network.
type Network string

const (
	Mainnet    Network = "mainnet"
	Testnet    Network = "testnet"
	Previewnet Network = "previewnet"
	LocalNode  Network = "local-node"
)

// ParseNetwork normalizes a network name.
func ParseNetwork(s string) (Network, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", errors.BadRequest.With("missing network")
	}
	return Network(s), nil
}

func (n Network) String() string { return string(n) }

// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

package keytree

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"

	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// PublicKey is the canonical raw-byte encoding of a public key. It is held as
// a string so keys can be compared with == and used as map keys.
type PublicKey string

// DER SubjectPublicKeyInfo prefixes that are stripped by ParsePublicKey.
var (
	derPrefixEd25519   = mustHex("302a300506032b6570032100")
	derPrefixSecp256k1 = mustHex("302d300706052b8104000a032200")
)

// unsignablePrefix marks keys that no party can sign with, such as contract
// keys and empty key lists.
const unsignablePrefix = "\x00"

// PublicKeyFromBytes returns the canonical form of a raw or DER encoded key.
func PublicKeyFromBytes(b []byte) PublicKey {
	switch {
	case len(b) == len(derPrefixEd25519)+32 && bytes.HasPrefix(b, derPrefixEd25519):
		b = b[len(derPrefixEd25519):]
	case len(b) == len(derPrefixSecp256k1)+33 && bytes.HasPrefix(b, derPrefixSecp256k1):
		b = b[len(derPrefixSecp256k1):]
	}
	return PublicKey(b)
}

// ParsePublicKey parses a hex encoded key, with or without a 0x prefix.
func ParsePublicKey(s string) (PublicKey, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if s == "" {
		return "", errors.BadRequest.With("empty public key")
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", errors.EncodingError.WithFormat("invalid public key %q: %w", s, err)
	}
	return PublicKeyFromBytes(b), nil
}

// MustParsePublicKey calls ParsePublicKey and panics on error.
func MustParsePublicKey(s string) PublicKey {
	k, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// Unsignable returns a placeholder key that no one holds. It stands in for
// authorization that cannot be produced by a signature.
func Unsignable(label string) PublicKey {
	return PublicKey(unsignablePrefix + label)
}

// IsSignable returns false for placeholder keys created by Unsignable.
func (k PublicKey) IsSignable() bool {
	return !strings.HasPrefix(string(k), unsignablePrefix)
}

// Bytes returns the raw key bytes.
func (k PublicKey) Bytes() []byte { return []byte(k) }

func (k PublicKey) String() string {
	if !k.IsSignable() {
		return "<" + string(k[len(unsignablePrefix):]) + ">"
	}
	return hex.EncodeToString([]byte(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString([]byte(k))), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *PublicKey) UnmarshalText(b []byte) error {
	v, err := hex.DecodeString(string(b))
	if err != nil {
		return errors.EncodingError.WithFormat("decode public key: %w", err)
	}
	*k = PublicKeyFromBytes(v)
	return nil
}

// Set is a set of public keys.
type Set map[PublicKey]struct{}

// NewSet returns a set containing the given keys.
func NewSet(keys ...PublicKey) Set {
	s := make(Set, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s Set) Add(keys ...PublicKey) {
	for _, k := range keys {
		s[k] = struct{}{}
	}
}

func (s Set) Has(k PublicKey) bool {
	_, ok := s[k]
	return ok
}

func (s Set) Remove(k PublicKey) { delete(s, k) }

func (s Set) Len() int { return len(s) }

// Union returns a new set with the members of both sets.
func (s Set) Union(t Set) Set {
	u := make(Set, len(s)+len(t))
	for k := range s {
		u[k] = struct{}{}
	}
	for k := range t {
		u[k] = struct{}{}
	}
	return u
}

// Intersect returns a new set with the members present in both sets.
func (s Set) Intersect(t Set) Set {
	if len(t) < len(s) {
		s, t = t, s
	}
	u := Set{}
	for k := range s {
		if t.Has(k) {
			u[k] = struct{}{}
		}
	}
	return u
}

// Difference returns a new set with the members of s that are not in t.
func (s Set) Difference(t Set) Set {
	u := Set{}
	for k := range s {
		if !t.Has(k) {
			u[k] = struct{}{}
		}
	}
	return u
}

func (s Set) Equal(t Set) bool {
	if len(s) != len(t) {
		return false
	}
	for k := range s {
		if !t.Has(k) {
			return false
		}
	}
	return true
}

// Sorted returns the members in byte order.
func (s Set) Sorted() []PublicKey {
	keys := maps.Keys(s)
	slices.Sort(keys)
	return keys
}

func (s Set) MarshalJSON() ([]byte, error) {
	keys := s.Sorted()
	if keys == nil {
		keys = []PublicKey{}
	}
	return json.Marshal(keys)
}

func (s *Set) UnmarshalJSON(b []byte) error {
	var keys []PublicKey
	err := json.Unmarshal(b, &keys)
	if err != nil {
		return err
	}
	*s = NewSet(keys...)
	return nil
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}
